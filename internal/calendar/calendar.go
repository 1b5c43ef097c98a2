package calendar

import (
	"io"
	"math"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/lox/aqicast/internal/models"
)

const dateLayout = "2006-01-02"

// Assemble right-joins the observed series onto the forecast by date: every
// forecast point yields exactly one record, with Actual nil where nothing was
// observed. Records follow forecast order.
func Assemble(observed []models.SeriesPoint, forecast []models.ForecastPoint) []models.CalendarRecord {
	actuals := make(map[string]float64, len(observed))
	for _, p := range observed {
		actuals[p.Date.Format(dateLayout)] = p.Value
	}

	records := make([]models.CalendarRecord, 0, len(forecast))
	for _, fp := range forecast {
		key := fp.Date.Format(dateLayout)
		rec := models.CalendarRecord{Date: key, Predicted: Round2(fp.Yhat)}
		if v, ok := actuals[key]; ok {
			actual := v
			rec.Actual = &actual
		}
		records = append(records, rec)
	}
	return records
}

// Round2 rounds to two decimals, halves to even.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// WriteCSV writes records as ds,y,yhat with an empty y for missing actuals.
func WriteCSV(w io.Writer, records []models.CalendarRecord) error {
	dates := make([]string, len(records))
	actuals := make([]string, len(records))
	predicted := make([]string, len(records))
	for i, r := range records {
		dates[i] = r.Date
		if r.Actual != nil {
			actuals[i] = strconv.FormatFloat(*r.Actual, 'f', -1, 64)
		}
		predicted[i] = strconv.FormatFloat(r.Predicted, 'f', 2, 64)
	}

	df := dataframe.New(
		series.New(dates, series.String, "ds"),
		series.New(actuals, series.String, "y"),
		series.New(predicted, series.String, "yhat"),
	)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}
