package ingest

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/lox/aqicast/internal/models"
)

var (
	ErrNoReadings   = errors.New("no readings in input")
	ErrUnknownField = errors.New("unknown field")
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ReadReadings parses a headered CSV of time-stamped readings. Every column
// other than timeColumn is a numeric field. Cells that are empty or NaN/NA/null
// are missing; anything else that does not parse rejects the input. Rows with
// a missing timestamp are skipped.
func ReadReadings(r io.Reader, timeColumn string) (models.Schema, []models.Reading, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return models.Schema{}, nil, fmt.Errorf("read csv: %w", err)
	}
	empty, err := headerOnly(raw)
	if err != nil {
		return models.Schema{}, nil, fmt.Errorf("parse csv: %w", err)
	}
	if empty {
		return models.Schema{}, nil, ErrNoReadings
	}

	df := dataframe.ReadCSV(bytes.NewReader(raw),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{"NA", "NaN", "nan", "null", "<nil>"}),
	)
	if df.Err != nil {
		return models.Schema{}, nil, fmt.Errorf("parse csv: %w", df.Err)
	}

	schema := models.Schema{TimeColumn: timeColumn}
	hasTime := false
	for _, name := range df.Names() {
		if name == timeColumn {
			hasTime = true
			continue
		}
		schema.Fields = append(schema.Fields, name)
	}
	if !hasTime {
		return schema, nil, fmt.Errorf("time column %q not in header", timeColumn)
	}

	timestamps := df.Col(timeColumn).Records()
	columns := make([][]string, len(schema.Fields))
	for i, name := range schema.Fields {
		columns[i] = df.Col(name).Records()
	}

	readings := make([]models.Reading, 0, len(timestamps))
	for row, cell := range timestamps {
		// Line numbers count the header as line 1.
		line := row + 2
		if isMissing(strings.TrimSpace(cell)) {
			continue
		}
		ts, err := parseTimestamp(cell)
		if err != nil {
			return schema, nil, fmt.Errorf("line %d: %w", line, err)
		}
		values := make([]sql.NullFloat64, len(schema.Fields))
		for i := range schema.Fields {
			v, err := parseValue(columns[i][row])
			if err != nil {
				return schema, nil, fmt.Errorf("line %d: column %s: %w", line, schema.Fields[i], err)
			}
			values[i] = v
		}
		readings = append(readings, models.Reading{Timestamp: ts, Values: values})
	}
	if len(readings) == 0 {
		return schema, nil, ErrNoReadings
	}

	return schema, readings, nil
}

// headerOnly reports whether raw holds a header and no data records.
func headerOnly(raw []byte) (bool, error) {
	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return false, errors.New("empty input")
		}
		return false, err
	}
	if _, err := cr.Read(); errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

func parseValue(s string) (sql.NullFloat64, error) {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return sql.NullFloat64{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, fmt.Errorf("not a number: %q", s)
	}
	if math.IsInf(f, 0) {
		return sql.NullFloat64{}, fmt.Errorf("infinite value: %q", s)
	}
	return sql.NullFloat64{Float64: f, Valid: true}, nil
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "na", "null", "<nil>":
		return true
	}
	return false
}
