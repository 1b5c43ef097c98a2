// Package holidays holds the festival calendar used as holiday regressors.
// Each date is widened into a window of elevated particulate activity.
package holidays

import (
	"time"

	"github.com/lox/aqicast/internal/models"
)

const (
	Label = "Major Holiday"

	LowerWindow = -2
	UpperWindow = 3
)

type festival struct {
	name  string
	dates []string
}

var festivals = []festival{
	{
		name:  "Diwali",
		dates: []string{"2020-11-14", "2021-11-04", "2022-10-24", "2023-11-12", "2024-11-01", "2025-10-21", "2026-11-08"},
	},
	{
		name:  "Holi",
		dates: []string{"2020-03-10", "2021-03-29", "2022-03-18", "2023-03-07", "2024-03-25", "2025-03-14", "2026-03-04"},
	},
}

// Windows returns the holiday windows, ordered by festival then date. Each call
// returns a new slice.
func Windows() []models.HolidayWindow {
	var out []models.HolidayWindow
	for _, f := range festivals {
		for _, d := range f.dates {
			date, err := time.Parse("2006-01-02", d)
			if err != nil {
				panic("holidays: bad date " + d)
			}
			out = append(out, models.HolidayWindow{
				Label:       Label,
				Festival:    f.name,
				Date:        date,
				LowerWindow: LowerWindow,
				UpperWindow: UpperWindow,
			})
		}
	}
	return out
}
