package ingest

import (
	"github.com/lox/aqicast/internal/models"
)

const (
	FlagNegativeConcentration = "negative_concentration"
	FlagImplausibleHigh       = "implausible_high"
	FlagAllMissing            = "all_missing"
)

// Concentrations above this (µg/m³) are outside anything a ground sensor reports
// outside of instrument faults.
const implausibleConcentration = 5000.0

// ValidateReading returns quality flags for a reading. Flags are advisory; the
// reading is still aggregated.
func ValidateReading(r models.Reading) []string {
	var flags []string

	negative, high, present := false, false, 0
	for _, v := range r.Values {
		if !v.Valid {
			continue
		}
		present++
		if v.Float64 < 0 {
			negative = true
		}
		if v.Float64 > implausibleConcentration {
			high = true
		}
	}

	if negative {
		flags = append(flags, FlagNegativeConcentration)
	}
	if high {
		flags = append(flags, FlagImplausibleHigh)
	}
	if present == 0 {
		flags = append(flags, FlagAllMissing)
	}
	return flags
}

// CountFlags tallies ValidateReading flags across readings.
func CountFlags(readings []models.Reading) map[string]int {
	counts := make(map[string]int)
	for _, r := range readings {
		for _, f := range ValidateReading(r) {
			counts[f]++
		}
	}
	return counts
}
