package ingest

import (
	"database/sql"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lox/aqicast/internal/models"
)

func valid(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

const sampleCSV = `date,co,pm2_5,pm10
2020-11-25 01:00:00,2616.88,364.61,411.73
2020-11-25 02:00:00,3631.59,420.96,486.21
2020-11-25 03:00:00,4539.49,463.68,541.95
2020-11-26 01:00:00,,301.0,
2020-11-26 02:00:00,NaN,299.0,350.5
`

func TestReadReadings(t *testing.T) {
	schema, readings, err := ReadReadings(strings.NewReader(sampleCSV), "date")
	if err != nil {
		t.Fatalf("ReadReadings: %v", err)
	}

	if diff := cmp.Diff([]string{"co", "pm2_5", "pm10"}, schema.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if schema.TimeColumn != "date" {
		t.Errorf("TimeColumn = %q, want date", schema.TimeColumn)
	}
	if len(readings) != 5 {
		t.Fatalf("len(readings) = %d, want 5", len(readings))
	}

	want := time.Date(2020, 11, 25, 2, 0, 0, 0, time.UTC)
	if !readings[1].Timestamp.Equal(want) {
		t.Errorf("readings[1].Timestamp = %v, want %v", readings[1].Timestamp, want)
	}
	if readings[3].Values[0].Valid {
		t.Error("empty co cell should be missing")
	}
	if readings[4].Values[0].Valid {
		t.Error("NaN co cell should be missing")
	}
	if readings[3].Values[1] != valid(301.0) {
		t.Errorf("readings[3].pm2_5 = %+v, want 301", readings[3].Values[1])
	}
}

func TestReadReadings_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		wantMsg string
	}{
		{
			name:    "header only",
			input:   "date,pm2_5\n",
			wantErr: ErrNoReadings,
		},
		{
			name:    "no timestamps",
			input:   "date,pm2_5\n,10\nNA,12\n",
			wantErr: ErrNoReadings,
		},
		{
			name:    "missing time column",
			input:   "timestamp,pm2_5\n2020-01-01,10\n",
			wantMsg: `time column "date" not in header`,
		},
		{
			name:    "unparsable timestamp",
			input:   "date,pm2_5\n2020-01-01,10\nyesterday,12\n",
			wantMsg: "line 3: unparsable timestamp",
		},
		{
			name:    "non-numeric value",
			input:   "date,pm2_5\n2020-01-01,ten\n",
			wantMsg: "line 2: column pm2_5: not a number",
		},
		{
			name:    "infinite value",
			input:   "date,pm2_5\n2020-01-01,Inf\n",
			wantMsg: "infinite value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadReadings(strings.NewReader(tt.input), "date")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestReadReadings_SkipsMissingTimestamps(t *testing.T) {
	input := "date,pm2_5\n2020-01-01 01:00:00,10\n,12\nNA,13\n2020-01-02 01:00:00,14\n"
	_, readings, err := ReadReadings(strings.NewReader(input), "date")
	if err != nil {
		t.Fatalf("ReadReadings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("len(readings) = %d, want 2", len(readings))
	}
	if readings[1].Values[0] != valid(14) {
		t.Errorf("readings[1].pm2_5 = %+v, want 14", readings[1].Values[0])
	}
}

func TestParseTimestamp_Layouts(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2021-03-29 14:00:00", time.Date(2021, 3, 29, 14, 0, 0, 0, time.UTC)},
		{"2021-03-29T14:00:00", time.Date(2021, 3, 29, 14, 0, 0, 0, time.UTC)},
		{"2021-03-29T14:00:00Z", time.Date(2021, 3, 29, 14, 0, 0, 0, time.UTC)},
		{"2021-03-29 14:00", time.Date(2021, 3, 29, 14, 0, 0, 0, time.UTC)},
		{"2021-03-29", time.Date(2021, 3, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if err != nil {
			t.Errorf("parseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResampleDaily_Mean(t *testing.T) {
	schema := models.Schema{TimeColumn: "date", Fields: []string{"pm2_5"}}
	readings := []models.Reading{
		{Timestamp: time.Date(2022, 1, 1, 1, 0, 0, 0, time.UTC), Values: []sql.NullFloat64{valid(10)}},
		{Timestamp: time.Date(2022, 1, 1, 9, 0, 0, 0, time.UTC), Values: []sql.NullFloat64{valid(20)}},
		{Timestamp: time.Date(2022, 1, 1, 23, 0, 0, 0, time.UTC), Values: []sql.NullFloat64{valid(30)}},
	}

	daily := ResampleDaily(schema, readings)
	if len(daily.Rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(daily.Rows))
	}
	if got := daily.Rows[0].Values[0]; got != valid(20) {
		t.Errorf("mean = %+v, want 20", got)
	}
}

func TestResampleDaily_FillsGapsAndSkipsMissing(t *testing.T) {
	schema := models.Schema{TimeColumn: "date", Fields: []string{"co", "pm2_5"}}
	readings := []models.Reading{
		{Timestamp: time.Date(2022, 1, 3, 5, 0, 0, 0, time.UTC), Values: []sql.NullFloat64{{}, valid(40)}},
		{Timestamp: time.Date(2022, 1, 1, 5, 0, 0, 0, time.UTC), Values: []sql.NullFloat64{valid(1), {}}},
		{Timestamp: time.Date(2022, 1, 1, 6, 0, 0, 0, time.UTC), Values: []sql.NullFloat64{valid(3), valid(12)}},
	}

	daily := ResampleDaily(schema, readings)
	want := []models.DailyRow{
		{Date: day("2022-01-01"), Values: []sql.NullFloat64{valid(2), valid(12)}},
		{Date: day("2022-01-02"), Values: []sql.NullFloat64{{}, {}}},
		{Date: day("2022-01-03"), Values: []sql.NullFloat64{{}, valid(40)}},
	}
	if diff := cmp.Diff(want, daily.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestResampleDaily_OrderIndependent(t *testing.T) {
	schema := models.Schema{TimeColumn: "date", Fields: []string{"pm2_5", "pm10"}}
	rng := rand.New(rand.NewSource(7))

	var readings []models.Reading
	start := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24*20; h++ {
		r := models.Reading{
			Timestamp: start.Add(time.Duration(h) * time.Hour),
			Values:    []sql.NullFloat64{valid(rng.Float64() * 300), valid(rng.Float64() * 500)},
		}
		if h%11 == 0 {
			r.Values[1] = sql.NullFloat64{}
		}
		readings = append(readings, r)
	}

	want := ResampleDaily(schema, readings)

	shuffled := make([]models.Reading, len(readings))
	copy(shuffled, readings)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	got := ResampleDaily(schema, shuffled)

	if len(got.Rows) != 20 {
		t.Fatalf("len(rows) = %d, want 20", len(got.Rows))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("shuffled resample differs (-want +got):\n%s", diff)
	}
}

func TestResampleDaily_ExactMeanAnyOrder(t *testing.T) {
	schema := models.Schema{Fields: []string{"pm2_5"}}
	at := func(h int, v float64) models.Reading {
		return models.Reading{
			Timestamp: time.Date(2022, 3, 1, h, 0, 0, 0, time.UTC),
			Values:    []sql.NullFloat64{valid(v)},
		}
	}

	forward := ResampleDaily(schema, []models.Reading{at(1, 0.1), at(2, 0.2), at(3, 0.3)})
	reversed := ResampleDaily(schema, []models.Reading{at(3, 0.3), at(2, 0.2), at(1, 0.1)})

	if diff := cmp.Diff(forward, reversed); diff != "" {
		t.Errorf("reversed resample differs (-forward +reversed):\n%s", diff)
	}
}

func TestResampleDaily_Empty(t *testing.T) {
	daily := ResampleDaily(models.Schema{Fields: []string{"pm2_5"}}, nil)
	if len(daily.Rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(daily.Rows))
	}
}

func TestPrepareSeries(t *testing.T) {
	daily := models.DailySeries{
		Schema: models.Schema{Fields: []string{"co", "pm2_5"}},
		Rows: []models.DailyRow{
			{Date: day("2022-01-01"), Values: []sql.NullFloat64{valid(1), valid(100)}},
			{Date: day("2022-01-02"), Values: []sql.NullFloat64{valid(2), {}}},
			{Date: day("2022-01-03"), Values: []sql.NullFloat64{{}, valid(120)}},
		},
	}

	got, err := PrepareSeries(daily, "pm2_5")
	if err != nil {
		t.Fatalf("PrepareSeries: %v", err)
	}
	want := []models.SeriesPoint{
		{Date: day("2022-01-01"), Value: 100},
		{Date: day("2022-01-03"), Value: 120},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepareSeries_AllMissing(t *testing.T) {
	daily := models.DailySeries{
		Schema: models.Schema{Fields: []string{"pm2_5"}},
		Rows: []models.DailyRow{
			{Date: day("2022-01-01"), Values: []sql.NullFloat64{{}}},
			{Date: day("2022-01-02"), Values: []sql.NullFloat64{{}}},
		},
	}
	got, err := PrepareSeries(daily, "pm2_5")
	if err != nil {
		t.Fatalf("PrepareSeries: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(series) = %d, want 0", len(got))
	}
}

func TestPrepareSeries_UnknownField(t *testing.T) {
	daily := models.DailySeries{Schema: models.Schema{Fields: []string{"pm10"}}}
	_, err := PrepareSeries(daily, "pm2_5")
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("err = %v, want ErrUnknownField", err)
	}
}

func TestValidateReading(t *testing.T) {
	tests := []struct {
		name      string
		reading   models.Reading
		wantFlags []string
	}{
		{
			name:      "valid reading - no flags",
			reading:   models.Reading{Values: []sql.NullFloat64{valid(120), valid(240)}},
			wantFlags: nil,
		},
		{
			name:      "negative concentration",
			reading:   models.Reading{Values: []sql.NullFloat64{valid(-3), valid(240)}},
			wantFlags: []string{FlagNegativeConcentration},
		},
		{
			name:      "implausibly high",
			reading:   models.Reading{Values: []sql.NullFloat64{valid(9000)}},
			wantFlags: []string{FlagImplausibleHigh},
		},
		{
			name:      "zero is valid",
			reading:   models.Reading{Values: []sql.NullFloat64{valid(0)}},
			wantFlags: nil,
		},
		{
			name:      "all missing",
			reading:   models.Reading{Values: []sql.NullFloat64{{}, {}}},
			wantFlags: []string{FlagAllMissing},
		},
		{
			name:      "multiple flags",
			reading:   models.Reading{Values: []sql.NullFloat64{valid(-1), valid(6000)}},
			wantFlags: []string{FlagNegativeConcentration, FlagImplausibleHigh},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateReading(tt.reading)
			if diff := cmp.Diff(tt.wantFlags, got); diff != "" {
				t.Errorf("flags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCountFlags(t *testing.T) {
	readings := []models.Reading{
		{Values: []sql.NullFloat64{valid(-1)}},
		{Values: []sql.NullFloat64{valid(-2)}},
		{Values: []sql.NullFloat64{{}}},
		{Values: []sql.NullFloat64{valid(50)}},
	}
	got := CountFlags(readings)
	want := map[string]int{FlagNegativeConcentration: 2, FlagAllMissing: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}
