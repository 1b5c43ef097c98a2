package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lox/aqicast/internal/forecast"
	"github.com/lox/aqicast/internal/ingest"
	"github.com/lox/aqicast/internal/models"
)

type fakeArchive struct {
	runs      []models.Run
	records   int
	snapshots int
	err       error
}

func (f *fakeArchive) StoreSnapshot(location string, payload []byte) (string, error) {
	f.snapshots++
	return "hash", nil
}

func (f *fakeArchive) InsertRun(run models.Run, records []models.CalendarRecord) error {
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	f.records = len(records)
	return nil
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

// writeCSV writes four readings a day from start for days days, skipping the
// days listed in skip.
func writeCSV(t *testing.T, start time.Time, days int, skip map[int]bool) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,co,pm2_5,pm10\n")
	for i := 0; i < days; i++ {
		if skip[i] {
			continue
		}
		d := start.AddDate(0, 0, i)
		for h := 0; h < 24; h += 6 {
			pm := 150 + 40*math.Sin(float64(i)/7) + float64(h)
			fmt.Fprintf(&b, "%s,%.1f,%.2f,%.2f\n", d.Add(time.Duration(h)*time.Hour).Format("2006-01-02 15:04:05"), 1000.0, pm, pm*1.5)
		}
	}
	path := filepath.Join(t.TempDir(), "delhi_aqi.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, input string, end time.Time) Config {
	opts := forecast.DefaultOptions()
	opts.YearlySeasonality = false
	return Config{
		Input:      input,
		TimeColumn: "date",
		Target:     "pm2_5",
		HorizonEnd: end,
		StaticDir:  filepath.Join(t.TempDir(), "static"),
		Options:    opts,
	}
}

func TestRun_CalendarCoversEveryDay(t *testing.T) {
	input := writeCSV(t, day("2023-01-01"), 90, map[int]bool{10: true})
	archive := &fakeArchive{}
	cfg := testConfig(t, input, day("2023-05-31"))

	res, err := Run(context.Background(), cfg, archive)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2023-01-01 through 2023-05-31 inclusive.
	if got, want := len(res.Records), 151; got != want {
		t.Fatalf("len(records) = %d, want %d", got, want)
	}
	if res.Run.HorizonDays != 61 {
		t.Errorf("HorizonDays = %d, want 61", res.Run.HorizonDays)
	}
	if res.Run.ObservedDays != 89 {
		t.Errorf("ObservedDays = %d, want 89", res.Run.ObservedDays)
	}
	if res.Run.ReadingsLoaded != 89*4 {
		t.Errorf("ReadingsLoaded = %d, want %d", res.Run.ReadingsLoaded, 89*4)
	}

	seen := map[string]bool{}
	for _, r := range res.Records {
		if seen[r.Date] {
			t.Fatalf("duplicate date %s", r.Date)
		}
		seen[r.Date] = true
		if math.IsNaN(r.Predicted) || math.IsInf(r.Predicted, 0) {
			t.Fatalf("%s: prediction not finite", r.Date)
		}
		if r.Date > "2023-03-31" && r.Actual != nil {
			t.Errorf("%s: future record has actual %v", r.Date, *r.Actual)
		}
	}
	if res.Records[10].Date != "2023-01-11" || res.Records[10].Actual != nil {
		t.Errorf("missing day record = %+v, want 2023-01-11 with nil actual", res.Records[10])
	}
	if res.Records[0].Actual == nil {
		t.Error("first record has nil actual")
	}
	if res.Headline.Date != "2023-05-31" {
		t.Errorf("Headline.Date = %s, want 2023-05-31", res.Headline.Date)
	}
	if res.Title != DefaultTitle {
		t.Errorf("Title = %q", res.Title)
	}

	for _, name := range []string{res.Plots.Forecast, res.Plots.Components} {
		if _, err := os.Stat(filepath.Join(cfg.StaticDir, name)); err != nil {
			t.Errorf("plot %s: %v", name, err)
		}
	}

	if len(archive.runs) != 1 || archive.records != 151 || archive.snapshots != 1 {
		t.Errorf("archive = %+v", archive)
	}
	if archive.runs[0].SourceHash != "hash" || archive.runs[0].ID != res.Run.ID {
		t.Errorf("archived run = %+v", archive.runs[0])
	}
}

func TestRun_DefaultOptionsOverMultipleYears(t *testing.T) {
	input := writeCSV(t, day("2022-01-01"), 400, nil)
	cfg := testConfig(t, input, day("2023-12-31"))
	cfg.Options = forecast.DefaultOptions()

	res, err := Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2022-01-01 through 2023-12-31 inclusive.
	if got, want := len(res.Records), 730; got != want {
		t.Fatalf("len(records) = %d, want %d", got, want)
	}
	if res.Run.ObservedDays != 400 {
		t.Errorf("ObservedDays = %d, want 400", res.Run.ObservedDays)
	}
	if res.Run.HorizonDays != 330 {
		t.Errorf("HorizonDays = %d, want 330", res.Run.HorizonDays)
	}
	if res.Records[0].Date != "2022-01-01" || res.Records[len(res.Records)-1].Date != "2023-12-31" {
		t.Errorf("records span %s to %s", res.Records[0].Date, res.Records[len(res.Records)-1].Date)
	}

	yearly := false
	for _, p := range res.Forecast {
		if math.IsNaN(p.Yhat) || math.IsInf(p.Yhat, 0) {
			t.Fatalf("%s: yhat not finite", p.Date.Format("2006-01-02"))
		}
		if p.Yearly != 0 {
			yearly = true
		}
	}
	if !yearly {
		t.Error("yearly component is zero everywhere with default options")
	}
}

func TestRun_ArchiveFailureIsNotFatal(t *testing.T) {
	input := writeCSV(t, day("2023-01-01"), 30, nil)
	archive := &fakeArchive{err: errors.New("disk full")}
	if _, err := Run(context.Background(), testConfig(t, input, day("2023-02-28")), archive); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_Failures(t *testing.T) {
	dir := t.TempDir()
	headerOnly := filepath.Join(dir, "header.csv")
	if err := os.WriteFile(headerOnly, []byte("date,co,pm2_5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	good := writeCSV(t, day("2023-01-01"), 30, nil)

	tests := []struct {
		name    string
		cfg     func(Config) Config
		wantErr error
	}{
		{"missing input", func(c Config) Config { c.Input = filepath.Join(dir, "nope.csv"); return c }, nil},
		{"header only", func(c Config) Config { c.Input = headerOnly; return c }, ingest.ErrNoReadings},
		{"unknown target", func(c Config) Config { c.Target = "pm1"; return c }, ingest.ErrUnknownField},
		{"terminal before last observation", func(c Config) Config { c.HorizonEnd = day("2023-01-15"); return c }, forecast.ErrNegativeHorizon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg(testConfig(t, good, day("2023-03-31")))
			res, err := Run(context.Background(), cfg, nil)
			if err == nil {
				t.Fatalf("Run succeeded with %d records, want error", len(res.Records))
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestYLabel(t *testing.T) {
	if got := yLabel("pm2_5"); got != "Predicted PM2.5 (µg/m³)" {
		t.Errorf("yLabel(pm2_5) = %q", got)
	}
	if got := yLabel("no2"); got != "Predicted no2" {
		t.Errorf("yLabel(no2) = %q", got)
	}
}
