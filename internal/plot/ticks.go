package plot

import (
	"math"
	"strconv"
	"time"
)

type tick struct {
	value float64
	label string
}

// niceTicks returns round-numbered ticks covering [lo, hi].
func niceTicks(lo, hi float64, target int) []tick {
	if hi <= lo || target < 2 {
		return []tick{{value: lo, label: formatNumber(lo, 1)}}
	}
	raw := (hi - lo) / float64(target-1)
	mag := math.Pow10(int(math.Floor(math.Log10(raw))))
	step := mag
	for _, m := range []float64{1, 2, 2.5, 5, 10} {
		if m*mag >= raw {
			step = m * mag
			break
		}
	}

	var ticks []tick
	for v := math.Ceil(lo/step) * step; v <= hi+step*1e-9; v += step {
		ticks = append(ticks, tick{value: v, label: formatNumber(v, step)})
	}
	return ticks
}

func formatNumber(v, step float64) string {
	if math.Abs(v) < step*1e-9 {
		v = 0
	}
	decimals := 0
	if step < 1 {
		decimals = int(math.Ceil(-math.Log10(step)))
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

// dateTicks places ticks on year boundaries for long spans and on month
// boundaries otherwise. Values are days since start.
func dateTicks(start, end time.Time) []tick {
	span := end.Sub(start).Hours() / 24
	stepMonths, layout := 1, "Jan 2006"
	switch {
	case span > 3*365:
		stepMonths, layout = 12, "2006"
	case span > 18*30:
		stepMonths = 6
	case span > 6*30:
		stepMonths = 3
	}

	t := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	if stepMonths == 12 {
		t = time.Date(start.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	var ticks []tick
	for ; !t.After(end); t = t.AddDate(0, stepMonths, 0) {
		if t.Before(start) {
			continue
		}
		ticks = append(ticks, tick{value: t.Sub(start).Hours() / 24, label: t.Format(layout)})
	}
	return ticks
}
