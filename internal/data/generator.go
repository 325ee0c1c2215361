// Package data generates deterministic synthetic price series for the
// demo binary and tests. Real market data arrives from an external
// fetcher; the engine only ever sees the SeriesData shape.
package data

import (
	"math"
	"math/rand"
	"time"

	"github.com/atlas-desktop/backtest-engine/pkg/types"
)

// GenerateDailySeries produces a seeded random-walk daily series with
// sessions on weekdays only. The same seed always yields the same bars.
func GenerateDailySeries(instr types.Instrument, start time.Time, sessions int, startPrice float64, seed int64) types.SeriesData {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]types.Bar, 0, sessions)

	price := startPrice
	day := start.UTC().Truncate(24 * time.Hour)

	for len(bars) < sessions {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}

		open := price
		// Drifting random walk, +/-2% daily with a slight upward bias.
		change := (rng.Float64() - 0.48) * 0.04 * price
		price += change
		if price < 0.01 {
			price = 0.01
		}
		closePx := price

		high := math.Max(open, closePx) * (1 + rng.Float64()*0.01)
		low := math.Min(open, closePx) * (1 - rng.Float64()*0.01)
		volume := 1e5 + rng.Float64()*1e6

		bars = append(bars, types.Bar{
			Date:   day,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: volume,
		})
		day = day.AddDate(0, 0, 1)
	}

	return types.SeriesData{
		Instrument:  instr,
		Bars:        bars,
		SourceTag:   "synthetic",
		RetrievedAt: time.Now().UTC(),
	}
}
