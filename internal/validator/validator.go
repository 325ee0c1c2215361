// Package validator checks fetched price series for completeness before
// they are handed to cache ingestion and simulation.
package validator

import (
	"fmt"
	"math"
	"time"

	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"go.uber.org/zap"
)

// DefaultMaxGap is the largest tolerated gap, in trading periods, between
// consecutive bars.
const DefaultMaxGap = 5

// GapError reports a gap longer than the configured maximum.
type GapError struct {
	Instrument string
	GapStart   time.Time
	GapLength  int
}

func (e *GapError) Error() string {
	return fmt.Sprintf("series for %s has a %d-period gap starting %s",
		e.Instrument, e.GapLength, e.GapStart.Format("2006-01-02"))
}

// QualityError reports a structural defect in the series (empty data,
// out-of-order bars, non-finite or inconsistent prices).
type QualityError struct {
	Instrument string
	BarIndex   int
	Kind       string
	Message    string
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("series for %s failed %s check at bar %d: %s",
		e.Instrument, e.Kind, e.BarIndex, e.Message)
}

// ValidatedSeries tags a series that passed validation. Only this package
// can construct one; the market cache refuses anything else.
type ValidatedSeries struct {
	data types.SeriesData
}

// Instrument returns the validated instrument.
func (vs ValidatedSeries) Instrument() types.Instrument { return vs.data.Instrument }

// Bars returns the validated bar sequence.
func (vs ValidatedSeries) Bars() []types.Bar { return vs.data.Bars }

// SourceTag returns the upstream data-source tag.
func (vs ValidatedSeries) SourceTag() string { return vs.data.SourceTag }

// Validator runs completeness and consistency checks on price series.
type Validator struct {
	logger *zap.Logger
	maxGap int
}

// New creates a validator. maxGap <= 0 selects DefaultMaxGap.
func New(logger *zap.Logger, maxGap int) *Validator {
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}
	return &Validator{logger: logger, maxGap: maxGap}
}

// Validate walks the ordered bar sequence and returns a tagged series, or
// the first defect found. The input is never mutated.
func (v *Validator) Validate(sd types.SeriesData) (ValidatedSeries, error) {
	symbol := sd.Instrument.Symbol

	if len(sd.Bars) == 0 {
		return ValidatedSeries{}, &QualityError{
			Instrument: symbol,
			Kind:       "completeness",
			Message:    "no bars",
		}
	}

	for i, bar := range sd.Bars {
		if err := checkBar(symbol, i, bar); err != nil {
			return ValidatedSeries{}, err
		}

		if i == 0 {
			continue
		}
		prev := sd.Bars[i-1]
		if !bar.Date.After(prev.Date) {
			return ValidatedSeries{}, &QualityError{
				Instrument: symbol,
				BarIndex:   i,
				Kind:       "ordering",
				Message:    "bar is not after its predecessor",
			}
		}

		gap := tradingPeriodsBetween(prev.Date, bar.Date)
		if gap > v.maxGap {
			return ValidatedSeries{}, &GapError{
				Instrument: symbol,
				GapStart:   prev.Date,
				GapLength:  gap,
			}
		}
	}

	v.logger.Debug("series validated",
		zap.String("symbol", symbol),
		zap.Int("bars", len(sd.Bars)),
		zap.String("source", sd.SourceTag),
	)

	return ValidatedSeries{data: sd}, nil
}

func checkBar(symbol string, i int, bar types.Bar) error {
	prices := [...]float64{bar.Open, bar.High, bar.Low, bar.Close}
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return &QualityError{
				Instrument: symbol,
				BarIndex:   i,
				Kind:       "price",
				Message:    "non-finite price",
			}
		}
		if p <= 0 {
			return &QualityError{
				Instrument: symbol,
				BarIndex:   i,
				Kind:       "price",
				Message:    "non-positive price",
			}
		}
	}
	if bar.High < bar.Open || bar.High < bar.Close || bar.High < bar.Low {
		return &QualityError{
			Instrument: symbol,
			BarIndex:   i,
			Kind:       "ohlc",
			Message:    "high is not the highest price",
		}
	}
	if bar.Low > bar.Open || bar.Low > bar.Close {
		return &QualityError{
			Instrument: symbol,
			BarIndex:   i,
			Kind:       "ohlc",
			Message:    "low is not the lowest price",
		}
	}
	if bar.Volume < 0 || math.IsNaN(bar.Volume) {
		return &QualityError{
			Instrument: symbol,
			BarIndex:   i,
			Kind:       "volume",
			Message:    "invalid volume",
		}
	}
	return nil
}

// tradingPeriodsBetween counts the weekdays strictly between two bar dates,
// the number of trading sessions missing from the series.
func tradingPeriodsBetween(from, to time.Time) int {
	missed := 0
	for d := from.AddDate(0, 0, 1); d.Before(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			missed++
		}
	}
	return missed
}
