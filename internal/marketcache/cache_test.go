package marketcache_test

import (
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/backtest-engine/internal/marketcache"
	"github.com/atlas-desktop/backtest-engine/internal/validator"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"go.uber.org/zap"
)

func validatedSeries(t *testing.T, symbol string, n int) validator.ValidatedSeries {
	t.Helper()
	bars := make([]types.Bar, 0, n)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	px := 100.0
	for len(bars) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			bars = append(bars, types.Bar{
				Date:   d,
				Open:   px,
				High:   px + 1,
				Low:    px - 1,
				Close:  px + 0.5,
				Volume: float64(1000 + len(bars)),
			})
			px += 0.25
		}
		d = d.AddDate(0, 0, 1)
	}
	vs, err := validator.New(zap.NewNop(), 0).Validate(types.SeriesData{
		Instrument: types.Instrument{Symbol: symbol, AssetClass: types.AssetClassEquity},
		Bars:       bars,
		SourceTag:  "test",
	})
	if err != nil {
		t.Fatalf("fixture failed validation: %v", err)
	}
	return vs
}

func TestCreateAndAttachRoundTrip(t *testing.T) {
	cache := marketcache.New(zap.NewNop())
	vs := validatedSeries(t, "ACME", 10)

	handle := cache.Create(vs)
	if handle.Rows != 10 {
		t.Fatalf("expected 10 rows, got %d", handle.Rows)
	}
	if handle.Instrument.Symbol != "ACME" {
		t.Errorf("handle lost instrument: %s", handle.Instrument.Symbol)
	}

	view, err := cache.Attach(handle)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if view.Rows() != 10 {
		t.Fatalf("expected 10 rows in view, got %d", view.Rows())
	}

	bars := vs.Bars()
	for i, bar := range bars {
		if !view.Date(i).Equal(bar.Date) {
			t.Errorf("bar %d date mismatch: %s vs %s", i, view.Date(i), bar.Date)
		}
		if view.Open(i) != bar.Open || view.High(i) != bar.High ||
			view.Low(i) != bar.Low || view.Close(i) != bar.Close ||
			view.Volume(i) != bar.Volume {
			t.Errorf("bar %d values mismatch", i)
		}
	}

	closes := view.Closes()
	if len(closes) != 10 || closes[0] != bars[0].Close || closes[9] != bars[9].Close {
		t.Errorf("Closes column incorrect: %v", closes)
	}
}

func TestAttachUnknownHandle(t *testing.T) {
	cache := marketcache.New(zap.NewNop())

	_, err := cache.Attach(marketcache.SegmentHandle{Name: "missing", Instrument: types.Instrument{Symbol: "GONE"}})
	var miss *marketcache.CacheMissError
	if !errors.As(err, &miss) {
		t.Fatalf("expected CacheMissError, got %v", err)
	}
}

func TestReleaseAllInvalidatesHandles(t *testing.T) {
	cache := marketcache.New(zap.NewNop())
	handle := cache.Create(validatedSeries(t, "ACME", 5))

	if cache.Len() != 1 {
		t.Fatalf("expected 1 segment, got %d", cache.Len())
	}

	cache.ReleaseAll()

	if cache.Len() != 0 {
		t.Fatalf("expected 0 segments after release, got %d", cache.Len())
	}
	if _, err := cache.Attach(handle); err == nil {
		t.Fatal("attach after release should fail")
	}
}

func TestConcurrentAttach(t *testing.T) {
	cache := marketcache.New(zap.NewNop())
	handle := cache.Create(validatedSeries(t, "ACME", 50))

	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			view, err := cache.Attach(handle)
			if err != nil {
				t.Errorf("Attach failed: %v", err)
				return
			}
			for i := 0; i < view.Rows(); i++ {
				if view.Close(i) <= 0 {
					t.Errorf("bad close at %d", i)
				}
			}
		}()
	}
	for w := 0; w < 8; w++ {
		<-done
	}
}
