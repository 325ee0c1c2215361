package strategy_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/backtest-engine/internal/data"
	"github.com/atlas-desktop/backtest-engine/internal/marketcache"
	"github.com/atlas-desktop/backtest-engine/internal/strategy"
	"github.com/atlas-desktop/backtest-engine/internal/validator"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func syntheticView(t *testing.T, sessions int, seed int64) (types.Instrument, marketcache.View) {
	t.Helper()
	instr := types.Instrument{
		Symbol:     "ACME",
		AssetClass: types.AssetClassEquity,
		Multiplier: decimal.NewFromInt(1),
	}
	sd := data.GenerateDailySeries(instr, time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), sessions, 100, seed)
	vs, err := validator.New(zap.NewNop(), 0).Validate(sd)
	if err != nil {
		t.Fatalf("synthetic series failed validation: %v", err)
	}
	cache := marketcache.New(zap.NewNop())
	view, err := cache.Attach(cache.Create(vs))
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	return instr, view
}

func TestNewTrendValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*strategy.TrendConfig)
	}{
		{"fast below one", func(c *strategy.TrendConfig) { c.FastPeriod = 0 }},
		{"slow not above fast", func(c *strategy.TrendConfig) { c.SlowPeriod = c.FastPeriod }},
		{"zero size", func(c *strategy.TrendConfig) { c.SizePct = 0 }},
		{"oversized", func(c *strategy.TrendConfig) { c.SizePct = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := strategy.DefaultTrendConfig()
			tc.mut(&cfg)
			if _, err := strategy.NewTrend(cfg); err == nil {
				t.Error("expected config rejection")
			}
		})
	}
}

func TestTrendSignalsOverSyntheticSeries(t *testing.T) {
	instr, view := syntheticView(t, 504, 7)
	trend, err := strategy.NewTrend(strategy.DefaultTrendConfig())
	if err != nil {
		t.Fatalf("NewTrend failed: %v", err)
	}

	signals, err := trend.Signals(instr, view)
	if err != nil {
		t.Fatalf("Signals failed: %v", err)
	}
	if len(signals) == 0 {
		t.Fatal("two years of drifting data should produce crossover signals")
	}

	warmup := view.Date(strategy.DefaultTrendConfig().SlowPeriod)
	var last time.Time
	for i, sig := range signals {
		if sig.Action != types.ActionBuy && sig.Action != types.ActionSell {
			t.Errorf("signal %d has unexpected action %s", i, sig.Action)
		}
		if sig.Date.Before(warmup) {
			t.Errorf("signal %d fires at %s, inside the warmup window", i, sig.Date)
		}
		if !sig.Date.After(last) {
			t.Errorf("signal %d is not after its predecessor", i)
		}
		last = sig.Date
		if sig.Action == types.ActionBuy {
			if !sig.SuggestedSizePct.IsPositive() {
				t.Errorf("buy signal %d has no size", i)
			}
			if !sig.StopLoss.IsPositive() || !sig.TakeProfit.GreaterThan(sig.StopLoss) {
				t.Errorf("buy signal %d has inconsistent stop/take hints", i)
			}
		}
	}
}

func TestTrendNeedsWarmupBars(t *testing.T) {
	instr, view := syntheticView(t, 20, 7)
	trend, err := strategy.NewTrend(strategy.DefaultTrendConfig())
	if err != nil {
		t.Fatalf("NewTrend failed: %v", err)
	}

	signals, err := trend.Signals(instr, view)
	if err != nil {
		t.Fatalf("Signals failed: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("series shorter than the slow period should yield no signals, got %d", len(signals))
	}
}

func TestStaticProviderReturnsStream(t *testing.T) {
	stream := []types.Signal{{Symbol: "ACME", Action: types.ActionBuy}}
	provider := &strategy.Static{StreamName: "external", BySymbol: map[string][]types.Signal{"ACME": stream}}

	if provider.Name() != "external" {
		t.Errorf("unexpected name %s", provider.Name())
	}
	got, err := provider.Signals(types.Instrument{Symbol: "ACME"}, marketcache.View{})
	if err != nil {
		t.Fatalf("Signals failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the precomputed stream, got %d signals", len(got))
	}
	if got, _ := provider.Signals(types.Instrument{Symbol: "OTHER"}, marketcache.View{}); len(got) != 0 {
		t.Errorf("unknown symbol should yield no signals")
	}
}
