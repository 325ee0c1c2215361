package strategy

import (
	"fmt"

	"github.com/atlas-desktop/backtest-engine/internal/marketcache"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/cinar/indicator"
	"github.com/shopspring/decimal"
)

// TrendConfig parameterizes the reference trend-following strategy.
type TrendConfig struct {
	FastPeriod int
	SlowPeriod int
	RSIRich    float64 // skip entries when RSI is above this
	RSIWashed  float64 // skip exits when RSI is below this
	SizePct    float64
	StopPct    float64
	TakePct    float64
}

// DefaultTrendConfig returns the parameters used by the demo binary.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		FastPeriod: 10,
		SlowPeriod: 30,
		RSIRich:    75,
		RSIWashed:  25,
		SizePct:    0.2,
		StopPct:    0.05,
		TakePct:    0.15,
	}
}

// Trend is a moving-average crossover strategy gated by RSI, built on the
// cinar/indicator library. It emits BUY on a fast-over-slow cross and SELL
// on the reverse cross; every other bar is implicit HOLD.
type Trend struct {
	cfg TrendConfig
}

// NewTrend creates the reference trend strategy.
func NewTrend(cfg TrendConfig) (*Trend, error) {
	if cfg.FastPeriod < 1 || cfg.SlowPeriod <= cfg.FastPeriod {
		return nil, fmt.Errorf("invalid trend periods: fast %d, slow %d", cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.SizePct <= 0 || cfg.SizePct > 1 {
		return nil, fmt.Errorf("invalid size pct %v", cfg.SizePct)
	}
	return &Trend{cfg: cfg}, nil
}

// Name returns the strategy name.
func (t *Trend) Name() string { return "trend_following" }

// Signals computes the full signal stream for one instrument. The
// indicator arrays are causal: the value at index i depends only on bars
// up to and including i, so emitting a signal for bar i reads no future
// data.
func (t *Trend) Signals(instr types.Instrument, view marketcache.View) ([]types.Signal, error) {
	closes := view.Closes()
	if len(closes) <= t.cfg.SlowPeriod {
		return nil, nil
	}

	fast := indicator.Sma(t.cfg.FastPeriod, closes)
	slow := indicator.Sma(t.cfg.SlowPeriod, closes)
	_, rsi := indicator.Rsi(closes)

	sizePct := decimal.NewFromFloat(t.cfg.SizePct)
	signals := make([]types.Signal, 0, 16)

	for i := t.cfg.SlowPeriod; i < len(closes); i++ {
		crossUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
		crossDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]

		switch {
		case crossUp && rsi[i] < t.cfg.RSIRich:
			px := decimal.NewFromFloat(closes[i])
			signals = append(signals, types.Signal{
				Symbol:           instr.Symbol,
				Date:             view.Date(i),
				Action:           types.ActionBuy,
				SuggestedSizePct: sizePct,
				StopLoss:         px.Mul(decimal.NewFromFloat(1 - t.cfg.StopPct)),
				TakeProfit:       px.Mul(decimal.NewFromFloat(1 + t.cfg.TakePct)),
			})
		case crossDown && rsi[i] > t.cfg.RSIWashed:
			signals = append(signals, types.Signal{
				Symbol:           instr.Symbol,
				Date:             view.Date(i),
				Action:           types.ActionSell,
				SuggestedSizePct: sizePct,
			})
		}
	}

	return signals, nil
}
