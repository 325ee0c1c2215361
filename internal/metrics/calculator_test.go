package metrics_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/backtest-engine/internal/metrics"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/shopspring/decimal"
)

func curve(values ...float64) []types.EquityCurvePoint {
	points := make([]types.EquityCurvePoint, len(values))
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		points[i] = types.EquityCurvePoint{
			Date:       d.AddDate(0, 0, i),
			TotalValue: decimal.NewFromFloat(v),
		}
	}
	return points
}

func tradesWithPnL(pnls ...float64) []types.Trade {
	trades := make([]types.Trade, len(pnls))
	for i, p := range pnls {
		trades[i] = types.Trade{Symbol: "ACME", RealizedPnL: decimal.NewFromFloat(p)}
	}
	return trades
}

func TestComputeTradeStats(t *testing.T) {
	calc := metrics.NewCalculator(0)
	m := calc.Compute(curve(1000, 1100), tradesWithPnL(100, -50, 200, -25), 0)

	if m.TotalTrades != 4 || m.WinningTrades != 2 || m.LosingTrades != 2 {
		t.Fatalf("trade counts wrong: %d/%d/%d", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	}
	if !m.WinRate.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("expected win rate 0.5, got %s", m.WinRate)
	}
	if !m.AvgWin.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected avg win 150, got %s", m.AvgWin)
	}
	if !m.AvgLoss.Equal(decimal.NewFromFloat(37.5)) {
		t.Errorf("expected avg loss 37.5, got %s", m.AvgLoss)
	}
	if m.ProfitFactor == nil || !m.ProfitFactor.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected profit factor 4, got %v", m.ProfitFactor)
	}
	if !m.LargestWin.Equal(decimal.NewFromInt(200)) || !m.LargestLoss.Equal(decimal.NewFromInt(50)) {
		t.Errorf("largest win/loss wrong: %s/%s", m.LargestWin, m.LargestLoss)
	}
	// 0.5*150 - 0.5*37.5
	if !m.Expectancy.Equal(decimal.NewFromFloat(56.25)) {
		t.Errorf("expected expectancy 56.25, got %s", m.Expectancy)
	}
}

func TestProfitFactorNilWithoutLosses(t *testing.T) {
	calc := metrics.NewCalculator(0)
	m := calc.Compute(curve(1000, 1100), tradesWithPnL(100, 50), 0)

	if m.ProfitFactor != nil {
		t.Errorf("profit factor must be nil with no losing trades, got %s", m.ProfitFactor)
	}
	if m.LosingTrades != 0 {
		t.Errorf("expected 0 losing trades, got %d", m.LosingTrades)
	}
}

func TestSharpeNilOnFlatCurve(t *testing.T) {
	calc := metrics.NewCalculator(0)
	m := calc.Compute(curve(1000, 1000, 1000, 1000), nil, 0)

	if m.SharpeRatio != nil {
		t.Errorf("zero-variance curve must yield nil Sharpe, got %s", m.SharpeRatio)
	}
	if !m.TotalReturn.IsZero() {
		t.Errorf("flat curve should have zero total return, got %s", m.TotalReturn)
	}
}

func TestSortinoNilWithoutNegativeReturns(t *testing.T) {
	calc := metrics.NewCalculator(0)
	m := calc.Compute(curve(1000, 1010, 1025, 1030), nil, 0)

	if m.SortinoRatio != nil {
		t.Errorf("monotone curve must yield nil Sortino, got %s", m.SortinoRatio)
	}
	if m.SharpeRatio == nil {
		t.Error("varying curve should yield a Sharpe ratio")
	}
}

func TestMaxDrawdown(t *testing.T) {
	calc := metrics.NewCalculator(0)
	// Peak 1200, trough 900: drawdown 25%.
	points := curve(1000, 1200, 1100, 900, 1050)
	m := calc.Compute(points, nil, 0)

	if !m.MaxDrawdown.Equal(decimal.NewFromFloat(0.25)) {
		t.Errorf("expected drawdown 0.25, got %s", m.MaxDrawdown)
	}
	if !m.MaxDrawdownDate.Equal(points[3].Date) {
		t.Errorf("expected drawdown date %s, got %s", points[3].Date, m.MaxDrawdownDate)
	}
}

func TestTotalAndAnnualizedReturn(t *testing.T) {
	calc := metrics.NewCalculator(252)
	m := calc.Compute(curve(1000, 1020, 1045, 1100), nil, 0)

	if !m.TotalReturn.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("expected total return 0.10, got %s", m.TotalReturn)
	}
	// Three periods of daily data annualize far above the raw return.
	if !m.AnnualizedReturn.GreaterThan(m.TotalReturn) {
		t.Errorf("annualized %s should exceed total %s over a short window",
			m.AnnualizedReturn, m.TotalReturn)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	calc := metrics.NewCalculator(0)
	points := curve(1000, 1040, 980, 1065, 1020, 1110)
	trades := tradesWithPnL(40, -60, 85, -45, 90)

	a := calc.Compute(points, trades, 0.02)
	b := calc.Compute(points, trades, 0.02)

	if a.SharpeRatio == nil || b.SharpeRatio == nil || !a.SharpeRatio.Equal(*b.SharpeRatio) {
		t.Errorf("Sharpe differs between identical inputs: %v vs %v", a.SharpeRatio, b.SharpeRatio)
	}
	if a.SortinoRatio == nil || b.SortinoRatio == nil || !a.SortinoRatio.Equal(*b.SortinoRatio) {
		t.Errorf("Sortino differs between identical inputs: %v vs %v", a.SortinoRatio, b.SortinoRatio)
	}
	if !a.MaxDrawdown.Equal(b.MaxDrawdown) {
		t.Errorf("drawdown differs between identical inputs")
	}
}

func TestEmptyInputs(t *testing.T) {
	calc := metrics.NewCalculator(0)
	m := calc.Compute(nil, nil, 0)

	if m.TotalTrades != 0 || !m.TotalReturn.IsZero() {
		t.Errorf("empty inputs should produce zero-valued metrics")
	}
	if m.SharpeRatio != nil || m.SortinoRatio != nil || m.ProfitFactor != nil {
		t.Errorf("empty inputs should leave ratio pointers nil")
	}
}
