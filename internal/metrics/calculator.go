// Package metrics derives performance statistics from a completed
// simulation's equity curve and trade log. The calculator is pure and
// stateless: identical inputs always produce identical outputs.
package metrics

import (
	"math"
	"time"

	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// DefaultPeriodsPerYear is the annualization constant for daily bars.
const DefaultPeriodsPerYear = 252

// Calculator computes performance metrics.
type Calculator struct {
	periodsPerYear int
}

// NewCalculator creates a calculator. periodsPerYear <= 0 selects the
// daily-bar default of 252.
func NewCalculator(periodsPerYear int) *Calculator {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	return &Calculator{periodsPerYear: periodsPerYear}
}

// Compute derives all metrics. SharpeRatio is nil when period returns have
// zero variance, SortinoRatio is nil when there are no negative returns,
// and ProfitFactor is nil (never infinity) when there are no losing trades.
func (c *Calculator) Compute(
	equityCurve []types.EquityCurvePoint,
	tradeLog []types.Trade,
	riskFreeRate float64,
) *types.Metrics {
	m := &types.Metrics{}

	c.tradeStats(m, tradeLog)

	if len(equityCurve) == 0 {
		return m
	}

	initial := equityCurve[0].TotalValue
	final := equityCurve[len(equityCurve)-1].TotalValue
	if initial.IsPositive() {
		m.TotalReturn = final.Sub(initial).Div(initial)
	}

	// Annualized return: (1 + total)^(periodsPerYear/n) - 1.
	numPeriods := len(equityCurve) - 1
	if numPeriods > 0 {
		total, _ := m.TotalReturn.Float64()
		exponent := float64(c.periodsPerYear) / float64(numPeriods)
		annualized := math.Pow(1+total, exponent) - 1
		if !math.IsNaN(annualized) && !math.IsInf(annualized, 0) {
			m.AnnualizedReturn = decimal.NewFromFloat(annualized)
		}
	}

	m.MaxDrawdown, m.MaxDrawdownDate = maxDrawdown(equityCurve)

	returns := periodReturns(equityCurve)
	if len(returns) > 1 {
		excess := mean(returns) - riskFreeRate/float64(c.periodsPerYear)
		annFactor := math.Sqrt(float64(c.periodsPerYear))

		if sd := stdDev(returns); sd > 0 {
			sharpe := decimal.NewFromFloat(excess / sd * annFactor)
			m.SharpeRatio = &sharpe
		}
		if dd := downsideDeviation(returns); dd > 0 {
			sortino := decimal.NewFromFloat(excess / dd * annFactor)
			m.SortinoRatio = &sortino
		}
	}

	return m
}

func (c *Calculator) tradeStats(m *types.Metrics, tradeLog []types.Trade) {
	var totalWins, totalLosses decimal.Decimal

	for _, trade := range tradeLog {
		pnl := trade.RealizedPnL
		switch {
		case pnl.IsPositive():
			m.WinningTrades++
			totalWins = totalWins.Add(pnl)
			if pnl.GreaterThan(m.LargestWin) {
				m.LargestWin = pnl
			}
		case pnl.IsNegative():
			m.LosingTrades++
			totalLosses = totalLosses.Add(pnl.Abs())
			if pnl.Abs().GreaterThan(m.LargestLoss) {
				m.LargestLoss = pnl.Abs()
			}
		}
	}

	m.TotalTrades = len(tradeLog)
	if m.TotalTrades == 0 {
		return
	}

	m.WinRate = decimal.NewFromInt(int64(m.WinningTrades)).
		Div(decimal.NewFromInt(int64(m.TotalTrades)))

	if m.WinningTrades > 0 {
		m.AvgWin = totalWins.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}

	if totalLosses.IsPositive() {
		pf := totalWins.Div(totalLosses)
		m.ProfitFactor = &pf
	}

	lossRate := decimal.NewFromInt(1).Sub(m.WinRate)
	m.Expectancy = m.WinRate.Mul(m.AvgWin).Sub(lossRate.Mul(m.AvgLoss))
}

// maxDrawdown is the largest peak-to-trough decline as a non-negative
// fraction of the running peak, with the date it occurred.
func maxDrawdown(curve []types.EquityCurvePoint) (decimal.Decimal, time.Time) {
	if len(curve) == 0 {
		return decimal.Zero, time.Time{}
	}

	maxDD := decimal.Zero
	var ddDate time.Time
	peak := curve[0].TotalValue

	for _, point := range curve {
		if point.TotalValue.GreaterThan(peak) {
			peak = point.TotalValue
		}
		if peak.IsPositive() {
			dd := peak.Sub(point.TotalValue).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
				ddDate = point.Date
			}
		}
	}

	return maxDD, ddDate
}

func periodReturns(curve []types.EquityCurvePoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalValue
		if !prev.IsPositive() {
			continue
		}
		r, _ := curve[i].TotalValue.Sub(prev).Div(prev).Float64()
		returns = append(returns, r)
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mu := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	return stdDev(negative)
}
