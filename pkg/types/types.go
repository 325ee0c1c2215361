// Package types provides shared type definitions for the backtest engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass identifies how an instrument is financed and settled.
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassFuture AssetClass = "future"
	AssetClassOption AssetClass = "option"
)

// Direction represents long or short exposure.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// SignalAction is the action a strategy requests for a given bar.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitSignalClose       ExitReason = "signal_close"
	ExitForcedLiquidation ExitReason = "forced_liquidation"
	ExitExpiryITM         ExitReason = "expiry_itm"
	ExitExpiryOTM         ExitReason = "expiry_otm"
)

// OptionRight distinguishes calls from puts.
type OptionRight string

const (
	OptionCall OptionRight = "call"
	OptionPut  OptionRight = "put"
)

// Instrument describes a tradeable instrument. Multiplier is 1 for
// equities; Expiry, Strike and Right are set only for options.
type Instrument struct {
	Symbol     string          `json:"symbol"`
	AssetClass AssetClass      `json:"assetClass"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Expiry     time.Time       `json:"expiry,omitempty"`
	Strike     decimal.Decimal `json:"strike,omitempty"`
	Right      OptionRight     `json:"right,omitempty"`
}

// Bar represents a single OHLCV candlestick.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// SeriesData is the resolved market-data fetch result handed to the engine.
// Fallback across data providers happens upstream; the engine only checks
// completeness before use.
type SeriesData struct {
	Instrument  Instrument `json:"instrument"`
	Bars        []Bar      `json:"bars"`
	SourceTag   string     `json:"sourceTag"`
	RetrievedAt time.Time  `json:"retrievedAt"`
}

// Signal is one strategy decision for an (instrument, date) pair.
// Dates without a signal are implicit HOLD.
type Signal struct {
	Symbol           string          `json:"symbol"`
	Date             time.Time       `json:"date"`
	Action           SignalAction    `json:"action"`
	SuggestedSizePct decimal.Decimal `json:"suggestedSizePct"`
	StopLoss         decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit       decimal.Decimal `json:"takeProfit,omitempty"`
}

// Position is the single open exposure a simulator tracks per instrument.
type Position struct {
	Instrument Instrument      `json:"instrument"`
	Direction  Direction       `json:"direction"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryDate  time.Time       `json:"entryDate"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	MarginUsed decimal.Decimal `json:"marginUsed"`
}

// Trade is an immutable record of one completed open-to-close cycle.
type Trade struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	AssetClass  AssetClass      `json:"assetClass"`
	Direction   Direction       `json:"direction"`
	EntryDate   time.Time       `json:"entryDate"`
	EntryPrice  decimal.Decimal `json:"entryPrice"`
	ExitDate    time.Time       `json:"exitDate"`
	ExitPrice   decimal.Decimal `json:"exitPrice"`
	Quantity    decimal.Decimal `json:"quantity"`
	RealizedPnL decimal.Decimal `json:"realizedPnl"`
	ExitReason  ExitReason      `json:"exitReason"`
}

// EquityCurvePoint is one mark-to-market snapshot of total portfolio value.
type EquityCurvePoint struct {
	Date       time.Time       `json:"date"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Cash       decimal.Decimal `json:"cash"`
}

// Metrics holds the performance statistics derived from one simulation.
// SharpeRatio is nil when period returns have zero variance; SortinoRatio
// is nil when there are no negative period returns; ProfitFactor is nil
// when there are no losing trades.
type Metrics struct {
	TotalReturn      decimal.Decimal  `json:"totalReturn"`
	AnnualizedReturn decimal.Decimal  `json:"annualizedReturn"`
	MaxDrawdown      decimal.Decimal  `json:"maxDrawdown"`
	MaxDrawdownDate  time.Time        `json:"maxDrawdownDate"`
	SharpeRatio      *decimal.Decimal `json:"sharpeRatio"`
	SortinoRatio     *decimal.Decimal `json:"sortinoRatio"`
	WinRate          decimal.Decimal  `json:"winRate"`
	ProfitFactor     *decimal.Decimal `json:"profitFactor"`
	TotalTrades      int              `json:"totalTrades"`
	WinningTrades    int              `json:"winningTrades"`
	LosingTrades     int              `json:"losingTrades"`
	AvgWin           decimal.Decimal  `json:"avgWin"`
	AvgLoss          decimal.Decimal  `json:"avgLoss"`
	LargestWin       decimal.Decimal  `json:"largestWin"`
	LargestLoss      decimal.Decimal  `json:"largestLoss"`
	Expectancy       decimal.Decimal  `json:"expectancy"`
}

// BacktestResult is the per-instrument output of one simulation run.
type BacktestResult struct {
	Instrument    Instrument         `json:"instrument"`
	Metrics       *Metrics           `json:"metrics"`
	TradeLog      []Trade            `json:"tradeLog"`
	EquityCurve   []EquityCurvePoint `json:"equityCurve"`
	DataSourceTag string             `json:"dataSourceTag"`
}

// SkippedInstrument records an instrument excluded before simulation.
type SkippedInstrument struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// TaskFailure records an instrument whose simulation failed in flight.
type TaskFailure struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// BatchStatus is the orchestrator's batch state machine.
type BatchStatus string

const (
	BatchPending     BatchStatus = "PENDING"
	BatchValidating  BatchStatus = "VALIDATING"
	BatchCaching     BatchStatus = "CACHING"
	BatchRunning     BatchStatus = "RUNNING"
	BatchAggregating BatchStatus = "AGGREGATING"
	BatchDone        BatchStatus = "DONE"
	BatchPartial     BatchStatus = "PARTIAL"
	BatchFailed      BatchStatus = "FAILED"
)

// ConsolidatedReport is the aggregated output of one batch run.
// Ranking lists instrument symbols by descending Sharpe ratio; instruments
// without a defined Sharpe sort last.
type ConsolidatedReport struct {
	BatchID     string              `json:"batchId"`
	Status      BatchStatus         `json:"status"`
	Results     []BacktestResult    `json:"results"`
	Skipped     []SkippedInstrument `json:"skipped"`
	Failures    []TaskFailure       `json:"failures"`
	Ranking     []string            `json:"ranking"`
	StartedAt   time.Time           `json:"startedAt"`
	CompletedAt time.Time           `json:"completedAt"`
	Duration    time.Duration       `json:"duration"`
}

// Progress is emitted after each task completion for UI consumption.
type Progress struct {
	Completed      int    `json:"completed"`
	Total          int    `json:"total"`
	LastInstrument string `json:"lastInstrument"`
}
