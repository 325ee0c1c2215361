// Package types provides configuration types for the backtest engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostModel describes transaction costs and leverage financing. Supplied by
// the caller or loaded from configuration, never computed by the engine.
type CostModel struct {
	CommissionRate             decimal.Decimal            `json:"commissionRate"`
	SlippageRate               decimal.Decimal            `json:"slippageRate"`
	MarginRateByAssetClass     map[AssetClass]decimal.Decimal `json:"marginRateByAssetClass"`
	ForcedLiquidationThreshold decimal.Decimal            `json:"forcedLiquidationThreshold"`
	OptionPremiumRate          decimal.Decimal            `json:"optionPremiumRate"`
}

// MarginRate returns the configured margin rate for an asset class, or zero
// for unleveraged classes.
func (cm CostModel) MarginRate(ac AssetClass) decimal.Decimal {
	if r, ok := cm.MarginRateByAssetClass[ac]; ok {
		return r
	}
	return decimal.Zero
}

// DefaultCostModel returns the cost model used when none is configured.
func DefaultCostModel() CostModel {
	return CostModel{
		CommissionRate: decimal.NewFromFloat(0.0003),
		SlippageRate:   decimal.NewFromFloat(0.0005),
		MarginRateByAssetClass: map[AssetClass]decimal.Decimal{
			AssetClassFuture: decimal.NewFromFloat(0.15),
		},
		ForcedLiquidationThreshold: decimal.NewFromFloat(0.10),
		OptionPremiumRate:          decimal.NewFromFloat(0.05),
	}
}

// BatchConfig configures one orchestrated batch run.
type BatchConfig struct {
	BatchID        string          `json:"batchId"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	InitialCapital decimal.Decimal `json:"initialCapital"`
	CostModel      CostModel       `json:"costModel"`
	MaxGap         int             `json:"maxGap"`
	RiskFreeRate   float64         `json:"riskFreeRate"`
	PeriodsPerYear int             `json:"periodsPerYear"`
	TaskTimeout    time.Duration   `json:"taskTimeout"`
	BaseWorkers    int             `json:"baseWorkers"`
}

// DefaultBatchConfig returns batch defaults; zero BaseWorkers means the
// orchestrator seeds the worker count from the number of logical cores.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		InitialCapital: decimal.NewFromInt(1_000_000),
		CostModel:      DefaultCostModel(),
		MaxGap:         5,
		RiskFreeRate:   0.0,
		PeriodsPerYear: 252,
		TaskTimeout:    5 * time.Minute,
	}
}
