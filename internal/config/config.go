// Package config loads engine configuration from an optional YAML file,
// BACKTEST_-prefixed environment variables, and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty means stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// PoolConfig controls worker-pool sizing.
type PoolConfig struct {
	BaseWorkers int `mapstructure:"base_workers"` // 0 means logical core count
	QueueSize   int `mapstructure:"queue_size"`
}

// BatchDefaults seed each batch run.
type BatchDefaults struct {
	InitialCapital float64       `mapstructure:"initial_capital"`
	MaxGap         int           `mapstructure:"max_gap"`
	RiskFreeRate   float64       `mapstructure:"risk_free_rate"`
	PeriodsPerYear int           `mapstructure:"periods_per_year"`
	TaskTimeout    time.Duration `mapstructure:"task_timeout"`
}

// CostConfig is the configured transaction cost model.
type CostConfig struct {
	CommissionRate       float64 `mapstructure:"commission_rate"`
	SlippageRate         float64 `mapstructure:"slippage_rate"`
	FutureMarginRate     float64 `mapstructure:"future_margin_rate"`
	LiquidationThreshold float64 `mapstructure:"liquidation_threshold"`
	OptionPremiumRate    float64 `mapstructure:"option_premium_rate"`
}

// Config is the full engine configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Batch   BatchDefaults `mapstructure:"batch"`
	Cost    CostConfig    `mapstructure:"cost"`
}

// Load reads configuration. path may be empty, in which case only
// defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("logging.compress", true)

	v.SetDefault("pool.base_workers", 0)
	v.SetDefault("pool.queue_size", 1024)

	v.SetDefault("batch.initial_capital", 1_000_000.0)
	v.SetDefault("batch.max_gap", 5)
	v.SetDefault("batch.risk_free_rate", 0.0)
	v.SetDefault("batch.periods_per_year", 252)
	v.SetDefault("batch.task_timeout", 5*time.Minute)

	v.SetDefault("cost.commission_rate", 0.0003)
	v.SetDefault("cost.slippage_rate", 0.0005)
	v.SetDefault("cost.future_margin_rate", 0.15)
	v.SetDefault("cost.liquidation_threshold", 0.10)
	v.SetDefault("cost.option_premium_rate", 0.05)

	v.SetEnvPrefix("BACKTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// BatchConfig converts the loaded defaults into a batch configuration.
func (c *Config) BatchConfig() types.BatchConfig {
	return types.BatchConfig{
		InitialCapital: decimal.NewFromFloat(c.Batch.InitialCapital),
		CostModel:      c.CostModel(),
		MaxGap:         c.Batch.MaxGap,
		RiskFreeRate:   c.Batch.RiskFreeRate,
		PeriodsPerYear: c.Batch.PeriodsPerYear,
		TaskTimeout:    c.Batch.TaskTimeout,
		BaseWorkers:    c.Pool.BaseWorkers,
	}
}

// CostModel converts the configured rates into the engine's cost model.
func (c *Config) CostModel() types.CostModel {
	return types.CostModel{
		CommissionRate: decimal.NewFromFloat(c.Cost.CommissionRate),
		SlippageRate:   decimal.NewFromFloat(c.Cost.SlippageRate),
		MarginRateByAssetClass: map[types.AssetClass]decimal.Decimal{
			types.AssetClassFuture: decimal.NewFromFloat(c.Cost.FutureMarginRate),
		},
		ForcedLiquidationThreshold: decimal.NewFromFloat(c.Cost.LiquidationThreshold),
		OptionPremiumRate:          decimal.NewFromFloat(c.Cost.OptionPremiumRate),
	}
}
