package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/backtest-engine/internal/config"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Logging.Level)
	}
	if cfg.Batch.PeriodsPerYear != 252 {
		t.Errorf("expected 252 periods per year, got %d", cfg.Batch.PeriodsPerYear)
	}
	if cfg.Batch.TaskTimeout != 5*time.Minute {
		t.Errorf("expected 5m task timeout, got %s", cfg.Batch.TaskTimeout)
	}
	if cfg.Pool.BaseWorkers != 0 {
		t.Errorf("base workers should default to auto, got %d", cfg.Pool.BaseWorkers)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
logging:
  level: debug
batch:
  initial_capital: 250000
  task_timeout: 30s
cost:
  commission_rate: 0.001
  future_margin_rate: 0.2
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("file override not applied, level %s", cfg.Logging.Level)
	}
	if cfg.Batch.TaskTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", cfg.Batch.TaskTimeout)
	}

	bc := cfg.BatchConfig()
	if !bc.InitialCapital.Equal(decimal.NewFromInt(250_000)) {
		t.Errorf("expected capital 250000, got %s", bc.InitialCapital)
	}

	cm := cfg.CostModel()
	if !cm.CommissionRate.Equal(decimal.NewFromFloat(0.001)) {
		t.Errorf("expected commission 0.001, got %s", cm.CommissionRate)
	}
	if !cm.MarginRate(types.AssetClassFuture).Equal(decimal.NewFromFloat(0.2)) {
		t.Errorf("expected future margin 0.2, got %s", cm.MarginRate(types.AssetClassFuture))
	}
	// Untouched keys keep their defaults.
	if !cm.SlippageRate.Equal(decimal.NewFromFloat(0.0005)) {
		t.Errorf("default slippage lost, got %s", cm.SlippageRate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
