// Package main runs a demonstration batch of the parallel backtest engine
// over synthetic daily series.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atlas-desktop/backtest-engine/internal/config"
	"github.com/atlas-desktop/backtest-engine/internal/data"
	"github.com/atlas-desktop/backtest-engine/internal/logging"
	"github.com/atlas-desktop/backtest-engine/internal/memmon"
	"github.com/atlas-desktop/backtest-engine/internal/orchestrator"
	"github.com/atlas-desktop/backtest-engine/internal/strategy"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	symbolsFlag := flag.String("symbols", "ACME,GLOBEX,INITECH,UMBRELLA,STARK", "Comma-separated instrument symbols")
	sessions := flag.Int("sessions", 756, "Trading sessions per instrument (756 = three years of daily bars)")
	logLevel := flag.String("log-level", "", "Override configured log level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.New(cfg.Logging)
	defer logger.Sync()

	symbols := strings.Split(*symbolsFlag, ",")
	series := make([]types.SeriesData, 0, len(symbols))
	start := time.Now().UTC().AddDate(-3, 0, 0)
	for i, symbol := range symbols {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		instr := types.Instrument{
			Symbol:     symbol,
			AssetClass: types.AssetClassEquity,
			Multiplier: decimal.NewFromInt(1),
		}
		series = append(series, data.GenerateDailySeries(instr, start, *sessions, 50+float64(i)*25, int64(i)+1))
	}

	trend, err := strategy.NewTrend(strategy.DefaultTrendConfig())
	if err != nil {
		logger.Fatal("strategy setup failed", zap.Error(err))
	}

	orch := orchestrator.New(logger, memmon.New(logger))

	go func() {
		for p := range orch.ProgressChan() {
			logger.Info("progress",
				zap.Int("completed", p.Completed),
				zap.Int("total", p.Total),
				zap.String("last", p.LastInstrument),
			)
		}
	}()

	batchCfg := cfg.BatchConfig()
	report, err := orch.RunBatch(context.Background(), batchCfg, series, trend)
	if err != nil {
		logger.Fatal("batch failed", zap.Error(err))
	}

	for _, result := range report.Results {
		m := result.Metrics
		sharpe := "n/a"
		if m.SharpeRatio != nil {
			sharpe = m.SharpeRatio.StringFixed(2)
		}
		logger.Info("instrument result",
			zap.String("symbol", result.Instrument.Symbol),
			zap.String("totalReturn", m.TotalReturn.StringFixed(4)),
			zap.String("maxDrawdown", m.MaxDrawdown.StringFixed(4)),
			zap.String("sharpe", sharpe),
			zap.Int("trades", m.TotalTrades),
		)
	}
	for _, skipped := range report.Skipped {
		logger.Warn("instrument skipped", zap.String("symbol", skipped.Symbol), zap.String("reason", skipped.Reason))
	}
	for _, failure := range report.Failures {
		logger.Warn("instrument failed", zap.String("symbol", failure.Symbol), zap.String("error", failure.Error))
	}

	logger.Info("batch summary",
		zap.String("status", string(report.Status)),
		zap.Strings("ranking", report.Ranking),
		zap.Duration("duration", report.Duration),
	)
}
