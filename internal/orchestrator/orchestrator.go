// Package orchestrator fans one simulation task per instrument across a
// bounded worker pool, isolates per-task failures, and aggregates results
// into a consolidated report.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/backtest-engine/internal/marketcache"
	"github.com/atlas-desktop/backtest-engine/internal/memmon"
	"github.com/atlas-desktop/backtest-engine/internal/metrics"
	"github.com/atlas-desktop/backtest-engine/internal/simulator"
	"github.com/atlas-desktop/backtest-engine/internal/strategy"
	"github.com/atlas-desktop/backtest-engine/internal/telemetry"
	"github.com/atlas-desktop/backtest-engine/internal/validator"
	"github.com/atlas-desktop/backtest-engine/internal/workers"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TimeoutError reports a task that exceeded its wall-clock budget.
type TimeoutError struct {
	Symbol string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("simulation of %s exceeded its %s budget", e.Symbol, e.Budget)
}

// BatchFailure is returned only when every instrument failed or was
// skipped; partial results are always preferred over no results.
type BatchFailure struct {
	BatchID string
	Total   int
}

func (e *BatchFailure) Error() string {
	return fmt.Sprintf("batch %s failed: none of %d instruments produced a result", e.BatchID, e.Total)
}

// Orchestrator runs backtest batches. One orchestrator can run batches
// sequentially; per-batch state is local to RunBatch.
type Orchestrator struct {
	logger  *zap.Logger
	monitor *memmon.Monitor

	mu       sync.RWMutex
	status   types.BatchStatus
	progress types.Progress

	progressChan chan types.Progress
}

// New creates an orchestrator. monitor may be nil, in which case the
// worker count is taken from the batch config or the logical core count.
func New(logger *zap.Logger, monitor *memmon.Monitor) *Orchestrator {
	return &Orchestrator{
		logger:       logger,
		monitor:      monitor,
		status:       types.BatchPending,
		progressChan: make(chan types.Progress, 64),
	}
}

// Status returns the current batch state.
func (o *Orchestrator) Status() types.BatchStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Progress returns the last progress snapshot.
func (o *Orchestrator) Progress() types.Progress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.progress
}

// ProgressChan exposes progress events emitted after each task completion.
func (o *Orchestrator) ProgressChan() <-chan types.Progress {
	return o.progressChan
}

type taskOutcome struct {
	symbol string
	result *types.BacktestResult
	err    error
}

// RunBatch validates every series, ingests the survivors into the shared
// cache, simulates each instrument on the pool, and aggregates per-
// instrument results in completion order. A single instrument's failure
// degrades the batch to PARTIAL, never to total failure, unless every
// instrument fails.
func (o *Orchestrator) RunBatch(
	ctx context.Context,
	cfg types.BatchConfig,
	series []types.SeriesData,
	provider strategy.SignalProvider,
) (*types.ConsolidatedReport, error) {
	if cfg.BatchID == "" {
		cfg.BatchID = uuid.New().String()
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}

	startedAt := time.Now()
	report := &types.ConsolidatedReport{
		BatchID:   cfg.BatchID,
		StartedAt: startedAt,
	}

	o.logger.Info("starting batch",
		zap.String("batchID", cfg.BatchID),
		zap.Int("instruments", len(series)),
		zap.String("strategy", provider.Name()),
	)

	// VALIDATING: instruments that fail completeness checks are excluded
	// from the run and recorded as skipped.
	o.setStatus(types.BatchValidating)
	valid := validator.New(o.logger, cfg.MaxGap)

	validated := make([]validator.ValidatedSeries, 0, len(series))
	for _, sd := range series {
		sd.Bars = clipBars(sd.Bars, cfg.StartDate, cfg.EndDate)
		vs, err := valid.Validate(sd)
		if err != nil {
			telemetry.InstrumentsSkipped.Inc()
			report.Skipped = append(report.Skipped, types.SkippedInstrument{
				Symbol: sd.Instrument.Symbol,
				Reason: err.Error(),
			})
			o.logger.Warn("instrument skipped",
				zap.String("symbol", sd.Instrument.Symbol),
				zap.Error(err),
			)
			continue
		}
		validated = append(validated, vs)
	}

	// CACHING: each validated series is written into the shared cache
	// exactly once, before any worker reads it.
	o.setStatus(types.BatchCaching)
	cache := marketcache.New(o.logger)
	defer cache.ReleaseAll()

	handles := make([]marketcache.SegmentHandle, 0, len(validated))
	for _, vs := range validated {
		handles = append(handles, cache.Create(vs))
	}

	if len(handles) == 0 {
		report.Status = types.BatchFailed
		report.CompletedAt = time.Now()
		report.Duration = report.CompletedAt.Sub(startedAt)
		o.setStatus(types.BatchFailed)
		return report, &BatchFailure{BatchID: cfg.BatchID, Total: len(series)}
	}

	// RUNNING: worker count is seeded by the logical core count and
	// adjusted by the memory monitor's advisory recommendation.
	numWorkers := o.workerCount(cfg, len(handles))
	o.setStatus(types.BatchRunning)
	o.setProgress(types.Progress{Total: len(handles)})

	pool := workers.NewPool(o.logger, workers.PoolConfig{
		Name:            "backtest-" + cfg.BatchID,
		NumWorkers:      numWorkers,
		QueueSize:       len(handles),
		ShutdownTimeout: 10 * time.Second,
	})
	pool.Start()
	defer pool.Stop()

	sim := simulator.New(o.logger, cfg.CostModel)
	calc := metrics.NewCalculator(cfg.PeriodsPerYear)

	outcomes := make(chan taskOutcome, len(handles))
	for _, handle := range handles {
		handle := handle
		err := pool.SubmitFunc(func() error {
			outcomes <- o.runTask(ctx, cfg, cache, handle, provider, sim, calc)
			return nil
		})
		if err != nil {
			outcomes <- taskOutcome{symbol: handle.Instrument.Symbol, err: err}
		}
	}

	// Collect in completion order; assembly is keyed by instrument so it
	// is commutative regardless of arrival order.
	pending := make(map[string]struct{}, len(handles))
	for _, handle := range handles {
		pending[handle.Instrument.Symbol] = struct{}{}
	}
	resultsBySymbol := make(map[string]*types.BacktestResult, len(handles))
	completed := 0
	collect := func(out taskOutcome) {
		completed++
		delete(pending, out.symbol)
		if out.err != nil {
			telemetry.TasksFailed.Inc()
			report.Failures = append(report.Failures, types.TaskFailure{
				Symbol: out.symbol,
				Error:  out.err.Error(),
			})
			o.logger.Warn("instrument task failed",
				zap.String("symbol", out.symbol),
				zap.Error(out.err),
			)
		} else {
			telemetry.TasksCompleted.Inc()
			resultsBySymbol[out.symbol] = out.result
		}
		o.emitProgress(completed, len(handles), out.symbol)
	}
	for completed < len(handles) {
		select {
		case out := <-outcomes:
			collect(out)

		case <-ctx.Done():
			// Tasks that finished before cancellation landed still have
			// their outcomes buffered; keep those, write off the rest.
		drained:
			for completed < len(handles) {
				select {
				case out := <-outcomes:
					collect(out)
				default:
					break drained
				}
			}
			for symbol := range pending {
				completed++
				telemetry.TasksFailed.Inc()
				report.Failures = append(report.Failures, types.TaskFailure{
					Symbol: symbol,
					Error:  ctx.Err().Error(),
				})
			}
			pending = map[string]struct{}{}
		}
	}

	// AGGREGATING: stable, order-independent assembly and ranking.
	o.setStatus(types.BatchAggregating)

	symbols := make([]string, 0, len(resultsBySymbol))
	for symbol := range resultsBySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		report.Results = append(report.Results, *resultsBySymbol[symbol])
	}
	report.Ranking = rankBySharpe(report.Results)

	report.CompletedAt = time.Now()
	report.Duration = report.CompletedAt.Sub(startedAt)

	switch {
	case len(report.Results) == 0:
		report.Status = types.BatchFailed
		o.setStatus(types.BatchFailed)
		return report, &BatchFailure{BatchID: cfg.BatchID, Total: len(series)}
	case len(report.Failures) > 0 || len(report.Skipped) > 0:
		report.Status = types.BatchPartial
		o.setStatus(types.BatchPartial)
	default:
		report.Status = types.BatchDone
		o.setStatus(types.BatchDone)
	}

	o.logger.Info("batch complete",
		zap.String("batchID", cfg.BatchID),
		zap.String("status", string(report.Status)),
		zap.Int("results", len(report.Results)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// runTask attaches to the instrument's cache segment, simulates it, and
// computes metrics, all under the per-task wall-clock budget. Panics and
// timeouts are converted into per-instrument failures.
func (o *Orchestrator) runTask(
	ctx context.Context,
	cfg types.BatchConfig,
	cache *marketcache.Cache,
	handle marketcache.SegmentHandle,
	provider strategy.SignalProvider,
	sim *simulator.Simulator,
	calc *metrics.Calculator,
) taskOutcome {
	symbol := handle.Instrument.Symbol
	started := time.Now()
	defer func() {
		telemetry.TaskDuration.Observe(time.Since(started).Seconds())
	}()

	taskCtx, cancel := context.WithTimeout(ctx, cfg.TaskTimeout)
	defer cancel()

	done := make(chan taskOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- taskOutcome{symbol: symbol, err: fmt.Errorf("task panic: %v", r)}
			}
		}()
		done <- o.simulate(cfg, cache, handle, provider, sim, calc)
	}()

	select {
	case out := <-done:
		return out
	case <-taskCtx.Done():
		return taskOutcome{symbol: symbol, err: &TimeoutError{Symbol: symbol, Budget: cfg.TaskTimeout}}
	}
}

func (o *Orchestrator) simulate(
	cfg types.BatchConfig,
	cache *marketcache.Cache,
	handle marketcache.SegmentHandle,
	provider strategy.SignalProvider,
	sim *simulator.Simulator,
	calc *metrics.Calculator,
) taskOutcome {
	symbol := handle.Instrument.Symbol

	view, err := cache.Attach(handle)
	if err != nil {
		return taskOutcome{symbol: symbol, err: err}
	}

	signals, err := provider.Signals(handle.Instrument, view)
	if err != nil {
		return taskOutcome{symbol: symbol, err: fmt.Errorf("signal generation: %w", err)}
	}

	result, err := sim.Run(handle.Instrument, view, signals, cfg.InitialCapital, handle.SourceTag)
	if err != nil {
		return taskOutcome{symbol: symbol, err: err}
	}
	result.Metrics = calc.Compute(result.EquityCurve, result.TradeLog, cfg.RiskFreeRate)

	return taskOutcome{symbol: symbol, result: result}
}

func (o *Orchestrator) workerCount(cfg types.BatchConfig, tasks int) int {
	base := cfg.BaseWorkers
	if base <= 0 {
		base = runtime.NumCPU()
	}
	if o.monitor != nil {
		base = o.monitor.RecommendWorkers(base)
	}
	if base > tasks {
		base = tasks
	}
	if base < 1 {
		base = 1
	}
	return base
}

func (o *Orchestrator) setStatus(status types.BatchStatus) {
	o.mu.Lock()
	o.status = status
	o.mu.Unlock()
}

func (o *Orchestrator) setProgress(p types.Progress) {
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()
}

func (o *Orchestrator) emitProgress(completed, total int, last string) {
	p := types.Progress{Completed: completed, Total: total, LastInstrument: last}
	o.setProgress(p)

	select {
	case o.progressChan <- p:
	default:
		// Consumer is behind; drop rather than block the collector.
	}
}

// clipBars restricts a series to the batch date window before validation.
// A zero bound leaves that side open; a series with no bars inside the
// window fails validation and is skipped.
func clipBars(bars []types.Bar, start, end time.Time) []types.Bar {
	if start.IsZero() && end.IsZero() {
		return bars
	}
	out := make([]types.Bar, 0, len(bars))
	for _, bar := range bars {
		if !start.IsZero() && bar.Date.Before(start) {
			continue
		}
		if !end.IsZero() && bar.Date.After(end) {
			continue
		}
		out = append(out, bar)
	}
	return out
}

// rankBySharpe orders instrument symbols by descending Sharpe ratio.
// Instruments without a defined Sharpe sort last; ties break by symbol.
func rankBySharpe(results []types.BacktestResult) []string {
	ranked := make([]types.BacktestResult, len(results))
	copy(ranked, results)

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].Metrics.SharpeRatio, ranked[j].Metrics.SharpeRatio
		switch {
		case si == nil && sj == nil:
			return ranked[i].Instrument.Symbol < ranked[j].Instrument.Symbol
		case si == nil:
			return false
		case sj == nil:
			return true
		case !si.Equal(*sj):
			return si.GreaterThan(*sj)
		default:
			return ranked[i].Instrument.Symbol < ranked[j].Instrument.Symbol
		}
	})

	symbols := make([]string, len(ranked))
	for i, r := range ranked {
		symbols[i] = r.Instrument.Symbol
	}
	return symbols
}
