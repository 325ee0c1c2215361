// Package memmon samples system memory pressure and recommends a worker
// count to the orchestrator. Its recommendation is advisory and read-only;
// it never mutates orchestrator or cache state.
package memmon

import (
	"github.com/atlas-desktop/backtest-engine/internal/telemetry"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const (
	// DefaultThresholdPct is the utilization above which workers are shed.
	DefaultThresholdPct = 75.0
	// DefaultStepPct is the band width per worker shed above the threshold.
	DefaultStepPct = 10.0
	// DefaultMinWorkers is the floor the recommendation never goes below.
	DefaultMinWorkers = 2
)

// Sampler reports current system memory utilization as a percentage.
// It is an interface so tests can inject fixed readings.
type Sampler interface {
	UtilizationPercent() (float64, error)
}

// SystemSampler reads utilization from the host via gopsutil.
type SystemSampler struct{}

// UtilizationPercent returns the percentage of physical memory in use.
func (SystemSampler) UtilizationPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Monitor turns memory samples into worker-count recommendations.
type Monitor struct {
	logger       *zap.Logger
	sampler      Sampler
	thresholdPct float64
	stepPct      float64
	minWorkers   int
}

// New creates a monitor with the default thresholds, sampling the host.
func New(logger *zap.Logger) *Monitor {
	return NewWithSampler(logger, SystemSampler{})
}

// NewWithSampler creates a monitor using the given sampler.
func NewWithSampler(logger *zap.Logger, sampler Sampler) *Monitor {
	return &Monitor{
		logger:       logger,
		sampler:      sampler,
		thresholdPct: DefaultThresholdPct,
		stepPct:      DefaultStepPct,
		minWorkers:   DefaultMinWorkers,
	}
}

// RecommendWorkers returns base unchanged while utilization is below the
// threshold. At or above it, one worker is shed per additional full step
// above the threshold, with a floor of minWorkers. The recommendation
// never exceeds base, and a failed sample leaves base unchanged rather
// than guessing.
func (m *Monitor) RecommendWorkers(base int) int {
	if base < 1 {
		base = 1
	}

	used, err := m.sampler.UtilizationPercent()
	if err != nil {
		m.logger.Warn("memory sample failed, keeping base workers",
			zap.Int("base", base),
			zap.Error(err),
		)
		return base
	}
	telemetry.MemoryUtilization.Set(used)

	recommended := base
	if used >= m.thresholdPct {
		shed := 1 + int((used-m.thresholdPct)/m.stepPct)
		recommended = base - shed
		if recommended < m.minWorkers {
			recommended = m.minWorkers
		}
		if recommended > base {
			recommended = base
		}
		m.logger.Info("memory pressure, shedding workers",
			zap.Float64("utilizationPct", used),
			zap.Int("base", base),
			zap.Int("recommended", recommended),
		)
	}

	telemetry.RecommendedWorkers.Set(float64(recommended))
	return recommended
}
