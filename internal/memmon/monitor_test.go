package memmon_test

import (
	"errors"
	"testing"

	"github.com/atlas-desktop/backtest-engine/internal/memmon"
	"go.uber.org/zap"
)

type fixedSampler struct {
	pct float64
	err error
}

func (f fixedSampler) UtilizationPercent() (float64, error) { return f.pct, f.err }

func TestRecommendWorkers(t *testing.T) {
	cases := []struct {
		name string
		pct  float64
		base int
		want int
	}{
		{"idle", 10, 8, 8},
		{"just below threshold", 74.9, 8, 8},
		{"at threshold sheds one", 75, 8, 7},
		{"within first band", 84.9, 8, 7},
		{"second band sheds two", 85, 8, 6},
		{"third band sheds three", 95, 8, 5},
		{"floor holds", 99, 3, 2},
		{"pressure never raises base", 99, 1, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mon := memmon.NewWithSampler(zap.NewNop(), fixedSampler{pct: tc.pct})
			if got := mon.RecommendWorkers(tc.base); got != tc.want {
				t.Errorf("at %.1f%% with base %d: got %d, want %d", tc.pct, tc.base, got, tc.want)
			}
		})
	}
}

func TestRecommendWorkersKeepsBaseOnSampleFailure(t *testing.T) {
	mon := memmon.NewWithSampler(zap.NewNop(), fixedSampler{err: errors.New("proc unavailable")})
	if got := mon.RecommendWorkers(6); got != 6 {
		t.Errorf("failed sample should keep base 6, got %d", got)
	}
}

func TestRecommendWorkersNormalizesBase(t *testing.T) {
	mon := memmon.NewWithSampler(zap.NewNop(), fixedSampler{pct: 10})
	if got := mon.RecommendWorkers(0); got != 1 {
		t.Errorf("non-positive base should normalize to 1, got %d", got)
	}
}
