// Package strategy defines the signal-provider contract the engine
// consumes. Strategies are explicit caller-supplied values passed into the
// orchestrator; there is no process-wide registry.
package strategy

import (
	"github.com/atlas-desktop/backtest-engine/internal/marketcache"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
)

// SignalProvider produces one signal stream per instrument over a cached
// series view. Dates without a signal are implicit HOLD. Implementations
// must not retain or mutate the view and must never read bars beyond the
// index they are signalling for.
type SignalProvider interface {
	Name() string
	Signals(instr types.Instrument, view marketcache.View) ([]types.Signal, error)
}

// Static replays a precomputed signal stream, the shape an external
// signal-generation collaborator hands the engine.
type Static struct {
	StreamName string
	BySymbol   map[string][]types.Signal
}

// Name returns the stream name.
func (s *Static) Name() string {
	if s.StreamName == "" {
		return "static"
	}
	return s.StreamName
}

// Signals returns the precomputed stream for the instrument.
func (s *Static) Signals(instr types.Instrument, _ marketcache.View) ([]types.Signal, error) {
	return s.BySymbol[instr.Symbol], nil
}
