// Package marketcache holds one immutable, contiguous numeric buffer per
// instrument, shared by every worker without copying. A segment is written
// exactly once at Create and is read-only for the rest of its life, so
// concurrent readers never race with a writer.
package marketcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/backtest-engine/internal/telemetry"
	"github.com/atlas-desktop/backtest-engine/internal/validator"
	"github.com/atlas-desktop/backtest-engine/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Column indices within a segment buffer.
const (
	colDate = iota
	colOpen
	colHigh
	colLow
	colClose
	colVolume
	numColumns
)

// CacheMissError reports an attach against an unknown or released segment.
type CacheMissError struct {
	Name       string
	Instrument string
}

func (e *CacheMissError) Error() string {
	return fmt.Sprintf("no cache segment %s for %s", e.Name, e.Instrument)
}

// SegmentHandle identifies a segment. It carries no payload and can be
// passed to other execution contexts freely; Attach resolves it back to
// the shared buffer without copying.
type SegmentHandle struct {
	Name       string
	Instrument types.Instrument
	SourceTag  string
	Rows       int
}

// View is a read-only window onto one segment. It exposes accessors only;
// there is no write capability at the type level.
type View struct {
	rows int
	data []float64
}

// Rows returns the number of bars in the view.
func (v View) Rows() int { return v.rows }

// Date returns the bar date at index i.
func (v View) Date(i int) time.Time {
	return time.Unix(int64(v.data[colDate*v.rows+i]), 0).UTC()
}

// Open returns the open price at index i.
func (v View) Open(i int) float64 { return v.data[colOpen*v.rows+i] }

// High returns the high price at index i.
func (v View) High(i int) float64 { return v.data[colHigh*v.rows+i] }

// Low returns the low price at index i.
func (v View) Low(i int) float64 { return v.data[colLow*v.rows+i] }

// Close returns the close price at index i.
func (v View) Close(i int) float64 { return v.data[colClose*v.rows+i] }

// Volume returns the volume at index i.
func (v View) Volume(i int) float64 { return v.data[colVolume*v.rows+i] }

// Closes returns a copy of the close column, oldest first.
func (v View) Closes() []float64 {
	out := make([]float64, v.rows)
	copy(out, v.data[colClose*v.rows:(colClose+1)*v.rows])
	return out
}

type segment struct {
	handle SegmentHandle
	data   []float64
}

// Cache owns creation, attachment and destruction of shared segments for
// one batch run.
type Cache struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	segments map[string]*segment
}

// New creates an empty cache.
func New(logger *zap.Logger) *Cache {
	return &Cache{
		logger:   logger,
		segments: make(map[string]*segment),
	}
}

// Create allocates a contiguous column-major buffer sized to the series,
// copies the data once, and returns a handle. Only validated series are
// accepted; the type system enforces it.
func (c *Cache) Create(vs validator.ValidatedSeries) SegmentHandle {
	bars := vs.Bars()
	rows := len(bars)
	data := make([]float64, rows*numColumns)
	for i, bar := range bars {
		data[colDate*rows+i] = float64(bar.Date.Unix())
		data[colOpen*rows+i] = bar.Open
		data[colHigh*rows+i] = bar.High
		data[colLow*rows+i] = bar.Low
		data[colClose*rows+i] = bar.Close
		data[colVolume*rows+i] = bar.Volume
	}

	handle := SegmentHandle{
		Name:       uuid.New().String(),
		Instrument: vs.Instrument(),
		SourceTag:  vs.SourceTag(),
		Rows:       rows,
	}

	c.mu.Lock()
	c.segments[handle.Name] = &segment{handle: handle, data: data}
	count := len(c.segments)
	c.mu.Unlock()

	telemetry.CacheSegments.Set(float64(count))
	telemetry.CacheBytes.Add(float64(len(data) * 8))

	c.logger.Debug("cache segment created",
		zap.String("segment", handle.Name),
		zap.String("symbol", handle.Instrument.Symbol),
		zap.Int("rows", rows),
	)

	return handle
}

// Attach maps an existing segment into the calling context with zero
// additional copy. Unknown or released handles fail with CacheMissError.
func (c *Cache) Attach(handle SegmentHandle) (View, error) {
	c.mu.RLock()
	seg, ok := c.segments[handle.Name]
	c.mu.RUnlock()

	if !ok {
		return View{}, &CacheMissError{
			Name:       handle.Name,
			Instrument: handle.Instrument.Symbol,
		}
	}
	return View{rows: seg.handle.Rows, data: seg.data}, nil
}

// ReleaseAll unlinks every segment created for the run. Invoked once by
// the orchestrator after all workers complete.
func (c *Cache) ReleaseAll() {
	c.mu.Lock()
	var bytes int
	for _, seg := range c.segments {
		bytes += len(seg.data) * 8
	}
	released := len(c.segments)
	c.segments = make(map[string]*segment)
	c.mu.Unlock()

	telemetry.CacheSegments.Set(0)
	telemetry.CacheBytes.Sub(float64(bytes))

	c.logger.Debug("cache released", zap.Int("segments", released))
}

// Len returns the number of live segments.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.segments)
}
