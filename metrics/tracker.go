// Package metrics provides the daemon's in-memory metrics store: counters,
// gauges, and bounded timing histograms, with JSON and Prometheus views that
// always agree because both read the same store under the same lock.
package metrics

import (
	"sync"
	"time"
)

// defaultMaxSamples bounds each timing ring buffer.
const defaultMaxSamples = 256

// TimingStats summarizes one named timing series. Average, min, and max are
// computed lazily at export time from the retained samples.
type TimingStats struct {
	Count      int     `json:"count"`
	AvgSeconds float64 `json:"avg_seconds"`
	MinSeconds float64 `json:"min_seconds"`
	MaxSeconds float64 `json:"max_seconds"`
}

// Snapshot is a point-in-time view of all metrics, for the JSON export.
type Snapshot struct {
	Counters map[string]uint64      `json:"counters"`
	Gauges   map[string]float64     `json:"gauges"`
	Timings  map[string]TimingStats `json:"timings"`
}

// ring is a fixed-capacity buffer of recent timing samples in seconds.
type ring struct {
	samples []float64
	next    int
	full    bool
}

func (r *ring) add(v float64) {
	r.samples[r.next] = v
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) stats() TimingStats {
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	if n == 0 {
		return TimingStats{}
	}

	sum := 0.0
	min := r.samples[0]
	max := r.samples[0]
	for i := 0; i < n; i++ {
		v := r.samples[i]
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	return TimingStats{
		Count:      n,
		AvgSeconds: sum / float64(n),
		MinSeconds: min,
		MaxSeconds: max,
	}
}

// Tracker owns all metrics. Handlers never mutate metrics directly; every
// update goes through this API. Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	counters   map[string]uint64
	gauges     map[string]float64
	timings    map[string]*ring
	maxSamples int
}

// NewTracker creates an empty metrics tracker.
func NewTracker() *Tracker {
	return &Tracker{
		counters:   make(map[string]uint64),
		gauges:     make(map[string]float64),
		timings:    make(map[string]*ring),
		maxSamples: defaultMaxSamples,
	}
}

// IncrementCounter adds one to a monotonic counter.
func (t *Tracker) IncrementCounter(name string) {
	t.AddCounter(name, 1)
}

// AddCounter adds n to a monotonic counter.
func (t *Tracker) AddCounter(name string, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters[name] += n
}

// SetGauge sets a point-in-time gauge value.
func (t *Tracker) SetGauge(name string, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gauges[name] = value
}

// RecordTiming appends a duration sample to a named timing series. Only the
// most recent samples are retained.
func (t *Tracker) RecordTiming(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.timings[name]
	if !ok {
		r = &ring{samples: make([]float64, t.maxSamples)}
		t.timings[name] = r
	}
	r.add(d.Seconds())
}

// CounterValue returns the current value of a counter (0 if never touched).
func (t *Tracker) CounterValue(name string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters[name]
}

// ExportJSON returns a consistent snapshot of every metric.
func (t *Tracker) ExportJSON() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// snapshotLocked builds a Snapshot. Caller must hold t.mu.
func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{
		Counters: make(map[string]uint64, len(t.counters)),
		Gauges:   make(map[string]float64, len(t.gauges)),
		Timings:  make(map[string]TimingStats, len(t.timings)),
	}
	for name, v := range t.counters {
		snap.Counters[name] = v
	}
	for name, v := range t.gauges {
		snap.Gauges[name] = v
	}
	for name, r := range t.timings {
		snap.Timings[name] = r.stats()
	}
	return snap
}
