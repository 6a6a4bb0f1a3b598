// Package health combines daemon-subsystem and per-handler health into one
// composite status for the monitoring surface.
package health

import (
	"net/http"
	"sync"
	"time"
)

// Config configures the health tracking behavior.
type Config struct {
	// FailureThreshold is the number of consecutive handler failures before
	// that handler is reported unhealthy.
	FailureThreshold int

	// WindowSize is how many recent outcomes per handler feed the failure rate.
	WindowSize int

	// FailureRateLimit marks a handler unhealthy when its windowed failure
	// rate exceeds this fraction (0-1). Only applies once the window is full.
	FailureRateLimit float64
}

// DefaultConfig returns sensible defaults for health tracking.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		WindowSize:       20,
		FailureRateLimit: 0.5,
	}
}

// HandlerHealth is the reported health of one feature handler.
type HandlerHealth struct {
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	FailureRate         float64   `json:"failure_rate"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
}

// Status is the composite health report. It is derived on every query, never
// stored; callers must rely on IsHealthy/StatusCode only, not message text.
type Status struct {
	IsHealthy     bool                     `json:"is_healthy"`
	StatusCode    int                      `json:"status_code"`
	Checks        map[string]bool          `json:"checks"`
	Handlers      map[string]HandlerHealth `json:"handlers"`
	UptimeSeconds float64                  `json:"uptime_seconds"`
}

// handlerState tracks outcomes for one handler.
type handlerState struct {
	consecutiveFailures int
	recent              []bool // true = failure; bounded at WindowSize
	lastSuccess         time.Time
	lastFailure         time.Time
}

// Probe reports whether a subsystem is currently up.
type Probe func() bool

// Aggregator tracks subsystem probes and handler outcomes.
type Aggregator struct {
	mu       sync.Mutex
	config   Config
	probes   map[string]Probe
	handlers map[string]*handlerState
	started  time.Time
}

// NewAggregator creates a health aggregator.
func NewAggregator(config Config) *Aggregator {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultConfig().WindowSize
	}
	if config.FailureRateLimit <= 0 {
		config.FailureRateLimit = DefaultConfig().FailureRateLimit
	}
	return &Aggregator{
		config:   config,
		probes:   make(map[string]Probe),
		handlers: make(map[string]*handlerState),
		started:  time.Now(),
	}
}

// RegisterCheck adds a named subsystem probe evaluated on every Status call.
func (a *Aggregator) RegisterCheck(name string, probe Probe) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probes[name] = probe
}

// MarkHandlerSuccess records a successful handler invocation.
func (a *Aggregator) MarkHandlerSuccess(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.getOrCreateLocked(name)
	state.consecutiveFailures = 0
	state.lastSuccess = time.Now()
	a.pushOutcomeLocked(state, false)
}

// MarkHandlerFailure records a failed handler invocation.
func (a *Aggregator) MarkHandlerFailure(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.getOrCreateLocked(name)
	state.consecutiveFailures++
	state.lastFailure = time.Now()
	a.pushOutcomeLocked(state, true)
}

// Status recomputes the composite health report.
func (a *Aggregator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := Status{
		Checks:        make(map[string]bool, len(a.probes)),
		Handlers:      make(map[string]HandlerHealth, len(a.handlers)),
		UptimeSeconds: time.Since(a.started).Seconds(),
	}

	healthy := true
	for name, probe := range a.probes {
		ok := probe()
		status.Checks[name] = ok
		if !ok {
			healthy = false
		}
	}

	for name, state := range a.handlers {
		h := a.handlerHealthLocked(state)
		status.Handlers[name] = h
		if !h.Healthy {
			healthy = false
		}
	}

	status.IsHealthy = healthy
	if healthy {
		status.StatusCode = http.StatusOK
	} else {
		status.StatusCode = http.StatusServiceUnavailable
	}

	return status
}

func (a *Aggregator) getOrCreateLocked(name string) *handlerState {
	if state, ok := a.handlers[name]; ok {
		return state
	}
	state := &handlerState{}
	a.handlers[name] = state
	return state
}

func (a *Aggregator) pushOutcomeLocked(state *handlerState, failed bool) {
	state.recent = append(state.recent, failed)
	if len(state.recent) > a.config.WindowSize {
		state.recent = state.recent[len(state.recent)-a.config.WindowSize:]
	}
}

func (a *Aggregator) handlerHealthLocked(state *handlerState) HandlerHealth {
	failures := 0
	for _, failed := range state.recent {
		if failed {
			failures++
		}
	}

	rate := 0.0
	if len(state.recent) > 0 {
		rate = float64(failures) / float64(len(state.recent))
	}

	healthy := state.consecutiveFailures < a.config.FailureThreshold
	if healthy && len(state.recent) >= a.config.WindowSize && rate > a.config.FailureRateLimit {
		healthy = false
	}

	return HandlerHealth{
		Healthy:             healthy,
		ConsecutiveFailures: state.consecutiveFailures,
		FailureRate:         rate,
		LastSuccess:         state.lastSuccess,
		LastFailure:         state.lastFailure,
	}
}
