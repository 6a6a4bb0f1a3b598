// Package dispatch routes debounced file events to feature handlers with
// exclusive ownership: handlers are tried in a fixed priority order and the
// first claim wins.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/vaultd/feature"
	"github.com/c360studio/vaultd/health"
	"github.com/c360studio/vaultd/metrics"
	"github.com/c360studio/vaultd/watch"
)

// Counter names the router maintains.
const (
	CounterEventsProcessed = "events_processed_total"
	CounterEventsFailed    = "events_failed_total"
	CounterEventsUnclaimed = "events_unclaimed_total"
)

// Router dispatches one event to at most one handler.
type Router struct {
	handlers []feature.Handler
	tracker  *metrics.Tracker
	health   *health.Aggregator
	logger   *slog.Logger
}

// NewRouter creates a router. Handler order is the dispatch priority order;
// registration is explicit so ordering stays auditable.
func NewRouter(handlers []feature.Handler, tracker *metrics.Tracker, agg *health.Aggregator, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: handlers,
		tracker:  tracker,
		health:   agg,
		logger:   logger,
	}
}

// Handlers returns the registered handlers in priority order.
func (r *Router) Handlers() []feature.Handler {
	return r.handlers
}

// Route offers the event to handlers in priority order and invokes the first
// one that claims it. Unclaimed events are dropped. A failure inside a
// handler is contained here: converted to a failed result, logged, and
// counted, never propagated.
func (r *Router) Route(ctx context.Context, event watch.Event) {
	for _, h := range r.handlers {
		if !h.CanHandle(ctx, event) {
			continue
		}

		result := r.invoke(ctx, h, event)
		r.record(h.Name(), event.Path, result)
		return
	}

	r.tracker.IncrementCounter(CounterEventsUnclaimed)
	r.logger.Debug("No handler claimed event", "path", event.Path, "kind", event.Kind)
}

// RunScheduled invokes a timer-driven handler through the same metrics,
// health, and logging plumbing as event dispatch.
func (r *Router) RunScheduled(ctx context.Context, h feature.Scheduled) {
	start := time.Now()
	result := func() (result feature.Result) {
		defer func() {
			if p := recover(); p != nil {
				result = feature.Fail(fmt.Errorf("handler panic: %v", p))
			}
		}()
		return h.RunScheduled(ctx)
	}()
	result.Duration = time.Since(start)

	r.record(h.Name(), "", result)
}

// invoke runs Handle with panic containment and duration measurement.
func (r *Router) invoke(ctx context.Context, h feature.Handler, event watch.Event) feature.Result {
	start := time.Now()
	result := func() (result feature.Result) {
		defer func() {
			if p := recover(); p != nil {
				result = feature.Fail(fmt.Errorf("handler panic: %v", p))
			}
		}()
		return h.Handle(ctx, event)
	}()
	result.Duration = time.Since(start)
	return result
}

// record updates metrics, health, and logs for one handler invocation.
func (r *Router) record(handler, path string, result feature.Result) {
	r.tracker.RecordTiming("handler_"+handler+"_duration_seconds", result.Duration)

	switch {
	case !result.Success:
		r.tracker.IncrementCounter(CounterEventsFailed)
		r.tracker.IncrementCounter("handler_" + handler + "_failure_total")
		r.health.MarkHandlerFailure(handler)
		r.logger.Error("Handler failed",
			"handler", handler,
			"path", path,
			"duration", result.Duration,
			"error", result.Message)

	case result.Skipped:
		r.logger.Debug("Handler skipped event",
			"handler", handler,
			"path", path,
			"reason", result.Message)

	default:
		r.tracker.IncrementCounter(CounterEventsProcessed)
		r.tracker.IncrementCounter("handler_" + handler + "_success_total")
		r.health.MarkHandlerSuccess(handler)
		r.logger.Info("Handler completed",
			"handler", handler,
			"path", path,
			"duration", result.Duration,
			"message", result.Message)
	}
}
