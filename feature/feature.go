// Package feature defines the contract all vaultd capability handlers
// implement. Handlers are dispatched exclusively: at most one handler acts on
// any given event.
package feature

import (
	"context"
	"time"

	"github.com/c360studio/vaultd/watch"
)

// Handler is a pluggable capability: a read-only claim predicate plus a
// side-effecting action.
type Handler interface {
	// Name identifies the handler in logs, metrics, and health reports.
	Name() string

	// CanHandle reports whether this handler claims the event. It must be
	// read-only: no mutation, no side effects, safe to call repeatedly.
	CanHandle(ctx context.Context, event watch.Event) bool

	// Handle performs the capability's action for a claimed event.
	Handle(ctx context.Context, event watch.Event) Result
}

// Scheduled is implemented by handlers driven by a timer instead of file
// events (they typically always decline CanHandle).
type Scheduled interface {
	Name() string
	RunScheduled(ctx context.Context) Result
}

// Result is the transient outcome of one handler invocation. The router
// consumes it to update metrics, health, and logs.
type Result struct {
	// Success reports whether the invocation completed without error.
	Success bool

	// Skipped reports that the handler found nothing to do after claiming
	// (e.g., the note changed between CanHandle and Handle). Skipped results
	// are successes that don't count as processed work.
	Skipped bool

	// Message describes the outcome for logging.
	Message string

	// Duration is how long Handle ran. Filled in by the router.
	Duration time.Duration
}

// OK builds a successful result.
func OK(message string) Result {
	return Result{Success: true, Message: message}
}

// Skip builds a no-op result for events that stopped being eligible.
func Skip(message string) Result {
	return Result{Success: true, Skipped: true, Message: message}
}

// Fail builds a failed result from an error.
func Fail(err error) Result {
	return Result{Success: false, Message: err.Error()}
}
