package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/vaultd/feature"
	"github.com/c360studio/vaultd/health"
	"github.com/c360studio/vaultd/metrics"
	"github.com/c360studio/vaultd/watch"
)

// fakeHandler is a scriptable feature.Handler for router tests.
type fakeHandler struct {
	name        string
	claims      bool
	result      feature.Result
	panics      bool
	handleCalls int
	canCalls    int
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) CanHandle(ctx context.Context, event watch.Event) bool {
	f.canCalls++
	return f.claims
}

func (f *fakeHandler) Handle(ctx context.Context, event watch.Event) feature.Result {
	f.handleCalls++
	if f.panics {
		panic("handler exploded")
	}
	return f.result
}

func newTestRouter(handlers ...feature.Handler) (*Router, *metrics.Tracker, *health.Aggregator) {
	tracker := metrics.NewTracker()
	agg := health.NewAggregator(health.DefaultConfig())
	return NewRouter(handlers, tracker, agg, nil), tracker, agg
}

func testEvent() watch.Event {
	return watch.Event{Path: "/vault/note.md", Kind: watch.KindModified, ObservedAt: time.Now()}
}

func TestRouteFirstClaimWins(t *testing.T) {
	first := &fakeHandler{name: "first", claims: true, result: feature.OK("done")}
	second := &fakeHandler{name: "second", claims: true, result: feature.OK("done")}
	router, tracker, _ := newTestRouter(first, second)

	router.Route(context.Background(), testEvent())

	assert.Equal(t, 1, first.handleCalls)
	assert.Equal(t, 0, second.handleCalls)
	assert.Equal(t, 0, second.canCalls, "dispatch stops at the first claim")
	assert.Equal(t, uint64(1), tracker.CounterValue(CounterEventsProcessed))
	assert.Equal(t, uint64(1), tracker.CounterValue("handler_first_success_total"))
}

func TestRouteSkipsDecliningHandlers(t *testing.T) {
	declines := &fakeHandler{name: "declines", claims: false}
	accepts := &fakeHandler{name: "accepts", claims: true, result: feature.OK("done")}
	router, _, _ := newTestRouter(declines, accepts)

	router.Route(context.Background(), testEvent())

	assert.Equal(t, 1, declines.canCalls)
	assert.Equal(t, 0, declines.handleCalls)
	assert.Equal(t, 1, accepts.handleCalls)
}

func TestRouteUnclaimed(t *testing.T) {
	declines := &fakeHandler{name: "declines", claims: false}
	router, tracker, _ := newTestRouter(declines)

	router.Route(context.Background(), testEvent())

	assert.Equal(t, uint64(1), tracker.CounterValue(CounterEventsUnclaimed))
	assert.Equal(t, uint64(0), tracker.CounterValue(CounterEventsProcessed))
}

func TestRouteFailureUpdatesHealthAndMetrics(t *testing.T) {
	failing := &fakeHandler{name: "failing", claims: true, result: feature.Fail(errors.New("boom"))}
	router, tracker, agg := newTestRouter(failing)

	for i := 0; i < 3; i++ {
		router.Route(context.Background(), testEvent())
	}

	assert.Equal(t, uint64(3), tracker.CounterValue(CounterEventsFailed))
	assert.Equal(t, uint64(3), tracker.CounterValue("handler_failing_failure_total"))

	status := agg.Status()
	assert.False(t, status.IsHealthy, "three consecutive failures trip the threshold")
	assert.Equal(t, 3, status.Handlers["failing"].ConsecutiveFailures)
}

func TestRoutePanicIsContained(t *testing.T) {
	panics := &fakeHandler{name: "panics", claims: true, panics: true}
	router, tracker, agg := newTestRouter(panics)

	assert.NotPanics(t, func() {
		router.Route(context.Background(), testEvent())
	})

	assert.Equal(t, uint64(1), tracker.CounterValue(CounterEventsFailed))
	assert.Equal(t, 1, agg.Status().Handlers["panics"].ConsecutiveFailures)
}

func TestRouteSkippedIsNotProcessedWork(t *testing.T) {
	skips := &fakeHandler{name: "skips", claims: true, result: feature.Skip("nothing to do")}
	router, tracker, agg := newTestRouter(skips)

	router.Route(context.Background(), testEvent())

	assert.Equal(t, uint64(0), tracker.CounterValue(CounterEventsProcessed))
	assert.Equal(t, uint64(0), tracker.CounterValue(CounterEventsFailed))
	assert.True(t, agg.Status().IsHealthy)

	// The timing is still recorded.
	snap := tracker.ExportJSON()
	assert.Equal(t, 1, snap.Timings["handler_skips_duration_seconds"].Count)
}

// fakeScheduled is a scriptable feature.Scheduled.
type fakeScheduled struct {
	name   string
	result feature.Result
	panics bool
	calls  int
}

func (f *fakeScheduled) Name() string { return f.name }

func (f *fakeScheduled) RunScheduled(ctx context.Context) feature.Result {
	f.calls++
	if f.panics {
		panic("scheduled exploded")
	}
	return f.result
}

func TestRunScheduled(t *testing.T) {
	sched := &fakeScheduled{name: "organizer", result: feature.OK("archived 2 notes")}
	router, tracker, agg := newTestRouter()

	router.RunScheduled(context.Background(), sched)

	assert.Equal(t, 1, sched.calls)
	assert.Equal(t, uint64(1), tracker.CounterValue("handler_organizer_success_total"))
	assert.True(t, agg.Status().Handlers["organizer"].Healthy)
}

func TestRunScheduledPanicIsContained(t *testing.T) {
	sched := &fakeScheduled{name: "organizer", panics: true}
	router, tracker, _ := newTestRouter()

	assert.NotPanics(t, func() {
		router.RunScheduled(context.Background(), sched)
	})
	assert.Equal(t, uint64(1), tracker.CounterValue(CounterEventsFailed))
}
