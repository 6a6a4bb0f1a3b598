// Package daemon owns the vaultd process lifecycle: it constructs and wires
// the watcher, event router, scheduler, and monitoring server, and shuts them
// down in reverse order within a bounded grace period.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/vaultd/config"
	"github.com/c360studio/vaultd/dispatch"
	"github.com/c360studio/vaultd/extract"
	"github.com/c360studio/vaultd/feature"
	"github.com/c360studio/vaultd/feature/linker"
	"github.com/c360studio/vaultd/feature/organizer"
	"github.com/c360studio/vaultd/feature/screenshot"
	"github.com/c360studio/vaultd/feature/transcript"
	"github.com/c360studio/vaultd/health"
	"github.com/c360studio/vaultd/llm"
	"github.com/c360studio/vaultd/metrics"
	"github.com/c360studio/vaultd/monitor"
	"github.com/c360studio/vaultd/note"
	"github.com/c360studio/vaultd/watch"
	"github.com/c360studio/vaultd/webfetch"
)

const (
	// eventQueueSize buffers debounced events between the watcher and the
	// routing goroutine so slow handlers never delay debounce timers.
	eventQueueSize = 256

	// shutdownGrace bounds how long Stop waits for loops to drain.
	shutdownGrace = 10 * time.Second

	// serverShutdownGrace bounds the monitoring server shutdown.
	serverShutdownGrace = 5 * time.Second
)

// EnvLLMAPIKey optionally carries the extraction endpoint's API key.
const EnvLLMAPIKey = "VAULTD_LLM_API_KEY"

// Counter names the daemon maintains.
const (
	CounterQueueDropped      = "events_queue_dropped_total"
	CounterKillSwitchDropped = "events_killswitch_dropped_total"
)

// Daemon is the lifecycle owner for all vaultd subsystems.
type Daemon struct {
	config    *config.Config
	logger    *slog.Logger
	tracker   *metrics.Tracker
	healthAgg *health.Aggregator
	watcher   *watch.Watcher
	router    *dispatch.Router
	server    *monitor.Server
	scheduled []feature.Scheduled

	queue  chan watch.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup

	routing    atomic.Bool
	scheduling atomic.Bool
	stopOnce   sync.Once
}

// New constructs a daemon from validated configuration.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("vault path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault path %s is not a directory", cfg.Vault.Path)
	}

	tracker := metrics.NewTracker()
	healthAgg := health.NewAggregator(health.DefaultConfig())
	repo := note.NewFileRepository()
	cooldowns := dispatch.NewCooldownStore()

	fetcher := webfetch.NewFetcher(
		cfg.Fetch.Timeout.Std(),
		cfg.Fetch.UserAgent,
		cfg.Fetch.MaxContentSize,
	)

	llmClient := llm.New(llm.Config{
		Endpoint:          cfg.Model.Endpoint,
		Model:             cfg.Model.Name,
		APIKey:            os.Getenv(EnvLLMAPIKey),
		Timeout:           cfg.Model.Timeout.Std(),
		RequestsPerMinute: cfg.Model.RequestsPerMinute,
	}, llm.WithLogger(logger))

	extractor := extract.NewExtractor(llmClient, extract.Config{
		MaxQuotes:      cfg.Handlers.MaxQuotes,
		MinQuoteLength: cfg.Handlers.MinQuoteLength,
	})

	organizerHandler := organizer.New(repo, organizer.Config{
		VaultRoot:    cfg.Vault.Path,
		ArchiveDir:   cfg.ArchivePath(),
		ArchiveAfter: cfg.Handlers.ArchiveAfter.Std(),
	}, logger)

	// Dispatch priority order. First claim wins, so the most specific
	// handlers come first; the organizer claims nothing and runs on the
	// scheduler only.
	handlers := []feature.Handler{
		transcript.New(repo, cooldowns, fetcher, extractor, transcript.Config{
			Cooldown: cfg.Handlers.Cooldown.Std(),
			Timeout:  cfg.Handlers.HandleTimeout.Std(),
		}, logger),
		screenshot.New(repo, cooldowns, screenshot.Config{
			AttachmentsDir: cfg.AttachmentsPath(),
			VaultRoot:      cfg.Vault.Path,
			Cooldown:       cfg.Handlers.Cooldown.Std(),
		}, logger),
		linker.New(repo, cooldowns, linker.Config{
			VaultRoot:      cfg.Vault.Path,
			MaxSuggestions: cfg.Handlers.SuggestedLinks,
			Cooldown:       cfg.Handlers.Cooldown.Std(),
		}, logger),
		organizerHandler,
	}

	router := dispatch.NewRouter(handlers, tracker, healthAgg, logger)

	watcher, err := watch.New(watch.Config{
		Root:           cfg.Vault.Path,
		Debounce:       cfg.Watch.Debounce.Std(),
		FileExtensions: cfg.Watch.FileExtensions,
		ExcludeDirs:    cfg.Watch.ExcludeDirs,
		ExcludeGlobs:   cfg.Watch.ExcludeGlobs,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	server := monitor.New(cfg.Monitor.Addr(), healthAgg, tracker, version, logger)

	d := &Daemon{
		config:    cfg,
		logger:    logger,
		tracker:   tracker,
		healthAgg: healthAgg,
		watcher:   watcher,
		router:    router,
		server:    server,
		scheduled: []feature.Scheduled{organizerHandler},
		queue:     make(chan watch.Event, eventQueueSize),
	}

	healthAgg.RegisterCheck("watcher", watcher.Running)
	healthAgg.RegisterCheck("router", d.routing.Load)
	healthAgg.RegisterCheck("scheduler", d.scheduling.Load)

	return d, nil
}

// Start brings up all subsystems: monitoring server, routing and scheduler
// loops, then the watcher.
func (d *Daemon) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.server.Start()

	d.routing.Store(true)
	d.wg.Add(1)
	go d.routeLoop(ctx)

	d.scheduling.Store(true)
	d.wg.Add(1)
	go d.scheduleLoop(ctx)

	d.watcher.RegisterCallback(d.enqueue)
	if err := d.watcher.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("start watcher: %w", err)
	}

	d.tracker.SetGauge("daemon_up", 1)
	d.logger.Info("Daemon started",
		"vault", d.config.Vault.Path,
		"monitor", d.config.Monitor.Addr())

	return nil
}

// Stop shuts subsystems down in reverse order with bounded joins. Calling
// Stop on an already-stopped daemon is a no-op.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("Daemon stopping")

		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn("Watcher stop failed", "error", err)
		}

		if d.cancel != nil {
			d.cancel()
		}

		if !waitTimeout(&d.wg, shutdownGrace) {
			d.logger.Warn("Loops did not drain within grace period")
		}
		d.routing.Store(false)
		d.scheduling.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace)
		defer cancel()
		if err := d.server.Stop(ctx); err != nil {
			d.logger.Warn("Monitoring server stop failed", "error", err)
		}

		d.tracker.SetGauge("daemon_up", 0)
		d.logger.Info("Daemon stopped")
	})
}

// Disabled reports whether the operator kill switch is engaged.
func (d *Daemon) Disabled() bool {
	_, err := os.Stat(d.config.KillSwitchPath())
	return err == nil
}

// enqueue hands a debounced event to the routing goroutine. It never blocks:
// watcher callbacks run on debounce-timer goroutines, and a full queue drops
// the event rather than stalling timers.
func (d *Daemon) enqueue(event watch.Event) {
	select {
	case d.queue <- event:
	default:
		d.tracker.IncrementCounter(CounterQueueDropped)
		d.logger.Warn("Event queue full, dropping event", "path", event.Path)
	}
}

// routeLoop is the single consumer of the event queue.
func (d *Daemon) routeLoop(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event := <-d.queue:
			d.tracker.SetGauge("watch_pending_paths", float64(d.watcher.PendingCount()))

			// The kill switch is the highest-priority check: it
			// short-circuits all processing, including per-handler gates.
			if d.Disabled() {
				d.tracker.IncrementCounter(CounterKillSwitchDropped)
				d.logger.Warn("Kill switch engaged, dropping event",
					"path", event.Path,
					"marker", d.config.KillSwitchPath())
				continue
			}

			d.router.Route(ctx, event)
		}
	}
}

// scheduleLoop drives the timer-based handlers.
func (d *Daemon) scheduleLoop(ctx context.Context) {
	defer d.wg.Done()

	interval := d.config.Handlers.ScheduleInterval.Std()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if d.Disabled() {
				d.logger.Warn("Kill switch engaged, skipping scheduled run")
				continue
			}
			for _, s := range d.scheduled {
				d.router.RunScheduled(ctx, s)
			}
		}
	}
}

// waitTimeout waits for the WaitGroup up to the given duration. Returns true
// if the group drained in time.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
