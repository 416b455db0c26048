// Package backend wires every component into a running netimpaird process:
// namespace discovery, the interface catalog, the TC engine, the scenario
// manager, the publisher registry, and the HTTP query API, plus graceful
// shutdown.
package backend

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/p13marc/netimpaird/internal/catalog"
	"github.com/p13marc/netimpaird/internal/config"
	"github.com/p13marc/netimpaird/internal/events"
	"github.com/p13marc/netimpaird/internal/logger"
	"github.com/p13marc/netimpaird/internal/netid"
	"github.com/p13marc/netimpaird/internal/netns"
	"github.com/p13marc/netimpaird/internal/publish"
	"github.com/p13marc/netimpaird/internal/query"
	"github.com/p13marc/netimpaird/internal/scenario"
	"github.com/p13marc/netimpaird/internal/tcengine"
	"github.com/p13marc/netimpaird/internal/watcher"
)

// Backend is the fully wired netimpaird process: every long-running
// goroutine it owns, and the HTTP server exposing the query API.
type Backend struct {
	cfg *config.Config

	catalog   *catalog.Catalog
	resolver  *netns.Resolver
	events    *events.Manager
	engine    *tcengine.Engine
	scenarios *scenario.Manager
	registry  *publish.Registry

	httpServer *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Backend from cfg without starting anything.
func New(cfg *config.Config) *Backend {
	cat := catalog.New()
	resolver := netns.NewResolver()
	reg := publish.New()
	engine := tcengine.NewEngine(resolver, cat)

	b := &Backend{
		cfg:      cfg,
		catalog:  cat,
		resolver: resolver,
		events:   events.NewManager(resolver, cat),
		engine:   engine,
		registry: reg,
	}
	b.scenarios = scenario.NewManager(engine, b.publishProgress)
	cat.OnRemove(func(key netid.Key) {
		b.scenarios.NotifyInterfaceGone(context.Background(), key)
	})

	presets, loadErrs := loadPresets(cfg.Scenarios.PresetDir)
	for _, e := range loadErrs {
		logger.Warn("scenario preset failed to load", logger.Err(e))
	}

	handler := query.NewHandler(cat, engine, b.scenarios, presets)
	b.httpServer = &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: handler.Router(),
	}

	return b
}

func loadPresets(dir string) (map[string]scenario.Definition, []error) {
	if dir == "" {
		return map[string]scenario.Definition{}, nil
	}
	return scenario.LoadDir(dir)
}

func (b *Backend) publishProgress(p scenario.Progress) {
	topic := publish.ProgressTopic(b.cfg.Backend, p.Key)
	b.registry.PublishTopic(p.Key, topic, p)
}

// Run starts every background task and the HTTP query API, blocking until
// ctx is cancelled, then drains everything within cfg.ShutdownTimeout.
func (b *Backend) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.events.Add(runCtx, netid.Default())

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runWatchers(runCtx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.scenarios.Run(runCtx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runReconcilePublisher(runCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("query API listening", logger.Backend(b.cfg.Backend))
		if err := b.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("query API listener failed", logger.Err(err))
		}
	}

	return b.shutdown()
}

func (b *Backend) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.cfg.ShutdownTimeout)
	defer cancel()

	if err := b.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("query API shutdown error", logger.Err(err))
	}

	if b.cancel != nil {
		b.cancel()
	}
	b.events.Shutdown()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out waiting for background tasks")
	}
	return nil
}

// runWatchers runs the namespace and container watchers, feeding their
// merged event stream into the event-task manager for the lifetime of ctx.
func (b *Backend) runWatchers(ctx context.Context) {
	nsWatcher := watcher.NewNamespaceWatcher()
	var containerWatcher *watcher.ContainerWatcher

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := nsWatcher.Run(ctx); err != nil {
			logger.Warn("namespace watcher stopped", logger.Err(err))
		}
	}()

	containerWatcher, err := watcher.NewContainerWatcher(ctx)
	if err != nil {
		logger.Warn("container runtime discovery unavailable", logger.Err(err))
	}
	var containerEvents <-chan watcher.Event
	if containerWatcher != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := containerWatcher.Run(ctx); err != nil {
				logger.Warn("container watcher stopped", logger.Err(err))
			}
		}()
		containerEvents = containerWatcher.Events()
	}

	merged := watcher.Merge(ctx, nsWatcher.Events(), containerEvents)
	for ev := range merged {
		switch ev.Kind {
		case watcher.NamespaceAppeared:
			b.events.Add(ctx, ev.Id)
		case watcher.NamespaceVanished:
			b.events.Remove(ev.Id)
		}
	}
}

// runReconcilePublisher periodically compares the publisher registry's key
// set against the catalog's and evicts stale publishers (C10).
func (b *Backend) runReconcilePublisher(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			live := make(map[netid.Key]bool)
			for _, key := range b.catalog.AllKeys() {
				live[key] = true
			}
			b.registry.Reconcile(live)
		}
	}
}

// Catalog exposes the interface catalog for diagnostic/CLI use.
func (b *Backend) Catalog() *catalog.Catalog { return b.catalog }
