// Package events runs one monitoring task per namespace: a goroutine that
// resolves the namespace, subscribes to its link events, periodically
// reconciles the full interface list, and applies both into the catalog. A
// dedicated task per namespace (rather than one multiplexed netlink
// subscription across all namespaces) keeps a single wedged or noisy
// namespace from starving event delivery for every other namespace, and
// gives each task an independent, cleanly cancellable lifecycle (spec.md
// §4.5's resolved Open Question).
package events

import (
	"context"
	"sync"
	"time"

	vnetns "github.com/vishvananda/netns"

	"github.com/p13marc/netimpaird/internal/catalog"
	"github.com/p13marc/netimpaird/internal/logger"
	"github.com/p13marc/netimpaird/internal/netid"
	"github.com/p13marc/netimpaird/internal/netlink"
	"github.com/p13marc/netimpaird/internal/netns"
)

// nsHandle is a local alias so this file reads naturally despite the
// internal/netns (namespace resolver) and vishvananda/netns (namespace fd
// type) package names colliding.
type nsHandle = vnetns.NsHandle

// defaultReconcileInterval bounds how stale the catalog can get between
// periodic reconciliation passes if incremental events are ever missed.
const defaultReconcileInterval = 30 * time.Second

// Manager owns the set of running per-namespace monitoring tasks.
type Manager struct {
	resolver *netns.Resolver
	catalog  *catalog.Catalog

	mu    sync.Mutex
	tasks map[netid.NamespaceId]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager returns a Manager that will apply discovered interface state
// into cat, resolving namespaces through resolver.
func NewManager(resolver *netns.Resolver, cat *catalog.Catalog) *Manager {
	return &Manager{
		resolver: resolver,
		catalog:  cat,
		tasks:    make(map[netid.NamespaceId]*task),
	}
}

// Add starts a monitoring task for ns if one is not already running. It is
// idempotent: calling Add twice for the same namespace is a no-op the second
// time, matching the watcher layer potentially re-announcing a namespace it
// already reported (e.g. after a reconnect to the container runtime).
func (m *Manager) Add(parent context.Context, ns netid.NamespaceId) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[ns]; exists {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}
	m.tasks[ns] = t

	go func() {
		defer close(t.done)
		m.run(ctx, ns)
	}()
}

// Remove stops the monitoring task for ns, if any, waits for it to exit, and
// drops its interfaces from the catalog.
func (m *Manager) Remove(ns netid.NamespaceId) {
	m.mu.Lock()
	t, exists := m.tasks[ns]
	if exists {
		delete(m.tasks, ns)
	}
	m.mu.Unlock()

	if !exists {
		return
	}
	t.cancel()
	<-t.done
	m.catalog.DropNamespace(ns)
}

// Shutdown stops every running task and waits for them to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	tasks := make([]*task, 0, len(m.tasks))
	for ns, t := range m.tasks {
		tasks = append(tasks, t)
		delete(m.tasks, ns)
	}
	m.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
		<-t.done
	}
}

// run is the body of one namespace's monitoring task: reconcile once, then
// alternate between consuming subscribed link events and periodic
// reconciliation until ctx is cancelled.
func (m *Manager) run(ctx context.Context, ns netid.NamespaceId) {
	lc := logger.NewLogContext(ns.String(), "")
	ctx = logger.WithContext(ctx, lc)

	if err := m.reconcile(ctx, ns); err != nil {
		logger.WarnCtx(ctx, "initial namespace reconciliation failed", logger.Err(err))
	}

	ticker := time.NewTicker(defaultReconcileInterval)
	defer ticker.Stop()

	for {
		var subErr error
		err := m.resolver.Run(ctx, ns, func(innerCtx context.Context, h nsHandle) error {
			events, errCh, err := netlink.SubscribeLinks(innerCtx, h)
			if err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if rerr := m.reconcile(ctx, ns); rerr != nil {
						logger.WarnCtx(ctx, "periodic namespace reconciliation failed", logger.Err(rerr))
					}
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					m.applyLinkEvent(ns, ev)
				case subErr = <-errCh:
					return subErr
				}
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.WarnCtx(ctx, "namespace link subscription ended, retrying", logger.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (m *Manager) applyLinkEvent(ns netid.NamespaceId, ev netlink.LinkEvent) {
	switch ev.Kind {
	case netlink.LinkAdded:
		m.catalog.ApplyAdded(ns, ev.Link)
	case netlink.LinkRemoved:
		m.catalog.ApplyRemoved(ns, ev.Link.Name)
	}
}

func (m *Manager) reconcile(ctx context.Context, ns netid.NamespaceId) error {
	var links []netlink.LinkInfo
	err := m.resolver.Run(ctx, ns, func(innerCtx context.Context, h nsHandle) error {
		conn, err := netlink.NewAt(h)
		if err != nil {
			return err
		}
		defer conn.Close()
		links, err = conn.ListLinks(innerCtx)
		return err
	})
	if err != nil {
		return err
	}
	m.catalog.Reconcile(ns, links)
	return nil
}
