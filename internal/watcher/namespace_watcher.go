// Package watcher discovers network namespaces as they come and go: named
// namespaces under /var/run/netns/ (via fsnotify) and container namespaces
// (via a polling Docker/Podman client), and emits a single unified stream of
// namespace lifecycle events, which the backend feeds to internal/events.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/p13marc/netimpaird/internal/logger"
	"github.com/p13marc/netimpaird/internal/netid"
)

// EventKind distinguishes namespace appearance from disappearance.
type EventKind int

const (
	NamespaceAppeared EventKind = iota
	NamespaceVanished
)

// Event is a single namespace lifecycle notification.
type Event struct {
	Kind EventKind
	Id   netid.NamespaceId
}

// netnsDir is the conventional location `ip netns add` populates.
const netnsDir = "/var/run/netns"

// NamespaceWatcher watches /var/run/netns/ for named namespaces appearing
// and disappearing. It tolerates the directory not existing yet: many hosts
// only create it the first time `ip netns add` runs, so the watcher degrades
// to watching the parent directory until /var/run/netns itself appears.
type NamespaceWatcher struct {
	events chan Event
}

// NewNamespaceWatcher constructs a watcher that has not yet started.
func NewNamespaceWatcher() *NamespaceWatcher {
	return &NamespaceWatcher{events: make(chan Event, 32)}
}

// Events returns the channel namespace lifecycle events are delivered on.
// It is closed when Run returns.
func (w *NamespaceWatcher) Events() <-chan Event {
	return w.events
}

// Run watches netnsDir until ctx is cancelled. It performs an initial scan
// (emitting NamespaceAppeared for every namespace already present) before
// entering the event loop, so a caller that starts Run and immediately
// reconciles never misses a namespace that existed before the watcher did.
func (w *NamespaceWatcher) Run(ctx context.Context) error {
	defer close(w.events)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.ErrorCtx(ctx, "create namespace fsnotify watcher", logger.Err(err))
		return err
	}
	defer fw.Close()

	watchDir, watchingTarget := w.resolveWatchTarget(fw)
	w.scanExisting(ctx, watchDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !watchingTarget {
				// We are watching the parent directory, waiting for
				// netnsDir itself to be created.
				if ev.Op&fsnotify.Create != 0 && ev.Name == netnsDir {
					if err := fw.Add(netnsDir); err == nil {
						watchingTarget = true
						w.scanExisting(ctx, netnsDir)
					}
				}
				continue
			}
			w.handleFsEvent(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.WarnCtx(ctx, "namespace fsnotify error", logger.Err(err))
		}
	}
}

// resolveWatchTarget adds netnsDir to fw if it exists, or its parent
// directory otherwise, returning which mode is active.
func (w *NamespaceWatcher) resolveWatchTarget(fw *fsnotify.Watcher) (dir string, watchingTarget bool) {
	if _, err := os.Stat(netnsDir); err == nil {
		if err := fw.Add(netnsDir); err == nil {
			return netnsDir, true
		}
	}
	parent := filepath.Dir(netnsDir)
	_ = fw.Add(parent)
	return netnsDir, false
}

func (w *NamespaceWatcher) scanExisting(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnCtx(ctx, "scan existing namespaces", logger.Err(err))
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.emit(ctx, Event{Kind: NamespaceAppeared, Id: netid.Named(e.Name())})
	}
}

func (w *NamespaceWatcher) handleFsEvent(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.emit(ctx, Event{Kind: NamespaceAppeared, Id: netid.Named(name)})
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.emit(ctx, Event{Kind: NamespaceVanished, Id: netid.Named(name)})
	}
}

func (w *NamespaceWatcher) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
