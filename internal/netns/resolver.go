// Package netns resolves a netid.NamespaceId to a live namespace handle and
// runs netlink exchanges inside it. Every entry into a non-default namespace
// happens on a dedicated, OS-thread-locked worker goroutine: the Go runtime
// only guarantees a thread's namespace membership for as long as nothing else
// schedules onto that thread, so switching namespaces on a goroutine that
// might later be rescheduled corrupts unrelated work. The worker restores the
// caller's original namespace on every exit path, including panics.
package netns

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/vishvananda/netns"

	"github.com/p13marc/netimpaird/internal/netid"
	"github.com/p13marc/netimpaird/internal/xerrors"
)

// defaultOpTimeout bounds every namespace entry and netlink exchange, so a
// wedged kernel socket or a vanished namespace file can never hang a caller
// indefinitely.
const defaultOpTimeout = 5 * time.Second

// Resolver opens namespace handles for a netid.NamespaceId and runs work
// inside them on a dedicated worker goroutine.
type Resolver struct {
	timeout time.Duration
}

// NewResolver returns a Resolver with the default operation timeout.
func NewResolver() *Resolver {
	return &Resolver{timeout: defaultOpTimeout}
}

// WithTimeout returns a copy of r using the given per-operation timeout.
func (r *Resolver) WithTimeout(d time.Duration) *Resolver {
	return &Resolver{timeout: d}
}

// Run executes fn with the OS thread's network namespace switched to id, and
// restores the original namespace before returning. For netid.Default it
// calls fn directly without opening any handle or touching thread affinity.
//
// fn receives the open netns.NsHandle so callers can bind a netlink.Handle to
// it (netlink.NewHandleAt); the handle is closed by Run after fn returns.
func (r *Resolver) Run(ctx context.Context, id netid.NamespaceId, fn func(ctx context.Context, h netns.NsHandle) error) error {
	if id.IsDefault() {
		return fn(ctx, netns.None())
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go r.runLocked(ctx, id, fn, errCh)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.IoError, "namespace operation timed out", ctx.Err())
	}
}

// runLocked does the actual thread-locked namespace switch. It always runs
// to completion even if ctx has already been cancelled by the time it gets a
// thread, so that the namespace is reliably restored and the original thread
// state is never left corrupted; Run's select above still returns promptly
// to the caller on cancellation.
func (r *Resolver) runLocked(ctx context.Context, id netid.NamespaceId, fn func(context.Context, netns.NsHandle) error, errCh chan<- error) {
	runtime.LockOSThread()
	threadClean := true
	defer func() {
		if threadClean {
			runtime.UnlockOSThread()
		}
	}()

	origin, err := netns.Get()
	if err != nil {
		errCh <- xerrors.Wrap(xerrors.IoError, "get origin namespace", err)
		return
	}
	defer origin.Close()

	target, err := openHandle(id)
	if err != nil {
		errCh <- err
		return
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		errCh <- xerrors.Wrap(xerrors.IoError, fmt.Sprintf("enter namespace %s", id), err)
		return
	}
	defer func() {
		// Best-effort restore; a failure here leaves the worker goroutine's
		// OS thread in the wrong namespace, so threadClean is cleared and
		// the thread stays locked: Go terminates a thread whose goroutine
		// exits while locked, which bounds the damage to this call.
		if err := netns.Set(origin); err != nil {
			threadClean = false
		}
	}()

	errCh <- fn(ctx, target)
}

// openHandle opens the filesystem-backed namespace handle for id. Default is
// handled by Run before this is reached.
func openHandle(id netid.NamespaceId) (netns.NsHandle, error) {
	switch {
	case id.IsNamed():
		h, err := netns.GetFromName(id.Name())
		if err != nil {
			return netns.None(), xerrors.Wrap(xerrors.NotFound, fmt.Sprintf("named namespace %q", id.Name()), err)
		}
		return h, nil
	case id.IsContainer():
		h, err := netns.GetFromPath(id.NetnsPath())
		if err != nil {
			return netns.None(), xerrors.Wrap(xerrors.InterfaceGone, fmt.Sprintf("container namespace %s", id), err)
		}
		return h, nil
	default:
		h, err := netns.GetFromPath(id.NetnsPath())
		if err != nil {
			return netns.None(), xerrors.Wrap(xerrors.NotFound, fmt.Sprintf("namespace path %q", id.NetnsPath()), err)
		}
		return h, nil
	}
}
