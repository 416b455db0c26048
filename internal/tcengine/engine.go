// Package tcengine applies, clears, detects, captures, and restores netem
// configuration against real interfaces. Its central piece of logic is the
// decision table in decision.go: the kernel's qdisc replace semantics only
// update the parameters a request explicitly sets, so removing a previously
// present feature (e.g. turning delay off while keeping loss on) can only be
// achieved by deleting the qdisc and re-adding it from scratch — a bare
// replace would silently leave the old delay in place.
package tcengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/p13marc/netimpaird/internal/catalog"
	"github.com/p13marc/netimpaird/internal/logger"
	"github.com/p13marc/netimpaird/internal/netem"
	"github.com/p13marc/netimpaird/internal/netid"
	"github.com/p13marc/netimpaird/internal/netlink"
	"github.com/p13marc/netimpaird/internal/netns"
	"github.com/p13marc/netimpaird/internal/xerrors"

	vnl "github.com/vishvananda/netlink"
	vnetns "github.com/vishvananda/netns"
)

// Engine serializes every TC mutation through a per-(namespace, interface)
// mutex, so two concurrent ApplyTc calls (or an ApplyTc racing a scenario
// step) against the same interface can never interleave their detect/apply
// netlink exchanges (spec.md P2, §5 concurrency model).
type Engine struct {
	resolver *netns.Resolver
	catalog  *catalog.Catalog

	locksMu sync.Mutex
	locks   map[netid.Key]*sync.Mutex
}

// NewEngine returns an Engine that resolves namespaces via resolver and
// checks interface presence against cat.
func NewEngine(resolver *netns.Resolver, cat *catalog.Catalog) *Engine {
	return &Engine{
		resolver: resolver,
		catalog:  cat,
		locks:    make(map[netid.Key]*sync.Mutex),
	}
}

func (e *Engine) lockFor(key netid.Key) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	m, ok := e.locks[key]
	if !ok {
		m = &sync.Mutex{}
		e.locks[key] = m
	}
	return m
}

// Detect returns the netem configuration currently observed on key's root
// qdisc, or an empty Config if none is present.
func (e *Engine) Detect(ctx context.Context, key netid.Key) (netem.Config, error) {
	rec, ok := e.catalog.Lookup(key)
	if !ok {
		return netem.Config{}, xerrors.New(xerrors.UnknownInterface, key.String())
	}

	var cfg netem.Config
	err := e.withConn(ctx, key.Namespace, func(innerCtx context.Context, conn netlink.Connection) error {
		n, err := conn.GetNetem(innerCtx, rec.Index)
		if err != nil {
			return err
		}
		cfg = configFromNetem(n)
		return nil
	})
	return cfg, err
}

// ApplyTc applies cfg to key's interface, serialized on key's mutex and
// following the add/replace/delete decision table.
func (e *Engine) ApplyTc(ctx context.Context, key netid.Key, cfg netem.Config) error {
	if err := cfg.Validate(); err != nil {
		return xerrors.Wrap(xerrors.InvalidScenario, "netem config validation", err)
	}

	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := e.catalog.Lookup(key)
	if !ok {
		return xerrors.New(xerrors.UnknownInterface, key.String())
	}

	lc := logger.FromContext(ctx).Clone()
	if lc == nil {
		lc = logger.NewLogContext(key.Namespace.String(), key.Interface)
	}
	ctx = logger.WithContext(ctx, lc)

	return e.withConn(ctx, key.Namespace, func(innerCtx context.Context, conn netlink.Connection) error {
		current, err := conn.GetNetem(innerCtx, rec.Index)
		if err != nil {
			return err
		}
		currentCfg := configFromNetem(current)
		action := decide(currentCfg, cfg, current != nil)

		logger.InfoCtx(ctx, "applying netem configuration",
			logger.Namespace(key.Namespace.String()), logger.Iface(key.Interface),
			logger.Action(string(action)))

		switch action {
		case actionNoop:
			return nil
		case actionAdd:
			return e.applyWithRetry(innerCtx, conn, rec.Index, cfg, false)
		case actionReplace:
			return e.applyWithRetry(innerCtx, conn, rec.Index, cfg, true)
		case actionDeleteThenAdd:
			if current != nil {
				if err := conn.ClearNetem(innerCtx, rec.Index); err != nil {
					return err
				}
			}
			return e.applyWithRetry(innerCtx, conn, rec.Index, cfg, false)
		case actionDelete:
			return conn.ClearNetem(innerCtx, rec.Index)
		default:
			return xerrors.New(xerrors.ProtocolError, fmt.Sprintf("unknown tc action %q", action))
		}
	})
}

// applyWithRetry issues the netlink call and, on a BusyOrConflict failure
// (spec.md §4.7: a root qdisc appeared between detect and add, a narrow
// TOCTOU window inherent to any detect-then-mutate protocol), retries
// exactly once using QdiscReplace regardless of the original action — a
// replace succeeds whether or not something is already there.
func (e *Engine) applyWithRetry(ctx context.Context, conn netlink.Connection, linkIndex int, cfg netem.Config, alreadyReplace bool) error {
	err := conn.ApplyNetem(ctx, linkIndex, cfg, alreadyReplace)
	if err == nil {
		return nil
	}
	if !alreadyReplace && xerrors.Is(err, xerrors.BusyOrConflict) {
		return conn.ApplyNetem(ctx, linkIndex, cfg, true)
	}
	return err
}

// ClearTc removes any netem qdisc from key's interface.
func (e *Engine) ClearTc(ctx context.Context, key netid.Key) error {
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := e.catalog.Lookup(key)
	if !ok {
		return xerrors.New(xerrors.UnknownInterface, key.String())
	}

	return e.withConn(ctx, key.Namespace, func(innerCtx context.Context, conn netlink.Connection) error {
		return conn.ClearNetem(innerCtx, rec.Index)
	})
}

// Capture snapshots key's current netem state for later restoration, used by
// the scenario executor's rollback path (spec.md §4.9).
func (e *Engine) Capture(ctx context.Context, key netid.Key) (netem.Config, error) {
	return e.Detect(ctx, key)
}

// Restore reapplies a previously captured configuration, removing the netem
// qdisc (as ClearTc does) if snapshot is empty.
func (e *Engine) Restore(ctx context.Context, key netid.Key, snapshot netem.Config) error {
	if snapshot.IsEmpty() {
		return e.ClearTc(ctx, key)
	}
	return e.ApplyTc(ctx, key, snapshot)
}

func (e *Engine) withConn(ctx context.Context, ns netid.NamespaceId, fn func(context.Context, netlink.Connection) error) error {
	return e.resolver.Run(ctx, ns, func(innerCtx context.Context, h vnetns.NsHandle) error {
		var conn netlink.Connection
		var err error
		if ns.IsDefault() {
			conn, err = netlink.NewDefault()
		} else {
			conn, err = netlink.NewAt(h)
		}
		if err != nil {
			return err
		}
		defer conn.Close()
		return fn(innerCtx, conn)
	})
}

// configFromNetem converts an observed kernel netem qdisc back into a
// netem.Config, reversing the fixed-point percentage encoding. It is used
// purely for detection/diffing; the reorder-desugar synthetic 1ms delay is
// indistinguishable from a user-specified 1ms delay at this layer, which is
// acceptable because decide() only compares feature presence and exact field
// values, never attributing desugaring intent back to detected state.
func configFromNetem(n *vnl.Netem) netem.Config {
	if n == nil {
		return netem.Config{}
	}
	var cfg netem.Config
	if n.Latency != 0 || n.Jitter != 0 || n.DelayCorr != 0 {
		cfg.Delay = &netem.Delay{
			BaseMs:      usToMs(n.Latency),
			JitterMs:    usToMs(n.Jitter),
			Correlation: float64(n.DelayCorr),
		}
	}
	if n.Loss != 0 {
		cfg.Loss = &netem.Loss{Percentage: fixedToPct(n.Loss), Correlation: float64(n.LossCorr)}
	}
	if n.Duplicate != 0 {
		cfg.Duplicate = &netem.Duplicate{Percentage: fixedToPct(n.Duplicate), Correlation: float64(n.DuplicateCorr)}
	}
	if n.ReorderProb != 0 {
		cfg.Reorder = &netem.Reorder{Percentage: fixedToPct(n.ReorderProb), Correlation: float64(n.ReorderCorr), Gap: n.Gap}
	}
	if n.CorruptProb != 0 {
		cfg.Corrupt = &netem.Corrupt{Percentage: fixedToPct(n.CorruptProb), Correlation: float64(n.CorruptCorr)}
	}
	if n.Rate != 0 {
		cfg.Rate = &netem.Rate{RateKbps: uint64(n.Rate) / 125}
	}
	return cfg
}

func usToMs(us uint32) float64 {
	return float64(us) / 1000.0
}

func fixedToPct(v uint32) float64 {
	const maxUint32 = 4294967295.0
	return float64(v) / maxUint32 * 100.0
}
