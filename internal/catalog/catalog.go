// Package catalog is the authoritative map from (namespace, interface name)
// to interface state: the single source of truth every other component reads
// before touching TC, and the thing a full reconciliation pass rebuilds when
// incremental events are believed to have drifted.
package catalog

import (
	"sync"

	"github.com/p13marc/netimpaird/internal/netid"
	"github.com/p13marc/netimpaird/internal/netlink"
)

// InterfaceRecord is one interface's catalog entry.
type InterfaceRecord struct {
	Index        int
	Name         string
	OperState    string
	HardwareAddr string
	// Version increments on every write to this record, incremental or
	// reconciled, so a later write to the same key always carries a higher
	// Version than an earlier one.
	Version uint64
}

// source records how a record entered the catalog. A full reconciliation
// pass replaces the namespace's whole submap, so it overrides whatever
// incremental events wrote before it. Incremental events are applied as they
// arrive, with no check against reconciliation: a stale incremental event
// that arrives after a pass overwrites that pass's record until the next
// pass.
type source int

const (
	sourceIncremental source = iota
	sourceReconcile
)

type entry struct {
	record InterfaceRecord
	src    source
	// reconcileGen is the namespace's reconciliation generation at the time
	// this entry was written. It is recorded only; ApplyAdded and
	// ApplyRemoved do not compare it before writing.
	reconcileGen uint64
}

// Catalog holds the live interface map for every monitored namespace.
type Catalog struct {
	mu            sync.RWMutex
	byKey         map[netid.Key]*entry
	reconcileGens map[netid.NamespaceId]uint64
	nextVersion   uint64

	onRemove func(netid.Key)
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{
		byKey:         make(map[netid.Key]*entry),
		reconcileGens: make(map[netid.NamespaceId]uint64),
	}
}

// OnRemove registers fn to be called, synchronously and outside the
// catalog's own lock, whenever a key leaves the catalog — whether by an
// incremental DelLink, a reconciliation pass dropping a stale entry, or a
// whole namespace vanishing. This is the synchronous catalog-delta signal
// spec.md §4.9 requires to drive a running scenario execution straight to
// Failed{InterfaceGone} without the executor polling the catalog itself.
// Only one listener is supported; the backend wires the scenario manager in
// here at startup.
func (c *Catalog) OnRemove(fn func(netid.Key)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemove = fn
}

func (c *Catalog) notifyRemoved(keys []netid.Key) {
	c.mu.RLock()
	fn := c.onRemove
	c.mu.RUnlock()
	if fn == nil {
		return
	}
	for _, k := range keys {
		fn(k)
	}
}

// Lookup returns the current record for key, or (zero, false) if absent.
func (c *Catalog) Lookup(key netid.Key) (InterfaceRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byKey[key]
	if !ok {
		return InterfaceRecord{}, false
	}
	return e.record, true
}

// InterfacesIn returns every interface currently known in ns.
func (c *Catalog) InterfacesIn(ns netid.NamespaceId) []InterfaceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]InterfaceRecord, 0)
	for k, e := range c.byKey {
		if k.Namespace == ns {
			out = append(out, e.record)
		}
	}
	return out
}

// AllKeys returns every (namespace, interface) key currently known across
// every monitored namespace, used by the publisher registry's eviction pass
// (C10) which must consider the whole catalog, not one namespace at a time.
func (c *Catalog) AllKeys() []netid.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]netid.Key, 0, len(c.byKey))
	for k := range c.byKey {
		out = append(out, k)
	}
	return out
}

// Reconcile replaces the full set of interfaces known in ns with links,
// incrementing ns's reconciliation generation and discarding any prior
// entries in ns not present in links. Reconciliation always wins: this is
// the only path that can remove a stale entry left behind by a missed
// removal event.
func (c *Catalog) Reconcile(ns netid.NamespaceId, links []netlink.LinkInfo) {
	c.mu.Lock()

	gen := c.reconcileGens[ns] + 1
	c.reconcileGens[ns] = gen

	present := make(map[string]bool, len(links))
	for _, l := range links {
		present[l.Name] = true
		key := netid.Key{Namespace: ns, Interface: l.Name}
		c.nextVersion++
		c.byKey[key] = &entry{
			record: InterfaceRecord{
				Index:        l.Index,
				Name:         l.Name,
				OperState:    l.OperState,
				HardwareAddr: l.HardwareAddr,
				Version:      c.nextVersion,
			},
			src:          sourceReconcile,
			reconcileGen: gen,
		}
	}

	var removed []netid.Key
	for key := range c.byKey {
		if key.Namespace != ns {
			continue
		}
		if !present[key.Interface] {
			delete(c.byKey, key)
			removed = append(removed, key)
		}
	}

	c.mu.Unlock()
	c.notifyRemoved(removed)
}

// ApplyAdded applies an incremental link-appeared event for ns. It is
// accepted unconditionally: a new link cannot conflict with a prior
// reconciliation pass that simply hadn't seen it yet.
func (c *Catalog) ApplyAdded(ns netid.NamespaceId, link netlink.LinkInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := netid.Key{Namespace: ns, Interface: link.Name}
	c.nextVersion++
	c.byKey[key] = &entry{
		record: InterfaceRecord{
			Index:        link.Index,
			Name:         link.Name,
			OperState:    link.OperState,
			HardwareAddr: link.HardwareAddr,
			Version:      c.nextVersion,
		},
		src:          sourceIncremental,
		reconcileGen: c.reconcileGens[ns],
	}
}

// ApplyRemoved applies an incremental link-removed event for ns/name.
func (c *Catalog) ApplyRemoved(ns netid.NamespaceId, name string) {
	key := netid.Key{Namespace: ns, Interface: name}

	c.mu.Lock()
	_, existed := c.byKey[key]
	delete(c.byKey, key)
	c.mu.Unlock()

	if existed {
		c.notifyRemoved([]netid.Key{key})
	}
}

// DropNamespace removes every interface belonging to ns and its
// reconciliation generation counter, used when a namespace itself vanishes
// (spec.md §4.3 container/namespace teardown).
func (c *Catalog) DropNamespace(ns netid.NamespaceId) {
	c.mu.Lock()
	var removed []netid.Key
	for key := range c.byKey {
		if key.Namespace == ns {
			delete(c.byKey, key)
			removed = append(removed, key)
		}
	}
	delete(c.reconcileGens, ns)
	c.mu.Unlock()

	c.notifyRemoved(removed)
}

// Exists reports whether key is currently present in the catalog. Query
// handlers (C11) call this before delegating to the TC engine or scenario
// executor, so an unknown interface fails fast with UnknownInterface instead
// of surfacing as a netlink-layer error.
func (c *Catalog) Exists(key netid.Key) bool {
	_, ok := c.Lookup(key)
	return ok
}
