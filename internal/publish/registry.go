// Package publish implements the topic-keyed publisher registry (C10):
// catalog snapshots/deltas, per-interface netem state, and per-execution
// scenario progress are all published by topic, derived from backend name
// plus the canonical (namespace, interface) pair.
package publish

import (
	"fmt"
	"sync"

	"github.com/p13marc/netimpaird/internal/netid"
)

// Topic is the stable string key a subscriber addresses a stream by.
type Topic string

// CatalogTopic, NetemTopic, and ProgressTopic build the three topic shapes
// spec.md §6 names: catalog snapshots/deltas, per-interface netem state, and
// per-execution progress, each keyed by backend name and the canonical
// (namespace, interface) pair.
func CatalogTopic(backend string, ns netid.NamespaceId) Topic {
	return Topic(fmt.Sprintf("%s/catalog/%s", backend, ns))
}

func NetemTopic(backend string, key netid.Key) Topic {
	return Topic(fmt.Sprintf("%s/netem/%s", backend, key))
}

func ProgressTopic(backend string, key netid.Key) Topic {
	return Topic(fmt.Sprintf("%s/scenario/%s", backend, key))
}

// Publisher delivers messages for one topic to a downstream transport.
// Subscribers implement this against whatever transport the deployment
// wires in (a websocket hub, an SSE stream, a message broker); the registry
// itself knows nothing about transport mechanics.
type Publisher interface {
	Publish(msg any)
	// Close releases any transport resource the publisher holds. Called
	// once, when the registry evicts the publisher, replaces it with a new
	// Register for the same topic, or drops it in Unregister.
	Close()
}

// Registry is the topic-keyed map of live publishers, with stale eviction
// tied to catalog reconciliation: on each tick the registry is told the
// current key set, and drops (and closes) any publisher whose key is no
// longer present.
type Registry struct {
	mu    sync.RWMutex
	byKey map[netid.Key]map[Topic]Publisher
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byKey: make(map[netid.Key]map[Topic]Publisher)}
}

// Register adds pub under topic for key, replacing and closing any prior
// publisher registered at the same (key, topic).
func (r *Registry) Register(key netid.Key, topic Topic, pub Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics, ok := r.byKey[key]
	if !ok {
		topics = make(map[Topic]Publisher)
		r.byKey[key] = topics
	}
	if old, exists := topics[topic]; exists {
		old.Close()
	}
	topics[topic] = pub
}

// Publish delivers msg to every publisher registered for key, across all of
// key's topics.
func (r *Registry) Publish(key netid.Key, msg any) {
	r.mu.RLock()
	topics := r.byKey[key]
	pubs := make([]Publisher, 0, len(topics))
	for _, p := range topics {
		pubs = append(pubs, p)
	}
	r.mu.RUnlock()

	for _, p := range pubs {
		p.Publish(msg)
	}
}

// PublishTopic delivers msg to the single publisher registered for
// (key, topic), if any.
func (r *Registry) PublishTopic(key netid.Key, topic Topic, msg any) {
	r.mu.RLock()
	pub, ok := r.byKey[key][topic]
	r.mu.RUnlock()
	if ok {
		pub.Publish(msg)
	}
}

// Reconcile drops (and closes) every publisher whose key is not present in
// live, the current catalog key set. Called once per catalog reconciliation
// tick (spec.md §4.10).
func (r *Registry) Reconcile(live map[netid.Key]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, topics := range r.byKey {
		if live[key] {
			continue
		}
		for _, p := range topics {
			p.Close()
		}
		delete(r.byKey, key)
	}
}

// Unregister removes and closes every publisher registered for key.
func (r *Registry) Unregister(key netid.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byKey[key] {
		p.Close()
	}
	delete(r.byKey, key)
}
