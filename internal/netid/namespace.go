// Package netid defines the identity types used as map keys throughout the
// backend: NamespaceId and the composite (NamespaceId, interface name) key.
// Every mutable piece of backend state — the interface catalog, the TC
// engine's per-interface mutex table, the scenario registry, the publisher
// registry — is keyed by these types, never by a raw string, so a named
// namespace can never collide with a container whose name happens to match.
package netid

import "fmt"

// kind discriminates the three ways a network namespace can be identified.
type kind int

const (
	kindDefault kind = iota
	kindNamed
	kindPath
)

// NamespaceId identifies a network namespace: the default namespace, a named
// namespace under /var/run/netns/, or a namespace reached by an explicit
// path (used for container namespaces at /proc/<pid>/ns/net). It holds only
// comparable fields, so NamespaceId values can be used directly as map keys
// and compared with ==.
type NamespaceId struct {
	k    kind
	name string // named namespace name, or container id (for display)
	path string // filesystem path backing the namespace, empty for Default
}

// Default returns the NamespaceId of the process's own network namespace.
func Default() NamespaceId {
	return NamespaceId{k: kindDefault}
}

// Named returns the NamespaceId of a named namespace under /var/run/netns/.
func Named(name string) NamespaceId {
	return NamespaceId{k: kindNamed, name: name, path: "/var/run/netns/" + name}
}

// Container returns the NamespaceId of a container's network namespace,
// reached via /proc/<pid>/ns/net. id is the container id (used for display,
// truncated to a short prefix by String); nsPath is the resolved path.
func Container(id, nsPath string) NamespaceId {
	return NamespaceId{k: kindPath, name: id, path: nsPath}
}

// Path returns the NamespaceId of an arbitrary namespace file handle path,
// with no associated container identity.
func Path(path string) NamespaceId {
	return NamespaceId{k: kindPath, path: path}
}

// IsDefault reports whether this is the process's own namespace.
func (n NamespaceId) IsDefault() bool { return n.k == kindDefault }

// IsNamed reports whether this is a named namespace under /var/run/netns/.
func (n NamespaceId) IsNamed() bool { return n.k == kindNamed }

// IsContainer reports whether this identifies a container namespace (a Path
// variant constructed with a container id).
func (n NamespaceId) IsContainer() bool { return n.k == kindPath && n.name != "" }

// Name returns the named-namespace name or container id, or "" for Default
// and bare Path variants.
func (n NamespaceId) Name() string { return n.name }

// NetnsPath returns the filesystem path backing this namespace, or "" for
// Default.
func (n NamespaceId) NetnsPath() string { return n.path }

// String returns the stable canonical display form used for logging, topic
// names, and the GUI: "default", the named namespace's name, or a short
// container id prefix.
func (n NamespaceId) String() string {
	switch n.k {
	case kindDefault:
		return "default"
	case kindNamed:
		return n.name
	case kindPath:
		if n.name != "" {
			return containerPrefix(n.name)
		}
		return n.path
	default:
		return fmt.Sprintf("namespace(%d)", n.k)
	}
}

// containerPrefix truncates a container id to the conventional 12-character
// display prefix, matching how container runtimes display ids.
func containerPrefix(id string) string {
	const prefixLen = 12
	if len(id) <= prefixLen {
		return id
	}
	return id[:prefixLen]
}

// Key is the composite fleet-wide identity of an interface: the namespace it
// lives in plus its name. ifindex is deliberately excluded — it is only
// unique within a single namespace and must never be used to correlate
// interfaces across namespaces.
type Key struct {
	Namespace NamespaceId
	Interface string
}

// String returns a stable display form, e.g. "default/eth0" or
// "a1b2c3d4e5f6/veth1".
func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Namespace, k.Interface)
}
