// Package netlink wraps github.com/vishvananda/netlink behind a narrow
// Connection interface: list links, list/add/replace/delete the netem qdisc,
// and subscribe to link change events (qdisc change events are not
// subscribed). Every failure is mapped to a
// xerrors.Code so callers never match on vishvananda/netlink's error strings.
package netlink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	vnl "github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/p13marc/netimpaird/internal/netem"
	"github.com/p13marc/netimpaird/internal/xerrors"
)

// defaultCallTimeout bounds a single netlink request/response exchange.
const defaultCallTimeout = 5 * time.Second

// LinkInfo is the subset of link attributes the catalog needs.
type LinkInfo struct {
	Index        int
	Name         string
	OperState    string
	HardwareAddr string
}

// Connection performs netlink operations against one namespace's handle.
// A Connection is obtained bound to a particular vishvananda/netlink.Handle
// (via netlink.NewHandleAt for non-default namespaces, or netlink.NewHandle
// for the default one) and must not be shared across namespace boundaries.
type Connection interface {
	// ListLinks returns every link currently visible in the bound namespace.
	ListLinks(ctx context.Context) ([]LinkInfo, error)

	// GetNetem returns the netem qdisc currently attached to linkIndex's
	// root, or nil if none is present. It never returns NotFound for "no
	// netem qdisc" — that case is a nil, nil return.
	GetNetem(ctx context.Context, linkIndex int) (*vnl.Netem, error)

	// ApplyNetem installs cfg as the root netem qdisc on linkIndex. replace
	// selects RTM_NEWQDISC's NLM_F_REPLACE semantics (update in place) vs a
	// bare add; the TC engine's decision table (C7) decides which to use.
	ApplyNetem(ctx context.Context, linkIndex int, cfg netem.Config, replace bool) error

	// ClearNetem removes the root netem qdisc from linkIndex. Returns nil if
	// no qdisc was present.
	ClearNetem(ctx context.Context, linkIndex int) error

	// Close releases the underlying netlink socket(s).
	Close()
}

type handleConnection struct {
	h       *vnl.Handle
	timeout time.Duration
}

// NewDefault returns a Connection bound to the calling process's own
// (default) network namespace.
func NewDefault() (Connection, error) {
	h, err := vnl.NewHandle()
	if err != nil {
		return nil, wrapOpenErr(err)
	}
	return &handleConnection{h: h, timeout: defaultCallTimeout}, nil
}

// NewAt returns a Connection bound to the namespace identified by ns, an
// already-open netns.NsHandle (as produced by netns.Resolver.Run).
func NewAt(ns netns.NsHandle) (Connection, error) {
	h, err := vnl.NewHandleAt(ns)
	if err != nil {
		return nil, wrapOpenErr(err)
	}
	return &handleConnection{h: h, timeout: defaultCallTimeout}, nil
}

func wrapOpenErr(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return xerrors.Wrap(xerrors.PermissionDenied, "open netlink handle", err)
	}
	return xerrors.Wrap(xerrors.IoError, "open netlink handle", err)
}

func (c *handleConnection) Close() {
	c.h.Close()
}

func (c *handleConnection) ListLinks(ctx context.Context) ([]LinkInfo, error) {
	type result struct {
		links []LinkInfo
		err   error
	}
	out := make(chan result, 1)
	go func() {
		links, err := c.h.LinkList()
		if err != nil {
			out <- result{err: classifyErr(err, "list links")}
			return
		}
		infos := make([]LinkInfo, 0, len(links))
		for _, l := range links {
			attrs := l.Attrs()
			hw := ""
			if attrs.HardwareAddr != nil {
				hw = attrs.HardwareAddr.String()
			}
			infos = append(infos, LinkInfo{
				Index:        attrs.Index,
				Name:         attrs.Name,
				OperState:    attrs.OperState.String(),
				HardwareAddr: hw,
			})
		}
		out <- result{links: infos}
	}()

	select {
	case r := <-out:
		return r.links, r.err
	case <-ctx.Done():
		return nil, xerrors.Wrap(xerrors.IoError, "list links timed out", ctx.Err())
	}
}

func (c *handleConnection) GetNetem(ctx context.Context, linkIndex int) (*vnl.Netem, error) {
	type result struct {
		netem *vnl.Netem
		err   error
	}
	out := make(chan result, 1)
	go func() {
		link, err := c.h.LinkByIndex(linkIndex)
		if err != nil {
			out <- result{err: classifyErr(err, fmt.Sprintf("link index %d", linkIndex))}
			return
		}
		qdiscs, err := c.h.QdiscList(link)
		if err != nil {
			out <- result{err: classifyErr(err, "list qdiscs")}
			return
		}
		for _, q := range qdiscs {
			if n, ok := q.(*vnl.Netem); ok && q.Attrs().Parent == vnl.HANDLE_ROOT {
				out <- result{netem: n}
				return
			}
		}
		out <- result{}
	}()

	select {
	case r := <-out:
		return r.netem, r.err
	case <-ctx.Done():
		return nil, xerrors.Wrap(xerrors.IoError, "get netem timed out", ctx.Err())
	}
}

func (c *handleConnection) ApplyNetem(ctx context.Context, linkIndex int, cfg netem.Config, replace bool) error {
	q := buildNetem(linkIndex, cfg)

	out := make(chan error, 1)
	go func() {
		if replace {
			out <- c.h.QdiscReplace(q)
		} else {
			out <- c.h.QdiscAdd(q)
		}
	}()

	select {
	case err := <-out:
		if err != nil {
			return classifyErr(err, "apply netem qdisc")
		}
		return nil
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.IoError, "apply netem timed out", ctx.Err())
	}
}

func (c *handleConnection) ClearNetem(ctx context.Context, linkIndex int) error {
	out := make(chan error, 1)
	go func() {
		existing, err := c.GetNetem(context.Background(), linkIndex)
		if err != nil {
			out <- err
			return
		}
		if existing == nil {
			out <- nil
			return
		}
		out <- c.h.QdiscDel(existing)
	}()

	select {
	case err := <-out:
		if err != nil {
			return classifyErr(err, "clear netem qdisc")
		}
		return nil
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.IoError, "clear netem timed out", ctx.Err())
	}
}

// buildNetem desugars cfg and converts it into a vishvananda/netlink Netem
// qdisc attached at the link's root handle, using the percentage-to-uint32
// fixed point conversion netem.c / tc itself uses (value * (UINT32_MAX/100)).
func buildNetem(linkIndex int, cfg netem.Config) *vnl.Netem {
	cfg = cfg.Desugar()

	attrs := vnl.QdiscAttrs{
		LinkIndex: linkIndex,
		Handle:    vnl.MakeHandle(1, 0),
		Parent:    vnl.HANDLE_ROOT,
	}
	n := vnl.NewNetem(attrs, vnl.NetemQdiscAttrs{})

	if d := cfg.Delay; d != nil {
		n.Latency = msToUs(d.BaseMs)
		n.Jitter = msToUs(d.JitterMs)
		n.DelayCorr = float32(d.Correlation)
	}
	if l := cfg.Loss; l != nil {
		n.Loss = pctToFixed(l.Percentage)
		n.LossCorr = float32(l.Correlation)
	}
	if du := cfg.Duplicate; du != nil {
		n.Duplicate = pctToFixed(du.Percentage)
		n.DuplicateCorr = float32(du.Correlation)
	}
	if r := cfg.Reorder; r != nil {
		n.ReorderProb = pctToFixed(r.Percentage)
		n.ReorderCorr = float32(r.Correlation)
		n.Gap = r.Gap
	}
	if co := cfg.Corrupt; co != nil {
		n.CorruptProb = pctToFixed(co.Percentage)
		n.CorruptCorr = float32(co.Correlation)
	}
	if r := cfg.Rate; r != nil {
		n.Rate = uint32(r.RateBytesPerSec())
	}

	return n
}

func msToUs(ms float64) uint32 {
	return uint32(ms * 1000)
}

// pctToFixed converts a 0-100 percentage into netem's internal uint32
// fixed-point representation (fraction of UINT32_MAX).
func pctToFixed(pct float64) uint32 {
	const maxUint32 = 4294967295.0
	return uint32(pct / 100.0 * maxUint32)
}

// classifyErr maps a vishvananda/netlink error into the xerrors taxonomy.
func classifyErr(err error, op string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, os.ErrPermission):
		return xerrors.Wrap(xerrors.PermissionDenied, op, err)
	case errors.Is(err, syscall.EEXIST), errors.Is(err, syscall.EBUSY):
		return xerrors.Wrap(xerrors.BusyOrConflict, op, err)
	case errors.Is(err, vnl.ErrDumpInterrupted):
		return xerrors.Wrap(xerrors.ProtocolError, op, err)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENOENT):
		return xerrors.Wrap(xerrors.NotFound, op, err)
	default:
		return xerrors.Wrap(xerrors.IoError, op, err)
	}
}
