package watcher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/p13marc/netimpaird/internal/logger"
	"github.com/p13marc/netimpaird/internal/netid"
)

// defaultPollInterval matches spec.md §4.3's default container discovery
// cadence; containers do not emit an equivalent of netns's inotify signal,
// so polling the container runtime's list API is the only portable option
// across Docker and Podman.
const defaultPollInterval = 5 * time.Second

// socketCandidates is the priority order container runtime sockets are
// probed in: Docker's two conventional locations, then Podman's system and
// rootless sockets.
var socketCandidates = []string{
	"/var/run/docker.sock",
	"/run/docker.sock",
	"/run/podman/podman.sock",
}

func rootlessPodmanSocket() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		return ""
	}
	return dir + "/podman/podman.sock"
}

// ContainerWatcher polls a Docker- or Podman-compatible runtime for running
// containers and emits namespace lifecycle events keyed on each container's
// network namespace.
type ContainerWatcher struct {
	cli      *client.Client
	interval time.Duration
	events   chan Event
	seen     map[string]bool
}

// NewContainerWatcher probes socketCandidates in order and returns a
// ContainerWatcher bound to the first one reachable. If none are reachable
// it returns (nil, nil): container discovery is optional, spec.md §4.3 —
// a host with no container runtime simply never sees container namespaces.
func NewContainerWatcher(ctx context.Context) (*ContainerWatcher, error) {
	candidates := append([]string{}, socketCandidates...)
	if rp := rootlessPodmanSocket(); rp != "" {
		candidates = append(candidates, rp)
	}

	for _, sock := range candidates {
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		cli, err := client.NewClientWithOpts(
			client.WithHost("unix://"+sock),
			client.WithAPIVersionNegotiation(),
		)
		if err != nil {
			continue
		}
		if _, err := cli.Ping(ctx); err != nil {
			cli.Close()
			continue
		}
		return &ContainerWatcher{
			cli:      cli,
			interval: defaultPollInterval,
			events:   make(chan Event, 32),
			seen:     make(map[string]bool),
		}, nil
	}

	return nil, nil
}

// Events returns the channel namespace lifecycle events are delivered on. It
// is closed when Run returns.
func (w *ContainerWatcher) Events() <-chan Event {
	return w.events
}

// Run polls the container runtime every w.interval until ctx is cancelled.
func (w *ContainerWatcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.cli.Close()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *ContainerWatcher) poll(ctx context.Context) {
	containers, err := w.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		logger.WarnCtx(ctx, "poll container runtime", logger.Err(err))
		return
	}

	current := make(map[string]bool, len(containers))
	for _, c := range containers {
		id := c.ID
		current[id] = true
		if w.seen[id] {
			continue
		}
		w.seen[id] = true

		inspect, err := w.cli.ContainerInspect(ctx, id)
		if err != nil || inspect.State == nil || inspect.State.Pid == 0 {
			continue
		}
		nsPath := fmt.Sprintf("/proc/%d/ns/net", inspect.State.Pid)
		w.emit(ctx, Event{Kind: NamespaceAppeared, Id: netid.Container(id, nsPath)})
	}

	for id := range w.seen {
		if !current[id] {
			delete(w.seen, id)
			w.emit(ctx, Event{Kind: NamespaceVanished, Id: netid.Container(id, "")})
		}
	}
}

func (w *ContainerWatcher) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
