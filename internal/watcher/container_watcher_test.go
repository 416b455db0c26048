package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewContainerWatcherWithNoReachableSocketReturnsNil exercises spec.md
// §4.3's "runtime-API unavailability is not fatal" contract: on a host with
// no Docker or Podman socket present (the norm for this test sandbox),
// construction must degrade to (nil, nil) rather than erroring.
func TestNewContainerWatcherWithNoReachableSocketReturnsNil(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	w, err := NewContainerWatcher(ctx)
	require.NoError(t, err)
	assert.Nil(t, w, "no container runtime socket is reachable in this environment")
}

func TestRootlessPodmanSocketEmptyWithoutXDGRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.Equal(t, "", rootlessPodmanSocket())
}

func TestRootlessPodmanSocketDerivedFromXDGRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/podman/podman.sock", rootlessPodmanSocket())
}
