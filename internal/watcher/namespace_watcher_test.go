package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanExistingEmitsAppearedForEveryEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blue"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "green"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	w := NewNamespaceWatcher()
	w.scanExisting(context.Background(), dir)
	close(w.events)

	var names []string
	for ev := range w.events {
		assert.Equal(t, NamespaceAppeared, ev.Kind)
		names = append(names, ev.Id.Name())
	}
	assert.ElementsMatch(t, []string{"blue", "green"}, names, "directories are skipped, only namespace files are emitted")
}

func TestScanExistingToleratesMissingDirectory(t *testing.T) {
	w := NewNamespaceWatcher()
	// must not panic or block on a directory that doesn't exist yet.
	w.scanExisting(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	close(w.events)
	_, ok := <-w.events
	assert.False(t, ok)
}

func TestHandleFsEventCreateAndRemove(t *testing.T) {
	w := NewNamespaceWatcher()

	w.handleFsEvent(context.Background(), fsnotify.Event{Name: "/var/run/netns/blue", Op: fsnotify.Create})
	w.handleFsEvent(context.Background(), fsnotify.Event{Name: "/var/run/netns/blue", Op: fsnotify.Remove})
	close(w.events)

	appeared := <-w.events
	vanished := <-w.events

	assert.Equal(t, NamespaceAppeared, appeared.Kind)
	assert.Equal(t, "blue", appeared.Id.Name())
	assert.Equal(t, NamespaceVanished, vanished.Kind)
	assert.Equal(t, "blue", vanished.Id.Name())
}
