package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p13marc/netimpaird/internal/netid"
)

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(out))
		}
	}
	return out
}

func TestMergeFansInAllSources(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan Event, 1)
	b := make(chan Event, 1)
	a <- Event{Kind: NamespaceAppeared, Id: netid.Named("a")}
	b <- Event{Kind: NamespaceAppeared, Id: netid.Named("b")}
	close(a)
	close(b)

	out := Merge(ctx, a, b)
	got := collect(t, out, 2)
	require.Len(t, got, 2)

	names := map[string]bool{}
	for _, ev := range got {
		names[ev.Id.Name()] = true
	}
	assert.True(t, names["a"])
	assert.True(t, names["b"])
}

func TestMergeSkipsNilSources(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan Event, 1)
	a <- Event{Kind: NamespaceAppeared, Id: netid.Named("a")}
	close(a)

	out := Merge(ctx, a, nil)
	got := collect(t, out, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Id.Name())
}

func TestMergeClosesOutputWhenAllSourcesClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan Event)
	close(a)

	out := Merge(ctx, a)
	_, ok := <-out
	assert.False(t, ok, "output closes once every input has closed")
}
