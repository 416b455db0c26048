package watcher

import (
	"context"
	"sync"
)

// Merge fans multiple namespace event sources into one channel, closing the
// output once every input has closed or ctx is done. A nil source (e.g. a
// ContainerWatcher that found no reachable runtime) is skipped.
func Merge(ctx context.Context, sources ...<-chan Event) <-chan Event {
	out := make(chan Event, 32)
	var wg sync.WaitGroup

	for _, src := range sources {
		if src == nil {
			continue
		}
		wg.Add(1)
		go func(s <-chan Event) {
			defer wg.Done()
			for {
				select {
				case ev, ok := <-s:
					if !ok {
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
