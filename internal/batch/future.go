package batch

import (
	"context"
	"sync"
)

// Future is the eventual result of one submitted item. It is resolved
// exactly once; later resolutions are ignored.
type Future[R any] struct {
	once   sync.Once
	done   chan struct{}
	result R
	err    error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// resolve settles the future and reports whether this call did so
func (f *Future[R]) resolve(result R, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

// Done is closed once the future is resolved
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is resolved or ctx is done. Abandoning the wait
// does not cancel the item; it is still processed with its batch.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}
