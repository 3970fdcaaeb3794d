package render

import "context"

// asyncMutex is a context-aware mutex. Event dispatch is fire-and-forget,
// so two events for the same conversation can race their "does the post
// already exist" checks; holders of this mutex must re-validate their
// preconditions after acquiring, since state may have changed while
// waiting.
type asyncMutex struct {
	ch chan struct{}
}

func newAsyncMutex() *asyncMutex {
	return &asyncMutex{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the mutex is held or ctx ends.
func (m *asyncMutex) Acquire(ctx context.Context) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the mutex. Must only be called by the current holder.
func (m *asyncMutex) Release() {
	<-m.ch
}
