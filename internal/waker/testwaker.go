package waker

import (
	"context"
	"sync"
)

// testWaker is used by tests to manually trigger a poll of an idle Detector,
// instead of waiting out a real interval.
// Adapted from driver/log/waker/testwaker.go in the teacher repo.
type testWaker struct {
	mu   sync.Mutex
	wake chan struct{}
	ctx  context.Context
}

// NewTest creates a Waker for tests together with a trigger function the test
// calls to release one blocked Wake() receiver.
func NewTest(ctx context.Context) (Waker, func()) {
	w := &testWaker{ctx: ctx, wake: make(chan struct{})}
	return w, w.trigger
}

func (w *testWaker) Wake() <-chan struct{} {
	w.mu.Lock()
	ch := w.wake
	w.mu.Unlock()
	return ch
}

// trigger releases exactly one blocked Wake() receiver, then rearms for the
// next one.
func (w *testWaker) trigger() {
	w.mu.Lock()
	old := w.wake
	w.wake = make(chan struct{})
	w.mu.Unlock()

	select {
	case old <- struct{}{}:
	case <-w.ctx.Done():
	}
}
