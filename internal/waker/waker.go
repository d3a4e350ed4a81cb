// Package waker provides an interface for signalling an idle Detector that
// it's time to poll its source again, decoupling the polling cadence from
// the detector's read loop so tests can drive it deterministically.
// Adapted from driver/log/waker in the teacher repo, itself adapted from
// https://github.com/google/mtail/tree/main/internal.
package waker

import (
	"context"
	"time"
)

// Waker lets a Detector wait for its next poll signal.
type Waker interface {
	// Wake returns a channel that receives when it's time to poll again.
	Wake() <-chan struct{}
}

// intervalWaker sleeps for a fixed interval between wakes; this is the
// production Waker, one per Source, built from its poll_delay_ms.
type intervalWaker struct {
	ctx      context.Context
	interval time.Duration
}

// NewInterval creates a Waker that signals once every interval, stopping
// once ctx is done.
func NewInterval(ctx context.Context, interval time.Duration) Waker {
	return &intervalWaker{ctx: ctx, interval: interval}
}

func (w *intervalWaker) Wake() <-chan struct{} {
	ch := make(chan struct{}, 1)
	t := time.NewTimer(w.interval)
	go func() {
		defer t.Stop()
		select {
		case <-t.C:
			ch <- struct{}{}
		case <-w.ctx.Done():
		}
	}()
	return ch
}
