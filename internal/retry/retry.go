// Package retry implements the decoupled retry subsystem: a bounded queue
// fed by first-attempt dispatch failures, drained by a fixed pool of worker
// goroutines that each own the full backoff loop for the entries they pick
// up. Workers are a fixed pool, not semaphore-gated, so a slow retry can
// never starve a first attempt in internal/dispatcher.
// Adapted from original_source/src/sender/strategies/http.rs's
// spawn_retry_task/retry_worker_loop/process_retry/calc_backoff.
package retry

import (
	"context"
	"math/bits"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaylogs/agent/internal/payload"
	"github.com/relaylogs/agent/internal/transport"
)

// maxBackoff caps calcBackoff regardless of attempt count or base delay.
const maxBackoff = 30 * time.Second

// Entry is one payload awaiting a retried delivery attempt.
type Entry struct {
	Payload payload.Payload
	Attempt int // attempts already made; starts at 1 after the first failure
}

// Pool owns the retry queue and its fixed worker pool.
type Pool struct {
	queue      chan Entry
	workers    int
	retryCount int
	retryDelay time.Duration
	sender     transport.Sender
	log        *logrus.Entry
}

// NewPool builds a Pool with its queue sized channelBound and workers fixed
// worker goroutines, matching max_send_task from the Global config.
func NewPool(workers, retryCount int, retryDelay time.Duration, channelBound int, sender transport.Sender, log *logrus.Logger) *Pool {
	return &Pool{
		queue:      make(chan Entry, channelBound),
		workers:    workers,
		retryCount: retryCount,
		retryDelay: retryDelay,
		sender:     sender,
		log:        log.WithField("component", "retry"),
	}
}

// Enqueue submits e for retry, blocking under backpressure until there is
// room or ctx is canceled. It returns false if ctx was canceled first.
func (p *Pool) Enqueue(ctx context.Context, e Entry) bool {
	select {
	case p.queue <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close stops the queue from accepting further entries. It must only be
// called once the dispatcher has stopped making first-attempt sends, so no
// Enqueue call can race with it; any entry already queued is still picked
// up by a worker, but the pool will not block waiting for new ones.
func (p *Pool) Close() {
	close(p.queue)
}

// Run starts the fixed worker pool and blocks until every worker has exited,
// which happens when ctx is canceled or when the queue has been closed and
// drained.
func (p *Pool) Run(ctx context.Context) error {
	done := make(chan struct{})
	for i := 0; i < p.workers; i++ {
		go func() {
			p.workerLoop(ctx)
			done <- struct{}{}
		}()
	}

	for i := 0; i < p.workers; i++ {
		<-done
	}
	return nil
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-p.queue:
			if !ok {
				return
			}
			p.processRetry(ctx, e)
		}
	}
}

// processRetry runs e's full backoff loop: sleep, attempt, and either
// return on success/non-retryable failure or loop again on a retryable one.
func (p *Pool) processRetry(ctx context.Context, e Entry) {
	for e.Attempt < p.retryCount {
		backoff := calcBackoff(p.retryDelay, e.Attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		e.Attempt++

		httpErr := p.sender.Send(ctx, e.Payload)
		if httpErr == nil {
			p.log.WithField("attempt", e.Attempt).Debug("retry succeeded")
			return
		}
		if !httpErr.Retryable() {
			p.log.WithError(httpErr).WithField("attempt", e.Attempt).Error("retry failed, non-retryable")
			return
		}
		p.log.WithError(httpErr).WithField("attempt", e.Attempt).Warn("retry failed, will retry again")
	}

	p.log.WithField("attempts", e.Attempt).Error("retry exhausted")
}

// calcBackoff returns base * 2^(attempt-1), capped at maxBackoff. The shift
// count is checked against maxBackoff before it's applied: a large enough
// attempt shifts a positive int64 clean through zero and back out the other
// side, and a post-hoc `backoff < 0` check misses a shift that wraps all the
// way around to a small positive value.
func calcBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}
	shift := uint(attempt - 1)
	if shift >= 63 || bits.Len64(uint64(base))+int(shift) > 62 {
		return maxBackoff
	}
	backoff := base << shift
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
