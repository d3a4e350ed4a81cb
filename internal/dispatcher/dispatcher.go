// Package dispatcher implements the singleton send stage: it pulls a
// finished Payload off the Aggregator's queue, bounds concurrent sends with
// a counting semaphore sized max_send_task, and hands first-attempt
// failures that are retryable off to internal/retry.
// Adapted from original_source/src/sender.rs's spawn_sender.
package dispatcher

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/relaylogs/agent/internal/payload"
	"github.com/relaylogs/agent/internal/retry"
	"github.com/relaylogs/agent/internal/transport"
)

// Dispatcher consumes completed Payloads and sends each on its own goroutine
// under a semaphore-bounded concurrency limit.
type Dispatcher struct {
	sem    *semaphore.Weighted
	sender transport.Sender
	retry  *retry.Pool
	in     <-chan payload.Payload
	log    *logrus.Entry
}

// New builds a Dispatcher. maxSendTasks bounds concurrent in-flight sends;
// it is the same value used to size the retry pool's worker count.
func New(maxSendTasks int64, in <-chan payload.Payload, sender transport.Sender, retryPool *retry.Pool, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		sem:    semaphore.NewWeighted(maxSendTasks),
		sender: sender,
		retry:  retryPool,
		in:     in,
		log:    log.WithField("component", "dispatcher"),
	}
}

// Run consumes in until it is closed or ctx is canceled, waiting for all
// outstanding send tasks to finish before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	d.log.Info("dispatcher started")

	for {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		select {
		case p, ok := <-d.in:
			if !ok {
				d.sem.Release(1)
				return nil
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer d.sem.Release(1)
				d.send(ctx, p)
			}()

		case <-ctx.Done():
			d.sem.Release(1)
			return nil
		}
	}
}

// send makes the first attempt; a retryable failure is handed off to the
// retry pool, a success or non-retryable failure ends this payload's
// lifecycle here.
func (d *Dispatcher) send(ctx context.Context, p payload.Payload) {
	httpErr := d.sender.Send(ctx, p)
	if httpErr == nil {
		return
	}

	if !httpErr.Retryable() {
		d.log.WithError(httpErr).Error("send failed, non-retryable")
		return
	}

	d.log.WithError(httpErr).Warn("send failed, handing off to retry")
	if !d.retry.Enqueue(ctx, retry.Entry{Payload: p, Attempt: 1}) {
		d.log.Warn("could not enqueue retry before shutdown")
	}
}
