// Package aggregator implements the singleton batching stage between the
// Detectors and the Dispatcher: it groups incoming LogLines by source name
// and flushes a Payload whenever a size or time trigger fires.
// Adapted from original_source/src/event_bucket.rs, with the timer/size race
// shaped after joeycumines-go-utilpkg/microbatch's batcher loop.
package aggregator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relaylogs/agent/internal/logline"
	"github.com/relaylogs/agent/internal/payload"
)

// Aggregator buckets LogLines by source and emits a Payload onto out once
// maxBatchSize lines have accumulated or interval has elapsed, whichever
// comes first.
type Aggregator struct {
	agentName    string
	maxBatchSize int
	interval     time.Duration

	in  <-chan *logline.LogLine
	out chan<- payload.Payload
	log *logrus.Entry

	order     []string
	bucket    map[string][]payload.Logs
	totalSize int
}

// New builds an Aggregator reading from in and writing completed batches to
// out. maxBatchSize and interval come directly from the Global config.
func New(agentName string, maxBatchSize int, interval time.Duration, in <-chan *logline.LogLine, out chan<- payload.Payload, log *logrus.Logger) *Aggregator {
	return &Aggregator{
		agentName:    agentName,
		maxBatchSize: maxBatchSize,
		interval:     interval,
		in:           in,
		out:          out,
		log:          log.WithField("component", "aggregator"),
		bucket:       make(map[string][]payload.Logs),
	}
}

// Run drives the aggregator until in is closed or ctx is canceled. On
// either path it makes a best-effort final flush of whatever is buffered
// before returning, matching the original's "drain before breaking" shutdown
// behavior.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.log.Info("aggregator started")

	for {
		select {
		case <-ctx.Done():
			a.flush(context.Background())
			return nil

		case <-ticker.C:
			if !a.isEmpty() {
				a.flush(ctx)
			}

		case line, ok := <-a.in:
			if !ok {
				a.flush(context.Background())
				return nil
			}
			a.receive(line)
			if a.totalSize >= a.maxBatchSize {
				a.flush(ctx)
			}
		}
	}
}

func (a *Aggregator) isEmpty() bool {
	return len(a.bucket) == 0
}

// receive inserts one LogLine into its source's bucket.
func (a *Aggregator) receive(line *logline.LogLine) {
	if _, ok := a.bucket[line.SourceName]; !ok {
		a.order = append(a.order, line.SourceName)
	}
	a.bucket[line.SourceName] = append(a.bucket[line.SourceName], payload.Logs{
		Data:      line.Line,
		Timestamp: line.Timestamp,
	})
	a.totalSize++
}

// flush drains the bucket into a Payload and sends it downstream, blocking
// under the same backpressure contract as the Detector->Aggregator hop. A
// shutdown flush uses context.Background so it cannot be preempted by the
// very cancellation that triggered it.
func (a *Aggregator) flush(ctx context.Context) {
	if a.isEmpty() {
		return
	}

	sources := make([]payload.Source, 0, len(a.order))
	for _, name := range a.order {
		sources = append(sources, payload.Source{SourceName: name, Logs: a.bucket[name]})
	}

	p := payload.Payload{AgentName: a.agentName, Sources: sources}

	a.order = nil
	a.bucket = make(map[string][]payload.Logs)
	a.totalSize = 0

	select {
	case a.out <- p:
	case <-ctx.Done():
	}
}
