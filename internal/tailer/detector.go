// Package tailer implements the per-source Detector: it tails one file from
// end-of-file, survives rotation, classifies I/O faults, and feeds LineEvents
// into a bounded queue under backpressure.
// Adapted from original_source/src/detector.rs (Detector/DetectEvent state
// machine) and driver/log/tailer/logstream in the teacher repo for the
// underlying file-streaming mechanics.
package tailer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/relaylogs/agent/internal/agenterrors"
	"github.com/relaylogs/agent/internal/config"
	"github.com/relaylogs/agent/internal/logline"
	"github.com/relaylogs/agent/internal/tailer/logstream"
	"github.com/relaylogs/agent/internal/waker"
)

// Detector tails one Source, emitting LineEvents onto queue until it hits an
// unrecoverable error or the queue's consumer is gone. It is built to run on
// its own goroutine; all of its I/O is blocking by design (§5: "one OS
// thread per Detector").
type Detector struct {
	source config.Source
	queue  chan<- *logline.LogLine
	log    *logrus.Entry
	waker  waker.Waker

	stream *logstream.FileStream
}

// New opens source.LogPath at end-of-file and builds a Detector ready to
// Run. A failure here is the one place, besides config load, that can cause
// the process to exit non-zero (§6): the caller decides whether to treat a
// single bad source as fatal or to skip it.
func New(source config.Source, queue chan<- *logline.LogLine, wkr waker.Waker, log *logrus.Logger) (*Detector, error) {
	stream, err := logstream.Open(source.LogPath)
	if err != nil {
		return nil, errors.Wrapf(err, "building detector for source %q", source.Name)
	}

	return &Detector{
		source: source,
		queue:  queue,
		log:    log.WithField("source", source.Name),
		waker:  wkr,
		stream: stream,
	}, nil
}

// Run tails the source until ctx is canceled, the queue is permanently
// unavailable, or an unrecoverable I/O error occurs. It never returns a nil
// error on the unrecoverable/channel-closed paths so the caller can log
// appropriately. Cancellation seen between reads or while sleeping returns
// nil, as that is a normal shutdown; cancellation while blocked on the queue
// send returns a DetectChannelClosed error.
func (d *Detector) Run(ctx context.Context) error {
	defer func() {
		if err := d.stream.Close(); err != nil {
			d.log.WithError(err).Warn("failed to close source file")
		}
	}()

	d.log.Info("detector started")

	for {
		if ctx.Err() != nil {
			return nil
		}

		ev, err := d.stream.Next()
		if err != nil {
			detErr := classify(err)
			if detErr.Kind == agenterrors.DetectRecoverable {
				d.log.WithError(err).Warn("recoverable I/O error, retrying after poll delay")
				if !d.sleep(ctx) {
					return nil
				}
				continue
			}
			return detErr
		}

		switch ev.Kind {
		case logstream.NewLine:
			if ev.Line == "" {
				continue
			}
			if !d.emit(ctx, logline.New(d.source.Name, ev.Line)) {
				return agenterrors.NewDetectError(agenterrors.DetectChannelClosed, nil)
			}

		case logstream.Rotated:
			d.log.Info("source rotated")

		case logstream.EndOfFile:
			if !d.sleep(ctx) {
				return nil
			}
		}
	}
}

// emit performs the blocking send into queue that gives the pipeline its
// end-to-end backpressure: a slow Aggregator stalls this detector, and this
// detector's file reads, rather than buffering unboundedly in memory.
func (d *Detector) emit(ctx context.Context, line *logline.LogLine) bool {
	select {
	case d.queue <- line:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep blocks until the waker fires or ctx is canceled, returning false in
// the latter case so the caller can stop cleanly.
func (d *Detector) sleep(ctx context.Context) bool {
	select {
	case <-d.waker.Wake():
		return true
	case <-ctx.Done():
		return false
	}
}

// classify maps a raw error from FileStream.Next into the DetectError
// taxonomy from §7: Interrupted/WouldBlock are Recoverable, everything else
// — including a source that has been unlinked without replacement, per the
// open question in §9 — is Unrecoverable.
func classify(err error) *agenterrors.DetectError {
	if agenterrors.Recoverable(err) {
		return agenterrors.NewDetectError(agenterrors.DetectRecoverable, err)
	}
	return agenterrors.NewDetectError(agenterrors.DetectUnrecoverable, err)
}
