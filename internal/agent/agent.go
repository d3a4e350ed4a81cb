// Package agent wires the Detector/Aggregator/Dispatcher/Retry pipeline
// into one reusable unit, so cmd/relaylogs-agent only has to load a Config
// and call Run. The shutdown order it drives is Detectors stop, then queue1
// closes, then the Aggregator drains and flushes, then queue2 closes, then
// the Dispatcher stops accepting new Payloads and waits for in-flight
// sends, then the retry queue closes and its workers drain or stop.
package agent

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/relaylogs/agent/internal/aggregator"
	"github.com/relaylogs/agent/internal/config"
	"github.com/relaylogs/agent/internal/dispatcher"
	"github.com/relaylogs/agent/internal/logline"
	"github.com/relaylogs/agent/internal/payload"
	"github.com/relaylogs/agent/internal/retry"
	"github.com/relaylogs/agent/internal/tailer"
	"github.com/relaylogs/agent/internal/transport"
	"github.com/relaylogs/agent/internal/waker"
)

// Agent owns one configured instance of the pipeline.
type Agent struct {
	cfg    *config.Config
	log    *logrus.Logger
	sender transport.Sender
}

// New builds an Agent from a validated Config. It does not open any source
// files yet; that happens in Run, so a source becoming unreadable between
// New and Run is still caught as a startup failure.
func New(cfg *config.Config, log *logrus.Logger) *Agent {
	return &Agent{
		cfg:    cfg,
		log:    log,
		sender: transport.NewHTTPSender(cfg.Global.EndPoint, log),
	}
}

// Run opens every configured source, starts the pipeline, and blocks until
// ctx is canceled and every stage has finished its graceful shutdown. A
// non-nil error here means a Detector could not be opened at startup; once
// the pipeline is running, individual stage failures are logged rather than
// returned, matching §9's "other detectors are unaffected" contract.
func (a *Agent) Run(ctx context.Context) error {
	queue1 := make(chan *logline.LogLine, a.cfg.Global.ChannelBound)
	queue2 := make(chan payload.Payload, a.cfg.Global.ChannelBound)

	detectors := make([]*tailer.Detector, 0, len(a.cfg.Sources))
	for _, src := range a.cfg.Sources {
		wkr := waker.NewInterval(ctx, time.Duration(src.DelayMs)*time.Millisecond)
		d, err := tailer.New(src, queue1, wkr, a.log)
		if err != nil {
			return errors.Wrapf(err, "building detector for source %q", src.Name)
		}
		detectors = append(detectors, d)
	}

	retryDelay := time.Duration(a.cfg.Global.RetryDelayMs) * time.Millisecond
	retryPool := retry.NewPool(a.cfg.Global.MaxSendTask, a.cfg.Global.RetryCount, retryDelay, a.cfg.Global.ChannelBound, a.sender, a.log)
	disp := dispatcher.New(int64(a.cfg.Global.MaxSendTask), queue2, a.sender, retryPool, a.log)
	agg := aggregator.New(a.cfg.Global.AgentName, a.cfg.Global.MaxBatchSize, time.Duration(a.cfg.Global.IntervalSecs)*time.Second, queue1, queue2, a.log)

	// Detectors join through an errgroup rather than a plain WaitGroup so a
	// panic-free per-detector error has somewhere to go without each
	// detector needing its own done channel; the zero-value Group here never
	// cancels ctx on a sibling's error, since one bad source must not stop
	// the others (§9: "other detectors are unaffected").
	var detGroup errgroup.Group
	for _, d := range detectors {
		d := d
		detGroup.Go(func() error {
			if err := d.Run(ctx); err != nil {
				a.log.WithError(err).Error("detector terminated")
			}
			return nil
		})
	}

	aggDone := make(chan struct{})
	var aggErr error
	go func() {
		defer close(aggDone)
		aggErr = agg.Run(ctx)
	}()

	dispDone := make(chan struct{})
	var dispErr error
	go func() {
		defer close(dispDone)
		dispErr = disp.Run(ctx)
	}()

	retryDone := make(chan struct{})
	var retryErr error
	go func() {
		defer close(retryDone)
		retryErr = retryPool.Run(ctx)
	}()

	_ = detGroup.Wait()
	close(queue1)

	<-aggDone
	close(queue2)

	<-dispDone
	retryPool.Close()

	<-retryDone

	if aggErr != nil {
		a.log.WithError(aggErr).Error("aggregator terminated")
	}
	if dispErr != nil {
		a.log.WithError(dispErr).Error("dispatcher terminated")
	}
	if retryErr != nil {
		a.log.WithError(retryErr).Error("retry pool terminated")
	}

	a.log.Info("agent shut down cleanly")
	return nil
}
