package retry

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/relaylogs/agent/internal/agenterrors"
	"github.com/relaylogs/agent/internal/payload"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.FatalLevel)
	return l
}

type scriptedSender struct {
	mu      sync.Mutex
	results []*agenterrors.HTTPError // consumed in order, last one repeats
	calls   int32
}

func (s *scriptedSender) Send(_ context.Context, _ payload.Payload) *agenterrors.HTTPError {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return nil
	}
	next := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return next
}

func TestCalcBackoffDoublesAndCaps(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, calcBackoff(100*time.Millisecond, 1))
	require.Equal(t, 200*time.Millisecond, calcBackoff(100*time.Millisecond, 2))
	require.Equal(t, 400*time.Millisecond, calcBackoff(100*time.Millisecond, 3))
	require.Equal(t, maxBackoff, calcBackoff(100*time.Millisecond, 64))
}

func TestProcessRetrySucceedsAfterRetryableFailure(t *testing.T) {
	sender := &scriptedSender{results: []*agenterrors.HTTPError{
		agenterrors.NewHTTPError(agenterrors.HTTPRetryable, 500, nil),
		nil,
	}}

	p := NewPool(1, 3, time.Millisecond, 4, sender, testLogger())
	p.processRetry(context.Background(), Entry{Payload: payload.FromLines("a", nil), Attempt: 1})

	require.Equal(t, int32(2), atomic.LoadInt32(&sender.calls))
}

func TestProcessRetryStopsOnNonRetryable(t *testing.T) {
	sender := &scriptedSender{results: []*agenterrors.HTTPError{
		agenterrors.NewHTTPError(agenterrors.HTTPNonRetryable, 400, nil),
	}}

	p := NewPool(1, 5, time.Millisecond, 4, sender, testLogger())
	p.processRetry(context.Background(), Entry{Payload: payload.FromLines("a", nil), Attempt: 1})

	require.Equal(t, int32(1), atomic.LoadInt32(&sender.calls))
}

func TestProcessRetryExhaustsAfterRetryCount(t *testing.T) {
	sender := &scriptedSender{results: []*agenterrors.HTTPError{
		agenterrors.NewHTTPError(agenterrors.HTTPRetryable, 500, nil),
	}}

	p := NewPool(1, 3, time.Millisecond, 4, sender, testLogger())
	p.processRetry(context.Background(), Entry{Payload: payload.FromLines("a", nil), Attempt: 1})

	// retryCount=3 means attempts 2 and 3 are made (loop runs while Attempt < 3).
	require.Equal(t, int32(2), atomic.LoadInt32(&sender.calls))
}

func TestPoolRunDrainsQueuedEntries(t *testing.T) {
	sender := &scriptedSender{results: []*agenterrors.HTTPError{nil}}

	p := NewPool(2, 3, time.Millisecond, 4, sender, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.True(t, p.Enqueue(ctx, Entry{Payload: payload.FromLines("a", nil), Attempt: 1}))
	require.True(t, p.Enqueue(ctx, Entry{Payload: payload.FromLines("b", nil), Attempt: 1}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&sender.calls) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}
