package aggregator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/relaylogs/agent/internal/logline"
	"github.com/relaylogs/agent/internal/payload"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.FatalLevel)
	return l
}

func TestFlushesOnSizeTrigger(t *testing.T) {
	in := make(chan *logline.LogLine, 8)
	out := make(chan payload.Payload, 4)

	a := New("agent1", 2, time.Hour, in, out, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	in <- logline.New("app1", "one")
	in <- logline.New("app1", "two")

	select {
	case p := <-out:
		require.Equal(t, "agent1", p.AgentName)
		require.Len(t, p.Sources, 1)
		require.Len(t, p.Sources[0].Logs, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for size-triggered flush")
	}

	cancel()
	<-done
}

func TestFlushesOnTimerWhenBelowSize(t *testing.T) {
	in := make(chan *logline.LogLine, 8)
	out := make(chan payload.Payload, 4)

	a := New("agent1", 100, 20*time.Millisecond, in, out, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	in <- logline.New("app1", "solo")

	select {
	case p := <-out:
		require.Len(t, p.Sources, 1)
		require.Len(t, p.Sources[0].Logs, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timer-triggered flush")
	}

	cancel()
	<-done
}

func TestGroupsBySourceName(t *testing.T) {
	in := make(chan *logline.LogLine, 8)
	out := make(chan payload.Payload, 4)

	a := New("agent1", 3, time.Hour, in, out, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	in <- logline.New("b", "b1")
	in <- logline.New("a", "a1")
	in <- logline.New("b", "b2")

	select {
	case p := <-out:
		require.Len(t, p.Sources, 2)
		require.Equal(t, "b", p.Sources[0].SourceName)
		require.Equal(t, "a", p.Sources[1].SourceName)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
	}

	cancel()
	<-done
}

func TestFinalFlushOnChannelClose(t *testing.T) {
	in := make(chan *logline.LogLine, 8)
	out := make(chan payload.Payload, 4)

	a := New("agent1", 100, time.Hour, in, out, testLogger())

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	in <- logline.New("app1", "last")
	close(in)

	select {
	case p := <-out:
		require.Len(t, p.Sources, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for final flush")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not exit after channel close")
	}
}

func TestFinalFlushOnContextCancel(t *testing.T) {
	in := make(chan *logline.LogLine, 8)
	out := make(chan payload.Payload, 4)

	a := New("agent1", 100, time.Hour, in, out, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	in <- logline.New("app1", "buffered")
	time.Sleep(20 * time.Millisecond) // let the aggregator pick it up
	cancel()

	select {
	case p := <-out:
		require.Len(t, p.Sources, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown flush")
	}

	<-done
}
