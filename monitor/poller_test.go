package monitor_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"snwatch/logger"
	"snwatch/monitor"
)

type countingTicker struct {
	ticks    atomic.Int32
	block    chan struct{}
	sawDone  atomic.Bool
	hasLimit atomic.Bool
}

func (c *countingTicker) Tick(ctx context.Context) error {
	c.ticks.Add(1)
	if _, ok := ctx.Deadline(); ok {
		c.hasLimit.Store(true)
	}
	if c.block != nil {
		<-c.block
	}
	if ctx.Err() != nil {
		c.sawDone.Store(true)
	}
	return nil
}

func TestPollerStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger.Logger = zap.NewNop()

	ticker := &countingTicker{}
	poller := monitor.NewPoller(ticker, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()

	require.Eventually(t, func() bool { return ticker.ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.True(t, ticker.hasLimit.Load())
}

func TestPollerLetsInFlightTickFinish(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger.Logger = zap.NewNop()

	ticker := &countingTicker{block: make(chan struct{})}
	poller := monitor.NewPoller(ticker, time.Hour, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	require.Eventually(t, func() bool { return ticker.ticks.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	close(ticker.block)
	wg.Wait()

	assert.Equal(t, int32(1), ticker.ticks.Load())
	assert.False(t, ticker.sawDone.Load())
}
