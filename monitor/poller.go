package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"snwatch/logger"
)

// Ticker runs one poll cycle.
type Ticker interface {
	Tick(ctx context.Context) error
}

// Poller runs ticks on a fixed interval until its context is cancelled.
type Poller struct {
	ticker      Ticker
	interval    time.Duration
	tickTimeout time.Duration
	step        time.Duration
}

const DefaultInterval = 10 * time.Second

func NewPoller(ticker Ticker, interval, tickTimeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	step := time.Second
	if interval < step {
		step = interval
	}
	return &Poller{
		ticker:      ticker,
		interval:    interval,
		tickTimeout: tickTimeout,
		step:        step,
	}
}

// Run blocks until ctx is cancelled. A tick that has started is allowed to
// finish (bounded by the tick timeout); cancellation is observed between ticks.
func (p *Poller) Run(ctx context.Context) {
	logger.Logger.Info("Poller started", zap.Duration("interval", p.interval))
	for {
		if ctx.Err() != nil {
			logger.Logger.Info("Poller stopped")
			return
		}
		started := time.Now()
		p.tick(ctx)

		for remaining := p.interval - time.Since(started); remaining > 0; remaining = p.interval - time.Since(started) {
			wait := min(p.step, remaining)
			select {
			case <-ctx.Done():
				logger.Logger.Info("Poller stopped")
				return
			case <-time.After(wait):
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	tickCtx := context.WithoutCancel(ctx)
	if p.tickTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(tickCtx, p.tickTimeout)
		defer cancel()
	}
	if err := p.ticker.Tick(tickCtx); err != nil {
		logger.Logger.Debug("Tick ended with error", zap.Error(err))
	}
}
