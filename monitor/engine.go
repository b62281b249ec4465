package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"snwatch/logger"
	"snwatch/models"
	"snwatch/notify"
	"snwatch/repository"
	"snwatch/snapshot"
)

const (
	// ProofAgeWarning is the uptime proof age (seconds) considered stale.
	ProofAgeWarning = 3660
	// ProofAgeRepeat is how much older (seconds) a stale proof must get before warning again.
	ProofAgeRepeat = 600

	DefaultObsoleteRepeat = 12 * time.Hour
)

// Fetcher produces the snapshots for one tick.
type Fetcher interface {
	Fetch(ctx context.Context) (snapshot.Snapshots, error)
}

// Notifier delivers a message to a subscription's owner, reporting whether any
// backend accepted it.
type Notifier interface {
	Notify(ctx context.Context, sub *models.Subscription, msg notify.Message, isUpdate bool) bool
}

// Publisher receives every successfully fetched set of snapshots.
type Publisher interface {
	Publish(snaps snapshot.Snapshots)
}

type Config struct {
	// MinVersion is the oldest non-obsolete node version; zero disables the check.
	MinVersion     models.Version
	ObsoleteRepeat time.Duration
	// Expiry warning thresholds in hours, strictly descending.
	ExpiryThresholds        []int
	TestnetExpiryThresholds []int
}

// Engine compares fresh network snapshots with each subscription's stored
// notification state and notifies users about what changed.
type Engine struct {
	repo      repository.SubscriptionRepositoryInterface
	fetcher   Fetcher
	notifier  Notifier
	publisher Publisher
	metrics   *Metrics
	cfg       Config
	now       func() time.Time
	expiries  *expiryTracker
}

type Option func(*Engine)

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(repo repository.SubscriptionRepositoryInterface, fetcher Fetcher, notifier Notifier, cfg Config, opts ...Option) *Engine {
	if cfg.ObsoleteRepeat <= 0 {
		cfg.ObsoleteRepeat = DefaultObsoleteRepeat
	}
	e := &Engine{
		repo:     repo,
		fetcher:  fetcher,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		expiries: newExpiryTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick runs one fetch-compare-notify cycle. A failed mainnet fetch aborts the
// tick before anything is changed; failures evaluating one subscription are
// logged and do not affect the others.
func (e *Engine) Tick(ctx context.Context) error {
	started := time.Now()
	log := logger.Logger.With(zap.String("tick_id", uuid.NewString()))

	snaps, err := e.fetcher.Fetch(ctx)
	if err != nil {
		e.metrics.fetchFailed(models.NetworkName(false))
		log.Warn("Failed to fetch network state; skipping tick", zap.Error(err))
		return err
	}
	if snaps.TestnetErr != nil {
		e.metrics.fetchFailed(models.NetworkName(true))
	}
	if e.publisher != nil {
		e.publisher.Publish(snaps)
	}
	e.expiries.Observe(snaps.Mainnet)
	e.expiries.Observe(snaps.Testnet)

	subs, err := e.repo.ActiveSubscriptions(ctx)
	if err != nil {
		log.Error("Failed to load subscriptions", zap.Error(err))
		return fmt.Errorf("load subscriptions: %w", err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			log.Warn("Tick deadline reached; remaining subscriptions deferred", zap.Error(err))
			return err
		}
		if err := e.evaluateSafely(ctx, snaps, sub); err != nil {
			e.metrics.evaluationFailed()
			log.Error("Failed to evaluate subscription",
				zap.Uint("subscription_id", sub.ID),
				zap.String("pubkey", sub.Pubkey),
				zap.Error(err))
		}
	}

	e.metrics.tickDone(started, len(subs))
	log.Debug("Tick complete",
		zap.Uint64("height", snaps.Mainnet.Height),
		zap.Int("subscriptions", len(subs)),
		zap.Duration("took", time.Since(started)))
	return nil
}

func (e *Engine) evaluateSafely(ctx context.Context, snaps snapshot.Snapshots, sub *models.Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return e.evaluate(ctx, snaps, sub)
}

func (e *Engine) evaluate(ctx context.Context, snaps snapshot.Snapshots, sub *models.Subscription) error {
	snap := snaps.Network(sub.Testnet)
	if snap == nil {
		return nil
	}
	node := snap.Node(sub.Pubkey)

	if node == nil {
		// Registered on the other network only: the stored flag is wrong.
		if other := snaps.Network(!sub.Testnet); other != nil {
			if found := other.Node(sub.Pubkey); found != nil {
				if err := e.repo.UpdateSubscription(ctx, sub, models.SubscriptionPatch{Testnet: models.Some(!sub.Testnet)}); err != nil {
					return err
				}
				snap, node = other, found
			}
		}
	}

	ev := &evaluation{
		engine: e,
		ctx:    ctx,
		sub:    sub,
		snap:   snap,
		node:   node,
		now:    e.now(),
	}
	return ev.run()
}

func (e *Engine) expiryThresholds(testnet bool) []int {
	if testnet {
		return e.cfg.TestnetExpiryThresholds
	}
	return e.cfg.ExpiryThresholds
}
