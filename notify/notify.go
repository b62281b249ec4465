package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"snwatch/logger"
	"snwatch/models"
)

// ErrBlocked is returned by a backend when the recipient has blocked the bot.
var ErrBlocked = errors.New("recipient blocked the bot")

// Formatter renders inline markup for one messaging backend. FormatBold and
// FormatItalic take plain text and make it safe for their own markup; Escape
// is for plain text outside any markup.
type Formatter interface {
	FormatBold(text string) string
	FormatItalic(text string) string
	Escape(text string) string
}

// Message composes a notification for a backend's markup.
type Message func(f Formatter) string

// Link is a button or trailing link attached to a message.
type Link struct {
	Text string
	URL  string
}

type SendOptions struct {
	Links []Link
}

// Backend is a messaging network the bot can reach users on.
type Backend interface {
	Formatter
	Name() string
	// Ready reports whether the backend is configured and connected.
	Ready() bool
	// UserID returns the user's recipient id on this backend, if registered.
	UserID(user *models.User) (string, bool)
	SendReply(ctx context.Context, recipient, text string, opts SendOptions) error
}

// Cleaner removes the subscriptions of a user who can no longer be reached.
type Cleaner interface {
	DeleteUserSubscriptions(ctx context.Context, userID uint) error
}

// LinkFunc returns the deep links attached to state-change notices.
type LinkFunc func(sub *models.Subscription) []Link

// Dispatcher delivers notifications to every backend a user is registered on.
type Dispatcher struct {
	backends []Backend
	limiter  *rate.Limiter
	cleaner  Cleaner
	links    LinkFunc
}

type Option func(*Dispatcher)

// WithRateLimit caps outbound sends across all backends.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		if perSecond > 0 && burst > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithCleaner removes a user's subscriptions when a backend reports ErrBlocked.
func WithCleaner(c Cleaner) Option {
	return func(d *Dispatcher) {
		d.cleaner = c
	}
}

func WithLinks(f LinkFunc) Option {
	return func(d *Dispatcher) {
		d.links = f
	}
}

func NewDispatcher(backends []Backend, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backends: backends,
		limiter:  rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify sends msg to the subscription's user and reports whether at least one
// backend delivered it. isUpdate marks state-change notices, which carry links.
func (d *Dispatcher) Notify(ctx context.Context, sub *models.Subscription, msg Message, isUpdate bool) bool {
	delivered := false
	for _, b := range d.backends {
		if !b.Ready() {
			continue
		}
		recipient, ok := b.UserID(&sub.User)
		if !ok {
			continue
		}

		var opts SendOptions
		if isUpdate && d.links != nil {
			opts.Links = d.links(sub)
		}

		if err := d.limiter.Wait(ctx); err != nil {
			logger.Logger.Warn("Notification rate limiter aborted", zap.Error(err))
			return delivered
		}

		err := b.SendReply(ctx, recipient, msg(b), opts)
		if err == nil {
			delivered = true
			continue
		}
		if errors.Is(err, ErrBlocked) {
			logger.Logger.Info("User blocked the bot; removing their subscriptions",
				zap.String("backend", b.Name()), zap.Uint("user_id", sub.UserID))
			d.cleanup(ctx, sub.UserID)
			continue
		}
		logger.Logger.Warn("Failed sending notification",
			zap.String("backend", b.Name()),
			zap.Uint("user_id", sub.UserID),
			zap.String("pubkey", sub.Pubkey),
			zap.Error(err))
	}
	return delivered
}

func (d *Dispatcher) cleanup(ctx context.Context, userID uint) {
	if d.cleaner == nil {
		return
	}
	if err := d.cleaner.DeleteUserSubscriptions(ctx, userID); err != nil {
		logger.Logger.Error("Failed removing subscriptions of blocked user",
			zap.Uint("user_id", userID), zap.Error(err))
	}
}

// ExplorerLinks links state-change notices to the node's explorer page.
func ExplorerLinks(mainnet, testnet string) LinkFunc {
	return func(sub *models.Subscription) []Link {
		host := mainnet
		if sub.Testnet {
			host = testnet
		}
		if host == "" {
			return nil
		}
		return []Link{{
			Text: host,
			URL:  fmt.Sprintf("https://%s/service_node/%s", host, sub.Pubkey),
		}}
	}
}
