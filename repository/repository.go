package repository

import (
	"context"
	"errors"

	"snwatch/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// SubscriptionRepositoryInterface abstracts the subscription store from the
// monitor and the API handlers.
type SubscriptionRepositoryInterface interface {
	// ActiveSubscriptions returns every monitored subscription with its user.
	ActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error)
	// UpdateSubscription writes patch to the subscription's row and then applies it to sub.
	UpdateSubscription(ctx context.Context, sub *models.Subscription, patch models.SubscriptionPatch) error
	WalletPrefixes(ctx context.Context, userID uint) ([]string, error)
	DeleteUserSubscriptions(ctx context.Context, userID uint) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	AddSubscription(ctx context.Context, sub *models.Subscription) error
	RemoveSubscription(ctx context.Context, userID uint, pubkey string) error
	ListSubscriptions(ctx context.Context, userID uint) ([]*models.Subscription, error)
	AddWalletPrefix(ctx context.Context, userID uint, wallet string) error
	MonitoringCounts(ctx context.Context, testnet bool) (nodes int64, users int64, err error)
}

// SnapshotCacheInterface keeps the latest snapshot of each network across restarts.
type SnapshotCacheInterface interface {
	SaveSnapshot(snap *models.NetworkSnapshot) error
	LoadSnapshots() ([]*models.NetworkSnapshot, error)
}
