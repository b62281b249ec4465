package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"snwatch/models"
)

// SubscriptionRepository implements SubscriptionRepositoryInterface on a gorm database.
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates and returns a new SubscriptionRepository instance
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) ActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := r.db.WithContext(ctx).
		Preload("User").
		Order("id").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) UpdateSubscription(ctx context.Context, sub *models.Subscription, patch models.SubscriptionPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ? AND user_id = ?", sub.ID, sub.UserID).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update subscription %d: %w", sub.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update subscription %d: %w", sub.ID, ErrNotFound)
	}
	patch.Apply(sub)
	return nil
}

func (r *SubscriptionRepository) WalletPrefixes(ctx context.Context, userID uint) ([]string, error) {
	var wallets []string
	err := r.db.WithContext(ctx).
		Model(&models.WalletPrefix{}).
		Where("user_id = ?", userID).
		Order("wallet").
		Pluck("wallet", &wallets).Error
	return wallets, err
}

func (r *SubscriptionRepository) DeleteUserSubscriptions(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Subscription{}).Error
}

func (r *SubscriptionRepository) CreateUser(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (r *SubscriptionRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("WalletPrefixes").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *SubscriptionRepository) AddSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.Subscription{}).
			Where("user_id = ? AND pubkey = ?", sub.UserID, sub.Pubkey).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		return tx.Omit(clause.Associations).Create(sub).Error
	})
}

func (r *SubscriptionRepository) RemoveSubscription(ctx context.Context, userID uint, pubkey string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND pubkey = ?", userID, pubkey).
		Delete(&models.Subscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) ListSubscriptions(ctx context.Context, userID uint) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) AddWalletPrefix(ctx context.Context, userID uint, wallet string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.WalletPrefix{UserID: userID, Wallet: wallet}).Error
}

func (r *SubscriptionRepository) MonitoringCounts(ctx context.Context, testnet bool) (int64, int64, error) {
	var nodes, users int64
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.Subscription{}).
			Where("active = ? AND testnet = ?", true, testnet)
	}
	if err := base().Distinct("pubkey").Count(&nodes).Error; err != nil {
		return 0, 0, err
	}
	if err := base().Distinct("user_id").Count(&users).Error; err != nil {
		return 0, 0, err
	}
	return nodes, users, nil
}
