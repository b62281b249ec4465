package models

import "time"

// User is someone monitoring nodes through one or more messaging backends.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	TelegramID     *int64         `gorm:"uniqueIndex" json:"telegram_id,omitempty"`
	DiscordID      *string        `gorm:"uniqueIndex;size:32" json:"discord_id,omitempty"`
	AutoMonitor    bool           `json:"auto_monitor"`
	WalletPrefixes []WalletPrefix `gorm:"constraint:OnDelete:CASCADE" json:"wallet_prefixes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// WalletPrefix marks contributions from wallets starting with Wallet as the user's own.
type WalletPrefix struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"uniqueIndex:idx_user_wallet" json:"user_id"`
	Wallet string `gorm:"uniqueIndex:idx_user_wallet;size:128" json:"wallet"`
}

// Subscription is one user's monitoring of one service node. The notification
// state fields hold the value last reported to the user for each condition.
type Subscription struct {
	ID      uint    `gorm:"primaryKey" json:"id"`
	UserID  uint    `gorm:"uniqueIndex:idx_user_pubkey;not null" json:"user_id"`
	User    User    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Pubkey  string  `gorm:"uniqueIndex:idx_user_pubkey;size:64;not null" json:"pubkey"`
	Testnet bool    `json:"testnet"`
	Alias   *string `gorm:"size:100" json:"alias,omitempty"`
	Note    *string `json:"note,omitempty"`

	Active                bool     `json:"active"`
	NotifiedDereg         bool     `json:"notified_dereg"`
	Complete              bool     `json:"complete"`
	LastContributions     *uint64  `json:"last_contributions,omitempty"`
	NotifiedAge           *int64   `json:"notified_age,omitempty"`
	UnlockNotified        bool     `json:"unlock_notified"`
	RequestedUnlockHeight *uint64  `json:"requested_unlock_height,omitempty"`
	NotifiedObsolete      *int64   `json:"notified_obsolete,omitempty"`
	LastVersion           *Version `gorm:"size:32" json:"last_version,omitempty"`
	ExpiryNotified        *int     `json:"expiry_notified,omitempty"`
	LastRewardBlockHeight *uint64  `json:"last_reward_block_height,omitempty"`

	Rewards     bool `json:"rewards"`
	ExpiresSoon bool `json:"expires_soon"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShortPubkey is the abbreviated pubkey shown in messages.
func (s *Subscription) ShortPubkey() string {
	if len(s.Pubkey) < 9 {
		return s.Pubkey
	}
	return s.Pubkey[:6] + "…" + s.Pubkey[len(s.Pubkey)-3:]
}

// DisplayName returns the alias if set, otherwise the short pubkey.
func (s *Subscription) DisplayName() string {
	if s.Alias != nil && *s.Alias != "" {
		return *s.Alias
	}
	return s.ShortPubkey()
}

// MigrateModels lists the tables the subscription store owns.
var MigrateModels = []any{
	&User{},
	&WalletPrefix{},
	&Subscription{},
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
