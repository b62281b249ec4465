package snapshot

import (
	"sync/atomic"

	"go.uber.org/zap"

	"snwatch/logger"
	"snwatch/models"
	"snwatch/repository"
)

// Holder owns the most recent snapshot of each network. Snapshots are swapped
// whole, so a reader always sees one complete poll.
type Holder struct {
	mainnet atomic.Pointer[models.NetworkSnapshot]
	testnet atomic.Pointer[models.NetworkSnapshot]
	cache   repository.SnapshotCacheInterface
}

// NewHolder creates a holder. cache may be nil; otherwise every published
// snapshot is also written to it.
func NewHolder(cache repository.SnapshotCacheInterface) *Holder {
	return &Holder{cache: cache}
}

// Warm loads the cached snapshots so readers have data before the first poll.
func (h *Holder) Warm() error {
	if h.cache == nil {
		return nil
	}
	snaps, err := h.cache.LoadSnapshots()
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		h.store(snap)
	}
	return nil
}

// Publish replaces the snapshot of every network that was fetched this poll.
func (h *Holder) Publish(snaps Snapshots) {
	for _, snap := range []*models.NetworkSnapshot{snaps.Mainnet, snaps.Testnet} {
		if snap == nil {
			continue
		}
		h.store(snap)
		if h.cache != nil {
			if err := h.cache.SaveSnapshot(snap); err != nil {
				logger.Logger.Warn("Failed caching snapshot",
					zap.String("network", snap.Name()), zap.Error(err))
			}
		}
	}
}

func (h *Holder) store(snap *models.NetworkSnapshot) {
	if snap.Testnet {
		h.testnet.Store(snap)
	} else {
		h.mainnet.Store(snap)
	}
}

func (h *Holder) Mainnet() *models.NetworkSnapshot {
	return h.mainnet.Load()
}

func (h *Holder) Testnet() *models.NetworkSnapshot {
	return h.testnet.Load()
}

func (h *Holder) Network(testnet bool) *models.NetworkSnapshot {
	if testnet {
		return h.Testnet()
	}
	return h.Mainnet()
}
