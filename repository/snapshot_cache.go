package repository

import (
	"encoding/json"

	"snwatch/db"
	"snwatch/models"
)

const snapshotPrefix = "snapshot:"

// SnapshotCache implements SnapshotCacheInterface using LevelDB as the storage backend
type SnapshotCache struct {
	db *db.LevelDB
}

// NewSnapshotCache creates and returns a new SnapshotCache instance
func NewSnapshotCache(db *db.LevelDB) *SnapshotCache {
	return &SnapshotCache{db: db}
}

// SaveSnapshot replaces the stored snapshot for the snapshot's network
func (r *SnapshotCache) SaveSnapshot(snap *models.NetworkSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.db.Put([]byte(snapshotPrefix+snap.Name()), data)
}

// LoadSnapshots returns every stored snapshot, at most one per network
func (r *SnapshotCache) LoadSnapshots() ([]*models.NetworkSnapshot, error) {
	iter := r.db.NewPrefixIterator([]byte(snapshotPrefix))
	defer iter.Release()

	var snaps []*models.NetworkSnapshot
	for iter.Next() {
		var snap models.NetworkSnapshot
		if err := json.Unmarshal(iter.Value(), &snap); err != nil {
			return nil, err
		}
		snaps = append(snaps, &snap)
	}
	return snaps, iter.Error()
}

// DeleteSnapshot drops the stored snapshot for a network
func (r *SnapshotCache) DeleteSnapshot(testnet bool) error {
	return r.db.Delete([]byte(snapshotPrefix + models.NetworkName(testnet)))
}
