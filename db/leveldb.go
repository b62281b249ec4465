package db

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"snwatch/logger"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = leveldb.ErrNotFound

// LevelDB is the snapshot cache's key-value store. It only ever holds data
// that the next poll can rebuild, so a corrupted store is recovered rather
// than refused.
type LevelDB struct {
	conn *leveldb.DB
}

// NewLevelDB opens (or creates) the store at path.
func NewLevelDB(path string) (*LevelDB, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	conn, err := leveldb.OpenFile(path, &opt.Options{NoSync: true})
	if lerrors.IsCorrupted(err) {
		logger.Logger.Warn("Snapshot cache corrupted; recovering", zap.String("path", path), zap.Error(err))
		conn, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{conn: conn}, nil
}

func (l *LevelDB) Close() error {
	return l.conn.Close()
}

func (l *LevelDB) Put(key, value []byte) error {
	return l.conn.Put(key, value, nil)
}

// Get returns ErrNotFound for a missing key.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	return l.conn.Get(key, nil)
}

// Delete removes key; a missing key is not an error.
func (l *LevelDB) Delete(key []byte) error {
	if err := l.conn.Delete(key, nil); err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return err
	}
	return nil
}

// NewPrefixIterator iterates over the keys starting with prefix. The caller
// must Release it.
func (l *LevelDB) NewPrefixIterator(prefix []byte) iterator.Iterator {
	return l.conn.NewIterator(util.BytesPrefix(prefix), nil)
}
