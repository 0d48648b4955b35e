package db

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBOptions tunes the ledger's LevelDB instance.
type LevelDBOptions struct {
	// SyncWrites fsyncs every committed batch. Block commits are rare enough to afford it.
	SyncWrites         bool
	BlockCacheCapacity int
}

func DefaultLevelDBOptions() LevelDBOptions {
	return LevelDBOptions{SyncWrites: true, BlockCacheCapacity: 16 * opt.MiB}
}

// LevelDBProvider stores the ledger in LevelDB. Reads of several keys share one snapshot.
type LevelDBProvider struct {
	once  sync.Once
	db    *leveldb.DB
	write *opt.WriteOptions
}

func NewLevelDBProvider(directory string) (*LevelDBProvider, error) {
	return NewLevelDBProviderWithOptions(directory, DefaultLevelDBOptions())
}

func NewLevelDBProviderWithOptions(directory string, o LevelDBOptions) (*LevelDBProvider, error) {
	db, err := leveldb.OpenFile(directory, &opt.Options{BlockCacheCapacity: o.BlockCacheCapacity})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open LevelDB at %s", directory)
	}
	return &LevelDBProvider{db: db, write: &opt.WriteOptions{Sync: o.SyncWrites}}, nil
}

// NewMemLevelDBProvider opens LevelDB over in-memory storage. Nothing survives Close.
func NewMemLevelDBProvider() (*LevelDBProvider, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory LevelDB")
	}
	return &LevelDBProvider{db: db, write: &opt.WriteOptions{}}, nil
}

func (p *LevelDBProvider) Get(key []byte) ([]byte, error) {
	value, err := p.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// GetBatch reads keys from one snapshot so a block's accounts are seen at a single version.
func (p *LevelDBProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	snap, err := p.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	for _, key := range keys {
		value, err := snap.Get(key, nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[string(key)] = value
	}
	return result, nil
}

func (p *LevelDBProvider) Put(key, value []byte) error {
	return p.db.Put(key, value, p.write)
}

func (p *LevelDBProvider) Delete(key []byte) error {
	return p.db.Delete(key, p.write)
}

func (p *LevelDBProvider) Has(key []byte) (bool, error) {
	return p.db.Has(key, nil)
}

// Close is safe to call from every store sharing the provider.
func (p *LevelDBProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

func (p *LevelDBProvider) Batch() DatabaseBatch {
	return &LevelDBBatch{batch: new(leveldb.Batch), db: p.db, write: p.write}
}

// IteratePrefix walks keys under prefix in order until callback returns false.
func (p *LevelDBProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	iter := p.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if !callback(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

type LevelDBBatch struct {
	batch *leveldb.Batch
	db    *leveldb.DB
	write *opt.WriteOptions
}

func (b *LevelDBBatch) Put(key, value []byte) { b.batch.Put(key, value) }

func (b *LevelDBBatch) Delete(key []byte) { b.batch.Delete(key) }

func (b *LevelDBBatch) Write() error { return b.db.Write(b.batch, b.write) }

func (b *LevelDBBatch) Reset() { b.batch.Reset() }

func (b *LevelDBBatch) Len() int { return b.batch.Len() }

func (b *LevelDBBatch) Close() error { return nil }
