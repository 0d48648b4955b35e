package db

// DatabaseProvider is the key-value store under the ledger stores. LevelDB and bbolt implement
// it; everything above works on byte keys grouped by prefix.
type DatabaseProvider interface {
	// Get returns the value of key, or nil, nil when it is absent.
	Get(key []byte) ([]byte, error)

	// GetBatch reads several keys at one version. Absent keys are left out of the map.
	GetBatch(keys [][]byte) (map[string][]byte, error)

	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)

	// Close may be called once per store sharing the provider.
	Close() error

	// Batch stages writes to be committed atomically.
	Batch() DatabaseBatch
}

// IterableProvider adds ordered prefix scans, used to list accounts, blocks by height and
// stored delegate lists.
type IterableProvider interface {
	DatabaseProvider

	// IteratePrefix visits keys under prefix in ascending order until callback returns false.
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error
}

// DatabaseBatch collects the writes of one ledger commit.
type DatabaseBatch interface {
	Put(key, value []byte)
	Delete(key []byte)

	// Write commits every staged write or none.
	Write() error

	// Reset drops the staged writes.
	Reset()

	// Len is the number of staged writes
	Len() int

	Close() error
}
