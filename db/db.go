package db

import (
	"fmt"
	"os"
	"path/filepath"
)

type ProviderType string

const (
	ProviderLevelDB ProviderType = "leveldb"
	ProviderBolt    ProviderType = "bolt"
	ProviderMemory  ProviderType = "memory"
)

// Open creates the provider named by kind under dataDir.
func Open(kind ProviderType, dataDir string) (IterableProvider, error) {
	switch kind {
	case ProviderMemory:
		return NewMemLevelDBProvider()
	case ProviderLevelDB, "":
		return NewLevelDBProvider(filepath.Join(dataDir, "leveldb"))
	case ProviderBolt:
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		return NewBoltProvider(filepath.Join(dataDir, "ledger.bolt"))
	default:
		return nil, fmt.Errorf("unsupported database type %q", kind)
	}
}
