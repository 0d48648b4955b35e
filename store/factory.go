package store

import (
	"fmt"

	"github.com/mezonai/dpos/db"
)

// Stores groups the read stores and the op executor sharing one provider.
type Stores struct {
	Provider db.IterableProvider
	Accounts *GenericAccountStore
	Blocks   *GenericBlockStore
	Txs      *GenericTxStore
	Rounds   *GenericRoundStore
	Executor *OpExecutor
}

type StoreConfig struct {
	Type      db.ProviderType
	Directory string
}

func (c StoreConfig) Validate() error {
	switch c.Type {
	case db.ProviderLevelDB, db.ProviderBolt:
		if c.Directory == "" {
			return fmt.Errorf("directory is required for %s store", c.Type)
		}
	case db.ProviderMemory:
	default:
		return fmt.Errorf("unsupported store type %q", c.Type)
	}
	return nil
}

func CreateStores(cfg StoreConfig) (*Stores, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider, err := db.Open(cfg.Type, cfg.Directory)
	if err != nil {
		return nil, err
	}
	return NewStores(provider)
}

func NewStores(provider db.IterableProvider) (*Stores, error) {
	accounts, err := NewGenericAccountStore(provider)
	if err != nil {
		return nil, err
	}
	blocks, err := NewGenericBlockStore(provider)
	if err != nil {
		return nil, err
	}
	txs, err := NewGenericTxStore(provider)
	if err != nil {
		return nil, err
	}
	rounds, err := NewGenericRoundStore(provider)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Provider: provider,
		Accounts: accounts,
		Blocks:   blocks,
		Txs:      txs,
		Rounds:   rounds,
		Executor: NewOpExecutor(provider),
	}, nil
}

func (s *Stores) Close() error {
	return s.Provider.Close()
}
