package store

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mezonai/dpos/db"
	"github.com/mezonai/dpos/jsonx"
	"github.com/mezonai/dpos/types"
	"github.com/pkg/errors"
)

// AccountStore is the read side of account state. Writes go through the OpExecutor.
type AccountStore interface {
	GetByAddr(addr string) (*types.Account, error)
	GetBatch(addrs []string) (map[string]*types.Account, error)
	GetByForgingPK(pk []byte) (*types.Account, error)
	GetByUsername(username string) (*types.Account, error)
	ExistsByAddr(addr string) (bool, error)
	ForEach(fn func(*types.Account) bool) error
}

type GenericAccountStore struct {
	dbProvider db.IterableProvider
}

func NewGenericAccountStore(dbProvider db.IterableProvider) (*GenericAccountStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericAccountStore{
		dbProvider: dbProvider,
	}, nil
}

// GetByAddr returns nil, nil when the account has never been referenced.
func (as *GenericAccountStore) GetByAddr(addr string) (*types.Account, error) {
	data, err := as.dbProvider.Get(accountKey(addr))
	if err != nil {
		return nil, errors.Wrapf(err, "could not get account %s", addr)
	}
	if data == nil {
		return nil, nil
	}
	return decodeAccount(data)
}

func (as *GenericAccountStore) GetBatch(addrs []string) (map[string]*types.Account, error) {
	keys := make([][]byte, len(addrs))
	for i, addr := range addrs {
		keys[i] = accountKey(addr)
	}
	raw, err := as.dbProvider.GetBatch(keys)
	if err != nil {
		return nil, errors.Wrap(err, "could not get accounts")
	}
	out := make(map[string]*types.Account, len(raw))
	for key, data := range raw {
		acc, err := decodeAccount(data)
		if err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(key, PrefixAccount)] = acc
	}
	return out, nil
}

func (as *GenericAccountStore) GetByForgingPK(pk []byte) (*types.Account, error) {
	return as.getByIndex(PrefixAccountForgingKey + hex.EncodeToString(pk))
}

func (as *GenericAccountStore) GetByUsername(username string) (*types.Account, error) {
	return as.getByIndex(PrefixAccountUsername + username)
}

func (as *GenericAccountStore) getByIndex(key string) (*types.Account, error) {
	addr, err := as.dbProvider.Get([]byte(key))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read index %s", key)
	}
	if addr == nil {
		return nil, nil
	}
	return as.GetByAddr(string(addr))
}

func (as *GenericAccountStore) ExistsByAddr(addr string) (bool, error) {
	return as.dbProvider.Has(accountKey(addr))
}

// ForEach visits accounts in address key order until fn returns false.
func (as *GenericAccountStore) ForEach(fn func(*types.Account) bool) error {
	var decodeErr error
	err := as.dbProvider.IteratePrefix([]byte(PrefixAccount), func(_, value []byte) bool {
		acc, err := decodeAccount(value)
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(acc)
	})
	if decodeErr != nil {
		return decodeErr
	}
	return err
}

func decodeAccount(data []byte) (*types.Account, error) {
	var acc types.Account
	if err := jsonx.Unmarshal(data, &acc); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal account")
	}
	return &acc, nil
}
