package store

import (
	"fmt"

	"github.com/mezonai/dpos/db"
	"github.com/mezonai/dpos/jsonx"
	"github.com/mezonai/dpos/types"
	"github.com/pkg/errors"
)

// BlockStore reads committed blocks. Headers are keyed by height, transactions by block id and position.
type BlockStore interface {
	LastHeight() (int64, error)
	ByHeight(height int64) (*types.Block, error)
	ByID(id string) (*types.Block, error)
	HasBlock(id string) (bool, error)
	LastIDs(n int) ([]string, error)
	Transactions(blockID string) ([]*types.Transaction, error)
}

type GenericBlockStore struct {
	provider db.IterableProvider
}

func NewGenericBlockStore(provider db.IterableProvider) (*GenericBlockStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericBlockStore{provider: provider}, nil
}

// LastHeight returns 0 on an empty chain.
func (bs *GenericBlockStore) LastHeight() (int64, error) {
	data, err := bs.provider.Get([]byte(PrefixBlockMeta + BlockMetaKeyLatest))
	if err != nil {
		return 0, errors.Wrap(err, "could not read latest height")
	}
	return decodeHeight(data), nil
}

// ByHeight returns the block header at height, or nil if there is none.
func (bs *GenericBlockStore) ByHeight(height int64) (*types.Block, error) {
	data, err := bs.provider.Get(heightKey(PrefixBlock, height))
	if err != nil {
		return nil, errors.Wrapf(err, "could not get block at height %d", height)
	}
	if data == nil {
		return nil, nil
	}
	var blk types.Block
	if err := jsonx.Unmarshal(data, &blk); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal block at height %d", height)
	}
	return &blk, nil
}

func (bs *GenericBlockStore) ByID(id string) (*types.Block, error) {
	height, err := bs.heightOf(id)
	if err != nil || height == 0 {
		return nil, err
	}
	return bs.ByHeight(height)
}

func (bs *GenericBlockStore) HasBlock(id string) (bool, error) {
	return bs.provider.Has([]byte(PrefixBlockID + id))
}

func (bs *GenericBlockStore) heightOf(id string) (int64, error) {
	data, err := bs.provider.Get([]byte(PrefixBlockID + id))
	if err != nil {
		return 0, errors.Wrapf(err, "could not get block id %s", id)
	}
	return decodeHeight(data), nil
}

// LastIDs returns up to n ids from the tip downwards.
func (bs *GenericBlockStore) LastIDs(n int) ([]string, error) {
	last, err := bs.LastHeight()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for h := last; h >= 1 && len(out) < n; h-- {
		blk, err := bs.ByHeight(h)
		if err != nil {
			return nil, err
		}
		if blk == nil {
			return nil, fmt.Errorf("missing block at height %d", h)
		}
		out = append(out, blk.ID)
	}
	return out, nil
}

// Transactions returns the block's transactions in block order.
func (bs *GenericBlockStore) Transactions(blockID string) ([]*types.Transaction, error) {
	var ids [][]byte
	err := bs.provider.IteratePrefix([]byte(PrefixBlockTx+blockID+":"), func(_, value []byte) bool {
		ids = append(ids, []byte(PrefixTx+string(value)))
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not list transactions of block %s", blockID)
	}
	raw, err := bs.provider.GetBatch(ids)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load transactions of block %s", blockID)
	}
	out := make([]*types.Transaction, 0, len(ids))
	for _, key := range ids {
		data, ok := raw[string(key)]
		if !ok {
			return nil, fmt.Errorf("transaction %s of block %s not found", key[len(PrefixTx):], blockID)
		}
		var tx types.Transaction
		if err := jsonx.Unmarshal(data, &tx); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal transaction")
		}
		out = append(out, &tx)
	}
	return out, nil
}
