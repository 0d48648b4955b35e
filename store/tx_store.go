package store

import (
	"fmt"

	"github.com/mezonai/dpos/db"
	"github.com/mezonai/dpos/jsonx"
	"github.com/mezonai/dpos/types"
	"github.com/pkg/errors"
)

// TxStore reads confirmed transactions and the variant assets saved beside them.
type TxStore interface {
	GetByID(id string) (*types.Transaction, error)
	ConfirmedIDs(ids []string) ([]string, error)
	DelegateAsset(txID string) (*types.DelegateAsset, error)
	VotesAsset(txID string) (*types.VotesAsset, error)
	SignatureAsset(txID string) (*types.SignatureAsset, error)
}

type GenericTxStore struct {
	provider db.DatabaseProvider
}

func NewGenericTxStore(provider db.DatabaseProvider) (*GenericTxStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericTxStore{provider: provider}, nil
}

func (ts *GenericTxStore) GetByID(id string) (*types.Transaction, error) {
	var tx types.Transaction
	found, err := ts.get(PrefixTx+id, &tx)
	if err != nil || !found {
		return nil, err
	}
	return &tx, nil
}

// ConfirmedIDs returns the subset of ids already stored, preserving input order.
func (ts *GenericTxStore) ConfirmedIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = []byte(PrefixTx + id)
	}
	found, err := ts.provider.GetBatch(keys)
	if err != nil {
		return nil, errors.Wrap(err, "could not check confirmed transactions")
	}
	var out []string
	for _, id := range ids {
		if _, ok := found[PrefixTx+id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (ts *GenericTxStore) DelegateAsset(txID string) (*types.DelegateAsset, error) {
	var asset types.DelegateAsset
	found, err := ts.get(PrefixDelegateAsset+txID, &asset)
	if err != nil || !found {
		return nil, err
	}
	return &asset, nil
}

func (ts *GenericTxStore) VotesAsset(txID string) (*types.VotesAsset, error) {
	var asset types.VotesAsset
	found, err := ts.get(PrefixVoteAsset+txID, &asset)
	if err != nil || !found {
		return nil, err
	}
	return &asset, nil
}

func (ts *GenericTxStore) SignatureAsset(txID string) (*types.SignatureAsset, error) {
	var asset types.SignatureAsset
	found, err := ts.get(PrefixSignatureAsset+txID, &asset)
	if err != nil || !found {
		return nil, err
	}
	return &asset, nil
}

func (ts *GenericTxStore) get(key string, v interface{}) (bool, error) {
	data, err := ts.provider.Get([]byte(key))
	if err != nil {
		return false, errors.Wrapf(err, "could not get %s", key)
	}
	if data == nil {
		return false, nil
	}
	if err := jsonx.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "failed to unmarshal %s", key)
	}
	return true, nil
}
