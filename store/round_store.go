package store

import (
	"fmt"

	"github.com/mezonai/dpos/db"
	"github.com/mezonai/dpos/jsonx"
	"github.com/pkg/errors"
)

// VoteSnapshotEntry is what a votes snapshot keeps per account.
type VoteSnapshotEntry struct {
	Vote int64  `json:"vote"`
	CMB  *int64 `json:"cmb,omitempty"`
}

// RoundStore keeps the delegate list computed for each round, so the forging order
// of a round does not change mid-round or across restarts.
type RoundStore interface {
	DelegateList(round int64) ([][]byte, error)
	SaveDelegateList(round int64, list [][]byte) error
	DeleteDelegateListsFrom(round int64) error
	VotesSnapshot(round int64) (map[string]VoteSnapshotEntry, error)
}

type GenericRoundStore struct {
	provider db.IterableProvider
}

func NewGenericRoundStore(provider db.IterableProvider) (*GenericRoundStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericRoundStore{provider: provider}, nil
}

func (rs *GenericRoundStore) DelegateList(round int64) ([][]byte, error) {
	data, err := rs.provider.Get(heightKey(PrefixRoundDelegates, round))
	if err != nil {
		return nil, errors.Wrapf(err, "could not get delegate list of round %d", round)
	}
	if data == nil {
		return nil, nil
	}
	var list [][]byte
	if err := jsonx.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal delegate list of round %d", round)
	}
	return list, nil
}

func (rs *GenericRoundStore) SaveDelegateList(round int64, list [][]byte) error {
	data, err := jsonx.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "failed to marshal delegate list")
	}
	return rs.provider.Put(heightKey(PrefixRoundDelegates, round), data)
}

// DeleteDelegateListsFrom drops cached lists for round and every later round.
func (rs *GenericRoundStore) DeleteDelegateListsFrom(round int64) error {
	var keys [][]byte
	err := rs.provider.IteratePrefix([]byte(PrefixRoundDelegates), func(key, _ []byte) bool {
		if decodeHeight(key[len(PrefixRoundDelegates):]) >= round {
			keys = append(keys, append([]byte(nil), key...))
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := rs.provider.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (rs *GenericRoundStore) VotesSnapshot(round int64) (map[string]VoteSnapshotEntry, error) {
	data, err := rs.provider.Get(heightKey(PrefixVotesSnapshot, round))
	if err != nil {
		return nil, errors.Wrapf(err, "could not get votes snapshot of round %d", round)
	}
	if data == nil {
		return nil, nil
	}
	var snap map[string]VoteSnapshotEntry
	if err := jsonx.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal votes snapshot of round %d", round)
	}
	return snap, nil
}
