package rounds

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"strconv"
	"sync"

	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/types"
)

// AccountSource is the confirmed account state the round logic reads.
type AccountSource interface {
	GetByForgingPK(pk []byte) (*types.Account, error)
	ForEach(fn func(*types.Account) bool) error
}

// ListStore persists the forging order of each round.
type ListStore interface {
	DelegateList(round int64) ([][]byte, error)
	SaveDelegateList(round int64, list [][]byte) error
}

// DelegateLists computes and caches the forging order of each round.
type DelegateLists struct {
	accounts        AccountSource
	store           ListStore
	activeDelegates int64

	mu    sync.Mutex
	cache map[int64][][]byte
}

func NewDelegateLists(accounts AccountSource, store ListStore, activeDelegates int64) *DelegateLists {
	return &DelegateLists{
		accounts:        accounts,
		store:           store,
		activeDelegates: activeDelegates,
		cache:           make(map[int64][][]byte),
	}
}

// ForHeight returns the ordered forging keys of the round containing height.
func (d *DelegateLists) ForHeight(height int64) ([][]byte, error) {
	return d.ForRound(CalcRound(height, d.activeDelegates))
}

func (d *DelegateLists) ForRound(round int64) ([][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if list, ok := d.cache[round]; ok {
		return list, nil
	}
	list, err := d.store.DelegateList(round)
	if err != nil {
		return nil, err
	}
	if list == nil {
		top, err := d.topDelegates()
		if err != nil {
			return nil, err
		}
		list = Shuffle(top, round)
		if err := d.store.SaveDelegateList(round, list); err != nil {
			return nil, err
		}
		logx.Debug("ROUNDS", "generated delegate list for round ", round, " with ", len(list), " delegates")
	}
	d.cache[round] = list
	return list, nil
}

// Forget drops cached lists for round and later rounds. Persisted copies are removed by the
// rollback batch itself.
func (d *DelegateLists) Forget(round int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for r := range d.cache {
		if r >= round {
			delete(d.cache, r)
		}
	}
}

// topDelegates ranks delegates by vote, highest first, breaking ties by forging key.
func (d *DelegateLists) topDelegates() ([][]byte, error) {
	var delegates []*types.Account
	err := d.accounts.ForEach(func(acc *types.Account) bool {
		if acc.IsDelegate && len(acc.ForgingPK) > 0 {
			delegates = append(delegates, acc)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(delegates, func(i, j int) bool {
		if delegates[i].Vote != delegates[j].Vote {
			return delegates[i].Vote > delegates[j].Vote
		}
		return bytes.Compare(delegates[i].ForgingPK, delegates[j].ForgingPK) < 0
	})
	if int64(len(delegates)) > d.activeDelegates {
		delegates = delegates[:d.activeDelegates]
	}
	out := make([][]byte, len(delegates))
	for i, acc := range delegates {
		out[i] = acc.ForgingPK
	}
	return out, nil
}

// Shuffle reorders keys deterministically for round. The seed is the sha256 of the round
// number in decimal; every four swaps consume one seed, which is then rehashed.
func Shuffle(keys [][]byte, round int64) [][]byte {
	out := make([][]byte, len(keys))
	copy(out, keys)
	n := len(out)
	if n == 0 {
		return out
	}
	seed := sha256.Sum256([]byte(strconv.FormatInt(round, 10)))
	for i := 0; i < n; i++ {
		for x := 0; x < 4 && i < n; i, x = i+1, x+1 {
			j := int(seed[x]) % n
			out[i], out[j] = out[j], out[i]
		}
		seed = sha256.Sum256(seed[:])
	}
	return out
}
