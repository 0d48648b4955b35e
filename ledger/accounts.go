package ledger

import (
	"sort"

	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/types"
)

// AccountCache is the working set of accounts touched while building one batch of ops. Reads
// fall through to committed state once; later reads see in-memory changes.
type AccountCache struct {
	reader interface {
		GetByAddr(addr string) (*types.Account, error)
	}
	accounts map[string]*types.Account
}

func NewAccountCache(reader interface {
	GetByAddr(addr string) (*types.Account, error)
}) *AccountCache {
	return &AccountCache{reader: reader, accounts: make(map[string]*types.Account)}
}

// Get returns the cached account, loading it on first use. Missing accounts are nil.
func (c *AccountCache) Get(addr string) (*types.Account, error) {
	if acc, ok := c.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := c.reader.GetByAddr(addr)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		c.accounts[addr] = acc
	}
	return acc, nil
}

// GetOrCreate is Get, with a zero account standing in for one not yet stored.
func (c *AccountCache) GetOrCreate(addr string) (*types.Account, error) {
	acc, err := c.Get(addr)
	if err != nil || acc != nil {
		return acc, err
	}
	acc = &types.Account{Address: addr}
	c.accounts[addr] = acc
	return acc, nil
}

// Accounts lists the working set in address order.
func (c *AccountCache) Accounts() []*types.Account {
	out := make([]*types.Account, 0, len(c.accounts))
	for _, acc := range c.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Reflect mirrors the balance increments of ops onto cached accounts. Callers pass the ops
// following the engine's own balance op, which the engine already applied in memory.
// Accounts not cached are left to the executor.
func (c *AccountCache) Reflect(ops []dbop.Op) {
	for _, op := range ops {
		if op.Kind != dbop.KindUpdate || op.Target != dbop.TargetAccounts {
			continue
		}
		for _, addr := range op.Filter.In {
			acc, ok := c.accounts[addr]
			if !ok {
				continue
			}
			if v, ok := op.Values["balance"]; ok && v.Mode == dbop.ModeInc {
				acc.Balance += v.Inc
			}
			if v, ok := op.Values["u_balance"]; ok && v.Mode == dbop.ModeInc {
				acc.UBalance += v.Inc
			}
		}
	}
}
