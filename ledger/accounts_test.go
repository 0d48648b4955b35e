package ledger

import (
	"testing"

	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAccounts struct {
	accounts map[string]*types.Account
	reads    int
}

func (m *memAccounts) GetByAddr(addr string) (*types.Account, error) {
	m.reads++
	if acc, ok := m.accounts[addr]; ok {
		return acc.Clone(), nil
	}
	return nil, nil
}

func (m *memAccounts) GetByUsername(string) (*types.Account, error) { return nil, nil }

func (m *memAccounts) GetByForgingPK([]byte) (*types.Account, error) { return nil, nil }

func TestAccountCacheReadsThroughOnce(t *testing.T) {
	mem := &memAccounts{accounts: map[string]*types.Account{"1R": {Address: "1R", Balance: 10}}}
	cache := NewAccountCache(mem)

	acc, err := cache.Get("1R")
	require.NoError(t, err)
	acc.Balance = 99
	again, err := cache.Get("1R")
	require.NoError(t, err)
	assert.Same(t, acc, again)
	assert.Equal(t, 1, mem.reads)

	missing, err := cache.Get("2R")
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := cache.GetOrCreate("2R")
	require.NoError(t, err)
	assert.Equal(t, &types.Account{Address: "2R"}, created)

	var addrs []string
	for _, a := range cache.Accounts() {
		addrs = append(addrs, a.Address)
	}
	assert.Equal(t, []string{"1R", "2R"}, addrs)
}

func TestAccountCacheReflect(t *testing.T) {
	mem := &memAccounts{accounts: map[string]*types.Account{"1R": {Address: "1R", Balance: 10, UBalance: 10}}}
	cache := NewAccountCache(mem)
	_, err := cache.Get("1R")
	require.NoError(t, err)

	cache.Reflect([]dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("1R", "3R"), dbop.Values{
			"balance":   dbop.Inc(5),
			"u_balance": dbop.Inc(-2),
		}),
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("1R"), dbop.Values{"balance": dbop.Set(int64(1000))}),
		dbop.Create(dbop.TargetAccounts, dbop.Values{"address": dbop.Set("1R"), "balance": dbop.Inc(7)}),
	})

	acc, err := cache.Get("1R")
	require.NoError(t, err)
	assert.Equal(t, int64(15), acc.Balance)
	assert.Equal(t, int64(8), acc.UBalance)
	assert.Len(t, cache.Accounts(), 1)
}

func TestLedgerTip(t *testing.T) {
	l := NewLedger(&memAccounts{}, NewSequence("balance"))
	assert.Nil(t, l.LastBlock())
	assert.Zero(t, l.Height())

	l.SetLastBlock(&types.Block{ID: "7", Height: 7})
	assert.Equal(t, int64(7), l.Height())
	assert.Equal(t, "7", l.LastBlock().ID)

	assert.False(t, l.IsSyncing())
	l.SetSyncing(true)
	assert.True(t, l.IsSyncing())
}
