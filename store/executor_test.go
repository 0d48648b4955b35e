package store

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/mezonai/dpos/db"
	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	s, err := NewStores(provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustAccount(t *testing.T, s *Stores, addr string) *types.Account {
	t.Helper()
	acc, err := s.Accounts.GetByAddr(addr)
	require.NoError(t, err)
	require.NotNil(t, acc, addr)
	return acc
}

func TestExecuteCreateAndUpdate(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Create(dbop.TargetAccounts, dbop.Values{"address": dbop.Set("1R")}),
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("1R"), dbop.Values{
			"balance":   dbop.Inc(100),
			"u_balance": dbop.Inc(100),
		}),
		// creating an existing account is a no-op
		dbop.Create(dbop.TargetAccounts, dbop.Values{"address": dbop.Set("1R")}),
	}))

	acc := mustAccount(t, s, "1R")
	assert.Equal(t, int64(100), acc.Balance)
	assert.Equal(t, int64(100), acc.UBalance)
}

func TestExecuteIsAllOrNothing(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Create(dbop.TargetAccounts, dbop.Values{"address": dbop.Set("1R"), "balance": dbop.Set(int64(50))}),
	}))

	err := s.Executor.Execute(ctx, []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("1R"), dbop.Values{"balance": dbop.Inc(-10)}),
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("missingR"), dbop.Values{"balance": dbop.Inc(10)}),
	})
	require.Error(t, err)
	assert.Equal(t, int64(50), mustAccount(t, s, "1R").Balance)
}

func TestIndexesFollowForgingKeyAndUsername(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()
	pk := []byte{1, 2, 3}

	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Create(dbop.TargetAccounts, dbop.Values{"address": dbop.Set("7R")}),
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("7R"), dbop.Values{
			"isDelegate": dbop.Set(true),
			"username":   dbop.Set("genesis_1"),
			"forgingPK":  dbop.Set(pk),
		}),
	}))

	byKey, err := s.Accounts.GetByForgingPK(pk)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "7R", byKey.Address)
	byName, err := s.Accounts.GetByUsername("genesis_1")
	require.NoError(t, err)
	require.NotNil(t, byName)

	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("7R"), dbop.Values{
			"username":  dbop.Set(nil),
			"forgingPK": dbop.Set(nil),
		}),
	}))
	byKey, err = s.Accounts.GetByForgingPK(pk)
	require.NoError(t, err)
	assert.Nil(t, byKey)
	byName, err = s.Accounts.GetByUsername("genesis_1")
	require.NoError(t, err)
	assert.Nil(t, byName)
}

func TestForgingKeyAcceptsPublicKeyType(t *testing.T) {
	s := newTestStores(t)
	pk := ed25519.PublicKey(make([]byte, ed25519.PublicKeySize))
	pk[0] = 7

	require.NoError(t, s.Executor.Execute(context.Background(), []dbop.Op{
		dbop.Create(dbop.TargetAccounts, dbop.Values{
			"address":    dbop.Set("8R"),
			"isDelegate": dbop.Set(true),
			"forgingPK":  dbop.Set(pk),
		}),
	}))

	acc := mustAccount(t, s, "8R")
	assert.Equal(t, []byte(pk), acc.ForgingPK)
	byKey, err := s.Accounts.GetByForgingPK(pk)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, "8R", byKey.Address)
}

func TestVotesSnapshotRecalcAndRestore(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Create(dbop.TargetAccounts, dbop.Values{
			"address": dbop.Set("1R"), "isDelegate": dbop.Set(true), "username": dbop.Set("alice"),
			"balance": dbop.Set(int64(10)), "vote": dbop.Set(int64(3)),
		}),
		dbop.Create(dbop.TargetAccounts, dbop.Values{
			"address": dbop.Set("2R"), "balance": dbop.Set(int64(40)), "cmb": dbop.Set(int64(2)),
		}),
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("1R"), dbop.Values{"delegates": dbop.Diff("+alice")}),
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("2R"), dbop.Values{"delegates": dbop.Diff("+alice")}),
	}))

	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress("2R"), dbop.Values{"cmb": dbop.Set(int64(0))}),
		dbop.Custom(dbop.TargetRounds, dbop.Query{Name: dbop.QueryPerformVotesSnapshot, Round: 4, Values: map[string]int64{"2R": 2}}),
		dbop.Custom(dbop.TargetAccounts, dbop.Query{Name: dbop.QueryRecalcVotes}),
	}))
	assert.Equal(t, int64(50), mustAccount(t, s, "1R").Vote)
	assert.Equal(t, int64(0), mustAccount(t, s, "2R").Vote)

	snap, err := s.Rounds.VotesSnapshot(4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap["1R"].Vote)
	require.NotNil(t, snap["2R"].CMB)

	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Custom(dbop.TargetRounds, dbop.Query{Name: dbop.QueryRestoreVotesSnapshot, Round: 4}),
	}))
	assert.Equal(t, int64(3), mustAccount(t, s, "1R").Vote)
	assert.Equal(t, int64(2), mustAccount(t, s, "2R").ConsecutiveMissedBlocks)

	snap, err = s.Rounds.VotesSnapshot(4)
	require.NoError(t, err)
	assert.Nil(t, snap)

	err = s.Executor.Execute(ctx, []dbop.Op{
		dbop.Custom(dbop.TargetRounds, dbop.Query{Name: dbop.QueryRestoreVotesSnapshot, Round: 4}),
	})
	assert.Error(t, err)
}

func TestBlockCreateAndDelete(t *testing.T) {
	s := newTestStores(t)
	ctx := context.Background()

	blk := &types.Block{ID: "11", Height: 1}
	tx := &types.Transaction{ID: "21", BlockID: "11", Type: types.TxTypeDelegate}
	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Create(dbop.TargetBlocks, dbop.Values{"block": dbop.Set(blk)}),
		dbop.BulkCreate(dbop.TargetTransactions, []dbop.Values{{"tx": dbop.Set(tx), "index": dbop.Set(0)}}),
		dbop.Create(dbop.TargetDelegates, dbop.Values{
			"transactionId": dbop.Set("21"), "username": dbop.Set("bob"), "forgingPK": dbop.Set([]byte{9}),
		}),
	}))

	h, err := s.Blocks.LastHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(1), h)
	txs, err := s.Blocks.Transactions("11")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "21", txs[0].ID)
	asset, err := s.Txs.DelegateAsset("21")
	require.NoError(t, err)
	assert.Equal(t, "bob", asset.Username)
	confirmed, err := s.Txs.ConfirmedIDs([]string{"20", "21"})
	require.NoError(t, err)
	assert.Equal(t, []string{"21"}, confirmed)

	err = s.Executor.Execute(ctx, []dbop.Op{dbop.Create(dbop.TargetBlocks, dbop.Values{"block": dbop.Set(blk)})})
	assert.Error(t, err, "a block id is stored once")

	require.NoError(t, s.Executor.Execute(ctx, []dbop.Op{
		dbop.Custom(dbop.TargetBlocks, dbop.Query{Name: dbop.QueryDeleteBlock, Key: "11"}),
	}))
	h, err = s.Blocks.LastHeight()
	require.NoError(t, err)
	assert.Equal(t, int64(0), h)
	has, err := s.Blocks.HasBlock("11")
	require.NoError(t, err)
	assert.False(t, has)
	asset, err = s.Txs.DelegateAsset("21")
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestApplyListRejectsDoubleVote(t *testing.T) {
	out, err := applyList([]string{"a"}, dbop.Diff("+b", "-a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out)

	_, err = applyList([]string{"a"}, dbop.Diff("+a"))
	assert.Error(t, err)
	_, err = applyList(nil, dbop.Diff("-a"))
	assert.Error(t, err)
}

func TestRoundStoreDelegateLists(t *testing.T) {
	s := newTestStores(t)
	require.NoError(t, s.Rounds.SaveDelegateList(3, [][]byte{{1}, {2}}))
	require.NoError(t, s.Rounds.SaveDelegateList(4, [][]byte{{2}, {1}}))

	list, err := s.Rounds.DelegateList(3)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1}, {2}}, list)

	require.NoError(t, s.Rounds.DeleteDelegateListsFrom(4))
	list, err = s.Rounds.DelegateList(4)
	require.NoError(t, err)
	assert.Nil(t, list)
	list, err = s.Rounds.DelegateList(3)
	require.NoError(t, err)
	assert.NotNil(t, list)
}
