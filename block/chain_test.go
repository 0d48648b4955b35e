package block

import (
	"context"
	"errors"
	"testing"

	"github.com/mezonai/dpos/crypto"
	lerrors "github.com/mezonai/dpos/errors"
	"github.com/mezonai/dpos/events"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesGenesis(t *testing.T) {
	f := newChainFixture(t)
	assert.Equal(t, int64(1), f.ledger.Height())
	assert.Equal(t, []string{f.genesis.ID}, f.verifier.LastBlockIDs())

	d2 := f.account(t, ids.AddressFromPubData(f.delegate("d2").PublicKey))
	require.NotNil(t, d2)
	assert.True(t, d2.IsDelegate)
	assert.Equal(t, "d2", d2.Username)
	assert.Equal(t, int64(2000000), d2.Balance)
	assert.Equal(t, int64(2000000), d2.UBalance)
	assert.Equal(t, int64(2000000), d2.Vote)
	assert.Equal(t, []string{"d2"}, d2.Delegates)
	assert.Equal(t, []byte(f.delegate("d2").PublicKey), d2.PublicKey)

	rich := f.account(t, ids.AddressFromPubData(f.rich.PublicKey))
	require.NotNil(t, rich)
	assert.Equal(t, int64(500000), rich.Balance)

	source := f.account(t, f.genesis.Transactions[0].SenderID)
	require.NotNil(t, source)
	assert.Equal(t, int64(-6500000), source.Balance)

	// Reloading on a populated store keeps the tip.
	require.NoError(t, f.chain.Load(context.Background(), f.genesis))
	assert.Equal(t, f.genesis.ID, f.chain.LastBlock().ID)
}

func TestLoadRejectsForeignGenesis(t *testing.T) {
	f := newChainFixture(t)
	cfg := testGenesisConfig()
	cfg.Secret = "another network"
	other, err := BuildGenesis(cfg, f.registry)
	require.NoError(t, err)

	err = f.chain.Load(context.Background(), other)
	code, ok := lerrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, lerrors.ErrCodeStateDivergence, code)
}

func TestForgeConfirmsPooledTransactions(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t)
	sub, ch := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub)

	d1 := ids.AddressFromPubData(f.delegate("d1").PublicKey)
	tx := f.send(t, f.rich, d1, 1000)
	require.NoError(t, f.pool.ProcessUnconfirmed(ctx, tx))

	b := f.forge(t)
	assert.Equal(t, int64(2), b.Height)
	require.Len(t, b.Transactions, 1)
	assert.Equal(t, tx.ID, b.Transactions[0].ID)
	assert.Zero(t, f.pool.Len())

	rich := f.account(t, tx.SenderID)
	assert.Equal(t, int64(500000-1010), rich.Balance)
	assert.Equal(t, int64(500000-1010), rich.UBalance)
	assert.Equal(t, int64(1001000), f.account(t, d1).Balance)

	stored, err := f.stores.Txs.GetByID(tx.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, b.ID, stored.BlockID)

	var applied bool
	for len(ch) > 0 {
		if ev := <-ch; ev.Type() == events.EventBlockApplied && ev.Key() == b.ID {
			applied = true
		}
	}
	assert.True(t, applied)
}

func TestDeleteLastBlockRestoresAccounts(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t)
	d3 := ids.AddressFromPubData(f.delegate("d3").PublicKey)
	tx := f.send(t, f.rich, d3, 2500)
	require.NoError(t, f.pool.ProcessUnconfirmed(ctx, tx))
	before := f.accounts(t)

	f.forge(t)
	f.forge(t) // closes round 1
	assert.Equal(t, int64(3), f.ledger.Height())
	assert.NotEqual(t, before[d3].Balance, f.account(t, d3).Balance)

	for f.ledger.Height() > 1 {
		_, err := f.chain.DeleteLastBlock(ctx)
		require.NoError(t, err)
	}

	after := f.accounts(t)
	require.Len(t, after, len(before))
	for addr, acc := range before {
		assert.True(t, acc.Equal(after[addr]), "account %s differs after rollback", addr)
	}
	assert.True(t, f.pool.Has(tx.ID))
	assert.Equal(t, []string{f.genesis.ID}, f.verifier.LastBlockIDs())

	has, err := f.stores.Blocks.HasBlock(f.genesis.ID)
	require.NoError(t, err)
	assert.True(t, has)
	confirmed, err := f.stores.Txs.ConfirmedIDs([]string{tx.ID})
	require.NoError(t, err)
	assert.Empty(t, confirmed)
}

func TestDeleteGenesisRejected(t *testing.T) {
	f := newChainFixture(t)
	_, err := f.chain.DeleteLastBlock(context.Background())
	assert.ErrorIs(t, err, ErrGenesisDeletion)
	assert.NoError(t, f.chain.Halted())
}

func TestDeleteAfterBlockAndRecover(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t)
	first := f.forge(t)
	f.forge(t)
	f.forge(t)

	require.NoError(t, f.chain.DeleteAfterBlock(ctx, first.ID))
	assert.Equal(t, first.ID, f.chain.LastBlock().ID)

	require.NoError(t, f.chain.RecoverChain(ctx))
	assert.Equal(t, f.genesis.ID, f.chain.LastBlock().ID)
	assert.ErrorIs(t, f.chain.RecoverChain(ctx), ErrGenesisDeletion)
}

func TestProcessBlockRejectsWrongSlotOwner(t *testing.T) {
	f := newChainFixture(t)
	b, owner := f.unsigned(t)
	for _, kp := range f.forgers {
		if !kp.PublicKey.Equal(owner.PublicKey) {
			require.NoError(t, Sign(b, kp))
			break
		}
	}

	err := f.chain.ProcessBlock(context.Background(), b)
	assert.ErrorIs(t, err, ErrSlot)
	assert.Equal(t, int64(1), f.ledger.Height())
}

func TestProcessBlockRejectsFutureSlot(t *testing.T) {
	f := newChainFixture(t)
	b, kp := f.unsigned(t)
	b.Timestamp += int32(f.cfg.BlockTime)
	require.NoError(t, Sign(b, kp))

	err := f.chain.ProcessBlock(context.Background(), b)
	assert.ErrorIs(t, err, ErrBlockTimestamp)
}

func TestProcessBlockDuplicateTransactionHasNoEffect(t *testing.T) {
	f := newChainFixture(t)
	d1 := ids.AddressFromPubData(f.delegate("d1").PublicKey)
	tx := f.send(t, f.rich, d1, 100)
	before := f.accounts(t)

	b, kp := f.unsigned(t, tx, tx.Clone())
	require.NoError(t, Sign(b, kp))
	err := f.chain.ProcessBlock(context.Background(), b)

	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Errors, "Encountered duplicate transaction: "+tx.ID)
	assert.Equal(t, int64(1), f.ledger.Height())
	after := f.accounts(t)
	for addr, acc := range before {
		assert.True(t, acc.Equal(after[addr]), addr)
	}
}

func TestProcessBlockRejectsConfirmedTransaction(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t)
	d1 := ids.AddressFromPubData(f.delegate("d1").PublicKey)
	tx := f.send(t, f.rich, d1, 100)
	require.NoError(t, f.pool.ProcessUnconfirmed(ctx, tx))
	f.forge(t)

	b, kp := f.unsigned(t, tx.Clone())
	require.NoError(t, Sign(b, kp))
	err := f.chain.ProcessBlock(ctx, b)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.Equal(t, int64(2), f.ledger.Height())
}

func TestProcessBlockRejectsOverspend(t *testing.T) {
	f := newChainFixture(t)
	d1 := ids.AddressFromPubData(f.delegate("d1").PublicKey)
	tx := f.send(t, f.rich, d1, 600000)

	b, kp := f.unsigned(t, tx)
	require.NoError(t, Sign(b, kp))
	err := f.chain.ProcessBlock(context.Background(), b)
	assert.ErrorContains(t, err, "Account does not have enough currency")
	assert.Equal(t, int64(1), f.ledger.Height())
}

func TestApplyHookFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t)
	d1 := ids.AddressFromPubData(f.delegate("d1").PublicKey)
	tx := f.send(t, f.rich, d1, 100)
	require.NoError(t, f.pool.ProcessUnconfirmed(ctx, tx))
	before := f.accounts(t)

	f.chain.ApplyHooks.Register("veto", 1, func(_ context.Context, p *ApplyPayload) (*ApplyPayload, error) {
		return p, errors.New("vetoed")
	})
	_, kp := f.nextSlot(t)
	last := f.ledger.LastBlock()
	err := f.generator.GenerateBlock(ctx, kp, f.slots.SlotTime(f.slots.NextSlot(int64(last.Timestamp))))
	assert.ErrorContains(t, err, "vetoed")

	assert.Equal(t, int64(1), f.ledger.Height())
	assert.True(t, f.pool.Has(tx.ID))
	after := f.accounts(t)
	for addr, acc := range before {
		assert.True(t, acc.Equal(after[addr]), addr)
	}
}

func TestVerifyStoredChain(t *testing.T) {
	f := newChainFixture(t)
	f.forge(t)
	f.forge(t)
	assert.NoError(t, f.chain.VerifyStoredChain(context.Background()))
}

func TestCheckInvariants(t *testing.T) {
	b := &types.Block{ID: "1", TotalAmount: 100, TotalFee: 10, Transactions: []*types.Transaction{{Amount: 100, Fee: 10}}}
	assert.NoError(t, checkInvariants(b, []*types.Account{{Address: "1R", Balance: 0}}))

	err := checkInvariants(b, []*types.Account{{Address: "1R", Balance: -1}})
	assert.True(t, lerrors.IsFatal(err))
	code, _ := lerrors.CodeOf(err)
	assert.Equal(t, lerrors.ErrCodeNegativeBalance, code)

	b.TotalFee = 11
	err = checkInvariants(b, nil)
	code, _ = lerrors.CodeOf(err)
	assert.Equal(t, lerrors.ErrCodeUnbalancedBlock, code)
}

func TestHaltedChainRefusesWork(t *testing.T) {
	f := newChainFixture(t)
	f.chain.halt(lerrors.NewError(lerrors.ErrCodeRoundPot, "test"))
	_, err := f.chain.DeleteLastBlock(context.Background())
	assert.ErrorIs(t, err, ErrHalted)
	b, kp := f.unsigned(t)
	require.NoError(t, Sign(b, kp))
	assert.ErrorIs(t, f.chain.ProcessBlock(context.Background(), b), ErrHalted)
}

func TestLoadWithoutGenesis(t *testing.T) {
	f := newChainFixture(t)
	fresh := NewChain(f.ledger, emptyStore{}, f.stores.Executor, f.engine, f.verifier, f.accountant, f.pool, f.slots, f.clock, nil)
	assert.ErrorIs(t, fresh.Load(context.Background(), nil), ErrNoGenesis)
}

type emptyStore struct{}

func (emptyStore) ByHeight(int64) (*types.Block, error)              { return nil, nil }
func (emptyStore) ByID(string) (*types.Block, error)                 { return nil, nil }
func (emptyStore) HasBlock(string) (bool, error)                     { return false, nil }
func (emptyStore) LastHeight() (int64, error)                        { return 0, nil }
func (emptyStore) LastIDs(int) ([]string, error)                     { return nil, nil }
func (emptyStore) Transactions(string) ([]*types.Transaction, error) { return nil, nil }

func (f *chainFixture) vote(t *testing.T, from crypto.Keypair, senderID string, added, removed []string) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		Type:          types.TxTypeVote,
		SenderPubData: from.PublicKey,
		SenderID:      senderID,
		RecipientID:   ids.AddressFromPubData(from.PublicKey),
		Fee:           f.sys.FeesAt(f.ledger.Height() + 1).Vote,
		Timestamp:     int32(f.slots.Time(f.clock.Now())),
		Asset:         types.TxAsset{Votes: &types.VotesAsset{Added: added, Removed: removed}},
	}
	require.NoError(t, f.registry.Sign(tx, from))
	return tx
}

func TestProcessBlockVotesFromDistinctSendersWithoutSenderID(t *testing.T) {
	f := newChainFixture(t)
	d1, d2 := f.delegate("d1"), f.delegate("d2")

	b, kp := f.unsigned(t,
		f.vote(t, d1, "", nil, []string{"d1"}),
		f.vote(t, d2, "", nil, []string{"d2"}),
	)
	require.NoError(t, Sign(b, kp))
	require.NoError(t, f.chain.ProcessBlock(context.Background(), b))

	assert.Equal(t, int64(2), f.ledger.Height())
	assert.Empty(t, f.account(t, ids.AddressFromPubData(d1.PublicKey)).Delegates)
	assert.Empty(t, f.account(t, ids.AddressFromPubData(d2.PublicKey)).Delegates)
}

func TestProcessBlockOneVotePerSenderWhateverSenderID(t *testing.T) {
	f := newChainFixture(t)
	d1 := f.delegate("d1")
	addr := ids.AddressFromPubData(d1.PublicKey)

	b, kp := f.unsigned(t,
		f.vote(t, d1, addr, nil, []string{"d1"}),
		f.vote(t, d1, "", []string{"d2"}, nil),
	)
	require.NoError(t, Sign(b, kp))
	err := f.chain.ProcessBlock(context.Background(), b)
	assert.ErrorIs(t, err, ErrConflictingTransactions)
	assert.Equal(t, int64(1), f.ledger.Height())
	assert.Equal(t, []string{"d1"}, f.account(t, addr).Delegates)
}

func TestProcessBlockRejectsSpoofedSenderID(t *testing.T) {
	f := newChainFixture(t)
	d1, d2 := f.delegate("d1"), f.delegate("d2")

	b, kp := f.unsigned(t,
		f.vote(t, d1, ids.AddressFromPubData(d2.PublicKey), nil, []string{"d1"}),
		f.vote(t, d2, "", nil, []string{"d2"}),
	)
	require.NoError(t, Sign(b, kp))
	err := f.chain.ProcessBlock(context.Background(), b)
	assert.ErrorIs(t, err, transaction.ErrAddressMismatch)
	assert.Equal(t, int64(1), f.ledger.Height())
}
