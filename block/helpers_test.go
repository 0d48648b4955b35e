package block

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/db"
	"github.com/mezonai/dpos/events"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/ledger"
	"github.com/mezonai/dpos/mempool"
	"github.com/mezonai/dpos/rounds"
	"github.com/mezonai/dpos/store"
	"github.com/mezonai/dpos/system"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/txtypes"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2016, 5, 24, 17, 0, 0, 0, time.UTC)

func testNetwork() config.NetworkConfig {
	cfg := config.DefaultNetworkConfig()
	cfg.BlockTime = 10
	cfg.ActiveDelegates = 3
	cfg.Epoch = testEpoch
	cfg.Fees = []config.FeeSchedule{{Height: 1, Send: 10, Vote: 20, SecondSignature: 30, Delegate: 40}}
	return cfg
}

func testGenesisConfig() config.GenesisConfig {
	return config.GenesisConfig{
		Secret: "genesis secret",
		Delegates: []config.GenesisDelegate{
			{Username: "d1", Secret: "d1 secret", Balance: 1000000},
			{Username: "d2", Secret: "d2 secret", Balance: 2000000},
			{Username: "d3", Secret: "d3 secret", Balance: 3000000},
		},
		Allocations: []config.GenesisAllocation{
			{Address: ids.AddressFromPubData(crypto.KeypairFromSecret("rich").PublicKey), Amount: 500000},
		},
	}
}

type chainFixture struct {
	cfg        config.NetworkConfig
	stores     *store.Stores
	sys        *system.System
	registry   *transaction.Registry
	engine     *transaction.Engine
	ledger     *ledger.Ledger
	pool       *mempool.Mempool
	verifier   *Verifier
	accountant *rounds.Accountant
	chain      *Chain
	generator  *Generator
	bus        *events.EventBus
	slots      utils.Slots
	clock      *utils.FixedClock
	genesis    *types.Block
	forgers    map[string]crypto.Keypair
	rich       crypto.Keypair
}

// newChainFixture wires the full stack on an in-memory store with genesis applied.
func newChainFixture(t *testing.T) *chainFixture {
	t.Helper()
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	stores, err := store.NewStores(provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })

	cfg := testNetwork()
	sys := system.New(cfg, nil, false)
	registry, second, err := txtypes.NewDefaultRegistry(txtypes.Deps{
		Fees:                   sys,
		Accounts:               stores.Accounts,
		Assets:                 stores.Txs,
		Verifier:               crypto.Ed25519Verifier{},
		MaxVotesPerTransaction: cfg.MaxVotesPerTransaction,
		MaxVotesPerAccount:     cfg.MaxVotesPerAccount,
	})
	require.NoError(t, err)

	slots := utils.NewSlots(cfg.Epoch, cfg.BlockTime, cfg.ActiveDelegates)
	clock := &utils.FixedClock{T: cfg.Epoch}
	engine := transaction.NewEngine(registry, crypto.Ed25519Verifier{}, clock, slots)
	second.RegisterHooks(engine.Hooks())

	l := ledger.NewLedger(stores.Accounts, ledger.NewSequence("balance"))
	bus := events.NewEventBus()
	pool := mempool.NewMempool(mempool.Config{MaxTxs: 100}, engine, stores.Accounts, stores.Executor,
		stores.Txs, l.Sequence(), l, mempool.NewDedupService(stores.Blocks), bus)
	lists := rounds.NewDelegateLists(stores.Accounts, stores.Rounds, cfg.ActiveDelegates)
	accountant := rounds.NewAccountant(rounds.Config{ActiveDelegates: cfg.ActiveDelegates}, stores.Accounts, stores.Blocks, lists, sys)
	verifier := NewVerifier(VerifierConfigFrom(cfg), engine, crypto.Ed25519Verifier{}, sys, l, stores.Txs, pool, LoggingForkChoice{})
	chain := NewChain(l, stores.Blocks, stores.Executor, engine, verifier, accountant, pool, slots, clock, bus)

	gcfg := testGenesisConfig()
	genesis, err := BuildGenesis(gcfg, registry)
	require.NoError(t, err)
	require.NoError(t, chain.Load(context.Background(), genesis))

	f := &chainFixture{
		cfg:        cfg,
		stores:     stores,
		sys:        sys,
		registry:   registry,
		engine:     engine,
		ledger:     l,
		pool:       pool,
		verifier:   verifier,
		accountant: accountant,
		chain:      chain,
		generator:  NewGenerator(chain, l, pool, engine, sys, cfg.MaxTxsPerBlock, 0),
		bus:        bus,
		slots:      slots,
		clock:      clock,
		genesis:    genesis,
		forgers:    map[string]crypto.Keypair{},
		rich:       crypto.KeypairFromSecret("rich"),
	}
	for _, d := range gcfg.Delegates {
		kp := crypto.KeypairFromSecret(d.Secret)
		f.forgers[hex.EncodeToString(kp.PublicKey)] = kp
	}
	return f
}

func (f *chainFixture) delegate(name string) crypto.Keypair {
	return crypto.KeypairFromSecret(name + " secret")
}

func (f *chainFixture) send(t *testing.T, from crypto.Keypair, to string, amount int64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		Type:          types.TxTypeSend,
		SenderPubData: from.PublicKey,
		SenderID:      ids.AddressFromPubData(from.PublicKey),
		RecipientID:   to,
		Amount:        amount,
		Fee:           f.sys.FeesAt(f.ledger.Height() + 1).Send,
		Timestamp:     int32(f.slots.Time(f.clock.Now())),
	}
	require.NoError(t, f.registry.Sign(tx, from))
	return tx
}

// nextSlot moves the clock to the first slot after the tip and returns it with its owner.
func (f *chainFixture) nextSlot(t *testing.T) (int64, crypto.Keypair) {
	t.Helper()
	last := f.ledger.LastBlock()
	slot := f.slots.NextSlot(int64(last.Timestamp))
	f.clock.T = f.slots.RealTime(f.slots.SlotTime(slot))
	keys, err := f.accountant.Lists().ForHeight(last.Height + 1)
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	kp, ok := f.forgers[hex.EncodeToString(keys[slot%int64(len(keys))])]
	require.True(t, ok)
	return slot, kp
}

// forge generates and applies the next block from the pool.
func (f *chainFixture) forge(t *testing.T) *types.Block {
	t.Helper()
	slot, kp := f.nextSlot(t)
	require.NoError(t, f.generator.GenerateBlock(context.Background(), kp, f.slots.SlotTime(slot)))
	return f.ledger.LastBlock()
}

// unsigned builds a block on the tip for the next slot without applying it.
func (f *chainFixture) unsigned(t *testing.T, txs ...*types.Transaction) (*types.Block, crypto.Keypair) {
	t.Helper()
	slot, kp := f.nextSlot(t)
	last := f.ledger.LastBlock()
	payload, err := ComputePayload(f.registry, txs)
	require.NoError(t, err)
	return &types.Block{
		Height:               last.Height + 1,
		PreviousBlock:        last.ID,
		Timestamp:            int32(f.slots.SlotTime(slot)),
		Reward:               f.sys.RewardAt(last.Height + 1),
		NumberOfTransactions: int32(len(txs)),
		TotalAmount:          payload.TotalAmount,
		TotalFee:             payload.TotalFee,
		PayloadLength:        payload.Length,
		PayloadHash:          payload.Hash,
		Transactions:         txs,
	}, kp
}

func (f *chainFixture) accounts(t *testing.T) map[string]*types.Account {
	t.Helper()
	out := map[string]*types.Account{}
	require.NoError(t, f.stores.Accounts.ForEach(func(acc *types.Account) bool {
		out[acc.Address] = acc
		return true
	}))
	return out
}

func (f *chainFixture) account(t *testing.T, addr string) *types.Account {
	t.Helper()
	acc, err := f.stores.Accounts.GetByAddr(addr)
	require.NoError(t, err)
	return acc
}
