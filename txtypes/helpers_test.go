package txtypes

import (
	"context"
	"testing"
	"time"

	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2016, 5, 24, 17, 0, 0, 0, time.UTC)

type staticFees config.FeeSchedule

func (f staticFees) FeesAt(int64) config.FeeSchedule { return config.FeeSchedule(f) }

var testFees = staticFees{Height: 1, Send: 10, Vote: 20, SecondSignature: 30, Delegate: 40}

type fakeAccounts struct {
	byName map[string]*types.Account
	byPK   map[string]*types.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byName: map[string]*types.Account{}, byPK: map[string]*types.Account{}}
}

func (f *fakeAccounts) GetByUsername(u string) (*types.Account, error) { return f.byName[u], nil }

func (f *fakeAccounts) GetByForgingPK(pk []byte) (*types.Account, error) {
	return f.byPK[string(pk)], nil
}

func (f *fakeAccounts) addDelegate(username string) *types.Account {
	kp := crypto.KeypairFromSecret("delegate " + username)
	acc := &types.Account{
		Address:    ids.AddressFromPubData(kp.PublicKey),
		IsDelegate: true,
		Username:   username,
		ForgingPK:  kp.PublicKey,
	}
	f.byName[username] = acc
	f.byPK[string(kp.PublicKey)] = acc
	return acc
}

type fakeAssets struct {
	delegates map[string]*types.DelegateAsset
}

func (f *fakeAssets) DelegateAsset(id string) (*types.DelegateAsset, error) {
	return f.delegates[id], nil
}

func (f *fakeAssets) VotesAsset(string) (*types.VotesAsset, error) { return nil, nil }

func (f *fakeAssets) SignatureAsset(string) (*types.SignatureAsset, error) { return nil, nil }

type fixture struct {
	engine   *transaction.Engine
	registry *transaction.Registry
	accounts *fakeAccounts
	assets   *fakeAssets
	clock    *utils.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	accounts := newFakeAccounts()
	assets := &fakeAssets{delegates: map[string]*types.DelegateAsset{}}
	reg, second, err := NewDefaultRegistry(Deps{
		Fees:                   testFees,
		Accounts:               accounts,
		Assets:                 assets,
		Verifier:               crypto.Ed25519Verifier{},
		MaxVotesPerTransaction: 2,
		MaxVotesPerAccount:     3,
	})
	require.NoError(t, err)
	clock := &utils.FixedClock{T: testEpoch.Add(10000 * time.Second)}
	engine := transaction.NewEngine(reg, crypto.Ed25519Verifier{}, clock, utils.NewSlots(testEpoch, 10, 3))
	second.RegisterHooks(engine.Hooks())
	return &fixture{engine: engine, registry: reg, accounts: accounts, assets: assets, clock: clock}
}

func accountFor(kp crypto.Keypair, balance int64) *types.Account {
	return &types.Account{
		Address:   ids.AddressFromPubData(kp.PublicKey),
		PublicKey: kp.PublicKey,
		Balance:   balance,
		UBalance:  balance,
	}
}

// sign fills sender fields, signs with every keypair given and sets the id.
func (f *fixture) sign(t *testing.T, tx *types.Transaction, kps ...crypto.Keypair) *types.Transaction {
	t.Helper()
	tx.SenderPubData = kps[0].PublicKey
	tx.SenderID = ids.AddressFromPubData(kps[0].PublicKey)
	if tx.Timestamp == 0 {
		tx.Timestamp = 100
	}
	tx.Signatures = nil
	for _, kp := range kps {
		require.NoError(t, f.registry.Sign(tx, kp))
	}
	return tx
}

var ctx = context.Background()
