package block

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignSetsIDAndSignature(t *testing.T) {
	f := newChainFixture(t)
	b, kp := f.unsigned(t)
	require.NoError(t, Sign(b, kp))

	id, err := ID(b)
	require.NoError(t, err)
	assert.Equal(t, id, b.ID)
	assert.Equal(t, []byte(kp.PublicKey), b.GeneratorPublicKey)
	assert.True(t, VerifySignature(crypto.Ed25519Verifier{}, b))

	b.Timestamp++
	assert.False(t, VerifySignature(crypto.Ed25519Verifier{}, b))
}

func TestFullBytesExtendSignableBytes(t *testing.T) {
	f := newChainFixture(t)
	signable, err := SignableBytes(f.genesis)
	require.NoError(t, err)
	full, err := FullBytes(f.genesis)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(full, signable))
	assert.Len(t, full, len(signable)+2+len(f.genesis.BlockSignature))
}

func TestComputePayload(t *testing.T) {
	f := newChainFixture(t)
	a := f.send(t, f.rich, f.genesis.Transactions[0].RecipientID, 100)
	b := f.send(t, f.rich, f.genesis.Transactions[0].RecipientID, 200)

	p, err := ComputePayload(f.registry, []*types.Transaction{a, b})
	require.NoError(t, err)
	fa, err := f.registry.FullBytes(a)
	require.NoError(t, err)
	fb, err := f.registry.FullBytes(b)
	require.NoError(t, err)

	assert.Equal(t, crypto.Hash(append(fa, fb...)), p.Hash)
	assert.Equal(t, int32(len(fa)+len(fb)), p.Length)
	assert.Equal(t, int64(300), p.TotalAmount)
	assert.Equal(t, int64(20), p.TotalFee)
}

func TestBuildGenesis(t *testing.T) {
	f := newChainFixture(t)
	g := f.genesis

	require.Len(t, g.Transactions, 10)
	assert.Equal(t, int64(1), g.Height)
	assert.Equal(t, int64(6500000), g.TotalAmount)
	assert.Zero(t, g.TotalFee)
	assert.Equal(t, types.TxTypeSend, g.Transactions[0].Type)
	assert.Equal(t, types.TxTypeSend, g.Transactions[1].Type)
	assert.Equal(t, types.TxTypeDelegate, g.Transactions[2].Type)
	assert.Equal(t, types.TxTypeVote, g.Transactions[3].Type)

	d1 := f.delegate("d1")
	assert.Equal(t, ids.AddressFromPubData(d1.PublicKey), g.Transactions[1].RecipientID)
	assert.Equal(t, []string{"d1"}, g.Transactions[3].Asset.Votes.Added)
	for _, tx := range g.Transactions {
		assert.Equal(t, g.ID, tx.BlockID)
	}

	again, err := BuildGenesis(testGenesisConfig(), f.registry)
	require.NoError(t, err)
	assert.Equal(t, g.ID, again.ID)
}

func TestSaveAndLoadGenesis(t *testing.T) {
	f := newChainFixture(t)
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, SaveGenesis(path, f.genesis))

	loaded, err := LoadGenesis(path)
	require.NoError(t, err)
	assert.Equal(t, f.genesis.ID, loaded.ID)
	assert.Len(t, loaded.Transactions, len(f.genesis.Transactions))

	tampered := *f.genesis
	tampered.Timestamp = 99
	require.NoError(t, SaveGenesis(path, &tampered))
	_, err = LoadGenesis(path)
	assert.ErrorContains(t, err, "genesis block id mismatch")

	_, err = LoadGenesis(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildGenesisNeedsSecret(t *testing.T) {
	f := newChainFixture(t)
	cfg := testGenesisConfig()
	cfg.Secret = ""
	_, err := BuildGenesis(cfg, f.registry)
	assert.Error(t, err)
}

func TestProgressLogger(t *testing.T) {
	p := NewProgressLogger(10, 5, "Rebuilding")
	for i := 0; i < 10; i++ {
		require.NoError(t, p.ApplyNext())
	}
	assert.Equal(t, 10, p.Applied())
	assert.ErrorIs(t, p.ApplyNext(), ErrProgressOverLimit)

	p.Reset()
	assert.Zero(t, p.Applied())
	assert.NoError(t, p.ApplyNext())

	small := NewProgressLogger(2, 10, "tiny")
	assert.NoError(t, small.ApplyNext())
	assert.NoError(t, small.ApplyNext())
}
