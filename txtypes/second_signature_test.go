package txtypes

import (
	"testing"

	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondSignatureLifecycle(t *testing.T) {
	f := newFixture(t)
	kp := crypto.KeypairFromSecret("owner")
	second := crypto.KeypairFromSecret("owner second")
	sender := accountFor(kp, 1000)

	reg := f.sign(t, &types.Transaction{
		Type:  types.TxTypeSecondSignature,
		Fee:   30,
		Asset: types.TxAsset{Signature: &types.SignatureAsset{PublicKey: second.PublicKey}},
	}, kp)
	require.NoError(t, f.engine.Verify(ctx, reg, sender, 2))

	_, err := f.engine.ApplyUnconfirmed(ctx, reg, sender)
	require.NoError(t, err)
	assert.True(t, sender.USecondSignature)
	_, err = f.engine.Apply(ctx, reg, &types.Block{ID: "8"}, sender)
	require.NoError(t, err)
	assert.True(t, sender.SecondSignature)
	assert.Equal(t, []byte(second.PublicKey), sender.SecondPublicKey)

	assert.ErrorIs(t, f.engine.Verify(ctx, reg, sender, 3), ErrMissingSecondSig)

	send := &types.Transaction{Type: types.TxTypeSend, RecipientID: "42R", Amount: 10, Fee: 10}
	f.sign(t, send, kp)
	assert.ErrorIs(t, f.engine.Verify(ctx, send, sender, 3), ErrMissingSecondSig)

	f.sign(t, send, kp, second)
	require.NoError(t, f.engine.Verify(ctx, send, sender, 3))

	f.sign(t, send, kp, crypto.KeypairFromSecret("impostor"))
	assert.ErrorIs(t, f.engine.Verify(ctx, send, sender, 3), transaction.ErrSignatureInvalid)

	_, err = f.engine.Undo(ctx, reg, &types.Block{ID: "8"}, sender)
	require.NoError(t, err)
	assert.False(t, sender.SecondSignature)
	assert.Nil(t, sender.SecondPublicKey)
}

func TestExtraSignatureWithoutSecondKey(t *testing.T) {
	f := newFixture(t)
	kp := crypto.KeypairFromSecret("owner")
	sender := accountFor(kp, 1000)
	send := f.sign(t, &types.Transaction{Type: types.TxTypeSend, RecipientID: "42R", Amount: 10, Fee: 10},
		kp, crypto.KeypairFromSecret("extra"))
	assert.ErrorIs(t, f.engine.Verify(ctx, send, sender, 2), ErrUnexpectedSecondSig)
}
