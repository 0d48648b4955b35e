package txtypes

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/mezonai/dpos/codec"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
)

// SecondSignature registers a second public key; afterwards every transaction of the
// account needs a second signature by it.
type SecondSignature struct {
	transaction.BaseVariant
	fees     FeeSource
	assets   AssetReader
	verifier crypto.Verifier
}

func NewSecondSignature(fees FeeSource, assets AssetReader, verifier crypto.Verifier) *SecondSignature {
	return &SecondSignature{fees: fees, assets: assets, verifier: verifier}
}

func (s *SecondSignature) Type() types.TxType { return types.TxTypeSecondSignature }

func (s *SecondSignature) CalculateMinFee(_ *types.Transaction, _ *types.Account, height int64) int64 {
	return s.fees.FeesAt(height).SecondSignature
}

// RegisterHooks adds the second-signature check to the engine's signature chain.
func (s *SecondSignature) RegisterHooks(h *transaction.Hooks) {
	h.SignatureVerify.Register("secondSignature", 10, s.verifySecondSignature)
}

func (s *SecondSignature) verifySecondSignature(_ context.Context, p *transaction.SignaturePayload) (*transaction.SignaturePayload, error) {
	sigs := p.Tx.Signatures
	if !p.Sender.SecondSignature {
		if len(sigs) > 1 {
			return p, ErrUnexpectedSecondSig
		}
		return p, nil
	}
	if len(sigs) < 2 {
		return p, ErrMissingSecondSig
	}
	if !s.verifier.Verify(p.Sender.SecondPublicKey, p.Hash, sigs[1]) {
		return p, fmt.Errorf("%w: second signature of %s", transaction.ErrSignatureInvalid, p.Tx.ID)
	}
	return p, nil
}

func (s *SecondSignature) Verify(_ context.Context, tx *types.Transaction, sender *types.Account) error {
	asset := tx.Asset.Signature
	if asset == nil {
		return ErrInvalidAsset
	}
	if tx.RecipientID != "" {
		return ErrInvalidRecipient
	}
	if tx.Amount != 0 {
		return ErrInvalidAmount
	}
	if len(asset.PublicKey) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	if sender.SecondSignature {
		return ErrSecondSignatureExists
	}
	return nil
}

func (s *SecondSignature) Apply(_ context.Context, tx *types.Transaction, _ *types.Block, sender *types.Account) ([]dbop.Op, error) {
	if sender.SecondSignature {
		return nil, ErrSecondSignatureExists
	}
	pk := tx.Asset.Signature.PublicKey
	sender.SecondSignature = true
	sender.SecondPublicKey = pk
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{
			"secondSignature": dbop.Set(true),
			"secondPublicKey": dbop.Set(pk),
		}),
	}, nil
}

func (s *SecondSignature) Undo(_ context.Context, _ *types.Transaction, _ *types.Block, sender *types.Account) ([]dbop.Op, error) {
	sender.SecondSignature = false
	sender.SecondPublicKey = nil
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{
			"secondSignature": dbop.Set(false),
			"secondPublicKey": dbop.Set(nil),
		}),
	}, nil
}

func (s *SecondSignature) ApplyUnconfirmed(_ context.Context, _ *types.Transaction, sender *types.Account) ([]dbop.Op, error) {
	if sender.USecondSignature || sender.SecondSignature {
		return nil, ErrSecondSignatureExists
	}
	sender.USecondSignature = true
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{
			"u_secondSignature": dbop.Set(true),
		}),
	}, nil
}

func (s *SecondSignature) UndoUnconfirmed(_ context.Context, _ *types.Transaction, sender *types.Account) ([]dbop.Op, error) {
	sender.USecondSignature = false
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{
			"u_secondSignature": dbop.Set(false),
		}),
	}, nil
}

func (s *SecondSignature) ObjectNormalize(tx *types.Transaction) error {
	if !onlyAsset(tx, types.TxTypeSecondSignature) {
		return ErrInvalidAsset
	}
	return nil
}

func (s *SecondSignature) DBSave(tx *types.Transaction) *dbop.Op {
	op := dbop.Create(dbop.TargetSignatures, dbop.Values{
		"transactionId": dbop.Set(tx.ID),
		"publicKey":     dbop.Set(tx.Asset.Signature.PublicKey),
	})
	return &op
}

func (s *SecondSignature) AttachAssets(_ context.Context, txs []*types.Transaction) error {
	for _, tx := range txs {
		asset, err := s.assets.SignatureAsset(tx.ID)
		if err != nil {
			return err
		}
		if asset == nil {
			return fmt.Errorf("%w for SecondSignature tx: %s", ErrAssetNotRestored, tx.ID)
		}
		tx.Asset.Signature = asset
	}
	return nil
}

func (s *SecondSignature) FindConflicts(_ context.Context, txs []*types.Transaction) ([]*types.Transaction, error) {
	seen := make(map[string]struct{})
	var out []*types.Transaction
	for _, tx := range txs {
		if _, ok := seen[tx.SenderID]; ok {
			out = append(out, tx)
			continue
		}
		seen[tx.SenderID] = struct{}{}
	}
	return out, nil
}

func (s *SecondSignature) AssetBytes(tx *types.Transaction) ([]byte, error) {
	if tx.Asset.Signature == nil {
		return nil, ErrInvalidAsset
	}
	w := codec.NewWriter(34)
	w.Var(tx.Asset.Signature.PublicKey)
	return w.Bytes()
}
