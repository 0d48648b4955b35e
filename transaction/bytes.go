package transaction

import (
	"github.com/mezonai/dpos/codec"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/types"
)

// SignableBytes is the canonical form signatures are computed over.
func (r *Registry) SignableBytes(tx *types.Transaction) ([]byte, error) {
	variant, err := r.Get(tx.Type)
	if err != nil {
		return nil, err
	}
	recipient, err := ids.AddressToBytes(tx.RecipientID)
	if err != nil {
		return nil, err
	}
	asset, err := variant.AssetBytes(tx)
	if err != nil {
		return nil, err
	}

	w := codec.NewWriter(128 + len(asset))
	w.Uint8(uint8(tx.Type))
	w.Int32(tx.Version)
	w.Int32(tx.Timestamp)
	w.Var(tx.SenderPubData)
	w.Fixed(recipient)
	w.Int64(tx.Amount)
	w.Int64(tx.Fee)
	w.Var(asset)
	return w.Bytes()
}

// FullBytes appends the signatures to the signable form. Transaction ids derive from it.
func (r *Registry) FullBytes(tx *types.Transaction) ([]byte, error) {
	signable, err := r.SignableBytes(tx)
	if err != nil {
		return nil, err
	}
	w := codec.NewWriter(len(signable) + 1 + 66*len(tx.Signatures))
	w.Fixed(signable)
	w.Uint8(uint8(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		w.Var(sig)
	}
	return w.Bytes()
}

// Hash is the digest every signature of tx signs.
func (r *Registry) Hash(tx *types.Transaction) ([]byte, error) {
	b, err := r.SignableBytes(tx)
	if err != nil {
		return nil, err
	}
	return crypto.Hash(b), nil
}

func (r *Registry) ID(tx *types.Transaction) (string, error) {
	b, err := r.FullBytes(tx)
	if err != nil {
		return "", err
	}
	return ids.CalcTxIDFromBytes(b), nil
}

// Sign appends a signature by kp and refreshes the id.
func (r *Registry) Sign(tx *types.Transaction, kp crypto.Keypair) error {
	hash, err := r.Hash(tx)
	if err != nil {
		return err
	}
	tx.Signatures = append(tx.Signatures, kp.Sign(hash))
	tx.ID, err = r.ID(tx)
	return err
}
