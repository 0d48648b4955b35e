// Package block verifies, applies and rolls back blocks, and assembles new ones for the forger.
package block

import (
	"github.com/mezonai/dpos/codec"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
)

// SignableBytes is the canonical block header form the generator signs.
func SignableBytes(b *types.Block) ([]byte, error) {
	prev, err := ids.IDToBytes(b.PreviousBlock)
	if err != nil {
		return nil, err
	}
	w := codec.NewWriter(128 + len(b.PayloadHash) + len(b.GeneratorPublicKey))
	w.Int32(b.Version)
	w.Int32(b.Timestamp)
	w.Fixed(prev)
	w.Int32(b.NumberOfTransactions)
	w.Int64(b.TotalAmount)
	w.Int64(b.TotalFee)
	w.Int64(b.Reward)
	w.Int32(b.PayloadLength)
	w.Var(b.PayloadHash)
	w.Var(b.GeneratorPublicKey)
	return w.Bytes()
}

// FullBytes appends the signature. Block ids derive from it.
func FullBytes(b *types.Block) ([]byte, error) {
	signable, err := SignableBytes(b)
	if err != nil {
		return nil, err
	}
	w := codec.NewWriter(len(signable) + 2 + len(b.BlockSignature))
	w.Fixed(signable)
	w.Var(b.BlockSignature)
	return w.Bytes()
}

func Hash(b *types.Block) ([]byte, error) {
	signable, err := SignableBytes(b)
	if err != nil {
		return nil, err
	}
	return crypto.Hash(signable), nil
}

func ID(b *types.Block) (string, error) {
	full, err := FullBytes(b)
	if err != nil {
		return "", err
	}
	return ids.CalcBlockIDFromBytes(full), nil
}

// Sign sets the generator key, signs the header with kp and refreshes the id.
func Sign(b *types.Block, kp crypto.Keypair) error {
	b.GeneratorPublicKey = append([]byte(nil), kp.PublicKey...)
	hash, err := Hash(b)
	if err != nil {
		return err
	}
	b.BlockSignature = kp.Sign(hash)
	b.ID, err = ID(b)
	return err
}

func VerifySignature(v crypto.Verifier, b *types.Block) bool {
	hash, err := Hash(b)
	if err != nil {
		return false
	}
	return v.Verify(b.GeneratorPublicKey, hash, b.BlockSignature)
}

// Payload describes the transactions of a block the way its header declares them.
type Payload struct {
	Hash        []byte
	Length      int32
	TotalAmount int64
	TotalFee    int64
}

// ComputePayload hashes the full bytes of txs in order and sums their amounts and fees.
func ComputePayload(registry *transaction.Registry, txs []*types.Transaction) (Payload, error) {
	var (
		buf []byte
		p   Payload
	)
	for _, tx := range txs {
		b, err := registry.FullBytes(tx)
		if err != nil {
			return Payload{}, err
		}
		buf = append(buf, b...)
		if p.TotalAmount, err = utils.AddInt64(p.TotalAmount, tx.Amount); err != nil {
			return Payload{}, err
		}
		if p.TotalFee, err = utils.AddInt64(p.TotalFee, tx.Fee); err != nil {
			return Payload{}, err
		}
	}
	p.Hash = crypto.Hash(buf)
	p.Length = int32(len(buf))
	return p, nil
}
