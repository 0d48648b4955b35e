package block

import (
	"fmt"
	"os"

	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/jsonx"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
	"github.com/pkg/errors"
)

// BuildGenesis assembles the signed genesis block: plain allocations first, then for every
// delegate its funding, its registration and a vote for itself.
func BuildGenesis(cfg config.GenesisConfig, registry *transaction.Registry) (*types.Block, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("genesis secret is required")
	}
	genesisKey := crypto.KeypairFromSecret(cfg.Secret)

	var txs []*types.Transaction
	add := func(tx *types.Transaction, kp crypto.Keypair) error {
		tx.SenderPubData = append([]byte(nil), kp.PublicKey...)
		tx.SenderID = ids.AddressFromPubData(kp.PublicKey)
		tx.Timestamp = cfg.Timestamp
		if err := registry.Sign(tx, kp); err != nil {
			return err
		}
		txs = append(txs, tx)
		return nil
	}

	for _, a := range cfg.Allocations {
		if !ids.IsAddress(a.Address) {
			return nil, fmt.Errorf("invalid allocation address %q", a.Address)
		}
		if err := add(&types.Transaction{Type: types.TxTypeSend, RecipientID: a.Address, Amount: a.Amount}, genesisKey); err != nil {
			return nil, err
		}
	}

	for _, d := range cfg.Delegates {
		kp := crypto.KeypairFromSecret(d.Secret)
		addr := ids.AddressFromPubData(kp.PublicKey)
		if err := add(&types.Transaction{Type: types.TxTypeSend, RecipientID: addr, Amount: d.Balance}, genesisKey); err != nil {
			return nil, err
		}
		reg := &types.Transaction{
			Type:  types.TxTypeDelegate,
			Asset: types.TxAsset{Delegate: &types.DelegateAsset{Username: d.Username, ForgingPK: append([]byte(nil), kp.PublicKey...)}},
		}
		if err := add(reg, kp); err != nil {
			return nil, err
		}
		vote := &types.Transaction{
			Type:        types.TxTypeVote,
			RecipientID: addr,
			Asset:       types.TxAsset{Votes: &types.VotesAsset{Added: []string{d.Username}}},
		}
		if err := add(vote, kp); err != nil {
			return nil, err
		}
	}

	payload, err := ComputePayload(registry, txs)
	if err != nil {
		return nil, err
	}
	b := &types.Block{
		Height:               1,
		Timestamp:            cfg.Timestamp,
		Version:              0,
		NumberOfTransactions: int32(len(txs)),
		TotalAmount:          payload.TotalAmount,
		TotalFee:             payload.TotalFee,
		PayloadLength:        payload.Length,
		PayloadHash:          payload.Hash,
		Transactions:         txs,
	}
	if err := Sign(b, genesisKey); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		tx.BlockID = b.ID
		tx.Height = 1
	}
	return b, nil
}

func SaveGenesis(path string, b *types.Block) error {
	data, err := jsonx.MarshalIndent(b)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "could not write genesis block to %s", path)
}

func LoadGenesis(path string) (*types.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read genesis block %s", path)
	}
	var b types.Block
	if err := jsonx.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, "could not decode genesis block")
	}
	id, err := ID(&b)
	if err != nil {
		return nil, err
	}
	if id != b.ID {
		return nil, fmt.Errorf("genesis block id mismatch: stored %s, computed %s", b.ID, id)
	}
	return &b, nil
}
