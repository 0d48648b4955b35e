package txtypes

import (
	"context"

	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
)

type Send struct {
	transaction.BaseVariant
	fees FeeSource
}

func NewSend(fees FeeSource) *Send {
	return &Send{fees: fees}
}

func (s *Send) Type() types.TxType { return types.TxTypeSend }

func (s *Send) CalculateMinFee(_ *types.Transaction, _ *types.Account, height int64) int64 {
	return s.fees.FeesAt(height).Send
}

func (s *Send) Verify(_ context.Context, tx *types.Transaction, _ *types.Account) error {
	if tx.RecipientID == "" {
		return ErrMissingRecipient
	}
	if tx.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Apply credits the recipient, creating the account on first reference.
func (s *Send) Apply(_ context.Context, tx *types.Transaction, _ *types.Block, _ *types.Account) ([]dbop.Op, error) {
	return s.credit(tx.RecipientID, tx.Amount), nil
}

func (s *Send) Undo(_ context.Context, tx *types.Transaction, _ *types.Block, _ *types.Account) ([]dbop.Op, error) {
	return s.credit(tx.RecipientID, -tx.Amount), nil
}

func (s *Send) credit(addr string, amount int64) []dbop.Op {
	return []dbop.Op{
		dbop.Create(dbop.TargetAccounts, dbop.Values{"address": dbop.Set(addr)}),
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(addr), dbop.Values{
			"balance":   dbop.Inc(amount),
			"u_balance": dbop.Inc(amount),
		}),
	}
}

func (s *Send) ObjectNormalize(tx *types.Transaction) error {
	if !onlyAsset(tx, types.TxTypeSend) {
		return ErrInvalidAsset
	}
	return nil
}
