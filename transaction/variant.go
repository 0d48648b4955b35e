package transaction

import (
	"context"

	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/types"
)

// Variant is the per-type behaviour plugged into the engine.
type Variant interface {
	Type() types.TxType

	CalculateMinFee(tx *types.Transaction, sender *types.Account, height int64) int64
	Verify(ctx context.Context, tx *types.Transaction, sender *types.Account) error
	Ready(tx *types.Transaction, sender *types.Account) bool

	Apply(ctx context.Context, tx *types.Transaction, block *types.Block, sender *types.Account) ([]dbop.Op, error)
	Undo(ctx context.Context, tx *types.Transaction, block *types.Block, sender *types.Account) ([]dbop.Op, error)
	ApplyUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) ([]dbop.Op, error)
	UndoUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) ([]dbop.Op, error)

	ObjectNormalize(tx *types.Transaction) error
	// DBSave returns the op persisting the variant asset, or nil when there is none.
	DBSave(tx *types.Transaction) *dbop.Op
	AttachAssets(ctx context.Context, txs []*types.Transaction) error
	FindConflicts(ctx context.Context, txs []*types.Transaction) ([]*types.Transaction, error)
	AssetBytes(tx *types.Transaction) ([]byte, error)
}

// BaseVariant supplies the no-op parts shared by most variants.
type BaseVariant struct{}

func (BaseVariant) Ready(*types.Transaction, *types.Account) bool { return true }

func (BaseVariant) ApplyUnconfirmed(context.Context, *types.Transaction, *types.Account) ([]dbop.Op, error) {
	return nil, nil
}

func (BaseVariant) UndoUnconfirmed(context.Context, *types.Transaction, *types.Account) ([]dbop.Op, error) {
	return nil, nil
}

func (BaseVariant) DBSave(*types.Transaction) *dbop.Op { return nil }

func (BaseVariant) AttachAssets(context.Context, []*types.Transaction) error { return nil }

func (BaseVariant) FindConflicts(context.Context, []*types.Transaction) ([]*types.Transaction, error) {
	return nil, nil
}

func (BaseVariant) AssetBytes(*types.Transaction) ([]byte, error) { return nil, nil }
