package interfaces

import (
	"context"

	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/types"
)

// LastBlockProvider exposes the committed chain tip.
type LastBlockProvider interface {
	LastBlock() *types.Block
}

// AccountReader is the confirmed-state account lookup the transaction variants need.
type AccountReader interface {
	GetByAddr(addr string) (*types.Account, error)
	GetByUsername(username string) (*types.Account, error)
	GetByForgingPK(pk []byte) (*types.Account, error)
}

// BlockAssembler builds, signs and applies a block for the given delegate and slot time.
type BlockAssembler interface {
	GenerateBlock(ctx context.Context, keypair crypto.Keypair, timestamp int64) error
}

// TxPool is the view of the unconfirmed pool the verifier needs to evict transactions.
type TxPool interface {
	Has(id string) bool
	Get(id string) *types.Transaction
	// Evict drops id from the pool and reverts its unconfirmed effects. It reports whether id was pooled.
	Evict(ctx context.Context, id string) (bool, error)
}
