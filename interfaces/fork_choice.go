package interfaces

import (
	"context"

	"github.com/mezonai/dpos/types"
)

type ForkType int

const (
	// ForkType1 is a block whose previous block differs from the local tip.
	ForkType1 ForkType = 1
	// ForkTxAlreadyConfirmed is a block carrying transactions this node already confirmed.
	ForkTxAlreadyConfirmed ForkType = 2
)

func (f ForkType) String() string {
	switch f {
	case ForkType1:
		return "1"
	case ForkTxAlreadyConfirmed:
		return "tx_already_confirmed"
	}
	return "unknown"
}

// ForkChoice receives fork notifications. Resolving the fork is its business, not the verifier's.
type ForkChoice interface {
	Fork(ctx context.Context, block *types.Block, cause ForkType)
}
