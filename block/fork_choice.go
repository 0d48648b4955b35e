package block

import (
	"context"

	"github.com/mezonai/dpos/interfaces"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/monitoring"
	"github.com/mezonai/dpos/types"
)

// LoggingForkChoice records forks without acting on them. It is used when no fork resolver
// is plugged in.
type LoggingForkChoice struct{}

func (LoggingForkChoice) Fork(_ context.Context, block *types.Block, cause interfaces.ForkType) {
	monitoring.RecordFork(cause.String())
	logx.Warn("FORK", "Fork cause ", cause.String(), " at block ", block.ID, " height ", block.Height,
		" previous ", block.PreviousBlock)
}
