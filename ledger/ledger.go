// Package ledger holds the node's view of the chain tip, the serialized mutation sequence and
// the per-block account working set.
package ledger

import (
	"sync/atomic"

	"github.com/mezonai/dpos/types"
)

// AccountReader is the committed account state.
type AccountReader interface {
	GetByAddr(addr string) (*types.Account, error)
	GetByUsername(username string) (*types.Account, error)
	GetByForgingPK(pk []byte) (*types.Account, error)
}

// Ledger pairs committed account reads with the current tip. The tip is swapped only after a
// block's ops have been committed, so readers never see a tip ahead of its state.
type Ledger struct {
	accounts AccountReader
	seq      *Sequence
	tip      atomic.Pointer[types.Block]
	syncing  atomic.Bool
}

func NewLedger(accounts AccountReader, seq *Sequence) *Ledger {
	return &Ledger{accounts: accounts, seq: seq}
}

func (l *Ledger) Sequence() *Sequence { return l.seq }

// LastBlock returns the current tip, or nil before genesis is loaded.
func (l *Ledger) LastBlock() *types.Block { return l.tip.Load() }

func (l *Ledger) SetLastBlock(b *types.Block) { l.tip.Store(b) }

// Height of the tip, 0 when empty.
func (l *Ledger) Height() int64 {
	if b := l.tip.Load(); b != nil {
		return b.Height
	}
	return 0
}

// IsSyncing reports whether the node is catching up with peers. Forging holds off meanwhile.
func (l *Ledger) IsSyncing() bool { return l.syncing.Load() }

func (l *Ledger) SetSyncing(v bool) { l.syncing.Store(v) }

func (l *Ledger) GetByAddr(addr string) (*types.Account, error) {
	return l.accounts.GetByAddr(addr)
}

func (l *Ledger) GetByUsername(username string) (*types.Account, error) {
	return l.accounts.GetByUsername(username)
}

func (l *Ledger) GetByForgingPK(pk []byte) (*types.Account, error) {
	return l.accounts.GetByForgingPK(pk)
}
