package db

import (
	"sync/atomic"

	"github.com/mezonai/dpos/logx"
	"github.com/pkg/errors"
)

// DBTxManager commits the key writes produced by one ledger op list as a single batch, so a
// block and every account it touches land together or not at all.
type DBTxManager struct {
	provider DatabaseProvider
	commits  atomic.Int64
}

func NewDBTxManager(provider DatabaseProvider) *DBTxManager {
	return &DBTxManager{provider: provider}
}

// WithBatch lets fill stage writes and commits them. Writes staged by a failing fill are
// discarded. An empty batch is not written.
func (tm *DBTxManager) WithBatch(fill func(batch DatabaseBatch) error) error {
	batch := tm.provider.Batch()
	defer func() {
		if err := batch.Close(); err != nil {
			logx.Error("TX_MANAGER", "Failed to close batch:", err)
		}
	}()

	if err := fill(batch); err != nil {
		batch.Reset()
		return errors.Wrap(err, "ledger batch aborted")
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "ledger batch commit failed")
	}
	tm.commits.Add(1)
	return nil
}

// Commits counts the batches written since start.
func (tm *DBTxManager) Commits() int64 { return tm.commits.Load() }
