package mempool

import (
	"sync"

	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/types"
)

const (
	DEDUP_HEIGHT_GAP = 200
)

// BlockSource reads the stored chain for warming the dedup window.
type BlockSource interface {
	ByHeight(height int64) (*types.Block, error)
	Transactions(blockID string) ([]*types.Transaction, error)
}

// DedupService remembers the ids confirmed in the most recent blocks so resubmitted
// transactions are turned away without a store lookup.
type DedupService struct {
	mu            sync.RWMutex
	txIDSet       map[string]struct{}
	heightTxIDSet map[int64]map[string]struct{}
	blocks        BlockSource
}

func NewDedupService(blocks BlockSource) *DedupService {
	return &DedupService{
		txIDSet:       make(map[string]struct{}),
		heightTxIDSet: make(map[int64]map[string]struct{}),
		blocks:        blocks,
	}
}

// LoadTxIDs fills the window ending at latestHeight from storage.
func (ds *DedupService) LoadTxIDs(latestHeight int64) {
	if latestHeight < 1 {
		return
	}
	startHeight := int64(1)
	if latestHeight > DEDUP_HEIGHT_GAP {
		startHeight = latestHeight - DEDUP_HEIGHT_GAP + 1
	}
	for h := startHeight; h <= latestHeight; h++ {
		blk, err := ds.blocks.ByHeight(h)
		if err != nil || blk == nil {
			logx.Error("DEDUP SERVICE:LOAD TX IDS", "Error: missing block at height ", h, " ", err)
			continue
		}
		txs, err := ds.blocks.Transactions(blk.ID)
		if err != nil {
			logx.Error("DEDUP SERVICE:LOAD TX IDS", "Error: ", err)
			continue
		}
		ids := make([]string, len(txs))
		for i, tx := range txs {
			ids[i] = tx.ID
		}
		ds.Add(h, ids)
	}
}

func (ds *DedupService) IsDuplicate(txID string) bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	_, exists := ds.txIDSet[txID]
	return exists
}

// Add records ids confirmed at height and drops the height that fell out of the window.
func (ds *DedupService) Add(height int64, txIDs []string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	for _, id := range txIDs {
		ds.txIDSet[id] = struct{}{}
		if _, exists := ds.heightTxIDSet[height]; !exists {
			ds.heightTxIDSet[height] = make(map[string]struct{})
		}
		ds.heightTxIDSet[height][id] = struct{}{}
	}
	ds.cleanUpOldHeights(height)
}

// Remove forgets the ids of a rolled back height.
func (ds *DedupService) Remove(height int64) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.dropHeight(height)
}

func (ds *DedupService) cleanUpOldHeights(height int64) {
	if height <= DEDUP_HEIGHT_GAP {
		return
	}
	ds.dropHeight(height - DEDUP_HEIGHT_GAP)
}

func (ds *DedupService) dropHeight(height int64) {
	if ids, exists := ds.heightTxIDSet[height]; exists {
		for id := range ids {
			delete(ds.txIDSet, id)
		}
		delete(ds.heightTxIDSet, height)
	}
}

func (ds *DedupService) Size() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return len(ds.txIDSet)
}
