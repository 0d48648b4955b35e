package mempool

import (
	"fmt"
	"testing"

	"github.com/mezonai/dpos/types"
	"github.com/stretchr/testify/assert"
)

func TestDedupService_AddAndCheck(t *testing.T) {
	ds := NewDedupService(nil)
	ids := []string{"1", "2", "3"}
	ds.Add(5, ids)
	for _, id := range ids {
		assert.True(t, ds.IsDuplicate(id), id)
	}
	assert.False(t, ds.IsDuplicate("4"))
}

func TestDedupService_WindowEvictsOldHeights(t *testing.T) {
	ds := NewDedupService(nil)
	ds.Add(1, []string{"old"})
	ds.Add(DEDUP_HEIGHT_GAP, []string{"edge"})
	assert.True(t, ds.IsDuplicate("old"))

	ds.Add(DEDUP_HEIGHT_GAP+1, []string{"new"})
	assert.False(t, ds.IsDuplicate("old"))
	assert.True(t, ds.IsDuplicate("edge"))
	assert.True(t, ds.IsDuplicate("new"))
}

func TestDedupService_RemoveRolledBackHeight(t *testing.T) {
	ds := NewDedupService(nil)
	ds.Add(7, []string{"a", "b"})
	ds.Add(8, []string{"c"})
	ds.Remove(8)
	assert.False(t, ds.IsDuplicate("c"))
	assert.True(t, ds.IsDuplicate("a"))
	assert.Equal(t, 2, ds.Size())
}

type memBlocks map[int64]*types.Block

func (m memBlocks) ByHeight(h int64) (*types.Block, error) { return m[h], nil }

func (m memBlocks) Transactions(id string) ([]*types.Transaction, error) {
	for _, b := range m {
		if b.ID == id {
			return b.Transactions, nil
		}
	}
	return nil, fmt.Errorf("no block %s", id)
}

func TestDedupService_LoadTxIDs(t *testing.T) {
	blocks := memBlocks{
		1: {ID: "b1", Height: 1, Transactions: []*types.Transaction{{ID: "t1"}}},
		2: {ID: "b2", Height: 2, Transactions: []*types.Transaction{{ID: "t2"}, {ID: "t3"}}},
	}
	ds := NewDedupService(blocks)
	ds.LoadTxIDs(3)
	assert.True(t, ds.IsDuplicate("t1"))
	assert.True(t, ds.IsDuplicate("t3"))
	assert.Equal(t, 3, ds.Size())
}
