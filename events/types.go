package events

import (
	"time"

	"github.com/mezonai/dpos/types"
)

type EventType string

const (
	EventBlockApplied  EventType = "BlockApplied"
	EventBlockDeleted  EventType = "BlockDeleted"
	EventTxAddedToPool EventType = "TxAddedToPool"
	EventTxRejected    EventType = "TxRejected"
)

// BlockchainEvent is anything the chain reports after the fact. Key is the block or
// transaction id the event is about.
type BlockchainEvent interface {
	Type() EventType
	Timestamp() time.Time
	Key() string
}

type BlockApplied struct {
	block     *types.Block
	timestamp time.Time
}

func NewBlockApplied(block *types.Block) *BlockApplied {
	return &BlockApplied{block: block, timestamp: time.Now()}
}

func (e *BlockApplied) Type() EventType      { return EventBlockApplied }
func (e *BlockApplied) Timestamp() time.Time { return e.timestamp }
func (e *BlockApplied) Key() string          { return e.block.ID }
func (e *BlockApplied) Block() *types.Block  { return e.block }

// BlockDeleted reports a rolled back block and the tip it left behind.
type BlockDeleted struct {
	block     *types.Block
	newTip    *types.Block
	timestamp time.Time
}

func NewBlockDeleted(block, newTip *types.Block) *BlockDeleted {
	return &BlockDeleted{block: block, newTip: newTip, timestamp: time.Now()}
}

func (e *BlockDeleted) Type() EventType      { return EventBlockDeleted }
func (e *BlockDeleted) Timestamp() time.Time { return e.timestamp }
func (e *BlockDeleted) Key() string          { return e.block.ID }
func (e *BlockDeleted) Block() *types.Block  { return e.block }
func (e *BlockDeleted) NewTip() *types.Block { return e.newTip }

type TxAddedToPool struct {
	tx        *types.Transaction
	timestamp time.Time
}

func NewTxAddedToPool(tx *types.Transaction) *TxAddedToPool {
	return &TxAddedToPool{tx: tx, timestamp: time.Now()}
}

func (e *TxAddedToPool) Type() EventType                 { return EventTxAddedToPool }
func (e *TxAddedToPool) Timestamp() time.Time            { return e.timestamp }
func (e *TxAddedToPool) Key() string                     { return e.tx.ID }
func (e *TxAddedToPool) Transaction() *types.Transaction { return e.tx }

type TxRejected struct {
	txID      string
	reason    string
	err       string
	timestamp time.Time
}

func NewTxRejected(txID, reason string, err error) *TxRejected {
	e := &TxRejected{txID: txID, reason: reason, timestamp: time.Now()}
	if err != nil {
		e.err = err.Error()
	}
	return e
}

func (e *TxRejected) Type() EventType      { return EventTxRejected }
func (e *TxRejected) Timestamp() time.Time { return e.timestamp }
func (e *TxRejected) Key() string          { return e.txID }
func (e *TxRejected) Reason() string       { return e.reason }
func (e *TxRejected) Error() string        { return e.err }
