package transaction

import (
	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/hooks"
	"github.com/mezonai/dpos/types"
)

type CheckPayload struct {
	Tx     *types.Transaction
	Sender *types.Account
	Height int64
}

type SignaturePayload struct {
	Tx     *types.Transaction
	Sender *types.Account
	Hash   []byte
}

type OpsPayload struct {
	Tx     *types.Transaction
	Block  *types.Block
	Sender *types.Account
	Ops    []dbop.Op
}

// Hooks are the engine's extension points.
type Hooks struct {
	StaticCheck      *hooks.Point[*CheckPayload]
	Verify           *hooks.Point[*CheckPayload]
	SignatureVerify  *hooks.Point[*SignaturePayload]
	Apply            *hooks.Point[*OpsPayload]
	Undo             *hooks.Point[*OpsPayload]
	ApplyUnconfirmed *hooks.Point[*OpsPayload]
	UndoUnconfirmed  *hooks.Point[*OpsPayload]
}

func NewHooks() *Hooks {
	return &Hooks{
		StaticCheck:      hooks.NewPoint[*CheckPayload]("txStaticCheck"),
		Verify:           hooks.NewPoint[*CheckPayload]("txVerify"),
		SignatureVerify:  hooks.NewPoint[*SignaturePayload]("txSignatureVerify"),
		Apply:            hooks.NewPoint[*OpsPayload]("txApply"),
		Undo:             hooks.NewPoint[*OpsPayload]("txUndo"),
		ApplyUnconfirmed: hooks.NewPoint[*OpsPayload]("txApplyUnconfirmed"),
		UndoUnconfirmed:  hooks.NewPoint[*OpsPayload]("txUndoUnconfirmed"),
	}
}
