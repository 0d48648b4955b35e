package errors

import (
	stderrors "errors"

	"github.com/mezonai/dpos/jsonx"
)

// LedgerErrorCode classifies errors that must stop chain processing.
type LedgerErrorCode string

const (
	ErrCodeNegativeBalance   LedgerErrorCode = "negative_balance"
	ErrCodeRoundPot          LedgerErrorCode = "round_pot_not_distributed"
	ErrCodeUnbalancedBlock   LedgerErrorCode = "unbalanced_block"
	ErrCodeStateDivergence   LedgerErrorCode = "state_divergence"
	ErrCodeInconsistentStore LedgerErrorCode = "inconsistent_store"
)

// ErrInvariantViolation matches every LedgerError through errors.Is.
var ErrInvariantViolation = stderrors.New("invariant violation")

const (
	ErrMsgNegativeBalance = "Account %s balance went negative: %d"
	ErrMsgRoundPot        = "Round %d distributed %d out of %d"
	ErrMsgUnbalancedBlock = "Block %s moved %d but declares %d"
)

type LedgerError struct {
	Code    LedgerErrorCode `json:"code"`
	Message string          `json:"message"`
}

func (e *LedgerError) Error() string {
	out, _ := jsonx.Marshal(LedgerError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(out)
}

func (e *LedgerError) Is(target error) bool {
	return target == ErrInvariantViolation
}

func NewError(code LedgerErrorCode, message string) error {
	return &LedgerError{
		Code:    code,
		Message: message,
	}
}

// IsFatal reports whether err, anywhere in its chain, is an invariant violation.
func IsFatal(err error) bool {
	return stderrors.Is(err, ErrInvariantViolation)
}

// CodeOf returns the code of the first LedgerError in err's chain.
func CodeOf(err error) (LedgerErrorCode, bool) {
	var le *LedgerError
	if stderrors.As(err, &le) {
		return le.Code, true
	}
	return "", false
}
