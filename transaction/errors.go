package transaction

import "errors"

var (
	ErrUnknownTransactionType = errors.New("Unknown transaction type")
	ErrDuplicateVariant       = errors.New("transaction type registered twice")
	ErrMissingSender          = errors.New("Missing sender")
	ErrTimestampInFuture      = errors.New("Invalid transaction timestamp. Timestamp is in the future")
	ErrIDMismatch             = errors.New("Invalid transaction id")
	ErrAddressMismatch        = errors.New("Invalid sender address")
	ErrFeeTooLow              = errors.New("Invalid transaction fee")
	ErrInvalidAmount          = errors.New("tx.fee or tx.amount is either negative or not an integer")
	ErrInsufficientBalance    = errors.New("Account does not have enough currency")
	ErrSignatureInvalid       = errors.New("Transaction signature is not valid")
	ErrNotReady               = errors.New("Transaction is not ready")
	ErrMalformed              = errors.New("Malformed transaction")
)
