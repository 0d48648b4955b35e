// Package txtypes implements the transaction variants: send, second signature, delegate
// registration and vote.
package txtypes

import (
	"errors"

	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/types"
)

var (
	ErrMissingRecipient      = errors.New("Missing recipient")
	ErrInvalidRecipient      = errors.New("Invalid recipient")
	ErrInvalidAmount         = errors.New("Invalid transaction amount")
	ErrInvalidAsset          = errors.New("Invalid transaction asset")
	ErrAlreadyDelegate       = errors.New("Account is already a delegate")
	ErrAlreadyTryingDelegate = errors.New("Account is already trying to be a delegate")
	ErrForgingPKUndefined    = errors.New("ForgingPK is undefined")
	ErrForgingPKInUse        = errors.New("Forging key is already in use")
	ErrUsernameLowercase     = errors.New("Username must be lowercase")
	ErrUsernameEmpty         = errors.New("Empty username")
	ErrUsernameTooLong       = errors.New("Username is too long. Maximum is 20 characters")
	ErrUsernameAddress       = errors.New("Username can not be a potential address")
	ErrUsernameCharacters    = errors.New("Username can only contain alphanumeric characters with the exception of !@$&_.")
	ErrUsernameExists        = errors.New("Username already exists")
	ErrAssetNotRestored      = errors.New("Couldn't restore asset")
	ErrVotesEmpty            = errors.New("Invalid votes. Must not be empty")
	ErrVotesPerTxExceeded    = errors.New("Voting limit exceeded")
	ErrDuplicateVote         = errors.New("Multiple votes for same delegate are not allowed")
	ErrDelegateNotFound      = errors.New("Delegate not found")
	ErrAlreadyVoted          = errors.New("Failed to add vote, account has already voted for this delegate")
	ErrNotVoted              = errors.New("Failed to remove vote, account has not voted for this delegate")
	ErrMaxVotesExceeded      = errors.New("Maximum number of votes exceeded")
	ErrInvalidPublicKey      = errors.New("Invalid public key")
	ErrSecondSignatureExists = errors.New("Second signature already enabled")
	ErrMissingSecondSig      = errors.New("Missing sender second signature")
	ErrUnexpectedSecondSig   = errors.New("Sender does not have a second signature")
)

// FeeSource supplies the fee schedule in force at a height.
type FeeSource interface {
	FeesAt(height int64) config.FeeSchedule
}

// AccountLookup is the confirmed-state lookup used by delegate and vote checks.
type AccountLookup interface {
	GetByUsername(username string) (*types.Account, error)
	GetByForgingPK(pk []byte) (*types.Account, error)
}

// AssetReader restores variant assets of stored transactions.
type AssetReader interface {
	DelegateAsset(txID string) (*types.DelegateAsset, error)
	VotesAsset(txID string) (*types.VotesAsset, error)
	SignatureAsset(txID string) (*types.SignatureAsset, error)
}

// onlyAsset reports whether tx carries exactly the asset kind its type expects.
func onlyAsset(tx *types.Transaction, want types.TxType) bool {
	a := tx.Asset
	switch want {
	case types.TxTypeSend:
		return a.Delegate == nil && a.Votes == nil && a.Signature == nil
	case types.TxTypeDelegate:
		return a.Delegate != nil && a.Votes == nil && a.Signature == nil
	case types.TxTypeVote:
		return a.Votes != nil && a.Delegate == nil && a.Signature == nil
	case types.TxTypeSecondSignature:
		return a.Signature != nil && a.Delegate == nil && a.Votes == nil
	}
	return false
}
