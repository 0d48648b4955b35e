package txtypes

import (
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/transaction"
)

// Deps bundles what the built-in variants read.
type Deps struct {
	Fees                   FeeSource
	Accounts               AccountLookup
	Assets                 AssetReader
	Verifier               crypto.Verifier
	MaxVotesPerTransaction int
	MaxVotesPerAccount     int
}

// NewDefaultRegistry registers the four built-in variants.
func NewDefaultRegistry(d Deps) (*transaction.Registry, *SecondSignature, error) {
	second := NewSecondSignature(d.Fees, d.Assets, d.Verifier)
	reg, err := transaction.NewRegistry(
		NewSend(d.Fees),
		second,
		NewDelegate(d.Fees, d.Accounts, d.Assets),
		NewVote(d.Fees, d.Accounts, d.Assets, d.MaxVotesPerTransaction, d.MaxVotesPerAccount),
	)
	if err != nil {
		return nil, nil, err
	}
	return reg, second, nil
}
