package txtypes

import (
	"context"
	"fmt"

	"github.com/mezonai/dpos/codec"
	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
)

// Vote adds or removes the sender's votes for delegates, by username. Vote weight follows the
// voter's confirmed balance and is recomputed when a round closes.
type Vote struct {
	transaction.BaseVariant
	fees          FeeSource
	accounts      AccountLookup
	assets        AssetReader
	maxPerTx      int
	maxPerAccount int
}

func NewVote(fees FeeSource, accounts AccountLookup, assets AssetReader, maxPerTx, maxPerAccount int) *Vote {
	return &Vote{
		fees:          fees,
		accounts:      accounts,
		assets:        assets,
		maxPerTx:      maxPerTx,
		maxPerAccount: maxPerAccount,
	}
}

func (v *Vote) Type() types.TxType { return types.TxTypeVote }

func (v *Vote) CalculateMinFee(_ *types.Transaction, _ *types.Account, height int64) int64 {
	return v.fees.FeesAt(height).Vote
}

func (v *Vote) Verify(_ context.Context, tx *types.Transaction, sender *types.Account) error {
	if tx.RecipientID != sender.Address {
		return ErrInvalidRecipient
	}
	if tx.Amount != 0 {
		return ErrInvalidAmount
	}
	votes := tx.Asset.Votes
	if votes == nil {
		return ErrInvalidAsset
	}
	n := len(votes.Added) + len(votes.Removed)
	if n == 0 {
		return ErrVotesEmpty
	}
	if n > v.maxPerTx {
		return fmt.Errorf("%w. Maximum is %d votes per transaction", ErrVotesPerTxExceeded, v.maxPerTx)
	}
	seen := make(map[string]struct{}, n)
	for _, list := range [][]string{votes.Added, votes.Removed} {
		for _, username := range list {
			if _, ok := seen[username]; ok {
				return ErrDuplicateVote
			}
			seen[username] = struct{}{}
		}
	}
	for _, username := range votes.Added {
		delegate, err := v.accounts.GetByUsername(username)
		if err != nil {
			return err
		}
		if delegate == nil || !delegate.IsDelegate {
			return fmt.Errorf("%w: %s", ErrDelegateNotFound, username)
		}
	}
	return v.checkVotes(votes, sender.Delegates)
}

// checkVotes validates the asset against a current vote set, confirmed or unconfirmed.
func (v *Vote) checkVotes(votes *types.VotesAsset, current []string) error {
	has := make(map[string]struct{}, len(current))
	for _, u := range current {
		has[u] = struct{}{}
	}
	for _, u := range votes.Added {
		if _, ok := has[u]; ok {
			return ErrAlreadyVoted
		}
	}
	for _, u := range votes.Removed {
		if _, ok := has[u]; !ok {
			return ErrNotVoted
		}
	}
	if len(current)+len(votes.Added)-len(votes.Removed) > v.maxPerAccount {
		return fmt.Errorf("%w. Maximum is %d", ErrMaxVotesExceeded, v.maxPerAccount)
	}
	return nil
}

func diffEntries(votes *types.VotesAsset) []string {
	out := make([]string, 0, len(votes.Added)+len(votes.Removed))
	for _, u := range votes.Added {
		out = append(out, "+"+u)
	}
	for _, u := range votes.Removed {
		out = append(out, "-"+u)
	}
	return out
}

func applyDiff(list []string, diff []string) []string {
	out := append([]string(nil), list...)
	for _, d := range diff {
		name := d[1:]
		if d[0] == '+' {
			out = append(out, name)
			continue
		}
		for i, s := range out {
			if s == name {
				out = append(out[:i], out[i+1:]...)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (v *Vote) Apply(_ context.Context, tx *types.Transaction, _ *types.Block, sender *types.Account) ([]dbop.Op, error) {
	votes := tx.Asset.Votes
	if err := v.checkVotes(votes, sender.Delegates); err != nil {
		return nil, err
	}
	diff := dbop.Diff(diffEntries(votes)...)
	sender.Delegates = applyDiff(sender.Delegates, diff.Diffs)
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{"delegates": diff}),
	}, nil
}

func (v *Vote) Undo(_ context.Context, tx *types.Transaction, _ *types.Block, sender *types.Account) ([]dbop.Op, error) {
	diff := dbop.Diff(diffEntries(tx.Asset.Votes)...).Negate()
	sender.Delegates = applyDiff(sender.Delegates, diff.Diffs)
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{"delegates": diff}),
	}, nil
}

func (v *Vote) ApplyUnconfirmed(_ context.Context, tx *types.Transaction, sender *types.Account) ([]dbop.Op, error) {
	votes := tx.Asset.Votes
	if err := v.checkVotes(votes, sender.UDelegates); err != nil {
		return nil, err
	}
	diff := dbop.Diff(diffEntries(votes)...)
	sender.UDelegates = applyDiff(sender.UDelegates, diff.Diffs)
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{"u_delegates": diff}),
	}, nil
}

func (v *Vote) UndoUnconfirmed(_ context.Context, tx *types.Transaction, sender *types.Account) ([]dbop.Op, error) {
	diff := dbop.Diff(diffEntries(tx.Asset.Votes)...).Negate()
	sender.UDelegates = applyDiff(sender.UDelegates, diff.Diffs)
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{"u_delegates": diff}),
	}, nil
}

func (v *Vote) ObjectNormalize(tx *types.Transaction) error {
	if !onlyAsset(tx, types.TxTypeVote) {
		return ErrInvalidAsset
	}
	return nil
}

func (v *Vote) DBSave(tx *types.Transaction) *dbop.Op {
	op := dbop.Create(dbop.TargetVotes, dbop.Values{
		"transactionId": dbop.Set(tx.ID),
		"added":         dbop.Set(tx.Asset.Votes.Added),
		"removed":       dbop.Set(tx.Asset.Votes.Removed),
	})
	return &op
}

func (v *Vote) AttachAssets(_ context.Context, txs []*types.Transaction) error {
	for _, tx := range txs {
		asset, err := v.assets.VotesAsset(tx.ID)
		if err != nil {
			return err
		}
		if asset == nil {
			return fmt.Errorf("%w for Vote tx: %s", ErrAssetNotRestored, tx.ID)
		}
		tx.Asset.Votes = asset
	}
	return nil
}

// FindConflicts allows one vote transaction per sender in a batch.
func (v *Vote) FindConflicts(_ context.Context, txs []*types.Transaction) ([]*types.Transaction, error) {
	seen := make(map[string]struct{})
	var out []*types.Transaction
	for _, tx := range txs {
		if _, ok := seen[tx.SenderID]; ok {
			out = append(out, tx)
			continue
		}
		seen[tx.SenderID] = struct{}{}
	}
	return out, nil
}

func (v *Vote) AssetBytes(tx *types.Transaction) ([]byte, error) {
	votes := tx.Asset.Votes
	if votes == nil {
		return nil, ErrInvalidAsset
	}
	w := codec.NewWriter(64)
	w.Strings(votes.Added)
	w.Strings(votes.Removed)
	return w.Bytes()
}
