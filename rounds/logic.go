package rounds

import (
	"fmt"

	"github.com/mezonai/dpos/dbop"
	lerrors "github.com/mezonai/dpos/errors"
	"github.com/mezonai/dpos/utils"
)

// Scope is everything needed to account for one closing round.
type Scope struct {
	Round       int64
	Backwards   bool
	FinishRound bool
	DposV2      bool

	// Outsiders are addresses of listed delegates that forged nothing this round.
	Outsiders []string
	// Forgers, Fees and Rewards hold one entry per accounted block, in height order.
	Forgers []string
	Fees    []int64
	Rewards []int64
	// CMB is the consecutive-missed-blocks counter of each forger and outsider before the round closed.
	CMB map[string]int64

	Splitter Splitter
}

// Logic turns a Scope into ops. Forward ops are: missed blocks, per-forger distribution, votes
// snapshot, vote recalculation. Backward ops mirror the first two and then restore the snapshot.
type Logic struct {
	scope *Scope
}

func NewLogic(scope *Scope) (*Logic, error) {
	if scope.FinishRound {
		if len(scope.Forgers) != len(scope.Fees) || len(scope.Forgers) != len(scope.Rewards) {
			return nil, fmt.Errorf("round %d scope has %d forgers, %d fees and %d rewards",
				scope.Round, len(scope.Forgers), len(scope.Fees), len(scope.Rewards))
		}
		if scope.Splitter == nil {
			return nil, fmt.Errorf("round %d scope has no fee splitter", scope.Round)
		}
	}
	return &Logic{scope: scope}, nil
}

func (l *Logic) sign(v int64) int64 {
	if l.scope.Backwards {
		return -v
	}
	return v
}

// UpdateMissedBlocks returns the outsider penalty, or nil when everyone forged.
func (l *Logic) UpdateMissedBlocks() *dbop.Op {
	if len(l.scope.Outsiders) == 0 {
		return nil
	}
	cmb := dbop.Set(int64(0))
	if l.scope.DposV2 {
		cmb = dbop.Inc(l.sign(1))
	}
	op := dbop.Update(dbop.TargetAccounts, dbop.ByAddress(l.scope.Outsiders...), dbop.Values{
		"missedblocks": dbop.Inc(l.sign(1)),
		"cmb":          cmb,
	})
	return &op
}

// ApplyRound credits (or, backwards, debits) every forger its share of the pot.
func (l *Logic) ApplyRound() ([]dbop.Op, error) {
	changes, err := l.scope.Splitter.Split(l.scope.Fees, l.scope.Rewards)
	if err != nil {
		return nil, err
	}
	if err := l.checkDistribution(changes); err != nil {
		return nil, err
	}
	ops := make([]dbop.Op, 0, len(changes))
	for i, c := range changes {
		ops = append(ops, dbop.Update(dbop.TargetAccounts, dbop.ByAddress(l.scope.Forgers[i]), dbop.Values{
			"balance":        dbop.Inc(l.sign(c.Balance)),
			"u_balance":      dbop.Inc(l.sign(c.Balance)),
			"fees":           dbop.Inc(l.sign(c.Fees)),
			"rewards":        dbop.Inc(l.sign(c.Rewards)),
			"producedblocks": dbop.Inc(l.sign(1)),
			"cmb":            dbop.Set(int64(0)),
		}))
	}
	return ops, nil
}

// checkDistribution fails unless the shares add up to exactly the pot.
func (l *Logic) checkDistribution(changes []Change) error {
	fees, err := utils.SumAmounts(l.scope.Fees...)
	if err != nil {
		return err
	}
	rewards, err := utils.SumAmounts(l.scope.Rewards...)
	if err != nil {
		return err
	}
	pot, err := utils.AddInt64(fees, rewards)
	if err != nil {
		return err
	}
	var paid int64
	for _, c := range changes {
		if c.Balance != c.Fees+c.Rewards {
			return lerrors.NewError(lerrors.ErrCodeRoundPot, fmt.Sprintf("Round %d share %d is not fees %d plus rewards %d", l.scope.Round, c.Balance, c.Fees, c.Rewards))
		}
		if paid, err = utils.AddInt64(paid, c.Balance); err != nil {
			return err
		}
	}
	if len(changes) != len(l.scope.Forgers) || paid != pot {
		return lerrors.NewError(lerrors.ErrCodeRoundPot, fmt.Sprintf(lerrors.ErrMsgRoundPot, l.scope.Round, paid, pot))
	}
	return nil
}

func (l *Logic) PerformVotesSnapshot() dbop.Op {
	return dbop.Custom(dbop.TargetRounds, dbop.Query{
		Name:   dbop.QueryPerformVotesSnapshot,
		Round:  l.scope.Round,
		Values: l.scope.CMB,
	})
}

func (l *Logic) RestoreVotesSnapshot() dbop.Op {
	return dbop.Custom(dbop.TargetRounds, dbop.Query{Name: dbop.QueryRestoreVotesSnapshot, Round: l.scope.Round})
}

func (l *Logic) RecalcVotes() dbop.Op {
	return dbop.Custom(dbop.TargetAccounts, dbop.Query{Name: dbop.QueryRecalcVotes})
}

// ForgetLaterLists drops the persisted forging order of every round after this one.
func (l *Logic) ForgetLaterLists() dbop.Op {
	return dbop.Custom(dbop.TargetRounds, dbop.Query{Name: dbop.QueryDeleteDelegateLists, Round: l.scope.Round + 1})
}

func (l *Logic) Apply() ([]dbop.Op, error) {
	if !l.scope.FinishRound {
		return nil, nil
	}
	return l.build(l.PerformVotesSnapshot(), l.RecalcVotes())
}

func (l *Logic) Undo() ([]dbop.Op, error) {
	if !l.scope.FinishRound {
		return nil, nil
	}
	return l.build(l.RestoreVotesSnapshot(), l.ForgetLaterLists())
}

func (l *Logic) build(tail ...dbop.Op) ([]dbop.Op, error) {
	var ops []dbop.Op
	if op := l.UpdateMissedBlocks(); op != nil {
		ops = append(ops, *op)
	}
	distribution, err := l.ApplyRound()
	if err != nil {
		return nil, err
	}
	ops = append(ops, distribution...)
	return append(ops, tail...), nil
}
