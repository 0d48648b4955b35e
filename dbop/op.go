// Package dbop defines the declarative state changes produced by transaction variants, the chain
// and the round accountant. Ops for one block are gathered in order and handed to an Executor,
// which commits all of them or none.
package dbop

import (
	"context"
	"fmt"
)

type Kind string

const (
	KindCreate     Kind = "create"
	KindUpdate     Kind = "update"
	KindBulkCreate Kind = "bulkCreate"
	KindCustom     Kind = "custom"
)

type Target string

const (
	TargetAccounts     Target = "accounts"
	TargetBlocks       Target = "blocks"
	TargetTransactions Target = "transactions"
	TargetDelegates    Target = "delegates"
	TargetVotes        Target = "votes"
	TargetSignatures   Target = "signatures"
	TargetRounds       Target = "rounds"
)

type Mode uint8

const (
	ModeSet Mode = iota
	ModeInc
	ModeDiff
)

// Value is a single field assignment. Set replaces, Inc adds a signed delta to an integer field,
// Diff applies "+x"/"-x" entries to a string list.
type Value struct {
	Mode  Mode
	Set   any
	Inc   int64
	Diffs []string
}

func Set(v any) Value { return Value{Mode: ModeSet, Set: v} }

func Inc(delta int64) Value { return Value{Mode: ModeInc, Inc: delta} }

func Diff(entries ...string) Value { return Value{Mode: ModeDiff, Diffs: entries} }

// Negate returns the value that reverses an Inc or Diff. Set values are returned unchanged.
func (v Value) Negate() Value {
	switch v.Mode {
	case ModeInc:
		return Inc(-v.Inc)
	case ModeDiff:
		out := make([]string, len(v.Diffs))
		for i, d := range v.Diffs {
			out[i] = flipDiff(d)
		}
		return Diff(out...)
	}
	return v
}

func flipDiff(d string) string {
	if d == "" {
		return d
	}
	switch d[0] {
	case '+':
		return "-" + d[1:]
	case '-':
		return "+" + d[1:]
	}
	return d
}

type Values map[string]Value

// Filter selects rows of the target by Field being any of In.
type Filter struct {
	Field string
	In    []string
}

func ByAddress(addresses ...string) Filter {
	return Filter{Field: "address", In: addresses}
}

type QueryName string

const (
	QueryPerformVotesSnapshot QueryName = "performVotesSnapshot"
	QueryRestoreVotesSnapshot QueryName = "restoreVotesSnapshot"
	QueryRecalcVotes          QueryName = "recalcVotes"
	QueryDeleteBlock          QueryName = "deleteBlock"
	QueryDeleteDelegateLists  QueryName = "deleteDelegateLists"
)

// Query is a named operation the executor knows how to run. Round scopes the snapshot queries,
// Key names a block for deleteBlock and Values carries extra per-account state to keep with a snapshot.
type Query struct {
	Name   QueryName
	Round  int64
	Key    string
	Values map[string]int64
}

type Op struct {
	Kind   Kind
	Target Target
	Filter Filter
	Values Values
	Rows   []Values
	Query  Query
}

func Create(target Target, values Values) Op {
	return Op{Kind: KindCreate, Target: target, Values: values}
}

func Update(target Target, filter Filter, values Values) Op {
	return Op{Kind: KindUpdate, Target: target, Filter: filter, Values: values}
}

func BulkCreate(target Target, rows []Values) Op {
	return Op{Kind: KindBulkCreate, Target: target, Rows: rows}
}

func Custom(target Target, q Query) Op {
	return Op{Kind: KindCustom, Target: target, Query: q}
}

func (o Op) String() string {
	switch o.Kind {
	case KindUpdate:
		return fmt.Sprintf("%s %s %s=%v", o.Kind, o.Target, o.Filter.Field, o.Filter.In)
	case KindBulkCreate:
		return fmt.Sprintf("%s %s rows=%d", o.Kind, o.Target, len(o.Rows))
	case KindCustom:
		return fmt.Sprintf("%s %s %s", o.Kind, o.Target, o.Query.Name)
	}
	return fmt.Sprintf("%s %s", o.Kind, o.Target)
}

// Executor commits a batch of ops atomically, in order.
type Executor interface {
	Execute(ctx context.Context, ops []Op) error
}
