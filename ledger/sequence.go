package ledger

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrCleaningUp = errors.New("node is cleaning up, refusing new work")

type heldKey struct{ s *Sequence }

// Sequence runs state-changing work one unit at a time. A unit that calls Run again with the
// context it was given runs inline instead of waiting on itself.
type Sequence struct {
	name     string
	sem      chan struct{}
	cleaning atomic.Bool
	queued   atomic.Int64
}

func NewSequence(name string) *Sequence {
	return &Sequence{name: name, sem: make(chan struct{}, 1)}
}

func (s *Sequence) Name() string { return s.name }

// Held reports whether ctx belongs to work already running inside s.
func (s *Sequence) Held(ctx context.Context) bool {
	v, _ := ctx.Value(heldKey{s}).(bool)
	return v
}

// Run waits for its turn, bounded by ctx, and runs fn.
func (s *Sequence) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.Held(ctx) {
		return fn(ctx)
	}
	if s.cleaning.Load() {
		return ErrCleaningUp
	}
	s.queued.Add(1)
	select {
	case s.sem <- struct{}{}:
		s.queued.Add(-1)
	case <-ctx.Done():
		s.queued.Add(-1)
		return ctx.Err()
	}
	defer func() { <-s.sem }()
	if s.cleaning.Load() {
		return ErrCleaningUp
	}
	return fn(context.WithValue(ctx, heldKey{s}, true))
}

// Pending is the number of callers waiting for their turn.
func (s *Sequence) Pending() int64 { return s.queued.Load() }

// Cleanup refuses new work and waits, bounded by ctx, for the running unit to finish. The
// sequence stays closed afterwards.
func (s *Sequence) Cleanup(ctx context.Context) error {
	s.cleaning.Store(true)
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
