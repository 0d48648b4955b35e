// Package hooks provides named extension points. Each point holds an ordered chain of filters;
// a filter receives the payload, may return a modified one, or fail, which stops the chain and
// fails the operation that ran it.
package hooks

import (
	"context"
	"fmt"
	"sync"
)

type Filter[P any] func(ctx context.Context, payload P) (P, error)

type entry[P any] struct {
	name     string
	priority int
	fn       Filter[P]
}

type Point[P any] struct {
	name    string
	mu      sync.RWMutex
	filters []entry[P]
}

func NewPoint[P any](name string) *Point[P] {
	return &Point[P]{name: name}
}

func (p *Point[P]) Name() string {
	return p.name
}

// Register adds fn to the chain. Lower priority runs first; equal priorities keep registration order.
func (p *Point[P]) Register(name string, priority int, fn Filter[P]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.filters)
	for i, e := range p.filters {
		if e.priority > priority {
			idx = i
			break
		}
	}
	p.filters = append(p.filters, entry[P]{})
	copy(p.filters[idx+1:], p.filters[idx:])
	p.filters[idx] = entry[P]{name: name, priority: priority, fn: fn}
}

// Unregister removes every filter registered under name.
func (p *Point[P]) Unregister(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.filters[:0]
	for _, e := range p.filters {
		if e.name != name {
			kept = append(kept, e)
		}
	}
	p.filters = kept
}

func (p *Point[P]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.filters)
}

// Apply runs the chain in order. An empty chain returns the payload unchanged.
func (p *Point[P]) Apply(ctx context.Context, payload P) (P, error) {
	p.mu.RLock()
	chain := make([]entry[P], len(p.filters))
	copy(chain, p.filters)
	p.mu.RUnlock()

	for _, e := range chain {
		out, err := e.fn(ctx, payload)
		if err != nil {
			return payload, fmt.Errorf("%s/%s: %w", p.name, e.name, err)
		}
		payload = out
	}
	return payload, nil
}
