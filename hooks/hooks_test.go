package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRunsInPriorityOrder(t *testing.T) {
	p := NewPoint[[]string]("test")
	p.Register("b", 10, func(_ context.Context, in []string) ([]string, error) { return append(in, "b"), nil })
	p.Register("a", 0, func(_ context.Context, in []string) ([]string, error) { return append(in, "a"), nil })
	p.Register("c", 10, func(_ context.Context, in []string) ([]string, error) { return append(in, "c"), nil })

	out, err := p.Apply(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestApplyShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	called := false
	p := NewPoint[int]("txApply")
	p.Register("fail", 0, func(_ context.Context, in int) (int, error) { return in, boom })
	p.Register("after", 1, func(_ context.Context, in int) (int, error) {
		called = true
		return in + 1, nil
	})

	out, err := p.Apply(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "txApply/fail")
	assert.Equal(t, 1, out)
	assert.False(t, called)
}

func TestUnregister(t *testing.T) {
	p := NewPoint[int]("x")
	p.Register("inc", 0, func(_ context.Context, in int) (int, error) { return in + 1, nil })
	p.Unregister("inc")
	assert.Equal(t, 0, p.Len())

	out, err := p.Apply(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, out)
}
