package transaction

import (
	"fmt"
	"sort"

	"github.com/mezonai/dpos/types"
)

// Registry maps a type tag to its variant. It is filled once at startup and read-only afterwards.
type Registry struct {
	variants map[types.TxType]Variant
}

func NewRegistry(variants ...Variant) (*Registry, error) {
	r := &Registry{variants: make(map[types.TxType]Variant, len(variants))}
	for _, v := range variants {
		if _, ok := r.variants[v.Type()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVariant, v.Type())
		}
		r.variants[v.Type()] = v
	}
	return r, nil
}

func (r *Registry) Get(t types.TxType) (Variant, error) {
	v, ok := r.variants[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTransactionType, t)
	}
	return v, nil
}

// Types lists registered tags in ascending order.
func (r *Registry) Types() []types.TxType {
	out := make([]types.TxType, 0, len(r.variants))
	for t := range r.variants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
