package rounds

import (
	"fmt"

	"github.com/mezonai/dpos/utils"
)

// Change is what one forger of a round receives.
type Change struct {
	Balance int64
	Fees    int64
	Rewards int64
}

// Splitter divides a round's pot among its forgers. fees and rewards hold one entry per block
// of the round, in height order; the result has one entry per block as well.
type Splitter interface {
	Name() string
	Split(fees, rewards []int64) ([]Change, error)
}

// EqualFeeSplit shares the summed fees equally, floor-divided, and gives the remainder to the
// forger of the last block. Rewards go to the forger of the block that minted them.
type EqualFeeSplit struct{}

func (EqualFeeSplit) Name() string { return "equal" }

func (EqualFeeSplit) Split(fees, rewards []int64) ([]Change, error) {
	if err := checkLengths(fees, rewards); err != nil || len(fees) == 0 {
		return nil, err
	}
	pot, err := utils.SumAmounts(fees...)
	if err != nil {
		return nil, err
	}
	n := int64(len(fees))
	share := pot / n
	remainder := pot - share*n

	out := make([]Change, n)
	for i := range out {
		f := share
		if int64(i) == n-1 {
			f += remainder
		}
		out[i], err = change(f, rewards[i])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ForgerFeeSplit gives each block's fees and reward to its own forger.
type ForgerFeeSplit struct{}

func (ForgerFeeSplit) Name() string { return "forger" }

func (ForgerFeeSplit) Split(fees, rewards []int64) ([]Change, error) {
	if err := checkLengths(fees, rewards); err != nil {
		return nil, err
	}
	out := make([]Change, len(fees))
	for i := range out {
		c, err := change(fees[i], rewards[i])
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func change(fees, rewards int64) (Change, error) {
	balance, err := utils.AddInt64(fees, rewards)
	if err != nil {
		return Change{}, err
	}
	return Change{Balance: balance, Fees: fees, Rewards: rewards}, nil
}

func checkLengths(fees, rewards []int64) error {
	if len(fees) != len(rewards) {
		return fmt.Errorf("round has %d fee entries but %d reward entries", len(fees), len(rewards))
	}
	return nil
}

// SplitterAt picks the fee split in force for a round closed at height.
func SplitterAt(height, switchHeight int64) Splitter {
	if switchHeight > 0 && height >= switchHeight {
		return ForgerFeeSplit{}
	}
	return EqualFeeSplit{}
}
