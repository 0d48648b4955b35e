// Package rounds implements DPoS round bookkeeping: the forging order of each round and the
// accounting done on the block that closes it.
package rounds

// CalcRound returns the round containing height. Round 1 spans heights 1..activeDelegates.
func CalcRound(height, activeDelegates int64) int64 {
	if height < 1 {
		return 1
	}
	return (height + activeDelegates - 1) / activeDelegates
}

func FirstInRound(round, activeDelegates int64) int64 {
	return (round-1)*activeDelegates + 1
}

func LastInRound(round, activeDelegates int64) int64 {
	return round * activeDelegates
}

// FinishesRound reports whether height is the last height of its round.
func FinishesRound(height, activeDelegates int64) bool {
	return height >= 1 && height%activeDelegates == 0
}
