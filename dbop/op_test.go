package dbop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNegate(t *testing.T) {
	assert.Equal(t, Inc(-5), Inc(5).Negate())
	assert.Equal(t, Diff("-alice", "+bob"), Diff("+alice", "-bob").Negate())
	assert.Equal(t, Set(true), Set(true).Negate())
}

func TestOpString(t *testing.T) {
	op := Update(TargetAccounts, ByAddress("1R"), Values{"balance": Inc(1)})
	assert.Equal(t, "update accounts address=[1R]", op.String())
	assert.Equal(t, "custom rounds recalcVotes", Custom(TargetRounds, Query{Name: QueryRecalcVotes}).String())
}
