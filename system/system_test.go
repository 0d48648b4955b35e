package system

import (
	"context"
	"testing"

	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineConsensus(t *testing.T) {
	peers := make([]interfaces.Peer, 400)
	for i := range peers {
		peers[i] = interfaces.Peer{Broadhash: "other"}
		if i < 100 {
			peers[i].Broadhash = "mine"
		}
	}
	assert.Equal(t, 25, DetermineConsensus(peers, "mine"))
	assert.Equal(t, 0, DetermineConsensus(nil, "mine"))
}

func TestRewardAt(t *testing.T) {
	cfg := config.DefaultNetworkConfig()
	cfg.Rewards = config.RewardsConfig{Milestones: []int64{50, 40, 30}, Offset: 10, Distance: 100}
	s := New(cfg, nil, false)

	assert.Equal(t, int64(0), s.RewardAt(9))
	assert.Equal(t, int64(50), s.RewardAt(10))
	assert.Equal(t, int64(40), s.RewardAt(110))
	assert.Equal(t, int64(30), s.RewardAt(10_000))
}

func TestFeesAt(t *testing.T) {
	cfg := config.DefaultNetworkConfig()
	cfg.Fees = []config.FeeSchedule{{Height: 1, Send: 10}, {Height: 100, Send: 5}}
	s := New(cfg, nil, false)

	assert.Equal(t, int64(10), s.FeesAt(99).Send)
	assert.Equal(t, int64(5), s.FeesAt(100).Send)
}

func TestPoorConsensus(t *testing.T) {
	cfg := config.DefaultNetworkConfig()
	s := New(cfg, interfaces.StaticPeers{{Broadhash: cfg.Nethash}, {Broadhash: "x"}}, false)
	c, err := s.UpdateConsensus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, c)
	assert.True(t, s.PoorConsensus())

	forced := New(cfg, nil, true)
	assert.False(t, forced.PoorConsensus())

	s.UpdateBroadhash([]string{"3", "2", "1"})
	assert.NotEqual(t, cfg.Nethash, s.Broadhash())
}
