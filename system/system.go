// Package system holds network-wide parameters that depend on the current height and the
// node's view of peer consensus.
package system

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/interfaces"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/monitoring"
)

type System struct {
	cfg   config.NetworkConfig
	peers interfaces.Peers
	force bool

	height    atomic.Int64
	consensus atomic.Int64

	mu        sync.RWMutex
	broadhash string
}

func New(cfg config.NetworkConfig, peers interfaces.Peers, forceForging bool) *System {
	if peers == nil {
		peers = interfaces.StaticPeers(nil)
	}
	s := &System{cfg: cfg, peers: peers, force: forceForging, broadhash: cfg.Nethash}
	return s
}

func (s *System) Config() config.NetworkConfig {
	return s.cfg
}

func (s *System) Nethash() string {
	return s.cfg.Nethash
}

func (s *System) MinVersion() string {
	return s.cfg.MinVersion
}

func (s *System) Height() int64 {
	return s.height.Load()
}

func (s *System) SetHeight(h int64) {
	s.height.Store(h)
	monitoring.SetBlockHeight(h)
}

// FeesAt returns the fee schedule in force at height.
func (s *System) FeesAt(height int64) config.FeeSchedule {
	fees := s.cfg.Fees[0]
	for _, f := range s.cfg.Fees {
		if f.Height > height {
			break
		}
		fees = f
	}
	return fees
}

// RewardAt returns the block reward for a block at height.
func (s *System) RewardAt(height int64) int64 {
	r := s.cfg.Rewards
	if len(r.Milestones) == 0 || height < r.Offset {
		return 0
	}
	location := (height - r.Offset) / r.Distance
	if last := int64(len(r.Milestones) - 1); location > last {
		location = last
	}
	return r.Milestones[location]
}

// DposV2At reports whether consecutive missed blocks are tracked at height.
func (s *System) DposV2At(height int64) bool {
	return s.cfg.DposV2Height > 0 && height >= s.cfg.DposV2Height
}

func (s *System) Broadhash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broadhash
}

// UpdateBroadhash derives the broadhash from the most recent block ids, tip first.
// An empty list resets it to the nethash.
func (s *System) UpdateBroadhash(lastIDs []string) {
	hash := s.cfg.Nethash
	if len(lastIDs) > 0 {
		sum := sha256.Sum256([]byte(strings.Join(lastIDs, "")))
		hash = hex.EncodeToString(sum[:])
	}
	s.mu.Lock()
	s.broadhash = hash
	s.mu.Unlock()
}

func (s *System) Consensus() int {
	return int(s.consensus.Load())
}

// UpdateConsensus recomputes the consensus percentage from the current peer set.
func (s *System) UpdateConsensus(ctx context.Context) (int, error) {
	peers, err := s.peers.ActivePeers(ctx)
	if err != nil {
		return s.Consensus(), err
	}
	c := DetermineConsensus(peers, s.Broadhash())
	s.consensus.Store(int64(c))
	monitoring.SetConsensus(c)
	monitoring.SetPeerCount(len(peers))
	logx.Debug("SYSTEM", "broadhash consensus now ", c, " % over ", len(peers), " peers")
	return c, nil
}

// PoorConsensus reports whether forging must be held back. Forced forging never is.
func (s *System) PoorConsensus() bool {
	if s.force {
		return false
	}
	return s.Consensus() < s.cfg.MinBroadhashConsensus
}

// DetermineConsensus is the rounded share of peers whose broadhash matches, 0 without peers.
func DetermineConsensus(peers []interfaces.Peer, broadhash string) int {
	if len(peers) == 0 {
		return 0
	}
	matched := 0
	for _, p := range peers {
		if p.Broadhash == broadhash {
			matched++
		}
	}
	return int(math.Round(float64(matched) / float64(len(peers)) * 100))
}
