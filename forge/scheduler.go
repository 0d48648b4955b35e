// Package forge decides when a locally held delegate key owns the current slot and has the
// block assembler produce a block for it.
package forge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/exception"
	"github.com/mezonai/dpos/interfaces"
	"github.com/mezonai/dpos/ledger"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
)

var (
	ErrPoorConsensus  = errors.New("Inadequate broadhash consensus")
	ErrGenerateFailed = errors.New("Failed to generate block within delegate slot")
	ErrUnknownAccount = errors.New("Account with publicKey not found")
)

const DefaultTickInterval = time.Second

// Chain is the tip and sync state the scheduler reads.
type Chain interface {
	LastBlock() *types.Block
	IsSyncing() bool
}

// Rounds is the part of round accounting that gates forging.
type Rounds interface {
	IsTicking() bool
}

// DelegateLists gives the forging order for a height.
type DelegateLists interface {
	ForHeight(height int64) ([][]byte, error)
}

// Consensus is the broadhash agreement with peers.
type Consensus interface {
	UpdateConsensus(ctx context.Context) (int, error)
	Consensus() int
	PoorConsensus() bool
}

// Accounts finds delegates by forging key.
type Accounts interface {
	GetByForgingPK(pk []byte) (*types.Account, error)
}

type Config struct {
	Secrets      []string
	TickInterval time.Duration
}

// slotData is the next slot one of our enabled keys owns.
type slotData struct {
	keypair crypto.Keypair
	slot    int64
	time    int64
}

type Scheduler struct {
	cfg       Config
	chain     Chain
	rounds    Rounds
	lists     DelegateLists
	consensus Consensus
	accounts  Accounts
	assembler interfaces.BlockAssembler
	seq       *ledger.Sequence
	slots     utils.Slots
	clock     utils.Clock

	mu       sync.RWMutex
	keypairs map[string]crypto.Keypair
	enabled  map[string]bool

	forging    atomic.Bool
	lastForged atomic.Int64
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewScheduler(
	cfg Config,
	chain Chain,
	rounds Rounds,
	lists DelegateLists,
	consensus Consensus,
	accounts Accounts,
	assembler interfaces.BlockAssembler,
	seq *ledger.Sequence,
	slots utils.Slots,
	clock utils.Clock,
) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	s := &Scheduler{
		cfg:       cfg,
		chain:     chain,
		rounds:    rounds,
		lists:     lists,
		consensus: consensus,
		accounts:  accounts,
		assembler: assembler,
		seq:       seq,
		slots:     slots,
		clock:     clock,
		keypairs:  make(map[string]crypto.Keypair),
		enabled:   make(map[string]bool),
		stopCh:    make(chan struct{}),
	}
	s.lastForged.Store(-1)
	return s
}

// LoadDelegates derives a keypair per configured secret and keeps those belonging to registered
// delegates, all enabled.
func (s *Scheduler) LoadDelegates() error {
	if len(s.cfg.Secrets) == 0 {
		return nil
	}
	loaded := make(map[string]crypto.Keypair, len(s.cfg.Secrets))
	for _, secret := range s.cfg.Secrets {
		kp := crypto.KeypairFromSecret(secret)
		acc, err := s.accounts.GetByForgingPK(kp.PublicKey)
		if err != nil {
			return err
		}
		if acc == nil {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, kp.PublicKeyHex())
		}
		if !acc.IsDelegate {
			logx.Warn("FORGE", "Account with public key: ", kp.PublicKeyHex(), " is not a delegate")
			continue
		}
		loaded[kp.PublicKeyHex()] = kp
		logx.Info("FORGE", "Forging enabled on account: ", acc.Address)
	}
	for _, kp := range loaded {
		s.EnableForge(kp)
	}
	return nil
}

// EnableForge turns forging on for kp.
func (s *Scheduler) EnableForge(kp crypto.Keypair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := kp.PublicKeyHex()
	s.keypairs[key] = kp
	s.enabled[key] = true
}

// EnableAll turns forging on for every known keypair.
func (s *Scheduler) EnableAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.keypairs {
		s.enabled[key] = true
	}
}

// DisableForge turns forging off for the key given in hex.
func (s *Scheduler) DisableForge(publicKeyHex string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enabled, publicKeyHex)
}

func (s *Scheduler) DisableAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = make(map[string]bool)
}

func (s *Scheduler) IsForgeEnabledOn(publicKeyHex string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[publicKeyHex]
}

// EnabledKeys lists the enabled keys in hex, sorted.
func (s *Scheduler) EnabledKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.enabled))
	for key, on := range s.enabled {
		if on {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) hasKeypairs() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keypairs) > 0
}

// Start runs the forging loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	exception.SafeGo("nextForge", func() {
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Forge(ctx); err != nil {
					logx.Warn("FORGE", "Error in nextForge: ", err)
				}
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}
	})
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Forge runs one forging attempt. Attempts never overlap; one already running makes this a no-op.
func (s *Scheduler) Forge(ctx context.Context) error {
	if !s.forging.CompareAndSwap(false, true) {
		logx.Debug("FORGE", "Previous forging attempt still running")
		return nil
	}
	defer s.forging.Store(false)

	if s.chain.IsSyncing() {
		logx.Debug("FORGE", "Client not ready to forge")
		return nil
	}
	if s.rounds.IsTicking() {
		logx.Debug("FORGE", "Client not ready to forge: round is ticking")
		return nil
	}
	if !s.hasKeypairs() {
		if err := s.LoadDelegates(); err != nil {
			return err
		}
		if !s.hasKeypairs() {
			logx.Debug("FORGE", "No delegates enabled")
			return nil
		}
	}

	return s.seq.Run(ctx, func(ctx context.Context) error {
		last := s.chain.LastBlock()
		if last == nil {
			return nil
		}
		currentSlot := s.slots.SlotNumber(s.now())
		if currentSlot == s.slots.SlotNumber(int64(last.Timestamp)) {
			logx.Debug("FORGE", "Waiting for next delegate slot")
			return nil
		}

		data, err := s.blockSlotData(currentSlot, last.Height+1)
		if err != nil {
			return err
		}
		if data == nil {
			logx.Debug("FORGE", "Skipping slot ", currentSlot, ": no enabled delegate")
			return nil
		}
		if data.slot != s.slots.SlotNumber(s.now()) {
			logx.Debug("FORGE", "Delegate slot ", data.slot, " is not the current one")
			return nil
		}
		if data.slot <= s.lastForged.Load() {
			logx.Debug("FORGE", "Slot ", data.slot, " already forged")
			return nil
		}

		if _, err := s.consensus.UpdateConsensus(ctx); err != nil {
			logx.Warn("FORGE", "could not update consensus: ", err)
		}
		if s.consensus.PoorConsensus() {
			return fmt.Errorf("%w %d %%", ErrPoorConsensus, s.consensus.Consensus())
		}
		s.lastForged.Store(data.slot)
		if err := s.assembler.GenerateBlock(ctx, data.keypair, data.time); err != nil {
			logx.Error("FORGE", "Failed to generate block within delegate slot: ", err)
			return fmt.Errorf("%w: %v", ErrGenerateFailed, err)
		}
		return nil
	})
}

// blockSlotData scans one rotation from slot for the first slot owned by an enabled local key.
func (s *Scheduler) blockSlotData(slot, height int64) (*slotData, error) {
	keys, err := s.lists.ForHeight(height)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := s.slots.LastSlot(slot)
	for cur := slot; cur < last; cur++ {
		key := hex.EncodeToString(keys[cur%int64(len(keys))])
		kp, ok := s.keypairs[key]
		if ok && s.enabled[key] {
			return &slotData{keypair: kp, slot: cur, time: s.slots.SlotTime(cur)}, nil
		}
	}
	return nil, nil
}

func (s *Scheduler) now() int64 {
	return s.slots.Time(s.clock.Now())
}
