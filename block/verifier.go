package block

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/hooks"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/interfaces"
	"github.com/mezonai/dpos/ledger"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDuplicateTransaction    = errors.New("Duplicated transaction found in block")
	ErrAlreadyConfirmed        = errors.New("Transactions already confirmed")
	ErrConflictingTransactions = errors.New("Found conflicting transactions in block. Block is invalid!")
)

type VerifierConfig struct {
	SlotWindow       int
	MaxPayloadLength int
	MaxTxsPerBlock   int
	ValidVersions    []int32
}

func VerifierConfigFrom(cfg config.NetworkConfig) VerifierConfig {
	return VerifierConfig{
		SlotWindow:       cfg.BlockSlotWindow,
		MaxPayloadLength: cfg.MaxPayloadLength,
		MaxTxsPerBlock:   cfg.MaxTxsPerBlock,
		ValidVersions:    cfg.ValidBlockVersions,
	}
}

// Result lists every reason a block failed verification.
type Result struct {
	Errors   []string `json:"errors"`
	Verified bool     `json:"verified"`
}

func newResult(errs []string) Result {
	return Result{Errors: errs, Verified: len(errs) == 0}
}

// VerifyPayload flows through the verification hook points. Filters may add errors.
type VerifyPayload struct {
	Block     *types.Block
	LastBlock *types.Block
	Result    Result
}

// Rewards is the emission schedule.
type Rewards interface {
	RewardAt(height int64) int64
}

// ConfirmedIDs filters ids down to the ones already stored.
type ConfirmedIDs interface {
	ConfirmedIDs(ids []string) ([]string, error)
}

// LastIDs lists stored block ids from the tip downwards.
type LastIDs interface {
	LastIDs(n int) ([]string, error)
}

type Verifier struct {
	cfg      VerifierConfig
	engine   *transaction.Engine
	sigs     crypto.Verifier
	rewards  Rewards
	tip      interfaces.LastBlockProvider
	txs      ConfirmedIDs
	pool     interfaces.TxPool
	fork     interfaces.ForkChoice
	registry *transaction.Registry

	ReceiptHooks *hooks.Point[*VerifyPayload]
	BlockHooks   *hooks.Point[*VerifyPayload]

	mu      sync.RWMutex
	lastIDs []string // oldest first
}

func NewVerifier(
	cfg VerifierConfig,
	engine *transaction.Engine,
	sigs crypto.Verifier,
	rewards Rewards,
	tip interfaces.LastBlockProvider,
	txs ConfirmedIDs,
	pool interfaces.TxPool,
	fork interfaces.ForkChoice,
) *Verifier {
	return &Verifier{
		cfg:          cfg,
		engine:       engine,
		sigs:         sigs,
		rewards:      rewards,
		tip:          tip,
		txs:          txs,
		pool:         pool,
		fork:         fork,
		registry:     engine.Registry(),
		ReceiptHooks: hooks.NewPoint[*VerifyPayload]("verifyReceipt"),
		BlockHooks:   hooks.NewPoint[*VerifyPayload]("verifyBlock"),
	}
}

// VerifyReceipt runs the cheap checks a freshly received block must pass. It assumes block
// extends the current tip.
func (v *Verifier) VerifyReceipt(ctx context.Context, block *types.Block) Result {
	last := v.tip.LastBlock()
	if last != nil {
		block.Height = last.Height + 1
	}
	var errs []string
	errs = append(errs, v.verifySignature(block)...)
	errs = append(errs, v.verifyPreviousBlock(block)...)
	errs = append(errs, v.verifyAgainstLastIDs(block)...)
	errs = append(errs, v.verifyVersion(block)...)
	errs = append(errs, v.verifyReward(block)...)
	errs = append(errs, v.verifyID(block)...)
	errs = append(errs, v.verifyPayload(block)...)
	return v.filter(ctx, v.ReceiptHooks, block, last, errs)
}

// VerifyBlock runs the full header checks before a block is applied, notifying the fork
// choice when block does not build on the tip.
func (v *Verifier) VerifyBlock(ctx context.Context, block *types.Block) Result {
	last := v.tip.LastBlock()
	var errs []string
	errs = append(errs, v.verifySignature(block)...)
	errs = append(errs, v.verifyPreviousBlock(block)...)
	errs = append(errs, v.verifyVersion(block)...)
	errs = append(errs, v.verifyReward(block)...)
	errs = append(errs, v.verifyID(block)...)
	errs = append(errs, v.verifyPayload(block)...)
	errs = append(errs, v.verifyForkOne(ctx, block, last)...)
	return v.filter(ctx, v.BlockHooks, block, last, errs)
}

func (v *Verifier) filter(ctx context.Context, point *hooks.Point[*VerifyPayload], block, last *types.Block, errs []string) Result {
	out, err := point.Apply(ctx, &VerifyPayload{Block: block, LastBlock: last, Result: newResult(errs)})
	if err != nil {
		return newResult(append(errs, err.Error()))
	}
	res := out.Result
	res.Verified = len(res.Errors) == 0
	return res
}

func (v *Verifier) verifySignature(block *types.Block) []string {
	if !VerifySignature(v.sigs, block) {
		return []string{"Failed to verify block signature"}
	}
	return nil
}

func (v *Verifier) verifyPreviousBlock(block *types.Block) []string {
	if block.PreviousBlock == "" && block.Height != 1 {
		return []string{"Invalid previous block"}
	}
	return nil
}

func (v *Verifier) verifyAgainstLastIDs(block *types.Block) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, id := range v.lastIDs {
		if id == block.ID {
			return []string{"Block Already exists in the chain"}
		}
	}
	return nil
}

func (v *Verifier) verifyVersion(block *types.Block) []string {
	for _, ver := range v.cfg.ValidVersions {
		if ver == block.Version {
			return nil
		}
	}
	return []string{"Invalid block version"}
}

func (v *Verifier) verifyReward(block *types.Block) []string {
	expected := v.rewards.RewardAt(block.Height)
	if block.Height != 1 && expected != block.Reward {
		return []string{fmt.Sprintf("Invalid block reward: %d expected: %d", block.Reward, expected)}
	}
	return nil
}

func (v *Verifier) verifyID(block *types.Block) []string {
	id, err := ID(block)
	if err != nil {
		return []string{err.Error()}
	}
	if id != block.ID {
		return []string{fmt.Sprintf("BlockID: Expected %s - Received %s", id, block.ID)}
	}
	return nil
}

// verifyPayload checks the declared payload against the carried transactions. A transaction
// that cannot be serialized is reported and left out of the hash and the totals.
func (v *Verifier) verifyPayload(block *types.Block) []string {
	var errs []string
	if int(block.PayloadLength) > v.cfg.MaxPayloadLength {
		errs = append(errs, "Payload length is too long")
	}
	if len(block.Transactions) != int(block.NumberOfTransactions) {
		errs = append(errs, "Included transactions do not match block transactions count")
	}
	if len(block.Transactions) > v.cfg.MaxTxsPerBlock {
		errs = append(errs, "Number of transactions exceeds maximum per block")
	}

	var (
		payload     []byte
		totalAmount int64
		totalFee    int64
		overflow    bool
		seen        = make(map[string]struct{}, len(block.Transactions))
	)
	for _, tx := range block.Transactions {
		b, err := v.registry.FullBytes(tx)
		if err != nil {
			logx.Warn("VERIFY", "TX error while verifying block payload: ", err)
			errs = append(errs, err.Error())
			continue
		}
		payload = append(payload, b...)
		if _, dup := seen[tx.ID]; dup {
			errs = append(errs, "Encountered duplicate transaction: "+tx.ID)
		}
		seen[tx.ID] = struct{}{}
		var errA, errF error
		if totalAmount, errA = utils.AddInt64(totalAmount, tx.Amount); errA != nil {
			overflow = true
		}
		if totalFee, errF = utils.AddInt64(totalFee, tx.Fee); errF != nil {
			overflow = true
		}
	}
	if !bytes.Equal(crypto.Hash(payload), block.PayloadHash) {
		errs = append(errs, "Invalid payload hash")
	}
	if overflow || totalAmount != block.TotalAmount {
		errs = append(errs, "Invalid total amount")
	}
	if overflow || totalFee != block.TotalFee {
		errs = append(errs, "Invalid total fee")
	}
	return errs
}

func (v *Verifier) verifyForkOne(ctx context.Context, block, last *types.Block) []string {
	if last == nil || block.PreviousBlock == "" || block.PreviousBlock == last.ID {
		return nil
	}
	v.fork.Fork(ctx, block, interfaces.ForkType1)
	return []string{fmt.Sprintf("Invalid previous block: %s expected %s", block.PreviousBlock, last.ID)}
}

// LoadLastBlockIDs fills the recent id window from storage.
func (v *Verifier) LoadLastBlockIDs(store LastIDs) error {
	latest, err := store.LastIDs(v.cfg.SlotWindow)
	if err != nil {
		return err
	}
	window := make([]string, len(latest))
	for i, id := range latest {
		window[len(latest)-1-i] = id
	}
	v.mu.Lock()
	v.lastIDs = window
	v.mu.Unlock()
	return nil
}

// OnNewBlock records an applied block id, dropping the oldest past the window size.
func (v *Verifier) OnNewBlock(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastIDs = append(v.lastIDs, id)
	if over := len(v.lastIDs) - v.cfg.SlotWindow; over > 0 {
		v.lastIDs = append([]string(nil), v.lastIDs[over:]...)
	}
}

// OnDeletedBlock forgets id after the block was rolled back.
func (v *Verifier) OnDeletedBlock(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, known := range v.lastIDs {
		if known == id {
			v.lastIDs = append(v.lastIDs[:i:i], v.lastIDs[i+1:]...)
			return
		}
	}
}

// LastBlockIDs returns the window, oldest first.
func (v *Verifier) LastBlockIDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.lastIDs...)
}

// CheckBlockTransactions prepares the transactions of block for application and verifies
// each of them against the confirmed state in accounts. Senders are loaded into accounts.
func (v *Verifier) CheckBlockTransactions(ctx context.Context, block *types.Block, accounts *ledger.AccountCache) error {
	all := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		id, err := v.registry.ID(tx)
		if err != nil {
			return err
		}
		tx.ID = id
		if _, err := v.engine.ObjectNormalize(tx); err != nil {
			return fmt.Errorf("transaction %s: %w", id, err)
		}
		tx.BlockID = block.ID
		tx.Height = block.Height
		all = append(all, id)
	}

	sorted := append([]string(nil), all...)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return fmt.Errorf("%w with id %s", ErrDuplicateTransaction, sorted[i])
		}
	}

	confirmed, err := v.txs.ConfirmedIDs(all)
	if err != nil {
		return err
	}
	if len(confirmed) > 0 {
		v.fork.Fork(ctx, block, interfaces.ForkTxAlreadyConfirmed)
		for _, id := range confirmed {
			if _, err := v.pool.Evict(ctx, id); err != nil {
				logx.Error("VERIFY", "could not evict confirmed transaction ", id, ": ", err)
			}
		}
		return fmt.Errorf("%w: %s", ErrAlreadyConfirmed, strings.Join(confirmed, ", "))
	}

	conflicts, err := v.engine.FindConflicts(ctx, block.Transactions)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return ErrConflictingTransactions
	}

	senders := make([]*types.Account, len(block.Transactions))
	for i, tx := range block.Transactions {
		if senders[i], err = accounts.Get(ids.AddressFromPubData(tx.SenderPubData)); err != nil {
			return err
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, tx := range block.Transactions {
		tx := tx
		sender := senders[i]
		g.Go(func() error {
			if err := v.engine.Verify(gctx, tx, sender, block.Height); err != nil {
				return fmt.Errorf("transaction %s: %w", tx.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
