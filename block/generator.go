package block

import (
	"context"
	"fmt"

	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/ledger"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/monitoring"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
)

// Generator assembles blocks from the unconfirmed pool and hands them to the chain.
type Generator struct {
	chain   *Chain
	ledger  *ledger.Ledger
	pool    Pool
	engine  *transaction.Engine
	rewards Rewards
	maxTxs  int
	version int32
}

func NewGenerator(chain *Chain, l *ledger.Ledger, pool Pool, engine *transaction.Engine, rewards Rewards, maxTxs int, version int32) *Generator {
	return &Generator{
		chain:   chain,
		ledger:  l,
		pool:    pool,
		engine:  engine,
		rewards: rewards,
		maxTxs:  maxTxs,
		version: version,
	}
}

// GenerateBlock forges a block for keypair at timestamp on top of the current tip.
func (g *Generator) GenerateBlock(ctx context.Context, keypair crypto.Keypair, timestamp int64) error {
	return g.ledger.Sequence().Run(ctx, func(ctx context.Context) error {
		last := g.ledger.LastBlock()
		if last == nil {
			return ErrNoGenesis
		}
		height := last.Height + 1

		txs, err := g.selectTransactions(ctx, height)
		if err != nil {
			return err
		}
		payload, err := ComputePayload(g.engine.Registry(), txs)
		if err != nil {
			return err
		}
		b := &types.Block{
			Height:               height,
			PreviousBlock:        last.ID,
			Timestamp:            int32(timestamp),
			Version:              g.version,
			Reward:               g.rewards.RewardAt(height),
			NumberOfTransactions: int32(len(txs)),
			TotalAmount:          payload.TotalAmount,
			TotalFee:             payload.TotalFee,
			PayloadLength:        payload.Length,
			PayloadHash:          payload.Hash,
			Transactions:         txs,
		}
		if err := Sign(b, keypair); err != nil {
			return err
		}
		if err := g.chain.ProcessBlock(ctx, b); err != nil {
			monitoring.IncreaseForgeFailureCount()
			return fmt.Errorf("could not process generated block %s: %w", b.ID, err)
		}
		monitoring.IncreaseForgedBlockCount()
		logx.Info("FORGE", fmt.Sprintf("Forged block %s at height %d slot time %d with %d transactions", b.ID, height, timestamp, len(txs)))
		return nil
	})
}

// selectTransactions takes pooled transactions in pool order and keeps the ones that still
// verify against confirmed state, charging each sender as it goes. Conflicting ones are dropped.
func (g *Generator) selectTransactions(ctx context.Context, height int64) ([]*types.Transaction, error) {
	cache := ledger.NewAccountCache(g.ledger)
	spent := make(map[string]int64)
	var out []*types.Transaction
	for _, pooled := range g.pool.List(g.maxTxs) {
		tx := pooled.Clone()
		tx.BlockID, tx.Height = "", 0
		sender, err := cache.Get(ids.AddressFromPubData(tx.SenderPubData))
		if err != nil {
			return nil, err
		}
		if sender == nil {
			continue
		}
		if ready, err := g.engine.Ready(tx, sender); err != nil || !ready {
			continue
		}
		if err := g.engine.Verify(ctx, tx, sender, height); err != nil {
			logx.Debug("FORGE", "skipping transaction ", tx.ID, ": ", err)
			continue
		}
		total, err := utils.SumAmounts(spent[sender.Address], tx.Amount, tx.Fee)
		if err != nil || total > sender.Balance {
			continue
		}
		spent[sender.Address] = total
		out = append(out, tx)
	}

	conflicts, err := g.engine.FindConflicts(ctx, out)
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return out, nil
	}
	drop := make(map[string]struct{}, len(conflicts))
	for _, tx := range conflicts {
		drop[tx.ID] = struct{}{}
	}
	kept := out[:0]
	for _, tx := range out {
		if _, ok := drop[tx.ID]; !ok {
			kept = append(kept, tx)
		}
	}
	return kept, nil
}
