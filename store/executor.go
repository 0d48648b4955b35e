package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/mezonai/dpos/db"
	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/jsonx"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
	"github.com/pkg/errors"
)

// OpExecutor runs declarative ops against an overlay of the committed state and writes the
// result in a single batch. If any op fails nothing is written.
type OpExecutor struct {
	mu       sync.Mutex
	provider db.IterableProvider
	tm       *db.DBTxManager
}

func NewOpExecutor(provider db.IterableProvider) *OpExecutor {
	return &OpExecutor{
		provider: provider,
		tm:       db.NewDBTxManager(provider),
	}
}

func (e *OpExecutor) Execute(ctx context.Context, ops []dbop.Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := &execState{
		provider: e.provider,
		accounts: make(map[string]*accountEntry),
		kv:       make(map[string][]byte),
	}
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.apply(op); err != nil {
			return errors.Wrapf(err, "op %d (%s)", i, op)
		}
	}
	if err := e.tm.WithBatch(st.flush); err != nil {
		return errors.Wrap(err, "could not commit ops")
	}
	logx.Debug("STORE", "committed ", len(ops), " ops, ", len(st.accounts), " accounts touched")
	return nil
}

type accountEntry struct {
	orig *types.Account
	cur  *types.Account
}

type execState struct {
	provider  db.IterableProvider
	accounts  map[string]*accountEntry
	allLoaded bool

	kv      map[string][]byte
	kvOrder []string

	lastHeight *int64
}

func (st *execState) get(key []byte) ([]byte, error) {
	if v, ok := st.kv[string(key)]; ok {
		return v, nil
	}
	return st.provider.Get(key)
}

func (st *execState) put(key, value []byte) {
	k := string(key)
	if _, ok := st.kv[k]; !ok {
		st.kvOrder = append(st.kvOrder, k)
	}
	st.kv[k] = value
}

func (st *execState) del(key []byte) {
	st.put(key, nil)
}

func (st *execState) putJSON(key []byte, v interface{}) error {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", key)
	}
	st.put(key, data)
	return nil
}

func (st *execState) account(addr string) (*types.Account, error) {
	if e, ok := st.accounts[addr]; ok {
		return e.cur, nil
	}
	if st.allLoaded {
		return nil, nil
	}
	data, err := st.provider.Get(accountKey(addr))
	if err != nil {
		return nil, errors.Wrapf(err, "could not get account %s", addr)
	}
	if data == nil {
		return nil, nil
	}
	acc, err := decodeAccount(data)
	if err != nil {
		return nil, err
	}
	st.accounts[addr] = &accountEntry{orig: acc, cur: acc.Clone()}
	return st.accounts[addr].cur, nil
}

func (st *execState) loadAllAccounts() error {
	if st.allLoaded {
		return nil
	}
	var decodeErr error
	err := st.provider.IteratePrefix([]byte(PrefixAccount), func(_, value []byte) bool {
		acc, err := decodeAccount(value)
		if err != nil {
			decodeErr = err
			return false
		}
		if _, ok := st.accounts[acc.Address]; !ok {
			st.accounts[acc.Address] = &accountEntry{orig: acc, cur: acc.Clone()}
		}
		return true
	})
	if decodeErr != nil {
		return decodeErr
	}
	if err != nil {
		return errors.Wrap(err, "could not iterate accounts")
	}
	st.allLoaded = true
	return nil
}

func (st *execState) sortedAddresses() []string {
	addrs := make([]string, 0, len(st.accounts))
	for addr := range st.accounts {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

func (st *execState) apply(op dbop.Op) error {
	if op.Kind == dbop.KindCustom {
		return st.custom(op.Query)
	}
	switch op.Target {
	case dbop.TargetAccounts:
		return st.applyAccounts(op)
	case dbop.TargetBlocks:
		if op.Kind != dbop.KindCreate {
			return fmt.Errorf("unsupported %s on blocks", op.Kind)
		}
		return st.createBlock(op.Values)
	case dbop.TargetTransactions:
		if op.Kind != dbop.KindBulkCreate {
			return fmt.Errorf("unsupported %s on transactions", op.Kind)
		}
		return st.createTransactions(op.Rows)
	case dbop.TargetDelegates, dbop.TargetVotes, dbop.TargetSignatures:
		if op.Kind != dbop.KindCreate {
			return fmt.Errorf("unsupported %s on %s", op.Kind, op.Target)
		}
		return st.createAsset(op.Target, op.Values)
	}
	return fmt.Errorf("unknown target %q", op.Target)
}

func (st *execState) applyAccounts(op dbop.Op) error {
	switch op.Kind {
	case dbop.KindCreate:
		addr, err := stringValue(op.Values["address"])
		if err != nil || addr == "" {
			return fmt.Errorf("account create needs an address")
		}
		acc, err := st.account(addr)
		if err != nil {
			return err
		}
		if acc != nil {
			return nil
		}
		acc = &types.Account{Address: addr}
		rest := make(dbop.Values, len(op.Values))
		for k, v := range op.Values {
			if k != "address" {
				rest[k] = v
			}
		}
		if err := applyAccountValues(acc, rest); err != nil {
			return err
		}
		st.accounts[addr] = &accountEntry{cur: acc}
		return nil
	case dbop.KindUpdate:
		if op.Filter.Field != "address" {
			return fmt.Errorf("accounts can only be filtered by address, got %q", op.Filter.Field)
		}
		for _, addr := range op.Filter.In {
			acc, err := st.account(addr)
			if err != nil {
				return err
			}
			if acc == nil {
				return fmt.Errorf("account %s not found", addr)
			}
			if err := applyAccountValues(acc, op.Values); err != nil {
				return errors.Wrapf(err, "account %s", addr)
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported %s on accounts", op.Kind)
}

func (st *execState) createBlock(values dbop.Values) error {
	blk, ok := values["block"].Set.(*types.Block)
	if !ok || blk == nil {
		return fmt.Errorf("block create needs a block value")
	}
	if exists, err := st.get([]byte(PrefixBlockID + blk.ID)); err != nil {
		return err
	} else if exists != nil {
		return fmt.Errorf("block %s already stored", blk.ID)
	}
	if err := st.putJSON(heightKey(PrefixBlock, blk.Height), blk.Header()); err != nil {
		return err
	}
	st.put([]byte(PrefixBlockID+blk.ID), encodeHeight(blk.Height))
	h := blk.Height
	st.lastHeight = &h
	return nil
}

func (st *execState) createTransactions(rows []dbop.Values) error {
	for _, row := range rows {
		tx, ok := row["tx"].Set.(*types.Transaction)
		if !ok || tx == nil {
			return fmt.Errorf("transaction row needs a tx value")
		}
		index, ok := row["index"].Set.(int)
		if !ok {
			return fmt.Errorf("transaction row %s needs an index", tx.ID)
		}
		if err := st.putJSON([]byte(PrefixTx+tx.ID), tx); err != nil {
			return err
		}
		st.put(blockTxKey(tx.BlockID, index), []byte(tx.ID))
	}
	return nil
}

func (st *execState) createAsset(target dbop.Target, values dbop.Values) error {
	txID, err := stringValue(values["transactionId"])
	if err != nil || txID == "" {
		return fmt.Errorf("%s row needs a transactionId", target)
	}
	switch target {
	case dbop.TargetDelegates:
		username, err := stringValue(values["username"])
		if err != nil {
			return err
		}
		pk, err := bytesValue(values["forgingPK"])
		if err != nil {
			return err
		}
		return st.putJSON([]byte(PrefixDelegateAsset+txID), &types.DelegateAsset{Username: username, ForgingPK: pk})
	case dbop.TargetVotes:
		added, err := stringsValue(values["added"])
		if err != nil {
			return err
		}
		removed, err := stringsValue(values["removed"])
		if err != nil {
			return err
		}
		return st.putJSON([]byte(PrefixVoteAsset+txID), &types.VotesAsset{Added: added, Removed: removed})
	default:
		pk, err := bytesValue(values["publicKey"])
		if err != nil {
			return err
		}
		return st.putJSON([]byte(PrefixSignatureAsset+txID), &types.SignatureAsset{PublicKey: pk})
	}
}

func (st *execState) custom(q dbop.Query) error {
	switch q.Name {
	case dbop.QueryPerformVotesSnapshot:
		return st.performVotesSnapshot(q)
	case dbop.QueryRestoreVotesSnapshot:
		return st.restoreVotesSnapshot(q)
	case dbop.QueryRecalcVotes:
		return st.recalcVotes()
	case dbop.QueryDeleteBlock:
		return st.deleteBlock(q.Key)
	case dbop.QueryDeleteDelegateLists:
		return st.deleteDelegateLists(q.Round)
	}
	return fmt.Errorf("unknown custom query %q", q.Name)
}

func (st *execState) performVotesSnapshot(q dbop.Query) error {
	if err := st.loadAllAccounts(); err != nil {
		return err
	}
	snap := make(map[string]VoteSnapshotEntry)
	for addr, e := range st.accounts {
		if e.cur.Vote != 0 {
			snap[addr] = VoteSnapshotEntry{Vote: e.cur.Vote}
		}
	}
	for addr, cmb := range q.Values {
		entry := snap[addr]
		v := cmb
		entry.CMB = &v
		snap[addr] = entry
	}
	return st.putJSON(heightKey(PrefixVotesSnapshot, q.Round), snap)
}

func (st *execState) restoreVotesSnapshot(q dbop.Query) error {
	key := heightKey(PrefixVotesSnapshot, q.Round)
	data, err := st.get(key)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("votes snapshot for round %d not found", q.Round)
	}
	var snap map[string]VoteSnapshotEntry
	if err := jsonx.Unmarshal(data, &snap); err != nil {
		return errors.Wrap(err, "failed to unmarshal votes snapshot")
	}
	if err := st.loadAllAccounts(); err != nil {
		return err
	}
	for addr, e := range st.accounts {
		entry := snap[addr]
		e.cur.Vote = entry.Vote
		if entry.CMB != nil {
			e.cur.ConsecutiveMissedBlocks = *entry.CMB
		}
	}
	st.del(key)
	return nil
}

// recalcVotes sets each delegate's vote to the summed confirmed balance of its voters.
func (st *execState) recalcVotes() error {
	if err := st.loadAllAccounts(); err != nil {
		return err
	}
	tallies := make(map[string]int64)
	for _, addr := range st.sortedAddresses() {
		acc := st.accounts[addr].cur
		for _, username := range acc.Delegates {
			sum, err := utils.AddInt64(tallies[username], acc.Balance)
			if err != nil {
				return errors.Wrapf(err, "vote tally of %s", username)
			}
			tallies[username] = sum
		}
	}
	for _, e := range st.accounts {
		var vote int64
		if e.cur.IsDelegate {
			vote = tallies[e.cur.Username]
		}
		e.cur.Vote = vote
	}
	return nil
}

func (st *execState) deleteBlock(id string) error {
	raw, err := st.get([]byte(PrefixBlockID + id))
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("block %s not found", id)
	}
	height := decodeHeight(raw)

	var txKeys, txIDs []string
	err = st.provider.IteratePrefix([]byte(PrefixBlockTx+id+":"), func(key, value []byte) bool {
		txKeys = append(txKeys, string(key))
		txIDs = append(txIDs, string(value))
		return true
	})
	if err != nil {
		return errors.Wrapf(err, "could not list transactions of block %s", id)
	}
	for i, txID := range txIDs {
		st.del([]byte(txKeys[i]))
		st.del([]byte(PrefixTx + txID))
		st.del([]byte(PrefixDelegateAsset + txID))
		st.del([]byte(PrefixVoteAsset + txID))
		st.del([]byte(PrefixSignatureAsset + txID))
	}
	st.del(heightKey(PrefixBlock, height))
	st.del([]byte(PrefixBlockID + id))
	prev := height - 1
	st.lastHeight = &prev
	return nil
}

// deleteDelegateLists drops the cached forging order of round and every later one.
func (st *execState) deleteDelegateLists(round int64) error {
	var keys [][]byte
	err := st.provider.IteratePrefix([]byte(PrefixRoundDelegates), func(key, _ []byte) bool {
		if decodeHeight(key[len(PrefixRoundDelegates):]) >= round {
			keys = append(keys, append([]byte(nil), key...))
		}
		return true
	})
	if err != nil {
		return errors.Wrap(err, "could not list delegate lists")
	}
	for _, key := range keys {
		st.del(key)
	}
	return nil
}

func (st *execState) flush(batch db.DatabaseBatch) error {
	for _, k := range st.kvOrder {
		if v := st.kv[k]; v == nil {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), v)
		}
	}

	addrs := st.sortedAddresses()
	// index removals first so two accounts swapping a name in one batch end up consistent
	for _, addr := range addrs {
		e := st.accounts[addr]
		if e.orig == nil {
			continue
		}
		if len(e.orig.ForgingPK) > 0 && !bytes.Equal(e.orig.ForgingPK, e.cur.ForgingPK) {
			batch.Delete([]byte(PrefixAccountForgingKey + hex.EncodeToString(e.orig.ForgingPK)))
		}
		if e.orig.Username != "" && e.orig.Username != e.cur.Username {
			batch.Delete([]byte(PrefixAccountUsername + e.orig.Username))
		}
	}
	for _, addr := range addrs {
		e := st.accounts[addr]
		if e.orig != nil && e.orig.Equal(e.cur) {
			continue
		}
		data, err := jsonx.Marshal(e.cur)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal account %s", addr)
		}
		batch.Put(accountKey(addr), data)
		if len(e.cur.ForgingPK) > 0 && (e.orig == nil || !bytes.Equal(e.orig.ForgingPK, e.cur.ForgingPK)) {
			batch.Put([]byte(PrefixAccountForgingKey+hex.EncodeToString(e.cur.ForgingPK)), []byte(addr))
		}
		if e.cur.Username != "" && (e.orig == nil || e.orig.Username != e.cur.Username) {
			batch.Put([]byte(PrefixAccountUsername+e.cur.Username), []byte(addr))
		}
	}

	if st.lastHeight != nil {
		batch.Put([]byte(PrefixBlockMeta+BlockMetaKeyLatest), encodeHeight(*st.lastHeight))
	}
	return nil
}
