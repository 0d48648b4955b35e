package txtypes

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"regexp"
	"strings"

	"github.com/mezonai/dpos/codec"
	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/types"
)

const maxUsernameLength = 20

var (
	usernameChars    = regexp.MustCompile(`^[a-z0-9!@$&_.]+$`)
	potentialAddress = regexp.MustCompile(`^[0-9]{1,21}[Rr]$`)
)

// Delegate registers the sender as a forging delegate under a unique username.
type Delegate struct {
	transaction.BaseVariant
	fees     FeeSource
	accounts AccountLookup
	assets   AssetReader
}

func NewDelegate(fees FeeSource, accounts AccountLookup, assets AssetReader) *Delegate {
	return &Delegate{fees: fees, accounts: accounts, assets: assets}
}

func (d *Delegate) Type() types.TxType { return types.TxTypeDelegate }

func (d *Delegate) CalculateMinFee(_ *types.Transaction, _ *types.Account, height int64) int64 {
	return d.fees.FeesAt(height).Delegate
}

func (d *Delegate) Verify(_ context.Context, tx *types.Transaction, sender *types.Account) error {
	if tx.RecipientID != "" {
		return ErrInvalidRecipient
	}
	if tx.Amount != 0 {
		return ErrInvalidAmount
	}
	if sender.IsDelegate {
		return ErrAlreadyDelegate
	}
	asset := tx.Asset.Delegate
	if asset == nil {
		return ErrInvalidAsset
	}
	if len(asset.ForgingPK) == 0 {
		return ErrForgingPKUndefined
	}
	if len(asset.ForgingPK) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	if err := validateUsername(asset.Username); err != nil {
		return err
	}

	existing, err := d.accounts.GetByUsername(asset.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrUsernameExists, asset.Username)
	}
	holder, err := d.accounts.GetByForgingPK(asset.ForgingPK)
	if err != nil {
		return err
	}
	if holder != nil {
		return ErrForgingPKInUse
	}
	return nil
}

func validateUsername(username string) error {
	if strings.ToLower(username) != username {
		return ErrUsernameLowercase
	}
	if strings.TrimSpace(username) == "" {
		return ErrUsernameEmpty
	}
	if len(username) > maxUsernameLength {
		return ErrUsernameTooLong
	}
	if potentialAddress.MatchString(username) {
		return ErrUsernameAddress
	}
	if !usernameChars.MatchString(username) {
		return ErrUsernameCharacters
	}
	return nil
}

func (d *Delegate) Apply(_ context.Context, tx *types.Transaction, _ *types.Block, sender *types.Account) ([]dbop.Op, error) {
	if sender.IsDelegate {
		return nil, ErrAlreadyDelegate
	}
	asset := tx.Asset.Delegate
	sender.IsDelegate = true
	sender.Username = asset.Username
	sender.ForgingPK = asset.ForgingPK
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{
			"isDelegate": dbop.Set(true),
			"username":   dbop.Set(asset.Username),
			"forgingPK":  dbop.Set(asset.ForgingPK),
		}),
	}, nil
}

func (d *Delegate) Undo(_ context.Context, _ *types.Transaction, _ *types.Block, sender *types.Account) ([]dbop.Op, error) {
	sender.IsDelegate = false
	sender.Username = ""
	sender.ForgingPK = nil
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{
			"isDelegate": dbop.Set(false),
			"username":   dbop.Set(nil),
			"forgingPK":  dbop.Set(nil),
		}),
	}, nil
}

func (d *Delegate) ApplyUnconfirmed(_ context.Context, tx *types.Transaction, sender *types.Account) ([]dbop.Op, error) {
	if sender.UIsDelegate {
		return nil, ErrAlreadyTryingDelegate
	}
	username := tx.Asset.Delegate.Username
	sender.UIsDelegate = true
	sender.UUsername = username
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{
			"u_isDelegate": dbop.Set(true),
			"u_username":   dbop.Set(username),
		}),
	}, nil
}

func (d *Delegate) UndoUnconfirmed(_ context.Context, _ *types.Transaction, sender *types.Account) ([]dbop.Op, error) {
	sender.UIsDelegate = false
	sender.UUsername = ""
	return []dbop.Op{
		dbop.Update(dbop.TargetAccounts, dbop.ByAddress(sender.Address), dbop.Values{
			"u_isDelegate": dbop.Set(false),
			"u_username":   dbop.Set(nil),
		}),
	}, nil
}

func (d *Delegate) ObjectNormalize(tx *types.Transaction) error {
	if !onlyAsset(tx, types.TxTypeDelegate) {
		return ErrInvalidAsset
	}
	return nil
}

func (d *Delegate) DBSave(tx *types.Transaction) *dbop.Op {
	op := dbop.Create(dbop.TargetDelegates, dbop.Values{
		"transactionId": dbop.Set(tx.ID),
		"username":      dbop.Set(tx.Asset.Delegate.Username),
		"forgingPK":     dbop.Set(tx.Asset.Delegate.ForgingPK),
	})
	return &op
}

func (d *Delegate) AttachAssets(_ context.Context, txs []*types.Transaction) error {
	for _, tx := range txs {
		asset, err := d.assets.DelegateAsset(tx.ID)
		if err != nil {
			return err
		}
		if asset == nil {
			return fmt.Errorf("%w for Delegate tx: %s", ErrAssetNotRestored, tx.ID)
		}
		tx.Asset.Delegate = asset
	}
	return nil
}

// FindConflicts flags any registration reusing a username, forging key or sender seen earlier in txs.
func (d *Delegate) FindConflicts(_ context.Context, txs []*types.Transaction) ([]*types.Transaction, error) {
	seen := make(map[string]struct{})
	var out []*types.Transaction
	for _, tx := range txs {
		if tx.Asset.Delegate == nil {
			continue
		}
		keys := []string{
			"name:" + tx.Asset.Delegate.Username,
			"pk:" + string(tx.Asset.Delegate.ForgingPK),
			"sender:" + tx.SenderID,
		}
		conflict := false
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				conflict = true
			}
		}
		if conflict {
			out = append(out, tx)
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	return out, nil
}

func (d *Delegate) AssetBytes(tx *types.Transaction) ([]byte, error) {
	asset := tx.Asset.Delegate
	if asset == nil {
		return nil, ErrInvalidAsset
	}
	w := codec.NewWriter(64)
	w.Var(asset.ForgingPK)
	w.String(asset.Username)
	return w.Bytes()
}
