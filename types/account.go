package types

import "bytes"

// Account holds both the confirmed ledger state and its unconfirmed shadow (the u-prefixed fields).
// The shadow additionally reflects transactions admitted to the pool but not yet in a block.
type Account struct {
	Address   string `json:"address"`
	PublicKey []byte `json:"publicKey,omitempty"`

	Balance  int64 `json:"balance"`
	UBalance int64 `json:"u_balance"`
	Vote     int64 `json:"vote"`

	IsDelegate  bool   `json:"isDelegate"`
	UIsDelegate bool   `json:"u_isDelegate"`
	Username    string `json:"username,omitempty"`
	UUsername   string `json:"u_username,omitempty"`
	ForgingPK   []byte `json:"forgingPK,omitempty"`

	Delegates  []string `json:"delegates,omitempty"`
	UDelegates []string `json:"u_delegates,omitempty"`

	SecondSignature  bool   `json:"secondSignature"`
	USecondSignature bool   `json:"u_secondSignature"`
	SecondPublicKey  []byte `json:"secondPublicKey,omitempty"`

	ProducedBlocks          int64 `json:"producedblocks"`
	MissedBlocks            int64 `json:"missedblocks"`
	ConsecutiveMissedBlocks int64 `json:"cmb"`
	Fees                    int64 `json:"fees"`
	Rewards                 int64 `json:"rewards"`

	BlockID string `json:"blockId,omitempty"`
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.PublicKey = cloneBytes(a.PublicKey)
	c.ForgingPK = cloneBytes(a.ForgingPK)
	c.SecondPublicKey = cloneBytes(a.SecondPublicKey)
	c.Delegates = cloneStrings(a.Delegates)
	c.UDelegates = cloneStrings(a.UDelegates)
	return &c
}

// HasVoted reports whether the confirmed vote set contains username.
func (a *Account) HasVoted(username string) bool {
	return containsString(a.Delegates, username)
}

// HasUVoted is HasVoted over the unconfirmed vote set.
func (a *Account) HasUVoted(username string) bool {
	return containsString(a.UDelegates, username)
}

// Equal compares two accounts field by field, treating nil and empty slices alike.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !bytes.Equal(a.PublicKey, b.PublicKey) || !bytes.Equal(a.ForgingPK, b.ForgingPK) ||
		!bytes.Equal(a.SecondPublicKey, b.SecondPublicKey) {
		return false
	}
	if !equalStrings(a.Delegates, b.Delegates) || !equalStrings(a.UDelegates, b.UDelegates) {
		return false
	}
	return a.Address == b.Address &&
		a.Balance == b.Balance && a.UBalance == b.UBalance && a.Vote == b.Vote &&
		a.IsDelegate == b.IsDelegate && a.UIsDelegate == b.UIsDelegate &&
		a.Username == b.Username && a.UUsername == b.UUsername &&
		a.SecondSignature == b.SecondSignature && a.USecondSignature == b.USecondSignature &&
		a.ProducedBlocks == b.ProducedBlocks && a.MissedBlocks == b.MissedBlocks &&
		a.ConsecutiveMissedBlocks == b.ConsecutiveMissedBlocks &&
		a.Fees == b.Fees && a.Rewards == b.Rewards &&
		a.BlockID == b.BlockID
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
