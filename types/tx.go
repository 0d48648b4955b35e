package types

import "fmt"

type TxType uint8

const (
	TxTypeSend            TxType = 0
	TxTypeSecondSignature TxType = 1
	TxTypeDelegate        TxType = 2
	TxTypeVote            TxType = 3
)

func (t TxType) String() string {
	switch t {
	case TxTypeSend:
		return "send"
	case TxTypeSecondSignature:
		return "secondsignature"
	case TxTypeDelegate:
		return "delegate"
	case TxTypeVote:
		return "vote"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

type DelegateAsset struct {
	Username  string `json:"username"`
	ForgingPK []byte `json:"forgingPK"`
}

type VotesAsset struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

type SignatureAsset struct {
	PublicKey []byte `json:"publicKey"`
}

// TxAsset carries the variant payload; at most one member is set and it must match the tx type.
type TxAsset struct {
	Delegate  *DelegateAsset  `json:"delegate,omitempty"`
	Votes     *VotesAsset     `json:"votes,omitempty"`
	Signature *SignatureAsset `json:"signature,omitempty"`
}

type Transaction struct {
	ID            string   `json:"id"`
	Type          TxType   `json:"type"`
	Version       int32    `json:"version"`
	BlockID       string   `json:"blockId,omitempty"`
	Height        int64    `json:"height,omitempty"`
	SenderPubData []byte   `json:"senderPubData"`
	SenderID      string   `json:"senderId"`
	RecipientID   string   `json:"recipientId,omitempty"`
	Amount        int64    `json:"amount"`
	Fee           int64    `json:"fee"`
	Timestamp     int32    `json:"timestamp"`
	Signatures    [][]byte `json:"signatures"`
	Asset         TxAsset  `json:"asset"`
}

func (tx *Transaction) Clone() *Transaction {
	if tx == nil {
		return nil
	}
	c := *tx
	c.SenderPubData = cloneBytes(tx.SenderPubData)
	c.Signatures = make([][]byte, len(tx.Signatures))
	for i, s := range tx.Signatures {
		c.Signatures[i] = cloneBytes(s)
	}
	if tx.Asset.Delegate != nil {
		d := *tx.Asset.Delegate
		d.ForgingPK = cloneBytes(d.ForgingPK)
		c.Asset.Delegate = &d
	}
	if tx.Asset.Votes != nil {
		c.Asset.Votes = &VotesAsset{
			Added:   cloneStrings(tx.Asset.Votes.Added),
			Removed: cloneStrings(tx.Asset.Votes.Removed),
		}
	}
	if tx.Asset.Signature != nil {
		c.Asset.Signature = &SignatureAsset{PublicKey: cloneBytes(tx.Asset.Signature.PublicKey)}
	}
	return &c
}
