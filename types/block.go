package types

type Block struct {
	ID                   string         `json:"id"`
	Height               int64          `json:"height"`
	PreviousBlock        string         `json:"previousBlock,omitempty"`
	Timestamp            int32          `json:"timestamp"`
	Version              int32          `json:"version"`
	Reward               int64          `json:"reward"`
	PayloadLength        int32          `json:"payloadLength"`
	PayloadHash          []byte         `json:"payloadHash"`
	NumberOfTransactions int32          `json:"numberOfTransactions"`
	TotalAmount          int64          `json:"totalAmount"`
	TotalFee             int64          `json:"totalFee"`
	GeneratorPublicKey   []byte         `json:"generatorPublicKey"`
	BlockSignature       []byte         `json:"blockSignature"`
	Transactions         []*Transaction `json:"transactions,omitempty"`
}

// Header returns a shallow copy without the transaction list, the form blocks are stored in.
func (b *Block) Header() *Block {
	h := *b
	h.Transactions = nil
	return &h
}

func (b *Block) IsGenesis() bool {
	return b.Height == 1
}
