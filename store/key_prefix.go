package store

import "encoding/binary"

// Declare database key prefix for objects
const (
	PrefixAccount           = "account:"
	PrefixAccountForgingKey = "account_fpk:"
	PrefixAccountUsername   = "account_name:"

	PrefixBlock        = "blk:"
	PrefixBlockID      = "blk_id:"
	PrefixBlockMeta    = "blk_meta:"
	BlockMetaKeyLatest = "latest"

	PrefixTx      = "tx:"
	PrefixBlockTx = "blk_tx:"

	PrefixDelegateAsset  = "asset_delegate:"
	PrefixVoteAsset      = "asset_vote:"
	PrefixSignatureAsset = "asset_signature:"

	PrefixVotesSnapshot  = "round_votes:"
	PrefixRoundDelegates = "round_delegates:"
)

func accountKey(addr string) []byte {
	return []byte(PrefixAccount + addr)
}

func heightKey(prefix string, height int64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(height))
	return key
}

func blockTxKey(blockID string, index int) []byte {
	prefix := PrefixBlockTx + blockID + ":"
	key := make([]byte, len(prefix)+4)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], uint32(index))
	return key
}

func encodeHeight(h int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(h))
	return b
}

func decodeHeight(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
