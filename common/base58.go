package common

import (
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// EncodeBytesToBase58 encodes bytes directly to base58
func EncodeBytesToBase58(bytes []byte) string {
	return base58.Encode(bytes)
}

// DecodeBase58ToBytes decodes base58 string to bytes
func DecodeBase58ToBytes(base58Str string) ([]byte, error) {
	bytes, err := base58.Decode(base58Str)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 string: %w", err)
	}
	if len(bytes) == 0 {
		return nil, fmt.Errorf("failed to decode base58 string: empty")
	}
	return bytes, nil
}

// DecodePublicKey accepts a forging key either as base58 or as hex and returns its raw bytes.
func DecodePublicKey(s string, size int) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == size {
		return b, nil
	}
	b, err := DecodeBase58ToBytes(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("invalid public key length %d, expected %d", len(b), size)
	}
	return b, nil
}
