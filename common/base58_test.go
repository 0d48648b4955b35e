package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePublicKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}

	fromHex, err := DecodePublicKey(hex.EncodeToString(raw), 32)
	require.NoError(t, err)
	assert.Equal(t, raw, fromHex)

	fromB58, err := DecodePublicKey(EncodeBytesToBase58(raw), 32)
	require.NoError(t, err)
	assert.Equal(t, raw, fromB58)

	_, err = DecodePublicKey(EncodeBytesToBase58(raw[:10]), 32)
	assert.Error(t, err)
	_, err = DecodeBase58ToBytes("0OIl")
	assert.Error(t, err)
}
