// Package ids derives addresses, transaction ids and block ids. All derivations are pure:
// the same input bytes give the same id on every node.
package ids

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const AddressSuffix = "R"

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidID      = errors.New("invalid id")
)

// digest takes the first 8 bytes of sha256(b) in reversed order as a uint64.
func digest(b []byte) uint64 {
	sum := sha256.Sum256(b)
	return binary.LittleEndian.Uint64(sum[:8])
}

// AddressFromPubData maps a public key to its account address.
func AddressFromPubData(pub []byte) string {
	return strconv.FormatUint(digest(pub), 10) + AddressSuffix
}

func CalcTxIDFromBytes(b []byte) string {
	return strconv.FormatUint(digest(b), 10)
}

func CalcBlockIDFromBytes(b []byte) string {
	return strconv.FormatUint(digest(b), 10)
}

// IsAddress reports whether s has the shape of an address (decimal digits followed by the suffix).
func IsAddress(s string) bool {
	_, err := parseAddress(s)
	return err == nil
}

func parseAddress(addr string) (uint64, error) {
	num, ok := strings.CutSuffix(addr, AddressSuffix)
	if !ok || num == "" || len(num) > 20 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	v, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return v, nil
}

// AddressToBytes returns the 8 byte big-endian form of addr. An empty address encodes as zeros.
func AddressToBytes(addr string) ([]byte, error) {
	out := make([]byte, 8)
	if addr == "" {
		return out, nil
	}
	v, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint64(out, v)
	return out, nil
}

// IDToBytes is AddressToBytes for block and transaction ids.
func IDToBytes(id string) ([]byte, error) {
	out := make([]byte, 8)
	if id == "" {
		return out, nil
	}
	v, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	binary.BigEndian.PutUint64(out, v)
	return out, nil
}
