package store

import (
	"crypto/ed25519"
	"fmt"
	"sort"

	"github.com/mezonai/dpos/dbop"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
)

func applyAccountValues(acc *types.Account, values dbop.Values) error {
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		v := values[field]
		var err error
		switch field {
		case "balance":
			err = applyInt(&acc.Balance, v)
		case "u_balance":
			err = applyInt(&acc.UBalance, v)
		case "vote":
			err = applyInt(&acc.Vote, v)
		case "producedblocks":
			err = applyInt(&acc.ProducedBlocks, v)
		case "missedblocks":
			err = applyInt(&acc.MissedBlocks, v)
		case "cmb":
			err = applyInt(&acc.ConsecutiveMissedBlocks, v)
		case "fees":
			err = applyInt(&acc.Fees, v)
		case "rewards":
			err = applyInt(&acc.Rewards, v)
		case "isDelegate":
			acc.IsDelegate, err = boolValue(v)
		case "u_isDelegate":
			acc.UIsDelegate, err = boolValue(v)
		case "secondSignature":
			acc.SecondSignature, err = boolValue(v)
		case "u_secondSignature":
			acc.USecondSignature, err = boolValue(v)
		case "username":
			acc.Username, err = stringValue(v)
		case "u_username":
			acc.UUsername, err = stringValue(v)
		case "blockId":
			acc.BlockID, err = stringValue(v)
		case "publicKey":
			acc.PublicKey, err = bytesValue(v)
		case "forgingPK":
			acc.ForgingPK, err = bytesValue(v)
		case "secondPublicKey":
			acc.SecondPublicKey, err = bytesValue(v)
		case "delegates":
			acc.Delegates, err = applyList(acc.Delegates, v)
		case "u_delegates":
			acc.UDelegates, err = applyList(acc.UDelegates, v)
		default:
			err = fmt.Errorf("unknown account field %q", field)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

func applyInt(dst *int64, v dbop.Value) error {
	switch v.Mode {
	case dbop.ModeInc:
		sum, err := utils.AddInt64(*dst, v.Inc)
		if err != nil {
			return err
		}
		*dst = sum
		return nil
	case dbop.ModeSet:
		switch x := v.Set.(type) {
		case int64:
			*dst = x
		case int:
			*dst = int64(x)
		default:
			return fmt.Errorf("expected integer, got %T", v.Set)
		}
		return nil
	}
	return fmt.Errorf("unsupported mode %d for integer field", v.Mode)
}

func boolValue(v dbop.Value) (bool, error) {
	if v.Mode != dbop.ModeSet {
		return false, fmt.Errorf("unsupported mode %d for bool field", v.Mode)
	}
	b, ok := v.Set.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", v.Set)
	}
	return b, nil
}

func stringValue(v dbop.Value) (string, error) {
	if v.Mode != dbop.ModeSet {
		return "", fmt.Errorf("unsupported mode %d for string field", v.Mode)
	}
	switch x := v.Set.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	}
	return "", fmt.Errorf("expected string, got %T", v.Set)
}

func bytesValue(v dbop.Value) ([]byte, error) {
	if v.Mode != dbop.ModeSet {
		return nil, fmt.Errorf("unsupported mode %d for bytes field", v.Mode)
	}
	switch x := v.Set.(type) {
	case nil:
		return nil, nil
	case []byte:
		return cloneBytes(x), nil
	case ed25519.PublicKey:
		return cloneBytes(x), nil
	}
	return nil, fmt.Errorf("expected bytes, got %T", v.Set)
}

func stringsValue(v dbop.Value) ([]string, error) {
	if v.Mode != dbop.ModeSet {
		return nil, fmt.Errorf("unsupported mode %d for list field", v.Mode)
	}
	switch x := v.Set.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), x...), nil
	}
	return nil, fmt.Errorf("expected string list, got %T", v.Set)
}

// applyList applies "+name"/"-name" entries in order, keeping the list free of duplicates.
func applyList(list []string, v dbop.Value) ([]string, error) {
	if v.Mode == dbop.ModeSet {
		return stringsValue(v)
	}
	if v.Mode != dbop.ModeDiff {
		return nil, fmt.Errorf("unsupported mode %d for list field", v.Mode)
	}
	out := append([]string(nil), list...)
	for _, d := range v.Diffs {
		if len(d) < 2 {
			return nil, fmt.Errorf("malformed diff entry %q", d)
		}
		name := d[1:]
		idx := -1
		for i, s := range out {
			if s == name {
				idx = i
				break
			}
		}
		switch d[0] {
		case '+':
			if idx >= 0 {
				return nil, fmt.Errorf("%s already present", name)
			}
			out = append(out, name)
		case '-':
			if idx < 0 {
				return nil, fmt.Errorf("%s not present", name)
			}
			out = append(out[:idx], out[idx+1:]...)
		default:
			return nil, fmt.Errorf("malformed diff entry %q", d)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
