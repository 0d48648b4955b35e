// Package jsonx is the JSON codec for everything the node persists.
package jsonx

import jsoniter "github.com/json-iterator/go"

// Map keys are sorted so that stored snapshots and round lists encode the same on every node.
var codec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

func Marshal(v interface{}) ([]byte, error) {
	return codec.Marshal(v)
}

// MarshalIndent is Marshal with two-space indentation, for files operators read.
func MarshalIndent(v interface{}) ([]byte, error) {
	return codec.MarshalIndent(v, "", "  ")
}

func Unmarshal(data []byte, v interface{}) error {
	return codec.Unmarshal(data, v)
}
