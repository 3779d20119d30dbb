// Package json wraps bytedance/sonic behind the subset of the encoding/json
// API that usefetch needs.
package json

import (
	stdjson "encoding/json"

	"github.com/bytedance/sonic"
)

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// MarshalStable returns the JSON encoding of v with map keys sorted, so equal
// values always produce equal bytes.
func MarshalStable(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

// MarshalIndent returns the indented JSON encoding of v.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return sonic.MarshalIndent(v, prefix, indent)
}

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return sonic.Valid(data)
}

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage
