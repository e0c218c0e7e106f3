// Package hashing derives deterministic idempotency keys and payload
// validation hashes from arbitrary JSON-shaped values.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Algorithm selects the digest used by Hash.
type Algorithm string

const (
	// AlgorithmMD5 is the default: a 128-bit digest. Not used for any
	// security property — only for collision-resistant keying of
	// logically-equal payloads, where a 128-bit digest is sufficient.
	AlgorithmMD5 Algorithm = "md5"
	// AlgorithmSHA256 is available for callers who want a stronger digest
	// at the cost of a longer key.
	AlgorithmSHA256 Algorithm = "sha256"
)

// Hash canonicalizes value and returns its hex digest under algo. An empty
// Algorithm defaults to AlgorithmMD5.
func Hash(value any, algo Algorithm) (string, error) {
	canonical, err := Canonicalize(value)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}

	switch algo {
	case "", AlgorithmMD5:
		sum := md5.Sum(canonical) //nolint:gosec // keying digest, not a security boundary
		return hex.EncodeToString(sum[:]), nil
	case AlgorithmSHA256:
		sum := sha256.Sum256(canonical)
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %q", algo)
	}
}

// Canonicalize produces a stable byte representation of value: object keys
// are sorted, arrays keep their original order, and numbers are formatted by
// encoding/json's default float64 rendering (shortest round-trip form).
// Two values that are structurally equal canonicalize to identical bytes
// regardless of the original key order they arrived in.
func Canonicalize(value any) ([]byte, error) {
	normalized := normalize(value)
	return json.Marshal(normalized)
}

// normalize walks value and replaces every map with an orderedMap so that
// json.Marshal emits keys in sorted order. encoding/json already sorts
// map[string]interface{} keys when marshaling, but we normalize explicitly
// so behavior does not depend on that implementation detail. Only
// map[string]interface{} and []interface{} are walked; values of any other
// type (typed maps, slices of maps, structs) are left to encoding/json, which
// sorts map keys but emits struct fields in declaration order.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, len(keys))
		for i, k := range keys {
			out[i] = orderedEntry{Key: k, Value: normalize(v[k])}
		}
		return out
	case []interface{}:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

type orderedEntry struct {
	Key   string
	Value any
}

type orderedMap []orderedEntry

// MarshalJSON renders the entries in their (already sorted) order, producing
// a canonical object encoding.
func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, '{')
	for i, e := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyBytes, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')
		valBytes, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, valBytes...)
	}
	buf = append(buf, '}')
	return buf, nil
}
