package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_KeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"address": "https://x", "amount": 5.0}
	b := map[string]interface{}{"amount": 5.0, "address": "https://x"}

	ha, err := Hash(a, AlgorithmMD5)
	require.NoError(t, err)
	hb, err := Hash(b, AlgorithmMD5)
	require.NoError(t, err)
	require.Equal(t, ha, hb, "expected key-order-independent hashes to match")
}

func TestHash_DifferentValuesDiffer(t *testing.T) {
	ha, err := Hash(map[string]interface{}{"address": "https://x"}, AlgorithmMD5)
	require.NoError(t, err)
	hb, err := Hash(map[string]interface{}{"address": "https://y"}, AlgorithmMD5)
	require.NoError(t, err)
	require.NotEqual(t, ha, hb, "expected different values to hash differently")
}

func TestHash_DefaultAlgorithmIsMD5(t *testing.T) {
	withDefault, err := Hash("payload", "")
	require.NoError(t, err)
	withExplicit, err := Hash("payload", AlgorithmMD5)
	require.NoError(t, err)
	require.Equal(t, withExplicit, withDefault, "expected default algorithm to be md5")
}

func TestHash_SHA256Differs(t *testing.T) {
	md5Sum, err := Hash("payload", AlgorithmMD5)
	require.NoError(t, err)
	sha, err := Hash("payload", AlgorithmSHA256)
	require.NoError(t, err)
	require.NotEqual(t, md5Sum, sha, "expected md5 and sha256 digests to differ")
	require.Len(t, sha, 64, "expected 64-char hex sha256 digest")
	require.Len(t, md5Sum, 32, "expected 32-char hex md5 digest")
}

func TestHash_UnsupportedAlgorithm(t *testing.T) {
	_, err := Hash("x", Algorithm("crc32"))
	require.Error(t, err, "expected error for unsupported algorithm")
}

func TestHash_NestedStructures(t *testing.T) {
	a := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"sku": "a", "qty": 2.0},
			map[string]interface{}{"qty": 1.0, "sku": "b"},
		},
	}
	b := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"qty": 2.0, "sku": "a"},
			map[string]interface{}{"sku": "b", "qty": 1.0},
		},
	}
	ha, err := Hash(a, AlgorithmMD5)
	require.NoError(t, err)
	hb, err := Hash(b, AlgorithmMD5)
	require.NoError(t, err)
	require.Equal(t, ha, hb, "expected nested key reordering to not affect hash")
}
