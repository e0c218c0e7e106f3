package selector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate_Found(t *testing.T) {
	sel, err := Compile("headers.\"X-Request-Id\"")
	require.NoError(t, err)

	event := map[string]interface{}{
		"headers": map[string]interface{}{
			"X-Request-Id": "abc-123",
		},
	}

	v, found := sel.Evaluate(event)
	require.True(t, found)
	require.Equal(t, "abc-123", v)
}

func TestEvaluate_Missing(t *testing.T) {
	sel, err := Compile("body.order_id")
	require.NoError(t, err)

	v, found := sel.Evaluate(map[string]interface{}{"body": map[string]interface{}{}})
	require.False(t, found, "expected found=false, got value %v", v)
}

func TestEvaluate_Subtree(t *testing.T) {
	sel, err := Compile("body.items")
	require.NoError(t, err)

	event := map[string]interface{}{
		"body": map[string]interface{}{
			"items": []interface{}{
				map[string]interface{}{"sku": "a", "qty": 2},
				map[string]interface{}{"sku": "b", "qty": 1},
			},
		},
	}

	v, found := sel.Evaluate(event)
	require.True(t, found)
	items, ok := v.([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)
}

func TestCompile_InvalidExpression(t *testing.T) {
	_, err := Compile("body.[")
	require.Error(t, err, "expected compile error for malformed expression")
}
