package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalIsStableAcrossKeyOrder(t *testing.T) {
	a, err := Canonical(map[string]interface{}{
		"zeta": 1, "alpha": []interface{}{"x"}, "mid": map[string]interface{}{"b": 2, "a": 1},
	})
	require.NoError(t, err)
	b, err := Canonical(map[string]interface{}{
		"mid": map[string]interface{}{"a": 1, "b": 2}, "alpha": []interface{}{"x"}, "zeta": 1,
	})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, `{"alpha":["x"],"mid":{"a":1,"b":2},"zeta":1}`, a)
}

func TestUnmarshalRoundTrip(t *testing.T) {
	var m map[string]interface{}
	require.NoError(t, Unmarshal([]byte(`{"id":"P1","n":2}`), &m))
	assert.Equal(t, "P1", m["id"])

	out, err := Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id":"P1"`)
}
