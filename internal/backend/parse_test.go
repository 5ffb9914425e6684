package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n[1, 2]\n```", `[1, 2]`},
		{"prose around object", "Here you go:\n{\"a\": 1}\nHope that helps!", `{"a": 1}`},
		{"prose around array", "Result: [\"x\"] done", `["x"]`},
		{"array before object", `[{"a": 1}]`, `[{"a": 1}]`},
		{"already clean", `{"a": 1}`, `{"a": 1}`},
		{"no json at all", "nothing here", "nothing here"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanJSON(tc.in))
		})
	}
}

func TestParseProductsWrapperObject(t *testing.T) {
	products, ok := parseProducts(`{"products": [{"name": "Alpha"}, {"name": "Beta"}]}`)
	require.True(t, ok)
	assert.Len(t, products, 2)
}

func TestParseProductsStringPrice(t *testing.T) {
	products, ok := parseProducts(`[{"name": "Alpha", "price": "$12.50"}]`)
	require.True(t, ok)
	require.Len(t, products, 1)
	require.NotNil(t, products[0].Price)
	assert.Equal(t, 12.5, *products[0].Price)
}

func TestParseProductsDefaultConfidence(t *testing.T) {
	products, ok := parseProducts(`[{"name": "Alpha"}]`)
	require.True(t, ok)
	assert.Equal(t, 0.5, products[0].Confidence)
}

func TestParseProductsNotJSON(t *testing.T) {
	_, ok := parseProducts("sorry, no data")
	assert.False(t, ok)
}

func TestParseAnalysisNotObject(t *testing.T) {
	_, ok := parseAnalysis(`[1, 2, 3]`)
	assert.False(t, ok)
}

func TestFingerprintSampling(t *testing.T) {
	base := make([]byte, 2000)
	for i := range base {
		base[i] = 'a'
	}
	a := string(base) + "tail one"
	b := string(base) + "tail two"

	// Same first 1000 chars and source: same key.
	assert.Equal(t, Fingerprint(a, "u", 1000), Fingerprint(b, "u", 1000))
	// Different source: different key.
	assert.NotEqual(t, Fingerprint(a, "u1", 1000), Fingerprint(a, "u2", 1000))
	// Different content within the sample: different key.
	assert.NotEqual(t, Fingerprint("abc", "u", 1000), Fingerprint("abd", "u", 1000))
}
