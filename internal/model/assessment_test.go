package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenContentPlainText(t *testing.T) {
	raw := "<html><body>Acme Widgets</body></html>"
	assert.Equal(t, raw, FlattenContent(raw))
}

func TestFlattenContentPagedJSON(t *testing.T) {
	raw := `{"pages": [
		{"url": "https://acme.example/", "text": "Home page text"},
		{"url": "https://acme.example/products", "text": "Product list"}
	]}`
	got := FlattenContent(raw)
	assert.Contains(t, got, "--- PAGE: https://acme.example/ ---")
	assert.Contains(t, got, "Home page text")
	assert.Contains(t, got, "--- PAGE: https://acme.example/products ---")
	assert.Contains(t, got, "Product list")
	assert.Less(t, strings.Index(got, "Home page text"), strings.Index(got, "Product list"))
}

func TestFlattenContentMalformedJSON(t *testing.T) {
	raw := `{"pages": [`
	assert.Equal(t, raw, FlattenContent(raw))
}

func TestFlattenContentJSONWithoutPages(t *testing.T) {
	raw := `{"other": true}`
	assert.Equal(t, raw, FlattenContent(raw))
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-0.5))
	assert.Equal(t, 1.0, ClampConfidence(1.5))
	assert.Equal(t, 0.7, ClampConfidence(0.7))
}
