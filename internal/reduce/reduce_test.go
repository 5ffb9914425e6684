package reduce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func TestCleanHTMLMinimal(t *testing.T) {
	raw := `<html><body><script>track()</script><style>.x{}</style><p>Hello</p><nav>Menu</nav></body></html>`
	got := CleanHTML(raw, false)
	assert.Contains(t, got, "Hello")
	assert.Contains(t, got, "Menu")
	assert.NotContains(t, got, "track()")
	assert.NotContains(t, got, ".x{}")
}

func TestCleanHTMLAggressive(t *testing.T) {
	raw := `<html><body><script>track()</script><p>Hello</p><nav>Menu</nav><footer>Legal</footer></body></html>`
	got := CleanHTML(raw, true)
	assert.Contains(t, got, "Hello")
	assert.NotContains(t, got, "Menu")
	assert.NotContains(t, got, "Legal")
	assert.NotContains(t, got, "track()")
}

func TestCleanHTMLEmpty(t *testing.T) {
	assert.Equal(t, "", CleanHTML("", false))
	assert.Equal(t, "", CleanHTML("   \n", true))
}

func TestExtractMainContentPrefersListing(t *testing.T) {
	raw := `<html><body>
<nav><a href="/">Home</a><a href="/about">About Us</a></nav>
<div class="products"><ul>
<li>Alpha Widget $10.00</li>
<li>Beta Widget $12.00</li>
<li>Gamma Widget $14.00</li>
<li>Delta Widget $9.00</li>
</ul></div>
<footer>Copyright Acme</footer>
</body></html>`
	got := ExtractMainContent(raw)
	assert.Contains(t, got, "Alpha Widget")
	assert.Contains(t, got, "Delta Widget")
	assert.NotContains(t, got, "About Us")
	assert.NotContains(t, got, "Copyright Acme")
}

func TestExtractMainContentFallbackWholePage(t *testing.T) {
	raw := `<p>Just a paragraph with no containers.</p>`
	got := ExtractMainContent(raw)
	assert.Contains(t, got, "Just a paragraph")
}

func TestExtractMainContentEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractMainContent(""))
}

func TestExtractText(t *testing.T) {
	raw := `<div><h1>Catalog</h1><p>Fine goods.</p><img src="w.jpg" alt="Widget photo"><ul><li>Item one</li></ul></div>`
	got := ExtractText(raw)
	assert.Contains(t, got, "Catalog")
	assert.Contains(t, got, "Fine goods.")
	assert.Contains(t, got, "Widget photo")
	assert.Contains(t, got, "Item one")
	assert.Less(t, strings.Index(got, "Catalog"), strings.Index(got, "Item one"))
	assert.NotContains(t, got, "<")
}

func TestExtractTextStripsScripts(t *testing.T) {
	raw := `<body><script>var x = 1;</script><p>Visible</p></body>`
	got := ExtractText(raw)
	assert.Contains(t, got, "Visible")
	assert.NotContains(t, got, "var x")
}

func TestExtractTextEmpty(t *testing.T) {
	assert.Equal(t, "", ExtractText(""))
}
