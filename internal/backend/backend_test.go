package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/resilience"
	"github.com/tradescan/assess-cli/pkg/anthropic"
)

// fakeClient returns scripted responses in order, repeating the last one.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	replies []reply
}

type reply struct {
	resp *anthropic.MessageResponse
	err  error
}

func textReply(text string) reply {
	return reply{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}}
}

func (f *fakeClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	r := f.replies[i]
	return r.resp, r.err
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func newTestBackend(client anthropic.Client, cache Cache) *Backend {
	cfg := Config{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024, SampleChars: 1000}
	return New(client, cache, cfg, fastRetry(), 0)
}

func TestExtractProducts(t *testing.T) {
	fc := &fakeClient{replies: []reply{textReply("```json\n[{\"name\": \"Alpha Widget\", \"price\": 9.5, \"confidence\": 0.9}]\n```")}}
	b := newTestBackend(fc, nil)

	products, err := b.ExtractProducts(context.Background(), "<p>Alpha Widget $9.50</p>", "https://acme.example")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Alpha Widget", products[0].Name)
	require.NotNil(t, products[0].Price)
	assert.Equal(t, 9.5, *products[0].Price)
	assert.Equal(t, model.EntitySourceLLM, products[0].Source)
	assert.Equal(t, 0.9, products[0].Confidence)
}

func TestExtractProductsDropsNameless(t *testing.T) {
	fc := &fakeClient{replies: []reply{textReply(`[{"name": ""}, {"description": "orphan"}, {"name": "Kept"}]`)}}
	b := newTestBackend(fc, nil)

	products, err := b.ExtractProducts(context.Background(), "content", "https://acme.example")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Kept", products[0].Name)
}

func TestExtractProductsClampsConfidence(t *testing.T) {
	fc := &fakeClient{replies: []reply{textReply(`[{"name": "A", "confidence": 3.0}, {"name": "B", "confidence": -1}]`)}}
	b := newTestBackend(fc, nil)

	products, err := b.ExtractProducts(context.Background(), "content", "u")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, 1.0, products[0].Confidence)
	assert.Equal(t, 0.0, products[1].Confidence)
}

func TestExtractProductsMalformedResponse(t *testing.T) {
	fc := &fakeClient{replies: []reply{textReply("I could not find any products, sorry!")}}
	b := newTestBackend(fc, nil)

	products, err := b.ExtractProducts(context.Background(), "content", "u")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestExtractProductsUsesCache(t *testing.T) {
	fc := &fakeClient{replies: []reply{textReply(`[{"name": "Alpha"}]`)}}
	cache := NewTTLCache(time.Minute)
	b := newTestBackend(fc, cache)

	first, err := b.ExtractProducts(context.Background(), "same content", "https://acme.example")
	require.NoError(t, err)
	second, err := b.ExtractProducts(context.Background(), "same content", "https://acme.example")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fc.callCount())
}

func TestExtractProductsCacheKeyedBySource(t *testing.T) {
	fc := &fakeClient{replies: []reply{textReply(`[{"name": "Alpha"}]`)}}
	cache := NewTTLCache(time.Minute)
	b := newTestBackend(fc, cache)

	_, err := b.ExtractProducts(context.Background(), "same content", "https://a.example")
	require.NoError(t, err)
	_, err = b.ExtractProducts(context.Background(), "same content", "https://b.example")
	require.NoError(t, err)

	assert.Equal(t, 2, fc.callCount())
}

func TestCompleteRetriesTransient(t *testing.T) {
	fc := &fakeClient{replies: []reply{
		{err: resilience.NewTransientError(errors.New("rate limited"), 429)},
		{err: resilience.NewTransientError(errors.New("overloaded"), 529)},
		textReply("done"),
	}}
	b := newTestBackend(fc, nil)

	resp, err := b.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())
	assert.Equal(t, 3, fc.callCount())
}

func TestCompleteGivesUpOnNonTransient(t *testing.T) {
	fc := &fakeClient{replies: []reply{{err: errors.New("invalid api key")}}}
	b := newTestBackend(fc, nil)

	_, err := b.Complete(context.Background(), "sys", "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, fc.callCount())
}

func TestCompleteBoundedAttempts(t *testing.T) {
	fc := &fakeClient{replies: []reply{
		{err: resilience.NewTransientError(errors.New("still down"), 503)},
	}}
	b := newTestBackend(fc, nil)

	_, err := b.Complete(context.Background(), "sys", "prompt")
	require.Error(t, err)
	assert.Equal(t, 3, fc.callCount())
}

func TestAnalyzeSite(t *testing.T) {
	fc := &fakeClient{replies: []reply{textReply(`{
		"summary": "Acme sells widgets.",
		"products": [{"name": "Alpha Widget", "confidence": 0.8}],
		"certifications": [{"name": "ISO 9001", "issuer": "ISO", "confidence": 0.7}],
		"contacts": {"emails": ["sales@acme.example"], "phones": [], "social_links": {"linkedin": "https://linkedin.com/company/acme"}},
		"confidence_score": 0.82,
		"next_best_action": "Verify export readiness."
	}`)}}
	b := newTestBackend(fc, nil)

	analysis, err := b.AnalyzeSite(context.Background(), "site content")
	require.NoError(t, err)
	res := analysis.Result
	assert.Equal(t, "Acme sells widgets.", res.Summary)
	require.Len(t, res.Products, 1)
	require.Len(t, res.Certifications, 1)
	assert.Equal(t, "ISO 9001", res.Certifications[0].Name)
	require.NotNil(t, res.Contacts)
	assert.Equal(t, []string{"sales@acme.example"}, res.Contacts.Emails)
	assert.InDelta(t, 0.82, res.ConfidenceScore, 0.001)
	assert.NotEmpty(t, analysis.Prompt)
	assert.NotEmpty(t, analysis.RawOutput)
}

func TestAnalyzeSiteUnparseableFallback(t *testing.T) {
	fc := &fakeClient{replies: []reply{textReply("no json here")}}
	b := newTestBackend(fc, nil)

	analysis, err := b.AnalyzeSite(context.Background(), "site content")
	require.NoError(t, err)
	assert.Equal(t, "unparseable_response", analysis.Result.FallbackReason)
	assert.Empty(t, analysis.Result.Products)
}
