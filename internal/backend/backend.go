// Package backend wraps the model API behind typed extraction operations
// with caching, rate limiting and retry.
package backend

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/resilience"
	"github.com/tradescan/assess-cli/pkg/anthropic"
)

// Config holds model call settings.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
	SampleChars int
}

// Backend issues extraction calls against the model API. The cache is
// injected so tests and callers control the caching policy.
type Backend struct {
	client  anthropic.Client
	cache   Cache
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	cfg     Config
}

// New constructs a Backend. A nil cache disables caching; ratePerSec <= 0
// disables client-side rate limiting.
func New(client anthropic.Client, cache Cache, cfg Config, retry resilience.RetryConfig, ratePerSec float64) *Backend {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = isRetryable
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}
	return &Backend{client: client, cache: cache, limiter: limiter, retry: retry, cfg: cfg}
}

func isRetryable(err error) bool {
	if resilience.IsTransientHTTPStatus(anthropic.StatusCode(err)) {
		return true
	}
	return resilience.IsTransient(err)
}

// Complete sends one prompt and returns the raw model response, retrying
// transient failures with exponential backoff.
func (b *Backend) Complete(ctx context.Context, system, prompt string) (*anthropic.MessageResponse, error) {
	req := anthropic.MessageRequest{
		Model:     b.cfg.Model,
		MaxTokens: b.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}
	if b.cfg.Temperature > 0 {
		temp := b.cfg.Temperature
		req.Temperature = &temp
	}

	resp, err := resilience.DoVal(ctx, b.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		callCtx := ctx
		if b.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
			defer cancel()
		}
		return b.client.CreateMessage(callCtx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "backend: complete")
	}
	resp.Usage.LogCost(b.cfg.Model, "complete")
	return resp, nil
}

// ExtractProducts extracts product entities from content. Results are cached
// by content fingerprint; a response that fails to parse yields an empty
// slice, not an error, so callers can fall through to the next strategy.
func (b *Backend) ExtractProducts(ctx context.Context, content, sourceURL string) ([]model.Product, error) {
	key := Fingerprint(content, sourceURL, b.cfg.SampleChars)
	if b.cache != nil {
		if cached, ok := b.cache.Get(key); ok {
			if products, ok := cached.([]model.Product); ok {
				zap.L().Debug("backend: extraction cache hit", zap.String("source_url", sourceURL))
				return products, nil
			}
		}
	}

	resp, err := b.Complete(ctx, productSystemPrompt, productPrompt(content, sourceURL))
	if err != nil {
		return nil, err
	}

	raw := resp.Text()
	products, ok := parseProducts(raw)
	if !ok {
		zap.L().Warn("backend: unparseable product response",
			zap.String("source_url", sourceURL),
			zap.String("snippet", snippet(raw, 200)))
		products = []model.Product{}
	}

	if b.cache != nil {
		b.cache.Set(key, products)
	}
	return products, nil
}

// Analysis carries a full site analysis plus the exact prompt and raw model
// output for audit logging.
type Analysis struct {
	Result    *model.AnalysisResult
	Prompt    string
	RawOutput string
}

// AnalyzeSite produces the standardized business analysis for a site. An
// unparseable response yields an empty fallback result, not an error.
func (b *Backend) AnalyzeSite(ctx context.Context, content string) (*Analysis, error) {
	prompt := analysisPrompt(content)
	resp, err := b.Complete(ctx, analysisSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	raw := resp.Text()
	result, ok := parseAnalysis(raw)
	if !ok {
		zap.L().Warn("backend: unparseable analysis response",
			zap.String("snippet", snippet(raw, 200)))
		result = &model.AnalysisResult{FallbackReason: "unparseable_response"}
	}

	return &Analysis{Result: result, Prompt: prompt, RawOutput: raw}, nil
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
