package task

import (
	"context"
	"strings"
	"time"

	"github.com/tradescan/assess-cli/internal/backend"
	"github.com/tradescan/assess-cli/internal/extract"
	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/patch"
	"github.com/tradescan/assess-cli/internal/reduce"
	"github.com/tradescan/assess-cli/internal/store"
)

// lowConfidenceThreshold marks analyses whose own confidence is too weak to
// stand without a recorded fallback reason.
const lowConfidenceThreshold = 0.6

// ProductPipeline runs the staged product extraction cascade.
type ProductPipeline interface {
	Run(ctx context.Context, raw, sourceURL string) ([]model.Product, extract.Stage)
}

// SiteAnalyzer produces the full-site analysis (summary, certifications,
// contacts) from flattened content.
type SiteAnalyzer interface {
	AnalyzeSite(ctx context.Context, content string) (*backend.Analysis, error)
}

// WebsiteAnalysis extracts products and site-level facts from an
// assessment's crawled content and patches them back onto the record.
type WebsiteAnalysis struct {
	pipeline ProductPipeline
	analyzer SiteAnalyzer
}

func NewWebsiteAnalysis(pipeline ProductPipeline, analyzer SiteAnalyzer) *WebsiteAnalysis {
	return &WebsiteAnalysis{pipeline: pipeline, analyzer: analyzer}
}

func (t *WebsiteAnalysis) Name() string    { return "website_analysis" }
func (t *WebsiteAnalysis) Version() string { return "1.1.0" }

func (t *WebsiteAnalysis) Active(a *model.Assessment) bool {
	return a.LLMReady && !a.IsMock && strings.TrimSpace(a.RawContent) != ""
}

func (t *WebsiteAnalysis) BuildPayload(_ context.Context, a *model.Assessment) (Payload, error) {
	content := model.FlattenContent(a.RawContent)
	return Payload{
		Assessment: a,
		Content:    content,
		Summary: map[string]any{
			"content_chars": len(content),
			"website_url":   a.WebsiteURL,
		},
	}, nil
}

func (t *WebsiteAnalysis) Run(ctx context.Context, p Payload) Result {
	a := p.Assessment

	products, stage := t.pipeline.Run(ctx, p.Content, a.WebsiteURL)

	analysis, err := t.analyzer.AnalyzeSite(ctx, p.Content)
	if err != nil {
		return Result{Err: err}
	}
	res := analysis.Result

	merged := reduce.DeduplicateProducts(append(products, res.Products...))
	fallback := fallbackReason(stage, res)

	ops := []patch.Op{
		patch.UpdateOp{
			Table:    store.TableAssessments,
			RecordID: a.ID,
			Fields:   assessmentFields(res, fallback),
		},
	}
	if len(merged) > 0 {
		ops = append(ops, patch.UpsertOp{
			Table:        store.TableProducts,
			Rows:         productRows(merged, a.WebsiteURL),
			ConflictKeys: []string{"assessment_id", "name"},
			NeedsOwner:   true,
		})
	}
	if len(res.Certifications) > 0 {
		ops = append(ops, patch.UpsertOp{
			Table:        store.TableCertifications,
			Rows:         certificationRows(res.Certifications),
			ConflictKeys: []string{"assessment_id", "name"},
			NeedsOwner:   true,
		})
	}

	return Result{
		Result: map[string]any{
			"stage":           string(stage),
			"products":        len(merged),
			"certifications":  len(res.Certifications),
			"fallback_reason": fallback,
		},
		Patch:      &patch.Patch{OwnerID: a.ID, Ops: ops},
		Confidence: confidencePtr(res.ConfidenceScore),
		Prompt:     analysis.Prompt,
		RawOutput:  analysis.RawOutput,
	}
}

// fallbackReason prefers the extraction stage's terminal tag, then the
// analyzer's own reason, then a low-confidence marker.
func fallbackReason(stage extract.Stage, res *model.AnalysisResult) string {
	switch stage {
	case extract.StageEmptyInput, extract.StageFailedAll:
		return string(stage)
	}
	if res.FallbackReason != "" {
		return res.FallbackReason
	}
	if res.ConfidenceScore < lowConfidenceThreshold {
		return "low_confidence"
	}
	return ""
}

func assessmentFields(res *model.AnalysisResult, fallback string) map[string]any {
	fields := map[string]any{
		"llm_ready":        false,
		"llm_processed_at": time.Now().UTC(),
		"status":           string(model.AssessmentStatusProcessed),
		"confidence_score": model.ClampConfidence(res.ConfidenceScore),
	}
	if res.Summary != "" {
		fields["summary"] = res.Summary
	}
	if fallback != "" {
		fields["fallback_reason"] = fallback
	}
	if res.NextBestAction != "" {
		fields["next_best_action"] = res.NextBestAction
	}
	if res.Contacts != nil {
		fields["contacts"] = map[string]any{
			"emails": res.Contacts.Emails,
			"phones": res.Contacts.Phones,
		}
		if len(res.Contacts.SocialLinks) > 0 {
			fields["social_links"] = res.Contacts.SocialLinks
		}
	}
	return fields
}

func productRows(products []model.Product, defaultSourceURL string) []map[string]any {
	rows := make([]map[string]any, 0, len(products))
	for _, p := range products {
		row := map[string]any{
			"name":       p.Name,
			"confidence": model.ClampConfidence(p.Confidence),
		}
		if p.Description != "" {
			row["description"] = p.Description
		}
		if p.Category != "" {
			row["category"] = p.Category
		}
		if p.Price != nil {
			row["price"] = *p.Price
		}
		if p.ImageURL != "" {
			row["image_url"] = p.ImageURL
		}
		if p.Source != "" {
			row["source"] = string(p.Source)
		}
		sourceURL := p.SourceURL
		if sourceURL == "" {
			sourceURL = defaultSourceURL
		}
		if sourceURL != "" {
			row["source_url"] = sourceURL
		}
		rows = append(rows, row)
	}
	return rows
}

func certificationRows(certs []model.Certification) []map[string]any {
	rows := make([]map[string]any, 0, len(certs))
	for _, c := range certs {
		row := map[string]any{
			"name":       c.Name,
			"confidence": model.ClampConfidence(c.Confidence),
		}
		if c.Issuer != "" {
			row["issuer"] = c.Issuer
		}
		rows = append(rows, row)
	}
	return rows
}
