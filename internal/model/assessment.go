package model

import (
	"encoding/json"
	"strings"
	"time"
)

// AssessmentStatus tracks where a record sits in the analysis lifecycle.
type AssessmentStatus string

const (
	AssessmentStatusPending   AssessmentStatus = "pending"
	AssessmentStatusProcessed AssessmentStatus = "llm_processed"
	AssessmentStatusFailed    AssessmentStatus = "llm_failed"
)

// Assessment is one business record awaiting (or finished with) analysis.
// RawContent is either plain text/HTML or a JSON crawl document.
type Assessment struct {
	ID           string           `json:"id"`
	BusinessName string           `json:"business_name,omitempty"`
	WebsiteURL   string           `json:"website_url,omitempty"`
	TargetMarket string           `json:"target_market,omitempty"`
	RawContent   string           `json:"raw_content"`
	LLMReady     bool             `json:"llm_ready"`
	IsMock       bool             `json:"is_mock"`
	Status       AssessmentStatus `json:"status"`
	Products     []ProductRecord  `json:"products,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ProductRecord is a stored product row belonging to an assessment. Distinct
// from Product, which is a freshly extracted entity not yet persisted.
type ProductRecord struct {
	ID              string `json:"id"`
	AssessmentID    string `json:"assessment_id"`
	Name            string `json:"name"`
	Category        string `json:"category,omitempty"`
	EstimatedHSCode string `json:"estimated_hs_code,omitempty"`
	ComplianceNotes string `json:"compliance_notes,omitempty"`
}

// CrawlDocument is the structured payload produced by the crawler:
// {"pages": [{"url": ..., "text": ...}]}.
type CrawlDocument struct {
	Pages []CrawlPage `json:"pages"`
}

// CrawlPage is one crawled page within a CrawlDocument.
type CrawlPage struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// FlattenContent returns the analysable text for an assessment. JSON crawl
// documents are flattened to page-marked text; anything else passes through.
func FlattenContent(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}
	var doc CrawlDocument
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil || len(doc.Pages) == 0 {
		return raw
	}
	var b strings.Builder
	for i, p := range doc.Pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if p.URL != "" {
			b.WriteString("--- PAGE: ")
			b.WriteString(p.URL)
			b.WriteString(" ---\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
