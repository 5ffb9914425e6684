package model

// EntitySource tags where an extracted entity came from.
type EntitySource string

const (
	EntitySourceRegex EntitySource = "regex"
	EntitySourceLLM   EntitySource = "llm"
	EntitySourceBoth  EntitySource = "both"
)

// Product is a structured product entity extracted from page content.
// Name is the only required field.
type Product struct {
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Category        string       `json:"category,omitempty"`
	Price           *float64     `json:"price,omitempty"`
	ImageURL        string       `json:"image_url,omitempty"`
	SourceURL       string       `json:"source_url,omitempty"`
	EstimatedHSCode string       `json:"estimated_hs_code,omitempty"`
	Source          EntitySource `json:"source,omitempty"`
	Confidence      float64      `json:"confidence"`
}

// Certification is a compliance or quality certification found on a site.
type Certification struct {
	Name       string  `json:"name"`
	Issuer     string  `json:"issuer,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Contact holds contact details scraped from a site.
type Contact struct {
	Emails      []string          `json:"emails,omitempty"`
	Phones      []string          `json:"phones,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
}

// AnalysisResult is the standardized output of a full website analysis.
type AnalysisResult struct {
	Summary         string          `json:"summary,omitempty"`
	Products        []Product       `json:"products,omitempty"`
	Certifications  []Certification `json:"certifications,omitempty"`
	Contacts        *Contact        `json:"contacts,omitempty"`
	ConfidenceScore float64         `json:"confidence_score"`
	FallbackReason  string          `json:"fallback_reason,omitempty"`
	NextBestAction  string          `json:"next_best_action,omitempty"`
}

// ClampConfidence bounds a confidence value to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
