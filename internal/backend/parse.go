package backend

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tradescan/assess-cli/internal/model"
)

// CleanJSON strips markdown fences and surrounding prose so the remaining
// text is the bare JSON document the model was asked for.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Slice to the outermost JSON delimiters, array or object.
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(text, "]"); end > arrStart {
			text = text[arrStart : end+1]
		}
	} else if objStart >= 0 {
		if end := strings.LastIndex(text, "}"); end > objStart {
			text = text[objStart : end+1]
		}
	}

	return strings.TrimSpace(text)
}

// parseProducts decodes a model response into product entities. Accepts a
// bare array or an object with a "products" key. Returns false when the
// response is not parseable at all.
func parseProducts(raw string) ([]model.Product, bool) {
	cleaned := CleanJSON(raw)

	var items []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		var wrapper map[string]any
		if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil {
			return nil, false
		}
		list, ok := wrapper["products"].([]any)
		if !ok {
			return nil, false
		}
		for _, el := range list {
			if m, ok := el.(map[string]any); ok {
				items = append(items, m)
			}
		}
	}

	products := make([]model.Product, 0, len(items))
	for _, m := range items {
		if p, ok := productFromMap(m); ok {
			products = append(products, p)
		}
	}
	return products, true
}

// productFromMap validates one decoded product. Nameless entries are dropped.
func productFromMap(m map[string]any) (model.Product, bool) {
	name, _ := m["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Product{}, false
	}

	p := model.Product{
		Name:   name,
		Source: model.EntitySourceLLM,
	}
	p.Description, _ = m["description"].(string)
	p.Category, _ = m["category"].(string)
	p.ImageURL, _ = m["image_url"].(string)
	p.SourceURL, _ = m["source_url"].(string)
	if price, ok := toFloat64(m["price"]); ok {
		p.Price = &price
	}
	conf, ok := toFloat64(m["confidence"])
	if !ok {
		conf = 0.5
	}
	p.Confidence = model.ClampConfidence(conf)
	return p, true
}

// parseAnalysis decodes a full analysis response. Returns false when the
// response is not a JSON object.
func parseAnalysis(raw string) (*model.AnalysisResult, bool) {
	cleaned := CleanJSON(raw)

	var m map[string]any
	if err := json.Unmarshal([]byte(cleaned), &m); err != nil {
		return nil, false
	}

	res := &model.AnalysisResult{}
	res.Summary, _ = m["summary"].(string)
	res.NextBestAction, _ = m["next_best_action"].(string)
	if conf, ok := toFloat64(m["confidence_score"]); ok {
		res.ConfidenceScore = model.ClampConfidence(conf)
	}

	if list, ok := m["products"].([]any); ok {
		for _, el := range list {
			if pm, ok := el.(map[string]any); ok {
				if p, ok := productFromMap(pm); ok {
					res.Products = append(res.Products, p)
				}
			}
		}
	}

	if list, ok := m["certifications"].([]any); ok {
		for _, el := range list {
			cm, ok := el.(map[string]any)
			if !ok {
				continue
			}
			name, _ := cm["name"].(string)
			if strings.TrimSpace(name) == "" {
				continue
			}
			cert := model.Certification{Name: strings.TrimSpace(name)}
			cert.Issuer, _ = cm["issuer"].(string)
			if conf, ok := toFloat64(cm["confidence"]); ok {
				cert.Confidence = model.ClampConfidence(conf)
			}
			res.Certifications = append(res.Certifications, cert)
		}
	}

	if cm, ok := m["contacts"].(map[string]any); ok {
		contact := &model.Contact{}
		contact.Emails = toStringSlice(cm["emails"])
		contact.Phones = toStringSlice(cm["phones"])
		if links, ok := cm["social_links"].(map[string]any); ok {
			contact.SocialLinks = map[string]string{}
			for k, v := range links {
				if s, ok := v.(string); ok && s != "" {
					contact.SocialLinks[k] = s
				}
			}
		}
		if len(contact.Emails) > 0 || len(contact.Phones) > 0 || len(contact.SocialLinks) > 0 {
			res.Contacts = contact
		}
	}

	return res, true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(n, "$")), 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, el := range list {
		if s, ok := el.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
