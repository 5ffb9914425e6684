package reduce

import (
	"fmt"
	"strings"

	"github.com/tradescan/assess-cli/internal/model"
)

// DeduplicateProducts removes duplicate entities, keeping the first
// occurrence. Identity is the lowercased trimmed name plus price; entities
// without a name fall back to their image URL, and entities with neither are
// kept as unique. The operation is idempotent.
func DeduplicateProducts(products []model.Product) []model.Product {
	seen := map[string]bool{}
	out := make([]model.Product, 0, len(products))
	for _, p := range products {
		key := productKey(p)
		if key == "" {
			out = append(out, p)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func productKey(p model.Product) string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name != "" {
		if p.Price != nil {
			return fmt.Sprintf("n:%s|%.2f", name, *p.Price)
		}
		return "n:" + name + "|"
	}
	if p.ImageURL != "" {
		return "i:" + p.ImageURL
	}
	return ""
}
