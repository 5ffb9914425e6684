package task

import (
	"context"
	"strings"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/patch"
	"github.com/tradescan/assess-cli/internal/store"
)

// hsRules maps product keywords to HS chapter/heading prefixes. Ordered so
// more specific phrases win over broader ones.
var hsRules = []struct {
	Keyword string
	Prefix  string
}{
	{"olive oil", "1509"},
	{"coffee", "0901"},
	{"tea", "0902"},
	{"wine", "2204"},
	{"cheese", "0406"},
	{"honey", "0409"},
	{"chocolate", "1806"},
	{"leather", "4203"},
	{"furniture", "9403"},
	{"ceramic", "6912"},
	{"tile", "6907"},
	{"textile", "5208"},
	{"fabric", "5208"},
	{"garment", "6203"},
	{"footwear", "6403"},
	{"jewelry", "7113"},
	{"toy", "9503"},
	{"machinery", "8479"},
	{"electronic", "8543"},
	{"solar", "8541"},
	{"plastic", "3926"},
	{"steel", "7326"},
	{"aluminum", "7616"},
	{"glass", "7013"},
	{"paper", "4823"},
	{"cosmetic", "3304"},
	{"soap", "3401"},
	{"spice", "0910"},
}

const hsCodeConfidence = 0.6

// HSCode assigns provisional HS code prefixes to extracted products that do
// not have one yet. Deterministic keyword rules; no LLM call.
type HSCode struct{}

func NewHSCode() *HSCode { return &HSCode{} }

func (t *HSCode) Name() string    { return "hs_code" }
func (t *HSCode) Version() string { return "0.2.0" }

func (t *HSCode) Active(a *model.Assessment) bool {
	for _, p := range a.Products {
		if p.EstimatedHSCode == "" {
			return true
		}
	}
	return false
}

func (t *HSCode) BuildPayload(_ context.Context, a *model.Assessment) (Payload, error) {
	unclassified := 0
	for _, p := range a.Products {
		if p.EstimatedHSCode == "" {
			unclassified++
		}
	}
	return Payload{
		Assessment: a,
		Summary:    map[string]any{"unclassified_products": unclassified},
	}, nil
}

func (t *HSCode) Run(_ context.Context, p Payload) Result {
	var ops []patch.Op
	classified := 0
	for _, rec := range p.Assessment.Products {
		if rec.EstimatedHSCode != "" {
			continue
		}
		prefix := classifyHS(rec.Name, rec.Category)
		if prefix == "" {
			continue
		}
		ops = append(ops, patch.UpdateOp{
			Table:    store.TableProducts,
			RecordID: rec.ID,
			Fields:   map[string]any{"estimated_hs_code": prefix},
		})
		classified++
	}

	return Result{
		Result: map[string]any{
			"products":   len(p.Assessment.Products),
			"classified": classified,
		},
		Patch:      &patch.Patch{OwnerID: p.Assessment.ID, Ops: ops},
		Confidence: confidencePtr(hsCodeConfidence),
	}
}

func classifyHS(name, category string) string {
	haystack := strings.ToLower(name + " " + category)
	for _, rule := range hsRules {
		if strings.Contains(haystack, rule.Keyword) {
			return rule.Prefix
		}
	}
	return ""
}
