package task

import (
	"context"
	"strings"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/patch"
	"github.com/tradescan/assess-cli/internal/store"
)

// marketRequirements maps a target market to the certifications a seller
// typically needs before exporting consumer goods there.
var marketRequirements = map[string][]string{
	"EU": {"CE Marking"},
	"US": {"FDA Registration"},
	"UK": {"UKCA Marking"},
	"JP": {"PSE Mark"},
	"AU": {"RCM Mark"},
	"CA": {"CSA Certification"},
}

const complianceConfidence = 0.85

// Compliance annotates products with the certifications required by the
// assessment's target market. Deterministic lookup; no LLM call.
type Compliance struct{}

func NewCompliance() *Compliance { return &Compliance{} }

func (t *Compliance) Name() string    { return "compliance" }
func (t *Compliance) Version() string { return "1.0.1" }

func (t *Compliance) Active(a *model.Assessment) bool {
	return strings.TrimSpace(a.TargetMarket) != "" && len(a.Products) > 0
}

func (t *Compliance) BuildPayload(_ context.Context, a *model.Assessment) (Payload, error) {
	return Payload{
		Assessment: a,
		Summary: map[string]any{
			"target_market": a.TargetMarket,
			"products":      len(a.Products),
		},
	}, nil
}

func (t *Compliance) Run(_ context.Context, p Payload) Result {
	market := strings.ToUpper(strings.TrimSpace(p.Assessment.TargetMarket))
	required, known := marketRequirements[market]

	var ops []patch.Op
	annotated := 0
	if known {
		notes := "Required for " + market + ": " + strings.Join(required, ", ")
		for _, rec := range p.Assessment.Products {
			if rec.ComplianceNotes != "" {
				continue
			}
			ops = append(ops, patch.UpdateOp{
				Table:    store.TableProducts,
				RecordID: rec.ID,
				Fields:   map[string]any{"compliance_notes": notes},
			})
			annotated++
		}
	}

	return Result{
		Result: map[string]any{
			"target_market": market,
			"market_known":  known,
			"annotated":     annotated,
		},
		Patch:      &patch.Patch{OwnerID: p.Assessment.ID, Ops: ops},
		Confidence: confidencePtr(complianceConfidence),
	}
}
