package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/patch"
	"github.com/tradescan/assess-cli/internal/store"
)

func TestHSCodeActivation(t *testing.T) {
	task := NewHSCode()

	assert.False(t, task.Active(&model.Assessment{}))
	assert.False(t, task.Active(&model.Assessment{Products: []model.ProductRecord{
		{Name: "Olive Oil", EstimatedHSCode: "1509"},
	}}))
	assert.True(t, task.Active(&model.Assessment{Products: []model.ProductRecord{
		{Name: "Olive Oil", EstimatedHSCode: "1509"},
		{Name: "Mystery Item"},
	}}))
}

func TestHSCodeClassifies(t *testing.T) {
	task := NewHSCode()
	a := &model.Assessment{
		ID: "a-1",
		Products: []model.ProductRecord{
			{ID: "p-1", Name: "Extra Virgin Olive Oil"},
			{ID: "p-2", Name: "Handwoven Fabric", Category: "textiles"},
			{ID: "p-3", Name: "Unclassifiable Widget"},
			{ID: "p-4", Name: "Ceramic Vase", EstimatedHSCode: "6912"},
		},
	}

	p, err := task.BuildPayload(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Summary["unclassified_products"])

	res := task.Run(context.Background(), p)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Result["classified"])
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.6, *res.Confidence, 1e-9)

	require.Len(t, res.Patch.Ops, 2)
	first := res.Patch.Ops[0].(patch.UpdateOp)
	assert.Equal(t, store.TableProducts, first.Table)
	assert.Equal(t, "p-1", first.RecordID)
	assert.Equal(t, "1509", first.Fields["estimated_hs_code"])

	second := res.Patch.Ops[1].(patch.UpdateOp)
	assert.Equal(t, "p-2", second.RecordID)
	assert.Equal(t, "5208", second.Fields["estimated_hs_code"])
}

func TestHSCodeSpecificPhraseWins(t *testing.T) {
	// "olive oil" must match before a broader oil/food rule could.
	assert.Equal(t, "1509", classifyHS("Cold-Pressed Olive Oil", ""))
	assert.Equal(t, "0901", classifyHS("Arabica Coffee Beans", ""))
	assert.Equal(t, "", classifyHS("Quantum Flux Capacitor", ""))
}

func TestHSCodeCategoryFallback(t *testing.T) {
	assert.Equal(t, "9403", classifyHS("Oslo Chair", "furniture"))
}
