package inventory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateFlagsLowStock(t *testing.T) {
	snap, err := Parse(strings.NewReader("name,quantity,reorder_threshold\nWidget,5,10\nGadget,20,10\n"), "x.csv", StoreOptions{})
	require.NoError(t, err)

	alerts := Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, "Widget", alerts[0].Record.Label())
	assert.Equal(t, 5, alerts[0].Quantity)
	assert.Equal(t, 10, alerts[0].Threshold)
	assert.Equal(t, 6, alerts[0].Shortfall())
}

func TestEvaluateBoundaryIsInclusive(t *testing.T) {
	snap := &Snapshot{Records: []Record{
		{Name: "AtThreshold", Quantity: 10, ReorderThreshold: 10},
		{Name: "JustAbove", Quantity: 11, ReorderThreshold: 10},
		{Name: "Empty", Quantity: 0, ReorderThreshold: 0},
	}}

	alerts := Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, "AtThreshold", alerts[0].Record.Name)
	assert.Equal(t, "Empty", alerts[1].Record.Name)
}

func TestEvaluateKeepsSnapshotOrder(t *testing.T) {
	snap := &Snapshot{Records: []Record{
		{SKU: "C", Quantity: 1, ReorderThreshold: 5},
		{SKU: "A", Quantity: 9, ReorderThreshold: 5},
		{SKU: "B", Quantity: 2, ReorderThreshold: 5},
	}}

	var ids []string
	for _, a := range Evaluate(snap) {
		ids = append(ids, a.Record.ID())
	}
	assert.Equal(t, []string{"C", "B"}, ids)
}

func TestEvaluateEmpty(t *testing.T) {
	assert.Empty(t, Evaluate(nil))
	assert.Empty(t, Evaluate(&Snapshot{}))
	assert.Empty(t, Evaluate(&Snapshot{Records: []Record{{Name: "Plenty", Quantity: 100, ReorderThreshold: 1}}}))
}
