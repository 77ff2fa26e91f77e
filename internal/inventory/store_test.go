package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCountsRows(t *testing.T) {
	path := writeCSV(t, "name,quantity,reorder_threshold\nWidget,5,10\nGadget,20,10\nSprocket,0,3\n")

	snap, err := NewStore(StoreOptions{}).Load(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 3, snap.Len())
	assert.Equal(t, path, snap.Source)
	assert.False(t, snap.LoadedAt.IsZero())

	w := snap.Records[0]
	assert.Equal(t, "Widget", w.Name)
	assert.Equal(t, 5, w.Quantity)
	assert.Equal(t, 10, w.ReorderThreshold)
	assert.Equal(t, 2, w.Row)
}

func TestLoadRowCountMatchesForGeneratedFiles(t *testing.T) {
	for _, n := range []int{0, 1, 17, 500} {
		var b strings.Builder
		b.WriteString("sku,qty,min_stock\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "SKU-%04d,%d,%d\n", i, i%13, i%7)
		}
		snap, err := Parse(strings.NewReader(b.String()), "generated", StoreOptions{})
		require.NoError(t, err)
		assert.Equal(t, n, snap.Len(), "rows=%d", n)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewStore(StoreOptions{}).Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))

	var loadErr *DataLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadEmptyFile(t *testing.T) {
	_, err := NewStore(StoreOptions{}).Load(context.Background(), writeCSV(t, ""))

	var loadErr *DataLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Reason, "header")
}

func TestLoadMissingRequiredColumns(t *testing.T) {
	_, err := Parse(strings.NewReader("name,category\nWidget,Tools\n"), "x.csv", StoreOptions{})
	var loadErr *DataLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "quantity")

	_, err = Parse(strings.NewReader("category,quantity\nTools,4\n"), "x.csv", StoreOptions{})
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "sku or name")
}

func TestNonNumericQuantityFailsWholeLoad(t *testing.T) {
	body := "name,quantity,reorder_threshold\nWidget,5,10\nGadget,lots,10\nSprocket,1,1\n"
	snap, err := Parse(strings.NewReader(body), "x.csv", StoreOptions{})

	assert.Nil(t, snap)
	var vErr *DataValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 3, vErr.Row)
	assert.Equal(t, "quantity", vErr.Column)
	assert.Equal(t, "lots", vErr.Value)
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]string{
		"negative quantity":  "name,quantity\nWidget,-2\n",
		"blank quantity":     "name,quantity\nWidget,\n",
		"fractional":         "name,quantity\nWidget,2.5\n",
		"bad threshold":      "name,quantity,reorder_threshold\nWidget,2,ten\n",
		"bad price":          "name,quantity,unit_price\nWidget,2,cheap\n",
		"negative price":     "name,quantity,unit_price\nWidget,2,-1.00\n",
		"blank identity":     "sku,name,quantity\n,,2\n",
		"field count":        "name,quantity\nWidget,2,extra\n",
		"unterminated quote": "name,quantity\n\"Widget,2\n",
		"quantity overflow":  "name,quantity\nWidget,9223372036854775807\n",
		"above int32":        "name,quantity\nWidget,3000000000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			snap, err := Parse(strings.NewReader(body), "x.csv", StoreOptions{})
			assert.Nil(t, snap)
			var vErr *DataValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}
}

func TestDefaultThreshold(t *testing.T) {
	snap, err := Parse(strings.NewReader("name,quantity\nWidget,5\n"), "x.csv", StoreOptions{DefaultReorderThreshold: 7})
	require.NoError(t, err)
	assert.False(t, snap.HasThreshold)
	assert.Equal(t, 7, snap.Records[0].ReorderThreshold)

	snap, err = Parse(strings.NewReader("name,quantity,reorder_threshold\nWidget,5,\nGadget,5,2\n"), "x.csv", StoreOptions{DefaultReorderThreshold: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Records[0].ReorderThreshold)
	assert.Equal(t, 2, snap.Records[1].ReorderThreshold)
}

func TestHeaderAliases(t *testing.T) {
	body := "\ufeffProduct_ID, SKU ,Name,Category,Quantity,MinStock,UnitPrice,Supplier_ID\n" +
		"P1,USB-C-HUB,USB-C Hub,Accessories,12,5,\"$1,024.50\",S9\n" +
		"P2,,Mouse,Accessories,3.0,5,19.99,S9\n"
	snap, err := Parse(strings.NewReader(body), "x.csv", StoreOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	hub := snap.Records[0]
	assert.Equal(t, "USB-C-HUB", hub.SKU, "SKU column wins over Product_ID")
	assert.Equal(t, "USB-C Hub", hub.Label())
	assert.Equal(t, "Accessories", hub.Category)
	assert.Equal(t, 5, hub.ReorderThreshold)
	assert.Equal(t, "1024.5", hub.UnitPrice.String())
	assert.True(t, hub.HasPrice)
	assert.Equal(t, "S9", hub.SupplierID)
	assert.Equal(t, "P1", hub.ProductID)

	mouse := snap.Records[1]
	assert.Equal(t, "Mouse", mouse.ID(), "name is the identity when SKU is blank")
	assert.Equal(t, 3, mouse.Quantity)
}

func TestDuplicatesAreKept(t *testing.T) {
	snap, err := Parse(strings.NewReader("sku,quantity\nA,1\nB,2\nA,3\nA,4\n"), "x.csv", StoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, []string{"A"}, snap.Duplicates())
}

func TestStoreStats(t *testing.T) {
	store := NewStore(StoreOptions{})
	_, err := store.Load(context.Background(), writeCSV(t, "name,quantity\nWidget,1\n"))
	require.NoError(t, err)

	st := store.Stats()
	assert.EqualValues(t, 1, st.Loads)
	assert.Equal(t, 1, st.LastRecords)
	assert.Empty(t, st.LastError)

	_, err = store.Load(context.Background(), "/does/not/exist.csv")
	require.Error(t, err)
	st = store.Stats()
	assert.EqualValues(t, 2, st.Loads)
	assert.NotEmpty(t, st.LastError)
}

func TestLoadHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStore(StoreOptions{}).Load(ctx, writeCSV(t, "name,quantity\nWidget,1\n"))
	require.ErrorIs(t, err, context.Canceled)
}
