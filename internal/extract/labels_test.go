package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Total", "total"},
		{"TOTAL:", "total"},
		{"  Sub   Total  ", "sub total"},
		{"Grand Total :", "grand total"},
		{"Tax#", "tax"},
		{"STRASSE", "strasse"},
		{"", ""},
		{":::", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in), "input %q", tt.in)
	}
}

func TestLabelTable_Exact(t *testing.T) {
	table, err := NewLabelTable("")
	require.NoError(t, err)

	tests := []struct {
		key   string
		label Label
	}{
		{"total", LabelTotal},
		{"grand total", LabelTotal},
		{"amount due", LabelTotal},
		{"subtotal", LabelSubtotal},
		{"sub total", LabelSubtotal},
		{"sales tax", LabelTax},
		{"vat", LabelTax},
		{"gratuity", LabelTip},
		{"transaction date", LabelDate},
		{"store name", LabelMerchant},
	}
	for _, tt := range tests {
		label, ok := table.Exact(tt.key)
		require.True(t, ok, "expected %q to match", tt.key)
		assert.Equal(t, tt.label, label)
	}

	_, ok := table.Exact("loyalty points")
	assert.False(t, ok)
}

func TestLabelTable_FuzzyMatch(t *testing.T) {
	table, err := NewLabelTable("")
	require.NoError(t, err)

	// One OCR slip away.
	label, dist, ok := table.Match("totai", 2)
	require.True(t, ok)
	assert.Equal(t, LabelTotal, label)
	assert.Equal(t, 1, dist)

	// Exact scores zero.
	_, dist, ok = table.Match("total", 2)
	require.True(t, ok)
	assert.Equal(t, 0, dist)

	// Beyond the bound.
	_, _, ok = table.Match("zzzzzz", 2)
	assert.False(t, ok)

	// Distance zero disables fuzzy entirely.
	_, _, ok = table.Match("totai", 0)
	assert.False(t, ok)
}

func TestNewLabelTable_FileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tax:
  - "city tax"
total:
  - "importe total"
`), 0644))

	table, err := NewLabelTable(path)
	require.NoError(t, err)

	label, ok := table.Exact("city tax")
	require.True(t, ok)
	assert.Equal(t, LabelTax, label)

	label, ok = table.Exact("importe total")
	require.True(t, ok)
	assert.Equal(t, LabelTotal, label)

	// Builtins survive the override.
	label, ok = table.Exact("grand total")
	require.True(t, ok)
	assert.Equal(t, LabelTotal, label)
}

func TestNewLabelTable_UnknownLabel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discount:\n  - promo\n"), 0644))

	_, err := NewLabelTable(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown label")
}

func TestNewLabelTable_MissingFile(t *testing.T) {
	_, err := NewLabelTable("/nonexistent/labels.yaml")
	require.Error(t, err)
}

func TestLabel_MoneyLabel(t *testing.T) {
	assert.True(t, LabelSubtotal.MoneyLabel())
	assert.True(t, LabelTax.MoneyLabel())
	assert.True(t, LabelTip.MoneyLabel())
	assert.True(t, LabelTotal.MoneyLabel())
	assert.False(t, LabelDate.MoneyLabel())
	assert.False(t, LabelMerchant.MoneyLabel())
}
