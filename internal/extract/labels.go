package extract

import (
	"os"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Label identifies a recognized receipt field that a form key can map to.
type Label string

const (
	LabelSubtotal Label = "subtotal"
	LabelTax      Label = "tax"
	LabelTip      Label = "tip"
	LabelTotal    Label = "total"
	LabelDate     Label = "date"
	LabelMerchant Label = "merchant"
)

// MoneyLabel reports whether the label carries a monetary amount.
func (l Label) MoneyLabel() bool {
	switch l {
	case LabelSubtotal, LabelTax, LabelTip, LabelTotal:
		return true
	default:
		return false
	}
}

// builtinSynonyms is the label vocabulary receipts actually print. Keys are
// stored normalized at table build time.
var builtinSynonyms = map[Label][]string{
	LabelSubtotal: {
		"subtotal", "sub total", "sub-total", "net amount", "net total",
		"amount before tax", "merchandise total",
	},
	LabelTax: {
		"tax", "sales tax", "tax amount", "vat", "gst", "hst", "pst",
		"state tax", "local tax", "tax total",
	},
	LabelTip: {
		"tip", "gratuity", "tip amount", "service charge",
	},
	LabelTotal: {
		"total", "grand total", "total due", "amount due", "balance due",
		"total amount", "amount paid", "total paid", "order total",
	},
	LabelDate: {
		"date", "transaction date", "purchase date", "order date",
		"invoice date", "date of sale",
	},
	LabelMerchant: {
		"merchant", "merchant name", "store", "store name", "vendor",
		"retailer", "sold by", "business name",
	},
}

var foldCaser = cases.Fold()

// NormalizeKey canonicalizes form-key text for label matching: Unicode case
// folding, trimmed edges, collapsed inner whitespace, and trailing label
// punctuation ("Total:") removed.
func NormalizeKey(s string) string {
	s = foldCaser.String(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ":#.*- ")
	return s
}

// LabelTable matches normalized key text to labels, exact first and then by
// bounded edit distance.
type LabelTable struct {
	// synonyms maps normalized synonym text to its label, in a stable
	// insertion order kept in ordered for deterministic fuzzy ties.
	synonyms map[string]Label
	ordered  []string
}

// NewLabelTable builds the builtin table, optionally extended from a YAML
// file mapping label names to extra synonym lists:
//
//	tax:
//	  - "city tax"
//	total:
//	  - "importe total"
func NewLabelTable(labelsFile string) (*LabelTable, error) {
	t := &LabelTable{synonyms: make(map[string]Label)}

	for _, label := range []Label{LabelSubtotal, LabelTax, LabelTip, LabelTotal, LabelDate, LabelMerchant} {
		for _, syn := range builtinSynonyms[label] {
			t.add(syn, label)
		}
	}

	if labelsFile == "" {
		return t, nil
	}

	data, err := os.ReadFile(labelsFile)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read labels file %s", labelsFile)
	}
	var extra map[string][]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, eris.Wrapf(err, "extract: parse labels file %s", labelsFile)
	}
	for name, syns := range extra {
		label := Label(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := builtinSynonyms[label]; !ok {
			return nil, eris.Errorf("extract: labels file %s: unknown label %q", labelsFile, name)
		}
		for _, syn := range syns {
			t.add(syn, label)
		}
	}
	return t, nil
}

func (t *LabelTable) add(synonym string, label Label) {
	key := NormalizeKey(synonym)
	if key == "" {
		return
	}
	if _, exists := t.synonyms[key]; exists {
		return
	}
	t.synonyms[key] = label
	t.ordered = append(t.ordered, key)
}

// Exact returns the label for an already-normalized key, if any.
func (t *LabelTable) Exact(normalized string) (Label, bool) {
	label, ok := t.synonyms[normalized]
	return label, ok
}

// Match resolves a normalized key to a label. Exact matches score 0; failing
// that, the closest synonym within maxDistance edits wins. The earliest
// synonym wins distance ties so results don't depend on map order.
func (t *LabelTable) Match(normalized string, maxDistance int) (Label, int, bool) {
	if label, ok := t.synonyms[normalized]; ok {
		return label, 0, true
	}
	if maxDistance <= 0 || normalized == "" {
		return "", 0, false
	}

	best := maxDistance + 1
	var bestLabel Label
	for _, syn := range t.ordered {
		d := levenshtein.Distance(normalized, syn, nil)
		if d < best {
			best = d
			bestLabel = t.synonyms[syn]
		}
	}
	if best > maxDistance {
		return "", 0, false
	}
	return bestLabel, best, true
}
