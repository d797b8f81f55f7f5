// Package extract interprets the generic block/relationship graph the
// analysis service emits into a structured receipt. The service knows about
// forms and tables; it does not know what a receipt is. Everything
// domain-specific lives here: label vocabulary, money and date parsing,
// line-item heuristics, and the merchant fallback.
//
// Extraction is total. No payload, however malformed, fails it; fields that
// cannot be located are left unset and the validator reports the gaps.
package extract

import (
	"math"
	"sort"
	"strings"

	"github.com/tabsplit/receipt-scan/internal/model"
	"github.com/tabsplit/receipt-scan/pkg/docanalysis"
)

// Config controls label matching behavior.
type Config struct {
	// LabelsFile optionally extends the builtin synonym table (YAML).
	LabelsFile string

	// FuzzyMaxDistance bounds edit-distance label matching. 0 means exact
	// matches only.
	FuzzyMaxDistance int
}

// DefaultConfig allows two edits, enough for common OCR slips like
// "Subtota1" without letting "total" absorb "subtotal".
func DefaultConfig() Config {
	return Config{FuzzyMaxDistance: 2}
}

// Extractor turns analysis payloads into receipts.
type Extractor struct {
	labels   *LabelTable
	fuzzyMax int
}

// New builds an Extractor. Fails only when a labels file is given and
// unreadable.
func New(cfg Config) (*Extractor, error) {
	table, err := NewLabelTable(cfg.LabelsFile)
	if err != nil {
		return nil, err
	}
	fuzzyMax := cfg.FuzzyMaxDistance
	if fuzzyMax < 0 {
		fuzzyMax = 0
	}
	return &Extractor{labels: table, fuzzyMax: fuzzyMax}, nil
}

// Extract interprets a terminal analysis payload. An empty or unrecognizable
// payload yields an empty receipt, never an error.
func (e *Extractor) Extract(blocks []docanalysis.Block) *model.Receipt {
	r := &model.Receipt{Items: []model.LineItem{}, Warnings: []model.Warning{}}
	if len(blocks) == 0 {
		return r
	}

	g := newGraph(blocks)
	e.applyFormFields(g, r)
	r.Items = e.resolveTables(g)
	if r.Merchant == nil {
		e.fallbackMerchant(g, r)
	}
	return r
}

// graph indexes blocks by ID and keeps payload order for deterministic
// tie-breaking. Relationship lists may reference missing IDs; lookups treat
// those as absent rather than failing.
type graph struct {
	order []docanalysis.Block
	byID  map[string]*docanalysis.Block
}

func newGraph(blocks []docanalysis.Block) *graph {
	g := &graph{order: blocks, byID: make(map[string]*docanalysis.Block, len(blocks))}
	for i := range blocks {
		g.byID[blocks[i].ID] = &blocks[i]
	}
	return g
}

func (g *graph) relIDs(b *docanalysis.Block, rel docanalysis.RelationshipType) []string {
	if b == nil {
		return nil
	}
	var ids []string
	for _, r := range b.Relationships {
		if r.Type == rel {
			ids = append(ids, r.IDs...)
		}
	}
	return ids
}

// text assembles a block's visible text. Container blocks (cells, key/value
// sets) carry no text of their own; their WORD children do, in reading
// order. Selected checkboxes render as "X".
func (g *graph) text(b *docanalysis.Block) string {
	if b == nil {
		return ""
	}
	if b.Text != "" {
		return b.Text
	}
	var parts []string
	for _, id := range g.relIDs(b, docanalysis.RelationshipChild) {
		c := g.byID[id]
		if c == nil {
			continue
		}
		switch c.BlockType {
		case docanalysis.BlockTypeWord:
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		case docanalysis.BlockTypeSelectionElement:
			if c.SelectionStatus == docanalysis.SelectionSelected {
				parts = append(parts, "X")
			}
		}
	}
	return strings.Join(parts, " ")
}

// minConfidence takes the lowest positive confidence across the given blocks
// and their text-bearing children. Zero confidences mean "absent" and are
// skipped so they don't wipe out the field.
func (g *graph) minConfidence(ids ...string) float64 {
	minimum := math.MaxFloat64
	found := false
	consider := func(c float64) {
		if c > 0 && c < minimum {
			minimum = c
			found = true
		}
	}
	for _, id := range ids {
		b := g.byID[id]
		if b == nil {
			continue
		}
		consider(b.Confidence)
		for _, cid := range g.relIDs(b, docanalysis.RelationshipChild) {
			if c := g.byID[cid]; c != nil {
				consider(c.Confidence)
			}
		}
	}
	if !found {
		return 0
	}
	return minimum
}

func hasEntity(b *docanalysis.Block, entity string) bool {
	for _, e := range b.EntityTypes {
		if e == entity {
			return true
		}
	}
	return false
}

// fieldCandidate is one resolved (key, value) pair competing for a label.
type fieldCandidate struct {
	value      string
	amount     float64
	confidence float64
	sources    []string
	score      int
}

// applyFormFields resolves KEY_VALUE_SET pairs against the label table and
// populates the receipt's scalar fields. For each label the best-scored
// candidate wins; exact matches score 0 so they always beat fuzzy ones, and
// a strict comparison keeps the first occurrence among equal scores.
func (e *Extractor) applyFormFields(g *graph, r *model.Receipt) {
	best := make(map[Label]fieldCandidate)

	for i := range g.order {
		b := &g.order[i]
		if b.BlockType != docanalysis.BlockTypeKeyValueSet || !hasEntity(b, docanalysis.EntityTypeKey) {
			continue
		}

		keyText := g.text(b)
		normalized := NormalizeKey(keyText)
		if normalized == "" {
			continue
		}
		label, score, ok := e.labels.Match(normalized, e.fuzzyMax)
		if !ok {
			continue
		}

		valueIDs := g.relIDs(b, docanalysis.RelationshipValue)
		var valueParts []string
		for _, vid := range valueIDs {
			if vt := g.text(g.byID[vid]); vt != "" {
				valueParts = append(valueParts, vt)
			}
		}
		valueText := strings.TrimSpace(strings.Join(valueParts, " "))
		if valueText == "" {
			continue
		}

		cand := fieldCandidate{
			value:      valueText,
			confidence: g.minConfidence(append([]string{b.ID}, valueIDs...)...),
			sources:    append([]string{b.ID}, valueIDs...),
			score:      score,
		}
		if label.MoneyLabel() {
			amount, ok := ParseAmount(valueText)
			if !ok {
				// An unparseable amount can't populate a money field, so it
				// must not outrank a parseable competitor.
				continue
			}
			cand.amount = amount
		}

		if prev, exists := best[label]; !exists || cand.score < prev.score {
			best[label] = cand
		}
	}

	if c, ok := best[LabelSubtotal]; ok {
		r.Subtotal = &model.MoneyField{Value: c.amount, Confidence: c.confidence, SourceBlocks: c.sources}
	}
	if c, ok := best[LabelTax]; ok {
		r.Tax = &model.MoneyField{Value: c.amount, Confidence: c.confidence, SourceBlocks: c.sources}
	}
	if c, ok := best[LabelTip]; ok {
		r.Tip = &model.MoneyField{Value: c.amount, Confidence: c.confidence, SourceBlocks: c.sources}
	}
	if c, ok := best[LabelTotal]; ok {
		r.Total = &model.MoneyField{Value: c.amount, Confidence: c.confidence, SourceBlocks: c.sources}
	}
	if c, ok := best[LabelDate]; ok {
		r.Date = &model.TextField{Value: NormalizeDate(c.value), Confidence: c.confidence, SourceBlocks: c.sources}
	}
	if c, ok := best[LabelMerchant]; ok {
		r.Merchant = &model.TextField{Value: c.value, Confidence: c.confidence, SourceBlocks: c.sources}
	}
}

// resolveTables walks TABLE blocks in payload order and turns qualifying
// rows into line items, preserving print order.
func (e *Extractor) resolveTables(g *graph) []model.LineItem {
	items := []model.LineItem{}
	for i := range g.order {
		b := &g.order[i]
		if b.BlockType != docanalysis.BlockTypeTable {
			continue
		}
		for _, row := range g.tableRows(b) {
			if item, ok := e.rowToItem(g, row); ok {
				items = append(items, item)
			}
		}
	}
	return items
}

// tableRows groups a table's CELL children by row index and orders cells
// within each row by column index.
func (g *graph) tableRows(table *docanalysis.Block) [][]*docanalysis.Block {
	byRow := make(map[int][]*docanalysis.Block)
	for _, id := range g.relIDs(table, docanalysis.RelationshipChild) {
		c := g.byID[id]
		if c == nil || c.BlockType != docanalysis.BlockTypeCell {
			continue
		}
		byRow[c.RowIndex] = append(byRow[c.RowIndex], c)
	}

	rowIndexes := make([]int, 0, len(byRow))
	for idx := range byRow {
		rowIndexes = append(rowIndexes, idx)
	}
	sort.Ints(rowIndexes)

	rows := make([][]*docanalysis.Block, 0, len(rowIndexes))
	for _, idx := range rowIndexes {
		row := byRow[idx]
		sort.SliceStable(row, func(a, b int) bool { return row[a].ColumnIndex < row[b].ColumnIndex })
		rows = append(rows, row)
	}
	return rows
}

// rowToItem classifies one table row. A row is a line item when its first
// cell reads as a description (non-numeric text) and its last cell parses as
// an amount. Header rows fail the last-cell check naturally ("Amount" is not
// a number). Middle columns:
//
//	2 cells: description, total
//	3 cells: description, quantity or unit price, total
//	4+ cells: description, quantity, unit price, total
func (e *Extractor) rowToItem(g *graph, row []*docanalysis.Block) (model.LineItem, bool) {
	if len(row) < 2 {
		return model.LineItem{}, false
	}

	desc := strings.TrimSpace(g.text(row[0]))
	if desc == "" {
		return model.LineItem{}, false
	}
	if _, numeric := ParseAmount(desc); numeric {
		return model.LineItem{}, false
	}

	total, ok := ParseAmount(g.text(row[len(row)-1]))
	if !ok {
		return model.LineItem{}, false
	}

	item := model.LineItem{Description: desc, LineTotal: total}
	contributors := []string{row[0].ID, row[len(row)-1].ID}

	switch {
	case len(row) == 3:
		midText := g.text(row[1])
		if v, ok := ParseAmount(midText); ok {
			// A bare small integer reads as a count; anything with a
			// decimal mark reads as a price.
			if v == math.Trunc(v) && v > 0 && v < 1000 && !strings.ContainsAny(midText, ".,") {
				item.Quantity = &v
			} else {
				item.UnitPrice = &v
			}
			contributors = append(contributors, row[1].ID)
		}
	case len(row) >= 4:
		if v, ok := ParseAmount(g.text(row[1])); ok {
			item.Quantity = &v
			contributors = append(contributors, row[1].ID)
		}
		if v, ok := ParseAmount(g.text(row[2])); ok {
			item.UnitPrice = &v
			contributors = append(contributors, row[2].ID)
		}
	}

	item.Confidence = g.minConfidence(contributors...)
	return item, true
}

// fallbackMerchant fills the merchant from page text when FORMS gave
// nothing: the topmost LINE band, then highest confidence, then payload
// order. Lines that read as amounts, dates, or known labels never qualify;
// "TOTAL" printed in a big font is still not a store name.
func (e *Extractor) fallbackMerchant(g *graph, r *model.Receipt) {
	type lineCand struct {
		block *docanalysis.Block
		top   float64
	}
	var cands []lineCand

	for i := range g.order {
		b := &g.order[i]
		if b.BlockType != docanalysis.BlockTypeLine {
			continue
		}
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		if _, numeric := ParseAmount(text); numeric {
			continue
		}
		normalized := NormalizeKey(text)
		if _, isLabel := e.labels.Exact(normalized); isLabel {
			continue
		}
		if LooksLikeDate(text) {
			continue
		}
		top := math.MaxFloat64
		if b.Geometry != nil {
			top = b.Geometry.BoundingBox.Top
		}
		cands = append(cands, lineCand{block: b, top: top})
	}
	if len(cands) == 0 {
		return
	}

	minTop := cands[0].top
	for _, c := range cands[1:] {
		if c.top < minTop {
			minTop = c.top
		}
	}

	// Everything within a narrow band of the topmost line competes; the
	// band absorbs slight skew in photographed receipts.
	const band = 0.05
	var winner *docanalysis.Block
	for _, c := range cands {
		if c.top > minTop+band {
			continue
		}
		if winner == nil || c.block.Confidence > winner.Confidence {
			winner = c.block
		}
	}
	if winner == nil {
		winner = cands[0].block
	}

	r.Merchant = &model.TextField{
		Value:        strings.TrimSpace(winner.Text),
		Confidence:   winner.Confidence,
		SourceBlocks: []string{winner.ID},
	}
}
