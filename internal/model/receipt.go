package model

// Warning flags a plausible but unconfirmed data-quality issue found during
// validation. Warnings are advisory; they never suppress or correct fields.
type Warning string

const (
	// WarningArithmeticMismatch fires when subtotal, tax, tip, and total are
	// all present but subtotal+tax+tip differs from total beyond tolerance.
	WarningArithmeticMismatch Warning = "ArithmeticMismatch"
	// WarningMissingTotal fires when no total field was extracted.
	WarningMissingTotal Warning = "MissingTotal"
	// WarningNoLineItems fires when no line items were extracted even though
	// a subtotal or total was found, which usually means table detection
	// failed on a receipt that clearly has purchases.
	WarningNoLineItems Warning = "NoLineItems"
)

// TextField is an extracted textual value. Confidence is the minimum among
// the blocks that contributed the value: one corrupted block taints the field.
type TextField struct {
	Value        string   `json:"value"`
	Confidence   float64  `json:"confidence"`
	SourceBlocks []string `json:"source_block_ids,omitempty"`
}

// MoneyField is an extracted monetary amount with the same conservative
// confidence rule as TextField.
type MoneyField struct {
	Value        float64  `json:"value"`
	Confidence   float64  `json:"confidence"`
	SourceBlocks []string `json:"source_block_ids,omitempty"`
}

// LineItem is one purchased item row. Quantity and UnitPrice are only set
// when the source table had recognizable columns for them.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	LineTotal   float64  `json:"line_total"`
	Confidence  float64  `json:"confidence"`
}

// Receipt is the structured output handed to the splitting layer. Every
// field is optional because extraction is best-effort: a sparse receipt with
// warnings beats no receipt. Items preserve top-to-bottom print order.
type Receipt struct {
	Merchant *TextField  `json:"merchant,omitempty"`
	Date     *TextField  `json:"date,omitempty"`
	Items    []LineItem  `json:"items"`
	Subtotal *MoneyField `json:"subtotal,omitempty"`
	Tax      *MoneyField `json:"tax,omitempty"`
	Tip      *MoneyField `json:"tip,omitempty"`
	Total    *MoneyField `json:"total,omitempty"`
	Warnings []Warning   `json:"warnings"`
}

// HasWarning reports whether w was recorded on the receipt.
func (r *Receipt) HasWarning(w Warning) bool {
	for _, got := range r.Warnings {
		if got == w {
			return true
		}
	}
	return false
}
