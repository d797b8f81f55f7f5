// Package validate checks an extracted receipt for arithmetic and
// structural consistency. It is advisory only: warnings are attached, data
// is never corrected or discarded, and no input fails validation.
package validate

import (
	"math"

	"github.com/tabsplit/receipt-scan/internal/model"
)

// Config controls validation behavior.
type Config struct {
	// Tolerance is the absolute slack allowed between subtotal+tax+tip and
	// total before an arithmetic mismatch is flagged. Receipts round each
	// component independently, so exact equality is too strict.
	Tolerance float64
}

// DefaultConfig tolerates two cents of rounding drift.
func DefaultConfig() Config {
	return Config{Tolerance: 0.02}
}

// Validator applies the consistency checks.
type Validator struct {
	tolerance float64
}

// New builds a Validator. Negative tolerances collapse to zero.
func New(cfg Config) *Validator {
	tol := cfg.Tolerance
	if tol < 0 {
		tol = 0
	}
	return &Validator{tolerance: tol}
}

// Check recomputes the receipt's warning set from its current field values
// and returns the same receipt. Calling it twice is safe; warnings are
// replaced, not accumulated. Numeric fields are never touched.
//
// The arithmetic check needs all four of subtotal, tax, tip, and total: an
// absent component makes the sum unknowable, not wrong, so the check is
// skipped rather than failed.
func (v *Validator) Check(r *model.Receipt) *model.Receipt {
	if r == nil {
		return nil
	}

	warnings := []model.Warning{}

	if r.Subtotal != nil && r.Tax != nil && r.Tip != nil && r.Total != nil {
		sum := r.Subtotal.Value + r.Tax.Value + r.Tip.Value
		if math.Abs(sum-r.Total.Value) > v.tolerance {
			warnings = append(warnings, model.WarningArithmeticMismatch)
		}
	}

	if r.Total == nil {
		warnings = append(warnings, model.WarningMissingTotal)
	}

	if len(r.Items) == 0 && (r.Subtotal != nil || r.Total != nil) {
		warnings = append(warnings, model.WarningNoLineItems)
	}

	r.Warnings = warnings
	return r
}
