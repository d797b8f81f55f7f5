package extract

import (
	"strconv"
	"strings"
)

var currencyCodes = map[string]struct{}{
	"usd": {}, "eur": {}, "gbp": {}, "cad": {}, "aud": {}, "nzd": {},
	"chf": {}, "jpy": {}, "mxn": {}, "rs": {}, "inr": {},
}

func isCurrencySymbol(r rune) bool {
	switch r {
	case '$', '€', '£', '¥', '₹', '¢':
		return true
	}
	return false
}

// ParseAmount parses monetary text the way receipts print it: optional
// currency symbols or codes, thousands separators (comma, point, apostrophe
// or space) and either comma or point as the decimal mark. Parenthesized
// amounts are negative. Returns false for anything that is not recognizably
// an amount, including text with leftover letters, so "2x Burger" never
// passes as a number.
func ParseAmount(s string) (float64, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") && len(t) > 2 {
		neg = true
		t = t[1 : len(t)-1]
	}

	t = strings.Map(func(r rune) rune {
		if isCurrencySymbol(r) {
			return ' '
		}
		return r
	}, t)

	// Standalone currency codes ("USD 45.00", "45.00 eur").
	fields := strings.Fields(t)
	kept := fields[:0]
	for _, f := range fields {
		if _, ok := currencyCodes[f]; ok {
			continue
		}
		kept = append(kept, f)
	}
	// Collapsing all remaining spaces also absorbs thin-space thousands
	// grouping ("1 234,56").
	t = strings.Join(kept, "")

	if strings.HasPrefix(t, "-") {
		neg = true
		t = t[1:]
	}

	if t == "" {
		return 0, false
	}
	digits := 0
	for _, r := range t {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',' || r == '\'':
		default:
			return 0, false
		}
	}
	if digits == 0 {
		return 0, false
	}

	t = strings.ReplaceAll(t, "'", "")
	t = normalizeSeparators(t)

	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// normalizeSeparators rewrites mixed comma/point numerals into plain "1234.56"
// form. When both separators appear, the one further right is the decimal
// mark. A lone comma is a decimal mark unless it reads like a thousands
// group ("1,234"); a lone point is always a decimal mark.
func normalizeSeparators(t string) string {
	lastDot := strings.LastIndex(t, ".")
	lastComma := strings.LastIndex(t, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// European: points group thousands, comma is decimal.
			t = strings.ReplaceAll(t, ".", "")
			t = strings.Replace(t, ",", ".", -1)
		} else {
			t = strings.ReplaceAll(t, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(t, ",") == 1 && len(t)-lastComma-1 == 3 && lastComma > 0 {
			// "1,234" reads as a thousands group.
			t = strings.ReplaceAll(t, ",", "")
		} else if strings.Count(t, ",") > 1 {
			t = strings.ReplaceAll(t, ",", "")
		} else {
			t = strings.Replace(t, ",", ".", 1)
		}
	case strings.Count(t, ".") > 1:
		if len(t)-lastDot-1 == 3 {
			// "1.234.567": uniform three-digit groups are thousands.
			t = strings.ReplaceAll(t, ".", "")
		} else {
			// "1.234.56": keep the last point as the decimal mark.
			t = strings.Replace(t, ".", "", strings.Count(t, ".")-1)
		}
	}
	return t
}
