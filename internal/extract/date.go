package extract

import (
	"strings"
	"time"
)

// dateFormats lists the layouts receipts actually print, US conventions
// first. Order matters: the first layout that parses wins, so "03/04/2024"
// reads as March 4th, not April 3rd.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"02/01/2006",
	"01.02.2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"20060102",
}

// NormalizeDate rewrites recognizable date text to ISO 2006-01-02 form. Text
// that parses under no known layout is returned verbatim; a wrong guess is
// worse than an unparsed one.
func NormalizeDate(s string) string {
	if iso, ok := parseDate(s); ok {
		return iso
	}
	return s
}

// LooksLikeDate reports whether the text parses under any known layout.
func LooksLikeDate(s string) bool {
	_, ok := parseDate(s)
	return ok
}

func parseDate(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", false
	}

	if iso, ok := tryFormats(t); ok {
		return iso, true
	}

	// Receipts often append a time ("07/15/2024 14:23:05"). Retry with the
	// leading token only.
	if i := strings.IndexAny(t, " \t"); i > 0 {
		if iso, ok := tryFormats(t[:i]); ok {
			return iso, true
		}
	}

	return "", false
}

func tryFormats(t string) (string, bool) {
	for _, layout := range dateFormats {
		if parsed, err := time.Parse(layout, t); err == nil {
			return parsed.Format("2006-01-02"), true
		}
	}
	return "", false
}
