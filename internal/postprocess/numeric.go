package postprocess

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedNumber preserves the original string alongside the parsed
// value.
type ParsedNumber struct {
	Raw   string
	Value float64
	OK    bool
}

var numericCharsRe = regexp.MustCompile(`[^0-9.,\-]`)

// ParseNumeric tolerates thousands separators and either comma or
// period as the decimal marker, following a single reusable rule:
//
//   - strip anything that isn't a digit, separator, or leading '-'
//   - if both ',' and '.' appear, the rightmost one is the decimal
//     marker and the other is a thousands separator
//   - if only one separator kind appears and it's followed by exactly
//     three digits everywhere, treat it as a thousands separator;
//     otherwise treat it as the decimal marker
func ParseNumeric(raw string) ParsedNumber {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParsedNumber{Raw: raw, OK: false}
	}

	cleaned := numericCharsRe.ReplaceAllString(trimmed, "")
	if cleaned == "" {
		return ParsedNumber{Raw: raw, OK: false}
	}

	normalized := normalizeSeparators(cleaned)
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return ParsedNumber{Raw: raw, OK: false}
	}
	return ParsedNumber{Raw: raw, Value: value, OK: true}
}

func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the rightmost is the decimal marker.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s[:lastComma], ".", "") + "." + s[lastComma+1:]
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s[:lastDot], ",", "") + "." + s[lastDot+1:]
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Only commas: thousands separators when every group after the
		// first has exactly three digits (see looksLikeThousands), else
		// the comma is the decimal marker.
		if looksLikeThousands(s, lastComma, ',') {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	case lastDot >= 0:
		if looksLikeThousands(s, lastDot, '.') {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

// looksLikeThousands reports whether every group separated by sep has
// exactly three digits (classic thousands grouping, e.g. "21,919,970"
// or "1.234.567") — the tell that sep is a grouping character rather
// than the decimal marker.
func looksLikeThousands(s string, lastIdx int, sep byte) bool {
	groups := strings.Split(s, string(sep))
	if len(groups) < 2 {
		return false
	}
	for i, g := range groups {
		if i == 0 {
			continue
		}
		if len(g) != 3 {
			return false
		}
	}
	// A trailing group of exactly 3 is ambiguous with a decimal value
	// like "1,234" (could be 1234 or 1.234). Treat it as thousands only
	// when there's more than one group, i.e. true grouping was used.
	return len(groups) > 2 || len(groups[len(groups)-1]) == 3 && len(groups[0]) <= 3 && lastIdx == strings.LastIndex(s, string(sep))
}
