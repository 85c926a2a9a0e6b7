// Package company normalizes tax ids and names for lookup, and
// resolves a party to a deduplicated Company row without ever
// clobbering a known attribute with a blank one. Normalization is
// script-agnostic: digits are extracted from tax ids and names are
// folded and collapsed regardless of source language.
package company

import (
	"regexp"
	"strings"
)

var digitRunRe = regexp.MustCompile(`[0-9]+`)

// NormalizeTaxID reduces a raw tax-id string to its longest contiguous
// digit run; an all-non-digit string normalizes to "". Example:
// "код за ЄДРПОУ 37483556" -> "37483556".
func NormalizeTaxID(raw string) string {
	runs := digitRunRe.FindAllString(raw, -1)
	longest := ""
	for _, r := range runs {
		if len(r) > len(longest) {
			longest = r
		}
	}
	return longest
}

var punctTrimRe = regexp.MustCompile(`^[\p{P}\s]+|[\p{P}\s]+$`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeCompanyName strips surrounding punctuation, collapses
// internal whitespace, and case-folds, for lookup only — the result
// is never written back as the canonical stored name.
func NormalizeCompanyName(raw string) string {
	s := punctTrimRe.ReplaceAllString(raw, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
