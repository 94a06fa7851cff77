package textutil

import (
	"regexp"
	"strconv"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeHeader canonicalizes a column header for matching purposes:
// lowercased with all whitespace removed, so "Curb Weight", "curb weight"
// and "CurbWeight" collapse to the same key.
func NormalizeHeader(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchHeader(name string, matchers []string) bool {
	name = NormalizeHeader(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

var nonNumericRegex = regexp.MustCompile(`[^0-9.]`)

// Numeric coerces a cell value like "$45,210", "1,234.5 lb" or "177 hp"
// into a float. Returns false for blanks and values with no usable digits.
func Numeric(value string) (float64, bool) {
	cleaned := nonNumericRegex.ReplaceAllString(value, "")
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
