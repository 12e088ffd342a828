// Package tokenizer turns raw search input into normalized search tokens.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MinTokenLength is the shortest token kept by Tokenize
const MinTokenLength = 2

// Options tune tokenization for stricter callers
type Options struct {
	MinLength int // Minimum token length in runes (default MinTokenLength)

	// AllowSingleDigit keeps a lone digit when the whole query is that digit
	AllowSingleDigit bool
}

// Normalize applies NFKC, lowercases, trims and collapses inner whitespace
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize splits a query into lowercase tokens of at least MinTokenLength runes
func Tokenize(query string) []string {
	return TokenizeWith(query, Options{})
}

// TokenizeWith splits a query using explicit options. Tokens are split on
// whitespace and punctuation, deduplicated and returned in query order.
func TokenizeWith(query string, opts Options) []string {
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = MinTokenLength
	}

	normalized := Normalize(query)
	if normalized == "" {
		return nil
	}

	if opts.AllowSingleDigit && utf8.RuneCountInString(normalized) == 1 && IsNumeric(normalized) {
		return []string{normalized}
	}

	fields := strings.FieldsFunc(normalized, isSeparator)
	tokens := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minLen {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// IsNumeric reports whether s is non-empty and made only of ASCII digits,
// the shape of a scanned barcode
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
