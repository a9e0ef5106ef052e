// Package tokenizer turns raw text into normalized tokens shared by indexing and querying.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/gcbaptista/entity-search/model"
)

// isWordRune reports whether r can be part of a token. Combining marks are kept so that
// decomposed accents stay attached to their base letter until folding.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.In(r, unicode.Mn, unicode.Mc)
}

// isJoiner reports whether r may sit inside a token (BRK.B, S&P, P/E, O'Neil, 3.14).
// A joiner is only kept when it is flanked by word runes on both sides.
func isJoiner(r rune) bool {
	switch r {
	case '.', '&', '/', '\'', '’':
		return true
	}
	return false
}

// span is a raw token position in the scanned text.
type span struct {
	start, end int
}

// scan splits text into raw token spans. Runs of joiners or joiners at token edges split tokens;
// a '%' directly after a digit stays attached ("15%").
func scan(text string) []span {
	var spans []span
	start := -1
	lastDigit := false

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])

		switch {
		case isWordRune(r):
			if start < 0 {
				start = i
			}
			lastDigit = unicode.IsDigit(r)
			i += size
			continue

		case start >= 0 && isJoiner(r) && i+size < len(text):
			next, _ := utf8.DecodeRuneInString(text[i+size:])
			if isWordRune(next) {
				i += size
				continue
			}

		case start >= 0 && r == '%' && lastDigit:
			spans = append(spans, span{start, i + size})
			start = -1
			i += size
			continue
		}

		if start >= 0 {
			spans = append(spans, span{start, i})
			start = -1
		}
		i += size
	}

	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

func newFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// fold lowercases s and removes diacritics ("Société" -> "societe").
func fold(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "’", "'")
	if isASCII(s) {
		return s
	}
	// transformers carry state, so each call gets its own chain
	folded, _, err := transform.String(newFolder(), s)
	if err != nil {
		return s
	}
	return folded
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// normalizeRaw folds a raw token and re-splits it, so every produced token is a fixed point
// of the tokenizer.
func normalizeRaw(raw string) []string {
	folded := fold(raw)
	spans := scan(folded)
	if len(spans) == 1 && spans[0].start == 0 && spans[0].end == len(folded) {
		return []string{folded}
	}
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, folded[sp.start:sp.end])
	}
	return out
}

// Tokenize converts a string into a slice of normalized tokens.
// It never fails, and Tokenize(strings.Join(Tokenize(s), " ")) equals Tokenize(s).
func Tokenize(text string) []string {
	tokens := make([]string, 0) // Initialize as empty slice, not nil
	for _, sp := range scan(text) {
		tokens = append(tokens, normalizeRaw(text[sp.start:sp.end])...)
	}
	return tokens
}

// Analyze tokenizes the text of one field, keeping surface forms, positions and byte offsets
// into text.
func Analyze(field, text string) []model.Token {
	tokens := make([]model.Token, 0)
	for _, sp := range scan(text) {
		raw := text[sp.start:sp.end]
		for _, t := range normalizeRaw(raw) {
			tokens = append(tokens, model.Token{
				Text:     t,
				Raw:      raw,
				Field:    field,
				Position: len(tokens),
				Start:    sp.start,
				End:      sp.end,
			})
		}
	}
	return tokens
}

// Normalize returns the canonical form of s, used as a deduplication key.
func Normalize(s string) string {
	return strings.Join(Tokenize(s), " ")
}

// Variations returns alternate forms of a normalized token: joiner-stripped and naive singular
// forms. The token itself is never included.
func Variations(token string) []string {
	seen := map[string]struct{}{token: {}}
	var out []string
	add := func(v string) {
		if len(v) < 2 {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	base := token
	if strings.HasSuffix(base, "'s") {
		base = strings.TrimSuffix(base, "'s")
		add(base)
	}

	stripped := strings.Map(func(r rune) rune {
		if isJoiner(r) {
			return -1
		}
		return r
	}, base)
	add(stripped)

	add(singular(stripped))
	return out
}

// singular strips common English plural endings. It is deliberately naive.
func singular(s string) string {
	switch {
	case len(s) <= 3:
		return s
	case strings.HasSuffix(s, "ies"):
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "sses"), strings.HasSuffix(s, "xes"), strings.HasSuffix(s, "ches"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "ss"), strings.HasSuffix(s, "us"), strings.HasSuffix(s, "is"):
		return s
	case strings.HasSuffix(s, "s"):
		return s[:len(s)-1]
	}
	return s
}
