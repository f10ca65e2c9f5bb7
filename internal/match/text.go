package match

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Similarity scores how alike two normalized descriptions are, in [0, 1].
// It takes the better of token overlap and edit-distance ratio: token
// overlap handles reordered bank narratives ("acme gmbh berlin" vs "berlin
// acme gmbh"), the edit ratio handles OCR noise within tokens.
func Similarity(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	overlap := tokenOverlap(a, b)
	ratio := levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)

	if overlap > ratio {
		return overlap
	}
	return ratio
}

// tokenOverlap computes the Sørensen–Dice coefficient over whitespace
// tokens, ignoring very short noise tokens.
func tokenOverlap(a, b string) float64 {
	tokensA := significantTokens(a)
	tokensB := significantTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(tokensA))
	for _, tok := range tokensA {
		setA[tok] = struct{}{}
	}

	shared := 0
	seen := make(map[string]struct{}, len(tokensB))
	for _, tok := range tokensB {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := setA[tok]; ok {
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(setA)+len(seen))
}

func significantTokens(s string) []string {
	fields := strings.Fields(s)
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// merchantPatternHit reports whether any configured recurring-payee token
// appears in both texts. Used for the capped scoring bonus.
func merchantPatternHit(patterns []string, a, b string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.Contains(a, p) && strings.Contains(b, p) {
			return true
		}
	}
	return false
}
