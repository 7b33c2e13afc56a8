package connector

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var tokenExpr = regexp.MustCompile(`[a-z0-9]+`)

// tokenSet lowercases and splits text into a deduplicated word set,
// the shape jaccardSimilarity compares.
func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range tokenExpr.FindAllString(strings.ToLower(text), -1) {
		set[tok] = struct{}{}
	}
	return set
}

// jaccardSimilarity is |A ∩ B| / |A ∪ B| over token sets. No pack
// dependency covers set similarity, so this is hand-rolled — the
// companion to the ecosystem levenshtein pick used for fuzzy search.
func jaccardSimilarity(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
