package typoutil

import "unicode/utf8"

// DamerauLevenshteinDistance computes the Damerau-Levenshtein (optimal string alignment) distance,
// which also counts a transposition of two adjacent runes as a single edit.
func DamerauLevenshteinDistance(a, b string) int {
	return DamerauLevenshteinDistanceWithLimit(a, b, -1)
}

// DamerauLevenshteinDistanceWithLimit is DamerauLevenshteinDistance with early termination.
// Returns maxDistance + 1 as soon as the distance is known to exceed maxDistance.
// A negative maxDistance disables the limit.
func DamerauLevenshteinDistanceWithLimit(a, b string, maxDistance int) int {
	runesA := []rune(a)
	runesB := []rune(b)
	lenA, lenB := len(runesA), len(runesB)
	limited := maxDistance >= 0

	// Early termination: if length difference > maxDistance, return early
	if limited && abs(lenA-lenB) > maxDistance {
		return maxDistance + 1
	}
	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	// Three rows: transpositions look two rows back.
	prevPrevRow := make([]int, lenB+1)
	prevRow := make([]int, lenB+1)
	currRow := make([]int, lenB+1)
	for j := 0; j <= lenB; j++ {
		prevRow[j] = j
	}

	for i := 1; i <= lenA; i++ {
		currRow[0] = i
		minInRow := i

		for j := 1; j <= lenB; j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}
			currRow[j] = min(prevRow[j]+1, currRow[j-1]+1, prevRow[j-1]+cost)

			if i > 1 && j > 1 && runesA[i-1] == runesB[j-2] && runesA[i-2] == runesB[j-1] {
				currRow[j] = min(currRow[j], prevPrevRow[j-2]+cost)
			}
			minInRow = min(minInRow, currRow[j])
		}

		if limited && minInRow > maxDistance {
			return maxDistance + 1
		}
		prevPrevRow, prevRow, currRow = prevRow, currRow, prevPrevRow
	}

	if limited && prevRow[lenB] > maxDistance {
		return maxDistance + 1
	}
	return prevRow[lenB]
}

// SimilarityThreshold returns the minimum similarity an edit-distance match needs for a token of
// tokenLen runes: 1 - 2/len for short tokens, never below longMin for tokens longer than shortLen.
func SimilarityThreshold(tokenLen, shortLen int, longMin float64) float64 {
	if tokenLen <= 0 {
		return 1
	}
	threshold := 1 - 2/float64(tokenLen)
	if tokenLen > shortLen && threshold < longMin {
		threshold = longMin
	}
	return threshold
}

// MaxDistanceFor converts a similarity threshold back into the largest edit distance that can still
// satisfy it, so callers can run the limited distance computation.
func MaxDistanceFor(threshold float64, a, b string) int {
	return MaxDistanceForLength(threshold, max(utf8.RuneCountInString(a), utf8.RuneCountInString(b)))
}

// MaxDistanceForLength is MaxDistanceFor when only the longer rune length is known.
func MaxDistanceForLength(threshold float64, maxLen int) int {
	if maxLen <= 0 {
		return 0
	}
	d := int((1 - threshold) * float64(maxLen))
	// guard against 0.9999... rounding
	if 1-float64(d+1)/float64(maxLen) >= threshold-1e-9 {
		d++
	}
	return d
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
