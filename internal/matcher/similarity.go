package matcher

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/hbollon/go-edlib"
	textlev "github.com/texttheater/golang-levenshtein/levenshtein"
)

// Similarity returns the similarity of a and b in [0,1] under algo. Equal
// strings score 1 and an empty side scores 0; the algorithms disagree on
// those edges otherwise.
func Similarity(a, b string, algo Algorithm) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	switch algo {
	case AlgorithmLevenshtein:
		return levenshteinSimilarity(a, b)
	case AlgorithmRatio:
		return textlev.RatioForStrings([]rune(a), []rune(b), textlev.DefaultOptions)
	}

	score, err := edlib.StringsSimilarity(a, b, edlibAlgorithm(algo))
	if err != nil {
		return 0.0
	}
	return clamp(float64(score))
}

func edlibAlgorithm(algo Algorithm) edlib.Algorithm {
	switch algo {
	case AlgorithmDamerau:
		return edlib.DamerauLevenshtein
	case AlgorithmJaroWinkler:
		return edlib.JaroWinkler
	default:
		return edlib.OSADamerauLevenshtein
	}
}

// levenshteinSimilarity normalizes rune edit distance by the longer string
func levenshteinSimilarity(a, b string) float64 {
	distance := levenshtein.ComputeDistance(a, b)
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	return clamp(1.0 - float64(distance)/float64(maxLen))
}

func clamp(v float64) float64 {
	switch {
	case v < 0.0:
		return 0.0
	case v > 1.0:
		return 1.0
	default:
		return v
	}
}
