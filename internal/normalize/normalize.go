// Package normalize canonicalizes free-text names before they are compared.
//
// Every function in this package is total: malformed input degrades to a
// best-effort ASCII rendition and never produces an error. The functions form
// a ladder, each building on the previous one:
//
//	Repair    fixes mis-decoded punctuation and drops invalid UTF-8
//	Fold      transliterates to ASCII (ö→o, ß→ss)
//	Clean     Repair + Fold + whitespace collapse, case preserved
//	Normalize Clean + lowercase + edge punctuation stripped
//	Compact   Normalize with all whitespace removed
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// mojibakeReplacer maps UTF-8 text that was decoded as CP1252 back to the
// intended characters. Longer sequences are listed before their prefixes.
var mojibakeReplacer = strings.NewReplacer(
	"â€™", "'",
	"â€˜", "'",
	"â€œ", `"`,
	"â€\u009d", `"`,
	"â€“", "-",
	"â€”", "-",
	"â€¦", "...",
	"â€", `"`,
	"Ã©", "é",
	"Ã¨", "è",
	"Ã¡", "á",
	"Ã\u00a0", "à",
	"Ã¶", "ö",
	"Ã¼", "ü",
	"Ã¤", "ä",
	"Ã¥", "å",
	"Ã¸", "ø",
	"Ã§", "ç",
	"Ã±", "ñ",
	"Ã³", "ó",
	"Ã­", "í",
	"Ãº", "ú",
	"Ã–", "Ö",
	"Ãœ", "Ü",
	"Ã„", "Ä",
	"Ã…", "Å",
	"ÃŸ", "ß",
	"Â\u00a0", " ",
	"Â", "",
)

var punctuationReplacer = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"‚", "'",
	"‛", "'",
	"′", "'",
	"`", "'",
	"´", "'",
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"«", `"`,
	"»", `"`,
	"‐", "-",
	"‑", "-",
	"‒", "-",
	"–", "-",
	"—", "-",
	"―", "-",
	"−", "-",
	"…", "...",
	"\u00a0", " ",
	"\u2007", " ",
	"\u202f", " ",
	"\u200b", "",
	"\ufeff", "",
)

// letters that do not decompose under NFKD
var specialFolds = map[rune]string{
	'ß': "ss",
	'ẞ': "SS",
	'æ': "ae",
	'Æ': "AE",
	'ø': "o",
	'Ø': "O",
	'œ': "oe",
	'Œ': "OE",
	'đ': "d",
	'Đ': "D",
	'ł': "l",
	'Ł': "L",
	'þ': "th",
	'Þ': "TH",
	'ð': "d",
	'Ð': "D",
	'ı': "i",
}

// edge separators trimmed by Clean
const cleanCutset = " ,;/|"

// Repair drops invalid UTF-8 and maps mis-decoded and typographic
// punctuation to its ASCII equivalent.
func Repair(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = mojibakeReplacer.Replace(s)
	return punctuationReplacer.Replace(s)
}

// Fold transliterates s to ASCII. Combining marks are stripped after
// compatibility decomposition; characters with no ASCII rendition are dropped.
func Fold(s string) string {
	// transformers carry state, so the chain is built per call
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII:
			b.WriteRune(r)
		case specialFolds[r] != "":
			b.WriteString(specialFolds[r])
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Clean repairs, folds and collapses whitespace while preserving case and
// brackets. It is the display form of a name.
func Clean(s string) string {
	s = Fold(Repair(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, cleanCutset)
}

// Normalize returns the comparison form of a name: cleaned, lowercased, with
// leading and trailing punctuation removed. Internal apostrophes survive.
func Normalize(s string) string {
	s = strings.ToLower(Clean(s))
	s = trimEdgePunctuation(s)
	return strings.TrimSpace(s)
}

// Compact returns Normalize(s) with every space removed.
func Compact(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "")
}

// Key is the lookup key for exact, case-insensitive name equality.
func Key(s string) string {
	return Normalize(s)
}

func trimEdgePunctuation(s string) string {
	for {
		before := s
		s = strings.TrimLeftFunc(s, func(r rune) bool {
			return isEdgePunct(r) && r != '(' && r != '['
		})
		s = strings.TrimRightFunc(s, func(r rune) bool {
			return isEdgePunct(r) && r != ')' && r != ']'
		})
		s = trimUnbalanced(s)
		s = strings.TrimSpace(s)
		if s == before {
			return s
		}
	}
}

// trimUnbalanced removes a leading opener or trailing closer that has no partner
func trimUnbalanced(s string) string {
	pairs := map[byte]byte{'(': ')', '[': ']'}
	for opener, closer := range pairs {
		if len(s) > 0 && s[0] == opener && strings.Count(s, string(opener)) > strings.Count(s, string(closer)) {
			s = s[1:]
		}
		if len(s) > 0 && s[len(s)-1] == closer && strings.Count(s, string(closer)) > strings.Count(s, string(opener)) {
			s = s[:len(s)-1]
		}
	}
	return s
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// Tokens splits the normalized form of s into words. Punctuation other than
// apostrophes separates words.
func Tokens(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return r != '\'' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Alnum returns only the letters and digits of the normalized form of s.
// A name with an empty Alnum carries no identity.
func Alnum(s string) string {
	var b strings.Builder
	for _, r := range Normalize(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
