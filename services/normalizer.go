package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultStopwords are articles and prepositions dropped before the
// token-subset comparison. Tokens below Lexicon.MinTokenLen are dropped
// anyway, so only longer function words need listing.
var DefaultStopwords = []string{
	// pt
	"o", "a", "os", "as", "um", "uma", "uns", "umas",
	"de", "da", "do", "das", "dos", "em", "na", "no", "nas", "nos",
	"por", "para", "pra", "com", "sem", "sob", "sobre", "entre", "ate",
	"pelo", "pela", "pelos", "pelas", "num", "numa", "e", "ou",
	// es
	"el", "la", "los", "las", "del", "al", "unos", "unas", "con", "y",
	// en
	"the", "an", "of", "for", "with", "and", "from", "into", "onto", "to", "in", "on",
}

// Lexicon is the data the token-subset rule depends on.
type Lexicon struct {
	Stopwords    map[string]struct{}
	MinTokenLen  int // shorter tokens are dropped
	PluralMinLen int // a trailing "s" is folded from tokens at least this long
}

// NewLexicon builds a lexicon; a nil stopword list selects DefaultStopwords
// and non-positive lengths select 3 and 4.
func NewLexicon(stopwords []string, minTokenLen, pluralMinLen int) Lexicon {
	if stopwords == nil {
		stopwords = DefaultStopwords
	}
	if minTokenLen <= 0 {
		minTokenLen = 3
	}
	if pluralMinLen <= 0 {
		pluralMinLen = 4
	}
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		if w = Normalize(w); w != "" {
			set[w] = struct{}{}
		}
	}
	return Lexicon{Stopwords: set, MinTokenLen: minTokenLen, PluralMinLen: pluralMinLen}
}

// Fingerprint identifies the lexicon's content, so verdicts cached under
// one stopword list are not served under another.
func (l Lexicon) Fingerprint() string {
	words := make([]string, 0, len(l.Stopwords))
	for w := range l.Stopwords {
		words = append(words, w)
	}
	sort.Strings(words)
	h := sha256.New()
	fmt.Fprintf(h, "%d/%d/%s", l.MinTokenLen, l.PluralMinLen, strings.Join(words, ","))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func DefaultLexicon() Lexicon {
	return NewLexicon(nil, 0, 0)
}

// Normalize lowercases, strips diacritics and punctuation and collapses
// whitespace. Punctuation becomes a word break so "coca-cola" and
// "coca cola" normalize alike.
func Normalize(s string) string {
	s = cases.Lower(language.Und).String(s)

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	// letters with no decomposition (ß, ø, æ, ł...)
	s = strings.ToLower(unidecode.Unidecode(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits an already normalized string into comparison tokens.
func (l Lexicon) Tokens(normalized string) []string {
	var out []string
	for _, tok := range strings.Fields(normalized) {
		if _, stop := l.Stopwords[tok]; stop {
			continue
		}
		if len(tok) < l.MinTokenLen {
			continue
		}
		if len(tok) >= l.PluralMinLen && strings.HasSuffix(tok, "s") {
			tok = strings.TrimSuffix(tok, "s")
		}
		out = append(out, tok)
	}
	return out
}

// SubsetMatch reports whether every guess token appears among the answer
// tokens. It is false when the guess has no tokens at all.
func (l Lexicon) SubsetMatch(normalizedGuess, normalizedAnswer string) bool {
	guessTokens := l.Tokens(normalizedGuess)
	if len(guessTokens) == 0 {
		return false
	}
	answer := make(map[string]struct{})
	for _, tok := range l.Tokens(normalizedAnswer) {
		answer[tok] = struct{}{}
	}
	for _, tok := range guessTokens {
		if _, ok := answer[tok]; !ok {
			return false
		}
	}
	return true
}
