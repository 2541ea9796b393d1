// Package transcript corrects speech-to-text output against a user supplied
// vocabulary before it is synthesized.
//
// Recognisers built for everyday speech routinely mishear proper nouns such
// as names, places and product words. The [Corrector] slides a window over
// the transcript and replaces each span that sounds like a vocabulary term
// with the term's canonical spelling.
//
// Matching runs in two stages:
//
//  1. Phonetic candidates: Double Metaphone codes of the space-stripped span
//     and term are compared. A shared code makes the term a phonetic
//     candidate, accepted when its Jaro-Winkler similarity reaches the
//     phonetic threshold (default 0.70).
//  2. Fuzzy fallback: without a phonetic candidate, pure Jaro-Winkler
//     similarity is tested against the stricter fuzzy threshold (default
//     0.85).
//
// Everything runs in process; a [Corrector] is read-only after construction
// and safe for concurrent use.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minSpanRunes keeps articles and interjections from being matched.
	minSpanRunes = 3

	// minLengthRatio skips terms much longer or shorter than the span.
	minLengthRatio = 0.6
)

// Option is a functional option for [New].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching term. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that
// does not share a phonetic code with the span. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// term is one vocabulary entry with its comparison keys computed once.
type term struct {
	text  string
	key   string
	runes int
	words int
	codes [2]string
}

func newTerm(s string) (term, bool) {
	s = strings.Join(strings.Fields(s), " ")
	key := normalize(s)
	if key == "" {
		return term{}, false
	}
	t := term{
		text:  s,
		key:   key,
		runes: utf8.RuneCountInString(key),
		words: len(strings.Fields(s)),
	}
	t.codes[0], t.codes[1] = matchr.DoubleMetaphone(key)
	return t, true
}

// match returns the best term for span and its similarity score.
func (c *Corrector) match(span string) (term, float64, bool) {
	key := normalize(span)
	n := utf8.RuneCountInString(key)
	if n < minSpanRunes {
		return term{}, 0, false
	}
	p, s := matchr.DoubleMetaphone(key)

	var (
		best         term
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range c.terms {
		if lengthRatio(n, t.runes) < minLengthRatio {
			continue
		}
		if key == t.key {
			return t, 1, true
		}
		score := matchr.JaroWinkler(key, t.key, false)
		if codesOverlap(p, s, t.codes) {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
			continue
		}
		if !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore {
			best, bestScore = t, score
		}
	}
	return best, bestScore, best.key != ""
}

// normalize lowercases s and keeps only letters and digits, so "Tower of
// Whispers" and "tower-of whispers" compare equal.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func codesOverlap(primary, secondary string, codes [2]string) bool {
	for _, a := range [2]string{primary, secondary} {
		if a == "" {
			continue
		}
		if a == codes[0] || a == codes[1] {
			return true
		}
	}
	return false
}

func lengthRatio(a, b int) float64 {
	if a > b {
		a, b = b, a
	}
	return float64(a) / float64(b)
}
