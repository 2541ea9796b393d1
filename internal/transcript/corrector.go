package transcript

import (
	"strings"
	"unicode"
)

// Correction records one substitution made by [Corrector.Correct].
type Correction struct {
	// Original is the span as recognised, punctuation included.
	Original string
	// Corrected is the vocabulary term that replaced it.
	Corrected string
	// Confidence is the Jaro-Winkler similarity in [0, 1].
	Confidence float64
}

// Corrector rewrites transcripts so vocabulary terms are spelled the way the
// user configured them.
type Corrector struct {
	terms             []term
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Corrector for vocabulary. Blank entries are ignored; with no
// usable entries Correct returns its input unchanged.
func New(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	for _, v := range vocabulary {
		t, ok := newTerm(v)
		if !ok {
			continue
		}
		c.terms = append(c.terms, t)
		c.maxWords = max(c.maxWords, t.words)
	}
	return c
}

// Len returns the number of usable vocabulary terms.
func (c *Corrector) Len() int { return len(c.terms) }

// Correct returns text with every span that matches a vocabulary term
// replaced by that term, and the substitutions made. At each position the
// longest matching span wins, so multi-word terms take precedence over a
// single word that happens to match. Punctuation before the first and after
// the last word of a span is kept. Spans already spelled exactly like their
// term are left alone and not reported.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(c.terms) == 0 || len(tokens) == 0 {
		return text, nil
	}

	var (
		out         = make([]string, 0, len(tokens))
		corrections []Correction
		changed     bool
	)
	for i := 0; i < len(tokens); {
		n, t, score := c.longestMatch(tokens[i:])
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		window := tokens[i : i+n]
		lead, _ := splitPunct(window[0])
		_, trail := splitPunct(window[len(window)-1])
		bare := strings.TrimRightFunc(strings.TrimLeftFunc(strings.Join(window, " "), isPunct), isPunct)
		if bare != t.text {
			corrections = append(corrections, Correction{
				Original:   strings.Join(window, " "),
				Corrected:  t.text,
				Confidence: score,
			})
			changed = true
		}
		out = append(out, lead+t.text+trail)
		i += n
	}
	if !changed {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// longestMatch tries windows from the longest term length down to one word
// and returns the first that matches.
func (c *Corrector) longestMatch(tokens []string) (int, term, float64) {
	for n := min(c.maxWords, len(tokens)); n >= 1; n-- {
		if t, score, ok := c.match(strings.Join(tokens[:n], " ")); ok {
			return n, t, score
		}
	}
	return 0, term{}, 0
}

func isPunct(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }

// splitPunct returns the leading and trailing punctuation of tok.
func splitPunct(tok string) (lead, trail string) {
	core := strings.TrimLeftFunc(tok, isPunct)
	lead = tok[:len(tok)-len(core)]
	bare := strings.TrimRightFunc(core, isPunct)
	trail = core[len(bare):]
	return lead, trail
}
