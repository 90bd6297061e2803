// Package normalize converts raw HTML into ordered, comparable sentence
// units. The output feeds the change-detection digest, so normalization is
// strictly deterministic: byte-identical input always yields the identical
// sentence sequence.
//
// Two backends are provided. DOM walks the parsed tree and keeps every
// visible text node; Article runs readability extraction first and suits
// pages with heavy chrome around a single article body.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrParse is returned when the HTML document cannot be parsed at all.
// Empty documents and selectors that match nothing are NOT parse errors;
// they yield an empty sequence.
var ErrParse = errors.New("normalize: unparsable HTML")

// ErrSelector is returned for a malformed CSS selector.
var ErrSelector = errors.New("normalize: invalid selector")

// Normalizer turns raw HTML (optionally scoped to a CSS selector subtree)
// into an ordered sequence of sentences. The backend is swappable so the
// parsing library never leaks into diff semantics.
type Normalizer interface {
	Normalize(raw []byte, selector string) ([]string, error)
}

// Options tunes sentence extraction.
type Options struct {
	// MinSentenceChars drops fragments shorter than this after trimming.
	// 0 keeps everything non-empty.
	MinSentenceChars int
	// KeepDynamic retains elements whose class or id marks machine-generated
	// content (timestamps, session tokens). The DOM backend strips them by
	// default so visible clocks never register as new content.
	KeepDynamic bool
}

// New returns a Normalizer for the given mode: "dom" (default) or "article".
func New(mode string, opts Options) (Normalizer, error) {
	switch mode {
	case "", "dom":
		return NewDOM(opts), nil
	case "article":
		return NewArticle(opts), nil
	default:
		return nil, fmt.Errorf("normalize: unknown mode %q", mode)
	}
}

// SplitSentences splits plain text into sentence units at punctuation
// boundaries: '.', '!' or '?' followed by whitespace and an uppercase
// letter. Fragments are trimmed; empty fragments and fragments shorter than
// minChars are dropped.
func SplitSentences(text string, minChars int) []string {
	runes := []rune(text)
	var out []string

	emit := func(seg string) {
		seg = strings.TrimSpace(seg)
		if seg == "" || len([]rune(seg)) < minChars {
			return
		}
		out = append(out, seg)
	}

	start := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		if r == '.' || r == '!' || r == '?' {
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			if j > i+1 && j < len(runes) && unicode.IsUpper(runes[j]) {
				emit(string(runes[start : i+1]))
				start = j
				i = j
				continue
			}
		}
		i++
	}
	emit(string(runes[start:]))
	return out
}

// collapseWhitespace replaces runs of whitespace with a single space.
// Control characters become whitespace first: most are not Unicode space
// (U+001F for one) and would otherwise survive into the sentence text,
// where downstream digesting reserves them as separators.
func collapseWhitespace(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
