// Package detect decides, across repeated observations of the same page,
// which sentences are new and whether the change is worth reporting.
//
// The pipeline is gate → diff → noise filter:
//
//  1. a SHA-256 digest over the normalized sentence sequence short-circuits
//     unchanged content without diffing,
//  2. a multiset diff collects sentences present in the new sequence beyond
//     their count in the previous one, preserving document order,
//  3. a threshold filter suppresses trivial/dynamic changes.
//
// Removed content is never reported, and pure reordering of unchanged
// sentences is not a change.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
)

// sentenceSep joins sentences for digesting. Normalization strips control
// characters, so the unit separator never appears in sentence text and
// distinct sequences never collide by concatenation.
const sentenceSep = "\x1f"

// Result is the outcome of one detection run. Added is always empty when
// Changed is false. Created fresh per run and consumed once by the notifier.
type Result struct {
	Changed       bool     `json:"changed"`
	Added         []string `json:"added,omitempty"`
	NoiseFiltered bool     `json:"noise_filtered,omitempty"`
	// Digest is the digest of the new sentence sequence, regardless of
	// outcome. Callers persist it as the next snapshot's digest.
	Digest string `json:"digest"`
}

// AddedChars returns the total character count of added sentences.
func (r *Result) AddedChars() int {
	total := 0
	for _, s := range r.Added {
		total += len([]rune(s))
	}
	return total
}

// Options tunes the noise filter. Zero values disable a metric.
type Options struct {
	// MinAddedChars suppresses diffs whose added sentences total fewer
	// characters than this. Content exactly at the threshold is reported.
	MinAddedChars int
	// MinAddedSentences suppresses diffs with fewer added sentences.
	MinAddedSentences int
}

// Detector compares sentence sequences. It is stateless and safe for
// concurrent use.
type Detector struct {
	opts Options
}

// New creates a Detector.
func New(opts Options) *Detector {
	return &Detector{opts: opts}
}

// Digest computes the hex-encoded SHA-256 digest of a sentence sequence.
// Equal sequences always produce equal digests; the separator makes the
// concatenation injective.
func Digest(sentences []string) string {
	h := sha256.New()
	for i, s := range sentences {
		if i > 0 {
			h.Write([]byte(sentenceSep))
		}
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Compare runs the full gate → diff → filter pipeline for one observation.
// prev is the previous snapshot's sentence sequence and prevDigest its
// stored digest; cur is the newly normalized sequence.
func (d *Detector) Compare(prev []string, prevDigest string, cur []string) Result {
	digest := Digest(cur)
	if digest == prevDigest {
		return Result{Digest: digest}
	}

	added := addedSentences(prev, cur)
	if len(added) == 0 {
		// Reordered or removed content only. Not reported.
		return Result{Digest: digest}
	}

	if d.filtered(added) {
		return Result{Digest: digest, NoiseFiltered: true}
	}

	return Result{Changed: true, Added: added, Digest: digest}
}

// addedSentences returns sentences of cur, in order, whose occurrence count
// exceeds their count in prev. Multiset semantics: a sentence repeated three
// times in cur and once in prev yields two additions.
func addedSentences(prev, cur []string) []string {
	counts := make(map[string]int, len(prev))
	for _, s := range prev {
		counts[s]++
	}

	var added []string
	for _, s := range cur {
		if counts[s] > 0 {
			counts[s]--
			continue
		}
		added = append(added, s)
	}
	return added
}

// filtered reports whether the added content falls below the configured
// significance thresholds.
func (d *Detector) filtered(added []string) bool {
	if d.opts.MinAddedSentences > 0 && len(added) < d.opts.MinAddedSentences {
		return true
	}
	if d.opts.MinAddedChars > 0 {
		total := 0
		for _, s := range added {
			total += len([]rune(s))
		}
		if total < d.opts.MinAddedChars {
			return true
		}
	}
	return false
}
