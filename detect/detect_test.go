package detect

import (
	"strings"
	"testing"
)

func TestDigest_Deterministic(t *testing.T) {
	// WHAT: Same sentence list always produces the same digest.
	// WHY: The digest gate short-circuits unchanged pages; it must be stable.
	a := Digest([]string{"Alpha.", "Beta."})
	b := Digest([]string{"Alpha.", "Beta."})
	if a != b {
		t.Errorf("digests differ: %q vs %q", a, b)
	}
}

func TestDigest_SeparatorNotAmbiguous(t *testing.T) {
	// WHAT: ["ab", "c"] and ["a", "bc"] hash differently.
	// WHY: Joining with an unseparated concat would collide; the unit
	// separator keeps sentence boundaries part of the hash input.
	if Digest([]string{"ab", "c"}) == Digest([]string{"a", "bc"}) {
		t.Error("digest collision across different sentence boundaries")
	}
}

func TestCompare_Unchanged(t *testing.T) {
	// WHAT: Identical content yields Changed=false and empty Added.
	// WHY: Whenever Changed is false, Added must be empty.
	d := New(Options{})
	prev := []string{"First sentence.", "Second sentence."}
	res := d.Compare(prev, Digest(prev), prev)
	if res.Changed {
		t.Error("identical content reported as changed")
	}
	if len(res.Added) != 0 {
		t.Errorf("unchanged result carries added sentences: %v", res.Added)
	}
	if res.Digest != Digest(prev) {
		t.Error("digest not carried into result")
	}
}

func TestCompare_AddedSentence(t *testing.T) {
	// WHAT: A sentence present in current but not previous is reported.
	// WHY: Core purpose of the detector.
	d := New(Options{})
	prev := []string{"Old news stays the same."}
	cur := []string{"Old news stays the same.", "Breaking story just arrived."}
	res := d.Compare(prev, Digest(prev), cur)
	if !res.Changed {
		t.Fatal("addition not detected")
	}
	if len(res.Added) != 1 || res.Added[0] != "Breaking story just arrived." {
		t.Errorf("added = %v", res.Added)
	}
}

func TestCompare_RemovalOnly(t *testing.T) {
	// WHAT: Content that only disappeared does not trigger a change.
	// WHY: The detector reports additions; removals alone are silent,
	// though the snapshot digest still advances.
	d := New(Options{})
	prev := []string{"Keep this.", "Drop this."}
	cur := []string{"Keep this."}
	res := d.Compare(prev, Digest(prev), cur)
	if res.Changed {
		t.Error("removal-only reported as changed")
	}
	if len(res.Added) != 0 {
		t.Errorf("removal produced added sentences: %v", res.Added)
	}
	if res.Digest != Digest(cur) {
		t.Error("result digest should reflect current content")
	}
}

func TestCompare_ReorderOnly(t *testing.T) {
	// WHAT: Same sentences in a different order yield Changed=false.
	// WHY: Membership, not position, defines novelty; reshuffled layouts
	// must not spam notifications.
	d := New(Options{})
	prev := []string{"Alpha first.", "Beta second.", "Gamma third."}
	cur := []string{"Gamma third.", "Alpha first.", "Beta second."}
	res := d.Compare(prev, Digest(prev), cur)
	if res.Changed {
		t.Error("reorder reported as changed")
	}
	if len(res.Added) != 0 {
		t.Errorf("reorder produced added sentences: %v", res.Added)
	}
}

func TestCompare_DuplicateCounts(t *testing.T) {
	// WHAT: A sentence appearing twice now but once before counts as added.
	// WHY: The diff is a multiset; occurrence counts matter.
	d := New(Options{})
	prev := []string{"Repeated line here today."}
	cur := []string{"Repeated line here today.", "Repeated line here today."}
	res := d.Compare(prev, Digest(prev), cur)
	if !res.Changed {
		t.Fatal("extra occurrence not detected")
	}
	if len(res.Added) != 1 {
		t.Errorf("added = %v, want one occurrence", res.Added)
	}
}

func TestCompare_OrderPreserved(t *testing.T) {
	// WHAT: Added sentences come back in current-document order.
	// WHY: Reports should read the way the page reads.
	d := New(Options{})
	prev := []string{"Existing content sentence."}
	cur := []string{"Zulu arrives last alphabetically but first here.", "Existing content sentence.", "Alpha arrives second."}
	res := d.Compare(prev, Digest(prev), cur)
	want := []string{"Zulu arrives last alphabetically but first here.", "Alpha arrives second."}
	if len(res.Added) != 2 || res.Added[0] != want[0] || res.Added[1] != want[1] {
		t.Errorf("added = %v, want %v", res.Added, want)
	}
}

func TestCompare_NoiseBelowCharThreshold(t *testing.T) {
	// WHAT: Additions totaling fewer characters than MinAddedChars are
	// suppressed and flagged as noise.
	// WHY: Timestamps and counters churn constantly; small diffs are noise.
	d := New(Options{MinAddedChars: 50})
	prev := []string{"Stable body text of the page."}
	cur := []string{"Stable body text of the page.", "Tiny tweak."}
	res := d.Compare(prev, Digest(prev), cur)
	if res.Changed {
		t.Error("sub-threshold addition reported as changed")
	}
	if !res.NoiseFiltered {
		t.Error("noise flag not set")
	}
}

func TestCompare_AtCharThresholdReported(t *testing.T) {
	// WHAT: An addition exactly at MinAddedChars is reported.
	// WHY: The threshold is inclusive; at-threshold content is real content.
	d := New(Options{MinAddedChars: 20})
	addition := strings.Repeat("x", 20)
	prev := []string{"Stable body text."}
	cur := []string{"Stable body text.", addition}
	res := d.Compare(prev, Digest(prev), cur)
	if !res.Changed {
		t.Error("at-threshold addition suppressed")
	}
	if res.NoiseFiltered {
		t.Error("at-threshold addition flagged as noise")
	}
}

func TestCompare_NoiseBelowSentenceThreshold(t *testing.T) {
	// WHAT: Fewer added sentences than MinAddedSentences is noise.
	// WHY: Some sites need several new sentences before a report matters.
	d := New(Options{MinAddedSentences: 2})
	prev := []string{"Existing paragraph stays put."}
	cur := []string{"Existing paragraph stays put.", "One lonely new sentence that is plenty long."}
	res := d.Compare(prev, Digest(prev), cur)
	if res.Changed || !res.NoiseFiltered {
		t.Errorf("single addition below sentence threshold: changed=%v noise=%v", res.Changed, res.NoiseFiltered)
	}
}

func TestCompare_CharCountInRunes(t *testing.T) {
	// WHAT: The character threshold counts runes, not bytes.
	// WHY: Multibyte scripts must not pass the filter on byte length alone.
	d := New(Options{MinAddedChars: 10})
	prev := []string{"Base content of the page."}
	// 5 runes, 15 bytes in UTF-8.
	cur := []string{"Base content of the page.", "日本語です"}
	res := d.Compare(prev, Digest(prev), cur)
	if res.Changed {
		t.Error("5-rune addition passed a 10-rune threshold")
	}
	if !res.NoiseFiltered {
		t.Error("noise flag not set for sub-threshold rune count")
	}
}

func TestCompare_FirstObservation(t *testing.T) {
	// WHAT: Comparing against an empty previous list treats everything
	// as added.
	// WHY: Callers gate the baseline case themselves; the detector just
	// diffs what it is given.
	d := New(Options{})
	cur := []string{"Everything here is brand new content."}
	res := d.Compare(nil, "", cur)
	if !res.Changed || len(res.Added) != 1 {
		t.Errorf("changed=%v added=%v", res.Changed, res.Added)
	}
}

func TestResult_AddedChars(t *testing.T) {
	// WHAT: AddedChars sums rune counts over all added sentences.
	// WHY: Reported in logs and the watch history.
	res := Result{Added: []string{"abc", "éé"}}
	if got := res.AddedChars(); got != 5 {
		t.Errorf("AddedChars = %d, want 5", got)
	}
}
