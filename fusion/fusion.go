// Package fusion combines fingerprint-match confidence, filename-derived
// hints, and pre-existing embedded tags into one ranked, explainable
// decision.
package fusion

import (
	"math"

	"go.noctark.ai/metatune/fuzzy"
)

// Candidate is one proposed metadata record returned by a single external
// source. Candidates are never mutated after creation.
type Candidate struct {
	Title  string
	Artist string
	Album  string
	Year   string
	Genre  string

	RecordingMBID    string
	ReleaseMBID      string
	ReleaseGroupMBID string

	Source string
	// Confidence is the source's own 0-100 relevance for this candidate.
	Confidence float64
}

// EmbeddedTags is the tag set already present in the file before
// processing. Read-only input to scoring.
type EmbeddedTags struct {
	Title  string
	Artist string
	Album  string
	Year   string
	Genre  string
}

type Label string

const (
	Low    Label = "Low"
	Medium Label = "Medium"
	High   Label = "High"
)

// Signal names, keys of Result.Breakdown.
const (
	SignalFingerprint    = "fingerprint"
	SignalFilenameRaw    = "filename_raw"
	SignalFilenameArtist = "filename_artist"
	SignalFilenameTitle  = "filename_title"
	SignalTagArtist      = "tag_artist"
	SignalTagTitle       = "tag_title"
)

// Weights of the linear sum, by signal name. They sum to 1.
var Weights = map[string]float64{
	SignalFingerprint:    0.45,
	SignalFilenameRaw:    0.15,
	SignalFilenameArtist: 0.15,
	SignalFilenameTitle:  0.10,
	SignalTagArtist:      0.10,
	SignalTagTitle:       0.05,
}

// Result is the scorer's decision. Immutable once computed.
type Result struct {
	Chosen    *Candidate
	Score     float64 // 3 decimal places, in [0,1]
	Label     Label
	Breakdown map[string]float64 // raw 0-1 sub-score per signal
}

// Score ranks a candidate against the filename guess and embedded tags.
// It is a pure function: identical inputs always yield identical results.
func Score(parts fuzzy.FilenameParts, cand *Candidate, embedded EmbeddedTags) Result {
	if cand == nil {
		return Result{Label: Low, Breakdown: map[string]float64{}}
	}

	breakdown := map[string]float64{
		SignalFingerprint:    math.Min(math.Max(cand.Confidence/100, 0), 1),
		SignalFilenameRaw:    fuzzyRaw(parts.Raw, cand),
		SignalFilenameArtist: fuzzyPart(parts.Artist, cand.Artist),
		SignalFilenameTitle:  fuzzyPart(parts.Title, cand.Title),
		SignalTagArtist:      fuzzy.ExactScore(embedded.Artist, cand.Artist),
		SignalTagTitle:       fuzzy.ExactScore(embedded.Title, cand.Title),
	}

	var score float64
	for signal, sub := range breakdown {
		score += Weights[signal] * sub
	}
	score = math.Round(score*1000) / 1000

	return Result{
		Chosen:    cand,
		Score:     score,
		Label:     labelFor(score),
		Breakdown: breakdown,
	}
}

func labelFor(score float64) Label {
	switch {
	case score >= 0.8:
		return High
	case score >= 0.6:
		return Medium
	}
	return Low
}

// fuzzyRaw compares the whole normalized base name against the candidate's
// artist and title joined, catching "Artist - Title" style names that did
// not split cleanly.
func fuzzyRaw(raw string, cand *Candidate) float64 {
	return fuzzy.FuzzyScore(raw, cand.Artist+cand.Title)
}

// parts from the filename are already normalized, which FuzzyScore's own
// normalisation leaves untouched.
func fuzzyPart(part, against string) float64 {
	return fuzzy.FuzzyScore(part, against)
}
