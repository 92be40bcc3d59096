// Package fuzzy holds the pure string normalisation and comparison
// primitives the fusion scorer is built from.
package fuzzy

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rainycape/unidecode"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var dmp = diffmatchpatch.New()

// Normalize folds s to a bare comparable form. ASCII fold first so that
// "Beyoncé" and "Beyonce" compare equal, then lowercase alphanumerics only.
// Idempotent.
func Normalize(s string) string {
	s = unidecode.Unidecode(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	noiseParens = regexp.MustCompile(`(?i)[(\[][^)\]]*(?:official|video|audio|lyrics?|remix|live|acoustic|radio edit|album version|extended version|remaster(?:ed)?|hd|hq|explicit|clean|instrumental|4k|mv)[^)\]]*[)\]]`)
	noiseWords  = regexp.MustCompile(`(?i)\b(?:official|video|audio|lyrics?|remix|live|acoustic|radio edit|album version|extended version|remaster(?:ed)?|hd|hq|explicit|clean|instrumental|4k|mv)\b`)
	trailingSep = regexp.MustCompile(`[-–—:]\s*$`)
	featCredit  = regexp.MustCompile(`(?i)\(?\bfeat\.?[^-–—)\]]*\)?`)
	manySpaces  = regexp.MustCompile(`\s{2,}`)
)

// StripNoise removes bracketed promo tokens and standalone boilerplate
// words from a title, leaving the rest intact.
func StripNoise(s string) string {
	s = noiseParens.ReplaceAllString(s, "")
	s = featCredit.ReplaceAllString(s, "")
	s = noiseWords.ReplaceAllString(s, "")
	s = trailingSep.ReplaceAllString(s, "")
	s = manySpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// CleanTitle strips noise and tidies a raw title for display: underscores
// become spaces, whitespace collapses, and each word is capitalised unless
// it is already all caps.
func CleanTitle(s string) string {
	s = StripNoise(s)
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		if w == strings.ToUpper(w) {
			continue
		}
		words[i] = titleCaser.String(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}

// ExactScore is 1 when the normalized forms are equal, else 0.
func ExactScore(a, b string) float64 {
	if na := Normalize(a); na != "" && na == Normalize(b) {
		return 1
	}
	return 0
}

// FuzzyScore is deliberately coarse: equal 1, substring either way 0.7,
// else 0. Keeping it a step function keeps every fusion score traceable.
func FuzzyScore(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	switch {
	case na == "" || nb == "":
		return 0
	case na == nb:
		return 1
	case strings.Contains(na, nb) || strings.Contains(nb, na):
		return 0.7
	}
	return 0
}

// Similarity is a continuous 0-1 Levenshtein ratio on normalized forms,
// used as a finer-grained diagnostic alongside FuzzyScore.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	diffs := dmp.DiffMain(na, nb, false)
	dist := float64(dmp.DiffLevenshtein(diffs))
	longest := float64(max(len([]rune(na)), len([]rune(nb))))
	if s := 1 - dist/longest; s > 0 {
		return s
	}
	return 0
}

var dashSplit = regexp.MustCompile(`[-–—]`)

// FilenameParts is a filename-derived metadata guess.
type FilenameParts struct {
	Artist, Title string // set only when the name splits cleanly in two
	Raw           string // normalized full base name, always set
}

// ExtractFilenameParts splits a file's base name on a dash-like separator
// into artist/title guesses. Names without exactly one separator yield only
// the raw form.
func ExtractFilenameParts(path string) FilenameParts {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.Join(strings.Fields(base), " ")

	parts := FilenameParts{Raw: Normalize(base)}
	if split := dashSplit.Split(base, -1); len(split) == 2 {
		parts.Artist = Normalize(split[0])
		parts.Title = Normalize(split[1])
	}
	return parts
}
