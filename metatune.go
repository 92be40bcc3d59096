// Package metatune resolves metadata for audio files by fingerprint and
// fuzzy matching, then writes the winning tag set back into the file.
package metatune

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"go.noctark.ai/metatune/analytics"
	"go.noctark.ai/metatune/ffmpeg"
	"go.noctark.ai/metatune/fileutil"
	"go.noctark.ai/metatune/fpcalc"
	"go.noctark.ai/metatune/fusion"
	"go.noctark.ai/metatune/fuzzy"
	"go.noctark.ai/metatune/hintfile"
	"go.noctark.ai/metatune/lyrics"
	"go.noctark.ai/metatune/musicbrainz"
	"go.noctark.ai/metatune/notifications"
	"go.noctark.ai/metatune/scratch"
	"go.noctark.ai/metatune/tags"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrMissingConfig   = errors.New("missing config")
)

type Normalizer interface {
	Normalize(ctx context.Context, path string, scr *scratch.Set) (string, error)
}

type Fingerprinter interface {
	Extract(ctx context.Context, path string) (fpcalc.Fingerprint, error)
}

type TagWriter interface {
	WriteTags(ctx context.Context, path string, tags ffmpeg.TagSet, scr *scratch.Set) error
}

// CandidateSource looks up tag candidates for a fingerprint. AcoustID in
// practice.
type CandidateSource interface {
	Lookup(ctx context.Context, fp fpcalc.Fingerprint) ([]fusion.Candidate, error)
}

type RecordingSource interface {
	GetRecording(ctx context.Context, mbid string) (*musicbrainz.Recording, error)
	SearchRecording(ctx context.Context, q musicbrainz.RecordingQuery) ([]musicbrainz.Recording, error)
}

type CoverSource interface {
	FrontCover(ctx context.Context, releaseID, releaseGroupID string) ([]byte, string, error)
}

// Reporter receives analytics events. All methods are best effort, a
// failing reporter never fails a run.
type Reporter interface {
	RecordOutcome(ctx context.Context, o analytics.Outcome) error
	RecordSource(ctx context.Context, source string, hit bool) error
}

type Config struct {
	Normalizer    Normalizer
	Fingerprinter Fingerprinter
	TagWriter     TagWriter
	AcoustID      CandidateSource
	MusicBrainz   RecordingSource
	CoverArt      CoverSource

	// Optional extras.
	Lyrics        lyrics.Source
	Reporter      Reporter
	Notifications *notifications.Notifications

	// WorkDir holds intermediate artifacts. Defaults to the system temp
	// dir.
	WorkDir string

	// WritePlaceholders writes whatever partial tags were found even when
	// the match is low confidence. Off by default, low confidence files
	// are left untouched.
	WritePlaceholders bool

	// Rename moves the file to "Artist - Title.ext" after a successful
	// write.
	Rename bool

	DryRun  bool
	Workers int
}

type Processor struct {
	cfg Config
}

func New(cfg Config) (*Processor, error) {
	if cfg.Normalizer == nil || cfg.Fingerprinter == nil || cfg.TagWriter == nil {
		return nil, fmt.Errorf("%w: audio tooling", ErrMissingConfig)
	}
	if cfg.AcoustID == nil || cfg.MusicBrainz == nil {
		return nil, fmt.Errorf("%w: lookup clients", ErrMissingConfig)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Processor{cfg: cfg}, nil
}

// Result is the outcome of one file.
type Result struct {
	// Path is where the file ended up, which differs from the input path
	// after a rename.
	Path      string
	Fusion    fusion.Result
	Tags      ffmpeg.TagSet
	WroteTags bool

	// CleanupWarnings are scratch artifacts that survived release. They
	// never fail the run.
	CleanupWarnings []error
}

// ProcessFile runs the whole pipeline for one file. Lookup misses degrade
// to an empty candidate set, the file is only ever modified by the final
// transactional tag write.
func (p *Processor) ProcessFile(ctx context.Context, path string) (res Result, err error) {
	res.Path = path
	if !tags.CanRead(path) {
		return res, fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(path))
	}

	scr, err := scratch.NewSet(p.cfg.WorkDir)
	if err != nil {
		return res, fmt.Errorf("create scratch set: %w", err)
	}
	defer func() {
		res.CleanupWarnings = scr.Release()
		for _, werr := range res.CleanupWarnings {
			slog.WarnContext(ctx, "leftover scratch artifact", "err", werr)
		}
	}()

	embedded, rerr := tags.ReadEmbedded(path)
	if rerr != nil {
		slog.DebugContext(ctx, "read embedded tags", "path", path, "err", rerr)
	}
	parts := fuzzy.ExtractFilenameParts(path)

	hints, herr := hintfile.Find(path)
	if herr != nil {
		slog.WarnContext(ctx, "read hint file", "path", path, "err", herr)
	}

	cand, err := p.resolve(ctx, path, scr, parts, embedded, hints)
	if err != nil {
		return res, err
	}

	res.Fusion = fusion.Score(parts, cand, fusion.EmbeddedTags(embedded))

	if res.Fusion.Label == fusion.Low && !p.cfg.WritePlaceholders {
		p.report(ctx, path, res, nil)
		p.notify(ctx, notifications.LowConfidence, "low confidence for %q, score %.3f", path, res.Fusion.Score)
		return res, nil
	}

	res.Tags = tagSet(cand, embedded, hints)

	if p.cfg.CoverArt != nil && cand != nil {
		if img, ierr := p.frontCover(ctx, cand); ierr != nil {
			slog.WarnContext(ctx, "fetch cover art", "path", path, "err", ierr)
		} else {
			res.Tags.Image = img
		}
	}
	if p.cfg.Lyrics != nil && res.Tags.Artist != "" && res.Tags.Title != "" {
		if text, lerr := p.cfg.Lyrics.Search(ctx, res.Tags.Artist, res.Tags.Title); lerr != nil {
			slog.DebugContext(ctx, "fetch lyrics", "path", path, "err", lerr)
		} else {
			res.Tags.Lyrics = text
		}
	}

	if p.cfg.DryRun {
		p.report(ctx, path, res, nil)
		return res, nil
	}

	if err := p.cfg.TagWriter.WriteTags(ctx, path, res.Tags, scr); err != nil {
		p.report(ctx, path, res, err)
		p.notify(ctx, notifications.Error, "write tags for %q: %v", path, err)
		return res, fmt.Errorf("write tags: %w", err)
	}
	res.WroteTags = true

	if p.cfg.Rename && res.Tags.Artist != "" && res.Tags.Title != "" {
		if newPath, rerr := renameForTags(path, res.Tags); rerr != nil {
			slog.WarnContext(ctx, "rename file", "path", path, "err", rerr)
		} else {
			res.Path = newPath
		}
	}

	p.report(ctx, path, res, nil)
	p.notify(ctx, notifications.Complete, "tagged %q as %q by %q, score %.3f",
		res.Path, res.Tags.Title, res.Tags.Artist, res.Fusion.Score)
	return res, nil
}

// BatchEntry is the outcome of one file in a batch. Failures are isolated
// per file.
type BatchEntry struct {
	Path   string
	Result Result
	Err    error
}

func (p *Processor) Batch(ctx context.Context, paths []string) []BatchEntry {
	entries := make([]BatchEntry, len(paths))

	var wg errgroup.Group
	wg.SetLimit(p.cfg.Workers)
	for i, path := range paths {
		wg.Go(func() error {
			res, err := p.ProcessFile(ctx, path)
			entries[i] = BatchEntry{Path: path, Result: res, Err: err}
			return nil
		})
	}
	_ = wg.Wait()

	var failed int
	for _, e := range entries {
		if e.Err != nil {
			failed++
		}
	}
	p.notify(ctx, notifications.BatchComplete, "batch of %d done, %d failed", len(paths), failed)
	return entries
}

// resolve finds the best candidate for path, or nil when nothing matched.
// Lookup failures degrade rather than abort, only local audio tooling
// failures are fatal.
func (p *Processor) resolve(ctx context.Context, path string, scr *scratch.Set, parts fuzzy.FilenameParts, embedded tags.Embedded, hints *hintfile.Hints) (*fusion.Candidate, error) {
	wav, err := p.cfg.Normalizer.Normalize(ctx, path, scr)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	fp, err := p.cfg.Fingerprinter.Extract(ctx, wav)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}

	var cand *fusion.Candidate
	cands, err := p.cfg.AcoustID.Lookup(ctx, fp)
	if err != nil {
		slog.InfoContext(ctx, "acoustid lookup", "path", path, "err", err)
	}
	p.recordSource(ctx, "acoustid", len(cands) > 0)
	if len(cands) > 0 {
		cand = &cands[0]
	}

	mbid := ""
	if cand != nil {
		mbid = cand.RecordingMBID
	}
	if hints != nil && musicbrainz.IsMBID(hints.RecordingMBID) {
		mbid = hints.RecordingMBID
	}

	rec, err := p.lookupRecording(ctx, mbid, cand, parts, embedded, hints)
	if err != nil {
		slog.InfoContext(ctx, "musicbrainz lookup", "path", path, "err", err)
	}
	p.recordSource(ctx, "musicbrainz", rec != nil)
	if rec != nil {
		cand = enrich(cand, rec, preferredYear(embedded, hints))
	}
	return cand, nil
}

func (p *Processor) lookupRecording(ctx context.Context, mbid string, cand *fusion.Candidate, parts fuzzy.FilenameParts, embedded tags.Embedded, hints *hintfile.Hints) (*musicbrainz.Recording, error) {
	if mbid != "" {
		return p.cfg.MusicBrainz.GetRecording(ctx, mbid)
	}

	var q musicbrainz.RecordingQuery
	switch {
	case cand != nil:
		q.Artist, q.Title = cand.Artist, cand.Title
	case hints != nil && hints.Artist != "" && hints.Title != "":
		q.Artist, q.Title = hints.Artist, hints.Title
	case embedded.Artist != "" && embedded.Title != "":
		q.Artist, q.Title = embedded.Artist, embedded.Title
	case parts.Artist != "" && parts.Title != "":
		q.Artist, q.Title = parts.Artist, parts.Title
	}
	if q.Artist == "" || q.Title == "" {
		return nil, nil
	}
	q.Year = preferredYear(embedded, hints)

	recs, err := p.cfg.MusicBrainz.SearchRecording(ctx, q)
	if err != nil {
		return nil, err
	}
	return &recs[0], nil
}

// enrich folds a recording and its best release into the candidate. A nil
// candidate means MusicBrainz search was the only source, so the recording
// becomes the candidate with its own search relevance.
func enrich(cand *fusion.Candidate, rec *musicbrainz.Recording, year string) *fusion.Candidate {
	if cand == nil {
		cand = &fusion.Candidate{
			Source:     musicbrainz.SourceName,
			Confidence: float64(rec.Score),
		}
	}
	cand.RecordingMBID = rec.ID
	if rec.Title != "" {
		cand.Title = rec.Title
	}
	if artist := musicbrainz.ArtistsString(rec.Artists); artist != "" {
		cand.Artist = artist
	}
	if genre := musicbrainz.FirstTag(rec.Tags); genre != "" {
		cand.Genre = genre
	}

	if rel := musicbrainz.BestRelease(rec, year); rel != nil {
		cand.Album = rel.Title
		cand.ReleaseMBID = rel.ID
		cand.ReleaseGroupMBID = rel.ReleaseGroup.ID
		if !rel.Date.IsZero() {
			cand.Year = fmt.Sprint(rel.Date.Year())
		} else if !rel.ReleaseGroup.FirstReleaseDate.IsZero() {
			cand.Year = fmt.Sprint(rel.ReleaseGroup.FirstReleaseDate.Year())
		}
	}
	if cand.Year == "" && !rec.FirstReleaseDate.IsZero() {
		cand.Year = fmt.Sprint(rec.FirstReleaseDate.Year())
	}
	return cand
}

// frontCover fetches cover art for the candidate's release. When the
// candidate carries no release IDs but does name an album, fall back to a
// release found by album title similarity.
func (p *Processor) frontCover(ctx context.Context, cand *fusion.Candidate) (*ffmpeg.Image, error) {
	releaseID, releaseGroupID := cand.ReleaseMBID, cand.ReleaseGroupMBID
	if releaseID == "" && releaseGroupID == "" && cand.Album != "" {
		rel, err := p.releaseByAlbum(ctx, cand)
		if err != nil || rel == nil {
			return nil, err
		}
		releaseID, releaseGroupID = rel.ID, rel.ReleaseGroup.ID
	}
	if releaseID == "" && releaseGroupID == "" {
		return nil, nil
	}

	data, ext, err := p.cfg.CoverArt.FrontCover(ctx, releaseID, releaseGroupID)
	if err != nil || data == nil {
		return nil, err
	}
	mime := "image/jpeg"
	if ext == ".png" {
		mime = "image/png"
	}
	return &ffmpeg.Image{MIME: mime, TypeID: 3, Description: "front cover", Data: data}, nil
}

const albumSimilarityCutoff = 0.8

func (p *Processor) releaseByAlbum(ctx context.Context, cand *fusion.Candidate) (*musicbrainz.Release, error) {
	recs, err := p.cfg.MusicBrainz.SearchRecording(ctx, musicbrainz.RecordingQuery{
		Artist: cand.Artist,
		Title:  cand.Title,
	})
	if err != nil {
		if errors.Is(err, musicbrainz.ErrNoResults) {
			return nil, nil
		}
		return nil, err
	}

	want := fuzzy.Normalize(cand.Album)
	for i := range recs {
		for j := range recs[i].Releases {
			rel := &recs[i].Releases[j]
			if fuzzy.Similarity(fuzzy.Normalize(rel.Title), want) >= albumSimilarityCutoff {
				return rel, nil
			}
		}
	}
	return nil, nil
}

// tagSet builds the final tags. Hints beat the candidate, the candidate
// beats embedded tags, embedded tags beat nothing.
func tagSet(cand *fusion.Candidate, embedded tags.Embedded, hints *hintfile.Hints) ffmpeg.TagSet {
	var ts ffmpeg.TagSet
	ts.Title = firstNonEmpty(hintField(hints, func(h *hintfile.Hints) string { return h.Title }), candField(cand, func(c *fusion.Candidate) string { return c.Title }), embedded.Title)
	ts.Artist = firstNonEmpty(hintField(hints, func(h *hintfile.Hints) string { return h.Artist }), candField(cand, func(c *fusion.Candidate) string { return c.Artist }), embedded.Artist)
	ts.Album = firstNonEmpty(hintField(hints, func(h *hintfile.Hints) string { return h.Album }), candField(cand, func(c *fusion.Candidate) string { return c.Album }), embedded.Album)
	ts.Year = firstNonEmpty(hintField(hints, func(h *hintfile.Hints) string { return h.Year }), candField(cand, func(c *fusion.Candidate) string { return c.Year }), embedded.Year)
	ts.Genre = firstNonEmpty(candField(cand, func(c *fusion.Candidate) string { return c.Genre }), embedded.Genre)
	return ts
}

func renameForTags(path string, ts ffmpeg.TagSet) (string, error) {
	base := fileutil.SafePath(fmt.Sprintf("%s - %s", ts.Artist, ts.Title)) + filepath.Ext(path)
	newPath := filepath.Join(filepath.Dir(path), base)
	if newPath == path {
		return path, nil
	}
	if _, err := os.Stat(newPath); err == nil {
		return "", fmt.Errorf("destination exists: %q", newPath)
	}
	if err := os.Rename(path, newPath); err != nil {
		return "", err
	}
	return newPath, nil
}

func (p *Processor) report(ctx context.Context, path string, res Result, err error) {
	if p.cfg.Reporter == nil {
		return
	}
	var source string
	if res.Fusion.Chosen != nil {
		source = res.Fusion.Chosen.Source
	}
	o := analytics.Outcome{
		Path:      path,
		Title:     res.Tags.Title,
		Artist:    res.Tags.Artist,
		Album:     res.Tags.Album,
		Score:     res.Fusion.Score,
		Label:     string(res.Fusion.Label),
		Source:    source,
		WroteTags: res.WroteTags,
		Err:       err,
	}
	if rerr := p.cfg.Reporter.RecordOutcome(ctx, o); rerr != nil {
		slog.WarnContext(ctx, "record outcome", "err", rerr)
	}
}

func (p *Processor) recordSource(ctx context.Context, source string, hit bool) {
	if p.cfg.Reporter == nil {
		return
	}
	if err := p.cfg.Reporter.RecordSource(ctx, source, hit); err != nil {
		slog.WarnContext(ctx, "record source", "err", err)
	}
}

func (p *Processor) notify(ctx context.Context, event notifications.Event, f string, a ...any) {
	if p.cfg.Notifications == nil {
		return
	}
	p.cfg.Notifications.Sendf(ctx, event, f, a...)
}

func preferredYear(embedded tags.Embedded, hints *hintfile.Hints) string {
	if hints != nil && hints.Year != "" {
		return hints.Year
	}
	return embedded.Year
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func hintField(h *hintfile.Hints, f func(*hintfile.Hints) string) string {
	if h == nil {
		return ""
	}
	return f(h)
}

func candField(c *fusion.Candidate, f func(*fusion.Candidate) string) string {
	if c == nil {
		return ""
	}
	return f(c)
}
