// Package musicbrainz queries the MusicBrainz WS/2 registry for recordings
// and releases, and the Cover Art Archive for front covers.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"

	"go.noctark.ai/metatune/clientutil"
)

const SourceName = "musicbrainz"

var ErrNoResults = fmt.Errorf("no results")

type MBClient struct {
	BaseURL   string
	RateLimit time.Duration
	UserAgent string

	initOnce   sync.Once
	HTTPClient *http.Client
}

func (c *MBClient) request(ctx context.Context, r *http.Request, dest any) error {
	c.initOnce.Do(func() {
		c.HTTPClient = clientutil.WrapClient(c.HTTPClient, clientutil.Chain(
			clientutil.WithCache(),
			clientutil.WithUserAgent(c.UserAgent),
			clientutil.WithRateLimit(c.RateLimit),
		))
	})

	r = r.WithContext(ctx)
	resp, err := c.HTTPClient.Do(r)
	if err != nil {
		return fmt.Errorf("make mb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("musicbrainz returned non 2xx: %w", StatusError(resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode mb response: %w", err)
	}
	return nil
}

// GetRecording fetches one recording by MBID with its releases and
// release groups.
func (c *MBClient) GetRecording(ctx context.Context, mbid string) (*Recording, error) {
	urlV := url.Values{}
	urlV.Set("fmt", "json")
	urlV.Set("inc", "artists+releases+release-groups+tags")

	u, _ := url.Parse(joinPath(c.BaseURL, "recording", mbid))
	u.RawQuery = urlV.Encode()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)

	var rec Recording
	if err := c.request(ctx, req, &rec); err != nil {
		return nil, fmt.Errorf("request recording: %w", err)
	}
	return &rec, nil
}

// RecordingQuery is a text search for recordings.
type RecordingQuery struct {
	Artist string
	Title  string
	Year   string // yyyy, optional
}

// SearchRecording returns recordings ranked by the registry's own
// relevance score.
func (c *MBClient) SearchRecording(ctx context.Context, q RecordingQuery) ([]Recording, error) {
	var params []string
	if q.Artist != "" {
		params = append(params, field("artist", strings.ToLower(q.Artist)))
	}
	if q.Title != "" {
		params = append(params, field("recording", strings.ToLower(q.Title)))
	}
	if yearExpr.MatchString(q.Year) {
		params = append(params, field("date", q.Year))
	}
	if len(params) == 0 {
		return nil, ErrNoResults
	}

	urlV := url.Values{}
	urlV.Set("fmt", "json")
	urlV.Set("limit", "10")
	urlV.Set("query", strings.Join(params, " AND "))

	u, _ := url.Parse(joinPath(c.BaseURL, "recording"))
	u.RawQuery = urlV.Encode()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)

	var sr struct {
		Recordings []Recording `json:"recordings"`
	}
	if err := c.request(ctx, req, &sr); err != nil {
		return nil, fmt.Errorf("request recording search: %w", err)
	}
	if len(sr.Recordings) == 0 {
		return nil, ErrNoResults
	}
	return sr.Recordings, nil
}

var compilationExpr = regexp.MustCompile(`(?i)\b(hits|greatest|best|now|collection|playlist|various|compilation|nrj)\b`)

// IsCompilationTitle reports whether a release title smells like a
// compilation rather than a canonical album.
func IsCompilationTitle(title string) bool {
	return compilationExpr.MatchString(title)
}

// BestRelease applies the release-selection policy: prefer an Official
// release in an Album-type release group whose title avoids the
// compilation blocklist, with an exact year match when one is given.
// Falls back to any album release, then to the first release. Nil when the
// recording has no releases at all.
func BestRelease(rec *Recording, year string) *Release {
	if rec == nil || len(rec.Releases) == 0 {
		return nil
	}

	var official []*Release
	for i := range rec.Releases {
		r := &rec.Releases[i]
		if r.Status == "Official" && r.ReleaseGroup.PrimaryType == "Album" && !IsCompilationTitle(r.Title) {
			official = append(official, r)
		}
	}

	if yearExpr.MatchString(year) {
		for _, r := range official {
			if fmt.Sprint(r.Date.Year()) == year {
				return r
			}
		}
	}
	if len(official) > 0 {
		return official[0]
	}
	for i := range rec.Releases {
		if rec.Releases[i].ReleaseGroup.PrimaryType == "Album" {
			return &rec.Releases[i]
		}
	}
	return &rec.Releases[0]
}

type ArtistCredit struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
	Artist     Artist `json:"artist"`
}

type Artist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
}

type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ReleaseGroup struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	PrimaryType      string  `json:"primary-type"`
	FirstReleaseDate AnyTime `json:"first-release-date"`
}

type Release struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Status       string       `json:"status"`
	Date         AnyTime      `json:"date"`
	Country      string       `json:"country"`
	ReleaseGroup ReleaseGroup `json:"release-group"`
}

type Recording struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Length           int            `json:"length"`
	Score            int            `json:"score"` // search relevance, 0-100
	FirstReleaseDate AnyTime        `json:"first-release-date"`
	Artists          []ArtistCredit `json:"artist-credit"`
	Releases         []Release      `json:"releases"`
	Tags             []Tag          `json:"tags"`
}

func ArtistsString(credits []ArtistCredit) string {
	var sb strings.Builder
	for _, c := range credits {
		name := c.Name
		if name == "" {
			name = c.Artist.Name
		}
		fmt.Fprintf(&sb, "%s%s", name, c.JoinPhrase)
	}
	return sb.String()
}

// FirstTag returns the most voted tag name, the closest thing WS/2 has to
// a genre for a recording.
func FirstTag(tags []Tag) string {
	var best Tag
	for _, t := range tags {
		if t.Count > best.Count || best.Name == "" {
			best = t
		}
	}
	return best.Name
}

type AnyTime struct {
	time.Time
}

func (at *AnyTime) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if str == "" {
		return nil
	}
	var err error
	at.Time, err = dateparse.ParseAny(str)
	if err != nil {
		return fmt.Errorf("parse any: %w", err)
	}
	return nil
}

// https://lucene.apache.org/core/7_7_2/queryparser/org/apache/lucene/queryparser/classic/package-summary.html#Escaping_Special_Characters
var escapeLucene *strings.Replacer

func init() {
	var pairs []string
	for _, c := range []string{`&&`, `||`, `+`, `-`, `!`, `(`, `)`, `{`, `}`, `[`, `]`, `^`, `"`, `~`, `*`, `?`, `:`, `\`, `/`} {
		pairs = append(pairs, c, `\`+c)
	}
	escapeLucene = strings.NewReplacer(pairs...)
}

func field(k string, v any) string {
	vstr := fmt.Sprint(v)
	vstr = escapeLucene.Replace(vstr)
	return fmt.Sprintf("%s:(%v)", k, vstr)
}

func joinPath(base string, p ...string) string {
	r, _ := url.JoinPath(base, p...)
	return r
}

var yearExpr = regexp.MustCompile(`^\d{4}$`)

var uuidExpr = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// IsMBID reports whether s looks like a MusicBrainz identifier.
func IsMBID(s string) bool { return uuidExpr.MatchString(s) }
