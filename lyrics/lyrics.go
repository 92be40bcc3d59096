// Package lyrics fetches lyric text for a matched recording so it can be
// embedded alongside the rest of the tag set. Optional: a miss never
// affects the run.
package lyrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"go.noctark.ai/metatune/clientutil"
)

var ErrLyricsNotFound = errors.New("lyrics not found")

// NewSource builds a source by name.
func NewSource(name string, rateLimit time.Duration) (Source, error) {
	switch name {
	case "genius":
		return &Genius{RateLimit: rateLimit}, nil
	case "musixmatch":
		return &Musixmatch{RateLimit: rateLimit}, nil
	}
	return nil, fmt.Errorf("unknown lyrics source %q", name)
}

type Source interface {
	Search(ctx context.Context, artist, song string) (string, error)
}

// ChainSource tries each source in order and returns the first hit. Every
// attempt's outcome is visible to the caller through report, which may be
// nil.
type ChainSource struct {
	Sources []Source
	// Report is called once per attempted source with its outcome.
	Report func(source Source, err error)
}

func (c ChainSource) Search(ctx context.Context, artist, song string) (string, error) {
	for _, src := range c.Sources {
		text, err := src.Search(ctx, artist, song)
		if c.Report != nil {
			c.Report(src, err)
		}
		if err == nil && text != "" {
			return text, nil
		}
	}
	return "", ErrLyricsNotFound
}

var geniusBaseURL = `https://genius.com`
var geniusSelectContent = cascadia.MustCompile(`div[class^="Lyrics__Container-"]`)
var geniusEsc = strings.NewReplacer(
	" ", "-",
	"(", "",
	")", "",
	"[", "",
	"]", "",
)

type Genius struct {
	RateLimit time.Duration

	initOnce   sync.Once
	HTTPClient *http.Client
}

func (g *Genius) String() string { return "genius" }

func (g *Genius) Search(ctx context.Context, artist, song string) (string, error) {
	g.initOnce.Do(func() {
		g.HTTPClient = clientutil.WrapClient(g.HTTPClient, clientutil.Chain(
			clientutil.WithRateLimit(g.RateLimit),
		))
	})

	// use genius case rules to minimise redirects
	page := fmt.Sprintf("%s-%s-lyrics", artist, song)
	page = strings.ToUpper(string(page[0])) + strings.ToLower(page[1:])

	u, _ := url.Parse(geniusBaseURL)
	u = u.JoinPath(geniusEsc.Replace(page))

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("req page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", ErrLyricsNotFound
	}

	node, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	var out strings.Builder
	iterText(cascadia.Query(node, geniusSelectContent), func(s string) {
		out.WriteString(s + "\n")
	})
	return out.String(), nil
}

var musixmatchBaseURL = `https://www.musixmatch.com/lyrics`
var musixmatchSelectContent = cascadia.MustCompile(`div.r-1v1z2uz:nth-child(1)`)
var musixmatchIgnore = []string{"Still no lyrics here"}
var musixmatchEsc = strings.NewReplacer(
	" ", "-",
	"(", "",
	")", "",
	"[", "",
	"]", "",
)

type Musixmatch struct {
	RateLimit time.Duration

	initOnce   sync.Once
	HTTPClient *http.Client
}

func (mm *Musixmatch) String() string { return "musixmatch" }

func (mm *Musixmatch) Search(ctx context.Context, artist, song string) (string, error) {
	mm.initOnce.Do(func() {
		mm.HTTPClient = clientutil.WrapClient(mm.HTTPClient, clientutil.Chain(
			clientutil.WithRateLimit(mm.RateLimit),
		))
	})

	u, _ := url.Parse(musixmatchBaseURL)
	u = u.JoinPath(musixmatchEsc.Replace(artist))
	u = u.JoinPath(musixmatchEsc.Replace(song))

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	resp, err := mm.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("req page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", ErrLyricsNotFound
	}

	node, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	var out strings.Builder
	iterText(cascadia.Query(node, musixmatchSelectContent), func(s string) {
		out.WriteString(s + "\n")
	})
	for _, ig := range musixmatchIgnore {
		if strings.Contains(out.String(), ig) {
			return "", nil
		}
	}
	return out.String(), nil
}

func iterText(n *html.Node, f func(string)) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		f(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		iterText(c, f)
	}
}
