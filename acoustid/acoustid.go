// Package acoustid looks up recordings for a chromaprint fingerprint via
// the AcoustID web service.
package acoustid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.noctark.ai/metatune/clientutil"
	"go.noctark.ai/metatune/fpcalc"
	"go.noctark.ai/metatune/fusion"
)

const SourceName = "acoustid"

var ErrNoResults = fmt.Errorf("no results")

type StatusError int

func (se StatusError) Error() string { return strconv.Itoa(int(se)) }

type Client struct {
	BaseURL   string
	Key       string
	RateLimit time.Duration

	initOnce   sync.Once
	HTTPClient *http.Client
}

func (c *Client) request(ctx context.Context, r *http.Request, dest any) error {
	c.initOnce.Do(func() {
		c.HTTPClient = clientutil.WrapClient(c.HTTPClient, clientutil.Chain(
			clientutil.WithCache(),
			clientutil.WithRateLimit(c.RateLimit),
		))
	})

	r = r.WithContext(ctx)
	resp, err := c.HTTPClient.Do(r)
	if err != nil {
		return fmt.Errorf("make acoustid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("acoustid returned non 2xx: %w", StatusError(resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode acoustid response: %w", err)
	}
	return nil
}

// Lookup returns candidates in the service's own relevance order: results
// as ranked by AcoustID, each result's recordings in reported order. The
// caller decides how many to consume.
func (c *Client) Lookup(ctx context.Context, fp fpcalc.Fingerprint) ([]fusion.Candidate, error) {
	urlV := url.Values{}
	urlV.Set("client", c.Key)
	urlV.Set("fingerprint", fp.Fingerprint)
	urlV.Set("duration", strconv.Itoa(fp.Duration))
	urlV.Set("meta", "recordings+releasegroups+compress")

	u, _ := url.Parse(joinPath(c.BaseURL, "v2", "lookup"))
	u.RawQuery = urlV.Encode()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)

	var lr lookupResponse
	if err := c.request(ctx, req, &lr); err != nil {
		return nil, err
	}
	if lr.Status != "" && lr.Status != "ok" {
		return nil, fmt.Errorf("acoustid status %q: %s", lr.Status, lr.Error.Message)
	}

	var candidates []fusion.Candidate
	for _, result := range lr.Results {
		for _, rec := range result.Recordings {
			candidates = append(candidates, recordingCandidate(result, rec))
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoResults
	}
	return candidates, nil
}

func recordingCandidate(result lookupResult, rec recording) fusion.Candidate {
	cand := fusion.Candidate{
		Title:         rec.Title,
		Artist:        artistsString(rec.Artists),
		RecordingMBID: rec.ID,
		Source:        SourceName,
		Confidence:    result.Score * 100,
	}
	if len(rec.ReleaseGroups) > 0 {
		grp := rec.ReleaseGroups[0]
		cand.Album = grp.Title
		cand.ReleaseGroupMBID = grp.ID
		if len(grp.FirstReleaseDate) >= 4 {
			cand.Year = grp.FirstReleaseDate[:4]
		}
	}
	if len(rec.Tags) > 0 {
		cand.Genre = rec.Tags[0].Name
	}
	return cand
}

type lookupResponse struct {
	Status string `json:"status"`
	Error  struct {
		Message string `json:"message"`
	} `json:"error"`
	Results []lookupResult `json:"results"`
}

type lookupResult struct {
	ID         string      `json:"id"`
	Score      float64     `json:"score"`
	Recordings []recording `json:"recordings"`
}

type artistCredit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type recording struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Artists []artistCredit `json:"artists"`
	ReleaseGroups []struct {
		ID               string `json:"id"`
		Title            string `json:"title"`
		Type             string `json:"type"`
		FirstReleaseDate string `json:"first-release-date"`
	} `json:"releasegroups"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

func artistsString(artists []artistCredit) string {
	var names []string
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func joinPath(base string, p ...string) string {
	r, _ := url.JoinPath(base, p...)
	return r
}
