package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"go.noctark.ai/metatune/clientutil"
)

type CAAClient struct {
	BaseURL   string
	RateLimit time.Duration

	initOnce   sync.Once
	HTTPClient *http.Client
}

func (c *CAAClient) request(ctx context.Context, r *http.Request, dest any) error {
	c.initOnce.Do(func() {
		c.HTTPClient = clientutil.WrapClient(c.HTTPClient, clientutil.Chain(
			clientutil.WithCache(),
			clientutil.WithRateLimit(c.RateLimit),
		))
	})

	r = r.WithContext(ctx)
	resp, err := c.HTTPClient.Do(r)
	if err != nil {
		return fmt.Errorf("make caa request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("caa returned non 2xx: %w", StatusError(resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode caa response: %w", err)
	}
	return nil
}

// FrontCover resolves a release or release-group id to its front cover and
// fetches the image bytes. A missing cover is a soft miss: (nil, "", nil).
func (c *CAAClient) FrontCover(ctx context.Context, releaseID, releaseGroupID string) ([]byte, string, error) {
	coverURL, err := c.frontCoverURL(ctx, releaseID, releaseGroupID)
	if err != nil {
		return nil, "", err
	}
	if coverURL == "" {
		return nil, "", nil
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("cover fetch returned non 2xx: %w", StatusError(resp.StatusCode))
	}
	cover, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read cover: %w", err)
	}
	return cover, filepath.Ext(coverURL), nil
}

func (c *CAAClient) frontCoverURL(ctx context.Context, releaseID, releaseGroupID string) (string, error) {
	var candidateURLs []string
	if releaseID != "" {
		candidateURLs = append(candidateURLs, joinPath(c.BaseURL, "release", releaseID))
	}
	if releaseGroupID != "" {
		candidateURLs = append(candidateURLs, joinPath(c.BaseURL, "release-group", releaseGroupID))
	}

	for _, candidate := range candidateURLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, candidate, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}

		var caa caaResponse
		err = c.request(ctx, req, &caa)
		if se := StatusError(0); errors.As(err, &se) && se == http.StatusNotFound {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("make caa release request: %w", err)
		}

		for _, img := range caa.Images {
			if img.Front {
				return img.Image, nil
			}
		}
	}
	return "", nil
}

type caaResponse struct {
	Release string `json:"release"`
	Images  []struct {
		Approved bool     `json:"approved"`
		Front    bool     `json:"front"`
		Back     bool     `json:"back"`
		Image    string   `json:"image"`
		Types    []string `json:"types"`
	} `json:"images"`
}
