package acoustid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.noctark.ai/metatune/fpcalc"
)

const lookupBody = `{
	"status": "ok",
	"results": [
		{
			"id": "aa",
			"score": 0.93,
			"recordings": [
				{
					"id": "dd720ac8-1c68-4484-abb7-0546413a55e3",
					"title": "Hey Jude",
					"artists": [{"id": "x", "name": "The Beatles"}],
					"releasegroups": [
						{"id": "rg1", "title": "Hey Jude", "type": "Album", "first-release-date": "1968-08-26"}
					],
					"tags": [{"name": "rock"}]
				},
				{
					"id": "other-recording",
					"title": "Hey Jude (Take 2)",
					"artists": [{"id": "x", "name": "The Beatles"}]
				}
			]
		},
		{
			"id": "bb",
			"score": 0.41,
			"recordings": [
				{"id": "low-recording", "title": "Something Else", "artists": [{"id": "y", "name": "Someone"}]}
			]
		}
	]
}`

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Client{BaseURL: srv.URL, Key: "test-key"}
}

func TestLookup(t *testing.T) {
	var gotQuery map[string]string
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		assert.Equal(t, "/v2/lookup", r.URL.Path)
		w.Write([]byte(lookupBody))
	})

	cands, err := client.Lookup(context.Background(), fpcalc.Fingerprint{Fingerprint: "AQAD", Duration: 237})
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotQuery["client"])
	assert.Equal(t, "AQAD", gotQuery["fingerprint"])
	assert.Equal(t, "237", gotQuery["duration"])
	assert.Equal(t, "recordings+releasegroups+compress", gotQuery["meta"])

	require.Len(t, cands, 3)

	// service order preserved, best result's recordings first
	best := cands[0]
	assert.Equal(t, "Hey Jude", best.Title)
	assert.Equal(t, "The Beatles", best.Artist)
	assert.Equal(t, "dd720ac8-1c68-4484-abb7-0546413a55e3", best.RecordingMBID)
	assert.Equal(t, "Hey Jude", best.Album)
	assert.Equal(t, "rg1", best.ReleaseGroupMBID)
	assert.Equal(t, "1968", best.Year)
	assert.Equal(t, "rock", best.Genre)
	assert.Equal(t, SourceName, best.Source)
	assert.InDelta(t, 93.0, best.Confidence, 1e-9)

	assert.Equal(t, "other-recording", cands[1].RecordingMBID)
	assert.Equal(t, "low-recording", cands[2].RecordingMBID)
	assert.InDelta(t, 41.0, cands[2].Confidence, 1e-9)
}

func TestLookupNoResults(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "results": []}`))
	})

	_, err := client.Lookup(context.Background(), fpcalc.Fingerprint{Fingerprint: "AQAD", Duration: 10})
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestLookupServiceError(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "error", "error": {"message": "invalid API key"}}`))
	})

	_, err := client.Lookup(context.Background(), fpcalc.Fingerprint{Fingerprint: "AQAD", Duration: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key")
}

func TestLookupHTTPError(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	})

	_, err := client.Lookup(context.Background(), fpcalc.Fingerprint{Fingerprint: "AQAD", Duration: 10})
	var serr StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusTooManyRequests, int(serr))
}
