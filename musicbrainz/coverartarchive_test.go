package musicbrainz

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCAAClient(t *testing.T, handler http.HandlerFunc) *CAAClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &CAAClient{BaseURL: srv.URL}
}

func TestFrontCover(t *testing.T) {
	var srvURL string
	client := testCAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/release/rel1":
			fmt.Fprintf(w, `{"images": [
				{"front": false, "back": true, "image": "%s/back.jpg"},
				{"front": true, "image": "%s/front.jpg"}
			]}`, srvURL, srvURL)
		case "/front.jpg":
			w.Write([]byte("jpegbytes"))
		default:
			http.NotFound(w, r)
		}
	})
	srvURL = client.BaseURL

	data, ext, err := client.FrontCover(context.Background(), "rel1", "rg1")
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(data))
	assert.Equal(t, ".jpg", ext)
}

func TestFrontCoverReleaseGroupFallback(t *testing.T) {
	var srvURL string
	var paths []string
	client := testCAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/release/rel1":
			http.NotFound(w, r)
		case "/release-group/rg1":
			fmt.Fprintf(w, `{"images": [{"front": true, "image": "%s/cover.png"}]}`, srvURL)
		case "/cover.png":
			w.Write([]byte("pngbytes"))
		default:
			http.NotFound(w, r)
		}
	})
	srvURL = client.BaseURL

	data, ext, err := client.FrontCover(context.Background(), "rel1", "rg1")
	require.NoError(t, err)
	assert.Equal(t, "pngbytes", string(data))
	assert.Equal(t, ".png", ext)
	assert.Equal(t, []string{"/release/rel1", "/release-group/rg1", "/cover.png"}, paths)
}

func TestFrontCoverSoftMiss(t *testing.T) {
	t.Run("no ids at all", func(t *testing.T) {
		client := testCAAClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		data, ext, err := client.FrontCover(context.Background(), "", "")
		require.NoError(t, err)
		assert.Nil(t, data)
		assert.Empty(t, ext)
	})

	t.Run("no cover anywhere", func(t *testing.T) {
		client := testCAAClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
		data, ext, err := client.FrontCover(context.Background(), "rel1", "rg1")
		require.NoError(t, err)
		assert.Nil(t, data)
		assert.Empty(t, ext)
	})

	t.Run("images but none front", func(t *testing.T) {
		client := testCAAClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"images": [{"front": false, "image": "x"}]}`))
		})
		data, _, err := client.FrontCover(context.Background(), "rel1", "")
		require.NoError(t, err)
		assert.Nil(t, data)
	})
}

func TestFrontCoverHardError(t *testing.T) {
	client := testCAAClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, _, err := client.FrontCover(context.Background(), "rel1", "")
	require.Error(t, err)

	var serr StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusInternalServerError, int(serr))
}
