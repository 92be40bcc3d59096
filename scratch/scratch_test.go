package scratch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.noctark.ai/metatune/scratch"
)

func TestReleaseRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	scr, err := scratch.NewSet(dir)
	require.NoError(t, err)

	for _, suffix := range []string{"normalized.wav", "art.jpg", "out.mp3"} {
		path := scr.Path(suffix)
		scr.Register(path, scratch.KindNormalizedAudio)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	warnings := scr.Release()
	assert.Empty(t, warnings)

	left, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestReleaseIdempotent(t *testing.T) {
	scr, err := scratch.NewSet(t.TempDir())
	require.NoError(t, err)

	path := scr.Path("normalized.wav")
	scr.Register(path, scratch.KindNormalizedAudio)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.Empty(t, scr.Release())
	assert.Empty(t, scr.Release())
}

func TestReleaseToleratesMissing(t *testing.T) {
	scr, err := scratch.NewSet(t.TempDir())
	require.NoError(t, err)

	// registered but never created
	scr.Register(scr.Path("never-written.wav"), scratch.KindOutput)

	assert.Empty(t, scr.Release())
}

func TestPathsUniquePerRun(t *testing.T) {
	dir := t.TempDir()
	a, err := scratch.NewSet(dir)
	require.NoError(t, err)
	b, err := scratch.NewSet(dir)
	require.NoError(t, err)

	assert.NotEqual(t, a.Path("normalized.wav"), b.Path("normalized.wav"))
}
