package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.noctark.ai/metatune/scratch"
)

func newScratch(t *testing.T) *scratch.Set {
	t.Helper()
	scr, err := scratch.NewSet(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { scr.Release() })
	return scr
}

func TestNormalizeArgs(t *testing.T) {
	scr := newScratch(t)

	var gotName string
	var gotArgs []string
	var tool Tool
	tool.WithRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		gotName, gotArgs = name, args
		// the runner produces the output file
		return "", os.WriteFile(args[len(args)-1], []byte("wav"), 0o644)
	})

	out, err := tool.Normalize(context.Background(), "in.mp3", scr)
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", gotName)
	assert.Equal(t, []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", "in.mp3", "-vn", "-ac", "2", "-ar", "44100", "-c:a", "pcm_s16le",
		out,
	}, gotArgs)
}

func TestNormalizeCommandOverride(t *testing.T) {
	scr := newScratch(t)

	var gotName string
	var gotArgs []string
	tool := Tool{Command: "ffmpeg -threads 1"}
	tool.WithRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		gotName, gotArgs = name, args
		return "", os.WriteFile(args[len(args)-1], nil, 0o644)
	})

	_, err := tool.Normalize(context.Background(), "in.mp3", scr)
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", gotName)
	assert.Equal(t, []string{"-threads", "1"}, gotArgs[:2])
}

func TestNormalizeFailure(t *testing.T) {
	scr := newScratch(t)

	var tool Tool
	tool.WithRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "in.mp3: Invalid data found", errors.New("exit status 1")
	})

	_, err := tool.Normalize(context.Background(), "in.mp3", scr)
	var cerr *ConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Stderr, "Invalid data")
}

func TestWriteTagsSuccess(t *testing.T) {
	scr := newScratch(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	var gotArgs []string
	var tool Tool
	tool.WithRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		gotArgs = args
		return "", os.WriteFile(args[len(args)-1], []byte("tagged"), 0o644)
	})

	err := tool.WriteTags(context.Background(), path, TagSet{
		Title:  "Hey Jude",
		Artist: "The Beatles",
		Album:  "Hey Jude",
		Year:   "1968",
	}, scr)
	require.NoError(t, err)

	// original replaced in place
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tagged", string(data))

	assert.True(t, slices.Contains(gotArgs, "title=Hey Jude"))
	assert.True(t, slices.Contains(gotArgs, "artist=The Beatles"))
	assert.True(t, slices.Contains(gotArgs, "date=1968"))
	// mp3 gets legacy id3 flags
	assert.True(t, slices.Contains(gotArgs, "-id3v2_version"))
	assert.True(t, slices.Contains(gotArgs, "-write_id3v1"))
	// no artwork, plain stream copy
	assert.False(t, slices.Contains(gotArgs, "attached_pic"))
}

func TestWriteTagsWithArtwork(t *testing.T) {
	scr := newScratch(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	var gotArgs []string
	var tool Tool
	tool.WithRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		gotArgs = args
		return "", os.WriteFile(args[len(args)-1], []byte("tagged"), 0o644)
	})

	err := tool.WriteTags(context.Background(), path, TagSet{
		Title: "Hey Jude",
		Image: &Image{MIME: "image/jpeg", TypeID: 3, Data: []byte("jpg")},
	}, scr)
	require.NoError(t, err)

	assert.True(t, slices.Contains(gotArgs, "attached_pic"))
	// both inputs mapped
	assert.Equal(t, 2, countOf(gotArgs, "-map"))
	assert.Equal(t, 2, countOf(gotArgs, "-i"))
}

func TestWriteTagsFailureLeavesOriginal(t *testing.T) {
	scr := newScratch(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	var tool Tool
	tool.WithRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		return "muxing failed", errors.New("exit status 1")
	})

	err := tool.WriteTags(context.Background(), path, TagSet{Title: "Hey Jude"}, scr)
	var werr *WriteError
	require.ErrorAs(t, err, &werr)

	// original untouched, no temp output left behind
	data, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, "original", string(data))

	left, _ := filepath.Glob(filepath.Join(dir, "*"))
	assert.Equal(t, []string{path}, left)
}

func TestWriteTagsSkipsEmptyFields(t *testing.T) {
	scr := newScratch(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "song.flac")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	var gotArgs []string
	var tool Tool
	tool.WithRunner(func(ctx context.Context, name string, args ...string) (string, error) {
		gotArgs = args
		return "", os.WriteFile(args[len(args)-1], []byte("tagged"), 0o644)
	})

	err := tool.WriteTags(context.Background(), path, TagSet{Title: "Only Title"}, scr)
	require.NoError(t, err)

	assert.Equal(t, 1, countOf(gotArgs, "-metadata"))
	// not an mp3, no id3 flags
	assert.False(t, slices.Contains(gotArgs, "-id3v2_version"))
}

func countOf(args []string, want string) int {
	var n int
	for _, a := range args {
		if a == want {
			n++
		}
	}
	return n
}
