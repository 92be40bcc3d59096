package hintfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.noctark.ai/metatune/hintfile"
)

const sidecar = `
artist: " The Beatles "
title: Hey Jude
album: Hey Jude
year: "1968"
recording_mbid: dd720ac8-1c68-4484-abb7-0546413a55e3
`

func TestFind(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(audio+".metatune.yaml", []byte(sidecar), 0o644))

	hints, err := hintfile.Find(audio)
	require.NoError(t, err)
	require.NotNil(t, hints)
	assert.Equal(t, "The Beatles", hints.Artist) // trimmed
	assert.Equal(t, "Hey Jude", hints.Title)
	assert.Equal(t, "1968", hints.Year)
	assert.Equal(t, "dd720ac8-1c68-4484-abb7-0546413a55e3", hints.RecordingMBID)
}

func TestFindYmlVariant(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(audio+".metatune.yml", []byte("title: Abc\n"), 0o644))

	hints, err := hintfile.Find(audio)
	require.NoError(t, err)
	require.NotNil(t, hints)
	assert.Equal(t, "Abc", hints.Title)
}

func TestFindNone(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "song.mp3")
	hints, err := hintfile.Find(audio)
	require.NoError(t, err)
	assert.Nil(t, hints)
}

func TestFindOnlyOwnSidecar(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "other.mp3")
	require.NoError(t, os.WriteFile(other+".metatune.yaml", []byte("title: Other\n"), 0o644))

	hints, err := hintfile.Find(filepath.Join(dir, "song.mp3"))
	require.NoError(t, err)
	assert.Nil(t, hints)
}

func TestParseInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: [unclosed\n"), 0o644))

	_, err := hintfile.Parse(path)
	assert.Error(t, err)
}
