// Package ffmpeg invokes the external transcoder for the two container
// operations in the pipeline: normalizing input audio to fingerprintable
// PCM, and muxing a final tag set back into the original container.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"go.noctark.ai/metatune/scratch"
)

const DefaultCommand = "ffmpeg"

// ConversionError means transcoding failed. Fatal for the file's run.
type ConversionError struct {
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("convert audio: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("convert audio: %v", e.Err)
}
func (e *ConversionError) Unwrap() error { return e.Err }

// WriteError means the mux failed. The original file is untouched.
type WriteError struct {
	Stderr string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("write tags: %v: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("write tags: %v", e.Err)
}
func (e *WriteError) Unwrap() error { return e.Err }

type runFunc func(ctx context.Context, name string, args ...string) (stderr string, err error)

// Tool runs ffmpeg. The zero value uses DefaultCommand.
type Tool struct {
	// Command overrides the ffmpeg invocation, eg "ffmpeg -threads 1".
	// Parsed shell-style.
	Command string

	run runFunc
}

// WithRunner injects a command runner, for tests.
func (t *Tool) WithRunner(run func(ctx context.Context, name string, args ...string) (string, error)) {
	t.run = run
}

// Normalize transcodes path into a 44100 Hz stereo PCM WAV registered on
// scr, and returns the new path.
func (t *Tool) Normalize(ctx context.Context, path string, scr *scratch.Set) (string, error) {
	outPath := scr.Path("normalized.wav")
	scr.Register(outPath, scratch.KindNormalizedAudio)

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-vn",
		"-ac", "2",
		"-ar", "44100",
		"-c:a", "pcm_s16le",
		outPath,
	}
	if stderr, err := t.exec(ctx, args); err != nil {
		return "", &ConversionError{Stderr: stderr, Err: err}
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", &ConversionError{Err: fmt.Errorf("no output produced: %w", err)}
	}
	return outPath, nil
}

// Image is embeddable artwork.
type Image struct {
	MIME        string
	TypeID      int // ID3 picture type, 3 = front cover
	Description string
	Data        []byte
}

// TagSet is the final metadata to embed.
type TagSet struct {
	Title  string
	Artist string
	Album  string
	Year   string
	Genre  string
	Lyrics string
	Image  *Image
}

// WriteTags muxes tags into the container at path, attaching artwork as a
// front-cover picture stream when present. All-or-nothing: the original is
// atomically replaced on success and untouched on failure. Temp artwork and
// temp output are registered on scr and removed before returning.
func (t *Tool) WriteTags(ctx context.Context, path string, tags TagSet, scr *scratch.Set) (err error) {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".mp3"
	}

	var artPath string
	if tags.Image != nil && len(tags.Image.Data) > 0 {
		artPath = scr.Path("art" + imageExt(tags.Image.MIME))
		scr.Register(artPath, scratch.KindArtwork)
		if err := os.WriteFile(artPath, tags.Image.Data, 0o644); err != nil {
			return &WriteError{Err: fmt.Errorf("write artwork: %w", err)}
		}
		defer os.Remove(artPath)
	}

	outPath := scr.Path("tagged" + ext)
	scr.Register(outPath, scratch.KindOutput)
	defer func() {
		if err != nil {
			os.Remove(outPath)
		}
	}()

	args := []string{"-y", "-loglevel", "error", "-i", path}
	if artPath != "" {
		args = append(args, "-i", artPath)
	}
	for _, kv := range [][2]string{
		{"title", tags.Title},
		{"artist", tags.Artist},
		{"album", tags.Album},
		{"genre", tags.Genre},
		{"date", tags.Year},
		{"lyrics", tags.Lyrics},
	} {
		if kv[1] != "" {
			args = append(args, "-metadata", kv[0]+"="+kv[1])
		}
	}
	if strings.EqualFold(ext, ".mp3") {
		args = append(args, "-id3v2_version", "3", "-write_id3v1", "1")
	}
	args = append(args, "-map", "0")
	if artPath != "" {
		args = append(args, "-map", "1", "-c", "copy", "-disposition:v:0", "attached_pic")
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, outPath)

	if stderr, err := t.exec(ctx, args); err != nil {
		return &WriteError{Stderr: stderr, Err: err}
	}
	if _, err := os.Stat(outPath); err != nil {
		return &WriteError{Err: fmt.Errorf("no output produced: %w", err)}
	}

	// replace the original only once the mux fully succeeded
	if err := os.Remove(path); err != nil {
		return &WriteError{Err: fmt.Errorf("remove original: %w", err)}
	}
	if err := os.Rename(outPath, path); err != nil {
		return &WriteError{Err: fmt.Errorf("replace original: %w", err)}
	}
	return nil
}

func (t *Tool) exec(ctx context.Context, args []string) (string, error) {
	command := t.Command
	if command == "" {
		command = DefaultCommand
	}
	parts, err := shlex.Split(command)
	if err != nil {
		return "", fmt.Errorf("split command: %w", err)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no command provided")
	}
	name := parts[0]
	args = append(parts[1:], args...)

	run := t.run
	if run == nil {
		run = execRun
	}
	return run(ctx, name, args...)
}

func execRun(ctx context.Context, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return strings.TrimSpace(stderr.String()), fmt.Errorf("run cmd: %w", err)
	}
	return strings.TrimSpace(stderr.String()), nil
}

func imageExt(mime string) string {
	if strings.EqualFold(mime, "image/png") {
		return ".png"
	}
	return ".jpg"
}
