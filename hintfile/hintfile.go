// Package hintfile reads optional YAML sidecars carrying manual metadata
// hints for an audio file. Hints pin lookup inputs before any source is
// queried.
package hintfile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"go.noctark.ai/metatune/fileutil"
)

const pat = ".metatune.y*ml"

// Find looks for a sidecar next to the audio file: "song.mp3" matches
// "song.mp3.metatune.yaml" (or .yml). Nil when none exists.
func Find(audioPath string) (*Hints, error) {
	matches, err := fileutil.GlobPrefix(audioPath, pat)
	if err != nil {
		return nil, fmt.Errorf("glob for hint file: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	res, err := Parse(matches[0])
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return res, nil
}

func Parse(path string) (*Hints, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var res Hints
	if err := yaml.NewDecoder(f).Decode(&res); err != nil {
		return nil, fmt.Errorf("parse hint file: %w", err)
	}
	res.trim()
	return &res, nil
}

type Hints struct {
	Artist        string `yaml:"artist"`
	Title         string `yaml:"title"`
	Album         string `yaml:"album"`
	Year          string `yaml:"year"`
	RecordingMBID string `yaml:"recording_mbid"`
}

func (h *Hints) trim() {
	h.Artist = strings.TrimSpace(h.Artist)
	h.Title = strings.TrimSpace(h.Title)
	h.Album = strings.TrimSpace(h.Album)
	h.Year = strings.TrimSpace(h.Year)
	h.RecordingMBID = strings.TrimSpace(h.RecordingMBID)
}
