// Package tags reads the tag set already present in an audio file before
// processing. Read-only: writing happens through the muxer, never here.
package tags

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sentriz/audiotags"
)

// Embedded is the pre-existing tag snapshot. May be empty.
type Embedded struct {
	Title  string
	Artist string
	Album  string
	Year   string
	Genre  string
}

// Empty reports whether no usable tag was present at all.
func (e Embedded) Empty() bool {
	return e == Embedded{}
}

func CanRead(absPath string) bool {
	switch ext := strings.ToLower(filepath.Ext(absPath)); ext {
	case ".mp3", ".flac", ".aac", ".m4a", ".m4b", ".ogg", ".oga", ".opus", ".wma", ".wav", ".wv", ".webm":
		return true
	}
	return false
}

// https://taglib.org/api/p_propertymapping.html
var alternatives = map[string][]string{
	"title":  {"title"},
	"artist": {"artist"},
	"album":  {"album"},
	"date":   {"date", "year", "originaldate"},
	"genre":  {"genre"},
}

// ReadEmbedded opens path with taglib and extracts the handful of fields
// the fusion scorer cares about.
func ReadEmbedded(path string) (Embedded, error) {
	f, err := audiotags.Open(path)
	if err != nil {
		return Embedded{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	raw := map[string][]string{}
	for k, vs := range f.ReadTags() {
		raw[strings.ToLower(k)] = vs
	}

	return Embedded{
		Title:  first(raw, "title"),
		Artist: first(raw, "artist"),
		Album:  first(raw, "album"),
		Year:   yearOf(first(raw, "date")),
		Genre:  first(raw, "genre"),
	}, nil
}

func first(raw map[string][]string, field string) string {
	for _, k := range alternatives[field] {
		if vs := raw[k]; len(vs) > 0 && vs[0] != "" {
			return vs[0]
		}
	}
	return ""
}

// yearOf trims a date-ish tag value down to yyyy.
func yearOf(date string) string {
	if len(date) < 4 {
		return ""
	}
	year := date[:4]
	for _, r := range year {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return year
}
