// Package scratch tracks the temporary files created during one processing
// run and guarantees their removal on every exit path.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Kind says why a temp artifact exists. Useful in warnings.
type Kind string

const (
	KindNormalizedAudio Kind = "normalized-audio"
	KindArtwork         Kind = "artwork"
	KindOutput          Kind = "output-container"
)

// Artifact is one registered temp file. Owned by the run that created it.
type Artifact struct {
	Path string
	Kind Kind
}

// Set is a per-run registry of temp artifacts. Paths produced by one Set
// carry a unique run id, so concurrent runs sharing a work directory never
// collide. Safe for concurrent use.
type Set struct {
	dir   string
	runID string

	mu        sync.Mutex
	artifacts []Artifact
	released  bool
}

// NewSet creates the work directory if absent and returns an empty set.
func NewSet(dir string) (*Set, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Set{dir: dir, runID: uuid.NewString()}, nil
}

// Path returns a collision-free path for a new artifact with the given
// suffix. The file is not created.
func (s *Set) Path(suffix string) string {
	return filepath.Join(s.dir, s.runID+"-"+suffix)
}

// Register records a temp file for removal at run exit. Call it as soon as
// the path is decided, before the file is written, so a half-written file
// is still cleaned up.
func (s *Set) Register(path string, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, Artifact{Path: path, Kind: kind})
}

// Release removes every registered artifact. Idempotent: a second call, or
// an already-removed path, is treated as clean. Individual failures are
// returned as warnings and never mask the run's primary result.
func (s *Set) Release() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true

	var warnings []error
	for _, a := range s.artifacts {
		err := os.Remove(a.Path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		warnings = append(warnings, fmt.Errorf("remove %s %s: %w", a.Kind, a.Path, err))
	}
	s.artifacts = nil
	return warnings
}
