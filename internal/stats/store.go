// Package stats persists the daily rollup and time-series files. Both are
// pretty-printed JSON, written with a temp-file-then-rename replace so a
// crash mid-write never corrupts the previously committed state.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Dreamlaunchersarc/token-stats/internal/debuglog"
)

// Store reads and writes stat files under one directory. The directory is an
// explicit constructor argument so tests can run against a temp dir.
type Store struct {
	dir string
	log *debuglog.Logger

	// Now is the clock used for dating, pruning and backup names.
	// Overridable in tests.
	Now func() time.Time
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, log *debuglog.Logger) *Store {
	return &Store{dir: dir, log: log, Now: time.Now}
}

// Dir returns the stats directory.
func (s *Store) Dir() string {
	return s.dir
}

// saveJSON writes v pretty-printed to path atomically.
func (s *Store) saveJSON(path string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
