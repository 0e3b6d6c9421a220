// Package janitor ages out stored data: daily stats files (and their corrupt
// backups) past the retention window, plus archive rows, which it follows
// with a vacuum.
package janitor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/Dreamlaunchersarc/token-stats/internal/archive"
	"github.com/Dreamlaunchersarc/token-stats/internal/config"
	"github.com/Dreamlaunchersarc/token-stats/internal/debuglog"
	"github.com/Dreamlaunchersarc/token-stats/internal/stats"
)

// Daily files are "<date>.json"; corrupt backups are
// "<date>.corrupted.<HHMMSS>.json". Both carry their date up front.
var statsFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})(\.corrupted\.\d{6})?\.json$`)

// Janitor prunes one stats directory.
type Janitor struct {
	cfg *config.Config
	log *debuglog.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

// New returns a Janitor for cfg.
func New(cfg *config.Config, log *debuglog.Logger) *Janitor {
	return &Janitor{cfg: cfg, log: log, Now: time.Now}
}

// Sweep removes daily files and archive rows older than the retention window.
// Returns the number of files deleted.
func (j *Janitor) Sweep() (int, error) {
	cutoff := j.Now().AddDate(0, 0, -j.cfg.RetentionDays)
	cutoffDate := cutoff.Format(stats.DateLayout)

	removed, err := j.pruneFiles(cutoffDate)
	if err != nil {
		return removed, err
	}

	if !j.cfg.DisableArchive {
		j.pruneArchive(cutoff)
	}
	return removed, nil
}

func (j *Janitor) pruneFiles(cutoffDate string) (int, error) {
	entries, err := os.ReadDir(j.cfg.StatsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read stats dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := statsFilePattern.FindStringSubmatch(entry.Name())
		if m == nil || m[1] >= cutoffDate {
			continue
		}
		path := filepath.Join(j.cfg.StatsDir, entry.Name())
		if err := os.Remove(path); err != nil {
			j.log.Errorf("remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (j *Janitor) pruneArchive(cutoff time.Time) {
	if _, err := os.Stat(j.cfg.ArchivePath()); err != nil {
		return
	}
	db, err := archive.Open(j.cfg.ArchivePath())
	if err != nil {
		j.log.Errorf("open archive: %v", err)
		return
	}
	defer db.Close()

	pruned, err := db.PruneBefore(cutoff)
	if err != nil {
		j.log.Errorf("prune archive: %v", err)
		return
	}
	if pruned > 0 {
		if err := db.Vacuum(); err != nil {
			j.log.Errorf("vacuum archive: %v", err)
		}
	}
}
