package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Dreamlaunchersarc/token-stats/internal/model"
)

// DateLayout is the calendar-date form used for file names and entry dates.
const DateLayout = "2006-01-02"

// DailyPath returns the stats file path for a date.
func (s *Store) DailyPath(date string) string {
	return filepath.Join(s.dir, date+".json")
}

// LoadDaily returns the stats for date, or an empty skeleton when the file is
// absent. A file that no longer parses is preserved under a timestamped
// backup name before the skeleton takes over; corrupt data is never silently
// discarded.
func (s *Store) LoadDaily(date string) *model.DailyStats {
	path := s.DailyPath(date)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Errorf("read daily stats %s: %v", path, err)
		}
		return newDailyStats(date)
	}

	var ds model.DailyStats
	if err := json.Unmarshal(data, &ds); err != nil {
		backup := filepath.Join(s.dir, fmt.Sprintf("%s.corrupted.%s.json", date, s.Now().Format("150405")))
		if werr := os.WriteFile(backup, data, 0o644); werr != nil {
			s.log.Errorf("back up corrupt daily stats: %v", werr)
		} else {
			s.log.Errorf("corrupt daily stats backed up to %s: %v", backup, err)
		}
		return newDailyStats(date)
	}

	if ds.ByModel == nil {
		ds.ByModel = make(map[string]model.ModelSummary)
	}
	return &ds
}

func newDailyStats(date string) *model.DailyStats {
	return &model.DailyStats{
		Date:     date,
		Sessions: []model.SessionEntry{},
		ByModel:  make(map[string]model.ModelSummary),
	}
}

// UpsertSession replaces the entry with entry.SessionID wholesale, keeping
// only the original Started time, or appends it when the session is new.
// Totals are recomputed afterwards, so applying the same entry twice leaves
// ds identical (idempotent).
func (s *Store) UpsertSession(ds *model.DailyStats, entry model.SessionEntry) {
	replaced := false
	for i := range ds.Sessions {
		if ds.Sessions[i].SessionID != entry.SessionID {
			continue
		}
		entry.Started = ds.Sessions[i].Started
		if entry.Started.IsZero() {
			// Hand-edited or legacy entries may lack a start time.
			entry.Started = entry.LastUpdated
		}
		ds.Sessions[i] = entry
		replaced = true
		break
	}
	if !replaced {
		entry.Started = entry.LastUpdated
		ds.Sessions = append(ds.Sessions, entry)
	}
	RecomputeTotals(ds)
}

// RecomputeTotals rebuilds DailyTotals and ByModel as a pure fold over the
// current session list. Nothing is carried over from the previous values,
// which is what keeps repeated updates drift-free.
func RecomputeTotals(ds *model.DailyStats) {
	totals := model.DailyTotals{SessionCount: len(ds.Sessions)}
	byModel := make(map[string]model.ModelSummary, len(ds.ByModel))

	for _, session := range ds.Sessions {
		totals.Add(session.TokenUsage)
		totals.TotalTokens += session.TotalTokens
		totals.RequestCount += session.RequestCount
		totals.Cost += session.Cost

		for id, summary := range session.ByModel {
			agg := byModel[id]
			agg.Add(summary.TokenUsage)
			agg.RequestCount += summary.RequestCount
			agg.Cost += summary.Cost
			byModel[id] = agg
		}
	}

	ds.DailyTotals = totals
	ds.ByModel = byModel
}

// SaveDaily atomically writes ds to its date's file.
func (s *Store) SaveDaily(ds *model.DailyStats) error {
	return s.saveJSON(s.DailyPath(ds.Date), ds)
}
