// Package hook runs one PostToolUse invocation end to end: aggregate the
// session transcript, then update the daily rollup, the time series and the
// archive under the cross-process lock. Nothing here ever fails the caller;
// every anomaly degrades to a no-op and a diagnostic log line.
package hook

import (
	"encoding/json"
	"io"
	"os"

	"github.com/Dreamlaunchersarc/token-stats/internal/archive"
	"github.com/Dreamlaunchersarc/token-stats/internal/config"
	"github.com/Dreamlaunchersarc/token-stats/internal/debuglog"
	"github.com/Dreamlaunchersarc/token-stats/internal/lock"
	"github.com/Dreamlaunchersarc/token-stats/internal/model"
	"github.com/Dreamlaunchersarc/token-stats/internal/pricing"
	"github.com/Dreamlaunchersarc/token-stats/internal/stats"
	"github.com/Dreamlaunchersarc/token-stats/internal/transcript"
)

// Input is the invocation object read from stdin.
type Input struct {
	TranscriptPath string `json:"transcript_path"`
	SessionID      string `json:"session_id"`
	CWD            string `json:"cwd"`
}

// Hook wires the components of one invocation. All dependencies are explicit
// so tests can run against temp storage and an in-process lock.
type Hook struct {
	cfg    *config.Config
	log    *debuglog.Logger
	store  *stats.Store
	locker lock.Locker
}

// New builds a Hook from configuration, using the process-wide file lock.
func New(cfg *config.Config, log *debuglog.Logger) *Hook {
	return &Hook{
		cfg:    cfg,
		log:    log,
		store:  stats.NewStore(cfg.StatsDir, log),
		locker: lock.NewFileLock(cfg.LockPath()),
	}
}

// NewWithDeps builds a Hook with an explicit store and locker. Used by tests.
func NewWithDeps(cfg *config.Config, log *debuglog.Logger, store *stats.Store, locker lock.Locker) *Hook {
	return &Hook{cfg: cfg, log: log, store: store, locker: locker}
}

// Run processes one invocation whose JSON input is read from r. It always
// returns without error semantics for the caller: the hook is a best-effort
// side channel, so malformed input, missing transcripts and zero-token
// sessions all end quietly with no state change.
func (h *Hook) Run(r io.Reader) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		h.log.Errorf("invalid hook input: %v", err)
		return
	}
	if in.TranscriptPath == "" {
		return
	}
	if in.SessionID == "" {
		in.SessionID = "unknown"
	}

	// Aggregation is read-only and runs outside the lock.
	table := pricing.Load(h.cfg.PricingFile)
	result := transcript.New(table, h.log).Aggregate(in.TranscriptPath)
	if result.Totals.TotalTokens == 0 {
		return
	}

	now := h.store.Now()
	entry := model.SessionEntry{
		SessionID:   in.SessionID,
		Date:        now.Format(stats.DateLayout),
		LastUpdated: now,
		Project:     in.CWD,
		ByModel:     result.ByModel,
		Totals:      result.Totals,
	}

	// The lock file lives in the stats dir, so the dir must exist first.
	if err := os.MkdirAll(h.cfg.StatsDir, 0o755); err != nil {
		h.log.Errorf("create stats dir: %v", err)
		return
	}

	err := lock.With(h.locker, func() error {
		daily := h.store.LoadDaily(entry.Date)
		h.store.UpsertSession(daily, entry)
		if err := h.store.SaveDaily(daily); err != nil {
			return err
		}

		if len(result.CompletedRequests) > 0 {
			series := h.store.LoadTimeSeries()
			h.store.UpdateTimeSeries(series, result.CompletedRequests)
			if err := h.store.SaveTimeSeries(series); err != nil {
				return err
			}
		}

		h.archiveCompleted(in, result.CompletedRequests)
		return nil
	})
	if err != nil {
		h.log.Errorf("update stats for session %s: %v", in.SessionID, err)
	}
}

// archiveCompleted feeds the SQLite archive. Archive trouble never bubbles
// up; the JSON stores are already committed by the time we get here.
func (h *Hook) archiveCompleted(in Input, requests []model.CompletedRequest) {
	if h.cfg.DisableArchive || len(requests) == 0 {
		return
	}
	db, err := archive.Open(h.cfg.ArchivePath())
	if err != nil {
		h.log.Errorf("open archive: %v", err)
		return
	}
	defer db.Close()
	if _, err := db.InsertCompleted(in.SessionID, in.CWD, requests); err != nil {
		h.log.Errorf("archive session %s: %v", in.SessionID, err)
	}
}
