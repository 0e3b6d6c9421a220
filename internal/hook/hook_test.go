package hook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dreamlaunchersarc/token-stats/internal/archive"
	"github.com/Dreamlaunchersarc/token-stats/internal/config"
	"github.com/Dreamlaunchersarc/token-stats/internal/debuglog"
	"github.com/Dreamlaunchersarc/token-stats/internal/lock"
	"github.com/Dreamlaunchersarc/token-stats/internal/model"
	"github.com/Dreamlaunchersarc/token-stats/internal/stats"
)

var hookNow = time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)

func newTestHook(t *testing.T) (*Hook, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{StatsDir: dir}
	cfg.ApplyDefaults()

	log := debuglog.Nop()
	store := stats.NewStore(dir, log)
	store.Now = func() time.Time { return hookNow }
	return NewWithDeps(cfg, log, store, &lock.Mutex{}), cfg
}

func writeTranscript(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func hookInput(transcriptPath string) string {
	return fmt.Sprintf(`{"transcript_path":%q,"session_id":"sess-1","cwd":"/home/u/proj"}`, transcriptPath)
}

// Timestamps close to hookNow so time-series buckets survive pruning.
func sampleLines() []string {
	return []string{
		`{"type":"assistant","requestId":"r1","timestamp":"2025-06-01T11:58:00Z","message":{"model":"claude-sonnet-4-20250514","usage":{"input_tokens":100,"output_tokens":5}}}`,
		`{"type":"assistant","requestId":"r1","timestamp":"2025-06-01T11:58:04Z","message":{"model":"claude-sonnet-4-20250514","usage":{"input_tokens":100,"output_tokens":50}}}`,
	}
}

func TestRunEndToEnd(t *testing.T) {
	h, cfg := newTestHook(t)
	path := writeTranscript(t, t.TempDir(), sampleLines()...)

	h.Run(strings.NewReader(hookInput(path)))

	// Daily file.
	data, err := os.ReadFile(filepath.Join(cfg.StatsDir, "2025-06-01.json"))
	require.NoError(t, err)
	var daily model.DailyStats
	require.NoError(t, json.Unmarshal(data, &daily))
	require.Len(t, daily.Sessions, 1)
	assert.Equal(t, "sess-1", daily.Sessions[0].SessionID)
	assert.Equal(t, "/home/u/proj", daily.Sessions[0].Project)
	assert.Equal(t, int64(150), daily.DailyTotals.TotalTokens)
	assert.Equal(t, int64(1), daily.DailyTotals.RequestCount)

	// Time series.
	data, err = os.ReadFile(filepath.Join(cfg.StatsDir, "timeseries.json"))
	require.NoError(t, err)
	var series model.TimeSeries
	require.NoError(t, json.Unmarshal(data, &series))
	assert.Equal(t, []string{"r1"}, series.SeenRequestIDs)
	require.Contains(t, series.Buckets, "2025-06-01T11:58")
	assert.Equal(t, int64(50), series.Buckets["2025-06-01T11:58"].OutputTokens)

	// Archive.
	db, err := archive.Open(cfg.ArchivePath())
	require.NoError(t, err)
	defer db.Close()
	totals, err := db.TotalsForSession("sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.RequestCount)
}

func TestRunIsIdempotent(t *testing.T) {
	h, cfg := newTestHook(t)
	path := writeTranscript(t, t.TempDir(), sampleLines()...)
	dailyPath := filepath.Join(cfg.StatsDir, "2025-06-01.json")

	h.Run(strings.NewReader(hookInput(path)))
	first, err := os.ReadFile(dailyPath)
	require.NoError(t, err)

	h.Run(strings.NewReader(hookInput(path)))
	second, err := os.ReadFile(dailyPath)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second), "reprocessing the same transcript changes nothing")

	var series model.TimeSeries
	data, err := os.ReadFile(filepath.Join(cfg.StatsDir, "timeseries.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &series))
	assert.Equal(t, int64(1), series.Buckets["2025-06-01T11:58"].RequestCount, "replayed request not double counted")
}

func TestRunGrowingTranscriptSupersedesSession(t *testing.T) {
	h, cfg := newTestHook(t)
	dir := t.TempDir()
	path := writeTranscript(t, dir, sampleLines()...)
	h.Run(strings.NewReader(hookInput(path)))

	more := append(sampleLines(),
		`{"type":"assistant","requestId":"r2","timestamp":"2025-06-01T11:59:00Z","message":{"model":"claude-sonnet-4-20250514","usage":{"input_tokens":40,"output_tokens":10}}}`,
	)
	path = writeTranscript(t, dir, more...)
	h.Run(strings.NewReader(hookInput(path)))

	data, err := os.ReadFile(filepath.Join(cfg.StatsDir, "2025-06-01.json"))
	require.NoError(t, err)
	var daily model.DailyStats
	require.NoError(t, json.Unmarshal(data, &daily))
	require.Len(t, daily.Sessions, 1, "same session replaced, not duplicated")
	assert.Equal(t, int64(200), daily.DailyTotals.TotalTokens)
	assert.Equal(t, int64(2), daily.DailyTotals.RequestCount)
}

func TestRunZeroTokenTranscriptWritesNothing(t *testing.T) {
	h, cfg := newTestHook(t)
	path := writeTranscript(t, t.TempDir(),
		`{"type":"user","message":{}}`,
		`{"type":"assistant","requestId":"r1","message":{"model":"m","usage":{"input_tokens":0,"output_tokens":0}}}`,
	)

	h.Run(strings.NewReader(hookInput(path)))

	_, err := os.Stat(filepath.Join(cfg.StatsDir, "2025-06-01.json"))
	assert.True(t, os.IsNotExist(err), "zero-token sessions leave no trace")
}

func TestRunMissingTranscriptWritesNothing(t *testing.T) {
	h, cfg := newTestHook(t)

	h.Run(strings.NewReader(hookInput(filepath.Join(t.TempDir(), "gone.jsonl"))))

	_, err := os.Stat(filepath.Join(cfg.StatsDir, "2025-06-01.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunBadInputWritesNothing(t *testing.T) {
	h, cfg := newTestHook(t)

	h.Run(strings.NewReader("this is not json"))
	h.Run(strings.NewReader(`{"session_id":"sess-1"}`)) // no transcript_path

	entries, err := os.ReadDir(cfg.StatsDir)
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestRunDefaultsSessionID(t *testing.T) {
	h, cfg := newTestHook(t)
	path := writeTranscript(t, t.TempDir(), sampleLines()...)

	h.Run(strings.NewReader(fmt.Sprintf(`{"transcript_path":%q}`, path)))

	data, err := os.ReadFile(filepath.Join(cfg.StatsDir, "2025-06-01.json"))
	require.NoError(t, err)
	var daily model.DailyStats
	require.NoError(t, json.Unmarshal(data, &daily))
	require.Len(t, daily.Sessions, 1)
	assert.Equal(t, "unknown", daily.Sessions[0].SessionID)
}

func TestRunArchiveDisabled(t *testing.T) {
	h, cfg := newTestHook(t)
	cfg.DisableArchive = true
	path := writeTranscript(t, t.TempDir(), sampleLines()...)

	h.Run(strings.NewReader(hookInput(path)))

	_, err := os.Stat(cfg.ArchivePath())
	assert.True(t, os.IsNotExist(err))
}
