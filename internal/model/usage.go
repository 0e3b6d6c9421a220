package model

import "time"

// UnknownModel is the placeholder model id used until a transcript record
// carries a real one.
const UnknownModel = "unknown"

// TokenUsage holds the four token counters tracked per request, session and day.
//
// Field mapping (API -> storage):
//   input_tokens                 -> input_tokens
//   output_tokens                -> output_tokens
//   cache_read_input_tokens      -> cache_read_tokens
//   cache_creation_input_tokens  -> cache_creation_tokens
type TokenUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
}

// Total returns the sum of all four token counters.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// Add accumulates v into u field by field.
func (u *TokenUsage) Add(v TokenUsage) {
	u.InputTokens += v.InputTokens
	u.OutputTokens += v.OutputTokens
	u.CacheReadTokens += v.CacheReadTokens
	u.CacheCreationTokens += v.CacheCreationTokens
}

// Fold merges v into u taking the maximum of each field independently.
// Streaming responses emit cumulative snapshots for the same request, so a
// later record is a superset of an earlier one and max, not sum, is correct.
func (u *TokenUsage) Fold(v TokenUsage) {
	u.InputTokens = max(u.InputTokens, v.InputTokens)
	u.OutputTokens = max(u.OutputTokens, v.OutputTokens)
	u.CacheReadTokens = max(u.CacheReadTokens, v.CacheReadTokens)
	u.CacheCreationTokens = max(u.CacheCreationTokens, v.CacheCreationTokens)
}

// ModelSummary aggregates usage across all requests attributed to one model id.
type ModelSummary struct {
	TokenUsage
	RequestCount int64   `json:"request_count"`
	Cost         float64 `json:"cost"`
}

// Totals aggregates usage across every model within one scope (a session or
// a day).
type Totals struct {
	TokenUsage
	TotalTokens  int64   `json:"total_tokens"`
	RequestCount int64   `json:"request_count"`
	Cost         float64 `json:"cost"`
}

// DailyTotals extends Totals with the number of sessions seen on the day.
type DailyTotals struct {
	Totals
	SessionCount int `json:"session_count"`
}

// CompletedRequest is one finished model call with a measurable duration,
// derived from the first and last streaming record of a request id.
type CompletedRequest struct {
	RequestID       string    `json:"request_id"`
	Model           string    `json:"model"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds"`
	OutputTokens    int64     `json:"output_tokens"`
	TotalTokens     int64     `json:"total_tokens"`
	OutputTPS       float64   `json:"output_tps"`
	TotalTPS        float64   `json:"total_tps"`
	Cost            float64   `json:"cost"`
}

// SessionEntry is one session's contribution to a daily stats file. Every
// hook invocation reprocesses the whole transcript, so an update replaces the
// entry wholesale; only Started survives from the previous version.
type SessionEntry struct {
	SessionID   string                  `json:"session_id"`
	Date        string                  `json:"date"`
	Started     time.Time               `json:"started"`
	LastUpdated time.Time               `json:"last_updated"`
	Project     string                  `json:"project"`
	ByModel     map[string]ModelSummary `json:"by_model"`
	Totals
}

// DailyStats is the persisted per-day document. DailyTotals and ByModel are
// always recomputed from Sessions, never updated incrementally.
type DailyStats struct {
	Date        string                  `json:"date"`
	Sessions    []SessionEntry          `json:"sessions"`
	DailyTotals DailyTotals             `json:"daily_totals"`
	ByModel     map[string]ModelSummary `json:"by_model"`
}

// TimeSeriesVersion is the current on-disk format version of TimeSeries.
const TimeSeriesVersion = 1

// Bucket is one minute of completed-request throughput in the time series.
// OutputTPS and TotalTPS are recomputed from the cumulative fields on every
// update rather than kept as running averages.
type Bucket struct {
	OutputTokens  int64   `json:"output_tokens"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalDuration float64 `json:"total_duration"`
	RequestCount  int64   `json:"request_count"`
	OutputTPS     float64 `json:"output_tps"`
	TotalTPS      float64 `json:"total_tps"`
	Cost          float64 `json:"cost"`
}

// TimeSeries is the rolling minute-bucket store backing the recent-throughput
// graph. Bucket keys are minute-precision timestamps ("2006-01-02T15:04") so
// they sort chronologically as strings.
type TimeSeries struct {
	Version        int                `json:"version"`
	Buckets        map[string]*Bucket `json:"buckets"`
	SeenRequestIDs []string           `json:"seen_request_ids"`
}
