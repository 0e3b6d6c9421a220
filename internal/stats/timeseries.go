package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Dreamlaunchersarc/token-stats/internal/model"
)

const (
	timeSeriesFile = "timeseries.json"

	// BucketKeyLayout is the minute-precision key format; string order is
	// chronological order.
	BucketKeyLayout = "2006-01-02T15:04"

	// WindowMinutes is how far back buckets are retained: 30 minutes of
	// display plus a 5 minute buffer.
	WindowMinutes = 35

	// The seen-id list trades infinite-horizon dedup for bounded growth:
	// above the cap only the most recent entries survive.
	seenIDCap  = 1000
	seenIDKeep = 900
)

// TimeSeriesPath returns the time-series file path.
func (s *Store) TimeSeriesPath() string {
	return filepath.Join(s.dir, timeSeriesFile)
}

// LoadTimeSeries returns the persisted time series, or a fresh empty one when
// the file is missing, corrupt, or of a different format version. This store
// is a display cache, not a system of record, so resets are silent.
func (s *Store) LoadTimeSeries() *model.TimeSeries {
	data, err := os.ReadFile(s.TimeSeriesPath())
	if err != nil {
		return newTimeSeries()
	}
	var ts model.TimeSeries
	if err := json.Unmarshal(data, &ts); err != nil {
		return newTimeSeries()
	}
	if ts.Version != model.TimeSeriesVersion || ts.Buckets == nil {
		return newTimeSeries()
	}
	if ts.SeenRequestIDs == nil {
		ts.SeenRequestIDs = []string{}
	}
	return &ts
}

func newTimeSeries() *model.TimeSeries {
	return &model.TimeSeries{
		Version:        model.TimeSeriesVersion,
		Buckets:        make(map[string]*model.Bucket),
		SeenRequestIDs: []string{},
	}
}

// UpdateTimeSeries folds completed requests into minute buckets. Old buckets
// are pruned first, the seen-id list is trimmed to its cap, and a request id
// that was already counted is skipped with no effect.
func (s *Store) UpdateTimeSeries(ts *model.TimeSeries, completed []model.CompletedRequest) {
	now := s.Now()
	cutoff := now.Add(-WindowMinutes * time.Minute)

	for key := range ts.Buckets {
		bucketTime, err := time.ParseInLocation(BucketKeyLayout, key, now.Location())
		if err != nil || !bucketTime.After(cutoff) {
			delete(ts.Buckets, key)
		}
	}

	if len(ts.SeenRequestIDs) > seenIDCap {
		ts.SeenRequestIDs = ts.SeenRequestIDs[len(ts.SeenRequestIDs)-seenIDKeep:]
	}
	seen := make(map[string]struct{}, len(ts.SeenRequestIDs))
	for _, id := range ts.SeenRequestIDs {
		seen[id] = struct{}{}
	}

	for _, req := range completed {
		if req.RequestID == "" || req.Timestamp.IsZero() {
			continue
		}
		if _, dup := seen[req.RequestID]; dup {
			continue
		}

		local := req.Timestamp.In(now.Location())
		// A request from before the window would land in a bucket that is
		// already due for pruning; never create one.
		if !local.Truncate(time.Minute).After(cutoff) {
			continue
		}

		key := local.Format(BucketKeyLayout)
		bucket, ok := ts.Buckets[key]
		if !ok {
			bucket = &model.Bucket{}
			ts.Buckets[key] = bucket
		}

		bucket.OutputTokens += req.OutputTokens
		bucket.TotalTokens += req.TotalTokens
		bucket.TotalDuration += req.DurationSeconds
		bucket.RequestCount++
		bucket.Cost += req.Cost
		if bucket.TotalDuration > 0 {
			bucket.OutputTPS = float64(bucket.OutputTokens) / bucket.TotalDuration
			bucket.TotalTPS = float64(bucket.TotalTokens) / bucket.TotalDuration
		}

		ts.SeenRequestIDs = append(ts.SeenRequestIDs, req.RequestID)
		seen[req.RequestID] = struct{}{}
	}
}

// SaveTimeSeries atomically writes ts to disk.
func (s *Store) SaveTimeSeries(ts *model.TimeSeries) error {
	return s.saveJSON(s.TimeSeriesPath(), ts)
}
