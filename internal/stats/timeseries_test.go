package stats

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dreamlaunchersarc/token-stats/internal/model"
)

var seriesNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newSeriesStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	s.Now = func() time.Time { return seriesNow }
	return s
}

func completedAt(id string, ts time.Time) model.CompletedRequest {
	return model.CompletedRequest{
		RequestID:       id,
		Model:           "m",
		Timestamp:       ts,
		DurationSeconds: 2.0,
		OutputTokens:    100,
		TotalTokens:     400,
		OutputTPS:       50,
		TotalTPS:        200,
		Cost:            0.01,
	}
}

func TestLoadTimeSeriesMissing(t *testing.T) {
	s := newSeriesStore(t)

	ts := s.LoadTimeSeries()

	assert.Equal(t, model.TimeSeriesVersion, ts.Version)
	assert.NotNil(t, ts.Buckets)
	assert.NotNil(t, ts.SeenRequestIDs)
}

func TestLoadTimeSeriesCorruptResetsSilently(t *testing.T) {
	s := newSeriesStore(t)
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))
	require.NoError(t, os.WriteFile(s.TimeSeriesPath(), []byte("][nope"), 0o644))

	ts := s.LoadTimeSeries()

	assert.Empty(t, ts.Buckets)
	assert.Equal(t, model.TimeSeriesVersion, ts.Version)
}

func TestLoadTimeSeriesWrongVersionResets(t *testing.T) {
	s := newSeriesStore(t)
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))
	legacy := `{"version": 0, "buckets": {"2025-06-01T11:59": {"output_tokens": 5}}}`
	require.NoError(t, os.WriteFile(s.TimeSeriesPath(), []byte(legacy), 0o644))

	ts := s.LoadTimeSeries()

	assert.Empty(t, ts.Buckets, "legacy format resets to an empty store")
}

func TestUpdateTimeSeriesBucketsByMinute(t *testing.T) {
	s := newSeriesStore(t)
	ts := s.LoadTimeSeries()

	at := seriesNow.Add(-2 * time.Minute).Add(10 * time.Second)
	s.UpdateTimeSeries(ts, []model.CompletedRequest{
		completedAt("r1", at),
		completedAt("r2", at.Add(5*time.Second)), // same minute
	})

	key := at.Format(BucketKeyLayout)
	require.Contains(t, ts.Buckets, key)
	bucket := ts.Buckets[key]
	assert.Equal(t, int64(200), bucket.OutputTokens)
	assert.Equal(t, int64(800), bucket.TotalTokens)
	assert.Equal(t, int64(2), bucket.RequestCount)
	assert.InDelta(t, 4.0, bucket.TotalDuration, 1e-9)
	assert.InDelta(t, 200.0/4.0, bucket.OutputTPS, 1e-9, "tps recomputed from cumulative fields")
	assert.InDelta(t, 800.0/4.0, bucket.TotalTPS, 1e-9)
	assert.InDelta(t, 0.02, bucket.Cost, 1e-9)
	assert.ElementsMatch(t, []string{"r1", "r2"}, ts.SeenRequestIDs)
}

func TestUpdateTimeSeriesDedupByRequestID(t *testing.T) {
	s := newSeriesStore(t)
	ts := s.LoadTimeSeries()
	req := completedAt("r1", seriesNow.Add(-time.Minute))

	s.UpdateTimeSeries(ts, []model.CompletedRequest{req, req})
	s.UpdateTimeSeries(ts, []model.CompletedRequest{req}) // replay on a later re-scan

	key := req.Timestamp.Format(BucketKeyLayout)
	require.Contains(t, ts.Buckets, key)
	assert.Equal(t, int64(1), ts.Buckets[key].RequestCount, "a request id is only ever counted once")
	assert.Equal(t, []string{"r1"}, ts.SeenRequestIDs)
}

func TestUpdateTimeSeriesPrunesOldBuckets(t *testing.T) {
	s := newSeriesStore(t)
	ts := s.LoadTimeSeries()

	oldKey := seriesNow.Add(-40 * time.Minute).Format(BucketKeyLayout)
	edgeKey := seriesNow.Add(-WindowMinutes * time.Minute).Format(BucketKeyLayout)
	freshKey := seriesNow.Add(-10 * time.Minute).Format(BucketKeyLayout)
	ts.Buckets[oldKey] = &model.Bucket{RequestCount: 1}
	ts.Buckets[edgeKey] = &model.Bucket{RequestCount: 1}
	ts.Buckets[freshKey] = &model.Bucket{RequestCount: 1}
	ts.Buckets["not-a-timestamp"] = &model.Bucket{RequestCount: 1}

	s.UpdateTimeSeries(ts, nil)

	assert.NotContains(t, ts.Buckets, oldKey)
	assert.NotContains(t, ts.Buckets, edgeKey, "bucket exactly at the cutoff is dropped")
	assert.Contains(t, ts.Buckets, freshKey)
	assert.NotContains(t, ts.Buckets, "not-a-timestamp")
}

func TestUpdateTimeSeriesSkipsRequestsOlderThanWindow(t *testing.T) {
	s := newSeriesStore(t)
	ts := s.LoadTimeSeries()

	stale := completedAt("stale", seriesNow.Add(-40*time.Minute))
	edge := completedAt("edge", seriesNow.Add(-WindowMinutes*time.Minute))
	fresh := completedAt("fresh", seriesNow.Add(-time.Minute))

	s.UpdateTimeSeries(ts, []model.CompletedRequest{stale, edge, fresh})

	assert.NotContains(t, ts.Buckets, stale.Timestamp.Format(BucketKeyLayout), "no bucket created past the cutoff")
	assert.NotContains(t, ts.Buckets, edge.Timestamp.Format(BucketKeyLayout))
	assert.Contains(t, ts.Buckets, fresh.Timestamp.Format(BucketKeyLayout))
	assert.Equal(t, []string{"fresh"}, ts.SeenRequestIDs)
}

func TestUpdateTimeSeriesTrimsSeenIDs(t *testing.T) {
	s := newSeriesStore(t)
	ts := s.LoadTimeSeries()
	for i := 0; i < 1001; i++ {
		ts.SeenRequestIDs = append(ts.SeenRequestIDs, fmt.Sprintf("req-%04d", i))
	}

	s.UpdateTimeSeries(ts, []model.CompletedRequest{completedAt("fresh", seriesNow)})

	assert.Len(t, ts.SeenRequestIDs, 901, "trimmed to the most recent 900 plus the new id")
	assert.Equal(t, "req-0101", ts.SeenRequestIDs[0], "oldest ids dropped first")
	assert.Equal(t, "fresh", ts.SeenRequestIDs[len(ts.SeenRequestIDs)-1])
}

func TestUpdateTimeSeriesSeenIDsAtCapNotTrimmed(t *testing.T) {
	s := newSeriesStore(t)
	ts := s.LoadTimeSeries()
	for i := 0; i < 1000; i++ {
		ts.SeenRequestIDs = append(ts.SeenRequestIDs, fmt.Sprintf("req-%04d", i))
	}

	s.UpdateTimeSeries(ts, nil)

	assert.Len(t, ts.SeenRequestIDs, 1000, "the cap is exclusive")
}

func TestUpdateTimeSeriesSkipsZeroTimestamp(t *testing.T) {
	s := newSeriesStore(t)
	ts := s.LoadTimeSeries()

	req := completedAt("r1", time.Time{})
	s.UpdateTimeSeries(ts, []model.CompletedRequest{req})

	assert.Empty(t, ts.Buckets)
	assert.Empty(t, ts.SeenRequestIDs)
}

func TestTimeSeriesSaveLoadRoundTrip(t *testing.T) {
	s := newSeriesStore(t)
	ts := s.LoadTimeSeries()
	s.UpdateTimeSeries(ts, []model.CompletedRequest{completedAt("r1", seriesNow.Add(-time.Minute))})
	require.NoError(t, s.SaveTimeSeries(ts))

	reloaded := s.LoadTimeSeries()
	assert.Equal(t, ts.Buckets, reloaded.Buckets)
	assert.Equal(t, ts.SeenRequestIDs, reloaded.SeenRequestIDs)
}
