// Package transcript turns a session's JSONL transcript into per-model token
// sums and per-request throughput records. The whole file is reprocessed on
// every invocation; output depends only on the transcript's current contents.
package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/Dreamlaunchersarc/token-stats/internal/debuglog"
	"github.com/Dreamlaunchersarc/token-stats/internal/model"
	"github.com/Dreamlaunchersarc/token-stats/internal/pricing"
)

// Durations outside this open interval are discarded: shorter is clock noise,
// longer is a bad timestamp. Discarded, never clamped.
const (
	minDurationSeconds = 0.1
	maxDurationSeconds = 3600.0
)

// rawRecord maps the transcript line fields this package cares about.
type rawRecord struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	Message   *struct {
		Model string `json:"model"`
		Usage *struct {
			InputTokens              *int64 `json:"input_tokens"`
			OutputTokens             *int64 `json:"output_tokens"`
			CacheReadInputTokens     *int64 `json:"cache_read_input_tokens"`
			CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// requestAggregate reconciles the streaming records of one request id.
// Token counts only ever grow (max-per-field fold); timestamps are kept raw
// and parsed at the end so a bad timestamp cannot cost us token totals.
type requestAggregate struct {
	model   string
	usage   model.TokenUsage
	firstTS string
	lastTS  string
}

// Result is everything one transcript scan produces.
type Result struct {
	ByModel           map[string]model.ModelSummary
	Totals            model.Totals
	CompletedRequests []model.CompletedRequest
}

// Aggregator scans transcripts and annotates the results with costs.
type Aggregator struct {
	prices pricing.Table
	log    *debuglog.Logger
}

// New returns an Aggregator pricing against table.
func New(table pricing.Table, log *debuglog.Logger) *Aggregator {
	return &Aggregator{prices: table, log: log}
}

// Aggregate reads the transcript at path front to back. A missing file yields
// an empty Result; a malformed line is skipped and never aborts the scan.
func (a *Aggregator) Aggregate(path string) Result {
	result := Result{ByModel: make(map[string]model.ModelSummary)}

	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			a.log.Errorf("open transcript %s: %v", path, err)
		}
		return result
	}
	defer file.Close()

	requests := make(map[string]*requestAggregate)
	order := make([]string, 0, 64)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // tool results produce long lines

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec rawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			a.log.Warnf("skip malformed transcript line: %v", err)
			continue
		}

		if rec.Type != "assistant" || rec.RequestID == "" {
			continue
		}
		if rec.Message == nil || rec.Message.Usage == nil {
			continue
		}

		usage := rec.Message.Usage
		// A "usage": {} object carries no counts; the record does not make
		// its id a request.
		if usage.InputTokens == nil && usage.OutputTokens == nil &&
			usage.CacheReadInputTokens == nil && usage.CacheCreationInputTokens == nil {
			continue
		}
		snapshot := model.TokenUsage{
			InputTokens:         deref(usage.InputTokens),
			OutputTokens:        deref(usage.OutputTokens),
			CacheReadTokens:     deref(usage.CacheReadInputTokens),
			CacheCreationTokens: deref(usage.CacheCreationInputTokens),
		}
		modelID := rec.Message.Model
		if modelID == "" {
			modelID = model.UnknownModel
		}

		agg, ok := requests[rec.RequestID]
		if !ok {
			agg = &requestAggregate{model: modelID}
			requests[rec.RequestID] = agg
			order = append(order, rec.RequestID)
		} else if agg.model == model.UnknownModel && modelID != model.UnknownModel {
			agg.model = modelID
		}
		agg.usage.Fold(snapshot)

		if rec.Timestamp != "" {
			if agg.firstTS == "" {
				agg.firstTS = rec.Timestamp
			}
			agg.lastTS = rec.Timestamp
		}
	}
	if err := scanner.Err(); err != nil {
		a.log.Errorf("read transcript %s: %v", path, err)
	}

	a.summarize(&result, requests, order)
	return result
}

// summarize groups the reconciled requests by model, computes global totals
// and derives completed requests from the ones with a valid duration.
func (a *Aggregator) summarize(result *Result, requests map[string]*requestAggregate, order []string) {
	for _, agg := range requests {
		summary := result.ByModel[agg.model]
		summary.Add(agg.usage)
		summary.RequestCount++
		result.ByModel[agg.model] = summary
	}
	for id, summary := range result.ByModel {
		summary.Cost = a.prices.Cost(summary.TokenUsage, id)
		result.ByModel[id] = summary
	}

	for _, summary := range result.ByModel {
		result.Totals.Add(summary.TokenUsage)
		result.Totals.Cost += summary.Cost
	}
	result.Totals.RequestCount = int64(len(requests))
	result.Totals.TotalTokens = result.Totals.TokenUsage.Total()

	for _, reqID := range order {
		agg := requests[reqID]
		if agg.firstTS == "" || agg.lastTS == "" {
			continue
		}
		first, err := parseTimestamp(agg.firstTS)
		if err != nil {
			a.log.Warnf("request %s: bad first timestamp %q", reqID, agg.firstTS)
			continue
		}
		last, err := parseTimestamp(agg.lastTS)
		if err != nil {
			a.log.Warnf("request %s: bad last timestamp %q", reqID, agg.lastTS)
			continue
		}

		duration := last.Sub(first).Seconds()
		if duration <= minDurationSeconds || duration >= maxDurationSeconds {
			continue
		}

		total := agg.usage.Total()
		result.CompletedRequests = append(result.CompletedRequests, model.CompletedRequest{
			RequestID:       reqID,
			Model:           agg.model,
			Timestamp:       last,
			DurationSeconds: duration,
			OutputTokens:    agg.usage.OutputTokens,
			TotalTokens:     total,
			OutputTPS:       float64(agg.usage.OutputTokens) / duration,
			TotalTPS:        float64(total) / duration,
			Cost:            a.prices.Cost(agg.usage, agg.model),
		})
	}

	sort.Slice(result.CompletedRequests, func(i, j int) bool {
		x, y := result.CompletedRequests[i], result.CompletedRequests[j]
		if !x.Timestamp.Equal(y.Timestamp) {
			return x.Timestamp.Before(y.Timestamp)
		}
		return x.RequestID < y.RequestID
	})
}

// parseTimestamp accepts RFC3339 with or without sub-second precision, plus
// the millisecond "Z" form older transcripts use.
func parseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.000Z", ts)
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
