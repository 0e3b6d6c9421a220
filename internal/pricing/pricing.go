package pricing

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/Dreamlaunchersarc/token-stats/internal/model"
)

// Price is the cost vector for one model, in USD per million tokens.
type Price struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read"`
	CacheWrite float64 `json:"cache_write"`
}

// defaultPrices covers model ids commonly seen in transcripts.
// Source: https://docs.anthropic.com/en/docs/about-claude/pricing
var defaultPrices = map[string]Price{
	"claude-opus-4-5-20251101":   {Input: 5.00, Output: 25.00, CacheRead: 0.50, CacheWrite: 6.25},
	"claude-sonnet-4-20250514":   {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
	"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
	"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00, CacheRead: 0.08, CacheWrite: 1.00},
}

// familyPrices are conservative estimates used when no table key matches.
// Cache pricing follows the standard multipliers (0.1x read, 1.25x write).
var familyPrices = map[string]Price{
	"opus":   {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
	"sonnet": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
	"haiku":  {Input: 1.00, Output: 5.00, CacheRead: 0.10, CacheWrite: 1.25},
}

// Table resolves model ids to prices through an ordered list of strategies:
// exact key match, then substring match against known keys (longest key wins,
// ties broken lexicographically), then family fallback on the model name.
type Table struct {
	prices map[string]Price
}

// Default returns a table holding only the built-in prices.
func Default() Table {
	prices := make(map[string]Price, len(defaultPrices))
	for k, v := range defaultPrices {
		prices[k] = v
	}
	return Table{prices: prices}
}

// Load returns the default table merged with the override file at path.
// An absent, unreadable or malformed override file leaves the defaults
// standing; overrides are best-effort user data, never a failure.
func Load(path string) Table {
	t := Default()
	if path == "" {
		return t
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t
	}
	var overrides map[string]Price
	if err := json.Unmarshal(data, &overrides); err != nil {
		return t
	}
	for k, v := range overrides {
		t.prices[k] = v
	}
	return t
}

// strategy attempts to resolve a model id to a price.
type strategy func(modelID string) (Price, bool)

func (t Table) exactMatch(modelID string) (Price, bool) {
	p, ok := t.prices[modelID]
	return p, ok
}

// substringMatch matches the model id against table keys in either direction.
// Multiple keys can match; the longest wins so that a more specific key like
// "claude-3-5-sonnet-20241022" beats a bare "claude-3-5-sonnet" override.
func (t Table) substringMatch(modelID string) (Price, bool) {
	var best string
	found := false
	for key := range t.prices {
		if !strings.Contains(modelID, key) && !strings.Contains(key, modelID) {
			continue
		}
		if !found || len(key) > len(best) || (len(key) == len(best) && key < best) {
			best = key
			found = true
		}
	}
	if !found {
		return Price{}, false
	}
	return t.prices[best], true
}

// familyMatch never fails: anything that is not opus or haiku prices as sonnet.
func (t Table) familyMatch(modelID string) (Price, bool) {
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "opus"):
		return familyPrices["opus"], true
	case strings.Contains(lower, "haiku"):
		return familyPrices["haiku"], true
	}
	return familyPrices["sonnet"], true
}

// Resolve returns the price vector for modelID, trying each strategy in order.
func (t Table) Resolve(modelID string) Price {
	strategies := []strategy{t.exactMatch, t.substringMatch, t.familyMatch}
	for _, s := range strategies {
		if p, ok := s(modelID); ok {
			return p
		}
	}
	// familyMatch always succeeds; unreachable.
	return familyPrices["sonnet"]
}

// Cost returns the USD cost of the given usage under modelID's resolved price.
func (t Table) Cost(usage model.TokenUsage, modelID string) float64 {
	p := t.Resolve(modelID)
	cost := float64(usage.InputTokens) / 1e6 * p.Input
	cost += float64(usage.OutputTokens) / 1e6 * p.Output
	cost += float64(usage.CacheReadTokens) / 1e6 * p.CacheRead
	cost += float64(usage.CacheCreationTokens) / 1e6 * p.CacheWrite
	return cost
}

// Models returns the table's known model ids, sorted.
func (t Table) Models() []string {
	ids := make([]string, 0, len(t.prices))
	for k := range t.prices {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return ids
}
