// Package dedup collapses duplicate items at three levels: within one
// ingestion batch, against storage, and within a rendered list.
package dedup

import (
	"strings"

	"github.com/elonfeng/pitchpulse/pkg/source"
)

// Batch drops raw records whose external id already appeared earlier in
// the batch. Records without an external id are keyed by URL, then by
// permalink, the same fallback the normalizer uses for the stored key.
func Batch(records []source.RawRecord) []source.RawRecord {
	seen := make(map[string]bool, len(records))
	out := make([]source.RawRecord, 0, len(records))
	for _, rec := range records {
		key := batchKey(rec)
		if key != "" {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, rec)
	}
	return out
}

func batchKey(rec source.RawRecord) string {
	if id := strings.TrimSpace(rec.ExternalID); id != "" {
		return id
	}
	if u := strings.TrimSpace(rec.URL); u != "" {
		return u
	}
	return strings.TrimSpace(rec.Permalink)
}

// Action is the storage-level upsert decision.
type Action string

const (
	ActionInsert  Action = "insert"
	ActionRefresh Action = "refresh"
)

// Decision carries the action and the row to write.
type Decision struct {
	Action Action
	Item   source.Item
}

// Decide compares a normalized candidate with the stored row for the same
// (kind, external id). A refresh keeps every stored field except the
// engagement count and fetch time.
func Decide(candidate source.Item, existing *source.Item) Decision {
	if existing == nil {
		return Decision{Action: ActionInsert, Item: candidate}
	}
	merged := *existing
	merged.Engagement = candidate.Engagement
	merged.FetchedAt = candidate.FetchedAt
	return Decision{Action: ActionRefresh, Item: merged}
}

// ByURL removes later items whose URL matches an earlier one. Items with
// no URL are always kept.
func ByURL(items []source.Item) []source.Item {
	seen := make(map[string]bool, len(items))
	out := make([]source.Item, 0, len(items))
	for _, item := range items {
		if item.URL != "" {
			if seen[item.URL] {
				continue
			}
			seen[item.URL] = true
		}
		out = append(out, item)
	}
	return out
}
