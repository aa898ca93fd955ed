package rank

import (
	"time"

	"github.com/elonfeng/pitchpulse/pkg/source"
)

// Bucket labels, in display order.
const (
	BucketJustNow   = "Just now"
	BucketToday     = "Today"
	BucketYesterday = "Yesterday"
	BucketThisWeek  = "This week"
	BucketEarlier   = "Earlier"
)

var bucketOrder = []string{BucketJustNow, BucketToday, BucketYesterday, BucketThisWeek, BucketEarlier}

// Bucket is one recency group.
type Bucket struct {
	Label string        `json:"label"`
	Items []source.Item `json:"items"`
}

// BucketFor classifies one publish time by minutes elapsed.
func BucketFor(published, now time.Time) string {
	if published.IsZero() {
		return BucketEarlier
	}
	minutes := now.Sub(published).Minutes()
	switch {
	case minutes < 60:
		return BucketJustNow
	case minutes < 1440:
		return BucketToday
	case minutes < 2880:
		return BucketYesterday
	case minutes < 10080:
		return BucketThisWeek
	default:
		return BucketEarlier
	}
}

// Buckets groups items in fixed label order, keeping input order within a
// group. Empty groups are omitted.
func Buckets(items []source.Item, now time.Time) []Bucket {
	groups := make(map[string][]source.Item, len(bucketOrder))
	for _, it := range items {
		label := BucketFor(it.PublishedAt, now)
		groups[label] = append(groups[label], it)
	}

	var out []Bucket
	for _, label := range bucketOrder {
		if len(groups[label]) == 0 {
			continue
		}
		out = append(out, Bucket{Label: label, Items: groups[label]})
	}
	return out
}
