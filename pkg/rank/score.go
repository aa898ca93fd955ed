// Package rank scores items under three separate product policies and
// groups them by recency. All functions are pure.
package rank

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/elonfeng/pitchpulse/pkg/source"
)

// DefaultReferenceMax is the fixed ceiling used for absolute engagement badges.
const DefaultReferenceMax = 5000

const editorialWeight = 1.3

// ageHours returns +Inf for an unknown publish time so every score built on
// it decays to its floor instead of going NaN.
func ageHours(published, now time.Time) float64 {
	if published.IsZero() || published.Unix() <= 0 {
		return math.Inf(1)
	}
	return now.Sub(published).Hours()
}

// Index is the bounded display score in [1, 99].
func Index(item source.Item, now time.Time) int {
	age := ageHours(item.PublishedAt, now)

	recency := 100 - age*4
	if math.IsInf(age, 1) || recency < 0 {
		recency = 0
	}
	if recency > 100 {
		recency = 100
	}

	engagement := math.Log10(float64(max(item.Engagement, 0))+1) * 40
	if engagement > 100 {
		engagement = 100
	}

	weight := 1.0
	if item.Kind == source.KindEditorial {
		weight = editorialWeight
	}

	raw := (recency*0.4 + engagement*0.6) * weight
	return min(max(int(math.Round(raw)), 1), 99)
}

// Hot is the unbounded trending velocity: engagement over age^1.5, with age
// floored at one hour.
func Hot(item source.Item, now time.Time) float64 {
	hours := math.Max(1, ageHours(item.PublishedAt, now))
	if math.IsInf(hours, 1) {
		return 0
	}
	return float64(max(item.Engagement, 0)) / math.Pow(hours, 1.5)
}

// Normalized maps an engagement count onto a 1-100 log scale relative to
// referenceMax. ok is false when there is nothing to show.
func Normalized(engagement, referenceMax int) (score int, ok bool) {
	if engagement <= 0 {
		return 0, false
	}
	if referenceMax < engagement {
		referenceMax = engagement
	}
	v := math.Log(float64(engagement)+1) / math.Log(float64(referenceMax)+1) * 100
	return min(max(int(math.Round(v)), 1), 100), true
}

// MaxEngagement returns the highest engagement in a result set, for the
// batch-relative Normalized call site.
func MaxEngagement(items []source.Item) int {
	m := 0
	for _, it := range items {
		m = max(m, it.Engagement)
	}
	return m
}

// Policy selects one of the three orderings.
type Policy string

const (
	PolicyIndex Policy = "index"
	PolicyHot   Policy = "hot"
	PolicyPulse Policy = "pulse"
)

// ParsePolicy accepts "" as the index policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyIndex:
		return PolicyIndex, nil
	case PolicyHot, PolicyPulse:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown sort policy %q", s)
}

// Scored pairs an item with its value under a policy.
type Scored struct {
	source.Item
	Score float64 `json:"score"`
	Index int     `json:"index"`
	Pulse *int    `json:"pulse,omitempty"`
}

// Sort scores items under policy and orders them best first. Ties go to the
// newer item, then input order.
func Sort(items []source.Item, policy Policy, now time.Time) []Scored {
	ref := MaxEngagement(items)
	out := make([]Scored, len(items))
	for i, it := range items {
		s := Scored{Item: it, Index: Index(it, now)}
		if p, ok := Normalized(it.Engagement, ref); ok {
			s.Pulse = &p
		}
		switch policy {
		case PolicyHot:
			s.Score = Hot(it, now)
		case PolicyPulse:
			if s.Pulse != nil {
				s.Score = float64(*s.Pulse)
			}
		default:
			s.Score = float64(s.Index)
		}
		out[i] = s
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}
