package rank

import (
	"math"
	"testing"
	"time"

	"github.com/elonfeng/pitchpulse/pkg/source"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func item(kind source.Kind, engagement int, age time.Duration) source.Item {
	it := source.Item{Kind: kind, Engagement: engagement}
	if age >= 0 {
		it.PublishedAt = now.Add(-age)
	}
	return it
}

func TestIndex(t *testing.T) {
	tests := []struct {
		name string
		item source.Item
		want int
	}{
		{"fresh, no engagement", item(source.KindCommunity, 0, 0), 40},
		{"fresh, huge engagement clamps", item(source.KindCommunity, 999, 0), 99},
		{"editorial weight", item(source.KindEditorial, 10, 0), 84},
		{"ten hours old", item(source.KindCommunity, 0, 10*time.Hour), 24},
		{"recency floors at zero", item(source.KindCommunity, 0, 48*time.Hour), 1},
		{"unknown publish time", item(source.KindCommunity, 0, -1), 1},
		{"negative engagement", item(source.KindCommunity, -50, 0), 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Index(tt.item, now); got != tt.want {
				t.Errorf("Index = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIndexBounds(t *testing.T) {
	for _, eng := range []int{0, 1, 10, 100, 1e6} {
		for _, age := range []time.Duration{-1, 0, time.Minute, 12 * time.Hour, 30 * 24 * time.Hour} {
			for _, kind := range source.AllKinds() {
				if got := Index(item(kind, eng, age), now); got < 1 || got > 99 {
					t.Fatalf("Index(%s, %d, %v) = %d out of range", kind, eng, age, got)
				}
			}
		}
	}
}

func TestHot(t *testing.T) {
	tests := []struct {
		name string
		item source.Item
		want float64
	}{
		{"four hours", item(source.KindCommunity, 100, 4*time.Hour), 12.5},
		{"age floored at one hour", item(source.KindCommunity, 100, 30*time.Minute), 100},
		{"unknown publish time", item(source.KindCommunity, 100, -1), 0},
		{"no engagement", item(source.KindCommunity, 0, time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hot(tt.item, now)
			if math.IsNaN(got) || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Hot = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHotDecaysWithAge(t *testing.T) {
	prev := math.Inf(1)
	for h := 1; h <= 96; h++ {
		got := Hot(item(source.KindCommunity, 250, time.Duration(h)*time.Hour), now)
		if got >= prev {
			t.Fatalf("Hot at %dh = %v, not below %v", h, got, prev)
		}
		prev = got
	}
}

func TestNormalized(t *testing.T) {
	tests := []struct {
		engagement, ref int
		want            int
		ok              bool
	}{
		{0, 5000, 0, false},
		{-3, 5000, 0, false},
		{5000, 5000, 100, true},
		{10, 5, 100, true},
		{1, 5000, 8, true},
		{1, 1, 100, true},
	}
	for _, tt := range tests {
		got, ok := Normalized(tt.engagement, tt.ref)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Normalized(%d, %d) = %d, %v; want %d, %v", tt.engagement, tt.ref, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyIndex, "index": PolicyIndex, "hot": PolicyHot, "pulse": PolicyPulse} {
		if got, err := ParsePolicy(in); err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("new"); err == nil {
		t.Error("expected error")
	}
}

func TestSort(t *testing.T) {
	items := []source.Item{
		{ID: "old-popular", Kind: source.KindCommunity, Engagement: 900, PublishedAt: now.Add(-20 * time.Hour)},
		{ID: "fresh-quiet", Kind: source.KindCommunity, Engagement: 2, PublishedAt: now.Add(-10 * time.Minute)},
		{ID: "mid", Kind: source.KindCommunity, Engagement: 60, PublishedAt: now.Add(-2 * time.Hour)},
		{ID: "no-votes", Kind: source.KindCommunity, Engagement: 0, PublishedAt: now.Add(-3 * time.Hour)},
	}

	ids := func(s []Scored) string {
		var out string
		for _, x := range s {
			out += x.ID + " "
		}
		return out
	}

	if got := ids(Sort(items, PolicyPulse, now)); got != "old-popular mid fresh-quiet no-votes " {
		t.Errorf("pulse order = %s", got)
	}
	if got := ids(Sort(items, PolicyHot, now)); got != "mid old-popular fresh-quiet no-votes " {
		t.Errorf("hot order = %s", got)
	}

	scored := Sort(items, PolicyIndex, now)
	for i := 1; i < len(scored); i++ {
		if scored[i].Score > scored[i-1].Score {
			t.Fatalf("index order not descending: %s", ids(scored))
		}
	}
	for _, s := range scored {
		if s.ID == "no-votes" && s.Pulse != nil {
			t.Error("zero engagement should carry no pulse badge")
		}
		if s.ID == "old-popular" && (s.Pulse == nil || *s.Pulse != 100) {
			t.Errorf("batch max should normalize to 100, got %v", s.Pulse)
		}
	}
}

func TestSortTiesPreferNewer(t *testing.T) {
	items := []source.Item{
		{ID: "older", Kind: source.KindVideo, Engagement: 25, PublishedAt: now.Add(-50 * time.Hour)},
		{ID: "newer", Kind: source.KindVideo, Engagement: 25, PublishedAt: now.Add(-49 * time.Hour)},
	}
	got := Sort(items, PolicyPulse, now)
	if got[0].ID != "newer" {
		t.Errorf("tie should go to newer item, got %s first", got[0].ID)
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, BucketJustNow},
		{30, BucketJustNow},
		{59, BucketJustNow},
		{60, BucketToday},
		{90, BucketToday},
		{1439, BucketToday},
		{1440, BucketYesterday},
		// Yesterday runs to 2880 minutes, so 2000 is not yet this week.
		{2000, BucketYesterday},
		{2880, BucketThisWeek},
		{3000, BucketThisWeek},
		{10079, BucketThisWeek},
		{10080, BucketEarlier},
	}
	for _, tt := range tests {
		if got := BucketFor(now.Add(-time.Duration(tt.minutes)*time.Minute), now); got != tt.want {
			t.Errorf("BucketFor(%d min) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
	if got := BucketFor(time.Time{}, now); got != BucketEarlier {
		t.Errorf("zero time bucket = %q", got)
	}
}

func TestBuckets(t *testing.T) {
	items := []source.Item{
		{ID: "a", PublishedAt: now.Add(-3 * 24 * time.Hour)},
		{ID: "b", PublishedAt: now.Add(-5 * time.Minute)},
		{ID: "c"},
		{ID: "d", PublishedAt: now.Add(-4 * 24 * time.Hour)},
	}
	got := Buckets(items, now)
	if len(got) != 3 {
		t.Fatalf("buckets = %+v", got)
	}
	if got[0].Label != BucketJustNow || got[1].Label != BucketThisWeek || got[2].Label != BucketEarlier {
		t.Errorf("labels = %s, %s, %s", got[0].Label, got[1].Label, got[2].Label)
	}
	if len(got[1].Items) != 2 || got[1].Items[0].ID != "a" || got[1].Items[1].ID != "d" {
		t.Errorf("this week = %+v", got[1].Items)
	}
	if Buckets(nil, now) != nil {
		t.Error("no items should give no buckets")
	}
}
