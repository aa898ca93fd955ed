package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/elonfeng/pitchpulse/internal/cache"
	"github.com/elonfeng/pitchpulse/internal/store"
	"github.com/elonfeng/pitchpulse/pkg/keywords"
	"github.com/elonfeng/pitchpulse/pkg/rank"
	"github.com/elonfeng/pitchpulse/pkg/relevance"
	"github.com/elonfeng/pitchpulse/pkg/source"
	"github.com/rs/zerolog"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeLister struct {
	items []source.Item
	err   error
	calls int
	last  store.ListOpts
}

func (f *fakeLister) ListItems(_ context.Context, opts store.ListOpts) ([]source.Item, error) {
	f.calls++
	f.last = opts
	if f.err != nil {
		return nil, f.err
	}
	var out []source.Item
	for _, it := range f.items {
		if opts.Topic != "" && (it.TopicTag == nil || *it.TopicTag != opts.Topic) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func tag(s string) *string { return &s }

func item(id, title, url string, engagement int, age time.Duration) source.Item {
	return source.Item{
		ID:          id,
		Kind:        source.KindCommunity,
		ExternalID:  id,
		Title:       title,
		URL:         url,
		Engagement:  engagement,
		PublishedAt: now.Add(-age),
	}
}

func newService(l Lister, c cache.Cache, pageSize int) *Service {
	f := relevance.New(keywords.Tables{Block: []string{"wsl"}, Teams: []string{"thorns", "reign"}})
	return New(l, f, zerolog.Nop(), Options{PageSize: pageSize, Cache: c, Now: func() time.Time { return now }})
}

func TestItemsRefiltersAndDedups(t *testing.T) {
	l := &fakeLister{items: []source.Item{
		item("1", "Thorns win", "https://a", 100, time.Hour),
		item("2", "Thorns win (crosspost)", "https://a", 50, time.Hour),
		item("3", "WSL news about Thorns", "https://b", 500, time.Hour),
		item("4", "Off topic", "https://c", 900, time.Hour),
		item("5", "Reign draw", "https://d", 10, 2*time.Hour),
	}}
	page := newService(l, nil, 20).Items(context.Background(), Request{Page: 1, Sort: rank.PolicyIndex})

	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
	if page.Items[0].ID != "1" || page.Items[1].ID != "5" {
		t.Errorf("order = %s, %s", page.Items[0].ID, page.Items[1].ID)
	}
}

func TestItemsPaging(t *testing.T) {
	var items []source.Item
	for i := 0; i < 5; i++ {
		items = append(items, item(string(rune('a'+i)), "Thorns story", "https://x/"+string(rune('a'+i)), 10, time.Duration(i+1)*time.Hour))
	}
	svc := newService(&fakeLister{items: items}, nil, 2)

	tests := []struct {
		page    int
		wantLen int
		first   string
	}{
		{1, 2, "a"},
		{2, 2, "c"},
		{3, 1, "e"},
		{4, 0, ""},
		{0, 2, "a"},
	}
	for _, tt := range tests {
		p := svc.Items(context.Background(), Request{Page: tt.page, Sort: rank.PolicyHot})
		if p.Total != 5 {
			t.Errorf("page %d total = %d", tt.page, p.Total)
		}
		if len(p.Items) != tt.wantLen {
			t.Errorf("page %d len = %d, want %d", tt.page, len(p.Items), tt.wantLen)
			continue
		}
		if tt.wantLen > 0 && p.Items[0].ID != tt.first {
			t.Errorf("page %d first = %s, want %s", tt.page, p.Items[0].ID, tt.first)
		}
	}
}

func TestItemsRanksWholeWindow(t *testing.T) {
	ctx := context.Background()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	const n = 600
	for i := range n {
		it := item(fmt.Sprint(i), fmt.Sprintf("Thorns match thread %d", i), fmt.Sprintf("https://example.com/%d", i), i, time.Duration(i)*time.Minute)
		if err := db.Insert(ctx, &it); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	p := newService(db, nil, 20).Items(ctx, Request{Page: 1, Sort: rank.PolicyPulse})
	if p.Total != n {
		t.Errorf("total = %d, want %d", p.Total, n)
	}
	// The busiest rows are also the oldest, so they sit outside the newest 500.
	if len(p.Items) == 0 {
		t.Fatal("empty page")
	}
	top := p.Items[0]
	if top.Pulse == nil || *top.Pulse != 100 || top.Engagement < 500 {
		t.Errorf("top item engagement %d pulse %v", top.Engagement, top.Pulse)
	}
}

func TestItemsTopic(t *testing.T) {
	a := item("1", "Thorns win", "https://a", 10, time.Hour)
	a.TopicTag = tag("Portland Thorns")
	b := item("2", "Reign win", "https://b", 10, time.Hour)
	b.TopicTag = tag("Seattle Reign")
	l := &fakeLister{items: []source.Item{a, b}}

	p := newService(l, nil, 20).Items(context.Background(), Request{Topic: "Seattle Reign"})
	if p.Total != 1 || p.Items[0].ID != "2" {
		t.Errorf("page = %+v", p)
	}
	if l.last.Topic != "Seattle Reign" {
		t.Errorf("topic not pushed to storage: %+v", l.last)
	}
}

func TestItemsFailureIsEmpty(t *testing.T) {
	p := newService(&fakeLister{err: errors.New("db locked")}, nil, 20).Items(context.Background(), Request{Page: 1})
	if p.Total != 0 || p.Items == nil || len(p.Items) != 0 {
		t.Errorf("page = %+v, want empty non-nil items", p)
	}
}

func TestItemsCached(t *testing.T) {
	l := &fakeLister{items: []source.Item{item("1", "Thorns win", "https://a", 10, time.Hour)}}
	svc := newService(l, cache.NewMemory(time.Minute), 20)
	ctx := context.Background()

	first := svc.Items(ctx, Request{Page: 1})
	second := svc.Items(ctx, Request{Page: 1})
	if l.calls != 1 {
		t.Errorf("storage calls = %d, want 1", l.calls)
	}
	if second.Total != first.Total || second.Items[0].ID != "1" {
		t.Errorf("cached page differs: %+v", second)
	}

	svc.Items(ctx, Request{Page: 1, Sort: rank.PolicyPulse})
	if l.calls != 2 {
		t.Errorf("different sort should miss cache, calls = %d", l.calls)
	}
}

func TestBuckets(t *testing.T) {
	l := &fakeLister{items: []source.Item{
		item("1", "Thorns now", "https://a", 1, 10*time.Minute),
		item("2", "Thorns today", "https://b", 1, 3*time.Hour),
		item("3", "Thorns last week", "https://c", 1, 4*24*time.Hour),
		item("4", "Off topic", "https://d", 1, 10*time.Minute),
	}}
	buckets := newService(l, nil, 20).Buckets(context.Background(), "")
	if len(buckets) != 3 {
		t.Fatalf("buckets = %+v", buckets)
	}
	want := []string{rank.BucketJustNow, rank.BucketToday, rank.BucketThisWeek}
	for i, b := range buckets {
		if b.Label != want[i] {
			t.Errorf("bucket[%d] = %s, want %s", i, b.Label, want[i])
		}
	}
	if len(buckets[0].Items) != 1 {
		t.Errorf("just now = %d items", len(buckets[0].Items))
	}

	empty := newService(&fakeLister{err: errors.New("boom")}, nil, 20).Buckets(context.Background(), "")
	if empty == nil || len(empty) != 0 {
		t.Errorf("failure should give empty buckets, got %v", empty)
	}
}

func TestDigestCandidatesWindow(t *testing.T) {
	l := &fakeLister{}
	if _, err := newService(l, nil, 20).DigestCandidates(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !l.last.Since.Equal(now.Add(-24*time.Hour)) || !l.last.Until.Equal(now) {
		t.Errorf("window = %v..%v", l.last.Since, l.last.Until)
	}
}
