package source

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func testNormalizer() *Normalizer {
	return NewNormalizer(map[string]string{"ThornsFC": "Portland Thorns"})
}

func TestNormalizeCommunity(t *testing.T) {
	raw := RawRecord{
		ExternalID:  "t3_abc",
		Title:       "Thorns &amp; Reign   draw\n1-1",
		Permalink:   "https://www.reddit.com/r/ThornsFC/comments/abc/",
		Body:        "What a match",
		Author:      "rosecity",
		Score:       42,
		Origin:      "thornsfc",
		PublishedAt: now.Add(-time.Hour),
	}
	item, err := testNormalizer().Normalize(raw, KindCommunity, now)
	if err != nil {
		t.Fatal(err)
	}

	if item.Title != "Thorns & Reign draw 1-1" {
		t.Errorf("title = %q", item.Title)
	}
	if item.URL != raw.Permalink {
		t.Errorf("url should fall back to permalink, got %q", item.URL)
	}
	if item.Engagement != 42 {
		t.Errorf("engagement = %d", item.Engagement)
	}
	if item.TopicTag == nil || *item.TopicTag != "Portland Thorns" {
		t.Errorf("topic tag = %v", item.TopicTag)
	}
	if !item.FetchedAt.Equal(now) || !item.PublishedAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("times = %v / %v", item.FetchedAt, item.PublishedAt)
	}
	if item.Summary != nil {
		t.Error("summary must start empty")
	}
}

func TestNormalizeEngagementBaselines(t *testing.T) {
	n := testNormalizer()
	tests := []struct {
		kind  Kind
		score int
		want  int
	}{
		{KindCommunity, -7, 0},
		{KindCommunity, 310, 310},
		{KindEditorial, 999, EditorialEngagement},
		{KindVideo, 999, VideoEngagement},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			item, err := n.Normalize(RawRecord{ExternalID: "x", Title: "t", Score: tt.score}, tt.kind, now)
			if err != nil {
				t.Fatal(err)
			}
			if item.Engagement != tt.want {
				t.Errorf("engagement = %d, want %d", item.Engagement, tt.want)
			}
		})
	}
}

func TestNormalizeEditorialBody(t *testing.T) {
	raw := RawRecord{
		ExternalID: "eq-1",
		Title:      "Spirit sign midfielder",
		URL:        "https://example.com/a",
		Body:       `<p>Big <b>news</b> today.</p><script>track()</script><img src="https://img.example.com/x.jpg">`,
		Tag:        "Transfers",
		Origin:     "Equalizer Soccer",
	}
	item, err := testNormalizer().Normalize(raw, KindEditorial, now)
	if err != nil {
		t.Fatal(err)
	}
	if item.Body != "Big news today." {
		t.Errorf("body = %q", item.Body)
	}
	if item.ImageURL != "https://img.example.com/x.jpg" {
		t.Errorf("image = %q", item.ImageURL)
	}
	if item.TopicTag == nil || *item.TopicTag != "Transfers" {
		t.Errorf("topic tag = %v", item.TopicTag)
	}
	if !item.PublishedAt.IsZero() {
		t.Errorf("missing publish date should stay zero, got %v", item.PublishedAt)
	}
}

func TestNormalizeExternalIDFallback(t *testing.T) {
	item, err := testNormalizer().Normalize(RawRecord{Title: "t", URL: " https://example.com/a "}, KindEditorial, now)
	if err != nil {
		t.Fatal(err)
	}
	if item.ExternalID != "https://example.com/a" {
		t.Errorf("external id = %q", item.ExternalID)
	}
}

func TestNormalizeTruncatesBody(t *testing.T) {
	item, err := testNormalizer().Normalize(RawRecord{ExternalID: "x", Title: "t", Body: strings.Repeat("é", 1500)}, KindCommunity, now)
	if err != nil {
		t.Fatal(err)
	}
	if n := utf8.RuneCountInString(item.Body); n != maxBodyRunes+3 {
		t.Errorf("body runes = %d", n)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  RawRecord
	}{
		{"blank title", RawRecord{ExternalID: "x", Title: "  \n "}},
		{"entity-only whitespace title", RawRecord{ExternalID: "x", Title: "&#32;"}},
		{"no url or id", RawRecord{Title: "Thorns win"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testNormalizer().Normalize(tt.raw, KindCommunity, now)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("err = %v, want ErrMalformedRecord", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range AllKinds() {
		if got, err := ParseKind(string(k)); err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("podcast"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
