package source

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxBodyRunes = 1000

// Normalizer turns raw records into Items. It holds only the immutable
// origin->topic table and is safe for concurrent use.
type Normalizer struct {
	topics map[string]string
}

// NewNormalizer builds a Normalizer over an origin->topic table.
// Origin names are matched case-insensitively.
func NewNormalizer(topics map[string]string) *Normalizer {
	m := make(map[string]string, len(topics))
	for origin, tag := range topics {
		m[strings.ToLower(strings.TrimSpace(origin))] = tag
	}
	return &Normalizer{topics: m}
}

// Normalize converts one raw record of the given kind into an Item.
func (n *Normalizer) Normalize(raw RawRecord, kind Kind, now time.Time) (Item, error) {
	title := cleanText(raw.Title)
	if title == "" {
		return Item{}, fmt.Errorf("%w: missing title", ErrMalformedRecord)
	}

	link := strings.TrimSpace(raw.URL)
	if link == "" {
		link = strings.TrimSpace(raw.Permalink)
	}
	externalID := strings.TrimSpace(raw.ExternalID)
	if link == "" && externalID == "" {
		return Item{}, fmt.Errorf("%w: missing url and external id for %q", ErrMalformedRecord, title)
	}
	if externalID == "" {
		externalID = link
	}

	body, image := extractBody(raw.Body)
	if raw.ImageURL != "" {
		image = raw.ImageURL
	}

	item := Item{
		Kind:        kind,
		ExternalID:  externalID,
		Title:       title,
		URL:         link,
		Body:        truncate(body, maxBodyRunes),
		Author:      cleanText(raw.Author),
		Origin:      cleanText(raw.Origin),
		ImageURL:    strings.TrimSpace(image),
		FetchedAt:   now.UTC(),
		PublishedAt: raw.PublishedAt.UTC(),
	}
	if raw.PublishedAt.IsZero() {
		item.PublishedAt = time.Time{}
	}

	switch kind {
	case KindCommunity:
		item.Engagement = max(raw.Score, 0)
		if tag, ok := n.topics[strings.ToLower(item.Origin)]; ok {
			item.TopicTag = &tag
		}
	case KindEditorial:
		item.Engagement = EditorialEngagement
	case KindVideo:
		item.Engagement = VideoEngagement
	}

	if item.TopicTag == nil && kind != KindCommunity {
		if tag := cleanText(raw.Tag); tag != "" {
			item.TopicTag = &tag
		}
	}

	return item, nil
}

// cleanText decodes entities and collapses whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// extractBody returns plain text for a possibly-HTML body plus the first
// image it references.
func extractBody(s string) (string, string) {
	if !strings.Contains(s, "<") || !strings.Contains(s, ">") {
		return cleanText(s), ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanText(s), ""
	}
	image := doc.Find("img").First().AttrOr("src", "")
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), image
}
