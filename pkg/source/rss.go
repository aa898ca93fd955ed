package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Feed is a named RSS/Atom feed URL.
type Feed struct {
	Name string
	URL  string
}

// feedReader fetches and parses one feed URL. Shared by the editorial and
// video origins.
type feedReader struct {
	client *http.Client
	parser *gofeed.Parser
}

func newFeedReader() *feedReader {
	return &feedReader{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
	}
}

func (f *feedReader) read(ctx context.Context, name, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", name, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", name, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", name, err)
	}
	return parsed, nil
}

// EditorialFeeds returns one Origin per syndicated news feed.
func EditorialFeeds(feeds []Feed) []Origin {
	reader := newFeedReader()
	origins := make([]Origin, 0, len(feeds))
	for _, feed := range feeds {
		origins = append(origins, &rssFeed{reader: reader, feed: feed})
	}
	return origins
}

type rssFeed struct {
	reader *feedReader
	feed   Feed
}

func (r *rssFeed) Label() string { return r.feed.Name }

func (r *rssFeed) Fetch(ctx context.Context) ([]RawRecord, error) {
	parsed, err := r.reader.read(ctx, r.feed.Name, r.feed.URL)
	if err != nil {
		return nil, err
	}

	var records []RawRecord
	for _, entry := range parsed.Items {
		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		body := entry.Description
		if body == "" {
			body = entry.Content
		}

		records = append(records, RawRecord{
			ExternalID:  entry.GUID,
			Title:       entry.Title,
			URL:         link,
			Body:        body,
			Author:      entryAuthor(entry),
			Origin:      r.feed.Name,
			Tag:         firstCategory(entry),
			ImageURL:    entryImage(entry),
			PublishedAt: entryPublished(entry),
		})
	}

	return records, nil
}

func entryAuthor(entry *gofeed.Item) string {
	if entry.Author != nil {
		return entry.Author.Name
	}
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		return entry.Authors[0].Name
	}
	return ""
}

// entryPublished returns the zero time when the feed carries no date, so
// scoring treats the entry as infinitely old instead of brand new.
func entryPublished(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	return time.Time{}
}

func entryImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return mediaThumbnail(entry)
}

func firstCategory(entry *gofeed.Item) string {
	if len(entry.Categories) > 0 {
		return entry.Categories[0]
	}
	return ""
}

// mediaThumbnail digs media:thumbnail out of either media:group or the
// entry itself.
func mediaThumbnail(entry *gofeed.Item) string {
	media, ok := entry.Extensions["media"]
	if !ok {
		return ""
	}
	if thumbs := media["thumbnail"]; len(thumbs) > 0 {
		return thumbs[0].Attrs["url"]
	}
	for _, group := range media["group"] {
		if thumbs := group.Children["thumbnail"]; len(thumbs) > 0 {
			return thumbs[0].Attrs["url"]
		}
	}
	return ""
}
