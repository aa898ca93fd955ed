package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

const youtubeFeedURL = "https://www.youtube.com/feeds/videos.xml?channel_id="

// Channel is a curated YouTube channel.
type Channel struct {
	Name string
	ID   string
}

// VideoChannels returns one Origin per curated channel. Channel uploads are
// read from the public channel Atom feed, so no API key is required.
func VideoChannels(channels []Channel) []Origin {
	reader := newFeedReader()
	origins := make([]Origin, 0, len(channels))
	for _, ch := range channels {
		origins = append(origins, &youtubeChannel{reader: reader, channel: ch, feedURL: youtubeFeedURL + ch.ID})
	}
	return origins
}

type youtubeChannel struct {
	reader  *feedReader
	channel Channel
	feedURL string
}

func (y *youtubeChannel) Label() string {
	if y.channel.Name != "" {
		return y.channel.Name
	}
	return y.channel.ID
}

func (y *youtubeChannel) Fetch(ctx context.Context) ([]RawRecord, error) {
	parsed, err := y.reader.read(ctx, y.Label(), y.feedURL)
	if err != nil {
		return nil, err
	}

	origin := y.channel.Name
	if origin == "" {
		origin = parsed.Title
	}

	var records []RawRecord
	for _, entry := range parsed.Items {
		videoID := videoID(entry)
		link := entry.Link
		if link == "" && videoID != "" {
			link = fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
		}

		records = append(records, RawRecord{
			ExternalID:  videoID,
			Title:       entry.Title,
			URL:         link,
			Body:        mediaDescription(entry),
			Author:      entryAuthor(entry),
			Origin:      origin,
			ImageURL:    mediaThumbnail(entry),
			PublishedAt: entryPublished(entry),
		})
	}

	return records, nil
}

// videoID prefers yt:videoId and falls back to the "yt:video:<id>" GUID.
func videoID(entry *gofeed.Item) string {
	if yt, ok := entry.Extensions["yt"]; ok {
		if ids := yt["videoId"]; len(ids) > 0 && ids[0].Value != "" {
			return ids[0].Value
		}
	}
	return strings.TrimPrefix(entry.GUID, "yt:video:")
}

func mediaDescription(entry *gofeed.Item) string {
	if entry.Description != "" {
		return entry.Description
	}
	media, ok := entry.Extensions["media"]
	if !ok {
		return ""
	}
	for _, group := range media["group"] {
		if desc := group.Children["description"]; len(desc) > 0 {
			return desc[0].Value
		}
	}
	return ""
}
