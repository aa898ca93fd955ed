package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Kind identifies which family of sources an item came from.
type Kind string

const (
	KindCommunity Kind = "community"
	KindEditorial Kind = "editorial"
	KindVideo     Kind = "video"
)

// Fixed engagement baselines for sources without a live vote count.
const (
	EditorialEngagement = 10
	VideoEngagement     = 25
)

var (
	// ErrMalformedRecord means a raw record cannot become an Item.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrSourceUnavailable means a sub-origin fetch failed or timed out.
	ErrSourceUnavailable = errors.New("source unavailable")
)

// AllKinds returns every known kind in ingestion order.
func AllKinds() []Kind {
	return []Kind{KindCommunity, KindEditorial, KindVideo}
}

// ParseKind maps a family name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCommunity, KindEditorial, KindVideo:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// Item is the canonical curated unit shared by every source family.
type Item struct {
	ID          string    `json:"id" db:"id"`
	Kind        Kind      `json:"source_kind" db:"source_kind"`
	ExternalID  string    `json:"external_id" db:"external_id"`
	Title       string    `json:"title" db:"title"`
	URL         string    `json:"url" db:"url"`
	Body        string    `json:"body" db:"body"`
	Summary     *string   `json:"summary" db:"summary"`
	TopicTag    *string   `json:"topic_tag" db:"topic_tag"`
	Author      string    `json:"author" db:"author"`
	Engagement  int       `json:"engagement" db:"engagement"`
	Origin      string    `json:"origin" db:"origin"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	FetchedAt   time.Time `json:"fetched_at" db:"fetched_at"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
}

// HasSummary reports whether a summary has already been generated.
func (it Item) HasSummary() bool {
	return it.Summary != nil && *it.Summary != ""
}

// RawRecord is what a sub-origin hands back before normalization.
// Text fields may still carry HTML entities or markup.
type RawRecord struct {
	ExternalID  string
	Title       string
	URL         string
	Permalink   string
	Body        string
	Author      string
	Score       int
	Origin      string
	Tag         string
	ImageURL    string
	PublishedAt time.Time
}

// Origin is one fetchable sub-source: a subreddit, a feed, a channel.
type Origin interface {
	Label() string
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// OriginFailure records a sub-origin that contributed nothing to a batch.
type OriginFailure struct {
	Origin string
	Err    error
}

// Gathered is the merged outcome of one parallel fetch round.
type Gathered struct {
	Records  []RawRecord
	Failures []OriginFailure
}

// Gather fetches all origins in parallel, each under its own timeout.
// A failing origin never blocks or fails the others; results are merged
// in origin order once every fetch has settled.
func Gather(ctx context.Context, origins []Origin, timeout time.Duration, parallel int) Gathered {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if parallel <= 0 {
		parallel = 8
	}

	results := make([][]RawRecord, len(origins))
	errs := make([]error, len(origins))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, o := range origins {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			recs, err := o.Fetch(fctx)
			if err != nil {
				errs[i] = fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, o.Label(), err)
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var out Gathered
	for i, o := range origins {
		if errs[i] != nil {
			out.Failures = append(out.Failures, OriginFailure{Origin: o.Label(), Err: errs[i]})
			continue
		}
		out.Records = append(out.Records, results[i]...)
	}
	return out
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
