// Package query serves the read path: stored items re-filtered, deduped by
// URL, ranked and paged. Failures degrade to empty results.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/elonfeng/pitchpulse/internal/cache"
	"github.com/elonfeng/pitchpulse/internal/store"
	"github.com/elonfeng/pitchpulse/pkg/dedup"
	"github.com/elonfeng/pitchpulse/pkg/digest"
	"github.com/elonfeng/pitchpulse/pkg/rank"
	"github.com/elonfeng/pitchpulse/pkg/relevance"
	"github.com/elonfeng/pitchpulse/pkg/source"
	"github.com/rs/zerolog"
)

// Lister reads stored items.
type Lister interface {
	ListItems(ctx context.Context, opts store.ListOpts) ([]source.Item, error)
}

// Request is one page query.
type Request struct {
	Page  int
	Sort  rank.Policy
	Topic string
}

// Page is a ranked slice of the feed plus the total after filtering.
type Page struct {
	Items    []rank.Scored `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// Options tune the service. Zero values take defaults.
type Options struct {
	PageSize int
	// Window is how far back the feed reaches.
	Window  time.Duration
	Timeout time.Duration
	Cache   cache.Cache
	Now     func() time.Time
}

// Service answers read-path queries.
type Service struct {
	store  Lister
	filter *relevance.Filter
	opts   Options
	log    zerolog.Logger
}

// New creates a query service.
func New(st Lister, filter *relevance.Filter, log zerolog.Logger, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.Window <= 0 {
		opts.Window = 14 * 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:  st,
		filter: filter,
		opts:   opts,
		log:    log.With().Str("component", "query").Logger(),
	}
}

// Items returns one page. Page numbers start at 1; out-of-range pages are
// empty but still carry the total.
func (s *Service) Items(ctx context.Context, req Request) Page {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Sort == "" {
		req.Sort = rank.PolicyIndex
	}
	page := Page{Items: []rank.Scored{}, Page: req.Page, PageSize: s.opts.PageSize}

	key := fmt.Sprintf("items:%s:%s:%d", req.Sort, req.Topic, req.Page)
	var cached Page
	if hit, err := s.opts.Cache.Get(ctx, key, &cached); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if hit {
		return cached
	}

	now := s.opts.Now()
	items, err := s.visible(ctx, req.Topic, now.Add(-s.opts.Window), time.Time{})
	if err != nil {
		s.log.Error().Err(err).Msg("list items failed")
		return page
	}

	ranked := rank.Sort(items, req.Sort, now)
	page.Total = len(ranked)

	start := (req.Page - 1) * s.opts.PageSize
	if start < len(ranked) {
		end := min(start+s.opts.PageSize, len(ranked))
		page.Items = ranked[start:end]
	}

	if err := s.opts.Cache.Set(ctx, key, page); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return page
}

// Buckets groups the visible feed by recency, newest first within a group.
func (s *Service) Buckets(ctx context.Context, topic string) []rank.Bucket {
	now := s.opts.Now()
	items, err := s.visible(ctx, topic, now.Add(-s.opts.Window), time.Time{})
	if err != nil {
		s.log.Error().Err(err).Msg("list items failed")
		return []rank.Bucket{}
	}
	buckets := rank.Buckets(items, now)
	if buckets == nil {
		return []rank.Bucket{}
	}
	return buckets
}

// DigestCandidates returns the raw stored items inside the digest window.
// Filtering and dedup are left to digest.Select.
func (s *Service) DigestCandidates(ctx context.Context) ([]source.Item, error) {
	now := s.opts.Now()
	return s.list(ctx, store.ListOpts{Since: now.Add(-digest.Window), Until: now})
}

func (s *Service) visible(ctx context.Context, topic string, since, until time.Time) ([]source.Item, error) {
	// The whole window is ranked so totals and top-of-feed order hold
	// however many rows it contains.
	items, err := s.list(ctx, store.ListOpts{Topic: topic, Since: since, Until: until})
	if err != nil {
		return nil, err
	}
	return dedup.ByURL(s.filter.Apply(items)), nil
}

func (s *Service) list(ctx context.Context, opts store.ListOpts) ([]source.Item, error) {
	lctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.store.ListItems(lctx, opts)
}
