// Package ingest runs one batch job per source family: fetch, normalize,
// dedup, filter, upsert, then summarize what was newly inserted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/pitchpulse/internal/cache"
	"github.com/elonfeng/pitchpulse/pkg/dedup"
	"github.com/elonfeng/pitchpulse/pkg/relevance"
	"github.com/elonfeng/pitchpulse/pkg/source"
	"github.com/elonfeng/pitchpulse/pkg/summarize"
	"github.com/rs/zerolog"
)

// ErrNoSummarizer means a backfill was requested with no summarization
// credential configured at all.
var ErrNoSummarizer = errors.New("no summarizer configured")

// Store is the slice of storage the pipeline writes through.
type Store interface {
	Lookup(ctx context.Context, kind source.Kind, externalID string) (*source.Item, error)
	Insert(ctx context.Context, item *source.Item) error
	Refresh(ctx context.Context, item source.Item) error
	SetSummary(ctx context.Context, id, summary string) (bool, error)
	ListMissingSummary(ctx context.Context, limit int) ([]source.Item, error)
}

// Summary reports what one ingestion batch did.
type Summary struct {
	Family          source.Kind `json:"family"`
	Candidates      int         `json:"candidates"`
	Inserted        int         `json:"inserted"`
	Refreshed       int         `json:"refreshed"`
	Skipped         int         `json:"skipped"`
	Filtered        int         `json:"filtered"`
	Errors          int         `json:"errors"`
	SourceFailures  int         `json:"source_failures"`
	Summarized      int         `json:"summarized"`
	SummaryFailures int         `json:"summary_failures"`
}

// Options tune the pipeline. Zero values take defaults.
type Options struct {
	Origins      map[source.Kind][]source.Origin
	Summarizer   summarize.Summarizer // nil disables summarization
	Cache        cache.Cache
	FetchTimeout time.Duration
	StoreTimeout time.Duration
	Parallel     int
	Now          func() time.Time
}

// Pipeline runs ingestion and summary backfill jobs.
type Pipeline struct {
	store      Store
	normalizer *source.Normalizer
	filter     *relevance.Filter
	opts       Options
	log        zerolog.Logger
}

// New creates a pipeline.
func New(st Store, normalizer *source.Normalizer, filter *relevance.Filter, log zerolog.Logger, opts Options) *Pipeline {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	return &Pipeline{
		store:      st,
		normalizer: normalizer,
		filter:     filter,
		opts:       opts,
		log:        log.With().Str("component", "ingest").Logger(),
	}
}

// HasSummarizer reports whether summaries can be generated.
func (p *Pipeline) HasSummarizer() bool {
	return p.opts.Summarizer != nil
}

// Run ingests one source family. limit caps the candidate count after
// batch dedup; zero means no cap. Per-item failures are counted, never
// returned. The error is non-nil only for an unknown family or when ctx
// ends, in which case the counts so far are still returned.
func (p *Pipeline) Run(ctx context.Context, kind source.Kind, limit int) (Summary, error) {
	sum := Summary{Family: kind}
	if _, err := source.ParseKind(string(kind)); err != nil {
		return sum, err
	}
	log := p.log.With().Str("family", string(kind)).Logger()

	origins := p.opts.Origins[kind]
	gathered := source.Gather(ctx, origins, p.opts.FetchTimeout, p.opts.Parallel)
	for _, f := range gathered.Failures {
		log.Warn().Str("origin", f.Origin).Err(f.Err).Msg("origin fetch failed")
	}
	sum.SourceFailures = len(gathered.Failures)

	records := dedup.Batch(gathered.Records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	sum.Candidates = len(records)

	now := p.opts.Now()
	var inserted []source.Item
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		item, err := p.normalizer.Normalize(rec, kind, now)
		if err != nil {
			sum.Skipped++
			log.Debug().Str("external_id", rec.ExternalID).Err(err).Msg("skip record")
			continue
		}
		if !p.filter.Keep(item) {
			sum.Filtered++
			continue
		}

		d, err := p.decide(ctx, item)
		if err != nil {
			sum.Errors++
			log.Error().Str("external_id", item.ExternalID).Err(err).Msg("lookup failed")
			continue
		}

		switch d.Action {
		case dedup.ActionInsert:
			if err := p.withStore(ctx, func(ctx context.Context) error { return p.store.Insert(ctx, &d.Item) }); err != nil {
				sum.Errors++
				log.Error().Str("external_id", item.ExternalID).Err(err).Msg("insert failed")
				continue
			}
			sum.Inserted++
			inserted = append(inserted, d.Item)
		case dedup.ActionRefresh:
			if err := p.withStore(ctx, func(ctx context.Context) error { return p.store.Refresh(ctx, d.Item) }); err != nil {
				sum.Errors++
				log.Error().Str("external_id", item.ExternalID).Err(err).Msg("refresh failed")
				continue
			}
			sum.Refreshed++
		}
	}

	if sum.Inserted+sum.Refreshed > 0 {
		if err := p.opts.Cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("cache invalidate failed")
		}
	}

	if p.opts.Summarizer != nil {
		ok, failed, err := p.summarizeAll(ctx, inserted)
		sum.Summarized, sum.SummaryFailures = ok, failed
		if ok > 0 {
			if ierr := p.opts.Cache.Invalidate(ctx); ierr != nil {
				log.Warn().Err(ierr).Msg("cache invalidate failed")
			}
		}
		if err != nil {
			return sum, err
		}
	}

	log.Info().
		Int("candidates", sum.Candidates).
		Int("inserted", sum.Inserted).
		Int("refreshed", sum.Refreshed).
		Int("skipped", sum.Skipped).
		Int("filtered", sum.Filtered).
		Int("errors", sum.Errors).
		Int("source_failures", sum.SourceFailures).
		Int("summarized", sum.Summarized).
		Msg("ingestion complete")
	return sum, nil
}

func (p *Pipeline) decide(ctx context.Context, item source.Item) (dedup.Decision, error) {
	var existing *source.Item
	err := p.withStore(ctx, func(ctx context.Context) error {
		var err error
		existing, err = p.store.Lookup(ctx, item.Kind, item.ExternalID)
		return err
	})
	if err != nil {
		return dedup.Decision{}, err
	}
	return dedup.Decide(item, existing), nil
}

func (p *Pipeline) withStore(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	return fn(sctx)
}

// summarizeAll runs summaries one at a time. The summarizer is expected to
// carry its own throttle and per-call timeout.
func (p *Pipeline) summarizeAll(ctx context.Context, items []source.Item) (ok, failed int, err error) {
	for _, item := range items {
		if item.HasSummary() || item.ID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ok, failed, err
		}

		text, serr := p.opts.Summarizer.Summarize(ctx, item.Title, item.Body)
		if serr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ok, failed, ctxErr
			}
			failed++
			p.log.Warn().Str("item", item.ID).Err(serr).Msg("summarize failed")
			continue
		}

		var changed bool
		werr := p.withStore(ctx, func(ctx context.Context) error {
			var err error
			changed, err = p.store.SetSummary(ctx, item.ID, text)
			return err
		})
		if werr != nil {
			failed++
			p.log.Error().Str("item", item.ID).Err(werr).Msg("store summary failed")
			continue
		}
		if changed {
			ok++
		}
	}
	return ok, failed, nil
}

// BackfillResult reports a summary backfill run.
type BackfillResult struct {
	Candidates int `json:"candidates"`
	Summarized int `json:"summarized"`
	Failed     int `json:"failed"`
}

// Backfill summarizes up to limit stored items that still have none. It
// fails fast with ErrNoSummarizer before touching storage when no
// summarizer is configured.
func (p *Pipeline) Backfill(ctx context.Context, limit int) (BackfillResult, error) {
	var res BackfillResult
	if p.opts.Summarizer == nil {
		return res, ErrNoSummarizer
	}

	var items []source.Item
	err := p.withStore(ctx, func(ctx context.Context) error {
		var err error
		items, err = p.store.ListMissingSummary(ctx, limit)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("list backfill candidates: %w", err)
	}
	res.Candidates = len(items)

	ok, failed, err := p.summarizeAll(ctx, items)
	res.Summarized, res.Failed = ok, failed
	if ok > 0 {
		if ierr := p.opts.Cache.Invalidate(ctx); ierr != nil {
			p.log.Warn().Err(ierr).Msg("cache invalidate failed")
		}
	}
	p.log.Info().Int("candidates", res.Candidates).Int("summarized", ok).Int("failed", failed).Msg("backfill complete")
	return res, err
}
