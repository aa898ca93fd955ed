package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/pitchpulse/internal/cache"
	"github.com/elonfeng/pitchpulse/internal/config"
	"github.com/elonfeng/pitchpulse/internal/ingest"
	"github.com/elonfeng/pitchpulse/internal/logger"
	"github.com/elonfeng/pitchpulse/internal/newsletter"
	"github.com/elonfeng/pitchpulse/internal/query"
	"github.com/elonfeng/pitchpulse/internal/scheduler"
	"github.com/elonfeng/pitchpulse/internal/store"
	"github.com/elonfeng/pitchpulse/pkg/alert"
	"github.com/elonfeng/pitchpulse/pkg/archive"
	"github.com/elonfeng/pitchpulse/pkg/digest"
	"github.com/elonfeng/pitchpulse/pkg/keywords"
	"github.com/elonfeng/pitchpulse/pkg/rank"
	"github.com/elonfeng/pitchpulse/pkg/relevance"
	"github.com/elonfeng/pitchpulse/pkg/server"
	"github.com/elonfeng/pitchpulse/pkg/source"
	"github.com/elonfeng/pitchpulse/pkg/summarize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// components is everything a command may need, built once from config.
type components struct {
	cfg        *config.Config
	log        zerolog.Logger
	db         *store.SQLiteStore
	cache      cache.Cache
	pipeline   *ingest.Pipeline
	query      *query.Service
	newsletter *newsletter.Service
}

func (c *components) Close() {
	if err := c.cache.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close cache")
	}
	if err := c.db.Close(); err != nil {
		c.log.Warn().Err(err).Msg("close store")
	}
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setup(ctx context.Context) (*components, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log)
	base := *logger.Get()
	log := logger.Component("cli")

	tables, err := keywords.Load(cfg.Keywords.Path)
	if err != nil {
		return nil, err
	}
	filter := relevance.New(tables)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	c := &components{cfg: cfg, log: log, db: db, cache: buildCache(ctx, cfg, log)}

	c.pipeline = ingest.New(db, source.NewNormalizer(tables.Topics), filter, base, ingest.Options{
		Origins:      buildOrigins(cfg),
		Summarizer:   buildSummarizer(cfg, log),
		Cache:        c.cache,
		FetchTimeout: cfg.Timeouts.FetchTimeout(),
		StoreTimeout: cfg.Timeouts.StoreTimeout(),
		Parallel:     cfg.Sources.Parallel,
	})

	c.query = query.New(db, filter, base, query.Options{
		PageSize: cfg.Server.PageSize,
		Timeout:  cfg.Timeouts.StoreTimeout(),
		Cache:    c.cache,
	})

	opts := newsletter.Options{
		Title:          cfg.Digest.Title,
		DeliverTimeout: cfg.Timeouts.DeliverTimeout(),
	}
	if cfg.Archive.Enabled {
		arch, err := archive.New(ctx, archive.Config{
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Prefix:    cfg.Archive.Prefix,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		opts.Archive = arch
	}
	c.newsletter = newsletter.New(c.query, filter, buildAlertManager(cfg, log), base, opts)

	return c, nil
}

func buildOrigins(cfg *config.Config) map[source.Kind][]source.Origin {
	origins := make(map[source.Kind][]source.Origin)

	if cfg.Sources.Reddit.Enabled {
		reddit := source.NewReddit(cfg.Sources.Reddit.ClientID, cfg.Sources.Reddit.ClientSecret, cfg.Sources.Reddit.Limit)
		origins[source.KindCommunity] = reddit.Boards(cfg.Sources.Reddit.Subreddits)
	}
	if cfg.Sources.RSS.Enabled {
		feeds := make([]source.Feed, len(cfg.Sources.RSS.Feeds))
		for i, f := range cfg.Sources.RSS.Feeds {
			feeds[i] = source.Feed{Name: f.Name, URL: f.URL}
		}
		origins[source.KindEditorial] = source.EditorialFeeds(feeds)
	}
	if cfg.Sources.YouTube.Enabled {
		channels := make([]source.Channel, len(cfg.Sources.YouTube.Channels))
		for i, ch := range cfg.Sources.YouTube.Channels {
			channels[i] = source.Channel{Name: ch.Name, ID: ch.ID}
		}
		origins[source.KindVideo] = source.VideoChannels(channels)
	}

	return origins
}

// buildSummarizer returns nil when no credential is configured.
func buildSummarizer(cfg *config.Config, log zerolog.Logger) summarize.Summarizer {
	sc := cfg.Summarize
	if sc.APIKey == "" {
		log.Info().Msg("summarizer disabled: no api key")
		return nil
	}
	llm := summarize.NewLLM(sc.Provider, sc.Model, sc.APIKey, sc.BaseURL)
	log.Info().Str("provider", sc.Provider).Dur("interval", sc.ParseInterval()).Msg("summarizer enabled")

	throttle := summarize.NewThrottle(sc.ParseInterval(), summarize.RealClock{})
	return summarize.NewThrottled(llm, throttle, cfg.Timeouts.SummarizeTimeout())
}

func buildCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) cache.Cache {
	if cfg.Cache.RedisURL == "" {
		return cache.Noop{}
	}
	r, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.Prefix, cfg.Cache.ParseTTL())
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, page cache disabled")
		return cache.Noop{}
	}
	return r
}

func buildAlertManager(cfg *config.Config, log zerolog.Logger) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	m := alert.NewManager(notifiers)
	if !m.HasNotifiers() {
		log.Warn().Msg("no digest destinations configured")
	}
	return m
}

func scheduleJobs(cfg *config.Config) []scheduler.Job {
	var jobs []scheduler.Job
	if cfg.Sources.Reddit.Enabled {
		jobs = append(jobs, scheduler.Job{Kind: source.KindCommunity, Every: config.ParseEvery(cfg.Schedule.CommunityInterval, 15*time.Minute)})
	}
	if cfg.Sources.RSS.Enabled {
		jobs = append(jobs, scheduler.Job{Kind: source.KindEditorial, Every: config.ParseEvery(cfg.Schedule.EditorialInterval, 30*time.Minute)})
	}
	if cfg.Sources.YouTube.Enabled {
		jobs = append(jobs, scheduler.Job{Kind: source.KindVideo, Every: config.ParseEvery(cfg.Schedule.VideoInterval, time.Hour)})
	}
	return jobs
}

func runIngest(ctx context.Context, families []string, limit int) error {
	kinds := source.AllKinds()
	if len(families) > 0 {
		kinds = nil
		for _, f := range families {
			k, err := source.ParseKind(strings.ToLower(strings.TrimSpace(f)))
			if err != nil {
				return err
			}
			kinds = append(kinds, k)
		}
	}

	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tCANDIDATES\tINSERTED\tREFRESHED\tFILTERED\tSKIPPED\tERRORS\tSOURCE FAILS\tSUMMARIZED")
	for _, kind := range kinds {
		sum, err := c.pipeline.Run(ctx, kind, limit)
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			sum.Family, sum.Candidates, sum.Inserted, sum.Refreshed, sum.Filtered,
			sum.Skipped, sum.Errors, sum.SourceFailures, sum.Summarized)
		if err != nil {
			w.Flush()
			return fmt.Errorf("ingest %s: %w", kind, err)
		}
	}
	return w.Flush()
}

func runBackfill(ctx context.Context, limit int) error {
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if limit <= 0 {
		limit = c.cfg.Summarize.Backfill
	}
	res, err := c.pipeline.Backfill(ctx, limit)
	if errors.Is(err, ingest.ErrNoSummarizer) {
		return fmt.Errorf("backfill: %w (set OPENAI_API_KEY or ANTHROPIC_API_KEY)", err)
	}
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	fmt.Fprintf(os.Stderr, "summarized %d of %d items (%d failed)\n", res.Summarized, res.Candidates, res.Failed)
	return nil
}

func runDigest(ctx context.Context, preview bool) error {
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if preview {
		n, err := c.newsletter.Build(ctx)
		if errors.Is(err, digest.ErrNoStories) {
			fmt.Println("no eligible stories in the last 24 hours")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(n.Subject)
		fmt.Println()
		fmt.Println(n.Text)
		return nil
	}

	res, err := c.newsletter.Send(ctx)
	if err != nil {
		return err
	}
	if res.Status == newsletter.StatusSkipped {
		fmt.Fprintf(os.Stderr, "digest skipped: %s\n", res.Reason)
		return nil
	}
	fmt.Fprintf(os.Stderr, "digest sent to %d destinations, lead: %s\n", res.Recipients, res.LeadTitle)
	return nil
}

func runItems(ctx context.Context, page int, sortPolicy, topic string, buckets, jsonOutput bool) error {
	policy, err := rank.ParsePolicy(sortPolicy)
	if err != nil {
		return err
	}

	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if buckets {
		groups := c.query.Buckets(ctx, topic)
		if jsonOutput {
			return printJSON(groups)
		}
		for _, b := range groups {
			fmt.Printf("%s (%d)\n", b.Label, len(b.Items))
			for _, it := range b.Items {
				fmt.Printf("  [%s] %s\n", it.Kind, it.Title)
			}
		}
		return nil
	}

	p := c.query.Items(ctx, query.Request{Page: page, Sort: policy, Topic: topic})
	if jsonOutput {
		return printJSON(p)
	}

	if p.Total == 0 {
		fmt.Println("no items found (try ingesting first: pitchpulse ingest)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tKIND\tORIGIN\tPUBLISHED\tTITLE")
	for _, s := range p.Items {
		published := "-"
		if !s.PublishedAt.IsZero() {
			published = s.PublishedAt.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\t%s\n", s.Score, s.Kind, s.Origin, published, s.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "page %d, %d items total\n", p.Page, p.Total)
	return nil
}

func runServe(ctx context.Context, port int) error {
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := newServer(c, port)
	return serveUntilDone(ctx, srv, c.log)
}

func runDaemon(ctx context.Context, port int) error {
	c, err := setup(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	sched, err := scheduler.New(c.pipeline, c.newsletter, scheduleJobs(c.cfg), c.cfg.Schedule.DigestAt, *logger.Get())
	if err != nil {
		return err
	}
	srv := newServer(c, port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return serveUntilDone(gctx, srv, c.log)
	})
	return g.Wait()
}

func newServer(c *components, port int) *server.Server {
	if port == 0 {
		port = c.cfg.Server.Port
	}
	if c.cfg.Server.CronSecret == "" {
		c.log.Warn().Msg("CRON_SECRET not set, trigger endpoints will reject every request")
	}
	return server.New(c.pipeline, c.query, c.newsletter, c.cfg.Server.CronSecret, port, *logger.Get())
}

// serveUntilDone runs srv until ctx ends, then drains in-flight requests.
func serveUntilDone(ctx context.Context, srv *server.Server, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
