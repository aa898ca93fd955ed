package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/elonfeng/pitchpulse/internal/ingest"
	"github.com/elonfeng/pitchpulse/internal/newsletter"
	"github.com/elonfeng/pitchpulse/pkg/source"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Runner runs one ingestion batch.
type Runner interface {
	Run(ctx context.Context, kind source.Kind, limit int) (ingest.Summary, error)
}

// Sender sends the daily digest.
type Sender interface {
	Send(ctx context.Context) (newsletter.Result, error)
}

// Job is one family ingested on a fixed interval.
type Job struct {
	Kind  source.Kind
	Every time.Duration
}

// Scheduler runs periodic ingestion per family and the daily digest.
type Scheduler struct {
	runner   Runner
	sender   Sender
	jobs     []Job
	digestH  int
	digestM  int
	digestOn bool
	log      zerolog.Logger
}

// New creates a scheduler. digestAt is "HH:MM" local time; empty disables
// the digest.
func New(runner Runner, sender Sender, jobs []Job, digestAt string, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		runner: runner,
		sender: sender,
		jobs:   jobs,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
	if digestAt != "" && sender != nil {
		t, err := time.Parse("15:04", digestAt)
		if err != nil {
			return nil, fmt.Errorf("parse digest time %q: %w", digestAt, err)
		}
		s.digestH, s.digestM, s.digestOn = t.Hour(), t.Minute(), true
	}
	for i := range s.jobs {
		if s.jobs[i].Every <= 0 {
			s.jobs[i].Every = 30 * time.Minute
		}
	}
	return s, nil
}

// Run starts the scheduler loops. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		g.Go(func() error { return s.ingestLoop(ctx, job) })
	}
	if s.digestOn {
		g.Go(func() error { return s.digestLoop(ctx) })
	}
	s.log.Info().Int("families", len(s.jobs)).Bool("digest", s.digestOn).Msg("scheduler running")

	err := g.Wait()
	s.log.Info().Msg("scheduler stopped")
	return err
}

func (s *Scheduler) ingestLoop(ctx context.Context, job Job) error {
	ticker := time.NewTicker(job.Every)
	defer ticker.Stop()

	// Run immediately on start.
	s.ingestOnce(ctx, job.Kind)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.ingestOnce(ctx, job.Kind)
		}
	}
}

func (s *Scheduler) ingestOnce(ctx context.Context, kind source.Kind) {
	if _, err := s.runner.Run(ctx, kind, 0); err != nil && ctx.Err() == nil {
		s.log.Error().Str("family", string(kind)).Err(err).Msg("ingestion failed")
	}
}

func (s *Scheduler) digestLoop(ctx context.Context) error {
	for {
		now := time.Now()
		next := NextDigest(now, s.digestH, s.digestM)
		s.log.Info().Time("next", next).Msg("digest scheduled")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		res, err := s.sender.Send(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("digest failed")
			continue
		}
		s.log.Info().Str("status", res.Status).Int("recipients", res.Recipients).Msg("digest run")
	}
}

// NextDigest returns the first hour:minute strictly after now, in now's
// location.
func NextDigest(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
