// Package newsletter assembles the daily digest from stored items and
// hands it to delivery and the archive.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/pitchpulse/pkg/alert"
	"github.com/elonfeng/pitchpulse/pkg/digest"
	"github.com/elonfeng/pitchpulse/pkg/relevance"
	"github.com/elonfeng/pitchpulse/pkg/source"
	"github.com/rs/zerolog"
)

// Send outcomes.
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
)

// Candidates supplies stored items inside the digest window.
type Candidates interface {
	DigestCandidates(ctx context.Context) ([]source.Item, error)
}

// Broadcaster delivers a notification and reports how many destinations
// accepted it.
type Broadcaster interface {
	Broadcast(ctx context.Context, n *alert.Notification) (int, error)
}

// Archiver keeps a copy of each sent digest.
type Archiver interface {
	Save(ctx context.Context, n *alert.Notification) error
}

// Result is what a send trigger reports.
type Result struct {
	Status     string `json:"status"`
	Recipients int    `json:"recipients,omitempty"`
	LeadTitle  string `json:"lead_title,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Options wire optional collaborators.
type Options struct {
	Title          string
	Archive        Archiver // nil disables archiving
	DeliverTimeout time.Duration
	Now            func() time.Time
}

// Service builds, previews and sends digests.
type Service struct {
	candidates Candidates
	filter     *relevance.Filter
	delivery   Broadcaster
	opts       Options
	log        zerolog.Logger
}

// New creates a newsletter service.
func New(c Candidates, filter *relevance.Filter, delivery Broadcaster, log zerolog.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DeliverTimeout <= 0 {
		opts.DeliverTimeout = 15 * time.Second
	}
	return &Service{
		candidates: c,
		filter:     filter,
		delivery:   delivery,
		opts:       opts,
		log:        log.With().Str("component", "newsletter").Logger(),
	}
}

// Build selects and renders today's digest. It returns digest.ErrNoStories
// when nothing qualifies.
func (s *Service) Build(ctx context.Context) (*alert.Notification, error) {
	items, err := s.candidates.DigestCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load digest candidates: %w", err)
	}
	d, err := digest.Select(items, s.filter, s.opts.Now())
	if err != nil {
		return nil, err
	}
	r, err := digest.Render(d, s.opts.Title)
	if err != nil {
		return nil, err
	}
	return alert.FromDigest(d, r), nil
}

// Send builds the digest and delivers it. An empty selection is a skip,
// not an error.
func (s *Service) Send(ctx context.Context) (Result, error) {
	n, err := s.Build(ctx)
	if errors.Is(err, digest.ErrNoStories) {
		s.log.Info().Msg("digest skipped: no eligible stories")
		return Result{Status: StatusSkipped, Reason: digest.ErrNoStories.Error()}, nil
	}
	if err != nil {
		return Result{}, err
	}

	dctx, cancel := context.WithTimeout(ctx, s.opts.DeliverTimeout)
	defer cancel()

	sent, derr := s.delivery.Broadcast(dctx, n)
	if derr != nil {
		if sent == 0 {
			return Result{}, fmt.Errorf("deliver digest: %w", derr)
		}
		s.log.Warn().Err(derr).Int("recipients", sent).Msg("digest partially delivered")
	}

	if s.opts.Archive != nil {
		if err := s.opts.Archive.Save(dctx, n); err != nil {
			s.log.Warn().Err(err).Msg("archive digest failed")
		}
	}

	s.log.Info().Int("recipients", sent).Str("lead", n.Lead.Title).Int("stories", 1+len(n.Stories)).Msg("digest sent")
	return Result{Status: StatusSent, Recipients: sent, LeadTitle: n.Lead.Title}, nil
}
