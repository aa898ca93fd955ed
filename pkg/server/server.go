package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/pitchpulse/internal/ingest"
	"github.com/elonfeng/pitchpulse/internal/newsletter"
	"github.com/elonfeng/pitchpulse/internal/query"
	"github.com/elonfeng/pitchpulse/pkg/alert"
	"github.com/elonfeng/pitchpulse/pkg/digest"
	"github.com/elonfeng/pitchpulse/pkg/rank"
	"github.com/elonfeng/pitchpulse/pkg/source"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Ingester runs ingestion and backfill jobs.
type Ingester interface {
	Run(ctx context.Context, kind source.Kind, limit int) (ingest.Summary, error)
	Backfill(ctx context.Context, limit int) (ingest.BackfillResult, error)
	HasSummarizer() bool
}

// Reader answers feed queries.
type Reader interface {
	Items(ctx context.Context, req query.Request) query.Page
	Buckets(ctx context.Context, topic string) []rank.Bucket
}

// Digester builds and sends the daily digest.
type Digester interface {
	Build(ctx context.Context) (*alert.Notification, error)
	Send(ctx context.Context) (newsletter.Result, error)
}

type itemsParams struct {
	Page  int    `query:"page" validate:"omitempty,min=1,max=10000"`
	Sort  string `query:"sort" validate:"omitempty,oneof=index hot pulse"`
	Topic string `query:"topic" validate:"omitempty,max=100"`
}

type limitParams struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=500"`
}

// Server provides the HTTP API.
type Server struct {
	app      *fiber.App
	ingester Ingester
	reader   Reader
	digester Digester
	validate *validator.Validate
	port     int
	log      zerolog.Logger
}

// New creates the HTTP server and registers routes.
func New(ing Ingester, reader Reader, dig Digester, secret string, port int, log zerolog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	log = log.With().Str("component", "server").Logger()

	s := &Server{
		ingester: ing,
		reader:   reader,
		digester: dig,
		validate: validator.New(),
		port:     port,
		log:      log,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "pitchpulse",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})
	s.app.Use(recover.New())
	s.app.Use(requestLogger(log))

	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api/v1")
	api.Get("/items", s.handleItems)
	api.Get("/items/buckets", s.handleBuckets)

	auth := requireSecret(secret, log)
	api.Post("/ingest/:family", auth, s.handleIngest)
	api.Post("/backfill", auth, s.handleBackfill)
	api.Post("/digest", auth, s.handleDigest)
	api.Get("/digest/preview", auth, s.handlePreview)

	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info().Str("addr", addr).Msg("listening")
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleItems(c *fiber.Ctx) error {
	var p itemsParams
	if err := s.parseQuery(c, &p); err != nil {
		return err
	}
	policy, _ := rank.ParsePolicy(p.Sort)
	page := s.reader.Items(c.UserContext(), query.Request{Page: p.Page, Sort: policy, Topic: p.Topic})
	return c.JSON(page)
}

func (s *Server) handleBuckets(c *fiber.Ctx) error {
	var p itemsParams
	if err := s.parseQuery(c, &p); err != nil {
		return err
	}
	return c.JSON(s.reader.Buckets(c.UserContext(), p.Topic))
}

func (s *Server) handleIngest(c *fiber.Ctx) error {
	kind, err := source.ParseKind(c.Params("family"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	var p limitParams
	if err := s.parseQuery(c, &p); err != nil {
		return err
	}

	sum, err := s.ingester.Run(c.UserContext(), kind, p.Limit)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", kind, err)
	}
	return c.JSON(sum)
}

func (s *Server) handleBackfill(c *fiber.Ctx) error {
	if !s.ingester.HasSummarizer() {
		return fiber.NewError(fiber.StatusServiceUnavailable, ingest.ErrNoSummarizer.Error())
	}
	var p limitParams
	if err := s.parseQuery(c, &p); err != nil {
		return err
	}

	res, err := s.ingester.Backfill(c.UserContext(), p.Limit)
	if errors.Is(err, ingest.ErrNoSummarizer) {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	return c.JSON(res)
}

func (s *Server) handleDigest(c *fiber.Ctx) error {
	res, err := s.digester.Send(c.UserContext())
	if err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return c.JSON(res)
}

func (s *Server) handlePreview(c *fiber.Ctx) error {
	n, err := s.digester.Build(c.UserContext())
	if errors.Is(err, digest.ErrNoStories) {
		return c.JSON(newsletter.Result{Status: newsletter.StatusSkipped, Reason: err.Error()})
	}
	if err != nil {
		return fmt.Errorf("preview digest: %w", err)
	}
	return c.JSON(fiber.Map{
		"subject": n.Subject,
		"text":    n.Text,
		"html":    n.HTML,
		"lead":    n.Lead,
		"stories": n.Stories,
	})
}

func (s *Server) parseQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("invalid %s: %s", verrs[0].Field(), verrs[0].Tag()))
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}
