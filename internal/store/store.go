package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/elonfeng/pitchpulse/pkg/source"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrWriteFailed wraps any failed insert or update.
var ErrWriteFailed = errors.New("store write failed")

const itemColumns = "id, source_kind, external_id, title, url, body, summary, topic_tag, author, engagement, origin, image_url, fetched_at, published_at"

// ListOpts controls item listing. Zero values mean "no constraint".
type ListOpts struct {
	Kind  source.Kind
	Topic string
	Since time.Time
	Until time.Time
	Limit int
}

// Store is the persistence interface.
type Store interface {
	Lookup(ctx context.Context, kind source.Kind, externalID string) (*source.Item, error)
	Insert(ctx context.Context, item *source.Item) error
	Refresh(ctx context.Context, item source.Item) error
	SetSummary(ctx context.Context, id, summary string) (bool, error)
	GetItem(ctx context.Context, id string) (*source.Item, error)
	ListItems(ctx context.Context, opts ListOpts) ([]source.Item, error)
	ListMissingSummary(ctx context.Context, limit int) ([]source.Item, error)
	CountItemsByKind(ctx context.Context) (map[source.Kind]int, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// New opens a SQLite database and runs migrations. ":memory:" is accepted
// for tests.
func New(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Lookup returns the stored item for (kind, externalID), or nil when none.
func (s *SQLiteStore) Lookup(ctx context.Context, kind source.Kind, externalID string) (*source.Item, error) {
	var item source.Item
	err := s.db.GetContext(ctx, &item,
		"SELECT "+itemColumns+" FROM items WHERE source_kind = ? AND external_id = ?",
		kind, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s/%s: %w", kind, externalID, err)
	}
	return normalizeTimes(&item), nil
}

// Insert writes a new row and assigns item.ID.
func (s *SQLiteStore) Insert(ctx context.Context, item *source.Item) error {
	id := uuid.NewString()
	query, args, err := s.sb.Insert("items").
		Columns(strings.Split(strings.ReplaceAll(itemColumns, " ", ""), ",")...).
		Values(id, item.Kind, item.ExternalID, item.Title, item.URL, item.Body,
			item.Summary, item.TopicTag, item.Author, item.Engagement, item.Origin,
			item.ImageURL, item.FetchedAt.UTC(), item.PublishedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build insert: %v", ErrWriteFailed, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert %s/%s: %v", ErrWriteFailed, item.Kind, item.ExternalID, err)
	}
	item.ID = id
	return nil
}

// Refresh updates only the engagement count and fetch time of an existing
// row. Every other column, summary included, is left untouched.
func (s *SQLiteStore) Refresh(ctx context.Context, item source.Item) error {
	query, args, err := s.sb.Update("items").
		Set("engagement", item.Engagement).
		Set("fetched_at", item.FetchedAt.UTC()).
		Where(sq.Eq{"source_kind": item.Kind, "external_id": item.ExternalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: build refresh: %v", ErrWriteFailed, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: refresh %s/%s: %v", ErrWriteFailed, item.Kind, item.ExternalID, err)
	}
	return nil
}

// SetSummary stores a summary only if none exists yet. It reports whether
// a row was changed.
func (s *SQLiteStore) SetSummary(ctx context.Context, id, summary string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE items SET summary = ? WHERE id = ? AND summary IS NULL", summary, id)
	if err != nil {
		return false, fmt.Errorf("%w: set summary %s: %v", ErrWriteFailed, id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*source.Item, error) {
	var item source.Item
	err := s.db.GetContext(ctx, &item, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return normalizeTimes(&item), nil
}

// ListItems returns items newest-published first. A zero Limit returns
// every matching row.
func (s *SQLiteStore) ListItems(ctx context.Context, opts ListOpts) ([]source.Item, error) {
	q := s.sb.Select(itemColumns).From("items")

	if opts.Kind != "" {
		q = q.Where(sq.Eq{"source_kind": opts.Kind})
	}
	if opts.Topic != "" {
		q = q.Where(sq.Eq{"topic_tag": opts.Topic})
	}
	if !opts.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"published_at": opts.Since.UTC()})
	}
	if !opts.Until.IsZero() {
		q = q.Where(sq.LtOrEq{"published_at": opts.Until.UTC()})
	}

	q = q.OrderBy("published_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	var items []source.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	for i := range items {
		normalizeTimes(&items[i])
	}
	return items, nil
}

// ListMissingSummary returns up to limit items that still need a summary,
// oldest fetched first.
func (s *SQLiteStore) ListMissingSummary(ctx context.Context, limit int) ([]source.Item, error) {
	if limit <= 0 {
		limit = 25
	}
	query, args, err := s.sb.Select(itemColumns).From("items").
		Where(sq.Eq{"summary": nil}).
		OrderBy("fetched_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build missing summary query: %w", err)
	}

	var items []source.Item
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list missing summary: %w", err)
	}
	for i := range items {
		normalizeTimes(&items[i])
	}
	return items, nil
}

func (s *SQLiteStore) CountItemsByKind(ctx context.Context) (map[source.Kind]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT source_kind, COUNT(*) AS cnt FROM items GROUP BY source_kind")
	if err != nil {
		return nil, fmt.Errorf("count items by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[source.Kind]int)
	for rows.Next() {
		var kind string
		var cnt int
		if err := rows.Scan(&kind, &cnt); err != nil {
			return nil, err
		}
		counts[source.Kind(kind)] = cnt
	}
	return counts, rows.Err()
}

// normalizeTimes maps the stored zero timestamp back to time.Time{} so
// IsZero keeps meaning "unknown" after a round trip.
func normalizeTimes(item *source.Item) *source.Item {
	if item.PublishedAt.Year() <= 1 {
		item.PublishedAt = time.Time{}
	}
	if item.FetchedAt.Year() <= 1 {
		item.FetchedAt = time.Time{}
	}
	return item
}
