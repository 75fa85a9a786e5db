// Package postgres provides the Postgres-backed tracker.Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements tracker.Store on Postgres. Each SavePaper call is one transaction.
type Store struct {
	pool pgxPool
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureJournals upserts the reference journal rows.
func (s *Store) EnsureJournals(ctx context.Context, journals []tracker.Journal) error {
	const query = `
		INSERT INTO journals (name, abbreviation, url, papers_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET abbreviation = EXCLUDED.abbreviation, url = EXCLUDED.url, papers_url = EXCLUDED.papers_url;
	`
	for _, j := range journals {
		if _, err := s.pool.Exec(ctx, query, j.Name, nullable(j.Abbreviation), nullable(j.URL), nullable(j.PapersURL)); err != nil {
			return fmt.Errorf("upsert journal %q: %w", j.Name, err)
		}
	}
	return nil
}

// ListJournals returns the journal rows ordered by name.
func (s *Store) ListJournals(ctx context.Context) ([]tracker.Journal, error) {
	const query = `
		SELECT name, COALESCE(abbreviation, ''), COALESCE(url, ''), COALESCE(papers_url, '')
		FROM journals
		ORDER BY name;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list journals: %w", err)
	}
	defer rows.Close()

	journals := []tracker.Journal{}
	for rows.Next() {
		var j tracker.Journal
		if err := rows.Scan(&j.Name, &j.Abbreviation, &j.URL, &j.PapersURL); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		journals = append(journals, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journals: %w", err)
	}
	return journals, nil
}

const (
	lookupJournalSQL = `SELECT id FROM journals WHERE lower(name) = lower($1) OR lower(abbreviation) = lower($1);`
	findPaperSQL     = `SELECT id FROM papers WHERE title = $1 AND journal_id = $2;`
	reconcileDateSQL = `
		WITH prev AS (SELECT publication_date FROM papers WHERE id = $2 FOR UPDATE)
		UPDATE papers SET publication_date = $1
		FROM prev
		WHERE papers.id = $2 AND papers.publication_date IS DISTINCT FROM $1
		RETURNING prev.publication_date;
	`
	insertPaperSQL = `
		INSERT INTO papers (
			title, url, pdf_url, doi, abstract, bibtex, journal_id, section,
			publication_date, accepted_date, ordering_ts, listing_rank
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (title, journal_id) DO NOTHING
		RETURNING id;
	`
	upsertAuthorSQL = `
		INSERT INTO authors (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id;
	`
	attachAuthorSQL = `
		INSERT INTO paper_authors (paper_id, author_id, author_order) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING;
	`
	upsertTopicSQL = `
		INSERT INTO topics (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id;
	`
	attachTopicSQL = `INSERT INTO paper_topics (paper_id, topic_id) VALUES ($1, $2) ON CONFLICT DO NOTHING;`
)

// SavePaper inserts the paper with its authors and topics, or reconciles the
// publication date of an existing (title, journal) row. Any failure rolls back.
func (s *Store) SavePaper(ctx context.Context, paper tracker.NewPaper) (result tracker.SaveResult, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return tracker.SaveResult{}, fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			err = mapError(err)
		}
	}()

	var journalID int64
	if err = tx.QueryRow(ctx, lookupJournalSQL, paper.Journal).Scan(&journalID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.SaveResult{}, fmt.Errorf("%w: %q", tracker.ErrUnknownJournal, paper.Journal)
		}
		return tracker.SaveResult{}, fmt.Errorf("lookup journal: %w", err)
	}

	rec := paper.Record
	var paperID int64
	err = tx.QueryRow(ctx, findPaperSQL, rec.Title, journalID).Scan(&paperID)
	switch {
	case err == nil:
		result, err = reconcile(ctx, tx, paperID, rec.PublicationDate)
		if err != nil {
			return tracker.SaveResult{}, err
		}
	case errors.Is(err, pgx.ErrNoRows):
		result, err = insert(ctx, tx, journalID, paper)
		if err != nil {
			return tracker.SaveResult{}, err
		}
	default:
		return tracker.SaveResult{}, fmt.Errorf("find paper: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return tracker.SaveResult{}, fmt.Errorf("commit save tx: %w", err)
	}
	return result, nil
}

func reconcile(ctx context.Context, tx pgx.Tx, paperID int64, incoming *time.Time) (tracker.SaveResult, error) {
	skipped := tracker.SaveResult{Outcome: tracker.OutcomeSkipped, PaperID: paperID}
	if incoming == nil {
		return skipped, nil
	}
	var previous *time.Time
	err := tx.QueryRow(ctx, reconcileDateSQL, *incoming, paperID).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return skipped, nil
	}
	if err != nil {
		return tracker.SaveResult{}, fmt.Errorf("reconcile publication date: %w", err)
	}
	return tracker.SaveResult{
		Outcome:                 tracker.OutcomeUpdated,
		PaperID:                 paperID,
		UpdatedFields:           []string{"publication_date"},
		PreviousPublicationDate: previous,
	}, nil
}

func insert(ctx context.Context, tx pgx.Tx, journalID int64, paper tracker.NewPaper) (tracker.SaveResult, error) {
	rec := paper.Record
	var paperID int64
	err := tx.QueryRow(ctx, insertPaperSQL,
		rec.Title,
		nullable(rec.URL),
		nullable(rec.PDFURL),
		nullable(rec.DOI),
		nullable(rec.Abstract),
		nullable(rec.Bibtex),
		journalID,
		nullable(rec.Section),
		rec.PublicationDate,
		rec.AcceptedDate,
		rec.OrderingTimestamp,
		rec.ListingRank,
	).Scan(&paperID)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.SaveResult{}, fmt.Errorf("%w: %q inserted concurrently", tracker.ErrPersistenceConflict, rec.Title)
	}
	if err != nil {
		return tracker.SaveResult{}, fmt.Errorf("insert paper: %w", err)
	}

	for order, name := range rec.Authors {
		var authorID int64
		if err := tx.QueryRow(ctx, upsertAuthorSQL, name).Scan(&authorID); err != nil {
			return tracker.SaveResult{}, fmt.Errorf("upsert author %q: %w", name, err)
		}
		if _, err := tx.Exec(ctx, attachAuthorSQL, paperID, authorID, order); err != nil {
			return tracker.SaveResult{}, fmt.Errorf("attach author %q: %w", name, err)
		}
	}
	for _, topic := range paper.Topics {
		var topicID int64
		if err := tx.QueryRow(ctx, upsertTopicSQL, topic).Scan(&topicID); err != nil {
			return tracker.SaveResult{}, fmt.Errorf("upsert topic %q: %w", topic, err)
		}
		if _, err := tx.Exec(ctx, attachTopicSQL, paperID, topicID); err != nil {
			return tracker.SaveResult{}, fmt.Errorf("attach topic %q: %w", topic, err)
		}
	}
	return tracker.SaveResult{Outcome: tracker.OutcomeInserted, PaperID: paperID}, nil
}

const selectPaperSQL = `
	SELECT p.id, p.title, COALESCE(p.url, ''), COALESCE(p.pdf_url, ''), COALESCE(p.doi, ''),
		COALESCE(p.abstract, ''), COALESCE(p.bibtex, ''), j.name, COALESCE(p.section, ''),
		p.publication_date, p.accepted_date, p.ordering_ts, p.listing_rank, p.scraped_at,
		COALESCE((SELECT array_agg(a.name ORDER BY pa.author_order)
			FROM paper_authors pa JOIN authors a ON a.id = pa.author_id
			WHERE pa.paper_id = p.id), '{}') AS authors,
		COALESCE((SELECT array_agg(t.name ORDER BY t.name)
			FROM paper_topics pt JOIN topics t ON t.id = pt.topic_id
			WHERE pt.paper_id = p.id), '{}') AS topics
	FROM papers p
	JOIN journals j ON j.id = p.journal_id`

var orderClauses = map[tracker.SortOrder]string{
	tracker.SortDateDesc:  "COALESCE(p.publication_date, p.ordering_ts) DESC, p.ordering_ts DESC, p.listing_rank ASC, p.id DESC",
	tracker.SortDateAsc:   "COALESCE(p.publication_date, p.ordering_ts) ASC, p.ordering_ts ASC, p.listing_rank DESC, p.id ASC",
	tracker.SortTitleAsc:  "lower(p.title) ASC, p.id ASC",
	tracker.SortTitleDesc: "lower(p.title) DESC, p.id DESC",
}

// ListPapers filters, sorts and limits papers.
func (s *Store) ListPapers(ctx context.Context, q tracker.PaperQuery) ([]tracker.StoredPaper, error) {
	query, args := buildListQuery(q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	papers := []tracker.StoredPaper{}
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return papers, nil
}

func buildListQuery(q tracker.PaperQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.Journal != "" {
		add("(lower(j.name) = lower($%d) OR lower(j.abbreviation) = lower($%[1]d))", q.Journal)
	}
	if len(q.AuthorForms) > 0 {
		patterns := make([]string, 0, len(q.AuthorForms))
		for _, form := range q.AuthorForms {
			patterns = append(patterns, "%"+escapeLike(form)+"%")
		}
		add(`EXISTS (SELECT 1 FROM paper_authors fa JOIN authors fn ON fn.id = fa.author_id
			WHERE fa.paper_id = p.id AND fn.name ILIKE ANY($%d))`, patterns)
	}
	if q.Topic != "" {
		add(`EXISTS (SELECT 1 FROM paper_topics ft JOIN topics tn ON tn.id = ft.topic_id
			WHERE ft.paper_id = p.id AND lower(tn.name) = lower($%d))`, q.Topic)
	}
	if q.Since != nil {
		add("COALESCE(p.publication_date, p.ordering_ts) >= $%d", *q.Since)
	}

	var b strings.Builder
	b.WriteString(selectPaperSQL)
	if len(where) > 0 {
		b.WriteString("\n\tWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	order, ok := orderClauses[q.Sort]
	if !ok {
		order = orderClauses[tracker.SortDateDesc]
	}
	b.WriteString("\n\tORDER BY ")
	b.WriteString(order)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, "\n\tLIMIT $%d", len(args))
	}
	return b.String(), args
}

// GetPaper returns one paper by id.
func (s *Store) GetPaper(ctx context.Context, id int64) (tracker.StoredPaper, error) {
	row := s.pool.QueryRow(ctx, selectPaperSQL+"\n\tWHERE p.id = $1", id)
	p, err := scanPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.StoredPaper{}, tracker.ErrNotFound
	}
	return p, err
}

// Stats counts papers per journal.
func (s *Store) Stats(ctx context.Context) (tracker.Stats, error) {
	const query = `
		SELECT j.name, COUNT(p.id)
		FROM journals j
		LEFT JOIN papers p ON p.journal_id = j.id
		GROUP BY j.name
		ORDER BY j.name;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return tracker.Stats{}, fmt.Errorf("paper stats: %w", err)
	}
	defer rows.Close()

	stats := tracker.Stats{JournalStats: map[string]int{}}
	for rows.Next() {
		var (
			name  string
			count int64
		)
		if err := rows.Scan(&name, &count); err != nil {
			return tracker.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.JournalStats[name] = int(count)
		stats.TotalPapers += int(count)
	}
	if err := rows.Err(); err != nil {
		return tracker.Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// TopicCounts counts tagged papers per topic, optionally within a window.
func (s *Store) TopicCounts(ctx context.Context, since *time.Time) ([]tracker.TopicCount, error) {
	const query = `
		SELECT t.name, COUNT(*)
		FROM topics t
		JOIN paper_topics pt ON pt.topic_id = t.id
		JOIN papers p ON p.id = pt.paper_id
		WHERE ($1::timestamptz IS NULL OR COALESCE(p.publication_date, p.ordering_ts) >= $1)
		GROUP BY t.name
		ORDER BY COUNT(*) DESC, t.name;
	`
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("topic counts: %w", err)
	}
	defer rows.Close()

	counts := []tracker.TopicCount{}
	for rows.Next() {
		var (
			tc    tracker.TopicCount
			count int64
		)
		if err := rows.Scan(&tc.Topic, &count); err != nil {
			return nil, fmt.Errorf("scan topic count: %w", err)
		}
		tc.Count = int(count)
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic counts: %w", err)
	}
	return counts, nil
}

func scanPaper(row pgx.Row) (tracker.StoredPaper, error) {
	var (
		p    tracker.StoredPaper
		rank int32
	)
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.URL,
		&p.PDFURL,
		&p.DOI,
		&p.Abstract,
		&p.Bibtex,
		&p.Journal,
		&p.Section,
		&p.PublicationDate,
		&p.AcceptedDate,
		&p.OrderingTimestamp,
		&rank,
		&p.ScrapedAt,
		&p.Authors,
		&p.Topics,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.StoredPaper{}, err
		}
		return tracker.StoredPaper{}, fmt.Errorf("scan paper: %w", err)
	}
	p.ListingRank = int(rank)
	return p, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s: %w", tracker.ErrPersistenceConflict, pgErr.ConstraintName, err)
	}
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
