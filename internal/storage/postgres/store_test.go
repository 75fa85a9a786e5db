package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

var (
	anchor = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	june4  = time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func samplePaper() tracker.NewPaper {
	return tracker.NewPaper{
		Journal: "AOS",
		Record: tracker.Record{
			Title:             "Minimax Rates",
			URL:               "https://example.org/p/1",
			Authors:           []string{"A. Smith", "B. Jones", "others"},
			OrderingTimestamp: anchor,
			ListingRank:       3,
		},
		Topics: []string{"High-Dimensional Statistics"},
	}
}

func expectInsertFlow(mock pgxmock.PgxPoolIface, paper tracker.NewPaper, paperID int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(q(lookupJournalSQL)).WithArgs(paper.Journal).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(q(findPaperSQL)).WithArgs(paper.Record.Title, int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(q(insertPaperSQL)).
		WithArgs(
			paper.Record.Title, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), int64(1), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			paper.Record.OrderingTimestamp, paper.Record.ListingRank,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(paperID))
	for order, name := range paper.Record.Authors {
		authorID := int64(100 + order)
		mock.ExpectQuery(q(upsertAuthorSQL)).WithArgs(name).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(authorID))
		mock.ExpectExec(q(attachAuthorSQL)).WithArgs(paperID, authorID, order).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	for i, topic := range paper.Topics {
		topicID := int64(200 + i)
		mock.ExpectQuery(q(upsertTopicSQL)).WithArgs(topic).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(topicID))
		mock.ExpectExec(q(attachTopicSQL)).WithArgs(paperID, topicID).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()
}

func TestSavePaperInsertsThenSkips(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)
	paper := samplePaper()

	expectInsertFlow(mock, paper, 42)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lookupJournalSQL)).WithArgs("AOS").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(q(findPaperSQL)).WithArgs("Minimax Rates", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	first, err := store.SavePaper(context.Background(), paper)
	require.NoError(t, err)
	require.Equal(t, tracker.SaveResult{Outcome: tracker.OutcomeInserted, PaperID: 42}, first)

	second, err := store.SavePaper(context.Background(), paper)
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeSkipped, second.Outcome)
	require.Equal(t, int64(42), second.PaperID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePaperReconcilesPublicationDate(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)
	paper := samplePaper()
	paper.Record.PublicationDate = &june4

	mock.ExpectBegin()
	mock.ExpectQuery(q(lookupJournalSQL)).WithArgs("AOS").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(q(findPaperSQL)).WithArgs("Minimax Rates", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectQuery(q(reconcileDateSQL)).WithArgs(june4, int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"publication_date"}).AddRow((*time.Time)(nil)))
	mock.ExpectCommit()

	res, err := store.SavePaper(context.Background(), paper)
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeUpdated, res.Outcome)
	require.Equal(t, []string{"publication_date"}, res.UpdatedFields)
	require.Nil(t, res.PreviousPublicationDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePaperSameDateSkips(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)
	paper := samplePaper()
	paper.Record.PublicationDate = &june4

	mock.ExpectBegin()
	mock.ExpectQuery(q(lookupJournalSQL)).WithArgs("AOS").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(q(findPaperSQL)).WithArgs("Minimax Rates", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectQuery(q(reconcileDateSQL)).WithArgs(june4, int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"publication_date"}))
	mock.ExpectCommit()

	res, err := store.SavePaper(context.Background(), paper)
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeSkipped, res.Outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePaperUnknownJournalRollsBack(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lookupJournalSQL)).WithArgs("AOS").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.SavePaper(context.Background(), samplePaper())
	require.ErrorIs(t, err, tracker.ErrUnknownJournal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePaperAuthorFailureRollsBack(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)
	paper := samplePaper()

	mock.ExpectBegin()
	mock.ExpectQuery(q(lookupJournalSQL)).WithArgs("AOS").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(q(findPaperSQL)).WithArgs("Minimax Rates", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(q(insertPaperSQL)).WithArgs(
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	).WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery(q(upsertAuthorSQL)).WithArgs("A. Smith").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "authors_name_key"})
	mock.ExpectRollback()

	_, err := store.SavePaper(context.Background(), paper)
	require.ErrorIs(t, err, tracker.ErrPersistenceConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePaperConcurrentInsertIsConflict(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(lookupJournalSQL)).WithArgs("AOS").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(q(findPaperSQL)).WithArgs("Minimax Rates", int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery(q(insertPaperSQL)).WithArgs(
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	).WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.SavePaper(context.Background(), samplePaper())
	require.ErrorIs(t, err, tracker.ErrPersistenceConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

var paperColumns = []string{
	"id", "title", "url", "pdf_url", "doi", "abstract", "bibtex", "journal", "section",
	"publication_date", "accepted_date", "ordering_ts", "listing_rank", "scraped_at", "authors", "topics",
}

func TestGetPaperPreservesAuthorOrder(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE p\.id = \$1`).WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(paperColumns).AddRow(
			int64(42), "Minimax Rates", "https://example.org/p/1", "", "", "", "", "Annals of Statistics", "",
			(*time.Time)(nil), (*time.Time)(nil), anchor, int32(3), anchor,
			[]string{"A. Smith", "B. Jones", "others"}, []string{"High-Dimensional Statistics"},
		))

	p, err := store.GetPaper(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, []string{"A. Smith", "B. Jones", "others"}, p.Authors)
	require.Equal(t, 3, p.ListingRank)
	require.Nil(t, p.PublicationDate)
	require.Equal(t, anchor, p.EffectiveTime())

	mock.ExpectQuery(`WHERE p\.id = \$1`).WithArgs(int64(7)).WillReturnRows(pgxmock.NewRows(paperColumns))
	_, err = store.GetPaper(context.Background(), 7)
	require.ErrorIs(t, err, tracker.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildListQuery(t *testing.T) {
	t.Parallel()
	since := anchor.Add(-24 * time.Hour)
	query, args := buildListQuery(tracker.PaperQuery{
		Journal:     "AOS",
		AuthorForms: []string{"Ann Lee", "Lee, Ann"},
		Topic:       "Time Series",
		Since:       &since,
		Sort:        tracker.SortTitleAsc,
		Limit:       10,
	})
	require.Contains(t, query, "lower(j.abbreviation) = lower($1)")
	require.Contains(t, query, "ILIKE ANY($2)")
	require.Contains(t, query, "lower(tn.name) = lower($3)")
	require.Contains(t, query, ">= $4")
	require.Contains(t, query, "ORDER BY lower(p.title) ASC")
	require.Contains(t, query, "LIMIT $5")
	require.Equal(t, []any{"AOS", []string{"%Ann Lee%", "%Lee, Ann%"}, "Time Series", since, 10}, args)

	plain, noArgs := buildListQuery(tracker.PaperQuery{})
	require.NotContains(t, plain, "WHERE")
	require.Contains(t, plain, "COALESCE(p.publication_date, p.ordering_ts) DESC, p.ordering_ts DESC, p.listing_rank ASC")
	require.Empty(t, noArgs)
}

func TestStatsAndTopicCounts(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM journals j\s+LEFT JOIN papers`).
		WillReturnRows(pgxmock.NewRows([]string{"name", "count"}).
			AddRow("Annals of Statistics", int64(3)).
			AddRow("Biometrika", int64(0)))
	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalPapers)
	require.Equal(t, map[string]int{"Annals of Statistics": 3, "Biometrika": 0}, stats.JournalStats)

	mock.ExpectQuery(`FROM topics t`).WithArgs((*time.Time)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"name", "count"}).AddRow("Time Series", int64(2)))
	counts, err := store.TopicCounts(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []tracker.TopicCount{{Topic: "Time Series", Count: 2}}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureJournalsAndPing(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectPing()
	mock.ExpectExec(`INSERT INTO journals`).WithArgs("Biometrika", "Biometrika", nil, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO journals`).WithArgs("Broken", nil, nil, nil).
		WillReturnError(errors.New("boom"))

	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.EnsureJournals(context.Background(), []tracker.Journal{{Name: "Biometrika", Abbreviation: "Biometrika"}}))
	err := store.EnsureJournals(context.Background(), []tracker.Journal{{Name: "Broken"}})
	require.ErrorContains(t, err, "Broken")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "db.dsn")

	_, err = NewWithPool(nil)
	require.Error(t, err)
}
