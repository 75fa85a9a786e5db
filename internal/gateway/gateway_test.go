package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/journal-tracker/internal/clock/system"
	"github.com/JakeFAU/journal-tracker/internal/storage/memory"
	"github.com/JakeFAU/journal-tracker/internal/topics"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

var now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newGateway(t *testing.T, logger *zap.Logger) (*Gateway, *memory.PaperStore) {
	t.Helper()
	store := memory.NewPaperStore()
	require.NoError(t, store.EnsureJournals(context.Background(), []tracker.Journal{
		{Name: "Journal of Machine Learning Research", Abbreviation: "JMLR"},
		{Name: "Biometrika", Abbreviation: "Biometrika"},
	}))
	return New(store, topics.New(), system.Fixed(now), logger), store
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSaveNormalizesAndTags(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, store := newGateway(t, nil)

	res, err := gw.Save(ctx, "JMLR", tracker.Record{
		Title:   "  Sparse Bayesian Regression  ",
		Authors: []string{"others", " Ann  Lee ", "Bo Chen", "Bo Chen"},
	})
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeInserted, res.Outcome)

	got, err := store.GetPaper(ctx, res.PaperID)
	require.NoError(t, err)
	require.Equal(t, "Sparse Bayesian Regression", got.Title)
	require.Equal(t, []string{"Ann Lee", "Bo Chen", "others"}, got.Authors)
	require.Equal(t, []string{"Bayesian Statistics", "High-Dimensional Statistics", "Machine Learning"}, got.Topics)
}

func TestSaveRejectsBlankTitle(t *testing.T) {
	t.Parallel()
	gw, _ := newGateway(t, nil)

	_, err := gw.Save(context.Background(), "JMLR", tracker.Record{Title: "   "})
	require.ErrorIs(t, err, tracker.ErrExtraction)
}

func TestSaveLogsReconciledDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	gw, store := newGateway(t, zap.New(core))

	_, err := gw.Save(ctx, "Biometrika", tracker.Record{Title: "On Priors", PublicationDate: date(2025, 6, 1)})
	require.NoError(t, err)
	res, err := gw.Save(ctx, "Biometrika", tracker.Record{Title: "On Priors", PublicationDate: date(2025, 6, 9)})
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeUpdated, res.Outcome)

	entries := logs.FilterMessage("publication date reconciled").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "2025-06-01T00:00:00Z", fields["old"])
	require.Equal(t, "2025-06-09T00:00:00Z", fields["new"])

	got, err := store.GetPaper(ctx, res.PaperID)
	require.NoError(t, err)
	require.True(t, got.PublicationDate.Equal(*date(2025, 6, 9)))
}

type conflictStore struct {
	tracker.Store
}

func (conflictStore) SavePaper(context.Context, tracker.NewPaper) (tracker.SaveResult, error) {
	return tracker.SaveResult{}, tracker.ErrPersistenceConflict
}

type brokenStore struct {
	tracker.Store
}

func (brokenStore) SavePaper(context.Context, tracker.NewPaper) (tracker.SaveResult, error) {
	return tracker.SaveResult{}, errors.New("connection reset")
}

func TestSaveTreatsConflictAsSkip(t *testing.T) {
	t.Parallel()
	gw := New(conflictStore{}, topics.New(), system.Fixed(now), nil)

	res, err := gw.Save(context.Background(), "JMLR", tracker.Record{Title: "Racing Inserts"})
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeSkipped, res.Outcome)
}

func TestSavePropagatesStoreFailure(t *testing.T) {
	t.Parallel()
	gw := New(brokenStore{}, topics.New(), system.Fixed(now), nil)

	_, err := gw.Save(context.Background(), "JMLR", tracker.Record{Title: "Lost"})
	require.ErrorContains(t, err, "connection reset")
}

func TestSyncCountsOutcomes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, store := newGateway(t, nil)

	summary := gw.Sync(ctx, []tracker.SyncRecord{
		{Journal: "JMLR", Title: "A", Authors: []string{"X Y"}, PublicationDate: "2025-06-01"},
		{Journal: "JMLR", Title: "A", PublicationDate: "2025-06-02T00:00:00Z"},
		{Journal: "JMLR", Title: "A"},
		{Journal: "", Title: "Orphan"},
		{Journal: "Unknown Quarterly", Title: "B"},
		{Journal: "Biometrika", Title: "", OrderingTimestamp: "2025-06-01T10:00:00"},
	})
	require.Equal(t, tracker.SyncSummary{Inserted: 1, Updated: 1, Skipped: 3, Failed: 1, Total: 6}, summary)

	papers, err := store.ListPapers(ctx, tracker.PaperQuery{})
	require.NoError(t, err)
	require.Len(t, papers, 1)
	require.True(t, papers[0].PublicationDate.Equal(*date(2025, 6, 2)))
	require.Equal(t, now, papers[0].OrderingTimestamp)
}

func TestToSyncRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, store := newGateway(t, nil)

	ts := now.Add(-3 * time.Second)
	_, err := gw.Save(ctx, "JMLR", tracker.Record{
		Title:             "Ordered Authors",
		Authors:           []string{"Zed Z", "Amy A", "others"},
		PublicationDate:   date(2025, 5, 4),
		OrderingTimestamp: ts,
		ListingRank:       3,
	})
	require.NoError(t, err)
	papers, err := store.ListPapers(ctx, tracker.PaperQuery{})
	require.NoError(t, err)

	sr := ToSync(papers[0])
	require.Equal(t, "Journal of Machine Learning Research", sr.Journal)
	require.Equal(t, "2025-05-04T00:00:00Z", sr.PublicationDate)
	require.Empty(t, sr.AcceptedDate)

	other, otherStore := newGateway(t, nil)
	summary := other.Sync(ctx, []tracker.SyncRecord{sr})
	require.Equal(t, 1, summary.Inserted)
	copied, err := otherStore.ListPapers(ctx, tracker.PaperQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{"Zed Z", "Amy A", "others"}, copied[0].Authors)
	require.True(t, copied[0].OrderingTimestamp.Equal(ts))
	require.Equal(t, 3, copied[0].ListingRank)
}

func TestParseSyncDate(t *testing.T) {
	t.Parallel()

	require.Nil(t, parseSyncDate(""))
	require.Nil(t, parseSyncDate("June 2025"))
	require.True(t, parseSyncDate("2025-06-01").Equal(*date(2025, 6, 1)))
	require.True(t, parseSyncDate("2025-06-01T02:00:00+02:00").Equal(*date(2025, 6, 1)))
}
