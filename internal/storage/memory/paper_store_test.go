package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

var anchor = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *PaperStore {
	t.Helper()
	s := NewPaperStore()
	require.NoError(t, s.EnsureJournals(context.Background(), []tracker.Journal{
		{Name: "Annals of Statistics", Abbreviation: "AOS"},
		{Name: "Biometrika", Abbreviation: "Biometrika"},
	}))
	return s
}

func paper(journal, title string, rank int, pub *time.Time, authors ...string) tracker.NewPaper {
	return tracker.NewPaper{
		Journal: journal,
		Record: tracker.Record{
			Title:             title,
			Authors:           authors,
			PublicationDate:   pub,
			ListingRank:       rank,
			OrderingTimestamp: anchor.Add(-time.Duration(rank) * time.Second),
		},
	}
}

func day(d int) *time.Time {
	t := time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSavePaperInsertThenSkip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seeded(t)

	first, err := s.SavePaper(ctx, paper("AOS", "Minimax Rates", 0, nil, "A. Smith", "B. Jones", "others"))
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeInserted, first.Outcome)

	second, err := s.SavePaper(ctx, paper("Annals of Statistics", "Minimax Rates", 0, nil))
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeSkipped, second.Outcome)
	require.Equal(t, first.PaperID, second.PaperID)

	got, err := s.GetPaper(ctx, first.PaperID)
	require.NoError(t, err)
	require.Equal(t, []string{"A. Smith", "B. Jones", "others"}, got.Authors)
	require.Equal(t, "Annals of Statistics", got.Journal)
}

func TestSavePaperReconcilesPublicationDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seeded(t)

	_, err := s.SavePaper(ctx, paper("AOS", "Sparse PCA", 0, nil))
	require.NoError(t, err)

	res, err := s.SavePaper(ctx, paper("AOS", "Sparse PCA", 0, day(3)))
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeUpdated, res.Outcome)
	require.Equal(t, []string{"publication_date"}, res.UpdatedFields)
	require.Nil(t, res.PreviousPublicationDate)

	same, err := s.SavePaper(ctx, paper("AOS", "Sparse PCA", 0, day(3)))
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeSkipped, same.Outcome)

	changed, err := s.SavePaper(ctx, paper("AOS", "Sparse PCA", 0, day(9)))
	require.NoError(t, err)
	require.Equal(t, tracker.OutcomeUpdated, changed.Outcome)
	require.True(t, changed.PreviousPublicationDate.Equal(*day(3)))
}

func TestSavePaperUnknownJournal(t *testing.T) {
	t.Parallel()
	_, err := seeded(t).SavePaper(context.Background(), paper("Nature", "X", 0, nil))
	require.ErrorIs(t, err, tracker.ErrUnknownJournal)
}

func TestListPapersFiltersAndOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seeded(t)

	for _, p := range []tracker.NewPaper{
		paper("AOS", "Undated first", 0, nil, "Ann Lee"),
		paper("AOS", "Undated second", 1, nil, "Lee, Ann"),
		paper("AOS", "Old dated", 2, day(1), "Bo Chen"),
		paper("Biometrika", "Other journal", 0, nil, "Cy Diaz"),
	} {
		p.Topics = []string{"Time Series"}
		_, err := s.SavePaper(ctx, p)
		require.NoError(t, err)
	}

	all, err := s.ListPapers(ctx, tracker.PaperQuery{Journal: "aos"})
	require.NoError(t, err)
	require.Equal(t, []string{"Undated first", "Undated second", "Old dated"}, titles(all))

	asc, err := s.ListPapers(ctx, tracker.PaperQuery{Journal: "AOS", Sort: tracker.SortDateAsc})
	require.NoError(t, err)
	require.Equal(t, []string{"Old dated", "Undated second", "Undated first"}, titles(asc))

	byAuthor, err := s.ListPapers(ctx, tracker.PaperQuery{AuthorForms: []string{"ann lee", "lee, ann"}})
	require.NoError(t, err)
	require.Len(t, byAuthor, 2)

	since := anchor.Add(-time.Hour)
	recent, err := s.ListPapers(ctx, tracker.PaperQuery{Since: &since, Sort: tracker.SortTitleAsc, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"Other journal", "Undated first"}, titles(recent))

	none, err := s.ListPapers(ctx, tracker.PaperQuery{Journal: "Nature"})
	require.NoError(t, err)
	require.Empty(t, none)

	topic, err := s.ListPapers(ctx, tracker.PaperQuery{Topic: "time series"})
	require.NoError(t, err)
	require.Len(t, topic, 4)
}

func TestStatsAndTopicCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := seeded(t)

	a := paper("AOS", "A", 0, day(1))
	a.Topics = []string{"Bayesian Statistics", "Time Series"}
	b := paper("AOS", "B", 1, nil)
	b.Topics = []string{"Bayesian Statistics"}
	for _, p := range []tracker.NewPaper{a, b} {
		_, err := s.SavePaper(ctx, p)
		require.NoError(t, err)
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalPapers)
	require.Equal(t, map[string]int{"Annals of Statistics": 2, "Biometrika": 0}, stats.JournalStats)

	counts, err := s.TopicCounts(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []tracker.TopicCount{{Topic: "Bayesian Statistics", Count: 2}, {Topic: "Time Series", Count: 1}}, counts)

	since := anchor.Add(-24 * time.Hour)
	trending, err := s.TopicCounts(ctx, &since)
	require.NoError(t, err)
	require.Equal(t, []tracker.TopicCount{{Topic: "Bayesian Statistics", Count: 1}}, trending)
}

func TestGetPaperNotFound(t *testing.T) {
	t.Parallel()
	_, err := seeded(t).GetPaper(context.Background(), 42)
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

func titles(papers []tracker.StoredPaper) []string {
	out := make([]string, len(papers))
	for i, p := range papers {
		out[i] = p.Title
	}
	return out
}
