package ordering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

var anchor = time.Date(2025, 7, 28, 12, 0, 0, 0, time.UTC)

func TestAssignStrictlyDecreasingWithinAndAcrossPages(t *testing.T) {
	t.Parallel()

	var records []tracker.Record
	for page := 0; page < 3; page++ {
		for idx := 0; idx < 4; idx++ {
			records = append(records, tracker.Record{Title: "p", Page: page, Index: idx})
		}
	}
	New(4).Assign(records, anchor)

	for i := 1; i < len(records); i++ {
		require.True(t, records[i-1].OrderingTimestamp.After(records[i].OrderingTimestamp),
			"position %d must sort ahead of %d", i-1, i)
		require.Less(t, records[i-1].ListingRank, records[i].ListingRank)
	}
	require.Equal(t, anchor, records[0].OrderingTimestamp)
}

func TestAssignCapacityGrowsWithOversizedPages(t *testing.T) {
	t.Parallel()

	records := []tracker.Record{
		{Page: 0, Index: 0},
		{Page: 0, Index: 7},
		{Page: 1, Index: 0},
	}
	New(2).Assign(records, anchor)
	require.True(t, records[1].OrderingTimestamp.After(records[2].OrderingTimestamp))
	require.Equal(t, 8, records[2].ListingRank)
}

func TestSortPrefersPublicationDateThenListingOrder(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	later := day.Add(48 * time.Hour)
	records := New(0).Assign([]tracker.Record{
		{Title: "tied-first", Index: 0, PublicationDate: &day},
		{Title: "tied-second", Index: 1, PublicationDate: &day},
		{Title: "newest", Index: 2, PublicationDate: &later},
		{Title: "undated", Index: 3},
	}, anchor)

	Sort(records)
	titles := make([]string, 0, len(records))
	for _, r := range records {
		titles = append(titles, r.Title)
	}
	require.Equal(t, []string{"undated", "newest", "tied-first", "tied-second"}, titles)
}

func TestRecentKeepsUndatedRecords(t *testing.T) {
	t.Parallel()

	old := anchor.AddDate(0, 0, -90)
	fresh := anchor.AddDate(0, 0, -3)
	kept := Recent([]tracker.Record{
		{Title: "old", PublicationDate: &old},
		{Title: "fresh", PublicationDate: &fresh},
		{Title: "undated"},
	}, anchor.AddDate(0, 0, -60))
	require.Len(t, kept, 2)
	require.Equal(t, "fresh", kept[0].Title)
	require.Equal(t, "undated", kept[1].Title)
}
