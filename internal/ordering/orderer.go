// Package ordering assigns listing ranks and synthetic ordering timestamps so
// that papers without reliable publication dates keep the visual order of the
// journal listing they were scraped from.
package ordering

import (
	"sort"
	"time"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// DefaultPageCapacity is the rank stride between consecutive listing pages.
const DefaultPageCapacity = 1000

// Step is the time offset between adjacent ranks.
const Step = time.Second

// Orderer computes ranks and ordering timestamps for one journal batch.
type Orderer struct {
	pageCapacity int
}

// New returns an Orderer. Non-positive capacities fall back to DefaultPageCapacity.
func New(pageCapacity int) *Orderer {
	if pageCapacity <= 0 {
		pageCapacity = DefaultPageCapacity
	}
	return &Orderer{pageCapacity: pageCapacity}
}

// Assign sets ListingRank to page*capacity+index and OrderingTimestamp to
// anchor minus rank steps on every record. The capacity grows to the largest
// page in the batch so a later page can never overlap an earlier one.
func (o *Orderer) Assign(records []tracker.Record, anchor time.Time) []tracker.Record {
	capacity := o.capacityFor(records)
	for i := range records {
		rank := records[i].Page*capacity + records[i].Index
		records[i].ListingRank = rank
		records[i].OrderingTimestamp = anchor.Add(-time.Duration(rank) * Step)
	}
	return records
}

func (o *Orderer) capacityFor(records []tracker.Record) int {
	capacity := o.pageCapacity
	for _, r := range records {
		if r.Index+1 > capacity {
			capacity = r.Index + 1
		}
	}
	return capacity
}

// Effective is the publication date when present, else the ordering timestamp.
func Effective(r tracker.Record) time.Time {
	if r.PublicationDate != nil {
		return *r.PublicationDate
	}
	return r.OrderingTimestamp
}

// Less orders records newest first: effective time, then ordering timestamp,
// then rank.
func Less(a, b tracker.Record) bool {
	ea, eb := Effective(a), Effective(b)
	if !ea.Equal(eb) {
		return ea.After(eb)
	}
	if !a.OrderingTimestamp.Equal(b.OrderingTimestamp) {
		return a.OrderingTimestamp.After(b.OrderingTimestamp)
	}
	return a.ListingRank < b.ListingRank
}

// Sort orders records newest first in place.
func Sort(records []tracker.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return Less(records[i], records[j])
	})
}

// Recent keeps records whose effective time is at or after cutoff. Records
// without a publication date are kept since their recency is unknown.
func Recent(records []tracker.Record, cutoff time.Time) []tracker.Record {
	out := records[:0:0]
	for _, r := range records {
		if r.PublicationDate == nil || !r.PublicationDate.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
