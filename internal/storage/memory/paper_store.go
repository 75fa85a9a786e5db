// Package memory provides an in-memory tracker.Store for development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

type paperKey struct {
	title   string
	journal string
}

// PaperStore keeps journals and papers in process memory.
type PaperStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	journals []tracker.Journal
	papers   []tracker.StoredPaper
	byKey    map[paperKey]int
	nextID   int64
}

// NewPaperStore constructs an empty PaperStore.
func NewPaperStore() *PaperStore {
	return &PaperStore{
		now:    func() time.Time { return time.Now().UTC() },
		byKey:  make(map[paperKey]int),
		nextID: 1,
	}
}

// WithClock overrides the scrape timestamp source.
func (s *PaperStore) WithClock(clock tracker.Clock) *PaperStore {
	s.now = clock.Now
	return s
}

// Ping always succeeds.
func (s *PaperStore) Ping(context.Context) error {
	return nil
}

// EnsureJournals adds journals not already present, matched by name.
func (s *PaperStore) EnsureJournals(_ context.Context, journals []tracker.Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range journals {
		if s.findJournal(j.Name) < 0 {
			s.journals = append(s.journals, j)
		}
	}
	return nil
}

// ListJournals returns the registered journals ordered by name.
func (s *PaperStore) ListJournals(context.Context) ([]tracker.Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.journals)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SavePaper inserts the paper or reconciles the publication date of an existing match.
func (s *PaperStore) SavePaper(_ context.Context, paper tracker.NewPaper) (tracker.SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findJournal(paper.Journal)
	if idx < 0 {
		return tracker.SaveResult{}, tracker.ErrUnknownJournal
	}
	journal := s.journals[idx].Name
	rec := paper.Record
	key := paperKey{title: rec.Title, journal: journal}

	if pos, ok := s.byKey[key]; ok {
		existing := &s.papers[pos]
		incoming := rec.PublicationDate
		if incoming == nil || (existing.PublicationDate != nil && existing.PublicationDate.Equal(*incoming)) {
			return tracker.SaveResult{Outcome: tracker.OutcomeSkipped, PaperID: existing.ID}, nil
		}
		previous := existing.PublicationDate
		updated := *incoming
		existing.PublicationDate = &updated
		return tracker.SaveResult{
			Outcome:                 tracker.OutcomeUpdated,
			PaperID:                 existing.ID,
			UpdatedFields:           []string{"publication_date"},
			PreviousPublicationDate: previous,
		}, nil
	}

	stored := tracker.StoredPaper{
		ID:                s.nextID,
		Title:             rec.Title,
		URL:               rec.URL,
		PDFURL:            rec.PDFURL,
		DOI:               rec.DOI,
		Abstract:          rec.Abstract,
		Bibtex:            rec.Bibtex,
		Authors:           slices.Clone(rec.Authors),
		Journal:           journal,
		Section:           rec.Section,
		PublicationDate:   cloneTime(rec.PublicationDate),
		AcceptedDate:      cloneTime(rec.AcceptedDate),
		OrderingTimestamp: rec.OrderingTimestamp,
		ListingRank:       rec.ListingRank,
		ScrapedAt:         s.now(),
		Topics:            slices.Clone(paper.Topics),
	}
	if stored.Authors == nil {
		stored.Authors = []string{}
	}
	s.nextID++
	s.byKey[key] = len(s.papers)
	s.papers = append(s.papers, stored)
	return tracker.SaveResult{Outcome: tracker.OutcomeInserted, PaperID: stored.ID}, nil
}

// ListPapers filters, sorts and limits the stored papers.
func (s *PaperStore) ListPapers(_ context.Context, q tracker.PaperQuery) ([]tracker.StoredPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	journal := ""
	if q.Journal != "" {
		idx := s.findJournal(q.Journal)
		if idx < 0 {
			return []tracker.StoredPaper{}, nil
		}
		journal = s.journals[idx].Name
	}

	out := make([]tracker.StoredPaper, 0, len(s.papers))
	for _, p := range s.papers {
		if journal != "" && p.Journal != journal {
			continue
		}
		if q.Topic != "" && !containsFold(p.Topics, q.Topic) {
			continue
		}
		if len(q.AuthorForms) > 0 && !matchesAuthor(p.Authors, q.AuthorForms) {
			continue
		}
		if q.Since != nil && p.EffectiveTime().Before(*q.Since) {
			continue
		}
		out = append(out, clonePaper(p))
	}

	sortPapers(out, q.Sort)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// GetPaper returns one paper by id.
func (s *PaperStore) GetPaper(_ context.Context, id int64) (tracker.StoredPaper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.papers {
		if p.ID == id {
			return clonePaper(p), nil
		}
	}
	return tracker.StoredPaper{}, tracker.ErrNotFound
}

// Stats counts papers per journal, including journals with none.
func (s *PaperStore) Stats(context.Context) (tracker.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := tracker.Stats{TotalPapers: len(s.papers), JournalStats: make(map[string]int, len(s.journals))}
	for _, j := range s.journals {
		stats.JournalStats[j.Name] = 0
	}
	for _, p := range s.papers {
		stats.JournalStats[p.Journal]++
	}
	return stats, nil
}

// TopicCounts counts tagged papers per topic, most frequent first.
func (s *PaperStore) TopicCounts(_ context.Context, since *time.Time) ([]tracker.TopicCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int{}
	for _, p := range s.papers {
		if since != nil && p.EffectiveTime().Before(*since) {
			continue
		}
		for _, topic := range p.Topics {
			counts[topic]++
		}
	}
	out := make([]tracker.TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, tracker.TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

func (s *PaperStore) findJournal(nameOrAbbr string) int {
	for i, j := range s.journals {
		if strings.EqualFold(j.Name, nameOrAbbr) || (j.Abbreviation != "" && strings.EqualFold(j.Abbreviation, nameOrAbbr)) {
			return i
		}
	}
	return -1
}

func sortPapers(papers []tracker.StoredPaper, order tracker.SortOrder) {
	newestFirst := func(a, b tracker.StoredPaper) bool {
		ea, eb := a.EffectiveTime(), b.EffectiveTime()
		if !ea.Equal(eb) {
			return ea.After(eb)
		}
		if !a.OrderingTimestamp.Equal(b.OrderingTimestamp) {
			return a.OrderingTimestamp.After(b.OrderingTimestamp)
		}
		if a.ListingRank != b.ListingRank {
			return a.ListingRank < b.ListingRank
		}
		return a.ID > b.ID
	}
	var less func(a, b tracker.StoredPaper) bool
	switch order {
	case tracker.SortDateAsc:
		less = func(a, b tracker.StoredPaper) bool { return newestFirst(b, a) }
	case tracker.SortTitleAsc:
		less = func(a, b tracker.StoredPaper) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case tracker.SortTitleDesc:
		less = func(a, b tracker.StoredPaper) bool { return strings.ToLower(a.Title) > strings.ToLower(b.Title) }
	default:
		less = newestFirst
	}
	sort.SliceStable(papers, func(i, j int) bool { return less(papers[i], papers[j]) })
}

func matchesAuthor(names, forms []string) bool {
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, form := range forms {
			if form != "" && strings.Contains(lower, strings.ToLower(form)) {
				return true
			}
		}
	}
	return false
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func clonePaper(p tracker.StoredPaper) tracker.StoredPaper {
	p.Authors = slices.Clone(p.Authors)
	p.Topics = slices.Clone(p.Topics)
	p.PublicationDate = cloneTime(p.PublicationDate)
	p.AcceptedDate = cloneTime(p.AcceptedDate)
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
