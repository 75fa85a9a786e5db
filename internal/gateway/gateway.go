// Package gateway is the single write path into the store: it validates,
// normalizes and tags records before an atomic per-paper save.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/journal-tracker/internal/authors"
	"github.com/JakeFAU/journal-tracker/internal/metrics"
	"github.com/JakeFAU/journal-tracker/internal/topics"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// syncLayouts are the ISO-8601 forms accepted from sync payloads.
var syncLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// Gateway saves records through a tracker.Store.
type Gateway struct {
	store  tracker.Store
	tagger *topics.Tagger
	clock  tracker.Clock
	logger *zap.Logger
}

// New constructs a Gateway.
func New(store tracker.Store, tagger *topics.Tagger, clock tracker.Clock, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{store: store, tagger: tagger, clock: clock, logger: logger}
}

// Save persists one record for journal. Duplicates are reported as
// OutcomeSkipped, and a changed publication date as OutcomeUpdated.
func (g *Gateway) Save(ctx context.Context, journal string, rec tracker.Record) (tracker.SaveResult, error) {
	rec.Title = strings.TrimSpace(rec.Title)
	if rec.Title == "" {
		return tracker.SaveResult{}, fmt.Errorf("%w: record for %s has no title", tracker.ErrExtraction, journal)
	}
	rec.Authors = authors.Normalize(rec.Authors)

	res, err := g.store.SavePaper(ctx, tracker.NewPaper{
		Journal: journal,
		Record:  rec,
		Topics:  g.tagger.Tag(rec.Title),
	})
	if errors.Is(err, tracker.ErrPersistenceConflict) {
		g.logger.Debug("save conflict treated as duplicate",
			zap.String("journal", journal),
			zap.String("title", rec.Title),
			zap.Error(err),
		)
		res, err = tracker.SaveResult{Outcome: tracker.OutcomeSkipped}, nil
	}
	if err != nil {
		return tracker.SaveResult{}, fmt.Errorf("save %q: %w", rec.Title, err)
	}

	if res.Outcome == tracker.OutcomeUpdated {
		g.logger.Info("publication date reconciled",
			zap.String("journal", journal),
			zap.Int64("paper_id", res.PaperID),
			zap.String("title", rec.Title),
			zap.Stringp("old", formatDate(res.PreviousPublicationDate)),
			zap.Stringp("new", formatDate(rec.PublicationDate)),
		)
	}
	metrics.ObserveSave(journal, string(res.Outcome))
	return res, nil
}

// Sync applies externally prepared records with the same rules as Save.
// Records without a known journal are skipped; other failures are counted
// and do not stop the batch.
func (g *Gateway) Sync(ctx context.Context, records []tracker.SyncRecord) tracker.SyncSummary {
	summary := tracker.SyncSummary{Total: len(records)}
	for i, sr := range records {
		if strings.TrimSpace(sr.Journal) == "" {
			summary.Skipped++
			continue
		}
		rec := fromSync(sr, g.clock.Now(), i)
		res, err := g.Save(ctx, sr.Journal, rec)
		switch {
		case errors.Is(err, tracker.ErrUnknownJournal):
			summary.Skipped++
		case err != nil:
			g.logger.Warn("sync record failed",
				zap.String("journal", sr.Journal),
				zap.String("title", sr.Title),
				zap.Error(err),
			)
			summary.Failed++
		case res.Outcome == tracker.OutcomeInserted:
			summary.Inserted++
		case res.Outcome == tracker.OutcomeUpdated:
			summary.Updated++
		default:
			summary.Skipped++
		}
	}
	g.logger.Info("sync batch applied",
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

// ToSync converts a stored paper into the sync wire shape.
func ToSync(p tracker.StoredPaper) tracker.SyncRecord {
	return tracker.SyncRecord{
		Journal:           p.Journal,
		Title:             p.Title,
		URL:               p.URL,
		PDFURL:            p.PDFURL,
		DOI:               p.DOI,
		Abstract:          p.Abstract,
		Bibtex:            p.Bibtex,
		Authors:           authors.Normalize(p.Authors),
		PublicationDate:   stringOrEmpty(formatDate(p.PublicationDate)),
		AcceptedDate:      stringOrEmpty(formatDate(p.AcceptedDate)),
		Section:           p.Section,
		OrderingTimestamp: p.OrderingTimestamp.UTC().Format(time.RFC3339Nano),
		ListingRank:       p.ListingRank,
	}
}

func fromSync(sr tracker.SyncRecord, now time.Time, position int) tracker.Record {
	rec := tracker.Record{
		Title:           sr.Title,
		URL:             sr.URL,
		PDFURL:          sr.PDFURL,
		DOI:             sr.DOI,
		Abstract:        sr.Abstract,
		Bibtex:          sr.Bibtex,
		Authors:         sr.Authors,
		PublicationDate: parseSyncDate(sr.PublicationDate),
		AcceptedDate:    parseSyncDate(sr.AcceptedDate),
		Section:         sr.Section,
		ListingRank:     sr.ListingRank,
	}
	if ts := parseSyncDate(sr.OrderingTimestamp); ts != nil {
		rec.OrderingTimestamp = *ts
	} else {
		rec.OrderingTimestamp = now.Add(-time.Duration(position) * time.Second)
	}
	return rec
}

func parseSyncDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range syncLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
