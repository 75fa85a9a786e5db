// Package journals is the static catalog of tracked journals: reference
// data, listing locations, extraction rules and the source strategies each
// journal falls back through.
package journals

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/journal-tracker/internal/extract"
	"github.com/JakeFAU/journal-tracker/internal/snapshot"
	"github.com/JakeFAU/journal-tracker/internal/source"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// Entry describes how one journal is tracked.
type Entry struct {
	Journal tracker.Journal
	// Static and Browser are nil when the strategy does not apply.
	Static  *source.Listing
	Browser *source.Listing
	Feeds   []string
	// CrossrefTitle enables the metadata API strategy.
	CrossrefTitle string
	Rules         extract.Rules
	// Enrich fetches landing pages for abstracts and BibTeX entries.
	Enrich         bool
	EnrichAbstract extract.Field
}

// Deps are the shared collaborators strategies are built from. Nil
// collaborators disable the strategies that need them.
type Deps struct {
	Static    tracker.Fetcher
	Detector  source.Promoter
	Launch    source.Launcher
	Feeds     source.FeedFetcher
	Works     source.WorksClient
	Archiver  *snapshot.Archiver
	PageDelay time.Duration
	// BrowserMinDelay and BrowserMaxDelay bound the pause between rendered pages.
	BrowserMinDelay time.Duration
	BrowserMaxDelay time.Duration
	Logger          *zap.Logger
}

// Chain builds the journal's strategy chain in fallback order.
func (e Entry) Chain(d Deps) *source.Chain {
	name := e.Journal.Abbreviation
	var strategies []source.Strategy
	if e.Static != nil && d.Static != nil {
		strategies = append(strategies, &source.StaticHTML{
			Journal:   name,
			Listing:   *e.Static,
			Fetcher:   d.Static,
			Archiver:  d.Archiver,
			Detector:  d.Detector,
			PageDelay: d.PageDelay,
		})
	}
	if e.Browser != nil && d.Launch != nil {
		strategies = append(strategies, &source.Browser{
			Journal:  name,
			Listing:  *e.Browser,
			Launch:   d.Launch,
			Archiver: d.Archiver,
			MinDelay: d.BrowserMinDelay,
			MaxDelay: d.BrowserMaxDelay,
		})
	}
	if len(e.Feeds) > 0 && d.Feeds != nil {
		strategies = append(strategies, &source.Feed{Journal: name, URLs: e.Feeds, Fetcher: d.Feeds})
	}
	if e.CrossrefTitle != "" && d.Works != nil {
		strategies = append(strategies, &source.MetadataAPI{Journal: name, ContainerTitle: e.CrossrefTitle, Client: d.Works})
	}
	return source.NewChain(name, d.Logger, strategies...)
}

// Extractor compiles the journal's rules.
func (e Entry) Extractor() (*extract.Extractor, error) {
	ex, err := extract.New(e.Rules)
	if err != nil {
		return nil, fmt.Errorf("%s rules: %w", e.Journal.Abbreviation, err)
	}
	return ex, nil
}

// Enricher returns the landing-page enricher, or nil when the journal needs none.
func (e Entry) Enricher(d Deps) *source.Enricher {
	if !e.Enrich || d.Static == nil {
		return nil
	}
	return &source.Enricher{Fetcher: d.Static, Abstract: e.EnrichAbstract, Logger: d.Logger}
}

// Catalog returns every tracked journal in a fixed order.
func Catalog() []Entry {
	return []Entry{aos(), jasa(), jrssb(), biometrika(), jmlr()}
}

// Journals returns the reference data of the catalog.
func Journals() []tracker.Journal {
	entries := Catalog()
	out := make([]tracker.Journal, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Journal)
	}
	return out
}

// Select returns the entries named by full name or abbreviation, matched
// case-insensitively. An empty list selects the whole catalog.
func Select(names []string) ([]Entry, error) {
	entries := Catalog()
	if len(names) == 0 {
		return entries, nil
	}
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		found := false
		for _, e := range entries {
			if strings.EqualFold(e.Journal.Name, name) || strings.EqualFold(e.Journal.Abbreviation, name) {
				out = append(out, e)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", tracker.ErrUnknownJournal, name)
		}
	}
	return out, nil
}
