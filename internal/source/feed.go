package source

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// FeedFetcher downloads and parses a syndication feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error)
}

// Feed reads the journal's RSS or Atom feeds, trying each URL in order.
type Feed struct {
	Journal string
	URLs    []string
	Fetcher FeedFetcher
}

// Name implements Strategy.
func (f *Feed) Name() string { return StrategyFeed }

// Fetch returns the items of the first feed that has any.
func (f *Feed) Fetch(ctx context.Context) ([]tracker.Fragment, error) {
	var errs []error
	for _, u := range f.URLs {
		parsed, err := f.Fetcher.Fetch(ctx, u)
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fragments := f.fragments(parsed, u)
		if len(fragments) > 0 {
			return fragments, nil
		}
		errs = append(errs, tracker.ErrEmptyResult)
	}
	if len(errs) == 0 {
		return nil, tracker.NewSourceError(f.Journal, f.Name(), tracker.ErrEmptyResult)
	}
	return nil, tracker.NewSourceError(f.Journal, f.Name(), errors.Join(errs...))
}

func (f *Feed) fragments(parsed *gofeed.Feed, feedURL string) []tracker.Fragment {
	if parsed == nil {
		return nil
	}
	out := make([]tracker.Fragment, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}
		fields := map[tracker.Field]string{
			tracker.FieldTitle:    item.Title,
			tracker.FieldURL:      item.Link,
			tracker.FieldAbstract: firstNonEmpty(item.Description, item.Content),
			tracker.FieldDOI:      itemDOI(item),
		}
		if item.PublishedParsed != nil {
			fields[tracker.FieldPublicationDate] = item.PublishedParsed.UTC().Format(time.RFC3339)
		} else {
			fields[tracker.FieldPublicationDate] = item.Published
		}
		out = append(out, tracker.Fragment{
			Journal:  f.Journal,
			Strategy: f.Name(),
			BaseURL:  feedURL,
			Index:    len(out),
			Fields:   fields,
			Authors:  itemAuthors(item),
		})
	}
	return out
}

func itemAuthors(item *gofeed.Item) []string {
	var names []string
	for _, p := range item.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 && item.DublinCoreExt != nil {
		names = append(names, item.DublinCoreExt.Creator...)
	}
	return names
}

// itemDOI looks at the PRISM and Dublin Core identifiers publishers attach to items.
func itemDOI(item *gofeed.Item) string {
	if prism, ok := item.Extensions["prism"]; ok {
		for _, e := range prism["doi"] {
			if e.Value != "" {
				return e.Value
			}
		}
	}
	if item.DublinCoreExt != nil {
		for _, id := range item.DublinCoreExt.Identifier {
			if strings.Contains(id, "10.") {
				return id
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
