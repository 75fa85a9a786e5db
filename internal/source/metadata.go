package source

import (
	"context"

	"github.com/JakeFAU/journal-tracker/internal/fetcher/crossref"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// WorksClient lists recent works of a journal from a metadata service.
type WorksClient interface {
	RecentWorks(ctx context.Context, containerTitle string) ([]crossref.Work, error)
}

// MetadataAPI turns Crossref works into structured fragments.
type MetadataAPI struct {
	Journal        string
	ContainerTitle string
	Client         WorksClient
}

// Name implements Strategy.
func (m *MetadataAPI) Name() string { return StrategyAPI }

// Fetch queries the newest works. Results arrive newest first, so the
// response order is the listing order.
func (m *MetadataAPI) Fetch(ctx context.Context) ([]tracker.Fragment, error) {
	works, err := m.Client.RecentWorks(ctx, m.ContainerTitle)
	if err != nil {
		return nil, tracker.NewSourceError(m.Journal, m.Name(), err)
	}
	out := make([]tracker.Fragment, 0, len(works))
	for _, w := range works {
		title := w.FirstTitle()
		if title == "" {
			continue
		}
		link := w.URL
		if link == "" && w.DOI != "" {
			link = "https://doi.org/" + w.DOI
		}
		fields := map[tracker.Field]string{
			tracker.FieldTitle:    title,
			tracker.FieldURL:      link,
			tracker.FieldDOI:      w.DOI,
			tracker.FieldAbstract: w.Abstract,
		}
		if d := w.PublishedDate(); d != nil {
			fields[tracker.FieldPublicationDate] = d.Format("2006-01-02")
		}
		out = append(out, tracker.Fragment{
			Journal:  m.Journal,
			Strategy: m.Name(),
			Index:    len(out),
			Fields:   fields,
			Authors:  w.AuthorNames(),
		})
	}
	if len(out) == 0 {
		return nil, tracker.NewSourceError(m.Journal, m.Name(), tracker.ErrEmptyResult)
	}
	return out, nil
}
