package source

import (
	"context"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/journal-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/journal-tracker/internal/extract"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// Enricher fills abstracts and BibTeX entries from article landing pages
// for journals whose listing omits them. Failures leave the record as is.
type Enricher struct {
	Fetcher  tracker.Fetcher
	Abstract extract.Field
	Logger   *zap.Logger
}

// Enrich updates records in place and returns them.
func (e *Enricher) Enrich(ctx context.Context, journal string, records []tracker.Record) []tracker.Record {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		rec := &records[i]
		if rec.Abstract == "" && rec.URL != "" && len(e.Abstract) > 0 {
			if body, ok := e.get(ctx, rec.URL); ok {
				abstract, err := extract.SelectText(body, e.Abstract)
				if err != nil {
					logger.Debug("abstract selection failed", zap.String("journal", journal), zap.String("url", rec.URL), zap.Error(err))
				}
				rec.Abstract = abstract
			}
		}
		if rec.Bibtex == "" && rec.BibURL != "" {
			if body, ok := e.get(ctx, rec.BibURL); ok && looksLikeBibtex(body) {
				rec.Bibtex = strings.TrimSpace(body)
			}
		}
	}
	return records
}

func (e *Enricher) get(ctx context.Context, rawURL string) (string, bool) {
	resp, err := e.Fetcher.Fetch(ctx, tracker.FetchRequest{URL: rawURL, Headers: collyfetcher.BrowserHeaders("")})
	if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		if e.Logger != nil {
			e.Logger.Debug("enrichment fetch failed", zap.String("url", rawURL), zap.Int("status", resp.StatusCode), zap.Error(err))
		}
		return "", false
	}
	return string(resp.Body), true
}

func looksLikeBibtex(body string) bool {
	body = strings.TrimSpace(body)
	return strings.HasPrefix(body, "@") && strings.Contains(body, "{")
}
