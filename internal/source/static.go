package source

import (
	"context"
	"errors"
	"time"

	collyfetcher "github.com/JakeFAU/journal-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/journal-tracker/internal/snapshot"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// Promoter recognizes 200 responses that are not the real listing, such as
// anti-bot interstitials.
type Promoter interface {
	ShouldPromote(resp tracker.FetchResponse) bool
}

// StaticHTML fetches listing pages over plain HTTP.
type StaticHTML struct {
	Journal  string
	Listing  Listing
	Fetcher  tracker.Fetcher
	Archiver *snapshot.Archiver
	// Detector, when set, turns challenge pages into ErrSourceBlocked so the
	// chain falls through to the browser strategy.
	Detector Promoter
	// PageDelay separates consecutive page requests.
	PageDelay time.Duration
}

// Name implements Strategy.
func (s *StaticHTML) Name() string { return StrategyStatic }

// Fetch walks the listing pages. A failure on the first page fails the
// strategy; a failure on a later page ends pagination with what was found.
func (s *StaticHTML) Fetch(ctx context.Context) ([]tracker.Fragment, error) {
	delay := func() time.Duration { return s.PageDelay }
	return walk(ctx, s.Journal, s.Name(), s.Listing, delay, func(ctx context.Context, page, offset int) ([]tracker.Fragment, bool, error) {
		pageURL := s.Listing.PageURL(page)
		resp, err := s.Fetcher.Fetch(ctx, tracker.FetchRequest{
			URL:     pageURL,
			Headers: collyfetcher.BrowserHeaders(s.Listing.Referer),
		})
		if err != nil {
			return nil, false, tracker.NewSourceError(s.Journal, s.Name(), err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, false, tracker.StatusError(s.Journal, s.Name(), resp.StatusCode)
		}
		if s.Detector != nil && s.Detector.ShouldPromote(resp) {
			return nil, false, &tracker.SourceError{
				Journal:    s.Journal,
				Strategy:   s.Name(),
				StatusCode: resp.StatusCode,
				Kind:       tracker.ErrSourceBlocked,
				Err:        errChallenge,
			}
		}
		s.Archiver.Save(ctx, s.Journal, s.Name(), offset, resp.Body)
		base := resp.URL
		if base == "" {
			base = pageURL
		}
		fragments, err := s.Listing.Fragments(resp.Body, base, s.Journal, s.Name(), offset)
		if err != nil {
			return nil, false, tracker.NewSourceError(s.Journal, s.Name(), err)
		}
		return fragments, true, nil
	})
}

var errChallenge = errors.New("challenge page served")

// pageFunc fetches one page. ok=false with a nil error means the listing ended.
type pageFunc func(ctx context.Context, page, offset int) (fragments []tracker.Fragment, ok bool, err error)

func walk(ctx context.Context, journal, strategy string, l Listing, delay func() time.Duration, fetch pageFunc) ([]tracker.Fragment, error) {
	var out []tracker.Fragment
	for offset := 0; offset < l.Pages(); offset++ {
		if offset > 0 {
			if err := sleep(ctx, delay()); err != nil {
				break
			}
		}
		fragments, ok, err := fetch(ctx, l.FirstPage+offset, offset)
		if offset == 0 {
			if err != nil {
				return nil, err
			}
			if !ok || len(fragments) == 0 {
				return nil, tracker.NewSourceError(journal, strategy, tracker.ErrEmptyResult)
			}
		}
		if err != nil || !ok || len(fragments) == 0 {
			break
		}
		out = append(out, fragments...)
	}
	return out, nil
}
