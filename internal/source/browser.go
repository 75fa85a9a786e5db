package source

import (
	"context"
	"math/rand/v2"
	"time"

	collyfetcher "github.com/JakeFAU/journal-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/journal-tracker/internal/snapshot"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// BrowserFetcher is a rendering fetcher that owns a browser process.
type BrowserFetcher interface {
	tracker.Fetcher
	Close()
}

// Launcher starts a browser for one strategy run.
type Launcher func() (BrowserFetcher, error)

// Browser renders listing pages in a headless browser. The browser is
// launched per run and closed on every exit path.
type Browser struct {
	Journal  string
	Listing  Listing
	Launch   Launcher
	Archiver *snapshot.Archiver
	// MinDelay and MaxDelay bound the randomized pause between pages.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Name implements Strategy.
func (b *Browser) Name() string { return StrategyBrowser }

// Fetch renders each listing page and waits for Listing.WaitSelector. A page
// that never becomes ready ends pagination.
func (b *Browser) Fetch(ctx context.Context) ([]tracker.Fragment, error) {
	browser, err := b.Launch()
	if err != nil {
		return nil, tracker.NewSourceError(b.Journal, b.Name(), err)
	}
	defer browser.Close()

	return walk(ctx, b.Journal, b.Name(), b.Listing, b.delay, func(ctx context.Context, page, offset int) ([]tracker.Fragment, bool, error) {
		pageURL := b.Listing.PageURL(page)
		resp, err := browser.Fetch(ctx, tracker.FetchRequest{
			URL:          pageURL,
			Headers:      collyfetcher.BrowserHeaders(b.Listing.Referer),
			WaitSelector: b.Listing.WaitSelector,
		})
		if err != nil {
			return nil, false, tracker.NewSourceError(b.Journal, b.Name(), err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, false, tracker.StatusError(b.Journal, b.Name(), resp.StatusCode)
		}
		if !resp.Ready {
			return nil, false, nil
		}
		b.Archiver.Save(ctx, b.Journal, b.Name(), offset, resp.Body)
		base := resp.URL
		if base == "" {
			base = pageURL
		}
		fragments, err := b.Listing.Fragments(resp.Body, base, b.Journal, b.Name(), offset)
		if err != nil {
			return nil, false, tracker.NewSourceError(b.Journal, b.Name(), err)
		}
		return fragments, true, nil
	})
}

func (b *Browser) delay() time.Duration {
	lo, hi := b.MinDelay, b.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
