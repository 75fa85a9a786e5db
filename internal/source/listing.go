package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/journal-tracker/internal/extract"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// Strategy names as they appear in logs, metrics and snapshots.
const (
	StrategyStatic  = "static"
	StrategyBrowser = "browser"
	StrategyFeed    = "feed"
	StrategyAPI     = "crossref"
)

// pagePlaceholder is substituted with the page number in Listing.URL.
const pagePlaceholder = "{page}"

// Listing describes where a journal lists its recent papers and how to cut
// the page into per-paper fragments.
type Listing struct {
	// URL may contain {page} for paginated listings.
	URL       string
	FirstPage int
	// MaxPages bounds pagination; zero means a single page.
	MaxPages     int
	ItemSelector string
	// Sibling selects the element immediately following each item that
	// belongs to the same paper, such as the dd after a dt.
	Sibling string
	// Reverse flips the in-page order for listings that put the oldest entry first.
	Reverse bool
	// WaitSelector is awaited by the browser strategy before capturing the DOM.
	WaitSelector string
	Referer      string
}

// PageURL renders the listing URL for page.
func (l Listing) PageURL(page int) string {
	return strings.ReplaceAll(l.URL, pagePlaceholder, strconv.Itoa(page))
}

// Pages is the number of pages to walk.
func (l Listing) Pages() int {
	if l.MaxPages <= 0 || !strings.Contains(l.URL, pagePlaceholder) {
		return 1
	}
	return l.MaxPages
}

// Fragments cuts an HTML page into fragments. page is the zero-based offset
// from FirstPage and becomes Fragment.Page.
func (l Listing) Fragments(body []byte, baseURL, journal, strategy string, page int) ([]tracker.Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	var markups []string
	var renderErr error
	doc.Find(l.ItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		sel := item
		if l.Sibling != "" {
			sel = item.AddSelection(item.NextFiltered(l.Sibling))
		}
		html, err := extract.FragmentHTML(sel)
		if err != nil {
			renderErr = err
			return false
		}
		markups = append(markups, html)
		return true
	})
	if renderErr != nil {
		return nil, renderErr
	}
	if l.Reverse {
		for i, j := 0, len(markups)-1; i < j; i, j = i+1, j-1 {
			markups[i], markups[j] = markups[j], markups[i]
		}
	}
	out := make([]tracker.Fragment, 0, len(markups))
	for i, m := range markups {
		out = append(out, tracker.Fragment{
			Journal:  journal,
			Strategy: strategy,
			BaseURL:  baseURL,
			Page:     page,
			Index:    i,
			Markup:   m,
		})
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
