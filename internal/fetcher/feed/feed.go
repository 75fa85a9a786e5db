// Package feed fetches and parses RSS/Atom listings using gofeed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/journal-tracker/internal/metrics"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// Config controls feed fetching.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Limiter   tracker.Waiter
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; journal-tracker/1.0)"
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Fetch downloads feedURL and parses it. Non-2xx responses wrap
// tracker.ErrSourceBlocked and unparseable payloads wrap tracker.ErrEmptyResult.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, feedURL); err != nil {
			return nil, err
		}
	}
	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = f.cfg.UserAgent

	parsed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var (
			httpErr gofeed.HTTPError
			urlErr  *url.Error
		)
		switch {
		case errors.As(err, &httpErr):
			metrics.ObserveFetch(feedURL, "feed", httpErr.StatusCode, 0)
			return nil, fmt.Errorf("fetch feed %s: %w (status %d)", feedURL, tracker.ErrSourceBlocked, httpErr.StatusCode)
		case errors.Is(err, gofeed.ErrFeedTypeNotDetected):
			metrics.ObserveFetch(feedURL, "feed", http.StatusOK, 0)
			return nil, fmt.Errorf("parse feed %s: %w: %v", feedURL, tracker.ErrEmptyResult, err)
		case ctx.Err() != nil:
			return nil, fmt.Errorf("fetch feed %s: %w", feedURL, ctx.Err())
		case errors.As(err, &urlErr):
			metrics.ObserveFetch(feedURL, "feed", 0, 0)
			return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
		default:
			metrics.ObserveFetch(feedURL, "feed", http.StatusOK, 0)
			return nil, fmt.Errorf("parse feed %s: %w: %v", feedURL, tracker.ErrEmptyResult, err)
		}
	}
	metrics.ObserveFetch(feedURL, "feed", http.StatusOK, 0)
	return parsed, nil
}
