// Package crossref queries the Crossref REST API for recent works of a journal.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/journal-tracker/internal/metrics"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// DefaultBaseURL is the public Crossref works endpoint.
const DefaultBaseURL = "https://api.crossref.org/works"

// Config controls the Crossref client.
type Config struct {
	BaseURL string
	// Mailto identifies the caller for the polite pool.
	Mailto  string
	Rows    int
	Timeout time.Duration
	Limiter tracker.Waiter
}

// Client is a minimal Crossref works client.
type Client struct {
	cfg  Config
	http *http.Client
}

// Work is the subset of a Crossref work used by the tracker.
type Work struct {
	DOI             string       `json:"DOI"`
	URL             string       `json:"URL"`
	Title           []string     `json:"title"`
	ContainerTitle  []string     `json:"container-title"`
	Author          []Author     `json:"author"`
	Abstract        string       `json:"abstract"`
	Type            string       `json:"type"`
	PublishedPrint  *PartialDate `json:"published-print"`
	PublishedOnline *PartialDate `json:"published-online"`
	Published       *PartialDate `json:"published"`
}

// Author is a Crossref contributor.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

// PartialDate is Crossref's date-parts structure.
type PartialDate struct {
	DateParts [][]int `json:"date-parts"`
}

type envelope struct {
	Status  string `json:"status"`
	Message struct {
		Items []Work `json:"items"`
	} `json:"message"`
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// RecentWorks returns the newest works whose container title matches
// containerTitle, sorted by publication date descending.
func (c *Client) RecentWorks(ctx context.Context, containerTitle string) ([]Work, error) {
	q := url.Values{}
	q.Set("query.container-title", containerTitle)
	q.Set("sort", "published")
	q.Set("order", "desc")
	q.Set("rows", strconv.Itoa(c.cfg.Rows))
	q.Set("filter", "type:journal-article")
	if c.cfg.Mailto != "" {
		q.Set("mailto", c.cfg.Mailto)
	}
	endpoint := c.cfg.BaseURL + "?" + q.Encode()

	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build crossref request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	ua := "journal-tracker/1.0"
	if c.cfg.Mailto != "" {
		ua += " (mailto:" + c.cfg.Mailto + ")"
	}
	req.Header.Set("User-Agent", ua)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveFetch(endpoint, "api", 0, 0)
		return nil, fmt.Errorf("crossref request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	metrics.ObserveFetch(endpoint, "api", resp.StatusCode, 0)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("crossref status %d: %w", resp.StatusCode, tracker.ErrSourceBlocked)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode crossref response: %w", err)
	}
	out := make([]Work, 0, len(env.Message.Items))
	for _, w := range env.Message.Items {
		if w.matchesContainer(containerTitle) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (w Work) matchesContainer(title string) bool {
	if len(w.ContainerTitle) == 0 {
		return true
	}
	for _, ct := range w.ContainerTitle {
		if strings.EqualFold(strings.TrimSpace(ct), strings.TrimSpace(title)) {
			return true
		}
	}
	return false
}

// FirstTitle returns the primary title of the work.
func (w Work) FirstTitle() string {
	if len(w.Title) == 0 {
		return ""
	}
	return strings.TrimSpace(w.Title[0])
}

// AuthorNames renders contributors as "Given Family".
func (w Work) AuthorNames() []string {
	names := make([]string, 0, len(w.Author))
	for _, a := range w.Author {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// PublishedDate returns the first complete print, online, or generic
// publication date. Year-only or year-month dates are treated as unknown.
func (w Work) PublishedDate() *time.Time {
	for _, d := range []*PartialDate{w.PublishedPrint, w.PublishedOnline, w.Published} {
		if t := d.full(); t != nil {
			return t
		}
	}
	return nil
}

func (d *PartialDate) full() *time.Time {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) < 3 {
		return nil
	}
	p := d.DateParts[0]
	t := time.Date(p[0], time.Month(p[1]), p[2], 0, 0, 0, 0, time.UTC)
	return &t
}
