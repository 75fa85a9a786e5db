// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/journal-tracker/internal/metrics"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// hideWebdriver removes the most common automation marker before any page script runs.
const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});`

// Fingerprint is the browser identity presented to journal sites.
type Fingerprint struct {
	UserAgent string
	Width     int64
	Height    int64
	Timezone  string
	Locale    string
}

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	Fingerprint       Fingerprint
	NavigationTimeout time.Duration
	// ReadyTimeout bounds the wait for FetchRequest.WaitSelector.
	ReadyTimeout time.Duration
}

// Fetcher implements tracker.Fetcher using chromedp and headless Chrome.
// One Fetcher owns one browser process; Close must be called on every path.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	cfg.Fingerprint = cfg.Fingerprint.withDefaults()
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg.Fingerprint)...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func allocatorOptions(fp Fingerprint) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", fp.Locale),
		chromedp.UserAgent(fp.UserAgent),
		chromedp.WindowSize(int(fp.Width), int(fp.Height)),
	)
}

func (fp Fingerprint) withDefaults() Fingerprint {
	if fp.UserAgent == "" {
		fp.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	}
	if fp.Width <= 0 {
		fp.Width = 1920
	}
	if fp.Height <= 0 {
		fp.Height = 1080
	}
	if fp.Timezone == "" {
		fp.Timezone = "America/New_York"
	}
	if fp.Locale == "" {
		fp.Locale = "en-US"
	}
	return fp
}

// Close cancels the allocator context, terminating the browser process.
func (f *Fetcher) Close() {
	f.closeOnce.Do(f.allocCancel)
}

// Fetch navigates with a headless browser and returns the rendered DOM. When
// WaitSelector never appears within ReadyTimeout the response has Ready=false
// and an empty body rather than an error.
func (f *Fetcher) Fetch(ctx context.Context, request tracker.FetchRequest) (tracker.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return tracker.FetchResponse{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, ready, err := f.runHeadless(taskCtx, request)
	if err != nil {
		metrics.ObserveFetch(request.URL, "browser", 0, 0)
		return tracker.FetchResponse{}, err
	}

	status, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	metrics.ObserveFetch(request.URL, "browser", status, len(html))

	return tracker.FetchResponse{
		URL:        responseURL,
		StatusCode: status,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
		Ready:      ready,
	}, nil
}

func (f *Fetcher) runHeadless(ctx context.Context, request tracker.FetchRequest) (string, string, bool, error) {
	var (
		html     string
		finalURL string
	)
	navigate := []chromedp.Action{
		f.fingerprintAction(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	}
	if err := chromedp.Run(ctx, navigate...); err != nil {
		return "", "", false, fmt.Errorf("chromedp navigate: %w", err)
	}

	if request.WaitSelector != "" {
		waitCtx, cancel := context.WithTimeout(ctx, f.cfg.ReadyTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(request.WaitSelector, chromedp.ByQuery))
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return "", finalURL, false, nil
			}
			return "", "", false, fmt.Errorf("chromedp wait %q: %w", request.WaitSelector, err)
		}
	}

	if err := chromedp.Run(ctx,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", "", false, fmt.Errorf("chromedp capture: %w", err)
	}
	return html, finalURL, true, nil
}

func (f *Fetcher) fingerprintAction(headers http.Header) chromedp.Action {
	fp := f.cfg.Fingerprint
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(fp.UserAgent).
			WithAcceptLanguage(fp.Locale).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(fp.Width, fp.Height, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if err := emulation.SetTimezoneOverride(fp.Timezone).Do(ctx); err != nil {
			return fmt.Errorf("set timezone: %w", err)
		}
		if err := emulation.SetLocaleOverride().WithLocale(fp.Locale).Do(ctx); err != nil {
			return fmt.Errorf("set locale: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx); err != nil {
			return fmt.Errorf("install webdriver mask: %w", err)
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// The first document response is the listing itself; later ones are frames.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
