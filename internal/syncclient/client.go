// Package syncclient pushes locally stored papers to a remote tracker's
// sync endpoint.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/journal-tracker/internal/gateway"
	"github.com/JakeFAU/journal-tracker/internal/policy/retry"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

const (
	syncPath       = "/v1/sync"
	defaultTimeout = 60 * time.Second
	// errorBodyLimit caps how much of a failed response is quoted in errors.
	errorBodyLimit = 512
)

// Config controls the push target.
type Config struct {
	TargetURL string
	Timeout   time.Duration
	// Retry governs retries of network failures and 5xx answers; nil uses retry.NewExponential.
	Retry *retry.Exponential
}

// Client sends sync batches to a remote tracker.
type Client struct {
	endpoint string
	http     *http.Client
	retry    *retry.Exponential
	logger   *zap.Logger
}

// New builds a Client. TargetURL may be the server root or the full sync URL.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	target := strings.TrimRight(strings.TrimSpace(cfg.TargetURL), "/")
	if target == "" {
		return nil, fmt.Errorf("sync target url is required")
	}
	if !strings.HasSuffix(target, syncPath) {
		target += syncPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.NewExponential()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: target,
		http:     &http.Client{Timeout: cfg.Timeout},
		retry:    cfg.Retry,
		logger:   logger.Named("sync"),
	}, nil
}

// Push sends every paper in store to the remote tracker and returns its summary.
func (c *Client) Push(ctx context.Context, store tracker.Store) (tracker.SyncSummary, error) {
	papers, err := store.ListPapers(ctx, tracker.PaperQuery{Sort: tracker.SortDateDesc})
	if err != nil {
		return tracker.SyncSummary{}, fmt.Errorf("list local papers: %w", err)
	}
	records := make([]tracker.SyncRecord, 0, len(papers))
	for _, p := range papers {
		records = append(records, gateway.ToSync(p))
	}
	return c.Send(ctx, records)
}

// Send posts one batch of records.
func (c *Client) Send(ctx context.Context, records []tracker.SyncRecord) (tracker.SyncSummary, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return tracker.SyncSummary{}, fmt.Errorf("encode sync payload: %w", err)
	}
	start := time.Now()
	var summary tracker.SyncSummary
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var postErr error
		summary, postErr = c.post(ctx, payload)
		if postErr != nil {
			c.logger.Warn("sync attempt failed", zap.String("endpoint", c.endpoint), zap.Error(postErr))
		}
		return postErr
	})
	if err != nil {
		return tracker.SyncSummary{}, err
	}
	c.logger.Info("sync pushed",
		zap.String("endpoint", c.endpoint),
		zap.Int("sent", len(records)),
		zap.Int("synced", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

func (c *Client) post(ctx context.Context, payload []byte) (tracker.SyncSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return tracker.SyncSummary{}, &retry.Permanent{Err: fmt.Errorf("build sync request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return tracker.SyncSummary{}, fmt.Errorf("sync request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		err := fmt.Errorf("sync rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode < 500 {
			return tracker.SyncSummary{}, &retry.Permanent{Err: err}
		}
		return tracker.SyncSummary{}, err
	}

	var summary tracker.SyncSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return tracker.SyncSummary{}, &retry.Permanent{Err: fmt.Errorf("decode sync response: %w", err)}
	}
	return summary, nil
}
