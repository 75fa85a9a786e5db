// Package orchestrator runs every journal's source chain with bounded
// parallelism and feeds the results through extraction, ordering and the
// persistence gateway, producing one summary per run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/journal-tracker/internal/extract"
	"github.com/JakeFAU/journal-tracker/internal/gateway"
	"github.com/JakeFAU/journal-tracker/internal/journals"
	"github.com/JakeFAU/journal-tracker/internal/logging"
	"github.com/JakeFAU/journal-tracker/internal/metrics"
	"github.com/JakeFAU/journal-tracker/internal/ordering"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("scrape run already in progress")

// Config controls a run.
type Config struct {
	Parallelism  int
	PageCapacity int
	// RecentDays drops dated records older than the window; zero keeps all.
	RecentDays int
}

// Recorder keeps finished run summaries.
type Recorder interface {
	Record(summary RunSummary)
}

// Orchestrator coordinates scrape runs. Only one run executes at a time.
type Orchestrator struct {
	cfg        Config
	entries    []journals.Entry
	extractors []*extract.Extractor
	deps       journals.Deps
	store      tracker.Store
	gateway    *gateway.Gateway
	orderer    *ordering.Orderer
	clock      tracker.Clock
	ids        tracker.IDGenerator
	recorder   Recorder
	logger     *zap.Logger

	running sync.Mutex
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder stores every finished summary.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New validates the configuration and compiles every journal's rules.
func New(
	cfg Config,
	entries []journals.Entry,
	deps journals.Deps,
	store tracker.Store,
	gw *gateway.Gateway,
	clock tracker.Clock,
	ids tracker.IDGenerator,
	logger *zap.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if len(entries) == 0 {
		return nil, errors.New("orchestrator requires at least one journal")
	}
	if store == nil || gw == nil || clock == nil || ids == nil {
		return nil, errors.New("orchestrator requires store, gateway, clock and id generator")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	extractors := make([]*extract.Extractor, len(entries))
	for i, e := range entries {
		ex, err := e.Extractor()
		if err != nil {
			return nil, err
		}
		extractors[i] = ex
	}
	o := &Orchestrator{
		cfg:        cfg,
		entries:    entries,
		extractors: extractors,
		deps:       deps,
		store:      store,
		gateway:    gw,
		orderer:    ordering.New(cfg.PageCapacity),
		clock:      clock,
		ids:        ids,
		logger:     logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes one scrape run across every configured journal. Per-journal
// failures are reported in the summary; only an unreachable store or a
// failure to seed the journal table is returned as an error.
func (o *Orchestrator) Run(ctx context.Context) (RunSummary, error) {
	if !o.running.TryLock() {
		return RunSummary{}, ErrRunInProgress
	}
	defer o.running.Unlock()

	started := o.clock.Now()
	if err := o.store.Ping(ctx); err != nil {
		return RunSummary{}, fmt.Errorf("store unavailable: %w", err)
	}
	refs := make([]tracker.Journal, 0, len(o.entries))
	for _, e := range o.entries {
		refs = append(refs, e.Journal)
	}
	if err := o.store.EnsureJournals(ctx, refs); err != nil {
		return RunSummary{}, fmt.Errorf("seed journals: %w", err)
	}
	runID, err := o.ids.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx = tracker.WithRunID(ctx, runID)
	o.logger.Info("scrape run started",
		zap.String("run_id", runID),
		zap.Int("journals", len(o.entries)),
		zap.Int("parallelism", o.cfg.Parallelism),
	)

	results := make([]JournalResult, len(o.entries))
	var g errgroup.Group
	g.SetLimit(o.cfg.Parallelism)
	for i := range o.entries {
		g.Go(func() error {
			results[i] = o.runJournal(ctx, runID, i)
			return nil
		})
	}
	_ = g.Wait()

	summary := RunSummary{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: o.clock.Now(),
		Results:    make(map[string]JournalResult, len(results)),
	}
	for _, r := range results {
		summary.Results[r.Journal] = r
		summary.TotalAdded += r.Added
		summary.TotalFound += r.Found
	}
	metrics.ObserveRun(summary.FinishedAt.Sub(summary.StartedAt))
	o.logger.Info("scrape run finished",
		zap.String("run_id", runID),
		zap.Int("total_added", summary.TotalAdded),
		zap.Int("total_found", summary.TotalFound),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	if o.recorder != nil {
		o.recorder.Record(summary)
	}
	return summary, nil
}

func (o *Orchestrator) runJournal(ctx context.Context, runID string, i int) (res JournalResult) {
	entry := o.entries[i]
	abbr := entry.Journal.Abbreviation
	res.Journal = entry.Journal.Name
	logger := logging.ForJournal(o.logger, runID, abbr)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			logger.Error("journal run panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
		res.Duration = time.Since(start)
	}()

	deps := o.deps
	deps.Logger = logger
	fetched, err := entry.Chain(deps).Fetch(ctx)
	res.Strategy = fetched.Strategy
	if err != nil {
		res.Err = err
		logger.Warn("all strategies failed", zap.Error(err))
		return res
	}

	records, failures := o.extractors[i].ExtractAll(fetched.Fragments)
	res.Dropped = len(failures)
	metrics.ObserveExtraction(abbr, len(records), len(failures))
	for _, f := range failures {
		logger.Debug("fragment dropped", zap.Error(f))
	}
	if enricher := entry.Enricher(deps); enricher != nil {
		records = enricher.Enrich(ctx, abbr, records)
	}

	anchor := o.clock.Now()
	records = o.orderer.Assign(records, anchor)
	res.Found = len(records)
	if o.cfg.RecentDays > 0 {
		recent := ordering.Recent(records, anchor.AddDate(0, 0, -o.cfg.RecentDays))
		res.Skipped += len(records) - len(recent)
		records = recent
	}

	for _, rec := range records {
		saved, err := o.gateway.Save(ctx, abbr, rec)
		if err != nil {
			res.Failed++
			logger.Warn("save failed", zap.String("title", rec.Title), zap.Error(err))
			continue
		}
		switch saved.Outcome {
		case tracker.OutcomeInserted:
			res.Added++
		case tracker.OutcomeUpdated:
			res.Updated++
		default:
			res.Skipped++
		}
	}
	logger.Info("journal run finished",
		zap.String("strategy", res.Strategy),
		zap.Int("found", res.Found),
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("dropped", res.Dropped),
		zap.Int("failed", res.Failed),
	)
	return res
}

// JournalResult summarizes one journal within a run.
type JournalResult struct {
	Journal  string
	Strategy string
	Found    int
	Added    int
	Updated  int
	Skipped  int
	Dropped  int
	Failed   int
	Duration time.Duration
	Err      error
}

// Message renders the per-journal status line reported to callers.
func (r JournalResult) Message() string {
	if r.Err != nil && r.Found == 0 {
		return "Error: " + strings.ReplaceAll(r.Err.Error(), "\n", "; ")
	}
	return fmt.Sprintf("Added %d new papers (found %d total)", r.Added, r.Found)
}

// RunSummary aggregates one run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Results is keyed by journal name.
	Results    map[string]JournalResult
	TotalAdded int
	TotalFound int
}

// Messages maps each journal name to its status line.
func (s RunSummary) Messages() map[string]string {
	out := make(map[string]string, len(s.Results))
	for name, r := range s.Results {
		out[name] = r.Message()
	}
	return out
}

// Message is the run-level status line.
func (s RunSummary) Message() string {
	return fmt.Sprintf("Successfully added %d new papers", s.TotalAdded)
}
