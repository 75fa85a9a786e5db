// Package main wires together the journal tracker binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/journal-tracker/internal/api"
	"github.com/JakeFAU/journal-tracker/internal/clock/system"
	"github.com/JakeFAU/journal-tracker/internal/config"
	collyfetcher "github.com/JakeFAU/journal-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/journal-tracker/internal/fetcher/crossref"
	"github.com/JakeFAU/journal-tracker/internal/fetcher/feed"
	headlessfetcher "github.com/JakeFAU/journal-tracker/internal/fetcher/headless"
	"github.com/JakeFAU/journal-tracker/internal/gateway"
	"github.com/JakeFAU/journal-tracker/internal/hash/sha256"
	"github.com/JakeFAU/journal-tracker/internal/headless/detector"
	"github.com/JakeFAU/journal-tracker/internal/id/uuid"
	"github.com/JakeFAU/journal-tracker/internal/journals"
	"github.com/JakeFAU/journal-tracker/internal/logging"
	"github.com/JakeFAU/journal-tracker/internal/metrics"
	"github.com/JakeFAU/journal-tracker/internal/orchestrator"
	"github.com/JakeFAU/journal-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/journal-tracker/internal/runs"
	"github.com/JakeFAU/journal-tracker/internal/snapshot"
	gcsblob "github.com/JakeFAU/journal-tracker/internal/snapshot/gcs"
	localblob "github.com/JakeFAU/journal-tracker/internal/snapshot/local"
	"github.com/JakeFAU/journal-tracker/internal/source"
	"github.com/JakeFAU/journal-tracker/internal/storage/memory"
	"github.com/JakeFAU/journal-tracker/internal/storage/postgres"
	"github.com/JakeFAU/journal-tracker/internal/syncclient"
	"github.com/JakeFAU/journal-tracker/internal/topics"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single scrape and exit")
	push := flag.String("push", "", "Scrape once, then push every stored paper to this remote tracker")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, *push, logger); err != nil {
		logger.Error("tracker exited with error", zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, once bool, pushTarget string, logger *zap.Logger) error {
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeStore)

	archiver, closeArchive, err := openArchiver(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeArchive)

	clock := system.New()
	tagger := topics.New()
	gw := gateway.New(store, tagger, clock, logger)
	history := runs.NewLog(runs.DefaultCapacity)

	entries, err := journals.Select(cfg.Orchestrator.Journals)
	if err != nil {
		return fmt.Errorf("select journals: %w", err)
	}
	orch, err := orchestrator.New(
		orchestrator.Config{
			Parallelism:  cfg.Orchestrator.Parallelism,
			PageCapacity: cfg.Orchestrator.PageCapacity,
			RecentDays:   cfg.Orchestrator.RecentDays,
		},
		entries,
		buildDeps(cfg, archiver, logger),
		store,
		gw,
		clock,
		uuid.New(),
		logger,
		orchestrator.WithRecorder(history),
	)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	if pushTarget == "" && !once {
		return serve(ctx, cfg, store, orch, gw, tagger, history, clock, logger)
	}

	summary, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("scrape run: %w", err)
	}
	for name, msg := range summary.Messages() {
		logger.Info("journal result", zap.String("journal", name), zap.String("result", msg))
	}
	logger.Info(summary.Message(), zap.String("run_id", summary.RunID))
	if pushTarget == "" {
		return nil
	}

	client, err := syncclient.New(syncclient.Config{
		TargetURL: pushTarget,
		Timeout:   time.Duration(cfg.Sync.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return err
	}
	if _, err := client.Push(ctx, store); err != nil {
		return fmt.Errorf("push to %s: %w", pushTarget, err)
	}
	return nil
}

func serve(
	ctx context.Context,
	cfg config.Config,
	store tracker.Store,
	orch *orchestrator.Orchestrator,
	gw *gateway.Gateway,
	tagger *topics.Tagger,
	history *runs.Log,
	clock tracker.Clock,
	logger *zap.Logger,
) error {
	apiServer := api.NewServer(store, orch, gw, tagger, history, clock, api.Config{
		RequestTimeout: cfg.HTTPTimeout() * 2,
		ScrapeTimeout:  cfg.ScrapeTimeout(),
	}, logger)

	if spec := strings.TrimSpace(cfg.Schedule.Cron); spec != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(spec, func() {
			logger.Info("running scheduled scrape")
			summary, err := orch.Run(ctx)
			if err != nil {
				logger.Error("scheduled scrape failed", zap.Error(err))
				return
			}
			logger.Info("scheduled scrape completed",
				zap.String("run_id", summary.RunID),
				zap.Int("new_papers", summary.TotalAdded),
			)
		}); err != nil {
			return fmt.Errorf("schedule.cron %q: %w", spec, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("scrape schedule enabled", zap.String("cron", spec))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (tracker.Store, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set, using in-memory store")
		return memory.NewPaperStore(), func() {}, nil
	}
	store, err := postgres.New(ctx, postgres.Config{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns})
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store, store.Close, nil
}

func openArchiver(ctx context.Context, cfg config.Config, logger *zap.Logger) (*snapshot.Archiver, func(), error) {
	var blobs tracker.BlobStore
	closeFn := func() {}
	switch cfg.Snapshot.Backend {
	case config.SnapshotLocal:
		local, err := localblob.New(localblob.Config{BaseDir: cfg.Snapshot.Dir})
		if err != nil {
			return nil, nil, fmt.Errorf("local snapshot store: %w", err)
		}
		blobs = local
	case config.SnapshotGCS:
		gcs, closeClient, err := gcsblob.Connect(ctx, gcsblob.Config{Bucket: cfg.Snapshot.GCSBucket})
		if err != nil {
			return nil, nil, fmt.Errorf("gcs snapshot store: %w", err)
		}
		blobs = gcs
		closeFn = func() {
			if err := closeClient(); err != nil {
				logger.Warn("close gcs client failed", zap.Error(err))
			}
		}
	default:
		return nil, closeFn, nil
	}
	return snapshot.New(blobs, sha256.New(), cfg.Snapshot.Prefix, logger), closeFn, nil
}

func buildDeps(cfg config.Config, archiver *snapshot.Archiver, logger *zap.Logger) journals.Deps {
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.DomainRPS,
		DefaultBurst: cfg.HTTP.DomainBurst,
	})
	deps := journals.Deps{
		Static: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			RespectRobots: cfg.HTTP.RespectRobots,
			Timeout:       cfg.HTTPTimeout(),
			Limiter:       limiter,
		}),
		Detector: detector.NewHeuristic(0),
		Feeds: feed.New(feed.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.HTTPTimeout(),
			Limiter:   limiter,
		}),
		Works: crossref.New(crossref.Config{
			BaseURL: cfg.Crossref.BaseURL,
			Mailto:  cfg.Crossref.Mailto,
			Rows:    cfg.Crossref.Rows,
			Timeout: cfg.HTTPTimeout(),
			Limiter: limiter,
		}),
		Archiver:        archiver,
		PageDelay:       cfg.PageDelay(),
		BrowserMinDelay: time.Duration(cfg.Headless.MinDelayMs) * time.Millisecond,
		BrowserMaxDelay: time.Duration(cfg.Headless.MaxDelayMs) * time.Millisecond,
		Logger:          logger,
	}
	if cfg.Headless.Enabled {
		deps.Launch = browserLauncher(cfg)
	}
	return deps
}

// browserLauncher starts a fresh browser per strategy attempt so each
// journal gets a clean profile.
func browserLauncher(cfg config.Config) source.Launcher {
	hc := headlessfetcher.Config{
		MaxParallel: 1,
		Fingerprint: headlessfetcher.Fingerprint{
			UserAgent: cfg.HTTP.UserAgent,
			Width:     cfg.Headless.ViewportWidth,
			Height:    cfg.Headless.ViewportHeight,
			Timezone:  cfg.Headless.Timezone,
			Locale:    cfg.Headless.Locale,
		},
		NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
		ReadyTimeout:      time.Duration(cfg.Headless.ReadyTimeoutSeconds) * time.Second,
	}
	return func() (source.BrowserFetcher, error) {
		f, err := headlessfetcher.NewChromedp(hc)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}
