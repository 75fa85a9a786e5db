// Package main hosts the journal tracker entrypoint.
//
// Modes:
//   - Serve (default): the HTTP API listens on server.port. POST /v1/scrape
//     triggers a run; schedule.cron optionally triggers runs on a timer.
//   - -once: run every enabled journal a single time, log the per-journal
//     results and exit.
//   - -push <url>: run once, then send every stored paper to the remote
//     tracker's POST /v1/sync and log its summary.
//
// Wiring: Viper loads config (TRACKER_* env overrides, optional YAML and
// .env); zap provides structured logging; the store is Postgres when db.dsn
// is set and in-memory otherwise; listing snapshots go to local disk or GCS
// when snapshot.backend selects one. Static, feed and Crossref clients share
// one per-domain rate limiter. Each browser strategy attempt launches its
// own headless Chrome through chromedp.
//
// Run locally: go run ./cmd/tracker -config config.yaml -once
package main
