// Package snapshot archives raw listing pages so extraction rules can be
// debugged against exactly what a source returned.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

const contentType = "text/html; charset=utf-8"

var unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Archiver writes listing pages to a blob store. A nil *Archiver discards pages.
type Archiver struct {
	store  tracker.BlobStore
	hasher tracker.Hasher
	prefix string
	logger *zap.Logger
}

// New creates an Archiver writing under prefix.
func New(store tracker.BlobStore, hasher tracker.Hasher, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:  store,
		hasher: hasher,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Path builds <prefix>/<run_id>/<journal>/<strategy>-p<page>-<digest>.html.
func (a *Archiver) Path(runID, journal, strategy string, page int, digest string) string {
	if runID == "" {
		runID = "adhoc"
	}
	name := fmt.Sprintf("%s-p%d-%s.html", segment(strategy), page, digest)
	return path.Join(a.prefix, segment(runID), segment(journal), name)
}

// Save archives body and returns the object URI. Failures are logged and
// reported as an empty URI; they never interrupt a scrape.
func (a *Archiver) Save(ctx context.Context, journal, strategy string, page int, body []byte) string {
	if a == nil || a.store == nil || len(body) == 0 {
		return ""
	}
	digest, err := a.hasher.Hash(body)
	if err != nil {
		a.logger.Warn("snapshot hash failed", zap.String("journal", journal), zap.Error(err))
		return ""
	}
	objectPath := a.Path(tracker.RunIDFromContext(ctx), journal, strategy, page, digest)
	uri, err := a.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("snapshot write failed",
			zap.String("journal", journal),
			zap.String("path", objectPath),
			zap.Error(err),
		)
		return ""
	}
	a.logger.Debug("snapshot stored", zap.String("journal", journal), zap.String("uri", uri))
	return uri
}

func segment(s string) string {
	s = strings.Trim(unsafeSegment.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return "unknown"
	}
	return s
}
