package tracker

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Store persists papers and answers queries over them.
type Store interface {
	Ping(ctx context.Context) error
	EnsureJournals(ctx context.Context, journals []Journal) error
	ListJournals(ctx context.Context) ([]Journal, error)
	// SavePaper inserts the paper or reconciles the publication date of an
	// existing (title, journal) match as one atomic unit.
	SavePaper(ctx context.Context, paper NewPaper) (SaveResult, error)
	ListPapers(ctx context.Context, query PaperQuery) ([]StoredPaper, error)
	GetPaper(ctx context.Context, id int64) (StoredPaper, error)
	Stats(ctx context.Context) (Stats, error)
	TopicCounts(ctx context.Context, since *time.Time) ([]TopicCount, error)
}

// BlobStore archives raw artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher produces stable digests for raw payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Waiter blocks until a request to rawURL may proceed.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}
