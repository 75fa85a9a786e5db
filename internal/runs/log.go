// Package runs keeps a bounded in-memory history of scrape runs for the
// operator API.
package runs

import (
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/journal-tracker/internal/orchestrator"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

// DefaultCapacity is the number of runs retained when none is configured.
const DefaultCapacity = 50

// Run is the reportable form of an orchestrator.RunSummary.
type Run struct {
	ID         string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	TotalAdded int          `json:"total_added"`
	TotalFound int          `json:"total_found"`
	Journals   []JournalRun `json:"journals"`
}

// JournalRun is one journal's outcome within a Run.
type JournalRun struct {
	Journal    string `json:"journal"`
	Strategy   string `json:"strategy,omitempty"`
	Message    string `json:"message"`
	Found      int    `json:"found"`
	Added      int    `json:"added"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Dropped    int    `json:"dropped"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Log is a fixed-capacity run history. It is safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	capacity int
	runs     []Run
}

// NewLog creates a Log retaining at most capacity runs.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity}
}

// Record implements orchestrator.Recorder.
func (l *Log) Record(summary orchestrator.RunSummary) {
	run := FromSummary(summary)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, run)
	if over := len(l.runs) - l.capacity; over > 0 {
		l.runs = append([]Run(nil), l.runs[over:]...)
	}
}

// Get returns the run with id or tracker.ErrNotFound.
func (l *Log) Get(id string) (Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return Run{}, tracker.ErrNotFound
}

// List returns runs newest first.
func (l *Log) List(limit, offset int) []Run {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Run, 0, len(l.runs))
	for i := len(l.runs) - 1; i >= 0; i-- {
		out = append(out, l.runs[i])
	}
	if offset >= len(out) {
		return []Run{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// FromSummary flattens a summary with journals sorted by name.
func FromSummary(s orchestrator.RunSummary) Run {
	run := Run{
		ID:         s.RunID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		TotalAdded: s.TotalAdded,
		TotalFound: s.TotalFound,
		Journals:   make([]JournalRun, 0, len(s.Results)),
	}
	for name, r := range s.Results {
		jr := JournalRun{
			Journal:    name,
			Strategy:   r.Strategy,
			Message:    r.Message(),
			Found:      r.Found,
			Added:      r.Added,
			Updated:    r.Updated,
			Skipped:    r.Skipped,
			Dropped:    r.Dropped,
			Failed:     r.Failed,
			DurationMs: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		run.Journals = append(run.Journals, jr)
	}
	sort.Slice(run.Journals, func(i, j int) bool { return run.Journals[i].Journal < run.Journals[j].Journal })
	return run
}
