package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy shared across the pipeline.
var (
	ErrSourceUnreachable   = errors.New("source unreachable")
	ErrSourceBlocked       = errors.New("source blocked")
	ErrTimeout             = errors.New("source timeout")
	ErrEmptyResult         = errors.New("empty result")
	ErrExtraction          = errors.New("extraction failure")
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrUnknownJournal      = errors.New("unknown journal")
	ErrNotFound            = errors.New("not found")
)

// SourceError records which journal strategy failed and why.
type SourceError struct {
	Journal    string
	Strategy   string
	StatusCode int
	Kind       error
	Err        error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s/%s: %v", e.Journal, e.Strategy, e.Kind)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil && !errors.Is(e.Kind, e.Err) {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the classification and the underlying cause.
func (e *SourceError) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewSourceError classifies err for the given journal strategy.
func NewSourceError(journal, strategy string, err error) *SourceError {
	return &SourceError{Journal: journal, Strategy: strategy, Kind: Classify(err), Err: err}
}

// StatusError builds a SourceError for a non-success HTTP status.
func StatusError(journal, strategy string, status int) *SourceError {
	return &SourceError{
		Journal:    journal,
		Strategy:   strategy,
		StatusCode: status,
		Kind:       ErrSourceBlocked,
		Err:        fmt.Errorf("unexpected status %d %s", status, http.StatusText(status)),
	}
}

// Classify maps an arbitrary fetch error onto the source taxonomy.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSourceBlocked):
		return ErrSourceBlocked
	case errors.Is(err, ErrEmptyResult):
		return ErrEmptyResult
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		var timeout interface{ Timeout() bool }
		if errors.As(err, &timeout) && timeout.Timeout() {
			return ErrTimeout
		}
		return ErrSourceUnreachable
	}
}
