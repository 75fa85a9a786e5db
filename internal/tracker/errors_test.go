package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	require.NoError(t, Classify(nil))
	require.ErrorIs(t, Classify(context.DeadlineExceeded), ErrTimeout)
	require.ErrorIs(t, Classify(fmt.Errorf("dial: %w", timeoutErr{})), ErrTimeout)
	require.ErrorIs(t, Classify(errors.New("connection refused")), ErrSourceUnreachable)
	require.ErrorIs(t, Classify(fmt.Errorf("wrapped: %w", ErrSourceBlocked)), ErrSourceBlocked)
	require.ErrorIs(t, Classify(ErrEmptyResult), ErrEmptyResult)
}

func TestSourceErrorUnwrapsKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := fmt.Errorf("fetch: %w", NewSourceError("JASA", "static", cause))
	require.ErrorIs(t, err, ErrSourceUnreachable)
	require.ErrorIs(t, err, cause)

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	require.Equal(t, "JASA", srcErr.Journal)
	require.Contains(t, srcErr.Error(), "JASA/static")
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := StatusError("JRSSB", "static", http.StatusForbidden)
	require.ErrorIs(t, err, ErrSourceBlocked)
	require.Equal(t, http.StatusForbidden, err.StatusCode)
	require.Contains(t, err.Error(), "status 403")
}

func TestRunIDContext(t *testing.T) {
	t.Parallel()

	require.Empty(t, RunIDFromContext(context.Background()))
	ctx := WithRunID(context.Background(), "run-1")
	require.Equal(t, "run-1", RunIDFromContext(ctx))
}

func TestParseSortOrder(t *testing.T) {
	t.Parallel()

	got, ok := ParseSortOrder("")
	require.True(t, ok)
	require.Equal(t, SortDateDesc, got)
	got, ok = ParseSortOrder("TITLE_ASC")
	require.True(t, ok)
	require.Equal(t, SortTitleAsc, got)
	_, ok = ParseSortOrder("random")
	require.False(t, ok)
}
