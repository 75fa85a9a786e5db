package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/journal-tracker/internal/policy/retry"
	"github.com/JakeFAU/journal-tracker/internal/storage/memory"
	"github.com/JakeFAU/journal-tracker/internal/tracker"
)

func TestNewRequiresTarget(t *testing.T) {
	t.Parallel()
	_, err := New(Config{TargetURL: "  "}, nil)
	require.Error(t, err)
}

func TestNewAppendsSyncPath(t *testing.T) {
	t.Parallel()
	c, err := New(Config{TargetURL: "https://tracker.example.org/"}, nil)
	require.NoError(t, err)
	require.Equal(t, "https://tracker.example.org/v1/sync", c.endpoint)

	c, err = New(Config{TargetURL: "https://tracker.example.org/v1/sync"}, nil)
	require.NoError(t, err)
	require.Equal(t, "https://tracker.example.org/v1/sync", c.endpoint)
}

func TestPushSendsStoredPapers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.NewPaperStore()
	require.NoError(t, store.EnsureJournals(ctx, []tracker.Journal{{Name: "Biometrika", Abbreviation: "Biometrika"}}))
	pub := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	_, err := store.SavePaper(ctx, tracker.NewPaper{
		Journal: "Biometrika",
		Record: tracker.Record{
			Title:             "Empirical Likelihood",
			Authors:           []string{"Ann Lee", "others"},
			PublicationDate:   &pub,
			OrderingTimestamp: pub,
		},
	})
	require.NoError(t, err)

	var got []tracker.SyncRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sync", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","synced_papers":1,"updated_papers":0,"skipped_papers":0,"failed_papers":0,"total_processed":1}`))
	}))
	defer srv.Close()

	c, err := New(Config{TargetURL: srv.URL, Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	summary, err := c.Push(ctx, store)
	require.NoError(t, err)
	require.Equal(t, tracker.SyncSummary{Inserted: 1, Total: 1}, summary)

	require.Len(t, got, 1)
	require.Equal(t, "Biometrika", got[0].Journal)
	require.Equal(t, "Empirical Likelihood", got[0].Title)
	require.Equal(t, []string{"Ann Lee", "others"}, got[0].Authors)
	require.NotEmpty(t, got[0].PublicationDate)
}

func TestSendRejected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(Config{TargetURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = c.Send(context.Background(), nil)
	require.ErrorContains(t, err, "status 400")
}

func TestSendRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","synced_papers":0,"skipped_papers":2,"total_processed":2}`))
	}))
	defer srv.Close()

	c, err := New(Config{
		TargetURL: srv.URL,
		Retry:     &retry.Exponential{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, nil)
	require.NoError(t, err)
	summary, err := c.Send(context.Background(), []tracker.SyncRecord{{Journal: "AOS", Title: "A"}, {Journal: "AOS", Title: "B"}})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Skipped)
	require.EqualValues(t, 2, calls.Load())
}
