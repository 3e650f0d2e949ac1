package store

import (
	"context"
	"os"
	"testing"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	return url
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s, err := NewStore(ctx, testDatabaseURL(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := s.connectionPool.Exec(ctx, `TRUNCATE jobs, workers`); err != nil {
		t.Fatal(err)
	}

	return s
}

// runningJob creates a job and claims it for a fresh worker.
func runningJob(t *testing.T, s *Store) *Job {
	t.Helper()

	ctx := context.Background()
	if err := s.CreateJob(ctx, newID(), []byte(`{}`), 3, 30); err != nil {
		t.Fatal(err)
	}

	job, err := s.ClaimPendingJob(ctx, newID())
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("expected a job to claim")
	}

	return job
}
