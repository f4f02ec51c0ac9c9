package history

import (
	"path/filepath"
	"testing"
	"time"
)

func testRecord(deployDir, outcome string) Record {
	now := time.Now().Truncate(time.Second)
	return Record{
		TaskID:     "abcdefghijklmnopqrstuvwxyz234567",
		Event:      "push",
		Repo:       "inful/docs",
		Ref:        "master",
		DeployDir:  deployDir,
		SourceSHA:  "0123456789abcdef0123456789abcdef01234567",
		Outcome:    outcome,
		StartedAt:  now.Add(-1 * time.Minute),
		FinishedAt: now,
	}
}

func TestAppendAndRecent(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()

	rec := testRecord("dev/master", "success")
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.DeployDir != rec.DeployDir {
		t.Errorf("expected deploy_dir %s, got %s", rec.DeployDir, got.DeployDir)
	}
	if got.Outcome != rec.Outcome {
		t.Errorf("expected outcome %s, got %s", rec.Outcome, got.Outcome)
	}
	if got.SourceSHA != rec.SourceSHA {
		t.Errorf("expected source_sha %s, got %s", rec.SourceSHA, got.SourceSHA)
	}
	if !got.FinishedAt.Equal(rec.FinishedAt) {
		t.Errorf("expected finished_at %v, got %v", rec.FinishedAt, got.FinishedAt)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	for _, outcome := range []string{"success", "warning", "failure"} {
		if err := store.Append(ctx, testRecord("dev/master", outcome)); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	records, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Outcome != "failure" || records[1].Outcome != "warning" {
		t.Errorf("expected newest first, got %s then %s", records[0].Outcome, records[1].Outcome)
	}
}

func TestByDeployDir(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	_ = store.Append(ctx, testRecord("dev/master", "success"))
	_ = store.Append(ctx, testRecord("PR/7", "failure"))
	_ = store.Append(ctx, testRecord("dev/master", "warning"))

	records, err := store.ByDeployDir(ctx, "dev/master", 10)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for dev/master, got %d", len(records))
	}

	records, err = store.ByDeployDir(ctx, "PR/7", 10)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record for PR/7, got %d", len(records))
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dawbrn.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Append(t.Context(), testRecord("dev/master", "success")); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	records, err := reopened.Recent(t.Context(), 10)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", len(records))
	}
}
