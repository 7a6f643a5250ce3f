package runs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"cashkit/internal/builder"
	"cashkit/pkg/db"
	"cashkit/pkg/migration"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	handle, err := db.Open(filepath.Join(t.TempDir(), "cashkit.db"))
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { handle.Close() })

	if err := migration.NewRunner(handle.Write).Run(); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}

	store := NewStore(handle)
	t.Cleanup(store.Close)
	return store
}

func TestRecordAndGet(t *testing.T) {
	store := setupTestStore(t)

	run := NewRun(KindConsolidate, "bchtest:qq0 -> self")
	run.Status = builder.StatusFinished
	run.TxCount = 3
	run.TotalIn = 150_000
	run.TotalOut = 148_500
	run.Fee = 1_500
	run.TxIDs = []string{"aa11", "bb22", "cc33"}
	completed := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	run.CompletedAt = &completed

	if err := store.Record(run); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Get(run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Kind != KindConsolidate || got.Status != builder.StatusFinished {
		t.Fatalf("unexpected kind/status: %s/%s", got.Kind, got.Status)
	}
	if got.Description != run.Description {
		t.Errorf("description = %q, want %q", got.Description, run.Description)
	}
	if got.TxCount != 3 || got.TotalIn != 150_000 || got.TotalOut != 148_500 || got.Fee != 1_500 {
		t.Errorf("unexpected totals: %d in %d out %d fee %d txs",
			got.TotalIn, got.TotalOut, got.Fee, got.TxCount)
	}
	if len(got.TxIDs) != 3 || got.TxIDs[1] != "bb22" {
		t.Errorf("unexpected txids: %v", got.TxIDs)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) || !got.UpdatedAt.Equal(run.UpdatedAt) {
		t.Errorf("timestamps did not round trip")
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("completed timestamp did not round trip")
	}
}

func TestRecordUpsertsExisting(t *testing.T) {
	store := setupTestStore(t)

	run := NewRun(KindUpload, "report.pdf")
	if err := store.Record(run); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	run.Status = builder.StatusFailed
	run.Error = "transaction 2 of 3 rejected: txn-mempool-conflict"
	run.UpdatedAt = run.UpdatedAt.Add(time.Minute)
	if err := store.Record(run); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}

	got, err := store.Get(run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != builder.StatusFailed {
		t.Errorf("status = %s, want %s", got.Status, builder.StatusFailed)
	}
	if got.Error != run.Error {
		t.Errorf("error = %q, want %q", got.Error, run.Error)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("upsert must not change the creation time")
	}

	all, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one row after upsert, got %d", len(all))
	}
}

func TestGetUnknownRun(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.Get("no-such-run"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestAppendProgress(t *testing.T) {
	store := setupTestStore(t)

	run := NewRun(KindConsolidate, "")
	if err := store.Record(run); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		entry := ProgressEntry{
			Timestamp: run.CreatedAt.Add(time.Duration(i) * time.Second),
			Status:    string(builder.StatusBuilding),
			Text:      fmt.Sprintf("transaction %d", i),
		}
		if err := store.AppendProgress(run.ID, entry); err != nil {
			t.Fatalf("AppendProgress %d failed: %v", i, err)
		}
	}

	got, err := store.Get(run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Progress) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got.Progress))
	}
	for i, entry := range got.Progress {
		if want := fmt.Sprintf("transaction %d", i+1); entry.Text != want {
			t.Errorf("entry %d text = %q, want %q", i, entry.Text, want)
		}
	}
	if !got.UpdatedAt.Equal(got.Progress[2].Timestamp) {
		t.Errorf("progress must bump the run's updated time")
	}
}

func TestAppendProgressCapsTrail(t *testing.T) {
	store := setupTestStore(t)

	run := NewRun(KindUpload, "")
	if err := store.Record(run); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	for i := 1; i <= maxProgressEntries+5; i++ {
		entry := ProgressEntry{Text: fmt.Sprintf("step %d", i)}
		if err := store.AppendProgress(run.ID, entry); err != nil {
			t.Fatalf("AppendProgress %d failed: %v", i, err)
		}
	}

	got, err := store.Get(run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Progress) != maxProgressEntries {
		t.Fatalf("expected the trail capped at %d, got %d", maxProgressEntries, len(got.Progress))
	}
	if got.Progress[0].Text != "step 6" {
		t.Errorf("expected the oldest entries dropped, first is %q", got.Progress[0].Text)
	}
}

func TestAppendProgressUnknownRun(t *testing.T) {
	store := setupTestStore(t)
	err := store.AppendProgress("no-such-run", ProgressEntry{Text: "x"})
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	store := setupTestStore(t)

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	seed := []struct {
		kind   Kind
		status builder.Status
		age    time.Duration
	}{
		{KindConsolidate, builder.StatusFinished, 2 * time.Hour},
		{KindUpload, builder.StatusFailed, time.Hour},
		{KindConsolidate, builder.StatusInterrupted, 0},
	}
	ids := make([]string, len(seed))
	for i, s := range seed {
		run := NewRun(s.kind, "")
		run.Status = s.status
		run.CreatedAt = base.Add(-s.age)
		run.UpdatedAt = run.CreatedAt
		if err := store.Record(run); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
		ids[i] = run.ID
	}

	all, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	if all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("expected most recently updated first")
	}

	consolidations, err := store.List(Filter{Kind: KindConsolidate})
	if err != nil {
		t.Fatalf("List by kind failed: %v", err)
	}
	if len(consolidations) != 2 {
		t.Errorf("expected 2 consolidation runs, got %d", len(consolidations))
	}

	failed, err := store.List(Filter{Status: builder.StatusFailed})
	if err != nil {
		t.Fatalf("List by status failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != ids[1] {
		t.Errorf("unexpected status filter result")
	}

	limited, err := store.List(Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != ids[2] {
		t.Errorf("expected only the newest run")
	}
}

func TestDelete(t *testing.T) {
	store := setupTestStore(t)

	run := NewRun(KindOutbox, "")
	if err := store.Record(run); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.AppendProgress(run.ID, ProgressEntry{Text: "sent"}); err != nil {
		t.Fatalf("AppendProgress failed: %v", err)
	}

	deleted, err := store.Delete(run.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected the first delete to report a removed row")
	}
	if _, err := store.Get(run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound after delete, got %v", err)
	}

	deleted, err = store.Delete(run.ID)
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if deleted {
		t.Fatal("expected the second delete to report nothing removed")
	}
}

func TestWatchDeliversStoreEvents(t *testing.T) {
	store := setupTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := store.Watch(ctx)

	run := NewRun(KindConsolidate, "")
	if err := store.Record(run); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.AppendProgress(run.ID, ProgressEntry{Text: "transaction 1"}); err != nil {
		t.Fatalf("AppendProgress failed: %v", err)
	}
	if _, err := store.Delete(run.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	want := []EventType{EventRecorded, EventProgress, EventDeleted}
	for i, wantType := range want {
		select {
		case ev := <-events:
			if ev.Type != wantType {
				t.Fatalf("event %d = %s, want %s", i, ev.Type, wantType)
			}
			if ev.RunID != run.ID {
				t.Fatalf("event %d names run %s, want %s", i, ev.RunID, run.ID)
			}
			switch wantType {
			case EventRecorded:
				if ev.Run == nil || ev.Run.Kind != KindConsolidate {
					t.Fatal("recorded event must carry the run")
				}
			case EventProgress:
				if ev.Progress == nil || ev.Progress.Text != "transaction 1" {
					t.Fatal("progress event must carry the entry")
				}
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()
	select {
	case _, open := <-events:
		if open {
			t.Fatal("expected the channel to close after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the channel to close")
	}
}
