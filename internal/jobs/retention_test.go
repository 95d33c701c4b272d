package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func finishJob(t *testing.T, store *Store, input string, at time.Time) *Record {
	t.Helper()
	ctx := context.Background()
	store.now = func() time.Time { return at }
	record, err := store.Create(ctx, input, nil, "m")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.MarkRunning(ctx, record.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if _, err := store.Complete(ctx, record.ID, "{}", []byte("{}"), []byte("png"), TokenUsage{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	return record
}

func TestSweepKeepsMostRecentTerminal(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 5; i++ {
		record := finishJob(t, store, "job", base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, record.ID)
	}

	collector := NewCollector(store, 2, nil)
	removed, err := collector.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removals, got %d", removed)
	}
	for _, id := range ids[:3] {
		if _, err := store.Get(id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("old job %s should be gone, got %v", id, err)
		}
	}
	for _, id := range ids[3:] {
		if _, err := store.Get(id); err != nil {
			t.Fatalf("retained job %s missing: %v", id, err)
		}
	}
}

func TestSweepNeverTouchesNonTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	pending, err := store.Create(ctx, "pending job", nil, "m")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	running, err := store.Create(ctx, "running job", nil, "m")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.MarkRunning(ctx, running.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	for i := 0; i < 4; i++ {
		finishJob(t, store, "done", base.Add(time.Duration(i+1)*time.Minute))
	}

	collector := NewCollector(store, 1, nil)
	if _, err := collector.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	for _, id := range []string{pending.ID, running.ID} {
		if _, err := store.Get(id); err != nil {
			t.Fatalf("non-terminal job %s deleted: %v", id, err)
		}
	}
}

func TestSweepBelowWindowIsNoop(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	finishJob(t, store, "only", base)

	collector := NewCollector(store, 10, nil)
	removed, err := collector.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected no removals, got %d", removed)
	}
}

func TestConcurrentSweepsSerialize(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		finishJob(t, store, "job", base.Add(time.Duration(i)*time.Second))
	}

	collector := NewCollector(store, 3, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			removed, err := collector.Sweep(context.Background())
			if err != nil {
				t.Errorf("sweep: %v", err)
			}
			mu.Lock()
			total += removed
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 5 {
		t.Fatalf("expected 5 total removals across sweeps, got %d", total)
	}
	records, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 retained jobs, got %d", len(records))
	}
}
