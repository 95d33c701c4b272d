package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func mustCreate(t *testing.T, store *Store, input string) *Record {
	t.Helper()
	record, err := store.Create(context.Background(), input, nil, "test-model")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return record
}

func TestCreatePersistsRecordAndInput(t *testing.T) {
	store := newTestStore(t)
	record := mustCreate(t, store, "Name: Eve")

	if record.Status != StatusPending {
		t.Fatalf("new job status = %s", record.Status)
	}
	if record.ID == "" || strings.Contains(record.ID, "-") {
		t.Fatalf("unexpected id format: %q", record.ID)
	}
	got, err := store.Get(record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Model != "test-model" || got.Status != StatusPending {
		t.Fatalf("reloaded record mismatch: %+v", got)
	}
	input, err := store.ReadInput(record.ID)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if input != "Name: Eve" {
		t.Fatalf("wrong input: %q", input)
	}
}

func TestCreateRejectsEmptyInput(t *testing.T) {
	store := newTestStore(t)
	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := store.Create(context.Background(), input, nil, "m"); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("input %q: expected ErrInvalidInput, got %v", input, err)
		}
	}
}

func TestCreateStoresBaseImage(t *testing.T) {
	store := newTestStore(t)
	image := []byte{0x89, 'P', 'N', 'G'}
	record, err := store.Create(context.Background(), "Name: Eve", image, "m")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.Artifacts.BaseImage != BaseImageFile {
		t.Fatalf("base image artifact not recorded: %+v", record.Artifacts)
	}
	got, ok, err := store.ReadBaseImage(record.ID)
	if err != nil || !ok {
		t.Fatalf("read base image: ok=%v err=%v", ok, err)
	}
	if string(got) != string(image) {
		t.Fatal("base image bytes differ")
	}
}

func TestGetUnknownJob(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record := mustCreate(t, store, "Name: Eve")

	running, err := store.MarkRunning(ctx, record.ID)
	if err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if running.Status != StatusRunning || running.StartedAt == nil {
		t.Fatalf("running record mismatch: %+v", running)
	}

	completed, err := store.Complete(ctx, record.ID, `{"name":"Eve"}`, []byte(`{"spec":"x"}`), []byte("png"), TokenUsage{TotalTokens: 42})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != StatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("completed record mismatch: %+v", completed)
	}
	if completed.TokenUsage == nil || completed.TokenUsage.TotalTokens != 42 {
		t.Fatalf("token usage not persisted: %+v", completed.TokenUsage)
	}
	if completed.Artifacts.Raw != RawFile || completed.Artifacts.Result != ResultFile || completed.Artifacts.CardImage != CardImageFile {
		t.Fatalf("artifacts not recorded: %+v", completed.Artifacts)
	}

	result, err := store.ReadResult(record.ID)
	if err != nil || string(result) != `{"spec":"x"}` {
		t.Fatalf("read result: %q err=%v", result, err)
	}
	image, err := store.ReadCardImage(record.ID)
	if err != nil || string(image) != "png" {
		t.Fatalf("read card image: %q err=%v", image, err)
	}
}

func TestTerminalRecordsAreImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	record := mustCreate(t, store, "Name: Eve")
	if _, err := store.MarkRunning(ctx, record.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if _, err := store.Fail(ctx, record.ID, FailKindModelInvocation, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if _, err := store.MarkRunning(ctx, record.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("running after failed: %v", err)
	}
	if _, err := store.Complete(ctx, record.ID, "", nil, nil, TokenUsage{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete after failed: %v", err)
	}
	if _, err := store.Fail(ctx, record.ID, FailKindTimeout, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double fail: %v", err)
	}

	got, err := store.Get(record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ErrorKind != FailKindModelInvocation || got.ErrorMessage != "boom" {
		t.Fatalf("terminal record mutated: %+v", got)
	}
}

func TestCompleteRequiresRunning(t *testing.T) {
	store := newTestStore(t)
	record := mustCreate(t, store, "Name: Eve")
	if _, err := store.Complete(context.Background(), record.ID, "", nil, nil, TokenUsage{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending -> completed should be illegal, got %v", err)
	}
}

func TestAppendAndReadStream(t *testing.T) {
	store := newTestStore(t)
	record := mustCreate(t, store, "Name: Eve")

	text, err := store.ReadStream(record.ID)
	if err != nil || text != "" {
		t.Fatalf("empty stream: %q err=%v", text, err)
	}
	for _, fragment := range []string{"{\"name\":", "\"Eve\"}"} {
		if err := store.AppendStream(record.ID, fragment); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	text, err = store.ReadStream(record.ID)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if text != `{"name":"Eve"}` {
		t.Fatalf("wrong stream text: %q", text)
	}
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return tick }
		record := mustCreate(t, store, "Name: Eve")
		ids = append(ids, record.ID)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, record := range records {
		if record.ID != ids[len(ids)-1-i] {
			t.Fatalf("position %d: got %s want %s", i, record.ID, ids[len(ids)-1-i])
		}
	}
}

func TestListSkipsPartialDirectories(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "Name: Eve")
	if err := os.MkdirAll(filepath.Join(store.Root(), "half-created"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	records, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestArtifactReadsBeforeCompletion(t *testing.T) {
	store := newTestStore(t)
	record := mustCreate(t, store, "Name: Eve")
	if _, err := store.ReadResult(record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("result before completion: %v", err)
	}
	if _, err := store.ReadCardImage(record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("image before completion: %v", err)
	}
	_, ok, err := store.ReadBaseImage(record.ID)
	if err != nil || ok {
		t.Fatalf("base image absent: ok=%v err=%v", ok, err)
	}
}

func TestRemoveDeletesJob(t *testing.T) {
	store := newTestStore(t)
	record := mustCreate(t, store, "Name: Eve")
	if err := store.Remove(record.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Get(record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
	if err := store.Remove(record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double remove: %v", err)
	}
}

func TestFailStranded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pending := mustCreate(t, store, "one")
	running := mustCreate(t, store, "two")
	if _, err := store.MarkRunning(ctx, running.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	done := mustCreate(t, store, "three")
	if _, err := store.MarkRunning(ctx, done.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if _, err := store.Complete(ctx, done.ID, "{}", []byte("{}"), []byte("png"), TokenUsage{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	failed, err := store.FailStranded(ctx)
	if err != nil {
		t.Fatalf("fail stranded: %v", err)
	}
	if failed != 2 {
		t.Fatalf("expected 2 stranded jobs, got %d", failed)
	}
	for _, id := range []string{pending.ID, running.ID} {
		record, err := store.Get(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if record.Status != StatusFailed || record.ErrorKind != FailKindInterrupted {
			t.Fatalf("stranded job not failed: %+v", record)
		}
	}
	record, err := store.Get(done.ID)
	if err != nil {
		t.Fatalf("get completed: %v", err)
	}
	if record.Status != StatusCompleted {
		t.Fatalf("completed job touched: %+v", record)
	}
}

func TestMetaNeverPartiallyVisible(t *testing.T) {
	store := newTestStore(t)
	record := mustCreate(t, store, "Name: Eve")

	// No temp files left behind after the rename.
	entries, err := os.ReadDir(filepath.Join(store.Root(), record.ID))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("temp meta file left behind: %s", entry.Name())
		}
	}
}
