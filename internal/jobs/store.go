package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cardforge/internal/logging"
)

// Artifact file names inside a job directory.
const (
	MetaFile      = "meta.json"
	InputFile     = "input.txt"
	StreamFile    = "stream.log"
	RawFile       = "raw.txt"
	ResultFile    = "result.json"
	BaseImageFile = "base_image.png"
	CardImageFile = "card.png"
)

// Store manages job directories under <root>/jobs.
type Store struct {
	root   string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open prepares the jobs directory and returns a store.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	root := filepath.Join(dataDir, "jobs")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("jobs store: create root: %w", err)
	}
	return &Store{
		root:   root,
		logger: logging.NewComponentLogger(logger, "jobs"),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the directory the store manages.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) jobDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) jobLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *Store) dropLock(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// Create persists a new pending job from the supplied input text and optional
// base image. Empty input fails synchronously with ErrInvalidInput.
func (s *Store) Create(ctx context.Context, input string, baseImage []byte, model string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidInput)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	dir := s.jobDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jobs create: make dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, InputFile), []byte(input), 0o644); err != nil {
		return nil, fmt.Errorf("jobs create: write input: %w", err)
	}

	now := s.now().UTC()
	record := &Record{
		ID:        id,
		Status:    StatusPending,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
		Artifacts: Artifacts{Input: InputFile},
	}
	if len(baseImage) > 0 {
		if err := os.WriteFile(filepath.Join(dir, BaseImageFile), baseImage, 0o644); err != nil {
			return nil, fmt.Errorf("jobs create: write base image: %w", err)
		}
		record.Artifacts.BaseImage = BaseImageFile
	}
	if err := s.writeMeta(record); err != nil {
		return nil, err
	}
	s.logger.Info("job created", logging.String("job_id", id), logging.String("model", model))
	return record, nil
}

// Get loads a job's metadata record.
func (s *Store) Get(id string) (*Record, error) {
	return s.readMeta(id)
}

// List returns all job records, most recently created first.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("jobs list: read root: %w", err)
	}
	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		record, err := s.readMeta(entry.Name())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Directory mid-create or mid-delete.
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Health aggregates job counts per lifecycle state.
func (s *Store) Health() (HealthSummary, error) {
	var summary HealthSummary
	records, err := s.List()
	if err != nil {
		return summary, err
	}
	summary.Total = len(records)
	for _, record := range records {
		switch record.Status {
		case StatusPending:
			summary.Pending++
		case StatusRunning:
			summary.Running++
		case StatusCompleted:
			summary.Completed++
		case StatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

// MarkRunning transitions a pending job to running and stamps started_at.
func (s *Store) MarkRunning(ctx context.Context, id string) (*Record, error) {
	return s.transition(ctx, id, StatusRunning, func(record *Record, now time.Time) {
		record.StartedAt = &now
	})
}

// Complete transitions a running job to completed and persists its artifacts:
// the raw model output, the exported card document, and the final image.
func (s *Store) Complete(ctx context.Context, id string, raw string, result []byte, cardImage []byte, usage TokenUsage) (*Record, error) {
	dir := s.jobDir(id)
	return s.transition(ctx, id, StatusCompleted, func(record *Record, now time.Time) {
		record.CompletedAt = &now
		record.TokenUsage = &usage
	}, func(record *Record) error {
		if err := os.WriteFile(filepath.Join(dir, RawFile), []byte(raw), 0o644); err != nil {
			return fmt.Errorf("jobs complete: write raw: %w", err)
		}
		record.Artifacts.Raw = RawFile
		if err := os.WriteFile(filepath.Join(dir, ResultFile), result, 0o644); err != nil {
			return fmt.Errorf("jobs complete: write result: %w", err)
		}
		record.Artifacts.Result = ResultFile
		if err := os.WriteFile(filepath.Join(dir, CardImageFile), cardImage, 0o644); err != nil {
			return fmt.Errorf("jobs complete: write card image: %w", err)
		}
		record.Artifacts.CardImage = CardImageFile
		return nil
	})
}

// Fail transitions a job to failed with a failure kind and message.
func (s *Store) Fail(ctx context.Context, id string, kind, message string) (*Record, error) {
	return s.transition(ctx, id, StatusFailed, func(record *Record, now time.Time) {
		record.CompletedAt = &now
		record.ErrorKind = kind
		record.ErrorMessage = message
	})
}

func (s *Store) transition(ctx context.Context, id string, next Status, stamp func(*Record, time.Time), writes ...func(*Record) error) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock := s.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	if !record.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s (job %s)", ErrInvalidTransition, record.Status, next, id)
	}
	for _, write := range writes {
		if err := write(record); err != nil {
			return nil, err
		}
	}
	now := s.now().UTC()
	record.Status = next
	record.UpdatedAt = now
	if stamp != nil {
		stamp(record, now)
	}
	if err := s.writeMeta(record); err != nil {
		return nil, err
	}
	s.logger.Info("job transition",
		logging.String("job_id", id),
		logging.String("status", string(next)))
	return record, nil
}

// AppendStream appends a model fragment to the job's stream log.
func (s *Store) AppendStream(id string, fragment string) error {
	lock := s.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(s.jobDir(id), StreamFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("jobs stream: open log: %w", err)
	}
	defer file.Close()
	if _, err := file.WriteString(fragment); err != nil {
		return fmt.Errorf("jobs stream: append: %w", err)
	}
	return nil
}

// ReadInput returns the job's source text.
func (s *Store) ReadInput(id string) (string, error) {
	data, err := s.readArtifact(id, InputFile)
	return string(data), err
}

// ReadStream returns the full stream log written so far. A job with no
// fragments yet yields an empty string.
func (s *Store) ReadStream(id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.jobDir(id), StreamFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if _, metaErr := s.readMeta(id); metaErr != nil {
				return "", metaErr
			}
			return "", nil
		}
		return "", fmt.Errorf("jobs read %s: %w", StreamFile, err)
	}
	return string(data), nil
}

// ReadRaw returns the raw model output of a completed job.
func (s *Store) ReadRaw(id string) (string, error) {
	data, err := s.readArtifact(id, RawFile)
	return string(data), err
}

// ReadResult returns the exported card document of a completed job.
func (s *Store) ReadResult(id string) ([]byte, error) {
	return s.readArtifact(id, ResultFile)
}

// ReadCardImage returns the finished card PNG of a completed job.
func (s *Store) ReadCardImage(id string) ([]byte, error) {
	return s.readArtifact(id, CardImageFile)
}

// ReadBaseImage returns the job's uploaded base image, if any.
func (s *Store) ReadBaseImage(id string) ([]byte, bool, error) {
	data, err := s.readArtifact(id, BaseImageFile)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, metaErr := s.readMeta(id); metaErr != nil {
				return nil, false, metaErr
			}
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) readArtifact(id, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.jobDir(id), name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, id, name)
		}
		return nil, fmt.Errorf("jobs read %s: %w", name, err)
	}
	return data, nil
}

// Remove deletes a job's directory and forgets its lock.
func (s *Store) Remove(id string) error {
	lock := s.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	dir := s.jobDir(id)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("jobs remove %s: %w", id, err)
	}
	s.dropLock(id)
	s.logger.Info("job removed", logging.String("job_id", id))
	return nil
}

// FailStranded fails every pending or running job. The daemon calls this at
// startup so jobs interrupted by a crash or restart reach a terminal state;
// the lifecycle has no retry path.
func (s *Store) FailStranded(ctx context.Context) (int, error) {
	records, err := s.List()
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, record := range records {
		if record.Terminal() {
			continue
		}
		if _, err := s.Fail(ctx, record.ID, FailKindInterrupted, InterruptedMessage); err != nil {
			return failed, fmt.Errorf("jobs fail stranded %s: %w", record.ID, err)
		}
		failed++
	}
	if failed > 0 {
		s.logger.Warn("failed stranded jobs", logging.Int("count", failed))
	}
	return failed, nil
}

func (s *Store) readMeta(id string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.jobDir(id), MetaFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("jobs read meta %s: %w", id, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("jobs decode meta %s: %w", id, err)
	}
	return &record, nil
}

// writeMeta replaces meta.json atomically so concurrent readers always see a
// complete record.
func (s *Store) writeMeta(record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("jobs encode meta %s: %w", record.ID, err)
	}
	dir := s.jobDir(record.ID)
	tmp, err := os.CreateTemp(dir, MetaFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("jobs write meta %s: %w", record.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jobs write meta %s: %w", record.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jobs write meta %s: %w", record.ID, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, MetaFile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jobs write meta %s: %w", record.ID, err)
	}
	return nil
}
