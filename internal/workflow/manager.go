// Package workflow orchestrates conversion jobs: it accepts new jobs, runs
// them on a bounded worker pool, fans model output out to subscribers, and
// enforces the retention window after every terminal transition.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"cardforge/internal/cards"
	"cardforge/internal/config"
	"cardforge/internal/jobs"
	"cardforge/internal/llm"
	"cardforge/internal/logging"
	"cardforge/internal/png"
	"cardforge/internal/stream"
)

// CardModel is the model client the runner drives. llm.Client satisfies it.
type CardModel interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (llm.Result, error)
	StreamJSON(ctx context.Context, systemPrompt, userPrompt string, onFragment func(string)) (llm.Result, error)
}

// Manager owns the job lifecycle from create to terminal state.
type Manager struct {
	cfg          *config.Config
	store        *jobs.Store
	collector    *jobs.Collector
	model        CardModel
	logger       *slog.Logger
	defaultImage []byte

	slots *semaphore.Weighted

	mu   sync.Mutex
	hubs map[string]*stream.Broadcaster

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
}

// NewManager wires a manager over the supplied store and model client.
// defaultImage is the PNG used when a job has no uploaded base image.
func NewManager(cfg *config.Config, store *jobs.Store, model CardModel, defaultImage []byte, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	slots := int64(cfg.Workflow.WorkerSlots)
	if slots <= 0 {
		slots = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		collector:    jobs.NewCollector(store, cfg.Workflow.KeepMax, logger),
		model:        model,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		defaultImage: defaultImage,
		slots:        semaphore.NewWeighted(slots),
		hubs:         make(map[string]*stream.Broadcaster),
	}
}

// Start prepares the manager for job intake and runs an initial retention
// sweep. It must be called before Create.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("workflow: already started")
	}
	m.baseCtx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.started = true
	m.mu.Unlock()

	if _, err := m.collector.Sweep(ctx); err != nil {
		m.logger.Warn("startup retention sweep failed", logging.Error(err))
	}
	m.logger.Info("workflow started",
		logging.Int("worker_slots", m.cfg.Workflow.WorkerSlots),
		logging.Int("keep_max", m.cfg.Workflow.KeepMax))
	return nil
}

// Stop cancels in-flight workers and waits for them to reach terminal state.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Create validates the request, persists a pending job, and schedules a
// worker. The job's broadcaster is registered before Create returns, so a
// subscriber arriving right after sees live output from the first fragment.
func (m *Manager) Create(ctx context.Context, input string, baseImage []byte) (*jobs.Record, error) {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil, errors.New("workflow: not started")
	}

	if len(baseImage) > 0 {
		if _, err := png.Decode(baseImage); err != nil {
			return nil, err
		}
	}
	record, err := m.store.Create(ctx, input, baseImage, m.cfg.LLM.Model)
	if err != nil {
		return nil, err
	}

	hub := stream.New()
	m.mu.Lock()
	m.hubs[record.ID] = hub
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runJob(record.ID, hub)
	return record, nil
}

// Get returns a job's metadata record.
func (m *Manager) Get(id string) (*jobs.Record, error) {
	return m.store.Get(id)
}

// List returns all job records, most recently created first.
func (m *Manager) List() ([]*jobs.Record, error) {
	return m.store.List()
}

// Detail aggregates a job's record with its input, buffered stream text, and
// result document when available.
type Detail struct {
	Record     *jobs.Record
	Input      string
	StreamText string
	Result     []byte
	Raw        string
	HasImage   bool
}

// Describe loads the full detail view of one job.
func (m *Manager) Describe(id string) (*Detail, error) {
	record, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	detail := &Detail{Record: record}
	if detail.Input, err = m.store.ReadInput(id); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		return nil, err
	}
	if detail.StreamText, err = m.store.ReadStream(id); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		return nil, err
	}
	if record.Status == jobs.StatusCompleted {
		if detail.Result, err = m.store.ReadResult(id); err != nil && !errors.Is(err, jobs.ErrNotFound) {
			return nil, err
		}
		if detail.Raw, err = m.store.ReadRaw(id); err != nil && !errors.Is(err, jobs.ErrNotFound) {
			return nil, err
		}
		detail.HasImage = record.Artifacts.CardImage != ""
	}
	return detail, nil
}

// Subscribe returns the job's broadcaster. Jobs whose hub is gone (terminal
// before this daemon run, or already finished) get a sealed broadcaster
// replayed from the persisted stream log, so late subscribers observe the same
// sequence live ones did.
func (m *Manager) Subscribe(id string) (*stream.Broadcaster, error) {
	m.mu.Lock()
	hub, ok := m.hubs[id]
	m.mu.Unlock()
	if ok {
		return hub, nil
	}

	record, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !record.Terminal() {
		// Hub registration precedes worker start, so a live job without a hub
		// means the daemon restarted; stranded jobs are failed at startup.
		return nil, fmt.Errorf("%w: job %s has no active stream", jobs.ErrNotFound, id)
	}
	text, err := m.store.ReadStream(id)
	if err != nil && !errors.Is(err, jobs.ErrNotFound) {
		return nil, err
	}
	replay := stream.New()
	if text != "" {
		replay.Append(text)
	}
	replay.CloseWith(string(record.Status), record.ErrorMessage)
	return replay, nil
}

// DownloadResult returns the exported card document of a completed job.
// Non-completed jobs yield ErrNotReady.
func (m *Manager) DownloadResult(id string) ([]byte, error) {
	record, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if record.Status != jobs.StatusCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", jobs.ErrNotReady, id, record.Status)
	}
	return m.store.ReadResult(id)
}

// DownloadImage returns the finished card PNG of a completed job.
func (m *Manager) DownloadImage(id string) ([]byte, error) {
	record, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if record.Status != jobs.StatusCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", jobs.ErrNotReady, id, record.Status)
	}
	return m.store.ReadCardImage(id)
}

// Health reports aggregate job counts plus pool sizing.
type Health struct {
	Jobs        jobs.HealthSummary
	WorkerSlots int
	KeepMax     int
}

// Health summarizes the manager's current state.
func (m *Manager) Health() (Health, error) {
	summary, err := m.store.Health()
	if err != nil {
		return Health{}, err
	}
	return Health{
		Jobs:        summary,
		WorkerSlots: m.cfg.Workflow.WorkerSlots,
		KeepMax:     m.cfg.Workflow.KeepMax,
	}, nil
}

func (m *Manager) jobTimeout() time.Duration {
	seconds := m.cfg.Workflow.JobTimeoutSeconds
	if seconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}

func failKindForError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return jobs.FailKindTimeout
	case errors.Is(err, png.ErrMalformedImage):
		return jobs.FailKindMalformedImage
	case errors.Is(err, cards.ErrInvalidCard):
		return jobs.FailKindCardAssembly
	default:
		return jobs.FailKindModelInvocation
	}
}

func failMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return strings.TrimSpace(err.Error())
}
