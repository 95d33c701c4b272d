// Package daemon ties the workflow manager to the HTTP API and enforces
// single-instance execution through a lock file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"cardforge/internal/api"
	"cardforge/internal/config"
	"cardforge/internal/jobs"
	"cardforge/internal/logging"
	"cardforge/internal/workflow"
)

// Daemon coordinates the workflow manager and the API server.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobs.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	server  *apiServer
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "cardforged.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, fails stranded jobs from a previous run,
// starts the workflow manager, and brings up the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cardforge daemon instance is already running")
	}

	if _, err := d.store.FailStranded(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("fail stranded jobs: %w", err)
	}
	if err := d.workflow.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	d.server = newAPIServer(d, d.cfg.Paths.APIBind, d.logger)
	if err := d.server.Start(); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("cardforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.server.Addr()))
	return nil
}

// Stop shuts down the API server, stops workers, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.server != nil {
		d.server.Stop()
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("cardforge daemon stopped")
}

// Addr returns the listener address once Start has succeeded.
func (d *Daemon) Addr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}

// Status reports the daemon's runtime state.
func (d *Daemon) Status() (api.DaemonStatus, error) {
	health, err := d.workflow.Health()
	if err != nil {
		return api.DaemonStatus{}, err
	}
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		DataDir:      d.cfg.Paths.DataDir,
		WorkerSlots:  health.WorkerSlots,
		KeepMax:      health.KeepMax,
		Jobs: api.JobCounts{
			Total:     health.Jobs.Total,
			Pending:   health.Jobs.Pending,
			Running:   health.Jobs.Running,
			Completed: health.Jobs.Completed,
			Failed:    health.Jobs.Failed,
		},
	}, nil
}
