// Package testsupport provides shared helpers for package tests: per-test
// configs with unique temp directories, store construction, and synthetic
// image builders.
package testsupport

import (
	"path/filepath"
	"testing"

	"cardforge/internal/config"
	"cardforge/internal/jobs"
	"cardforge/internal/png"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.LLM.APIKey = "test"
	cfg.LLM.Stream = true
	cfg.Workflow.WorkerSlots = 2
	cfg.Workflow.JobTimeoutSeconds = 5
	cfg.Workflow.KeepMax = 10

	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

// WithKeepMax overrides the retention window on the test config.
func WithKeepMax(keep int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.KeepMax = keep
	}
}

// WithWorkerSlots overrides the worker pool size on the test config.
func WithWorkerSlots(slots int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.WorkerSlots = slots
	}
}

// WithJobTimeout overrides the per-job deadline on the test config.
func WithJobTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.JobTimeoutSeconds = seconds
	}
}

// WithBlockingModel disables streaming on the test config.
func WithBlockingModel() ConfigOption {
	return func(cfg *config.Config) {
		cfg.LLM.Stream = false
	}
}

// MustOpenStore opens a job store rooted at the config's data directory.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()
	store, err := jobs.Open(cfg.Paths.DataDir, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

// BuildPNG returns a minimal structurally valid PNG.
func BuildPNG(t testing.TB) []byte {
	t.Helper()
	return png.Encode([]png.Chunk{
		{Type: "IHDR", Data: make([]byte, 13)},
		{Type: "IDAT", Data: []byte{0x78, 0x9c, 0x01, 0x00}},
		{Type: "IEND"},
	})
}

// BuildAPNG returns a minimal animated PNG with two frames.
func BuildAPNG(t testing.TB) []byte {
	t.Helper()
	return png.Encode([]png.Chunk{
		{Type: "IHDR", Data: make([]byte, 13)},
		{Type: "acTL", Data: []byte{0, 0, 0, 2, 0, 0, 0, 0}},
		{Type: "fcTL", Data: make([]byte, 26)},
		{Type: "IDAT", Data: []byte{1, 2, 3}},
		{Type: "fcTL", Data: make([]byte, 26)},
		{Type: "fdAT", Data: []byte{0, 0, 0, 1, 9, 9}},
		{Type: "IEND"},
	})
}
