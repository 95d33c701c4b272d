package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"cardforge/internal/logging"
)

// DefaultKeepMax is the retention window used when none is configured.
const DefaultKeepMax = 10

// Collector enforces the keep-N retention window over terminal jobs. Pending
// and running jobs are never deletion candidates.
type Collector struct {
	store  *Store
	keep   int
	logger *slog.Logger

	mu sync.Mutex
}

// NewCollector builds a collector keeping the most recent keep terminal jobs.
func NewCollector(store *Store, keep int, logger *slog.Logger) *Collector {
	if keep <= 0 {
		keep = DefaultKeepMax
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Collector{
		store:  store,
		keep:   keep,
		logger: logging.NewComponentLogger(logger, "retention"),
	}
}

// Sweep deletes terminal jobs beyond the retained window, oldest first. Sweeps
// are serialized; overlapping callers queue behind the mutex.
func (c *Collector) Sweep(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	records, err := c.store.List()
	if err != nil {
		return 0, err
	}
	terminal := records[:0]
	for _, record := range records {
		if record.Terminal() {
			terminal = append(terminal, record)
		}
	}
	if len(terminal) <= c.keep {
		return 0, nil
	}

	// Most recently finished first; the tail past keep is deleted.
	sort.Slice(terminal, func(i, j int) bool {
		ti, tj := terminal[i].CreatedAt, terminal[j].CreatedAt
		if terminal[i].CompletedAt != nil {
			ti = *terminal[i].CompletedAt
		}
		if terminal[j].CompletedAt != nil {
			tj = *terminal[j].CompletedAt
		}
		if ti.Equal(tj) {
			return terminal[i].ID > terminal[j].ID
		}
		return ti.After(tj)
	})

	removed := 0
	for _, record := range terminal[c.keep:] {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := c.store.Remove(record.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		c.logger.Info("retention sweep",
			logging.Int("removed", removed),
			logging.Int("kept", c.keep))
	}
	return removed, nil
}
