// Package stream fans out model output fragments to any number of
// subscribers. Each job gets one Broadcaster: the worker appends fragments and
// closes it with the terminal outcome; subscribers read with a cursor so late
// joiners replay the full buffer before following live output.
package stream

import (
	"context"
	"sync"
)

// Snapshot is one Fetch result. Next is the cursor to pass on the following
// call. Done is set once the broadcaster is closed and every fragment up to
// the cursor has been delivered.
type Snapshot struct {
	Fragments []string
	Next      int
	Done      bool
	Status    string
	Err       string
}

// Broadcaster is an append-only fragment log with blocking cursor reads.
type Broadcaster struct {
	mu        sync.Mutex
	cond      *sync.Cond
	fragments []string
	closed    bool
	status    string
	errMsg    string
}

// New returns an open broadcaster.
func New() *Broadcaster {
	b := &Broadcaster{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Append publishes a fragment to all subscribers. Appends after CloseWith are
// ignored; the terminal outcome is final.
func (b *Broadcaster) Append(fragment string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.fragments = append(b.fragments, fragment)
	b.cond.Broadcast()
}

// CloseWith seals the broadcaster with the job's terminal status. Subsequent
// calls are no-ops; every waiting subscriber is released.
func (b *Broadcaster) CloseWith(status, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.status = status
	b.errMsg = errMsg
	b.cond.Broadcast()
}

// Closed reports whether the broadcaster has been sealed.
func (b *Broadcaster) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Fetch returns the fragments at or past the since cursor. With wait set it
// blocks until new fragments arrive, the broadcaster closes, or ctx ends.
// Without wait it returns immediately with whatever the cursor has not seen.
func (b *Broadcaster) Fetch(ctx context.Context, since int, wait bool) (Snapshot, error) {
	if since < 0 {
		since = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for wait && !b.closed && since >= len(b.fragments) {
		if err := b.waitLocked(ctx); err != nil {
			return Snapshot{}, err
		}
	}
	return b.snapshotLocked(since), nil
}

func (b *Broadcaster) waitLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()
	b.cond.Wait()
	return ctx.Err()
}

func (b *Broadcaster) snapshotLocked(since int) Snapshot {
	snapshot := Snapshot{Next: len(b.fragments)}
	if since < len(b.fragments) {
		snapshot.Fragments = make([]string, len(b.fragments)-since)
		copy(snapshot.Fragments, b.fragments[since:])
	}
	if b.closed {
		snapshot.Done = true
		snapshot.Status = b.status
		snapshot.Err = b.errMsg
	}
	return snapshot
}
