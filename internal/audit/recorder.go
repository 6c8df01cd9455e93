package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// writeTimeout bounds a single background insert.
const writeTimeout = 5 * time.Second

// Recorder queues audit entries and writes them in the background.
type Recorder struct {
	repo    Repository
	logger  *slog.Logger
	queue   chan *AuditLog
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts a recorder with a queue of size entries.
func NewRecorder(repo Repository, size int, logger *slog.Logger) *Recorder {
	if size <= 0 {
		size = 256
	}
	r := &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *AuditLog, size),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues an entry. It never blocks; a full queue drops the entry.
// Record on a nil Recorder is a no-op.
func (r *Recorder) Record(entry AuditLog) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	select {
	case r.queue <- &entry:
	default:
		r.dropped.Add(1)
		r.logger.Warn("audit queue full, entry dropped", "action", entry.Action)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting entries and waits until queued ones are written
// or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.repo.Create(ctx, entry); err != nil {
			r.logger.Error("failed to write audit log", "action", entry.Action, "error", err)
		}
		cancel()
	}
}
