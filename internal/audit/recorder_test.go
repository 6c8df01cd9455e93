package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_WritesAndDrains(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	rec := NewRecorder(repo, 16, discardLogger())

	for range 10 {
		rec.Record(AuditLog{Action: ActionSlipSubmit, EntityType: EntitySlip, UserID: "3"})
	}
	if err := rec.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	result, err := repo.List(t.Context(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 10 {
		t.Errorf("Total = %d, want 10", result.Total)
	}

	// Recording after Close is ignored, not a panic.
	rec.Record(AuditLog{Action: ActionLogin, EntityType: EntitySession})
	if err := rec.Close(t.Context()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// blockingRepo holds every write until release is closed.
type blockingRepo struct {
	release chan struct{}
	mu      sync.Mutex
	written int
}

func (b *blockingRepo) Create(context.Context, *AuditLog) error {
	<-b.release
	b.mu.Lock()
	b.written++
	b.mu.Unlock()
	return nil
}

func (b *blockingRepo) List(context.Context, Filter) (*ListResult, error) {
	return nil, errors.New("not implemented")
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	rec := NewRecorder(repo, 2, discardLogger())

	// One entry may be in flight in the writer, two fit in the queue.
	start := time.Now()
	for range 10 {
		rec.Record(AuditLog{Action: ActionLogin, EntityType: EntitySession})
	}
	if time.Since(start) > time.Second {
		t.Error("Record() blocked on a full queue")
	}
	if rec.Dropped() < 7 {
		t.Errorf("Dropped() = %d, want at least 7", rec.Dropped())
	}

	close(repo.release)
	if err := rec.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if int64(repo.written)+rec.Dropped() != 10 {
		t.Errorf("written %d + dropped %d != 10", repo.written, rec.Dropped())
	}
}

func TestRecorder_CloseHonoursContext(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{})}
	rec := NewRecorder(repo, 4, discardLogger())
	rec.Record(AuditLog{Action: ActionLogin, EntityType: EntitySession})

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if err := rec.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want DeadlineExceeded", err)
	}
	close(repo.release)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	rec.Record(AuditLog{Action: ActionLogin})
}
