package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadflow/api/internal/audit/domain"
)

type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, a *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, a)
	return m.createErr
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, nil
}

func (m *mockAuditRepo) getEntries() []*domain.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}

func TestRecordWritesEntry(t *testing.T) {
	repo := &mockAuditRepo{}
	r := NewAsyncRecorder(repo, nil)

	r.Record(context.Background(), "u1", ActionLogin, "203.0.113.7", "")

	// Wait for the goroutine to complete.
	time.Sleep(100 * time.Millisecond)

	entries := repo.getEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != ActionLogin || e.UserID != "u1" || e.IP != "203.0.113.7" {
		t.Errorf("entry = %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Errorf("entry missing id or timestamp: %+v", e)
	}
}

func TestRecordSurvivesCancelledRequestContext(t *testing.T) {
	repo := &mockAuditRepo{}
	r := NewAsyncRecorder(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, "u1", ActionLogout, "", "")

	time.Sleep(100 * time.Millisecond)
	if len(repo.getEntries()) != 1 {
		t.Error("cancelled request context should not abort the write")
	}
}

func TestRecordErrorDoesNotPanic(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	r := NewAsyncRecorder(repo, nil)
	r.Record(context.Background(), "u1", ActionLogin, "", "")
	time.Sleep(100 * time.Millisecond)
}

func TestRecordNilRepoIsNoop(t *testing.T) {
	r := NewAsyncRecorder(nil, nil)
	r.Record(context.Background(), "u1", ActionLogin, "", "")
}

func TestRecordConcurrent(t *testing.T) {
	repo := &mockAuditRepo{}
	r := NewAsyncRecorder(repo, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Record(context.Background(), "u1", ActionLogin, "", "")
		}()
	}
	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	if got := len(repo.getEntries()); got != 10 {
		t.Errorf("expected 10 entries, got %d", got)
	}
}
