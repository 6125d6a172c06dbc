package job

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"orderbridge/internal/core/order"
)

type memStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	ttls      map[string]int
	published []string
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (m *memStore) CacheGet(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return errors.New("redis: nil")
	}
	return json.Unmarshal(b, dest)
}

func (m *memStore) CacheSet(_ context.Context, key string, val interface{}, ttl int) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Publish(_ context.Context, channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, channel+"="+message)
	return nil
}

func TestJobLifecycle(t *testing.T) {
	store := newMemStore()
	svc := NewJobService(store)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := svc.InitPending(ctx, "j1", "browser"); err != nil {
		t.Fatal(err)
	}
	if store.ttls["job:j1"] != 600 {
		t.Errorf("pending ttl = %d", store.ttls["job:j1"])
	}
	if err := svc.SetProcessing(ctx, "j1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Complete(ctx, "j1", order.AutomationResult{Success: true, ChoganLink: "https://portal.test/c/1"}); err != nil {
		t.Fatal(err)
	}

	j, err := svc.GetJobStatus(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != StatusCompleted || j.Backend != "browser" || j.Type != TypeOrder {
		t.Errorf("job = %+v", j)
	}
	if j.Result == nil || j.Result.ChoganLink != "https://portal.test/c/1" {
		t.Errorf("result = %+v", j.Result)
	}
	if store.ttls["job:j1"] != 3600 {
		t.Errorf("completed ttl = %d", store.ttls["job:j1"])
	}
	if len(store.published) != 3 || store.published[2] != "job:j1=completed" {
		t.Errorf("published = %v", store.published)
	}
}

func TestFailedResult(t *testing.T) {
	svc := NewJobService(newMemStore())
	ctx := context.Background()
	if err := svc.Complete(ctx, "j2", order.AutomationResult{Error: "link not found"}); err != nil {
		t.Fatal(err)
	}
	j, err := svc.GetJobStatus(ctx, "j2")
	if err != nil {
		t.Fatal(err)
	}
	if j.Status != StatusFailed || !j.Status.Done() {
		t.Errorf("status = %s", j.Status)
	}
}

func TestUnknownJob(t *testing.T) {
	_, err := NewJobService(newMemStore()).GetJobStatus(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
