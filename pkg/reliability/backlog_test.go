package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/nexocrm/notify/pkg/queue"
)

func TestBacklogMonitor_AlertsAboveThreshold(t *testing.T) {
	backend := queue.NewMemoryBackend()
	monitor, err := NewBacklogMonitor(backend, alertNotifier(t, backend), BacklogConfig{
		Queues:    []string{"notifications"},
		Threshold: 100,
		Cooldown:  5 * time.Minute,
	}, &testLogger{})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	ctx := context.Background()
	monitor.OnSample(ctx, "notifications", 99)

	counts, err := backend.Counts(ctx, "alerts")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Waiting != 0 {
		t.Fatalf("below threshold must not alert, got %d", counts.Waiting)
	}

	monitor.OnSample(ctx, "notifications", 100)
	counts, err = backend.Counts(ctx, "alerts")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Waiting != 1 {
		t.Fatalf("expected one backlog alert, got %d", counts.Waiting)
	}
}

func TestBacklogMonitor_DebouncesRepeatAlerts(t *testing.T) {
	backend := queue.NewMemoryBackend()
	monitor, err := NewBacklogMonitor(backend, alertNotifier(t, backend), BacklogConfig{
		Queues:    []string{"notifications"},
		Threshold: 100,
		Cooldown:  5 * time.Minute,
	}, &testLogger{})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	monitor.now = func() time.Time { return current }

	ctx := context.Background()
	monitor.OnSample(ctx, "notifications", 500)
	monitor.OnSample(ctx, "notifications", 800)
	current = current.Add(4 * time.Minute)
	monitor.OnSample(ctx, "notifications", 1200)

	counts, err := backend.Counts(ctx, "alerts")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Waiting != 1 {
		t.Fatalf("cooldown must swallow repeats, got %d alerts", counts.Waiting)
	}

	current = current.Add(2 * time.Minute)
	monitor.OnSample(ctx, "notifications", 1200)
	counts, err = backend.Counts(ctx, "alerts")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Waiting != 2 {
		t.Fatalf("expired cooldown must alert again, got %d", counts.Waiting)
	}
}

func TestBacklogMonitor_TracksQueuesIndependently(t *testing.T) {
	backend := queue.NewMemoryBackend()
	monitor, err := NewBacklogMonitor(backend, alertNotifier(t, backend), BacklogConfig{
		Queues:    []string{"notifications", "digests"},
		Threshold: 100,
		Cooldown:  5 * time.Minute,
	}, &testLogger{})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	ctx := context.Background()
	monitor.OnSample(ctx, "notifications", 500)
	monitor.OnSample(ctx, "digests", 500)

	counts, err := backend.Counts(ctx, "alerts")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Waiting != 2 {
		t.Fatalf("each queue gets its own debounce window, got %d alerts", counts.Waiting)
	}
}
