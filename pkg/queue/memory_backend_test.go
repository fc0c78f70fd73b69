package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func reserveOne(t *testing.T, backend *MemoryBackend, queueName string) (*Job, *Lease) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	job, lease, err := backend.Reserve(ctx, queueName, time.Minute)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return job, lease
}

func TestMemoryBackend_EnqueueReserveAck(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	job := &Job{ID: "job-1", Kind: KindSendChat, Queue: "notifications", Payload: []byte(`{}`)}
	if err := backend.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	reserved, lease := reserveOne(t, backend, "notifications")
	if reserved.ID != "job-1" {
		t.Fatalf("reserved wrong job: %s", reserved.ID)
	}
	if lease.Token == "" {
		t.Fatal("expected a lease token")
	}

	if err := backend.Ack(ctx, lease); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := backend.Ack(ctx, lease); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double ack must fail with not found, got %v", err)
	}

	depth, err := backend.Depth(ctx, "notifications")
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected empty queue, depth = %d", depth)
	}
}

func TestMemoryBackend_DelayedJobsBecomeVisible(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	job := &Job{
		ID: "job-delayed", Kind: KindSendSMS, Queue: "notifications",
		Payload: []byte(`{}`), RunAt: time.Now().UTC().Add(50 * time.Millisecond),
	}
	if err := backend.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	counts, err := backend.Counts(ctx, "notifications")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Delayed != 1 || counts.Waiting != 0 {
		t.Fatalf("expected one delayed job, got %+v", counts)
	}

	reserved, _ := reserveOne(t, backend, "notifications")
	if reserved.ID != "job-delayed" {
		t.Fatalf("reserved wrong job: %s", reserved.ID)
	}
}

func TestMemoryBackend_NackConsumesAttemptRescheduleDoesNot(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	if err := backend.Enqueue(ctx, &Job{
		ID: "job-1", Kind: KindSendEmail, Queue: "notifications",
		Payload: []byte(`{}`), Attempt: 1, MaxAttempts: 5,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	_, lease := reserveOne(t, backend, "notifications")
	if err := backend.Nack(ctx, lease, time.Now().UTC(), errors.New("upstream down")); err != nil {
		t.Fatalf("nack: %v", err)
	}

	nacked, lease := reserveOne(t, backend, "notifications")
	if nacked.Attempt != 2 {
		t.Fatalf("nack must consume an attempt, got %d", nacked.Attempt)
	}
	if nacked.Headers["failure_reason"] != "upstream down" {
		t.Fatalf("expected failure reason header, got %q", nacked.Headers["failure_reason"])
	}

	if err := backend.Reschedule(ctx, lease, time.Now().UTC()); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	rescheduled, _ := reserveOne(t, backend, "notifications")
	if rescheduled.Attempt != 2 {
		t.Fatalf("reschedule must not consume an attempt, got %d", rescheduled.Attempt)
	}
}

func TestMemoryBackend_PauseBlocksReservation(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	if err := backend.Enqueue(ctx, &Job{
		ID: "job-1", Kind: KindSendPush, Queue: "notifications", Payload: []byte(`{}`),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := backend.Pause(ctx, "notifications"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	reserveCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, _, err := backend.Reserve(reserveCtx, "notifications", time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("paused queue must hand out nothing, got %v", err)
	}

	// Enqueues keep accumulating while paused.
	if err := backend.Enqueue(ctx, &Job{
		ID: "job-2", Kind: KindSendPush, Queue: "notifications", Payload: []byte(`{}`),
	}); err != nil {
		t.Fatalf("enqueue while paused: %v", err)
	}
	depth, err := backend.Depth(ctx, "notifications")
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("expected two waiting jobs, depth = %d", depth)
	}

	if err := backend.Resume(ctx, "notifications"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	job, _ := reserveOne(t, backend, "notifications")
	if job == nil {
		t.Fatal("expected a job after resume")
	}
}

func TestMemoryBackend_DLQLifecycle(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	for _, id := range []string{"job-a", "job-b"} {
		if err := backend.Enqueue(ctx, &Job{
			ID: id, Kind: KindSendChat, Queue: "notifications", Payload: []byte(`{}`),
		}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
		job, lease := reserveOne(t, backend, "notifications")
		meta := NewFailureMeta(job, 503, "upstream_down", errors.New("boom"), "")
		if err := backend.MoveToDLQ(ctx, lease, meta); err != nil {
			t.Fatalf("move to dlq %s: %v", id, err)
		}
	}

	entries, err := backend.ListDLQ(ctx, "notifications", 10)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	// FIFO: oldest failure first.
	if entries[0].OriginalJobID != "job-a" || entries[1].OriginalJobID != "job-b" {
		t.Fatalf("expected FIFO order, got %s then %s", entries[0].OriginalJobID, entries[1].OriginalJobID)
	}
	if entries[0].Error == nil || entries[0].Error.Code != "upstream_down" {
		t.Fatal("expected failure metadata on dlq entry")
	}

	if err := backend.RemoveDLQ(ctx, "notifications", entries[0].ID); err != nil {
		t.Fatalf("remove dlq: %v", err)
	}
	if err := backend.RemoveDLQ(ctx, "notifications", entries[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double remove must fail with not found, got %v", err)
	}

	counts, err := backend.Counts(ctx, "notifications")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Failed != 1 {
		t.Fatalf("expected one remaining dlq entry, got %d", counts.Failed)
	}
}

func TestMemoryBackend_ClosedBackendRejectsOperations(t *testing.T) {
	backend := NewMemoryBackend()
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := backend.Enqueue(context.Background(), &Job{
		ID: "job-1", Kind: KindSendChat, Queue: "notifications", Payload: []byte(`{}`),
	})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}
