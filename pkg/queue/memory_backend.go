package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMemoryPollInterval = 10 * time.Millisecond

type memoryQueueState struct {
	ready   []*Job
	delayed []*Job
	paused  bool
}

type memoryLeaseState struct {
	job      *Job
	queue    string
	expireAt time.Time
}

// MemoryBackend is an in-process Backend used by tests and local
// development. It mirrors the Redis backend semantics: ready list,
// delayed set ordered by run time, lease table and per-queue DLQ.
type MemoryBackend struct {
	mu      sync.Mutex
	queues  map[string]*memoryQueueState
	leases  map[string]*memoryLeaseState
	dlq     map[string][]*DLQEntry
	closed  bool
	pollInt time.Duration
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		queues:  map[string]*memoryQueueState{},
		leases:  map[string]*memoryLeaseState{},
		dlq:     map[string][]*DLQEntry{},
		pollInt: defaultMemoryPollInterval,
	}
}

func (b *MemoryBackend) queueState(queue string) *memoryQueueState {
	state, ok := b.queues[queue]
	if !ok {
		state = &memoryQueueState{}
		b.queues[queue] = state
	}
	return state
}

// Enqueue schedules a job for immediate or delayed execution.
func (b *MemoryBackend) Enqueue(ctx context.Context, job *Job) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if job == nil {
		return errors.New("job is required")
	}
	jobCopy := cloneJob(job)
	if jobCopy.CreatedAt.IsZero() {
		jobCopy.CreatedAt = time.Now().UTC()
	}
	if jobCopy.RunAt.IsZero() {
		jobCopy.RunAt = jobCopy.CreatedAt
	}
	if err := jobCopy.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.queueState(jobCopy.Queue)
	if !jobCopy.RunAt.After(time.Now().UTC()) {
		state.ready = append(state.ready, jobCopy)
	} else {
		state.delayed = append(state.delayed, jobCopy)
		sort.SliceStable(state.delayed, func(i, j int) bool {
			return state.delayed[i].RunAt.Before(state.delayed[j].RunAt)
		})
	}
	recordJobEnqueued("memory", jobCopy)
	return nil
}

// Reserve returns the next available job and a lease token.
func (b *MemoryBackend) Reserve(ctx context.Context, queue string, leaseFor time.Duration) (*Job, *Lease, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, nil, err
	}
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, nil, errors.New("queue is required")
	}
	if leaseFor <= 0 {
		leaseFor = DefaultLeaseTTL
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		job := b.tryPop(queue)
		if job == nil {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(b.pollInt):
				continue
			}
		}

		token := randomToken()
		now := time.Now().UTC()
		lease := &Lease{
			JobID:    job.ID,
			Token:    token,
			Queue:    queue,
			ExpireAt: now.Add(leaseFor),
			Attempt:  job.Attempt,
		}

		b.mu.Lock()
		b.leases[token] = &memoryLeaseState{job: job, queue: queue, expireAt: lease.ExpireAt}
		b.mu.Unlock()

		return cloneJob(job), cloneLease(lease), nil
	}
}

func (b *MemoryBackend) tryPop(queue string) *Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.queueState(queue)
	now := time.Now().UTC()
	for len(state.delayed) > 0 && !state.delayed[0].RunAt.After(now) {
		state.ready = append(state.ready, state.delayed[0])
		state.delayed = state.delayed[1:]
	}
	if state.paused || len(state.ready) == 0 {
		return nil
	}
	job := state.ready[0]
	state.ready = state.ready[1:]
	return job
}

// Ack confirms job completion and releases the lease.
func (b *MemoryBackend) Ack(ctx context.Context, lease *Lease) error {
	_, err := b.popLease(lease)
	return err
}

// Nack schedules the leased job for retry with one more attempt consumed.
func (b *MemoryBackend) Nack(ctx context.Context, lease *Lease, nextRunAt time.Time, reason error) error {
	state, err := b.popLease(lease)
	if err != nil {
		return err
	}
	job := cloneJob(state.job)
	job.Attempt++
	if job.Headers == nil {
		job.Headers = map[string]string{}
	}
	if reason != nil {
		job.Headers["failure_reason"] = reason.Error()
	}
	job.RunAt = nextRunAt.UTC()
	if job.RunAt.IsZero() {
		job.RunAt = time.Now().UTC()
	}
	return b.Enqueue(ctx, job)
}

// Reschedule requeues the leased job without consuming an attempt.
func (b *MemoryBackend) Reschedule(ctx context.Context, lease *Lease, nextRunAt time.Time) error {
	state, err := b.popLease(lease)
	if err != nil {
		return err
	}
	job := cloneJob(state.job)
	job.RunAt = nextRunAt.UTC()
	if job.RunAt.IsZero() {
		job.RunAt = time.Now().UTC()
	}
	return b.Enqueue(ctx, job)
}

// Renew extends lease expiration.
func (b *MemoryBackend) Renew(ctx context.Context, lease *Lease, leaseFor time.Duration) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	if lease == nil || strings.TrimSpace(lease.Token) == "" {
		return errors.New("lease token is required")
	}
	if leaseFor <= 0 {
		leaseFor = DefaultLeaseTTL
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.leases[strings.TrimSpace(lease.Token)]
	if !ok {
		return queueError(ErrNotFound, "lease not found")
	}
	state.expireAt = time.Now().UTC().Add(leaseFor)
	return nil
}

// MoveToDLQ stores a dead-letter entry for the leased job and releases the lease.
func (b *MemoryBackend) MoveToDLQ(ctx context.Context, lease *Lease, meta *FailureMeta) error {
	state, err := b.popLease(lease)
	if err != nil {
		return err
	}
	job := cloneJob(state.job)
	originQueue := strings.TrimSpace(job.Queue)
	if originQueue == "" {
		originQueue = state.queue
	}
	if meta == nil {
		meta = NewFailureMeta(job, 0, "unknown", errors.New("unknown failure"), "")
	}

	entry := &DLQEntry{
		ID:            randomToken(),
		OriginalJobID: job.ID,
		JobKind:       job.Kind,
		OriginQueue:   originQueue,
		Job:           job,
		Error:         meta,
		FailedAt:      meta.FailedAt,
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.dlq[originQueue] = append(b.dlq[originQueue], entry)
	recordJobDLQ(originQueue, job.Kind)
	return nil
}

// Pause stops reservation on a queue. Enqueues still accumulate.
func (b *MemoryBackend) Pause(ctx context.Context, queue string) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queueState(strings.TrimSpace(queue)).paused = true
	return nil
}

// Resume re-enables reservation on a queue.
func (b *MemoryBackend) Resume(ctx context.Context, queue string) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queueState(strings.TrimSpace(queue)).paused = false
	return nil
}

// Depth returns the number of jobs waiting or delayed on a queue.
func (b *MemoryBackend) Depth(ctx context.Context, queue string) (int64, error) {
	if err := b.ensureOpen(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.queueState(strings.TrimSpace(queue))
	return int64(len(state.ready) + len(state.delayed)), nil
}

// Counts summarizes queue and DLQ state.
func (b *MemoryBackend) Counts(ctx context.Context, queue string) (Counts, error) {
	if err := b.ensureOpen(); err != nil {
		return Counts{}, err
	}
	queue = strings.TrimSpace(queue)
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.queueState(queue)
	counts := Counts{
		Waiting: int64(len(state.ready)),
		Delayed: int64(len(state.delayed)),
		Failed:  int64(len(b.dlq[queue])),
	}
	counts.Total = counts.Waiting + counts.Delayed + counts.Failed
	return counts, nil
}

// ListDLQ lists dead-letter records for one origin queue in FIFO order.
func (b *MemoryBackend) ListDLQ(ctx context.Context, queue string, limit int) ([]*DLQEntry, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, errors.New("queue is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.dlq[queue]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]*DLQEntry, 0, limit)
	for _, entry := range entries[:limit] {
		entryCopy := *entry
		entryCopy.Job = cloneJob(entry.Job)
		out = append(out, &entryCopy)
	}
	return out, nil
}

// RemoveDLQ deletes one dead-letter record.
func (b *MemoryBackend) RemoveDLQ(ctx context.Context, queue string, entryID string) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	queue = strings.TrimSpace(queue)
	entryID = strings.TrimSpace(entryID)
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.dlq[queue]
	for idx, entry := range entries {
		if entry.ID == entryID {
			b.dlq[queue] = append(entries[:idx:idx], entries[idx+1:]...)
			return nil
		}
	}
	return queueError(ErrNotFound, fmt.Sprintf("dlq entry %s not found", entryID))
}

// HealthCheck always succeeds for the in-memory backend.
func (b *MemoryBackend) HealthCheck(ctx context.Context) error {
	return b.ensureOpen()
}

// Close marks the backend closed.
func (b *MemoryBackend) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *MemoryBackend) ensureOpen() error {
	if b == nil {
		return errors.New("memory backend is not initialized")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func (b *MemoryBackend) popLease(lease *Lease) (*memoryLeaseState, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	if lease == nil || strings.TrimSpace(lease.Token) == "" {
		return nil, errors.New("lease token is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.leases[strings.TrimSpace(lease.Token)]
	if !ok {
		return nil, queueError(ErrNotFound, "lease not found")
	}
	delete(b.leases, strings.TrimSpace(lease.Token))
	return state, nil
}
