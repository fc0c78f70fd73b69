package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/retry"
)

const (
	DefaultWorkerReserveTimeout = time.Second
	DefaultWorkerStopTimeout    = 10 * time.Second
	DefaultWorkerAttemptTimeout = 30 * time.Second

	minWorkerLeaseRenewInterval = 100 * time.Millisecond
)

// Hook observes job outcomes after the backend transition completed.
// Implementations must not block: they run on the worker loop.
type Hook interface {
	OnTerminalFailure(ctx context.Context, job *Job, meta *FailureMeta)
	OnSuccess(ctx context.Context, job *Job)
}

// AlertFunc notifies operators about a job that exhausted its retry
// budget. Alerts are dispatched asynchronously and never delay or fail
// the job transition itself.
type AlertFunc func(ctx context.Context, job *Job, meta *FailureMeta)

// WorkerConfig configures worker lifecycle and concurrency.
type WorkerConfig struct {
	Queues         []string
	Concurrency    int
	LeaseTTL       time.Duration
	ReserveTimeout time.Duration
	StopTimeout    time.Duration
	AttemptTimeout time.Duration
	// MaxBackoff caps per-retry delays regardless of the job's backoff shape.
	MaxBackoff time.Duration

	Hook  Hook
	Alert AlertFunc
}

func (c *WorkerConfig) normalize() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.ReserveTimeout <= 0 {
		c.ReserveTimeout = DefaultWorkerReserveTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultWorkerStopTimeout
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultWorkerAttemptTimeout
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
}

// Worker defines a background queue worker lifecycle.
type Worker interface {
	Register(kind string, handler Handler) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RuntimeWorker processes jobs from backend queues. Failed attempts are
// classified from the handler error: rate-limit hints postpone the job
// without consuming the retry budget, client errors dead-letter
// immediately, everything else retries on the job's backoff policy.
type RuntimeWorker struct {
	backend Backend
	log     logger.Logger
	config  WorkerConfig

	mu       sync.RWMutex
	handlers map[string]Handler

	lifecycleMu sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewWorker creates a worker from backend + configuration.
func NewWorker(backend Backend, log logger.Logger, cfg WorkerConfig) (*RuntimeWorker, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()
	if len(cfg.Queues) == 0 {
		return nil, errors.New("at least one queue is required")
	}

	queues := make([]string, 0, len(cfg.Queues))
	for _, queue := range cfg.Queues {
		trimmed := strings.TrimSpace(queue)
		if trimmed != "" {
			queues = append(queues, trimmed)
		}
	}
	if len(queues) == 0 {
		return nil, errors.New("at least one non-empty queue is required")
	}
	cfg.Queues = queues

	return &RuntimeWorker{
		backend:  backend,
		log:      log,
		config:   cfg,
		handlers: map[string]Handler{},
	}, nil
}

// Register binds a handler to a job kind.
func (w *RuntimeWorker) Register(kind string, handler Handler) error {
	if w == nil {
		return errors.New("worker is not initialized")
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return errors.New("job kind is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = handler
	return nil
}

// Start launches worker loops and blocks until context cancellation.
func (w *RuntimeWorker) Start(ctx context.Context) error {
	if w == nil {
		return errors.New("worker is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	w.lifecycleMu.Lock()
	if w.running {
		w.lifecycleMu.Unlock()
		return errors.New("worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.lifecycleMu.Unlock()

	for _, queue := range w.config.Queues {
		for idx := 0; idx < w.config.Concurrency; idx++ {
			w.wg.Add(1)
			go w.runQueueLoop(runCtx, queue)
		}
	}

	<-runCtx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), w.config.StopTimeout)
	defer stopCancel()
	return w.Stop(stopCtx)
}

// Stop requests graceful shutdown and waits for active workers to finish.
func (w *RuntimeWorker) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	w.lifecycleMu.Lock()
	if !w.running {
		w.lifecycleMu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.cancel = nil
	w.running = false
	w.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}

	waitCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waitCh:
		return w.backend.Close()
	}
}

func (w *RuntimeWorker) runQueueLoop(ctx context.Context, queue string) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		reserveCtx, cancel := context.WithTimeout(ctx, w.config.ReserveTimeout)
		job, lease, err := w.backend.Reserve(reserveCtx, queue, w.config.LeaseTTL)
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.Warn("queue reserve failed", "queue", queue, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}
		if job == nil || lease == nil {
			continue
		}

		incrementJobInFlight(queue)
		if err := w.process(ctx, job, lease); err != nil {
			w.log.Warn("job processing failed", "queue", queue, "job_id", job.ID, "kind", job.Kind, "error", err)
			recordJobProcessed(queue, job.Kind, "error")
		}
		decrementJobInFlight(queue)
	}
}

func (w *RuntimeWorker) process(ctx context.Context, job *Job, lease *Lease) error {
	handler, found := w.lookupHandler(job.Kind)
	if !found {
		// No amount of retrying registers a handler: dead-letter at once.
		return w.handleFailure(ctx, job, lease, &unknownKindError{kind: job.Kind})
	}

	stopRenew, renewDone := w.startLeaseRenewal(ctx, lease)
	execErr := w.executeHandler(ctx, job, handler)
	stopRenew()
	renewErr := <-renewDone
	if renewErr != nil {
		if execErr != nil {
			execErr = errors.Join(execErr, renewErr)
		} else {
			execErr = renewErr
		}
	}

	if execErr != nil {
		return w.handleFailure(ctx, job, lease, execErr)
	}

	if err := w.backend.Ack(ctx, lease); err != nil {
		return fmt.Errorf("ack failed: %w", err)
	}
	recordJobProcessed(job.Queue, job.Kind, "success")
	if w.config.Hook != nil {
		w.config.Hook.OnSuccess(ctx, job)
	}
	return nil
}

type unknownKindError struct {
	kind string
}

func (e *unknownKindError) Error() string {
	return fmt.Sprintf("handler not registered for job kind %q", e.kind)
}

func (e *unknownKindError) FailureMeta() retry.Failure {
	return retry.Failure{StatusCode: 400, Code: "unknown_job_kind"}
}

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic while handling job: %v", e.value)
}

func (w *RuntimeWorker) executeHandler(ctx context.Context, job *Job, handler Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: string(debug.Stack())}
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, w.config.AttemptTimeout)
	defer cancel()
	return handler(runCtx, job)
}

func (w *RuntimeWorker) handleFailure(ctx context.Context, job *Job, lease *Lease, failure error) error {
	meta := retry.AsFailure(failure)
	class := retry.ClassTransient
	if meta != nil {
		class = retry.Classify(*meta)
	}

	if class == retry.ClassRateLimited {
		return w.rescheduleOnRateLimit(ctx, job, lease, meta, failure)
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = retry.DefaultAttempts
	}
	if class == retry.ClassNonRetryable {
		// Provider rejected the request itself: more attempts cannot help.
		maxAttempts = job.Attempt + 1
	}

	nextAttempt := job.Attempt + 1
	if nextAttempt < maxAttempts {
		// The base delay was already jittered at enqueue time, so the
		// doubled delay keeps its spread without a second roll here.
		backoff := retry.NextDelay(job.Backoff, nextAttempt, w.config.MaxBackoff)
		nextRun := time.Now().UTC().Add(backoff)
		if err := w.backend.Nack(ctx, lease, nextRun, failure); err != nil {
			return fmt.Errorf("nack failed: %w", err)
		}
		recordJobRetry(job.Queue, job.Kind)
		recordJobProcessed(job.Queue, job.Kind, "retry")
		return nil
	}

	return w.moveToDeadLetter(ctx, job, lease, class, meta, failure)
}

// rescheduleOnRateLimit postpones the job per the provider hint. The
// attempt counter stays where it is: throttling is the provider's
// state, not a defect in the job.
func (w *RuntimeWorker) rescheduleOnRateLimit(ctx context.Context, job *Job, lease *Lease, meta *retry.Failure, failure error) error {
	hint := retry.DefaultRateLimitDelay
	if meta != nil && meta.RetryAfter > 0 {
		hint = meta.RetryAfter
	}
	if hint > retry.MaxRetryAfter {
		hint = retry.MaxRetryAfter
	}
	nextRun := time.Now().UTC().Add(retry.Jitter(hint))

	if err := w.backend.Reschedule(ctx, lease, nextRun); err != nil {
		return fmt.Errorf("reschedule failed: %w", err)
	}
	recordJobProcessed(job.Queue, job.Kind, "rescheduled")
	w.log.Info("job postponed on provider rate limit",
		"queue", job.Queue, "kind", job.Kind, "job_id", job.ID,
		"retry_after", hint.String(), "error", failure)
	return nil
}

func (w *RuntimeWorker) moveToDeadLetter(ctx context.Context, job *Job, lease *Lease, class retry.Class, meta *retry.Failure, failure error) error {
	statusCode := 0
	code := class.String()
	if meta != nil {
		statusCode = meta.StatusCode
		if strings.TrimSpace(meta.Code) != "" {
			code = meta.Code
		}
	}
	stack := ""
	var pErr *panicError
	if errors.As(failure, &pErr) {
		stack = pErr.stack
	}
	failureMeta := NewFailureMeta(job, statusCode, code, failure, stack)

	if err := w.backend.MoveToDLQ(ctx, lease, failureMeta); err != nil {
		return fmt.Errorf("dlq move failed: %w", err)
	}
	recordJobProcessed(job.Queue, job.Kind, "dlq")
	w.log.Error("job exhausted retry budget",
		"queue", job.Queue, "kind", job.Kind, "job_id", job.ID,
		"attempt", job.Attempt+1, "class", class.String(), "error", failure)

	if w.config.Hook != nil {
		w.config.Hook.OnTerminalFailure(ctx, job, failureMeta)
	}
	if w.config.Alert != nil {
		alertJob := cloneJob(job)
		go w.config.Alert(context.WithoutCancel(ctx), alertJob, failureMeta)
	}
	return nil
}

func (w *RuntimeWorker) lookupHandler(kind string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	handler, ok := w.handlers[strings.TrimSpace(kind)]
	return handler, ok
}

func (w *RuntimeWorker) startLeaseRenewal(ctx context.Context, lease *Lease) (func(), <-chan error) {
	done := make(chan error, 1)
	if lease == nil {
		done <- nil
		close(done)
		return func() {}, done
	}

	renewCtx, cancel := context.WithCancel(ctx)
	interval := w.config.LeaseTTL / 2
	if interval <= 0 {
		interval = w.config.LeaseTTL
	}
	if interval < minWorkerLeaseRenewInterval {
		interval = minWorkerLeaseRenewInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-renewCtx.Done():
				done <- nil
				close(done)
				return
			case <-ticker.C:
				if err := w.backend.Renew(renewCtx, lease, w.config.LeaseTTL); err != nil {
					done <- fmt.Errorf("renew lease failed: %w", err)
					close(done)
					return
				}
			}
		}
	}()

	return cancel, done
}
