package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/retry"
)

// Producer enqueues job payloads with a retry decision computed per
// enqueue. Enqueue failures surface synchronously to the caller; once
// accepted, delivery is fire-and-forget.
type Producer struct {
	backend Backend
	log     logger.Logger
}

// NewProducer creates a producer over a queue backend.
func NewProducer(backend Backend, log logger.Logger) (*Producer, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Producer{backend: backend, log: log}, nil
}

// EnqueueOptions carries the optional attributes of one enqueue.
type EnqueueOptions struct {
	TenantID      string
	Headers       map[string]string
	ReplayAttempt int
	RunAt         time.Time
	// ErrorMeta classifies the failure that motivated this enqueue,
	// shaping the job's retry budget. Nil selects the transient policy.
	ErrorMeta *retry.Failure
}

// Enqueue submits a payload to a named queue under a job kind.
func (p *Producer) Enqueue(ctx context.Context, queueName, kind string, payload any, opts EnqueueOptions) (*Job, error) {
	if p == nil || p.backend == nil {
		return nil, errors.New("producer is not initialized")
	}
	queueName = strings.TrimSpace(queueName)
	if queueName == "" {
		return nil, queueError(ErrValidation, "queue name is required")
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, queueError(ErrValidation, "job kind is required")
	}

	encoded, err := MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	decision := retry.Decide(opts.ErrorMeta)
	now := time.Now().UTC()
	runAt := opts.RunAt.UTC()
	if runAt.IsZero() {
		runAt = now
	}

	job := &Job{
		ID:            uuid.NewString(),
		Kind:          kind,
		Queue:         queueName,
		Payload:       encoded,
		TenantID:      strings.TrimSpace(opts.TenantID),
		Headers:       cloneHeaders(opts.Headers),
		Attempt:       0,
		MaxAttempts:   decision.Attempts,
		ReplayAttempt: opts.ReplayAttempt,
		Backoff:       decision.Backoff,
		RunAt:         runAt,
		CreatedAt:     now,
	}

	if err := p.backend.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	p.log.Debug("job enqueued", "queue", queueName, "kind", kind, "job_id", job.ID, "attempts", job.MaxAttempts)
	return job, nil
}
