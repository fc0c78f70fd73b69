package queue

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexocrm/notify/pkg/retry"
)

const (
	// DefaultLeaseTTL is the default lease duration when reserve does not provide one.
	DefaultLeaseTTL = 30 * time.Second
	// DefaultMaxBackoff caps worker retry delays regardless of backoff shape.
	DefaultMaxBackoff = 5 * time.Minute
	// MaxReplayAttempts caps how many times an entry may leave the DLQ.
	MaxReplayAttempts = 3
)

// Well-known job kinds handled by the notification workers.
const (
	KindSendChat   = "send-chat"
	KindSendSMS    = "send-sms"
	KindSendPush   = "send-push"
	KindSendEmail  = "send-email"
	KindNotifyUser = "notify-user"
)

// Job is the tagged envelope produced at enqueue time. Downstream
// consumers never probe alternative payload fields: kind, payload and
// replay counter are fixed here.
type Job struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Queue         string            `json:"queue"`
	Payload       []byte            `json:"payload"`
	TenantID      string            `json:"tenant_id,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Attempt       int               `json:"attempt"`
	MaxAttempts   int               `json:"max_attempts"`
	ReplayAttempt int               `json:"replay_attempt"`
	Backoff       retry.Backoff     `json:"backoff"`
	RunAt         time.Time         `json:"run_at"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Validate checks the required fields used by runtime behavior.
func (j *Job) Validate() error {
	if j == nil {
		return queueError(ErrValidation, "job is nil")
	}
	if strings.TrimSpace(j.ID) == "" {
		return queueError(ErrValidation, "job id is required")
	}
	if strings.TrimSpace(j.Kind) == "" {
		return queueError(ErrValidation, "job kind is required")
	}
	if strings.TrimSpace(j.Queue) == "" {
		return queueError(ErrValidation, "job queue is required")
	}
	if len(j.Payload) == 0 {
		return queueError(ErrValidation, "job payload is required")
	}
	if j.Attempt < 0 {
		return queueError(ErrValidation, "job attempt must be >= 0")
	}
	if j.MaxAttempts > 0 && j.Attempt > j.MaxAttempts {
		return queueError(ErrValidation, "job attempt cannot exceed max attempts")
	}
	return nil
}

// Lease tracks temporary ownership over a reserved job.
type Lease struct {
	JobID    string
	Token    string
	Queue    string
	ExpireAt time.Time
	Attempt  int
}

// FailureMeta is the structured error metadata stored alongside a
// dead-lettered job. The payload itself is hashed, not copied, so
// secrets embedded in message bodies do not leak into error records.
type FailureMeta struct {
	Code        string    `json:"code"`
	StatusCode  int       `json:"status_code,omitempty"`
	OriginQueue string    `json:"origin_queue"`
	JobKind     string    `json:"job_kind"`
	PayloadHash string    `json:"payload_hash"`
	FailedAt    time.Time `json:"failed_at"`
	Message     string    `json:"message"`
	StackTrace  string    `json:"stack_trace,omitempty"`
}

// NewFailureMeta builds failure metadata for a job and its terminal error.
func NewFailureMeta(job *Job, statusCode int, code string, failure error, stack string) *FailureMeta {
	meta := &FailureMeta{
		Code:        strings.TrimSpace(code),
		StatusCode:  statusCode,
		FailedAt:    time.Now().UTC(),
		StackTrace:  stack,
	}
	if failure != nil {
		meta.Message = failure.Error()
	}
	if job != nil {
		meta.OriginQueue = strings.TrimSpace(job.Queue)
		meta.JobKind = strings.TrimSpace(job.Kind)
		meta.PayloadHash = PayloadHash(job.Payload)
	}
	if meta.Code == "" {
		meta.Code = "unknown"
	}
	return meta
}

// PayloadHash returns the hex SHA-256 digest of a payload.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// DLQEntry represents one dead-letter record. Entries are created only
// by the failure hook and deleted only after a confirmed replay.
type DLQEntry struct {
	ID            string       `json:"id"`
	OriginalJobID string       `json:"original_job_id"`
	JobKind       string       `json:"job_kind"`
	OriginQueue   string       `json:"origin_queue"`
	Job           *Job         `json:"job"`
	Error         *FailureMeta `json:"error"`
	FailedAt      time.Time    `json:"failed_at"`
}

// Counts summarizes the state of one queue and its DLQ.
type Counts struct {
	Waiting int64 `json:"waiting"`
	Delayed int64 `json:"delayed"`
	Failed  int64 `json:"failed"`
	Total   int64 `json:"total"`
}

// Backend defines a reliable queue backend contract with
// reserve/ack/nack semantics, pause control and DLQ access.
type Backend interface {
	Enqueue(ctx context.Context, job *Job) error
	Reserve(ctx context.Context, queue string, leaseFor time.Duration) (*Job, *Lease, error)
	Ack(ctx context.Context, lease *Lease) error
	Nack(ctx context.Context, lease *Lease, nextRunAt time.Time, reason error) error
	// Reschedule requeues the leased job for a later run without
	// consuming a retry attempt (provider rate-limit hint handling).
	Reschedule(ctx context.Context, lease *Lease, nextRunAt time.Time) error
	Renew(ctx context.Context, lease *Lease, leaseFor time.Duration) error
	MoveToDLQ(ctx context.Context, lease *Lease, meta *FailureMeta) error
	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error
	Depth(ctx context.Context, queue string) (int64, error)
	Counts(ctx context.Context, queue string) (Counts, error)
	ListDLQ(ctx context.Context, queue string, limit int) ([]*DLQEntry, error)
	RemoveDLQ(ctx context.Context, queue string, entryID string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Handler processes reserved jobs.
type Handler func(ctx context.Context, job *Job) error

// MarshalPayload marshals a payload value using the queue JSON conventions.
func MarshalPayload(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(queueError(ErrValidation, "marshal job payload failed"), err)
	}
	return data, nil
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	copyJob := *job
	copyJob.Payload = cloneBytes(job.Payload)
	copyJob.Headers = cloneHeaders(job.Headers)
	return &copyJob
}

func cloneLease(lease *Lease) *Lease {
	if lease == nil {
		return nil
	}
	copyLease := *lease
	return &copyLease
}

func cloneBytes(input []byte) []byte {
	if len(input) == 0 {
		return nil
	}
	out := make([]byte, len(input))
	copy(out, input)
	return out
}

func cloneHeaders(input map[string]string) map[string]string {
	if len(input) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}

func randomToken() string {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(raw)
}

func queueError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
