package dlq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexocrm/notify/pkg/notifier"
	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/queue"
)

const (
	// MaxReplayBatch bounds how many entries one replay call re-enqueues.
	MaxReplayBatch = 200
	// HighBacklogThreshold fires an early-warning alert when the
	// pre-limit filtered population is at least this large.
	HighBacklogThreshold = 200

	// replayScanLimit bounds the DLQ listing one replay call works from.
	replayScanLimit = 10000
)

// Replay outcome statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

const maxSampleJobs = 5

// ReplayRequest describes one operator-initiated replay.
type ReplayRequest struct {
	Queue    string
	Limit    int
	Filters  Filters
	Actor    string
	ActionID string
}

// ReplayResult is the per-skip-reason accounting returned to the
// operator and persisted in the audit record.
type ReplayResult struct {
	ActionID              string   `json:"actionId"`
	Actor                 string   `json:"actor"`
	Queue                 string   `json:"queue"`
	TotalFiltered         int      `json:"totalFiltered"`
	TotalSelected         int      `json:"totalSelected"`
	Reprocessed           int      `json:"reprocessed"`
	SkippedNoJobKind      int      `json:"skippedNoJobKind"`
	SkippedNoPayload      int      `json:"skippedNoPayload"`
	SkippedInvalidJobKind int      `json:"skippedInvalidJobKind"`
	SkippedMaxAttempt     int      `json:"skippedMaxAttempt"`
	Status                string   `json:"status"`
	SampleJobs            []string `json:"sampleJobs"`
}

// ServiceConfig configures the replay service.
type ServiceConfig struct {
	// Queues are the queues Status reports on when no queue is named.
	Queues []string
	// AllowedKinds is the per-queue job-kind allow-list. Queues with no
	// entry accept any kind.
	AllowedKinds map[string][]string
	// DefaultKinds resolves a kind for entries that carry none.
	DefaultKinds map[string]string
}

// Service inspects dead-letter queues and replays bounded, filtered
// batches back onto the live queue with an audit trail.
type Service struct {
	backend  queue.Backend
	audit    AuditStore
	fallback *FileAppender
	alerts   *notifier.Notifier
	log      logger.Logger
	cfg      ServiceConfig

	allowed map[string]map[string]struct{}
}

// NewService wires the replay service.
func NewService(backend queue.Backend, audit AuditStore, fallback *FileAppender, alerts *notifier.Notifier, cfg ServiceConfig, log logger.Logger) (*Service, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if fallback == nil {
		return nil, errors.New("audit file appender is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	allowed := map[string]map[string]struct{}{}
	for queueName, kinds := range cfg.AllowedKinds {
		set := map[string]struct{}{}
		for _, kind := range kinds {
			kind = strings.TrimSpace(kind)
			if kind != "" {
				set[kind] = struct{}{}
			}
		}
		if len(set) > 0 {
			allowed[strings.TrimSpace(queueName)] = set
		}
	}

	return &Service{
		backend:  backend,
		audit:    audit,
		fallback: fallback,
		alerts:   alerts,
		log:      log,
		cfg:      cfg,
		allowed:  allowed,
	}, nil
}

// Status returns queue and DLQ counts for one queue, or for every
// configured queue when queueName is empty.
func (s *Service) Status(ctx context.Context, queueName string) (map[string]queue.Counts, error) {
	queueName = strings.TrimSpace(queueName)
	names := s.cfg.Queues
	if queueName != "" {
		names = []string{queueName}
	}
	if len(names) == 0 {
		return nil, errors.New("no queues configured")
	}

	out := make(map[string]queue.Counts, len(names))
	for _, name := range names {
		counts, err := s.backend.Counts(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("counts for queue %s failed: %w", name, err)
		}
		out[name] = counts
	}
	return out, nil
}

// Replay drains up to limit filtered entries from the queue's DLQ back
// onto the live queue, in DLQ FIFO order, and persists an audit record.
// The returned result is valid even when the error is non-nil (audit
// persistence failure).
func (s *Service) Replay(ctx context.Context, req ReplayRequest) (ReplayResult, error) {
	queueName := strings.TrimSpace(req.Queue)
	if queueName == "" {
		return ReplayResult{}, errors.New("queue is required")
	}
	limit := req.Limit
	if limit < 0 {
		limit = 0
	}
	if limit > MaxReplayBatch {
		limit = MaxReplayBatch
	}

	result := ReplayResult{
		ActionID:   strings.TrimSpace(req.ActionID),
		Actor:      strings.TrimSpace(req.Actor),
		Queue:      queueName,
		SampleJobs: []string{},
	}
	if result.ActionID == "" {
		result.ActionID = uuid.NewString()
	}
	if result.Actor == "" {
		result.Actor = "unknown"
	}

	entries, err := s.backend.ListDLQ(ctx, queueName, replayScanLimit)
	if err != nil {
		return result, fmt.Errorf("list dlq failed: %w", err)
	}

	filtered := filterEntries(entries, req.Filters)
	result.TotalFiltered = len(filtered)
	if result.TotalFiltered >= HighBacklogThreshold {
		s.alertHighBacklog(ctx, queueName, result)
	}

	selected := filtered
	if len(selected) > limit {
		selected = selected[:limit]
	}
	result.TotalSelected = len(selected)

	for _, entry := range selected {
		s.replayEntry(ctx, queueName, entry, &result)
	}

	switch {
	case result.Reprocessed == result.TotalSelected:
		result.Status = StatusSuccess
	case result.Reprocessed == 0:
		result.Status = StatusFailed
	default:
		result.Status = StatusPartial
	}
	recordReplay(queueName, result.Status, result.Reprocessed)

	auditErr := s.persistAudit(ctx, req.Filters, result)
	s.alertCompletion(ctx, result)
	return result, auditErr
}

func (s *Service) replayEntry(ctx context.Context, queueName string, entry *queue.DLQEntry, result *ReplayResult) {
	if entry == nil {
		return
	}
	if entry.Job == nil || len(entry.Job.Payload) == 0 {
		result.SkippedNoPayload++
		return
	}

	kind := strings.TrimSpace(entry.JobKind)
	if kind == "" {
		kind = strings.TrimSpace(entry.Job.Kind)
	}
	if kind == "" {
		kind = strings.TrimSpace(s.cfg.DefaultKinds[queueName])
	}
	if kind == "" {
		result.SkippedNoJobKind++
		return
	}
	if allowList, ok := s.allowed[queueName]; ok {
		if _, valid := allowList[kind]; !valid {
			result.SkippedInvalidJobKind++
			return
		}
	}
	if entry.Job.ReplayAttempt+1 > queue.MaxReplayAttempts {
		result.SkippedMaxAttempt++
		return
	}

	job := *entry.Job
	job.Kind = kind
	job.Queue = queueName
	job.ReplayAttempt++
	job.Attempt = 0
	job.RunAt = time.Now().UTC()

	if err := s.backend.Enqueue(ctx, &job); err != nil {
		s.log.Error("dlq replay enqueue failed", "queue", queueName, "entry_id", entry.ID, "job_id", job.ID, "error", err)
		return
	}

	// Remove only after the re-enqueue is confirmed: a removal failure
	// may duplicate the job, never lose it.
	if err := s.backend.RemoveDLQ(ctx, queueName, entry.ID); err != nil {
		s.log.Warn("dlq entry removal failed after replay", "queue", queueName, "entry_id", entry.ID, "job_id", job.ID, "error", err)
	}

	result.Reprocessed++
	if len(result.SampleJobs) < maxSampleJobs {
		result.SampleJobs = append(result.SampleJobs, job.ID)
	}
}

func (s *Service) persistAudit(ctx context.Context, filters Filters, result ReplayResult) error {
	record := AuditRecord{
		ActionID:              result.ActionID,
		Actor:                 result.Actor,
		QueueName:             result.Queue,
		Filters:               filters,
		TotalFiltered:         result.TotalFiltered,
		TotalSelected:         result.TotalSelected,
		Reprocessed:           result.Reprocessed,
		SkippedNoJobKind:      result.SkippedNoJobKind,
		SkippedNoPayload:      result.SkippedNoPayload,
		SkippedInvalidJobKind: result.SkippedInvalidJobKind,
		SkippedMaxAttempt:     result.SkippedMaxAttempt,
		Status:                result.Status,
		SampleJobs:            result.SampleJobs,
		CreatedAt:             time.Now().UTC(),
	}

	// Dual write: the file copy is unconditional forensic redundancy.
	if err := s.fallback.Append(record); err != nil {
		s.log.Error("audit file append failed", "action_id", record.ActionID, "error", err)
	}

	if s.audit == nil {
		return nil
	}
	if err := s.audit.Save(ctx, record); err != nil {
		s.log.Error("audit store write failed, file copy retained", "action_id", record.ActionID, "error", err)
		return fmt.Errorf("persist replay audit failed: %w", err)
	}
	return nil
}

func (s *Service) alertHighBacklog(ctx context.Context, queueName string, result ReplayResult) {
	s.log.Warn("dlq replay filter matched a large population",
		"queue", queueName, "total_filtered", result.TotalFiltered, "action_id", result.ActionID)
	if s.alerts == nil {
		return
	}
	s.alerts.AdminAlert(ctx, notifier.PolicyReplayBacklog, notifier.Message{
		Title: "DLQ replay high backlog",
		Body:  fmt.Sprintf("Replay filter on queue %s matched %d entries", queueName, result.TotalFiltered),
	}, map[string]string{
		"queue":         queueName,
		"totalFiltered": fmt.Sprintf("%d", result.TotalFiltered),
		"actionId":      result.ActionID,
	})
}

func (s *Service) alertCompletion(ctx context.Context, result ReplayResult) {
	if s.alerts == nil {
		return
	}
	s.alerts.AdminAlert(ctx, notifier.PolicyReplayDone, notifier.Message{
		Title: "DLQ replay completed",
		Body:  fmt.Sprintf("Replay on queue %s finished with status %s", result.Queue, result.Status),
	}, map[string]string{
		"actionId":      result.ActionID,
		"actor":         result.Actor,
		"queue":         result.Queue,
		"status":        result.Status,
		"totalFiltered": fmt.Sprintf("%d", result.TotalFiltered),
		"totalSelected": fmt.Sprintf("%d", result.TotalSelected),
		"reprocessed":   fmt.Sprintf("%d", result.Reprocessed),
	})
}

func filterEntries(entries []*queue.DLQEntry, filters Filters) []*queue.DLQEntry {
	jobKind := strings.TrimSpace(filters.JobKind)
	errorCode := strings.TrimSpace(filters.ErrorCode)
	hasTimeFilter := !filters.From.IsZero() || !filters.To.IsZero()

	out := make([]*queue.DLQEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if jobKind != "" && resolveKind(entry) != jobKind {
			continue
		}
		if errorCode != "" && (entry.Error == nil || entry.Error.Code != errorCode) {
			continue
		}
		if hasTimeFilter {
			// An entry with no failure timestamp fails any time filter.
			if entry.FailedAt.IsZero() {
				continue
			}
			if !filters.From.IsZero() && entry.FailedAt.Before(filters.From) {
				continue
			}
			if !filters.To.IsZero() && entry.FailedAt.After(filters.To) {
				continue
			}
		}
		out = append(out, entry)
	}
	return out
}

func resolveKind(entry *queue.DLQEntry) string {
	kind := strings.TrimSpace(entry.JobKind)
	if kind == "" && entry.Job != nil {
		kind = strings.TrimSpace(entry.Job.Kind)
	}
	return kind
}
