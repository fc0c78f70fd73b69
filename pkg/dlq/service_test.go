package dlq

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/queue"
)

type testLogger struct{}

func (l *testLogger) Debug(string, ...any) {}
func (l *testLogger) Info(string, ...any)  {}
func (l *testLogger) Warn(string, ...any)  {}
func (l *testLogger) Error(string, ...any) {}
func (l *testLogger) With(...any) logger.Logger {
	return l
}

type memoryAuditStore struct {
	records []AuditRecord
	fail    bool
}

func (s *memoryAuditStore) Save(_ context.Context, record AuditRecord) error {
	if s.fail {
		return errors.New("audit store unavailable")
	}
	s.records = append(s.records, record)
	return nil
}

func newTestService(t *testing.T, backend queue.Backend, audit AuditStore) (*Service, string) {
	t.Helper()
	auditPath := filepath.Join(t.TempDir(), "replay-audit.log")
	fallback, err := NewFileAppender(auditPath)
	if err != nil {
		t.Fatalf("new file appender: %v", err)
	}
	service, err := NewService(backend, audit, fallback, nil, ServiceConfig{
		Queues: []string{"notifications"},
		AllowedKinds: map[string][]string{
			"notifications": {
				queue.KindSendChat, queue.KindSendSMS, queue.KindSendPush,
				queue.KindSendEmail, queue.KindNotifyUser,
			},
		},
	}, &testLogger{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, auditPath
}

func deadLetter(t *testing.T, backend *queue.MemoryBackend, job *queue.Job, code string, failedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := backend.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue %s: %v", job.ID, err)
	}
	reserveCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	reserved, lease, err := backend.Reserve(reserveCtx, job.Queue, time.Minute)
	if err != nil {
		t.Fatalf("reserve %s: %v", job.ID, err)
	}
	meta := queue.NewFailureMeta(reserved, 503, code, errors.New("delivery failed"), "")
	meta.FailedAt = failedAt
	if err := backend.MoveToDLQ(ctx, lease, meta); err != nil {
		t.Fatalf("move to dlq %s: %v", job.ID, err)
	}
}

func chatJob(id string) *queue.Job {
	return &queue.Job{
		ID: id, Kind: queue.KindSendChat, Queue: "notifications",
		Payload: []byte(`{"to":"+5511999999999","message":"hi"}`),
	}
}

func TestReplay_FiltersByKindCodeAndWindow(t *testing.T) {
	backend := queue.NewMemoryBackend()
	audit := &memoryAuditStore{}
	service, _ := newTestService(t, backend, audit)

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	// Ten entries: three match kind=send-chat, code=upstream_down inside
	// the window; the rest differ in one dimension.
	for _, spec := range []struct {
		id       string
		kind     string
		code     string
		failedAt time.Time
	}{
		{"m-1", queue.KindSendChat, "upstream_down", base.Add(time.Minute)},
		{"m-2", queue.KindSendChat, "upstream_down", base.Add(2 * time.Minute)},
		{"m-3", queue.KindSendChat, "upstream_down", base.Add(3 * time.Minute)},
		{"x-kind-1", queue.KindSendEmail, "upstream_down", base.Add(time.Minute)},
		{"x-kind-2", queue.KindSendSMS, "upstream_down", base.Add(time.Minute)},
		{"x-code-1", queue.KindSendChat, "invalid_destination", base.Add(time.Minute)},
		{"x-code-2", queue.KindSendChat, "smtp_error", base.Add(time.Minute)},
		{"x-time-1", queue.KindSendChat, "upstream_down", base.Add(-time.Hour)},
		{"x-time-2", queue.KindSendChat, "upstream_down", base.Add(2 * time.Hour)},
		{"x-time-3", queue.KindSendChat, "upstream_down", base.Add(3 * time.Hour)},
	} {
		job := chatJob(spec.id)
		job.Kind = spec.kind
		deadLetter(t, backend, job, spec.code, spec.failedAt)
	}

	result, err := service.Replay(context.Background(), ReplayRequest{
		Queue: "notifications",
		Limit: MaxReplayBatch,
		Filters: Filters{
			JobKind:   queue.KindSendChat,
			ErrorCode: "upstream_down",
			From:      base,
			To:        base.Add(time.Hour),
		},
		Actor: "operator@example.com",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if result.TotalFiltered != 3 || result.TotalSelected != 3 || result.Reprocessed != 3 {
		t.Fatalf("expected 3/3/3, got filtered=%d selected=%d reprocessed=%d",
			result.TotalFiltered, result.TotalSelected, result.Reprocessed)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	// Matching entries left the DLQ; the rest stayed.
	remaining, err := backend.ListDLQ(context.Background(), "notifications", 100)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(remaining) != 7 {
		t.Fatalf("expected 7 non-matching entries to remain, got %d", len(remaining))
	}
}

func TestReplay_ReplaysInFailureOrderAndResetsAttempts(t *testing.T) {
	backend := queue.NewMemoryBackend()
	service, _ := newTestService(t, backend, &memoryAuditStore{})

	base := time.Now().UTC().Add(-time.Hour)
	for idx, id := range []string{"first", "second", "third"} {
		job := chatJob(id)
		job.Attempt = 4
		job.MaxAttempts = 5
		deadLetter(t, backend, job, "upstream_down", base.Add(time.Duration(idx)*time.Minute))
	}

	result, err := service.Replay(context.Background(), ReplayRequest{Queue: "notifications", Limit: 2})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.TotalFiltered != 3 || result.TotalSelected != 2 {
		t.Fatalf("limit must bound selection: %+v", result)
	}

	// The oldest two failures were re-enqueued, fresh and replay-tagged.
	for _, wantID := range []string{"first", "second"} {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		job, lease, err := backend.Reserve(ctx, "notifications", time.Minute)
		cancel()
		if err != nil {
			t.Fatalf("reserve replayed job: %v", err)
		}
		if job.ID != wantID {
			t.Fatalf("expected %s, got %s", wantID, job.ID)
		}
		if job.Attempt != 0 {
			t.Fatalf("replay must reset the attempt counter, got %d", job.Attempt)
		}
		if job.ReplayAttempt != 1 {
			t.Fatalf("expected replay attempt 1, got %d", job.ReplayAttempt)
		}
		if err := backend.Ack(context.Background(), lease); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}
}

func TestReplay_SkipAccounting(t *testing.T) {
	backend := queue.NewMemoryBackend()
	service, _ := newTestService(t, backend, &memoryAuditStore{})
	base := time.Now().UTC().Add(-time.Hour)

	// Kind outside the allow-list.
	invalid := chatJob("bad-kind")
	invalid.Kind = "send-fax"
	deadLetter(t, backend, invalid, "upstream_down", base)

	// Replay budget already exhausted.
	exhausted := chatJob("max-replay")
	exhausted.ReplayAttempt = queue.MaxReplayAttempts
	deadLetter(t, backend, exhausted, "upstream_down", base.Add(time.Minute))

	// One healthy entry.
	deadLetter(t, backend, chatJob("ok"), "upstream_down", base.Add(2*time.Minute))

	result, err := service.Replay(context.Background(), ReplayRequest{Queue: "notifications", Limit: MaxReplayBatch})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if result.SkippedInvalidJobKind != 1 {
		t.Fatalf("expected one invalid-kind skip, got %d", result.SkippedInvalidJobKind)
	}
	if result.SkippedMaxAttempt != 1 {
		t.Fatalf("expected one max-attempt skip, got %d", result.SkippedMaxAttempt)
	}
	if result.Reprocessed != 1 {
		t.Fatalf("expected one reprocessed job, got %d", result.Reprocessed)
	}
	if result.Status != StatusPartial {
		t.Fatalf("expected partial, got %s", result.Status)
	}
	if len(result.SampleJobs) != 1 || result.SampleJobs[0] != "ok" {
		t.Fatalf("unexpected sample jobs: %v", result.SampleJobs)
	}

	// Skipped entries stay in the DLQ for later inspection.
	remaining, err := backend.ListDLQ(context.Background(), "notifications", 100)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected skipped entries to remain, got %d", len(remaining))
	}
}

func TestReplay_EmptySelectionIsSuccess(t *testing.T) {
	backend := queue.NewMemoryBackend()
	audit := &memoryAuditStore{}
	service, auditPath := newTestService(t, backend, audit)

	result, err := service.Replay(context.Background(), ReplayRequest{Queue: "notifications", Limit: 0})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("an empty selection completes successfully, got %s", result.Status)
	}
	if result.TotalFiltered != 0 || result.Reprocessed != 0 {
		t.Fatalf("expected zero counters, got %+v", result)
	}

	// Even a no-op replay leaves an audit trail, in both sinks.
	if len(audit.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(audit.records))
	}
	lines := readAuditLines(t, auditPath)
	if len(lines) != 1 {
		t.Fatalf("expected one audit file line, got %d", len(lines))
	}
}

func TestReplay_AuditStoreFailureKeepsFileCopy(t *testing.T) {
	backend := queue.NewMemoryBackend()
	audit := &memoryAuditStore{fail: true}
	service, auditPath := newTestService(t, backend, audit)

	deadLetter(t, backend, chatJob("job-1"), "upstream_down", time.Now().UTC().Add(-time.Minute))

	result, err := service.Replay(context.Background(), ReplayRequest{Queue: "notifications", Limit: 10})
	if err == nil {
		t.Fatal("expected audit persistence error")
	}
	// The replay itself succeeded; only the durable audit write failed.
	if result.Reprocessed != 1 || result.Status != StatusSuccess {
		t.Fatalf("replay outcome must survive the audit failure: %+v", result)
	}

	lines := readAuditLines(t, auditPath)
	if len(lines) != 1 {
		t.Fatalf("expected the file copy to be retained, got %d lines", len(lines))
	}
	var record AuditRecord
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	if record.QueueName != "notifications" || record.Reprocessed != 1 {
		t.Fatalf("unexpected audit record: %+v", record)
	}
	if record.ActionID == "" || record.Actor != "unknown" {
		t.Fatalf("expected generated action id and unknown actor: %+v", record)
	}
}

func TestStatus_ReportsConfiguredQueues(t *testing.T) {
	backend := queue.NewMemoryBackend()
	service, _ := newTestService(t, backend, &memoryAuditStore{})
	ctx := context.Background()

	if err := backend.Enqueue(ctx, chatJob("waiting-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	deadLetter(t, backend, chatJob("failed-1"), "upstream_down", time.Now().UTC())

	counts, err := service.Status(ctx, "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	got, ok := counts["notifications"]
	if !ok {
		t.Fatal("expected counts for the configured queue")
	}
	if got.Waiting != 1 || got.Failed != 1 || got.Total != 2 {
		t.Fatalf("unexpected counts: %+v", got)
	}
}

func readAuditLines(t *testing.T, path string) []string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan audit file: %v", err)
	}
	return lines
}
