package notifier

import (
	"context"
	"encoding/json"
	"strings"
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

func newTestNotifier(t *testing.T, backend *queue.MemoryBackend, admin Targets) *Notifier {
	t.Helper()
	producer, err := queue.NewProducer(backend, &testLogger{})
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	n, err := New(producer, Config{QueueName: "notifications", Admin: admin}, &testLogger{})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	return n
}

func drainKinds(t *testing.T, backend *queue.MemoryBackend, expected int) map[string]*queue.Job {
	t.Helper()
	jobs := map[string]*queue.Job{}
	for idx := 0; idx < expected; idx++ {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		job, lease, err := backend.Reserve(ctx, "notifications", time.Minute)
		cancel()
		if err != nil {
			t.Fatalf("reserve alert job %d: %v", idx, err)
		}
		jobs[job.Kind] = job
		if err := backend.Ack(context.Background(), lease); err != nil {
			t.Fatalf("ack: %v", err)
		}
	}
	return jobs
}

func TestNotifyByPolicy_FansOutAcrossChannels(t *testing.T) {
	backend := queue.NewMemoryBackend()
	n := newTestNotifier(t, backend, Targets{})

	targets := Targets{
		Phone:     "+5511988887777",
		PushToken: "device-token",
		Email:     "ops@example.com",
		UserID:    "user-42",
	}
	n.NotifyByPolicy(context.Background(), PolicySLABreach, targets, Message{
		Title: "SLA breach",
		Body:  "Work item wi-1 breached its deadline",
	}, map[string]string{"workItemId": "wi-1"})

	jobs := drainKinds(t, backend, 5)
	for _, kind := range []string{
		queue.KindSendChat, queue.KindSendSMS, queue.KindSendPush,
		queue.KindSendEmail, queue.KindNotifyUser,
	} {
		if _, ok := jobs[kind]; !ok {
			t.Fatalf("expected an enqueued %s job", kind)
		}
	}

	var payload struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(jobs[queue.KindSendChat].Payload, &payload); err != nil {
		t.Fatalf("decode chat payload: %v", err)
	}
	if payload.To != "+5511988887777" {
		t.Fatalf("unexpected chat target: %s", payload.To)
	}
	if !strings.Contains(payload.Message, "workItemId: wi-1") {
		t.Fatalf("alert context missing from body: %q", payload.Message)
	}
}

func TestNotifyByPolicy_SkipsChannelsWithoutTargets(t *testing.T) {
	backend := queue.NewMemoryBackend()
	n := newTestNotifier(t, backend, Targets{})

	// Only a phone: push, email and in-app legs of the breach policy
	// have no destination and are skipped.
	n.NotifyByPolicy(context.Background(), PolicySLABreach, Targets{Phone: "+5511988887777"}, Message{
		Title: "SLA breach", Body: "body",
	}, nil)

	counts, err := backend.Counts(context.Background(), "notifications")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Waiting != 2 {
		t.Fatalf("expected chat and sms only, got %d jobs", counts.Waiting)
	}
}

func TestNotifyByPolicy_UnknownPolicyEnqueuesNothing(t *testing.T) {
	backend := queue.NewMemoryBackend()
	n := newTestNotifier(t, backend, Targets{})

	n.NotifyByPolicy(context.Background(), "no-such-policy", Targets{Phone: "+1555"}, Message{Title: "t", Body: "b"}, nil)

	counts, err := backend.Counts(context.Background(), "notifications")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Waiting != 0 {
		t.Fatalf("expected no jobs, got %d", counts.Waiting)
	}
}

func TestAdminAlert_DroppedWithoutAdminIdentity(t *testing.T) {
	backend := queue.NewMemoryBackend()
	n := newTestNotifier(t, backend, Targets{})

	n.AdminAlert(context.Background(), PolicyBreakerOpen, Message{Title: "t", Body: "b"}, nil)

	counts, err := backend.Counts(context.Background(), "notifications")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Waiting != 0 {
		t.Fatalf("unconfigured admin must drop alerts, got %d jobs", counts.Waiting)
	}
}

func TestAdminAlert_UsesConfiguredIdentity(t *testing.T) {
	backend := queue.NewMemoryBackend()
	n := newTestNotifier(t, backend, Targets{Phone: "+5511988887777", UserID: "admin-1"})

	n.AdminAlert(context.Background(), PolicyBreakerOpen, Message{Title: "Breaker", Body: "queue paused"}, nil)

	jobs := drainKinds(t, backend, 2)
	if _, ok := jobs[queue.KindSendChat]; !ok {
		t.Fatal("expected a chat alert")
	}
	if _, ok := jobs[queue.KindNotifyUser]; !ok {
		t.Fatal("expected an in-app alert")
	}
}

func TestTruncateErrorContext(t *testing.T) {
	short := "connection refused"
	if got := TruncateErrorContext(short); got != short {
		t.Fatalf("short messages must pass through, got %q", got)
	}

	long := strings.Repeat("x", 500)
	got := TruncateErrorContext(long)
	if len([]rune(got)) != maxAlertErrorContext {
		t.Fatalf("expected %d runes, got %d", maxAlertErrorContext, len([]rune(got)))
	}

	// Rune-safe: multi-byte characters are never split.
	unicode := strings.Repeat("ã", 200)
	got = TruncateErrorContext(unicode)
	if len([]rune(got)) != maxAlertErrorContext || !strings.HasSuffix(got, "ã") {
		t.Fatalf("expected rune-safe truncation, got %d runes", len([]rune(got)))
	}
}
