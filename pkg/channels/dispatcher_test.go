package channels

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/nexocrm/notify/pkg/queue"
)

type memoryNotificationStore struct {
	rows []Notification
}

func (s *memoryNotificationStore) Insert(_ context.Context, row Notification) error {
	s.rows = append(s.rows, row)
	return nil
}

func payloadJob(kind string, payload string) *queue.Job {
	return &queue.Job{
		ID: "job-1", Kind: kind, Queue: "notifications",
		TenantID: "tenant-1", Payload: []byte(payload),
	}
}

func assertSendError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected SendError, got %v", err)
	}
	if sendErr.StatusCode != status || sendErr.Code != code {
		t.Fatalf("expected %d/%s, got %d/%s", status, code, sendErr.StatusCode, sendErr.Code)
	}
}

func TestDispatcher_RegisterBindsAllKinds(t *testing.T) {
	dispatcher, err := NewDispatcher(nil, nil, nil, nil, nil, &channelTestLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	backend := queue.NewMemoryBackend()
	worker, err := queue.NewWorker(backend, &channelTestLogger{}, queue.WorkerConfig{
		Queues: []string{"notifications"},
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := dispatcher.Register(worker); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestDispatcher_UnconfiguredChannelIsNonRetryable(t *testing.T) {
	dispatcher, err := NewDispatcher(nil, nil, nil, nil, nil, &channelTestLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	err = dispatcher.HandleSendChat(context.Background(), payloadJob(queue.KindSendChat,
		`{"to":"+5511988887777","message":"hi"}`))
	assertSendError(t, err, http.StatusUnprocessableEntity, "channel_not_configured")
}

func TestDispatcher_MalformedPayloadIsNonRetryable(t *testing.T) {
	store := &memoryNotificationStore{}
	dispatcher, err := NewDispatcher(nil, nil, nil, nil, store, &channelTestLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	err = dispatcher.HandleNotifyUser(context.Background(), payloadJob(queue.KindNotifyUser, `{not json`))
	assertSendError(t, err, http.StatusBadRequest, "malformed_payload")

	err = dispatcher.HandleNotifyUser(context.Background(), payloadJob(queue.KindNotifyUser, `{"title":"no user"}`))
	assertSendError(t, err, http.StatusBadRequest, "malformed_payload")

	err = dispatcher.HandleNotifyUser(context.Background(), payloadJob(queue.KindNotifyUser, `{"userId":"u-1"}`))
	assertSendError(t, err, http.StatusBadRequest, "malformed_payload")
}

func TestDispatcher_NotifyUserPersistsRow(t *testing.T) {
	store := &memoryNotificationStore{}
	dispatcher, err := NewDispatcher(nil, nil, nil, nil, store, &channelTestLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	err = dispatcher.HandleNotifyUser(context.Background(), payloadJob(queue.KindNotifyUser,
		`{"userId":"u-1","title":"Deal won","body":"Deal d-9 closed","category":"deals"}`))
	if err != nil {
		t.Fatalf("handle notify-user: %v", err)
	}

	if len(store.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(store.rows))
	}
	row := store.rows[0]
	if row.TenantID != "tenant-1" || row.UserID != "u-1" || row.Category != "deals" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestDispatcher_ChatValidationBeforeProviderCall(t *testing.T) {
	// A configured client is never reached when the payload is invalid.
	client := newWhatsAppClient(t, "http://unused.invalid", staticCreds())
	dispatcher, err := NewDispatcher(client, nil, nil, nil, nil, &channelTestLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	err = dispatcher.HandleSendChat(context.Background(), payloadJob(queue.KindSendChat, `{"to":"","message":"hi"}`))
	assertSendError(t, err, http.StatusBadRequest, "malformed_payload")
}
