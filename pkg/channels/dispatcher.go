package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/queue"
)

// ChatPayload is the send-chat job payload.
type ChatPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SMSPayload is the send-sms job payload.
type SMSPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// PushPayload is the send-push job payload.
type PushPayload struct {
	DeviceToken string            `json:"deviceToken"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

// EmailPayload is the send-email job payload.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotifyUserPayload is the notify-user job payload: an in-app
// notification row, no external provider involved.
type NotifyUserPayload struct {
	UserID   string `json:"userId"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category,omitempty"`
}

// Dispatcher binds job kinds to provider clients. Payload validation
// happens before any external call; a malformed payload is a
// non-retryable failure and dead-letters on the first attempt.
type Dispatcher struct {
	whatsapp      *WhatsAppClient
	sms           *TwilioClient
	push          *FCMClient
	email         *EmailClient
	notifications NotificationStore
	log           logger.Logger
}

// NewDispatcher creates a dispatcher. Clients may be nil when a channel
// is not configured for the deployment; jobs for that kind fail
// non-retryably.
func NewDispatcher(
	whatsapp *WhatsAppClient,
	sms *TwilioClient,
	push *FCMClient,
	email *EmailClient,
	notifications NotificationStore,
	log logger.Logger,
) (*Dispatcher, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Dispatcher{
		whatsapp:      whatsapp,
		sms:           sms,
		push:          push,
		email:         email,
		notifications: notifications,
		log:           log,
	}, nil
}

// Register binds every configured handler on a worker.
func (d *Dispatcher) Register(worker queue.Worker) error {
	bindings := map[string]queue.Handler{
		queue.KindSendChat:   d.HandleSendChat,
		queue.KindSendSMS:    d.HandleSendSMS,
		queue.KindSendPush:   d.HandleSendPush,
		queue.KindSendEmail:  d.HandleSendEmail,
		queue.KindNotifyUser: d.HandleNotifyUser,
	}
	for kind, handler := range bindings {
		if err := worker.Register(kind, handler); err != nil {
			return err
		}
	}
	return nil
}

// HandleSendChat delivers a chat message over WhatsApp.
func (d *Dispatcher) HandleSendChat(ctx context.Context, job *queue.Job) error {
	if d.whatsapp == nil {
		return channelUnavailableError("whatsapp")
	}
	var payload ChatPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.To) == "" || strings.TrimSpace(payload.Message) == "" {
		return malformedPayloadError("whatsapp", "to and message are required")
	}
	return d.whatsapp.SendText(ctx, job.TenantID, payload.To, payload.Message)
}

// HandleSendSMS delivers an SMS via Twilio.
func (d *Dispatcher) HandleSendSMS(ctx context.Context, job *queue.Job) error {
	if d.sms == nil {
		return channelUnavailableError("sms")
	}
	var payload SMSPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.To) == "" || strings.TrimSpace(payload.Message) == "" {
		return malformedPayloadError("sms", "to and message are required")
	}
	return d.sms.SendText(ctx, payload.To, payload.Message)
}

// HandleSendPush delivers a push notification via FCM.
func (d *Dispatcher) HandleSendPush(ctx context.Context, job *queue.Job) error {
	if d.push == nil {
		return channelUnavailableError("push")
	}
	var payload PushPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	return d.push.Send(ctx, PushMessage{
		DeviceToken: payload.DeviceToken,
		Title:       payload.Title,
		Body:        payload.Body,
		Data:        payload.Data,
	})
}

// HandleSendEmail delivers an email via the SMTP relay.
func (d *Dispatcher) HandleSendEmail(ctx context.Context, job *queue.Job) error {
	if d.email == nil {
		return channelUnavailableError("email")
	}
	var payload EmailPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	return d.email.Send(ctx, payload.To, payload.Subject, payload.Body)
}

// HandleNotifyUser persists an in-app notification row.
func (d *Dispatcher) HandleNotifyUser(ctx context.Context, job *queue.Job) error {
	if d.notifications == nil {
		return channelUnavailableError("notify-user")
	}
	var payload NotifyUserPayload
	if err := decodePayload(job, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return malformedPayloadError("notify-user", "userId is required")
	}
	if strings.TrimSpace(payload.Title) == "" && strings.TrimSpace(payload.Body) == "" {
		return malformedPayloadError("notify-user", "title or body is required")
	}
	return d.notifications.Insert(ctx, Notification{
		TenantID: job.TenantID,
		UserID:   payload.UserID,
		Title:    payload.Title,
		Body:     payload.Body,
		Category: payload.Category,
	})
}

func decodePayload(job *queue.Job, out any) error {
	if job == nil || len(job.Payload) == 0 {
		return malformedPayloadError("dispatcher", "job payload is empty")
	}
	if err := json.Unmarshal(job.Payload, out); err != nil {
		return malformedPayloadError("dispatcher", "decode payload failed: "+err.Error())
	}
	return nil
}

func malformedPayloadError(channel, message string) error {
	return &SendError{
		Channel:    channel,
		StatusCode: http.StatusBadRequest,
		Code:       "malformed_payload",
		Message:    message,
	}
}

func channelUnavailableError(channel string) error {
	// 422 keeps this in the non-retryable bucket: retrying cannot
	// configure a missing provider.
	return &SendError{
		Channel:    channel,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "channel_not_configured",
		Message:    "no provider configured for channel",
	}
}
