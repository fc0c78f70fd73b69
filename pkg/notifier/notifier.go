package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nexocrm/notify/pkg/channels"
	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/queue"
)

const maxAlertErrorContext = 120

// Targets holds the possible destination addresses for one recipient.
// A channel whose required field is empty is skipped, not failed.
type Targets struct {
	Phone     string
	PushToken string
	Email     string
	UserID    string
}

// Message is the channel-independent alert content.
type Message struct {
	Title string
	Body  string
}

// Notifier enqueues policy-driven multi-channel alerts.
type Notifier struct {
	producer  *queue.Producer
	queueName string
	policy    Policy
	admin     Targets
	log       logger.Logger
}

// Config configures the notifier.
type Config struct {
	// QueueName is the live queue alert sends are enqueued onto.
	QueueName string
	// Policy overrides the default escalation table when non-nil.
	Policy Policy
	// Admin is the operator identity used by AdminAlert. All fields
	// empty means alerts are logged only.
	Admin Targets
}

// New creates a notifier over a queue producer.
func New(producer *queue.Producer, cfg Config, log logger.Logger) (*Notifier, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.QueueName) == "" {
		return nil, errors.New("queue name is required")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Notifier{
		producer:  producer,
		queueName: strings.TrimSpace(cfg.QueueName),
		policy:    policy,
		admin:     cfg.Admin,
		log:       log,
	}, nil
}

// NotifyByPolicy fans the message out across the policy's channels.
// Sends are independent: a failed enqueue on one channel never cancels
// or delays the others, and the caller gets no per-channel signal.
func (n *Notifier) NotifyByPolicy(ctx context.Context, policyKey string, targets Targets, msg Message, alertContext map[string]string) {
	entries, ok := n.policy[strings.TrimSpace(policyKey)]
	if !ok || len(entries) == 0 {
		n.log.Warn("no channel policy registered", "policy", policyKey)
		return
	}

	body := appendAlertContext(msg.Body, alertContext)

	var wg sync.WaitGroup
	for _, entry := range entries {
		payload, target, ok := buildPayload(entry.Channel, targets, msg.Title, body)
		if !ok {
			n.log.Debug("skipping channel without target", "policy", policyKey, "channel", string(entry.Channel))
			continue
		}

		wg.Add(1)
		go func(ch Channel, payload any, target string) {
			defer wg.Done()
			kind := kindFor(ch)
			if kind == "" {
				n.log.Warn("unknown channel in policy", "policy", policyKey, "channel", string(ch))
				return
			}
			if _, err := n.producer.Enqueue(ctx, n.queueName, kind, payload, queue.EnqueueOptions{}); err != nil {
				n.log.Error("alert enqueue failed", "policy", policyKey, "channel", string(ch), "target", target, "error", err)
			}
		}(entry.Channel, payload, target)
	}
	wg.Wait()
}

// AdminAlert escalates to the configured operator identity. With no
// admin configured the alert is logged and dropped.
func (n *Notifier) AdminAlert(ctx context.Context, policyKey string, msg Message, alertContext map[string]string) {
	if n.admin == (Targets{}) {
		n.log.Warn("admin alert dropped, no admin identity configured",
			"policy", policyKey, "title", msg.Title, "body", appendAlertContext(msg.Body, alertContext))
		return
	}
	n.NotifyByPolicy(ctx, policyKey, n.admin, msg, alertContext)
}

// TruncateErrorContext bounds provider error text embedded in alerts.
func TruncateErrorContext(message string) string {
	runes := []rune(message)
	if len(runes) <= maxAlertErrorContext {
		return message
	}
	return string(runes[:maxAlertErrorContext])
}

func buildPayload(ch Channel, targets Targets, title, body string) (any, string, bool) {
	switch ch {
	case ChannelChat:
		if strings.TrimSpace(targets.Phone) == "" {
			return nil, "", false
		}
		return channels.ChatPayload{To: targets.Phone, Message: body}, targets.Phone, true
	case ChannelSMS:
		if strings.TrimSpace(targets.Phone) == "" {
			return nil, "", false
		}
		return channels.SMSPayload{To: targets.Phone, Message: body}, targets.Phone, true
	case ChannelPush:
		if strings.TrimSpace(targets.PushToken) == "" {
			return nil, "", false
		}
		return channels.PushPayload{DeviceToken: targets.PushToken, Title: title, Body: body}, targets.PushToken, true
	case ChannelEmail:
		if strings.TrimSpace(targets.Email) == "" {
			return nil, "", false
		}
		return channels.EmailPayload{To: targets.Email, Subject: title, Body: body}, targets.Email, true
	case ChannelInApp:
		if strings.TrimSpace(targets.UserID) == "" {
			return nil, "", false
		}
		return channels.NotifyUserPayload{UserID: targets.UserID, Title: title, Body: body}, targets.UserID, true
	default:
		return nil, "", false
	}
}

func appendAlertContext(body string, alertContext map[string]string) string {
	if len(alertContext) == 0 {
		return body
	}
	keys := make([]string, 0, len(alertContext))
	for key := range alertContext {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(body)
	for _, key := range keys {
		b.WriteString(fmt.Sprintf("\n%s: %s", key, alertContext[key]))
	}
	return b.String()
}
