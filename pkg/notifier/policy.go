// Package notifier fans one alert out across the channels selected by
// a policy key. Sends are enqueued, never performed inline: the queue
// workers own provider interaction and its retry bookkeeping.
package notifier

import "github.com/nexocrm/notify/pkg/queue"

// Channel identifies one delivery channel inside a policy.
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in-app"
)

// Well-known policy keys. Breaker, backlog and replay alerts use
// distinct keys so operators can route them differently.
const (
	PolicyBreakerOpen   = "breaker-open"
	PolicyQueueBacklog  = "queue-backlog"
	PolicyReplayBacklog = "replay-backlog"
	PolicyReplayDone    = "replay-done"
	PolicyJobExhausted  = "job-exhausted"
	PolicySLAWarning    = "sla-warning"
	PolicySLABreach     = "sla-breach"
)

// Entry is one channel in a policy's ordered list.
type Entry struct {
	Channel Channel
}

// Policy maps a policy key to its ordered channel list.
type Policy map[string][]Entry

// DefaultPolicy returns the escalation table used when configuration
// does not override it. Operational alerts prefer chat with an in-app
// copy; SLA escalation adds push and email for breaches.
func DefaultPolicy() Policy {
	return Policy{
		PolicyBreakerOpen:   {{Channel: ChannelChat}, {Channel: ChannelInApp}},
		PolicyQueueBacklog:  {{Channel: ChannelChat}, {Channel: ChannelInApp}},
		PolicyReplayBacklog: {{Channel: ChannelChat}, {Channel: ChannelInApp}},
		PolicyReplayDone:    {{Channel: ChannelChat}, {Channel: ChannelInApp}},
		PolicyJobExhausted:  {{Channel: ChannelChat}, {Channel: ChannelEmail}},
		PolicySLAWarning:    {{Channel: ChannelChat}, {Channel: ChannelPush}, {Channel: ChannelInApp}},
		PolicySLABreach:     {{Channel: ChannelChat}, {Channel: ChannelSMS}, {Channel: ChannelPush}, {Channel: ChannelEmail}, {Channel: ChannelInApp}},
	}
}

// kindFor maps a channel to the job kind its sends are enqueued under.
func kindFor(ch Channel) string {
	switch ch {
	case ChannelChat:
		return queue.KindSendChat
	case ChannelSMS:
		return queue.KindSendSMS
	case ChannelPush:
		return queue.KindSendPush
	case ChannelEmail:
		return queue.KindSendEmail
	case ChannelInApp:
		return queue.KindNotifyUser
	default:
		return ""
	}
}
