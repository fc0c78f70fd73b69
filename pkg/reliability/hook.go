package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexocrm/notify/pkg/notifier"
	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/queue"
)

const breakerOpTimeout = 5 * time.Second

// Hook is the queue failure hook: terminal failures feed the breaker,
// and an opened breaker pauses the live queue for the cooldown window.
// The dead-letter copy itself already happened on the worker side when
// the hook fires.
type Hook struct {
	backend queue.Backend
	breaker *Breaker
	alerts  *notifier.Notifier
	log     logger.Logger

	// afterFunc is swapped in tests to run the resume synchronously.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewHook wires the failure hook.
func NewHook(backend queue.Backend, breaker *Breaker, alerts *notifier.Notifier, log logger.Logger) (*Hook, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if breaker == nil {
		return nil, errors.New("breaker is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Hook{
		backend:   backend,
		breaker:   breaker,
		alerts:    alerts,
		log:       log,
		afterFunc: time.AfterFunc,
	}, nil
}

// OnTerminalFailure counts the failure and, when the breaker opens,
// pauses the queue with a scheduled resume. Pausing is queue-wide;
// breaker state stays keyed per (queue, kind).
func (h *Hook) OnTerminalFailure(ctx context.Context, job *queue.Job, meta *queue.FailureMeta) {
	if job == nil {
		return
	}
	if !h.breaker.RecordFailure(job.Queue, job.Kind) {
		return
	}
	h.openBreaker(ctx, job.Queue, job.Kind, meta)
}

// OnSuccess heals the breaker key immediately.
func (h *Hook) OnSuccess(ctx context.Context, job *queue.Job) {
	if job == nil {
		return
	}
	h.breaker.RecordSuccess(job.Queue, job.Kind)
}

func (h *Hook) openBreaker(ctx context.Context, queueName, kind string, meta *queue.FailureMeta) {
	cooldown := h.breaker.Cooldown()
	if err := h.backend.Pause(ctx, queueName); err != nil {
		h.log.Error("breaker opened but queue pause failed", "queue", queueName, "kind", kind, "error", err)
	} else {
		h.log.Warn("circuit breaker opened, queue paused",
			"queue", queueName, "kind", kind, "cooldown", cooldown.String())
	}
	recordBreakerOpened(queueName, kind)

	if h.alerts != nil {
		alertContext := map[string]string{
			"queue":    queueName,
			"jobKind":  kind,
			"cooldown": cooldown.String(),
		}
		if meta != nil {
			alertContext["errorCode"] = meta.Code
			alertContext["error"] = notifier.TruncateErrorContext(meta.Message)
		}
		h.alerts.AdminAlert(ctx, notifier.PolicyBreakerOpen, notifier.Message{
			Title: "Circuit breaker opened",
			Body:  fmt.Sprintf("Queue %s paused after repeated %s failures", queueName, kind),
		}, alertContext)
	}

	// Scheduled resume: a blocking sleep here would stall the worker
	// goroutine that delivered the terminal failure.
	h.afterFunc(cooldown, func() {
		resumeCtx, cancel := context.WithTimeout(context.Background(), breakerOpTimeout)
		defer cancel()

		h.breaker.Expire(queueName, kind)
		if err := h.backend.Resume(resumeCtx, queueName); err != nil {
			h.log.Error("breaker cooldown elapsed but queue resume failed", "queue", queueName, "kind", kind, "error", err)
			return
		}
		recordBreakerClosed(queueName, kind)
		h.log.Info("circuit breaker closed, queue resumed", "queue", queueName, "kind", kind)
	})
}
