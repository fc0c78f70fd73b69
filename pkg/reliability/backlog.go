package reliability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nexocrm/notify/pkg/notifier"
	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/queue"
)

const (
	// DefaultBacklogThreshold is the queue depth that raises an alert.
	DefaultBacklogThreshold = 1000
	// DefaultBacklogCooldown debounces repeat alerts per queue.
	DefaultBacklogCooldown = 5 * time.Minute
	// DefaultBacklogSampleInterval is how often depths are sampled.
	DefaultBacklogSampleInterval = 30 * time.Second
)

// BacklogConfig tunes the backlog monitor.
type BacklogConfig struct {
	Queues         []string
	Threshold      int64
	Cooldown       time.Duration
	SampleInterval time.Duration
}

func (c *BacklogConfig) normalize() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultBacklogThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultBacklogCooldown
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultBacklogSampleInterval
	}
}

// BacklogMonitor alerts when queue depth crosses a threshold, at most
// once per cooldown window per queue. A plain debounced check, not a
// trend detector.
type BacklogMonitor struct {
	backend queue.Backend
	alerts  *notifier.Notifier
	log     logger.Logger
	cfg     BacklogConfig
	now     func() time.Time

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewBacklogMonitor creates a monitor over the given queues.
func NewBacklogMonitor(backend queue.Backend, alerts *notifier.Notifier, cfg BacklogConfig, log logger.Logger) (*BacklogMonitor, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()
	if len(cfg.Queues) == 0 {
		return nil, errors.New("at least one queue is required")
	}
	return &BacklogMonitor{
		backend:   backend,
		alerts:    alerts,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
		lastAlert: map[string]time.Time{},
	}, nil
}

// Run samples queue depths until the context is cancelled.
func (m *BacklogMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, queueName := range m.cfg.Queues {
				depth, err := m.backend.Depth(ctx, queueName)
				if err != nil {
					m.log.Warn("backlog depth sample failed", "queue", queueName, "error", err)
					continue
				}
				m.OnSample(ctx, queueName, depth)
			}
		}
	}
}

// OnSample applies the debounced threshold check to one depth reading.
func (m *BacklogMonitor) OnSample(ctx context.Context, queueName string, depth int64) {
	queueName = strings.TrimSpace(queueName)
	recordQueueDepth(queueName, depth)
	if depth < m.cfg.Threshold {
		return
	}

	now := m.now()
	m.mu.Lock()
	if last, ok := m.lastAlert[queueName]; ok && now.Sub(last) < m.cfg.Cooldown {
		m.mu.Unlock()
		return
	}
	m.lastAlert[queueName] = now
	m.mu.Unlock()

	m.log.Warn("queue backlog above threshold", "queue", queueName, "depth", depth, "threshold", m.cfg.Threshold)
	if m.alerts != nil {
		m.alerts.AdminAlert(ctx, notifier.PolicyQueueBacklog, notifier.Message{
			Title: "Queue backlog alert",
			Body:  fmt.Sprintf("Queue %s depth %d exceeds threshold %d", queueName, depth, m.cfg.Threshold),
		}, map[string]string{
			"queue":     queueName,
			"depth":     fmt.Sprintf("%d", depth),
			"threshold": fmt.Sprintf("%d", m.cfg.Threshold),
		})
	}
}
