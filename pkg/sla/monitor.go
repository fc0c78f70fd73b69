package sla

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexocrm/notify/pkg/notifier"
	"github.com/nexocrm/notify/pkg/observability/logger"
)

const (
	// DefaultScanInterval is the monitor cycle period.
	DefaultScanInterval = 60 * time.Second
	// DefaultWarningThreshold is the consumed fraction that raises a warning.
	DefaultWarningThreshold = 0.7
	// DefaultSuppressionCooldown debounces repeat events per item.
	DefaultSuppressionCooldown = 10 * time.Minute
	// DefaultBatchSize bounds one cycle's scan.
	DefaultBatchSize = 500
)

// MonitorConfig tunes the deadline monitor.
type MonitorConfig struct {
	Enabled             bool
	Environment         string
	ScanInterval        time.Duration
	WarningThreshold    float64
	SuppressionCooldown time.Duration
	BatchSize           int
}

func (c *MonitorConfig) normalize() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = DefaultScanInterval
	}
	if c.WarningThreshold <= 0 || c.WarningThreshold >= 1 {
		c.WarningThreshold = DefaultWarningThreshold
	}
	if c.SuppressionCooldown <= 0 {
		c.SuppressionCooldown = DefaultSuppressionCooldown
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Monitor periodically scans open work items and escalates deadline
// warnings and breaches. Cycles run on one loop: a cycle never
// overlaps the previous one.
type Monitor struct {
	store  WorkItemStore
	alerts *notifier.Notifier
	log    logger.Logger
	cfg    MonitorConfig
	cache  *suppressionCache
	now    func() time.Time
}

// NewMonitor creates a deadline monitor.
func NewMonitor(store WorkItemStore, alerts *notifier.Notifier, cfg MonitorConfig, log logger.Logger) (*Monitor, error) {
	if store == nil {
		return nil, errors.New("work item store is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()
	return &Monitor{
		store:  store,
		alerts: alerts,
		log:    log,
		cfg:    cfg,
		cache:  newSuppressionCache(cfg.SuppressionCooldown),
		now:    time.Now,
	}, nil
}

// Run executes monitor cycles until the context is cancelled. The
// monitor is inert when disabled or in a test environment.
func (m *Monitor) Run(ctx context.Context) {
	if !m.cfg.Enabled {
		m.log.Info("sla monitor disabled")
		return
	}
	if strings.EqualFold(strings.TrimSpace(m.cfg.Environment), "test") {
		m.log.Info("sla monitor skipped in test environment")
		return
	}

	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle executes one bounded scan.
func (m *Monitor) RunCycle(ctx context.Context) {
	now := m.now().UTC()
	m.cache.prune(now)

	items, err := m.store.ListOpen(ctx, m.cfg.BatchSize)
	if err != nil {
		m.log.Error("sla scan failed", "error", err)
		return
	}

	for _, item := range items {
		event := Evaluate(item, now, m.cfg.WarningThreshold)
		if event == EventNone {
			continue
		}
		if !m.cache.shouldFire(item.ID, event, now) {
			continue
		}
		m.escalate(ctx, item, event, now)
	}
}

func (m *Monitor) escalate(ctx context.Context, item WorkItem, event Event, now time.Time) {
	deadline := Deadline(item)
	recordSLAEvent(event.String())
	m.log.Warn("sla deadline event",
		"event", event.String(), "work_item", item.ID,
		"deadline", deadline.Format(time.RFC3339), "priority", item.Priority, "severity", item.Severity)

	if m.alerts == nil {
		return
	}
	policy := notifier.PolicySLAWarning
	title := "SLA warning"
	if event == EventBreach {
		policy = notifier.PolicySLABreach
		title = "SLA breach"
	}
	m.alerts.AdminAlert(ctx, policy, notifier.Message{
		Title: title,
		Body:  fmt.Sprintf("Work item %s %s its SLA deadline", item.ID, describeEvent(event, deadline, now)),
	}, map[string]string{
		"workItemId":    item.ID,
		"event":         event.String(),
		"deadline":      deadline.Format(time.RFC3339),
		"priority":      item.Priority,
		"severity":      item.Severity,
		"assignedLevel": item.AssignedLevel,
	})
}

func describeEvent(event Event, deadline, now time.Time) string {
	if event == EventBreach {
		return fmt.Sprintf("breached (deadline %s, overdue %s)", deadline.Format(time.RFC3339), now.Sub(deadline).Round(time.Minute))
	}
	return fmt.Sprintf("is approaching (deadline %s, remaining %s)", deadline.Format(time.RFC3339), deadline.Sub(now).Round(time.Minute))
}
