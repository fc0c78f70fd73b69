// Package sla watches open work items against their service-level
// deadlines and escalates warnings and breaches.
package sla

import (
	"strings"
	"time"
)

// Event is the outcome of evaluating one work item against its deadline.
type Event int

const (
	EventNone Event = iota
	EventWarning
	EventBreach
)

func (e Event) String() string {
	switch e {
	case EventWarning:
		return "warning"
	case EventBreach:
		return "breach"
	default:
		return "none"
	}
}

// WorkItem is the read-only view of an open ticket the monitor scans.
type WorkItem struct {
	ID               string
	CreatedAt        time.Time
	SLAExpiresAt     time.Time
	SLATargetMinutes int
	Priority         string
	Severity         string
	AssignedLevel    string
	Status           string
}

// priorityBase is the deadline budget in minutes before the severity
// multiplier is applied. Unknown priorities fall back to medium.
var priorityBase = map[string]time.Duration{
	"urgent": 30 * time.Minute,
	"high":   120 * time.Minute,
	"medium": 480 * time.Minute,
	"low":    960 * time.Minute,
}

var severityMultiplier = map[string]float64{
	"critical": 0.5,
	"high":     0.75,
	"medium":   1.0,
	"low":      1.25,
}

// levelAliases maps the source system's Portuguese level names onto the
// canonical keys. Stored tickets carry both accented and unaccented
// spellings.
var levelAliases = map[string]string{
	"urgente": "urgent",
	"alta":    "high",
	"media":   "medium",
	"média":   "medium",
	"baixa":   "low",
	"critica": "critical",
	"crítica": "critical",
}

// Deadline derives the SLA deadline for one work item: explicit expiry
// wins, then an explicit target in minutes, then the priority/severity
// matrix.
func Deadline(item WorkItem) time.Time {
	if !item.SLAExpiresAt.IsZero() {
		return item.SLAExpiresAt
	}
	if item.SLATargetMinutes > 0 {
		return item.CreatedAt.Add(time.Duration(item.SLATargetMinutes) * time.Minute)
	}

	base, ok := priorityBase[normalizeLevel(item.Priority)]
	if !ok {
		base = priorityBase["medium"]
	}
	multiplier, ok := severityMultiplier[normalizeLevel(item.Severity)]
	if !ok {
		multiplier = severityMultiplier["medium"]
	}
	return item.CreatedAt.Add(time.Duration(float64(base) * multiplier))
}

// Evaluate classifies one work item at the given instant. The consumed
// fraction is recomputed from wall clock every cycle, so a deadline
// that passed during a monitor outage still raises its breach on the
// next cycle.
func Evaluate(item WorkItem, now time.Time, warningThreshold float64) Event {
	deadline := Deadline(item)
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return EventBreach
	}

	total := deadline.Sub(item.CreatedAt)
	if total <= 0 {
		return EventBreach
	}
	consumed := 1 - float64(remaining)/float64(total)
	if consumed >= warningThreshold {
		return EventWarning
	}
	return EventNone
}

func normalizeLevel(value string) string {
	level := strings.ToLower(strings.TrimSpace(value))
	if canonical, ok := levelAliases[level]; ok {
		return canonical
	}
	return level
}
