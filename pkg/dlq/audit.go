// Package dlq owns dead-letter inspection and the filtered bounded
// replay with its audit trail.
package dlq

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Filters narrows which dead-letter entries a replay considers.
type Filters struct {
	JobKind   string    `json:"jobKind,omitempty"`
	ErrorCode string    `json:"errorCode,omitempty"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
}

// AuditRecord is the immutable row persisted once per replay call.
type AuditRecord struct {
	ActionID              string    `json:"actionId"`
	Actor                 string    `json:"actor"`
	QueueName             string    `json:"queueName"`
	Filters               Filters   `json:"filters"`
	TotalFiltered         int       `json:"totalFiltered"`
	TotalSelected         int       `json:"totalSelected"`
	Reprocessed           int       `json:"reprocessed"`
	SkippedNoJobKind      int       `json:"skippedNoJobKind"`
	SkippedNoPayload      int       `json:"skippedNoPayload"`
	SkippedInvalidJobKind int       `json:"skippedInvalidJobKind"`
	SkippedMaxAttempt     int       `json:"skippedMaxAttempt"`
	Status                string    `json:"status"`
	SampleJobs            []string  `json:"sampleJobs"`
	CreatedAt             time.Time `json:"at"`
}

// AuditStore persists replay audit records durably.
type AuditStore interface {
	Save(ctx context.Context, record AuditRecord) error
}

// PostgresAuditStore writes audit rows to the CRM database.
type PostgresAuditStore struct {
	db *sql.DB
}

// NewPostgresAuditStore creates a store over an existing handle.
func NewPostgresAuditStore(db *sql.DB) (*PostgresAuditStore, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	return &PostgresAuditStore{db: db}, nil
}

// Save inserts one audit row.
func (s *PostgresAuditStore) Save(ctx context.Context, record AuditRecord) error {
	filters, err := json.Marshal(record.Filters)
	if err != nil {
		return fmt.Errorf("marshal audit filters failed: %w", err)
	}

	const query = `
		INSERT INTO dlq_replay_audit (
			action_id, actor, queue_name, filters,
			total_filtered, total_selected, reprocessed,
			skipped_no_job_kind, skipped_no_payload,
			skipped_invalid_job_kind, skipped_max_attempt,
			status, sample_jobs, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if _, err := s.db.ExecContext(ctx, query,
		record.ActionID, record.Actor, record.QueueName, filters,
		record.TotalFiltered, record.TotalSelected, record.Reprocessed,
		record.SkippedNoJobKind, record.SkippedNoPayload,
		record.SkippedInvalidJobKind, record.SkippedMaxAttempt,
		record.Status, pq.Array(record.SampleJobs), record.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert replay audit failed: %w", err)
	}
	return nil
}

// FileAppender writes audit records as JSON lines to an append-only
// file. It backs the durable store up unconditionally and replaces it
// when the store write fails, so a record is never silently lost.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates an appender for the given path.
func NewFileAppender(path string) (*FileAppender, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit file path is required")
	}
	return &FileAppender{path: strings.TrimSpace(path)}, nil
}

// Append writes one record as a JSON line.
func (a *FileAppender) Append(record AuditRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record failed: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file failed: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit record failed: %w", err)
	}
	return nil
}
