package sla

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WorkItemStore lists the open work items one monitor cycle scans.
// The monitor never writes back; work items belong to the CRM core.
type WorkItemStore interface {
	ListOpen(ctx context.Context, limit int) ([]WorkItem, error)
}

// PostgresWorkItemStore reads open tickets from the CRM database.
type PostgresWorkItemStore struct {
	db *sql.DB
}

// NewPostgresWorkItemStore creates a store over an existing handle.
func NewPostgresWorkItemStore(db *sql.DB) (*PostgresWorkItemStore, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	return &PostgresWorkItemStore{db: db}, nil
}

// ListOpen returns open work items oldest first, bounded by limit.
func (s *PostgresWorkItemStore) ListOpen(ctx context.Context, limit int) ([]WorkItem, error) {
	if limit <= 0 {
		limit = 500
	}

	const query = `
		SELECT id, created_at, sla_expires_at, sla_target_minutes,
		       priority, severity, assigned_level, status
		FROM work_items
		WHERE status NOT IN ('closed', 'resolved', 'cancelled')
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query open work items failed: %w", err)
	}
	defer rows.Close()

	var items []WorkItem
	for rows.Next() {
		var (
			item          WorkItem
			expiresAt     sql.NullTime
			targetMinutes sql.NullInt64
			priority      sql.NullString
			severity      sql.NullString
			assignedLevel sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.CreatedAt, &expiresAt, &targetMinutes,
			&priority, &severity, &assignedLevel, &item.Status); err != nil {
			return nil, fmt.Errorf("scan work item failed: %w", err)
		}
		if expiresAt.Valid {
			item.SLAExpiresAt = expiresAt.Time.UTC()
		}
		if targetMinutes.Valid {
			item.SLATargetMinutes = int(targetMinutes.Int64)
		}
		item.Priority = priority.String
		item.Severity = severity.String
		item.AssignedLevel = assignedLevel.String
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work items failed: %w", err)
	}
	return items, nil
}
