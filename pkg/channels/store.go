package channels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification is one in-app notification row.
type Notification struct {
	ID        string
	TenantID  string
	UserID    string
	Title     string
	Body      string
	Category  string
	CreatedAt time.Time
}

// NotificationStore persists in-app notifications for the notify-user
// job kind.
type NotificationStore interface {
	Insert(ctx context.Context, n Notification) error
}

// PostgresNotificationStore writes notification rows to the CRM database.
type PostgresNotificationStore struct {
	db *sql.DB
}

// NewPostgresNotificationStore creates a store over an existing handle.
func NewPostgresNotificationStore(db *sql.DB) (*PostgresNotificationStore, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	return &PostgresNotificationStore{db: db}, nil
}

// Insert persists one notification row.
func (s *PostgresNotificationStore) Insert(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.UserID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(n.ID) == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO user_notifications (id, tenant_id, user_id, title, body, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := s.db.ExecContext(ctx, query,
		n.ID, strings.TrimSpace(n.TenantID), strings.TrimSpace(n.UserID),
		n.Title, n.Body, strings.TrimSpace(n.Category), n.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert notification failed: %w", err)
	}
	return nil
}
