package channels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registers the postgres driver for the credential source.
	_ "github.com/lib/pq"
)

// WhatsAppCredentials is the per-tenant Cloud API configuration.
type WhatsAppCredentials struct {
	PhoneNumberID string
	AccessToken   string
}

// ErrCredentialsNotFound signals that a tenant has no active WhatsApp
// integration configured.
var ErrCredentialsNotFound = errors.New("whatsapp credentials not found")

// CredentialSource resolves provider credentials per tenant.
type CredentialSource interface {
	WhatsAppCredentials(ctx context.Context, tenantID string) (WhatsAppCredentials, error)
}

// PostgresCredentialSource reads tenant integration rows from the CRM
// database.
type PostgresCredentialSource struct {
	db *sql.DB
}

// NewPostgresCredentialSource opens a credential source over an
// existing database handle.
func NewPostgresCredentialSource(db *sql.DB) (*PostgresCredentialSource, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	return &PostgresCredentialSource{db: db}, nil
}

// WhatsAppCredentials returns the active WhatsApp integration for one tenant.
func (s *PostgresCredentialSource) WhatsAppCredentials(ctx context.Context, tenantID string) (WhatsAppCredentials, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return WhatsAppCredentials{}, errors.New("tenant id is required")
	}

	const query = `
		SELECT phone_number_id, access_token
		FROM tenant_integrations
		WHERE tenant_id = $1 AND provider = 'whatsapp' AND active = TRUE
		LIMIT 1`

	var creds WhatsAppCredentials
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&creds.PhoneNumberID, &creds.AccessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return WhatsAppCredentials{}, fmt.Errorf("%w: tenant %s", ErrCredentialsNotFound, tenantID)
	}
	if err != nil {
		return WhatsAppCredentials{}, fmt.Errorf("query whatsapp credentials failed: %w", err)
	}
	if strings.TrimSpace(creds.PhoneNumberID) == "" || strings.TrimSpace(creds.AccessToken) == "" {
		return WhatsAppCredentials{}, fmt.Errorf("%w: tenant %s has incomplete integration", ErrCredentialsNotFound, tenantID)
	}
	return creds, nil
}

// StaticCredentialSource serves one fixed credential set for every
// tenant. Used in tests and single-tenant deployments.
type StaticCredentialSource struct {
	Credentials WhatsAppCredentials
}

func (s StaticCredentialSource) WhatsAppCredentials(ctx context.Context, tenantID string) (WhatsAppCredentials, error) {
	if strings.TrimSpace(s.Credentials.PhoneNumberID) == "" || strings.TrimSpace(s.Credentials.AccessToken) == "" {
		return WhatsAppCredentials{}, ErrCredentialsNotFound
	}
	return s.Credentials, nil
}
