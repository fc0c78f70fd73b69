package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nexocrm/notify/pkg/observability/logger"
)

const (
	// WhatsAppMessageLimit is the Cloud API text body limit in characters.
	WhatsAppMessageLimit = 4096

	defaultWhatsAppBaseURL = "https://graph.facebook.com/v21.0"
)

// WhatsAppConfig configures the Cloud API client.
type WhatsAppConfig struct {
	BaseURL          string
	OperationTimeout time.Duration
	HTTPClient       *http.Client
}

// WhatsAppClient sends text messages through the WhatsApp Cloud API
// with per-tenant credentials.
type WhatsAppClient struct {
	cfg        WhatsAppConfig
	creds      CredentialSource
	httpClient *http.Client
	log        logger.Logger
}

// NewWhatsAppClient creates a Cloud API client.
func NewWhatsAppClient(cfg WhatsAppConfig, creds CredentialSource, log logger.Logger) (*WhatsAppClient, error) {
	if creds == nil {
		return nil, errors.New("credential source is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultWhatsAppBaseURL
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	return &WhatsAppClient{
		cfg:        cfg,
		creds:      creds,
		httpClient: defaultHTTPClient(cfg.HTTPClient, cfg.OperationTimeout),
		log:        log,
	}, nil
}

type whatsAppSendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             whatsAppTextBody `json:"text"`
}

type whatsAppTextBody struct {
	Body string `json:"body"`
}

type whatsAppErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText delivers one text message to a normalized destination.
func (c *WhatsAppClient) SendText(ctx context.Context, tenantID, to, body string) error {
	number, err := NormalizeWhatsAppNumber(to)
	if err != nil {
		return &SendError{Channel: "whatsapp", StatusCode: http.StatusBadRequest, Code: "invalid_destination", Message: err.Error()}
	}
	if number.MissingNinthDigit {
		c.log.Warn("whatsapp destination may be missing the ninth digit", "to", number.Value, "tenant_id", tenantID)
	}
	if strings.TrimSpace(body) == "" {
		return &SendError{Channel: "whatsapp", StatusCode: http.StatusBadRequest, Code: "empty_body", Message: "message body is required"}
	}
	body, truncated := TruncateBody(body, WhatsAppMessageLimit)
	if truncated {
		c.log.Warn("whatsapp message body truncated", "limit", WhatsAppMessageLimit, "tenant_id", tenantID)
	}

	creds, err := c.creds.WhatsAppCredentials(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrCredentialsNotFound) {
			return &SendError{Channel: "whatsapp", StatusCode: http.StatusUnprocessableEntity, Code: "missing_credentials", Message: err.Error()}
		}
		return fmt.Errorf("resolve whatsapp credentials failed: %w", err)
	}

	payload := whatsAppSendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               number.Value,
		Type:             "text",
		Text:             whatsAppTextBody{Body: body},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp request failed: %w", err)
	}

	cctx, cancel := withTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + creds.PhoneNumberID + "/messages"
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SendError{Channel: "whatsapp", StatusCode: http.StatusServiceUnavailable, Code: "network_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.log.Debug("whatsapp message sent", "to", number.Value, "tenant_id", tenantID)
		return nil
	}

	var apiErr whatsAppErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &apiErr)
	message := strings.TrimSpace(apiErr.Error.Message)
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	return &SendError{
		Channel:    "whatsapp",
		StatusCode: resp.StatusCode,
		Code:       fmt.Sprintf("%d", apiErr.Error.Code),
		RetryAfter: retryAfterFromResponse(resp),
		Message:    message,
	}
}
