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

const defaultFCMBaseURL = "https://fcm.googleapis.com"

// TokenSource mints a short-lived OAuth bearer token for the FCM v1 API.
type TokenSource func(ctx context.Context) (string, error)

// FCMConfig configures the push client.
type FCMConfig struct {
	ProjectID        string
	BaseURL          string
	OperationTimeout time.Duration
	HTTPClient       *http.Client
}

// FCMClient sends push notifications through the FCM HTTP v1 API.
type FCMClient struct {
	cfg        FCMConfig
	tokens     TokenSource
	httpClient *http.Client
	log        logger.Logger
}

// NewFCMClient creates an FCM push client.
func NewFCMClient(cfg FCMConfig, tokens TokenSource, log logger.Logger) (*FCMClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("fcm project id is required")
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultFCMBaseURL
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	return &FCMClient{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: defaultHTTPClient(cfg.HTTPClient, cfg.OperationTimeout),
		log:        log,
	}, nil
}

// PushMessage is the normalized push payload.
type PushMessage struct {
	DeviceToken string
	Title       string
	Body        string
	Data        map[string]string
}

type fcmSendRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Send delivers one push notification.
func (c *FCMClient) Send(ctx context.Context, msg PushMessage) error {
	token := strings.TrimSpace(msg.DeviceToken)
	if token == "" {
		return &SendError{Channel: "push", StatusCode: http.StatusBadRequest, Code: "missing_token", Message: "device token is required"}
	}
	if strings.TrimSpace(msg.Title) == "" && strings.TrimSpace(msg.Body) == "" {
		return &SendError{Channel: "push", StatusCode: http.StatusBadRequest, Code: "empty_notification", Message: "title or body is required"}
	}

	bearer, err := c.tokens(ctx)
	if err != nil {
		return fmt.Errorf("mint fcm token failed: %w", err)
	}

	payload := fcmSendRequest{
		Message: fcmMessage{
			Token: token,
			Notification: fcmNotification{
				Title: strings.TrimSpace(msg.Title),
				Body:  strings.TrimSpace(msg.Body),
			},
			Data: msg.Data,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal fcm request failed: %w", err)
	}

	cctx, cancel := withTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/projects/" + c.cfg.ProjectID + "/messages:send"
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SendError{Channel: "push", StatusCode: http.StatusServiceUnavailable, Code: "network_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.log.Debug("push notification sent", "token_prefix", tokenPrefix(token))
		return nil
	}

	var apiErr fcmErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &apiErr)
	message := strings.TrimSpace(apiErr.Error.Message)
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	return &SendError{
		Channel:    "push",
		StatusCode: resp.StatusCode,
		Code:       strings.TrimSpace(apiErr.Error.Status),
		RetryAfter: retryAfterFromResponse(resp),
		Message:    message,
	}
}

// tokenPrefix keeps device tokens out of logs.
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
