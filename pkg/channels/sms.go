package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nexocrm/notify/pkg/observability/logger"
)

const (
	// SMSMessageLimit is the Twilio body limit in characters.
	SMSMessageLimit = 1600

	// twilioRateLimitCode is Twilio's "too many requests" error code,
	// sometimes returned with a non-429 HTTP status.
	twilioRateLimitCode = 20429

	defaultTwilioBaseURL = "https://api.twilio.com"
)

// TwilioConfig configures the SMS client.
type TwilioConfig struct {
	AccountSID       string
	AuthToken        string
	FromNumber       string
	BaseURL          string
	OperationTimeout time.Duration
	HTTPClient       *http.Client
}

// TwilioClient sends SMS through the Twilio REST API.
type TwilioClient struct {
	cfg        TwilioConfig
	httpClient *http.Client
	log        logger.Logger
}

// NewTwilioClient creates a Twilio SMS client.
func NewTwilioClient(cfg TwilioConfig, log logger.Logger) (*TwilioClient, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, errors.New("twilio account sid is required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio auth token is required")
	}
	if strings.TrimSpace(cfg.FromNumber) == "" {
		return nil, errors.New("twilio from number is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	return &TwilioClient{
		cfg:        cfg,
		httpClient: defaultHTTPClient(cfg.HTTPClient, cfg.OperationTimeout),
		log:        log,
	}, nil
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendText delivers one SMS to a normalized destination.
func (c *TwilioClient) SendText(ctx context.Context, to, body string) error {
	normalized, err := NormalizeSMSNumber(to)
	if err != nil {
		return &SendError{Channel: "sms", StatusCode: http.StatusBadRequest, Code: "invalid_destination", Message: err.Error()}
	}
	if strings.TrimSpace(body) == "" {
		return &SendError{Channel: "sms", StatusCode: http.StatusBadRequest, Code: "empty_body", Message: "message body is required"}
	}
	body, truncated := TruncateBody(body, SMSMessageLimit)
	if truncated {
		c.log.Warn("sms message body truncated", "limit", SMSMessageLimit, "to", normalized)
	}

	form := url.Values{}
	form.Set("To", normalized)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Body", body)

	cctx, cancel := withTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/2010-04-01/Accounts/" + c.cfg.AccountSID + "/Messages.json"
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &SendError{Channel: "sms", StatusCode: http.StatusServiceUnavailable, Code: "network_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.log.Debug("sms message sent", "to", normalized)
		return nil
	}

	var apiErr twilioErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &apiErr)
	message := strings.TrimSpace(apiErr.Message)
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	statusCode := resp.StatusCode
	if apiErr.Code == twilioRateLimitCode {
		statusCode = http.StatusTooManyRequests
	}
	return &SendError{
		Channel:    "sms",
		StatusCode: statusCode,
		Code:       fmt.Sprintf("%d", apiErr.Code),
		RetryAfter: retryAfterFromResponse(resp),
		Message:    message,
	}
}
