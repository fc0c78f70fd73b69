// Package channels holds the outbound provider clients (WhatsApp chat,
// Twilio SMS, FCM push, SMTP email). Every client returns a *SendError
// carrying the provider status so callers can classify the outcome.
package channels

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nexocrm/notify/pkg/retry"
)

// SendError is a classified provider failure. StatusCode follows HTTP
// semantics even for providers that surface errors differently; Code is
// the provider-specific error identifier when one exists.
type SendError struct {
	Channel    string
	StatusCode int
	Code       string
	RetryAfter time.Duration
	Message    string
}

func (e *SendError) Error() string {
	if e == nil {
		return "send error"
	}
	parts := []string{fmt.Sprintf("%s send failed", e.Channel)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if strings.TrimSpace(e.Code) != "" {
		parts = append(parts, "code="+e.Code)
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, ": ")
}

// FailureMeta exposes the classification metadata used by the retry
// strategy and the worker failure path.
func (e *SendError) FailureMeta() retry.Failure {
	if e == nil {
		return retry.Failure{}
	}
	return retry.Failure{
		StatusCode: e.StatusCode,
		Code:       e.Code,
		RetryAfter: e.RetryAfter,
	}
}

// ParseRetryAfter interprets a Retry-After header value: either delay
// seconds or an HTTP date. The result is capped so a provider cannot
// park jobs indefinitely. Unparseable values return zero.
func ParseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds <= 0 {
			return 0
		}
		return capRetryAfter(time.Duration(seconds * float64(time.Second)))
	}
	if at, err := http.ParseTime(value); err == nil {
		delay := time.Until(at)
		if delay <= 0 {
			return 0
		}
		return capRetryAfter(delay)
	}
	return 0
}

func capRetryAfter(d time.Duration) time.Duration {
	if d > retry.MaxRetryAfter {
		return retry.MaxRetryAfter
	}
	return d
}

func retryAfterFromResponse(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	return ParseRetryAfter(resp.Header.Get("Retry-After"))
}
