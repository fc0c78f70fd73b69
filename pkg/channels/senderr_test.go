package channels

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nexocrm/notify/pkg/retry"
)

func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "30", want: 30 * time.Second},
		{name: "fractional seconds", value: "1.5", want: 1500 * time.Millisecond},
		{name: "zero", value: "0", want: 0},
		{name: "negative", value: "-5", want: 0},
		{name: "garbage", value: "soon", want: 0},
		{name: "capped", value: "3600", want: retry.MaxRetryAfter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseRetryAfter(tc.value); got != tc.want {
				t.Fatalf("ParseRetryAfter(%q) = %s, want %s", tc.value, got, tc.want)
			}
		})
	}
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	at := time.Now().UTC().Add(45 * time.Second)
	got := ParseRetryAfter(at.Format(time.RFC1123))
	if got <= 40*time.Second || got > 46*time.Second {
		t.Fatalf("expected roughly 45s, got %s", got)
	}

	past := time.Now().UTC().Add(-time.Minute)
	if got := ParseRetryAfter(past.Format(time.RFC1123)); got != 0 {
		t.Fatalf("past dates must yield zero, got %s", got)
	}
}

func TestSendError_ClassifiesThroughRetry(t *testing.T) {
	sendErr := &SendError{
		Channel:    "sms",
		StatusCode: 429,
		Code:       "20429",
		RetryAfter: 10 * time.Second,
		Message:    "too many requests",
	}
	wrapped := fmt.Errorf("send sms: %w", sendErr)

	meta := retry.AsFailure(wrapped)
	if meta == nil {
		t.Fatal("expected failure metadata through the error chain")
	}
	if retry.Classify(*meta) != retry.ClassRateLimited {
		t.Fatalf("expected rate limited, got %s", retry.Classify(*meta))
	}
	if meta.RetryAfter != 10*time.Second {
		t.Fatalf("retry hint lost: %s", meta.RetryAfter)
	}

	var carrier retry.FailureCarrier
	if !errors.As(wrapped, &carrier) {
		t.Fatal("SendError must satisfy the failure carrier contract")
	}
}

func TestSendError_ErrorText(t *testing.T) {
	err := &SendError{Channel: "whatsapp", StatusCode: 400, Code: "131026", Message: "recipient not available"}
	text := err.Error()
	for _, fragment := range []string{"whatsapp send failed", "status=400", "code=131026", "recipient not available"} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("error text %q missing %q", text, fragment)
		}
	}
}
