package channels

import (
	"context"
	"errors"
	"net/http"
	"net/smtp"
	"strings"
	"testing"
)

func newEmailClient(t *testing.T) *EmailClient {
	t.Helper()
	client, err := NewEmailClient(SMTPConfig{
		Host:     "smtp.example.com",
		Username: "notifier@example.com",
		Password: "secret",
	}, &channelTestLogger{})
	if err != nil {
		t.Fatalf("new email client: %v", err)
	}
	return client
}

func TestEmailSend_BuildsMessageAndAddresses(t *testing.T) {
	client := newEmailClient(t)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	client.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := client.Send(context.Background(), "user@example.com", "Deal won", "Deal d-9 closed."); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected addr %s", gotAddr)
	}
	if gotFrom != "notifier@example.com" {
		t.Fatalf("unexpected from %s", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "user@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	raw := string(gotMsg)
	for _, fragment := range []string{
		"From: notifier@example.com\r\n",
		"To: user@example.com\r\n",
		"Subject: Deal won\r\n",
		"Content-Type: text/plain; charset=UTF-8\r\n\r\nDeal d-9 closed.",
	} {
		if !strings.Contains(raw, fragment) {
			t.Fatalf("message missing %q:\n%s", fragment, raw)
		}
	}
}

func TestEmailSend_RelayFailureIsTransient(t *testing.T) {
	client := newEmailClient(t)
	client.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("451 temporary local problem")
	}

	err := client.Send(context.Background(), "user@example.com", "subject", "body")
	assertSendError(t, err, http.StatusBadGateway, "smtp_error")
}

func TestEmailSend_ValidatesRecipientAndSubject(t *testing.T) {
	client := newEmailClient(t)
	client.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("relay must not be reached")
		return nil
	}

	err := client.Send(context.Background(), "", "subject", "body")
	assertSendError(t, err, http.StatusBadRequest, "missing_recipient")

	err = client.Send(context.Background(), "user@example.com", " ", "body")
	assertSendError(t, err, http.StatusBadRequest, "missing_subject")
}

func TestNewEmailClient_RequiresRelayConfig(t *testing.T) {
	if _, err := NewEmailClient(SMTPConfig{Username: "u", Password: "p"}, &channelTestLogger{}); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := NewEmailClient(SMTPConfig{Host: "h", Password: "p"}, &channelTestLogger{}); err == nil {
		t.Fatal("expected error without username")
	}
	if _, err := NewEmailClient(SMTPConfig{Host: "h", Username: "u"}, &channelTestLogger{}); err == nil {
		t.Fatal("expected error without password")
	}
}
