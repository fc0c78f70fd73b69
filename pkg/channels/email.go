package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/nexocrm/notify/pkg/observability/logger"
)

type smtpSendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig configures the email relay.
type SMTPConfig struct {
	Host             string
	Port             int
	Username         string
	Password         string
	From             string
	OperationTimeout time.Duration
}

// EmailClient sends notification emails through a standard SMTP relay.
type EmailClient struct {
	cfg      SMTPConfig
	log      logger.Logger
	sendMail smtpSendMailFunc
}

// NewEmailClient creates an SMTP email client.
func NewEmailClient(cfg SMTPConfig, log logger.Logger) (*EmailClient, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("smtp username is required")
	}
	if strings.TrimSpace(cfg.Password) == "" {
		return nil, errors.New("smtp password is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	return &EmailClient{
		cfg:      cfg,
		log:      log,
		sendMail: smtp.SendMail,
	}, nil
}

// Send delivers one plain-text notification email.
func (c *EmailClient) Send(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return &SendError{Channel: "email", StatusCode: http.StatusBadRequest, Code: "missing_recipient", Message: "recipient is required"}
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return &SendError{Channel: "email", StatusCode: http.StatusBadRequest, Code: "missing_subject", Message: "subject is required"}
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
	raw := buildPlainMessage(c.cfg.From, to, subject, body)

	cctx, cancel := withTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()
	_ = cctx // smtp.SendMail has no context support.

	if err := c.sendMail(addr, auth, c.cfg.From, []string{to}, raw); err != nil {
		return &SendError{Channel: "email", StatusCode: http.StatusBadGateway, Code: "smtp_error", Message: err.Error()}
	}
	c.log.Debug("email sent", "to", to)
	return nil
}

func buildPlainMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
