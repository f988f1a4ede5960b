package sender

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/go-playground/validator/v10"
)

var emailTemplate = template.Must(template.New("email").Parse(
	`<html><body><h2>{{.Subject}}</h2><p>{{.Message}}</p>{{if .OrderID}}<p>Order: {{.OrderID}}</p>{{end}}</body></html>`,
))

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailChannel struct {
	cfg      SMTPConfig
	validate *validator.Validate
	sendMail sendMailFunc
}

func NewEmailChannel(cfg SMTPConfig) (*EmailChannel, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP_HOST not set")
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("SMTP_PORT not set")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP_FROM not set")
	}
	return &EmailChannel{cfg: cfg, validate: validator.New(), sendMail: smtp.SendMail}, nil
}

func (e *EmailChannel) Name() string { return models.ChannelEmail }

func (e *EmailChannel) Validate(recipient string) error {
	if err := e.validate.Var(recipient, "required,email"); err != nil {
		return fmt.Errorf("%w: %q is not an email address", ErrInvalidRecipient, recipient)
	}
	return nil
}

func (e *EmailChannel) Format(message string, opts Options) string {
	var buf bytes.Buffer
	data := struct{ Subject, Message, OrderID string }{opts.Subject, message, opts.OrderID}
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return template.HTMLEscapeString(message)
	}
	return buf.String()
}

func (e *EmailChannel) Deliver(ctx context.Context, recipient, body string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	addr := fmt.Sprintf("%s:%s", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	msg := []byte(
		"From: " + e.cfg.From + "\r\n" +
			"To: " + recipient + "\r\n" +
			"Subject: " + opts.Subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body,
	)

	if err := e.sendMail(addr, auth, e.cfg.From, []string{recipient}, msg); err != nil {
		return Result{}, fmt.Errorf("smtp send failed: %w", err)
	}

	now := time.Now()
	return Result{
		MessageID: fmt.Sprintf("smtp-%d", now.UnixNano()),
		SentAt:    now,
	}, nil
}
