package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claudioc0/ecommerce0-sub001/models"
	"github.com/go-playground/validator/v10"
)

const (
	twilioBaseURL = "https://api.twilio.com"
	smsMaxLength  = 160
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// BaseURL overrides the Twilio API host.
	BaseURL string
}

type SMSChannel struct {
	cfg        TwilioConfig
	validate   *validator.Validate
	httpClient *http.Client
}

func NewSMSChannel(cfg TwilioConfig) (*SMSChannel, error) {
	if cfg.AccountSID == "" {
		return nil, fmt.Errorf("TWILIO_ACCOUNT_SID not set")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("TWILIO_AUTH_TOKEN not set")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("TWILIO_FROM_NUMBER not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioBaseURL
	}
	return &SMSChannel{
		cfg:        cfg,
		validate:   validator.New(),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *SMSChannel) Name() string { return models.ChannelSMS }

// NormalizePhone strips formatting characters and prefixes a '+' so numbers
// like "(11) 98765-4321" can be checked as E.164.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}

func (s *SMSChannel) Validate(recipient string) error {
	if err := s.validate.Var(NormalizePhone(recipient), "required,e164"); err != nil {
		return fmt.Errorf("%w: %q is not a phone number", ErrInvalidRecipient, recipient)
	}
	return nil
}

func (s *SMSChannel) Format(message string, _ Options) string {
	msg := strings.Join(strings.Fields(message), " ")
	if r := []rune(msg); len(r) > smsMaxLength {
		msg = string(r[:smsMaxLength-3]) + "..."
	}
	return msg
}

type twilioResponse struct {
	SID string `json:"sid"`
}

func (s *SMSChannel) Deliver(ctx context.Context, recipient, body string, _ Options) (Result, error) {
	apiURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.BaseURL, s.cfg.AccountSID)

	formData := url.Values{}
	formData.Set("To", NormalizePhone(recipient))
	formData.Set("From", s.cfg.FromNumber)
	formData.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("twilio error %s: %s", resp.Status, string(respBody))
	}

	now := time.Now()
	messageID := fmt.Sprintf("twilio-%d", now.UnixNano())
	var tr twilioResponse
	if json.Unmarshal(respBody, &tr) == nil && tr.SID != "" {
		messageID = tr.SID
	}
	return Result{MessageID: messageID, SentAt: now}, nil
}
