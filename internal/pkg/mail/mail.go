package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds mail provider settings.
type Config struct {
	Enable    bool   `json:"enable"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	User      string `json:"user"`
	Pass      string `json:"pass"`
	From      string `json:"from"`
	ReplyTo   string `json:"reply_to"`
	UseResend bool   `json:"use_resend"`
	ResendKey string `json:"resend_key"`
}

// Message is a single email to send.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// DeliveryError describes a failed send. Transient failures (network
// errors, provider 5xx) may be retried; permanent ones (provider 4xx)
// must not be.
type DeliveryError struct {
	Transient bool
	Err       error
}

func (e *DeliveryError) Error() string { return e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable delivery failure.
func IsTransient(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Transient
	}
	return false
}

// ErrDisabled is returned when sending is attempted with mail disabled.
var ErrDisabled = errors.New("mail sending is disabled")

// Sender sends emails via SMTP or Resend and returns the provider
// message ID of each accepted message.
type Sender struct {
	cfg        Config
	httpClient *http.Client
	resendURL  string
}

func New(cfg Config) *Sender {
	return &Sender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		resendURL:  "https://api.resend.com/emails",
	}
}

// NewWithEndpoint is like New but overrides the Resend API endpoint.
func NewWithEndpoint(cfg Config, endpoint string) *Sender {
	s := New(cfg)
	if endpoint != "" {
		s.resendURL = endpoint
	}
	return s
}

// Send dispatches an email and returns the provider message ID.
// Uses Resend if configured, otherwise SMTP.
func (s *Sender) Send(ctx context.Context, msg Message) (string, error) {
	if !s.cfg.Enable {
		return "", &DeliveryError{Transient: false, Err: ErrDisabled}
	}
	if len(msg.To) == 0 {
		return "", &DeliveryError{Transient: false, Err: errors.New("no recipients")}
	}
	if s.cfg.UseResend && s.cfg.ResendKey != "" {
		return s.sendResend(ctx, msg)
	}
	return s.sendSMTP(msg)
}

// sendSMTP sends via net/smtp. SMTP does not echo back a provider ID,
// so we stamp our own Message-ID header and return it.
func (s *Sender) sendSMTP(msg Message) (string, error) {
	host := s.cfg.Host
	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), host)

	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString(fmt.Sprintf("Message-ID: %s\r\n", messageID))
	body.WriteString(fmt.Sprintf("From: %s\r\n", from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	body.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	if s.cfg.ReplyTo != "" {
		body.WriteString(fmt.Sprintf("Reply-To: %s\r\n", s.cfg.ReplyTo))
	}
	body.WriteString("\r\n")
	body.WriteString(msg.HTML)

	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, host)
	if err := smtp.SendMail(addr, auth, from, msg.To, body.Bytes()); err != nil {
		// net/smtp surfaces both dial failures and SMTP rejects here;
		// treat them all as retryable.
		return "", &DeliveryError{Transient: true, Err: err}
	}
	return messageID, nil
}

// sendResend sends via the Resend HTTP API.
func (s *Sender) sendResend(ctx context.Context, msg Message) (string, error) {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.User
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"from":     from,
		"to":       msg.To,
		"subject":  msg.Subject,
		"html":     msg.HTML,
		"text":     msg.Text,
		"reply_to": s.cfg.ReplyTo,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.resendURL, bytes.NewReader(payload))
	if err != nil {
		return "", &DeliveryError{Transient: false, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ResendKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &DeliveryError{Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		err := fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message)
		return "", &DeliveryError{Transient: resp.StatusCode >= 500 || resp.StatusCode == 429, Err: err}
	}

	var ok struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return "", &DeliveryError{Transient: false, Err: fmt.Errorf("resend response: %w", err)}
	}
	return ok.ID, nil
}
