package webhook

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/likenesshq/core/internal/models"
)

// Events partners can subscribe to. Unknown event names are rejected at
// registration time so typos surface immediately instead of silently
// never firing.
const (
	EventContributorOnboarded     = "contributor.onboarded"
	EventContributorConsent       = "contributor.consent_updated"
	EventContributorOptedOut      = "contributor.opted_out"
	EventContributorPhotosAdded   = "contributor.photos_added"
	EventBountyCreated            = "bounty.created"
	EventBountySubmissionReviewed = "bounty.submission_reviewed"
)

var eventEnum = []string{
	EventContributorOnboarded,
	EventContributorConsent,
	EventContributorOptedOut,
	EventContributorPhotosAdded,
	EventBountyCreated,
	EventBountySubmissionReviewed,
}

var acceptedEvents = func() map[string]struct{} {
	out := make(map[string]struct{}, len(eventEnum))
	for _, event := range eventEnum {
		out[event] = struct{}{}
	}
	return out
}()

var (
	ErrInvalidURL     = errors.New("payload_url must be a valid https:// URL")
	ErrUnknownEvent   = errors.New("events contains an unknown event name")
	ErrNoEvents       = errors.New("events must not be empty")
	ErrSecretTooShort = errors.New("secret must be at least 16 characters")
	ErrNotFound       = errors.New("webhook not found")
	ErrHookDisabled   = errors.New("webhook is disabled")
)

const minSecretLength = 16

// normalizeEvents lowercases, dedupes and validates the event list.
func normalizeEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(events))
	for _, event := range events {
		next := strings.ToLower(strings.TrimSpace(event))
		if next == "" {
			continue
		}
		if _, ok := acceptedEvents[next]; !ok {
			return nil, ErrUnknownEvent
		}
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	if len(out) == 0 {
		return nil, ErrNoEvents
	}
	return out, nil
}

// validatePayloadURL enforces HTTPS so signed payloads never travel in
// the clear.
func validatePayloadURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "https" || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func containsEvent(events []string, event string) bool {
	event = strings.ToLower(strings.TrimSpace(event))
	for _, item := range events {
		if strings.ToLower(strings.TrimSpace(item)) == event {
			return true
		}
	}
	return false
}

type CreateWebhookDTO struct {
	PayloadURL string   `json:"payload_url" binding:"required"`
	Events     []string `json:"events"      binding:"required"`
	Secret     string   `json:"secret"`
	Enabled    *bool    `json:"enabled"`
}

type UpdateWebhookDTO struct {
	PayloadURL *string  `json:"payload_url"`
	Events     []string `json:"events"`
	Secret     *string  `json:"secret"`
	Enabled    *bool    `json:"enabled"`
}

type webhookResponse struct {
	ID         string    `json:"id"`
	PayloadURL string    `json:"payload_url"`
	Events     []string  `json:"events"`
	Enabled    bool      `json:"enabled"`
	Secret     string    `json:"secret,omitempty"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

func toResponse(w *models.WebhookModel, includeSecret bool) webhookResponse {
	events := w.Events
	if events == nil {
		events = []string{}
	}
	out := webhookResponse{
		ID: w.ID, PayloadURL: w.PayloadURL, Events: events,
		Enabled: w.Enabled,
		Created: w.CreatedAt, Modified: w.UpdatedAt,
	}
	if includeSecret {
		out.Secret = w.Secret
	}
	return out
}

type deliveryResponse struct {
	ID             string     `json:"id"`
	HookID         string     `json:"hook_id"`
	Event          string     `json:"event"`
	Payload        string     `json:"payload"`
	Attempts       int        `json:"attempts"`
	Status         string     `json:"status"`
	ResponseStatus int        `json:"response_status,omitempty"`
	ResponseBody   string     `json:"response_body,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	Created        time.Time  `json:"created"`
}

func toDeliveryResponse(d *models.WebhookDeliveryModel) deliveryResponse {
	return deliveryResponse{
		ID: d.ID, HookID: d.HookID, Event: d.Event, Payload: d.Payload,
		Attempts: d.Attempts, Status: string(d.Status),
		ResponseStatus: d.ResponseStatus, ResponseBody: d.ResponseBody,
		LastError: d.LastError, NextAttemptAt: d.NextAttemptAt,
		DeliveredAt: d.DeliveredAt, Created: d.CreatedAt,
	}
}
