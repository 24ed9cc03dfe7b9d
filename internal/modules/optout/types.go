package optout

import (
	"context"
	"errors"
	"time"

	"github.com/likenesshq/core/internal/models"
	"github.com/likenesshq/core/internal/pkg/mail"
)

var (
	ErrCompanyNotFound = errors.New("company not found")
	ErrRequestNotFound = errors.New("opt-out request not found")
	ErrNotAutomatable  = errors.New("company does not accept opt-out notices by email")
	ErrAlreadySent     = errors.New("an opt-out notice was already sent to this company")
	ErrBadTransition   = errors.New("response type is not valid for the request's current status")
	ErrNotCompletable  = errors.New("request cannot be marked completed from its current status")
)

// Mailer is the slice of the mail sender this module needs.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) (string, error)
}

// EventPublisher fans domain events out to registered webhooks.
type EventPublisher interface {
	Publish(event string, data interface{})
}

// transitionFor maps an inbound communication type to the request
// status it drives. Plain responses leave the status alone.
func transitionFor(t models.CommunicationType) (models.OptOutStatus, bool) {
	switch t {
	case models.CommConfirmation:
		return models.OptOutConfirmed, true
	case models.CommDenial:
		return models.OptOutDenied, true
	case models.CommResponse:
		return "", false
	default:
		return "", false
	}
}

// eligibleCompanies filters the batch candidates: active, reachable by
// email, and not already past not_started for this user.
func eligibleCompanies(companies []models.CompanyModel, requests []models.OptOutRequestModel) []models.CompanyModel {
	started := make(map[string]struct{}, len(requests))
	for _, r := range requests {
		if r.Status.Terminal() {
			started[r.CompanyID] = struct{}{}
		}
	}

	out := make([]models.CompanyModel, 0, len(companies))
	for _, c := range companies {
		if !c.Active || !c.Automatable() {
			continue
		}
		if _, ok := started[c.ID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

type RecordResponseDTO struct {
	RequestID         string `json:"request_id" binding:"required"`
	CommunicationType string `json:"communication_type" binding:"required"` // confirmation | denial | response
	Subject           string `json:"subject"`
	ResponseText      string `json:"response_text" binding:"required"`
}

type CompleteDTO struct {
	CompanySlug string `json:"company_slug" binding:"required"`
	Notes       string `json:"notes"`
}

type SendDTO struct {
	CompanySlug string `json:"company_slug" binding:"required"`
}

// BatchItem is the per-company outcome of a batch run.
type BatchItem struct {
	CompanyID   string `json:"company_id"`
	CompanySlug string `json:"company_slug"`
	Sent        bool   `json:"sent"`
	Error       string `json:"error,omitempty"`
}

// BatchResult summarizes a batch run. Failures never abort the batch.
type BatchResult struct {
	Total   int         `json:"total"`
	Sent    int         `json:"sent"`
	Failed  int         `json:"failed"`
	Items   []BatchItem `json:"items"`
	Elapsed string      `json:"elapsed"`
}

type requestResponse struct {
	ID             string                      `json:"id"`
	CompanyID      string                      `json:"company_id"`
	CompanySlug    string                      `json:"company_slug"`
	Method         models.OptOutMethod         `json:"method"`
	Status         models.OptOutStatus         `json:"status"`
	LastSentAt     *time.Time                  `json:"last_sent_at,omitempty"`
	ConfirmedAt    *time.Time                  `json:"confirmed_at,omitempty"`
	Notes          string                      `json:"notes,omitempty"`
	Created        time.Time                   `json:"created"`
	Modified       time.Time                   `json:"modified"`
	Communications []models.CommunicationModel `json:"communications,omitempty"`
}

func toResponse(r *models.OptOutRequestModel) requestResponse {
	return requestResponse{
		ID: r.ID, CompanyID: r.CompanyID, CompanySlug: r.CompanySlug,
		Method: r.Method, Status: r.Status,
		LastSentAt: r.LastSentAt, ConfirmedAt: r.ConfirmedAt, Notes: r.Notes,
		Created: r.CreatedAt, Modified: r.UpdatedAt,
		Communications: r.Communications,
	}
}
