package models

import "time"

// OptOutStatus is the lifecycle state of one opt-out request.
type OptOutStatus string

const (
	OptOutNotStarted        OptOutStatus = "not_started"
	OptOutSent              OptOutStatus = "sent"
	OptOutConfirmed         OptOutStatus = "confirmed"
	OptOutDenied            OptOutStatus = "denied"
	OptOutCompletedWeb      OptOutStatus = "completed_web"
	OptOutCompletedSettings OptOutStatus = "completed_settings"
)

// Terminal reports whether the request is past the point of re-sending.
func (s OptOutStatus) Terminal() bool { return s != OptOutNotStarted }

// OptOutRequestModel tracks contacting one company on behalf of one user.
// The composite unique index is the concurrency-control mechanism: two
// racing sends for the same pair collapse into one row.
type OptOutRequestModel struct {
	Base
	UserID      string       `json:"user_id"      gorm:"uniqueIndex:idx_optout_user_company;not null"`
	CompanyID   string       `json:"company_id"   gorm:"uniqueIndex:idx_optout_user_company;not null"`
	CompanySlug string       `json:"company_slug" gorm:"index;not null"`
	Method      OptOutMethod `json:"method"       gorm:"default:email"`
	Status      OptOutStatus `json:"status"       gorm:"default:not_started;index"`
	LastSentAt  *time.Time   `json:"last_sent_at"`
	ConfirmedAt *time.Time   `json:"confirmed_at"`
	Notes       string       `json:"notes"`

	Communications []CommunicationModel `json:"communications,omitempty" gorm:"foreignKey:RequestID"`
}

func (OptOutRequestModel) TableName() string { return "optout_requests" }

// CommunicationDirection distinguishes messages we sent from replies.
type CommunicationDirection string

const (
	DirectionOutbound CommunicationDirection = "outbound"
	DirectionInbound  CommunicationDirection = "inbound"
)

// CommunicationType classifies a message; inbound types drive the
// owning request's status transition.
type CommunicationType string

const (
	CommInitialNotice CommunicationType = "initial_notice"
	CommFollowUp      CommunicationType = "follow_up"
	CommConfirmation  CommunicationType = "confirmation"
	CommDenial        CommunicationType = "denial"
	CommResponse      CommunicationType = "response"
)

// CommunicationModel is one immutable message in the audit trail of an
// opt-out request. Rows are never updated or deleted.
type CommunicationModel struct {
	Base
	RequestID         string                 `json:"request_id" gorm:"index;not null"`
	UserID            string                 `json:"user_id"    gorm:"index;not null"`
	Direction         CommunicationDirection `json:"direction"  gorm:"not null"`
	Type              CommunicationType      `json:"type"       gorm:"not null"`
	Subject           string                 `json:"subject"`
	Body              string                 `json:"body"         gorm:"type:longtext"`
	ContentHash       string                 `json:"content_hash" gorm:"type:char(64)"`
	Recipient         string                 `json:"recipient"`
	ProviderMessageID string                 `json:"provider_message_id"`
	SentAt            time.Time              `json:"sent_at"`
}

func (CommunicationModel) TableName() string { return "communications" }
