package models

import "time"

// WebhookModel is a partner-registered endpoint for domain events,
// owned by the API key that created it.
type WebhookModel struct {
	Base
	KeyID      string   `json:"key_id"      gorm:"index;not null"`
	PayloadURL string   `json:"payload_url" gorm:"not null"`
	Events     []string `json:"events"      gorm:"serializer:json"`
	Secret     string   `json:"-"           gorm:"not null"`
	Enabled    bool     `json:"enabled"     gorm:"default:true"`

	Deliveries []WebhookDeliveryModel `json:"deliveries,omitempty" gorm:"foreignKey:HookID"`
}

func (WebhookModel) TableName() string { return "webhooks" }

// WebhookDeliveryStatus is the delivery lifecycle of one event to one hook.
type WebhookDeliveryStatus string

const (
	DeliveryPending   WebhookDeliveryStatus = "pending"
	DeliveryDelivered WebhookDeliveryStatus = "delivered"
	DeliveryFailed    WebhookDeliveryStatus = "failed"
)

// WebhookDeliveryModel records one event's delivery attempts to one
// endpoint. Retained indefinitely for the partner-facing delivery log.
type WebhookDeliveryModel struct {
	Base
	HookID         string                `json:"hook_id" gorm:"index;not null"`
	Event          string                `json:"event"   gorm:"not null"`
	Payload        string                `json:"payload" gorm:"type:longtext"`
	Attempts       int                   `json:"attempts"`
	Status         WebhookDeliveryStatus `json:"status"  gorm:"default:pending;index"`
	ResponseStatus int                   `json:"response_status"`
	ResponseBody   string                `json:"response_body" gorm:"size:2048"`
	LastError      string                `json:"last_error"`
	NextAttemptAt  *time.Time            `json:"next_attempt_at" gorm:"index"`
	DeliveredAt    *time.Time            `json:"delivered_at"`
}

func (WebhookDeliveryModel) TableName() string { return "webhook_deliveries" }
