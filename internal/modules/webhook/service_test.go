package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// Validation happens before any database access, so a nil-DB service is
// enough to exercise every rejection path.
func TestCreateValidation(t *testing.T) {
	svc := NewService(nil, zap.NewNop(), nil)

	tests := []struct {
		name    string
		dto     CreateWebhookDTO
		wantErr error
	}{
		{
			name:    "plain http rejected",
			dto:     CreateWebhookDTO{PayloadURL: "http://partner.example/hooks", Events: []string{EventBountyCreated}},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "unknown event rejected",
			dto:     CreateWebhookDTO{PayloadURL: "https://partner.example/hooks", Events: []string{"mystery.event"}},
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "empty events rejected",
			dto:     CreateWebhookDTO{PayloadURL: "https://partner.example/hooks"},
			wantErr: ErrNoEvents,
		},
		{
			name: "short secret rejected",
			dto: CreateWebhookDTO{
				PayloadURL: "https://partner.example/hooks",
				Events:     []string{EventBountyCreated},
				Secret:     "too-short",
			},
			wantErr: ErrSecretTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create("", &tt.dto)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEventsIsACopy(t *testing.T) {
	events := Events()
	assert.Len(t, events, len(eventEnum))

	events[0] = "mutated"
	assert.NotEqual(t, "mutated", Events()[0])
}
