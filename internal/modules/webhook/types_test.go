package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEvents(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr error
	}{
		{
			name: "valid events pass through",
			in:   []string{EventBountyCreated, EventContributorOptedOut},
			want: []string{EventBountyCreated, EventContributorOptedOut},
		},
		{
			name: "case and whitespace normalized",
			in:   []string{" Contributor.Opted_Out "},
			want: []string{EventContributorOptedOut},
		},
		{
			name: "duplicates collapse",
			in:   []string{EventBountyCreated, EventBountyCreated},
			want: []string{EventBountyCreated},
		},
		{
			name:    "unknown event rejected",
			in:      []string{"contributor.vanished"},
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "empty list rejected",
			in:      nil,
			wantErr: ErrNoEvents,
		},
		{
			name:    "only blanks rejected",
			in:      []string{"", "  "},
			wantErr: ErrNoEvents,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeEvents(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatePayloadURL(t *testing.T) {
	assert.NoError(t, validatePayloadURL("https://partner.example/hooks"))
	assert.NoError(t, validatePayloadURL("  https://partner.example:8443/hooks  "))

	for _, raw := range []string{
		"http://partner.example/hooks",
		"ftp://partner.example",
		"https://",
		"not-a-url",
		"",
	} {
		assert.ErrorIs(t, validatePayloadURL(raw), ErrInvalidURL, raw)
	}
}

func TestContainsEvent(t *testing.T) {
	events := []string{EventBountyCreated, EventContributorOptedOut}
	assert.True(t, containsEvent(events, EventBountyCreated))
	assert.True(t, containsEvent(events, "Contributor.Opted_Out"))
	assert.False(t, containsEvent(events, EventContributorOnboarded))
}
