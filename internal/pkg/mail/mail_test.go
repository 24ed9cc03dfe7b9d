package mail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resendConfig() Config {
	return Config{
		Enable:    true,
		From:      "notices@likeness.test",
		ReplyTo:   "replies@likeness.test",
		UseResend: true,
		ResendKey: "re_test_key",
	}
}

func TestSendDisabled(t *testing.T) {
	s := New(Config{Enable: false})
	_, err := s.Send(context.Background(), Message{To: []string{"a@b.test"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, IsTransient(err))
}

func TestSendNoRecipients(t *testing.T) {
	s := New(resendConfig())
	_, err := s.Send(context.Background(), Message{})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestSendResendReturnsProviderID(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer srv.Close()

	s := NewWithEndpoint(resendConfig(), srv.URL)
	id, err := s.Send(context.Background(), Message{
		To:      []string{"privacy@acme.test"},
		Subject: "hello",
		HTML:    "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_123", id)
	assert.Equal(t, "Bearer re_test_key", gotAuth)
}

func TestSendResendErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{name: "server error is transient", status: 500, wantTransient: true},
		{name: "rate limited is transient", status: 429, wantTransient: true},
		{name: "bad request is permanent", status: 422, wantTransient: false},
		{name: "unauthorized is permanent", status: 401, wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			s := NewWithEndpoint(resendConfig(), srv.URL)
			_, err := s.Send(context.Background(), Message{To: []string{"privacy@acme.test"}})
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, IsTransient(err))
		})
	}
}

func TestIsTransientPlainError(t *testing.T) {
	assert.False(t, IsTransient(assert.AnError))
	assert.False(t, IsTransient(nil))
}
