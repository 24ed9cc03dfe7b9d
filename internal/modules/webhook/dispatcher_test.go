package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/likenesshq/core/internal/config"
	"github.com/likenesshq/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func testDispatcher() *Dispatcher {
	return NewDispatcher(nil, zap.NewNop(), config.WebhookConfig{
		MaxAttempts:    5,
		BackoffBaseSec: 30,
		QueueSize:      8,
	})
}

func TestSignPayload(t *testing.T) {
	secret := "0123456789abcdef"
	body := []byte(`{"event":"bounty.created"}`)

	sig := signPayload(secret, body)
	require.True(t, strings.HasPrefix(sig, "sha256="))

	// A receiver recomputing the HMAC must get the same value.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), sig)

	// Any body tamper breaks the signature.
	assert.NotEqual(t, sig, signPayload(secret, []byte(`{"event":"bounty.created" }`)))
	assert.NotEqual(t, sig, signPayload("another-secret-value", body))
}

func TestBackoffSchedule(t *testing.T) {
	d := testDispatcher()

	assert.Equal(t, 30*time.Second, d.backoffFor(1))
	assert.Equal(t, 2*time.Minute, d.backoffFor(2))
	assert.Equal(t, 8*time.Minute, d.backoffFor(3))
	assert.Equal(t, 32*time.Minute, d.backoffFor(4))
	assert.Equal(t, 30*time.Second, d.backoffFor(0), "attempts below 1 clamp to the base")
}

func TestDeliverSignsAndPosts(t *testing.T) {
	payload := `{"event":"contributor.opted_out","timestamp":1700000000000,"data":{}}`
	secret := "super-secret-hook-key"

	var got struct {
		body      string
		signature string
		event     string
		delivery  string
		ctype     string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		got.body = string(buf)
		got.signature = r.Header.Get("X-Likeness-Signature")
		got.event = r.Header.Get("X-Likeness-Event")
		got.delivery = r.Header.Get("X-Likeness-Delivery")
		got.ctype = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := &models.WebhookModel{PayloadURL: srv.URL, Secret: secret}
	delivery := &models.WebhookDeliveryModel{Event: EventContributorOptedOut, Payload: payload}
	delivery.ID = "dlv-1"

	d := testDispatcher()
	status, respBody, err := d.deliver(context.Background(), hook, delivery)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, status)
	assert.Empty(t, respBody)
	assert.Equal(t, payload, got.body)
	assert.Equal(t, signPayload(secret, []byte(payload)), got.signature)
	assert.Equal(t, EventContributorOptedOut, got.event)
	assert.Equal(t, "dlv-1", got.delivery)
	assert.Equal(t, "application/json", got.ctype)
}

func TestDeliverCapsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", 10*responseBodyCap)))
	}))
	defer srv.Close()

	hook := &models.WebhookModel{PayloadURL: srv.URL, Secret: "0123456789abcdef"}
	delivery := &models.WebhookDeliveryModel{Event: EventBountyCreated, Payload: "{}"}

	d := testDispatcher()
	status, respBody, err := d.deliver(context.Background(), hook, delivery)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Len(t, respBody, responseBodyCap)
}

func TestAttemptRequiresClaim(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	d := NewDispatcher(db, zap.NewNop(), config.WebhookConfig{
		MaxAttempts:    5,
		BackoffBaseSec: 30,
		QueueSize:      8,
	})

	due := time.Now().Add(-time.Minute)
	mock.ExpectQuery("SELECT \\* FROM `webhook_deliveries`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hook_id", "event", "status", "attempts", "next_attempt_at"}).
			AddRow("dlv-1", "hook-1", "bounty.created", "pending", 1, due))

	// Another worker claimed the row first: the conditional update hits
	// nothing and this worker must back off without posting.
	mock.ExpectExec("UPDATE `webhook_deliveries` SET `next_attempt_at`=\\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	d.attempt(context.Background(), "dlv-1")

	// No hook load, no outcome write: the mock would flag any extra SQL.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverConnectionError(t *testing.T) {
	// Closed server: the POST itself must fail, with no status recorded.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	hook := &models.WebhookModel{PayloadURL: srv.URL, Secret: "0123456789abcdef"}
	delivery := &models.WebhookDeliveryModel{Event: EventBountyCreated, Payload: "{}"}

	d := testDispatcher()
	status, _, err := d.deliver(context.Background(), hook, delivery)
	require.Error(t, err)
	assert.Equal(t, 0, status)
}
