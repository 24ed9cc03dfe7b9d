package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/likenesshq/core/internal/config"
	"github.com/likenesshq/core/internal/models"
	"github.com/likenesshq/core/internal/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	deliverTimeout   = 10 * time.Second
	responseBodyCap  = 2048
	dispatchWorkers  = 4
	headerSignature  = "X-Likeness-Signature"
	headerEvent      = "X-Likeness-Event"
	headerDeliveryID = "X-Likeness-Delivery"

	// claimWindow keeps a claimed row out of the sweep while its POST
	// is in flight. A worker that dies mid-attempt releases the row
	// when the window lapses.
	claimWindow = 30 * time.Second
)

// Dispatcher drains queued webhook deliveries with a bounded worker
// pool. Deliveries survive restarts because the queue is backed by
// pending rows; the channel is only a wake-up signal.
type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	client      *http.Client
	queue       chan string
	maxAttempts int
	backoffBase time.Duration
}

func NewDispatcher(db *gorm.DB, log *zap.Logger, cfg config.WebhookConfig) *Dispatcher {
	return &Dispatcher{
		db:          db,
		log:         log,
		client:      &http.Client{Timeout: deliverTimeout},
		queue:       make(chan string, cfg.QueueSize),
		maxAttempts: cfg.MaxAttempts,
		backoffBase: time.Duration(cfg.BackoffBaseSec) * time.Second,
	}
}

// Start launches the delivery workers. They stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < dispatchWorkers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-d.queue:
					d.attempt(ctx, id)
				}
			}
		}()
	}
}

// Enqueue signals the workers to attempt a delivery. A full queue is
// not an error: the sweep job will pick the row up later.
func (d *Dispatcher) Enqueue(id string) {
	select {
	case d.queue <- id:
	default:
		d.log.Warn("webhook dispatch queue full, deferring to sweep", zap.String("delivery_id", id))
	}
}

// SweepDue re-queues pending deliveries whose next attempt is due.
// Registered as a cron job; also the recovery path after a restart.
func (d *Dispatcher) SweepDue(ctx context.Context) error {
	var ids []string
	err := d.db.WithContext(ctx).Model(&models.WebhookDeliveryModel{}).
		Where("status = ? AND next_attempt_at <= ?", models.DeliveryPending, time.Now()).
		Order("next_attempt_at ASC").
		Limit(500).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	for _, id := range ids {
		d.Enqueue(id)
	}
	return nil
}

// attempt loads a due delivery, performs the HTTP POST and records the
// outcome, scheduling a retry when the attempt budget allows.
func (d *Dispatcher) attempt(ctx context.Context, id string) {
	var delivery models.WebhookDeliveryModel
	if err := d.db.First(&delivery, "id = ?", id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			d.log.Error("webhook delivery load failed", zap.String("delivery_id", id), zap.Error(err))
		}
		return
	}
	if delivery.Status != models.DeliveryPending {
		return
	}
	if delivery.NextAttemptAt != nil && delivery.NextAttemptAt.After(time.Now()) {
		return
	}

	// The sweep and a direct enqueue can both wake workers for the same
	// id. Claiming the row with a conditional update makes sure exactly
	// one of them carries the attempt.
	hold := time.Now().Add(claimWindow)
	claim := d.db.Model(&models.WebhookDeliveryModel{}).
		Where("id = ? AND status = ? AND attempts = ?", delivery.ID, models.DeliveryPending, delivery.Attempts).
		Update("next_attempt_at", &hold)
	if claim.Error != nil {
		d.log.Error("webhook delivery claim failed", zap.String("delivery_id", delivery.ID), zap.Error(claim.Error))
		return
	}
	if claim.RowsAffected == 0 {
		return
	}

	var hook models.WebhookModel
	if err := d.db.First(&hook, "id = ?", delivery.HookID).Error; err != nil {
		d.fail(&delivery, 0, "", "webhook endpoint no longer exists")
		return
	}
	if !hook.Enabled {
		d.fail(&delivery, 0, "", "webhook endpoint is disabled")
		return
	}

	status, respBody, err := d.deliver(ctx, &hook, &delivery)
	delivery.Attempts++

	if err == nil && status >= 200 && status < 300 {
		now := time.Now()
		updates := map[string]interface{}{
			"status":          models.DeliveryDelivered,
			"attempts":        delivery.Attempts,
			"response_status": status,
			"response_body":   respBody,
			"last_error":      "",
			"next_attempt_at": nil,
			"delivered_at":    &now,
		}
		if err := d.db.Model(&models.WebhookDeliveryModel{}).Where("id = ?", delivery.ID).Updates(updates).Error; err != nil {
			d.log.Error("webhook delivery update failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
		}
		metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
		return
	}

	errMsg := fmt.Sprintf("endpoint returned %d", status)
	if err != nil {
		errMsg = err.Error()
	}

	if delivery.Attempts >= d.maxAttempts {
		d.fail(&delivery, status, respBody, errMsg)
		return
	}

	next := time.Now().Add(d.backoffFor(delivery.Attempts))
	updates := map[string]interface{}{
		"attempts":        delivery.Attempts,
		"response_status": status,
		"response_body":   respBody,
		"last_error":      errMsg,
		"next_attempt_at": &next,
	}
	if err := d.db.Model(&models.WebhookDeliveryModel{}).Where("id = ?", delivery.ID).Updates(updates).Error; err != nil {
		d.log.Error("webhook delivery update failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
	}
	metrics.WebhookDeliveries.WithLabelValues("retry").Inc()
}

func (d *Dispatcher) fail(delivery *models.WebhookDeliveryModel, status int, respBody, errMsg string) {
	updates := map[string]interface{}{
		"status":          models.DeliveryFailed,
		"attempts":        delivery.Attempts,
		"response_status": status,
		"response_body":   respBody,
		"last_error":      errMsg,
		"next_attempt_at": nil,
	}
	if err := d.db.Model(&models.WebhookDeliveryModel{}).Where("id = ?", delivery.ID).Updates(updates).Error; err != nil {
		d.log.Error("webhook delivery update failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
	}
	metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
	d.log.Warn("webhook delivery failed permanently",
		zap.String("delivery_id", delivery.ID),
		zap.String("hook_id", delivery.HookID),
		zap.String("event", delivery.Event),
		zap.Int("attempts", delivery.Attempts),
		zap.String("error", errMsg),
	)
}

// deliver performs the signed HTTP POST. It touches no database state so
// it can be tested against a plain httptest server.
func (d *Dispatcher) deliver(ctx context.Context, hook *models.WebhookModel, delivery *models.WebhookDeliveryModel) (int, string, error) {
	body := []byte(delivery.Payload)

	reqCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.PayloadURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, delivery.Event)
	req.Header.Set(headerDeliveryID, delivery.ID)
	req.Header.Set(headerSignature, signPayload(hook.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyCap))
	return resp.StatusCode, string(respBody), nil
}

// backoffFor returns the wait before the next attempt: base * 4^(n-1),
// so 30s, 2m, 8m, 32m with the default base.
func (d *Dispatcher) backoffFor(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(float64(d.backoffBase) * math.Pow(4, float64(attempts-1)))
}

// signPayload computes the HMAC-SHA256 of the body under the hook's
// secret, in the "sha256=<hex>" form receivers verify against.
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
