package optout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/likenesshq/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestTransitionFor(t *testing.T) {
	tests := []struct {
		name        string
		commType    models.CommunicationType
		wantStatus  models.OptOutStatus
		transitions bool
	}{
		{name: "confirmation confirms", commType: models.CommConfirmation, wantStatus: models.OptOutConfirmed, transitions: true},
		{name: "denial denies", commType: models.CommDenial, wantStatus: models.OptOutDenied, transitions: true},
		{name: "plain response keeps status", commType: models.CommResponse, transitions: false},
		{name: "unknown type keeps status", commType: models.CommunicationType("bogus"), transitions: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, transitions := transitionFor(tt.commType)
			assert.Equal(t, tt.transitions, transitions)
			if tt.transitions {
				assert.Equal(t, tt.wantStatus, status)
			}
		})
	}
}

func TestEligibleCompanies(t *testing.T) {
	emailCo := func(id, slug string) models.CompanyModel {
		c := models.CompanyModel{
			Slug:         slug,
			Name:         slug,
			OptOutMethod: models.MethodEmail,
			OptOutEmail:  "privacy@" + slug + ".test",
			Active:       true,
		}
		c.ID = id
		return c
	}

	webForm := emailCo("c-web", "webform-co")
	webForm.OptOutMethod = models.MethodWebForm
	webForm.OptOutEmail = ""

	inactive := emailCo("c-inactive", "inactive-co")
	inactive.Active = false

	noEmail := emailCo("c-noemail", "noemail-co")
	noEmail.OptOutEmail = ""

	companies := []models.CompanyModel{
		emailCo("c-fresh", "fresh-co"),
		emailCo("c-sent", "sent-co"),
		emailCo("c-restart", "restart-co"),
		webForm,
		inactive,
		noEmail,
	}
	requests := []models.OptOutRequestModel{
		{CompanyID: "c-sent", Status: models.OptOutSent},
		{CompanyID: "c-restart", Status: models.OptOutNotStarted},
	}

	out := eligibleCompanies(companies, requests)

	ids := make([]string, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	// Fresh companies and ones whose request never started are eligible;
	// anything already past not_started, inactive, or unreachable by
	// email is skipped.
	assert.Equal(t, []string{"c-fresh", "c-restart"}, ids)
}

func batchCompanies(n int) []models.CompanyModel {
	out := make([]models.CompanyModel, 0, n)
	for i := 0; i < n; i++ {
		c := models.CompanyModel{Slug: "co", Active: true}
		c.ID = string(rune('a' + i))
		out = append(out, c)
	}
	return out
}

func TestRunBatchPartialFailure(t *testing.T) {
	companies := batchCompanies(4)
	failID := companies[1].ID

	limiter := rate.NewLimiter(rate.Inf, 1)
	result := runBatch(context.Background(), companies, limiter, func(c models.CompanyModel) error {
		if c.ID == failID {
			return errors.New("smtp refused")
		}
		return nil
	})

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 4)
	assert.Equal(t, "smtp refused", result.Items[1].Error)
	assert.False(t, result.Items[1].Sent)
	assert.True(t, result.Items[2].Sent, "a failure must not stop later sends")
	assert.NotEmpty(t, result.Elapsed)
}

func TestRunBatchPacing(t *testing.T) {
	const gap = 30 * time.Millisecond
	companies := batchCompanies(3)
	limiter := rate.NewLimiter(rate.Every(gap), 1)

	start := time.Now()
	result := runBatch(context.Background(), companies, limiter, func(models.CompanyModel) error {
		return nil
	})
	elapsed := time.Since(start)

	assert.Equal(t, 3, result.Sent)
	// First send is immediate, the next two each wait one gap.
	assert.GreaterOrEqual(t, elapsed, 2*gap)
}

func TestRunBatchContextCancelled(t *testing.T) {
	companies := batchCompanies(3)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := runBatch(ctx, companies, limiter, func(models.CompanyModel) error {
		calls++
		return nil
	})

	assert.Equal(t, 1, result.Sent, "only the first pre-wait send goes out")
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, calls)
	assert.Len(t, result.Items, 3)
}
