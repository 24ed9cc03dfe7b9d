package optout

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/likenesshq/core/internal/config"
	"github.com/likenesshq/core/internal/models"
	"github.com/likenesshq/core/internal/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

func mockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	svc := NewService(db, zap.NewNop(), nil, nopPublisher{}, config.DispatchConfig{PacingMS: 1, BatchLimit: 100})
	return svc, mock
}

func TestListQueriesByOwnerAndStatus(t *testing.T) {
	svc, mock := mockService(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `optout_requests`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT \\* FROM `optout_requests`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "company_id", "company_slug", "method", "status"}).
			AddRow("req-1", "user-1", "co-1", "acme-ai", "email", "sent"))

	items, pag, err := svc.List("user-1", pagination.Query{Page: 1, Size: 20}, "sent")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "req-1", items[0].ID)
	assert.Equal(t, models.OptOutSent, items[0].Status)
	assert.Equal(t, int64(1), pag.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureRequestUpsertCollapses(t *testing.T) {
	svc, mock := mockService(t)

	user := &models.UserModel{}
	user.ID = "user-1"
	company := &models.CompanyModel{Slug: "acme-ai", OptOutMethod: models.MethodEmail}
	company.ID = "co-1"

	// Two calls for the same pair: the second insert collides with the
	// unique index and both calls read back the same row.
	for _, affected := range []int64{1, 0} {
		mock.ExpectExec("INSERT INTO `optout_requests`.*ON DUPLICATE KEY UPDATE").
			WillReturnResult(sqlmock.NewResult(0, affected))
		mock.ExpectQuery("SELECT \\* FROM `optout_requests` WHERE .*user_id = \\? AND company_id = \\?").
			WithArgs("user-1", "co-1", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "company_id", "company_slug", "status"}).
				AddRow("req-1", "user-1", "co-1", "acme-ai", "not_started"))
	}

	first, err := svc.ensureRequest(user, company)
	require.NoError(t, err)
	second, err := svc.ensureRequest(user, company)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordResponseConfirmation(t *testing.T) {
	svc, mock := mockService(t)

	mock.ExpectQuery("SELECT \\* FROM `optout_requests` WHERE .*id = \\? AND user_id = \\?").
		WithArgs("req-1", "user-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "company_id", "company_slug", "status"}).
			AddRow("req-1", "user-1", "co-1", "acme-ai", "sent"))

	// The inbound row and the status flip commit together.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `communications`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `optout_requests` SET `confirmed_at`=\\?,`status`=\\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT \\* FROM `optout_requests` WHERE .*id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("req-1", "user-1", "confirmed"))
	mock.ExpectQuery("SELECT \\* FROM `communications`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "type"}).
			AddRow("comm-1", "req-1", "confirmation"))

	req, err := svc.RecordResponse("user-1", &RecordResponseDTO{
		RequestID:         "req-1",
		CommunicationType: "confirmation",
		ResponseText:      "We have removed the images from our datasets.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OptOutConfirmed, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteBySlugCreatesRow(t *testing.T) {
	svc, mock := mockService(t)

	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow("user-1", "ada@example.test", "Ada Lovelace"))
	mock.ExpectQuery("SELECT \\* FROM `companies`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "opt_out_method", "active"}).
			AddRow("co-1", "formtech", "FormTech", "web_form", true))

	// No prior tracking row: complete-by-slug creates it on the fly.
	mock.ExpectExec("INSERT INTO `optout_requests`.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `optout_requests` WHERE .*user_id = \\? AND company_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "company_id", "company_slug", "status"}).
			AddRow("req-1", "user-1", "co-1", "formtech", "not_started"))
	mock.ExpectExec("UPDATE `optout_requests` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `optout_requests` WHERE .*id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "status"}).
			AddRow("req-1", "user-1", "completed_web"))

	req, err := svc.Complete("user-1", &CompleteDTO{CompanySlug: "formtech", Notes: "done via their form"})
	require.NoError(t, err)
	assert.Equal(t, models.OptOutCompletedWeb, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendNoticeUnknownCompanySlug(t *testing.T) {
	svc, mock := mockService(t)

	mock.ExpectQuery("SELECT \\* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1"))
	mock.ExpectQuery("SELECT \\* FROM `companies`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.SendNotice(context.Background(), "user-1", "no-such-company")
	assert.ErrorIs(t, err, ErrCompanyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownRequest(t *testing.T) {
	svc, mock := mockService(t)

	mock.ExpectQuery("SELECT \\* FROM `optout_requests`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Get("user-1", "missing")
	assert.ErrorIs(t, err, ErrRequestNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
