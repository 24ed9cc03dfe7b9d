package app

import (
	"context"
	"fmt"
	"time"

	pkgcron "github.com/likenesshq/core/internal/pkg/cron"
	pkgredis "github.com/likenesshq/core/internal/pkg/redis"
	"github.com/likenesshq/core/internal/pkg/session"
	"github.com/likenesshq/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

// registerCronJobs registers all scheduled background jobs.
func (a *App) registerCronJobs(rc *pkgredis.Client) {
	cronLogger := a.logger.Named("cron")
	taskSvc := taskqueue.NewService(rc)

	// Webhook deliveries live in the DB; the in-memory queue is only a
	// wake-up. The sweep recovers deliveries due after a restart or a
	// full queue.
	a.sched.Register(pkgcron.Job{
		Name:        "sweep_webhook_deliveries",
		Description: "re-enqueue webhook deliveries that are due",
		Interval:    30 * time.Second,
		Timeout:     25 * time.Second,
		Fn: func(ctx context.Context) error {
			return a.dispatcher.SweepDue(ctx)
		},
	})

	a.sched.Register(pkgcron.Job{
		Name:        "purge_expired_sessions",
		Description: "hard-delete expired and revoked sessions",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := session.PurgeExpired(a.db)
			if err != nil {
				cronLogger.Warn("session purge failed", zap.Error(err))
				return err
			}
			cronLogger.Info(fmt.Sprintf("purged %d expired sessions", n))
			return nil
		},
	})

	a.sched.Register(pkgcron.Job{
		Name:        "cleanup_finished_tasks",
		Description: "delete finished scan tasks older than 7 days",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -7).UnixMilli()
			if err := taskSvc.DeleteCompleted(ctx, cutoff); err != nil {
				cronLogger.Warn("task cleanup failed", zap.Error(err))
				return err
			}
			return nil
		},
	})
}
