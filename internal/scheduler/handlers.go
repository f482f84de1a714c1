package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/backup"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/quotes"
	"github.com/exportdesk-io/exportdesk-ce/internal/sync"
	"github.com/exportdesk-io/exportdesk-ce/internal/tasks"
)

// mailboxSyncer runs a full account/contact sync pass.
type mailboxSyncer interface {
	RunAll(ctx context.Context) (sync.Result, error)
}

// snapshotTaker takes one backup.
type snapshotTaker interface {
	Run(ctx context.Context, description string) (*backup.Info, error)
}

// reminderLister surfaces tasks whose reminder has arrived.
type reminderLister interface {
	DueReminders(ctx context.Context, now time.Time) ([]*models.Task, error)
}

// quoteExpirer sweeps sent quotes past their validity date.
type quoteExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Deps carries the engines the built-in jobs drive. Nil fields leave the
// matching job unregistered.
type Deps struct {
	Sync   mailboxSyncer
	Backup snapshotTaker
	Tasks  reminderLister
	Quotes quoteExpirer
	Logger *log.Logger
	Now    func() time.Time
}

// RegisterBuiltinHandlers wires the built-in jobs to their engines and
// returns the channel task reminders surface on.
func (s *Service) RegisterBuiltinHandlers(deps Deps) <-chan *models.Task {
	logger := deps.Logger
	if logger == nil {
		logger = s.logger
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	reminders := make(chan *models.Task, 32)

	if deps.Sync != nil {
		s.RegisterHandler(JobEmailSyncPoll, func(ctx context.Context, _ *models.ScheduledJob) error {
			result, err := deps.Sync.RunAll(ctx)
			if err != nil {
				return err
			}
			logger.Printf("[INFO] mailbox poll: %d scanned, %d saved, %d filtered, %d duplicates",
				result.Scanned, result.Saved, result.SkippedFiltered, result.SkippedDuplicates)
			if len(result.Errors) > 0 {
				return fmt.Errorf("mailbox poll finished with %d contact errors", len(result.Errors))
			}
			return nil
		})
	}

	if deps.Backup != nil {
		s.RegisterHandler(JobAutoBackup, func(ctx context.Context, _ *models.ScheduledJob) error {
			info, err := deps.Backup.Run(ctx, "scheduled backup")
			if err != nil {
				return err
			}
			logger.Printf("[INFO] scheduled backup %s complete", info.File)
			return nil
		})
	}

	if deps.Tasks != nil {
		s.RegisterHandler(JobTaskReminderScan, func(ctx context.Context, _ *models.ScheduledJob) error {
			due, err := deps.Tasks.DueReminders(ctx, now())
			if err != nil {
				return err
			}
			for _, task := range due {
				select {
				case reminders <- task:
				default:
					logger.Printf("[WARN] reminder channel full, dropping reminder for task %d", task.ID)
				}
			}
			return nil
		})
	}

	if deps.Quotes != nil {
		s.RegisterHandler(JobQuoteExpiry, func(ctx context.Context, _ *models.ScheduledJob) error {
			expired, err := deps.Quotes.ExpireStale(ctx)
			if err != nil {
				return err
			}
			if expired > 0 {
				logger.Printf("[INFO] quote expiry sweep marked %d quotes expired", expired)
			}
			return nil
		})
	}

	return reminders
}

var (
	_ mailboxSyncer  = (*sync.Coordinator)(nil)
	_ snapshotTaker  = (*backup.Service)(nil)
	_ reminderLister = (*tasks.Engine)(nil)
	_ quoteExpirer   = (*quotes.Engine)(nil)
)
