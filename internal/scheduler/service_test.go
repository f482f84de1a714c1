package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exportdesk-io/exportdesk-ce/internal/backup"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	mailsync "github.com/exportdesk-io/exportdesk-ce/internal/sync"
)

// farFuture never fires during a test run.
const farFuture = "0 0 1 1 *"

func probeJob(slug string) *models.ScheduledJob {
	return &models.ScheduledJob{
		Name:     slug,
		Slug:     slug,
		Handler:  slug,
		Schedule: farFuture,
	}
}

func TestNewServiceDefaults(t *testing.T) {
	s := NewService()
	jobs := s.Jobs()
	require.Len(t, jobs, 4)

	bySlug := make(map[string]*models.ScheduledJob, len(jobs))
	for _, job := range jobs {
		bySlug[job.Slug] = job
	}
	for _, slug := range []string{JobEmailSyncPoll, JobAutoBackup, JobTaskReminderScan, JobQuoteExpiry} {
		require.Contains(t, bySlug, slug)
	}
	assert.True(t, bySlug[JobTaskReminderScan].RunOnStartup)
	assert.Equal(t, "30 2 * * *", bySlug[JobAutoBackup].Schedule)

	// Snapshots are clones; mutating one must not leak back.
	bySlug[JobAutoBackup].Schedule = "tampered"
	for _, job := range s.Jobs() {
		if job.Slug == JobAutoBackup {
			assert.Equal(t, "30 2 * * *", job.Schedule)
		}
	}
}

func TestNewServiceSkipsInvalidJobs(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{
		probeJob("good"),
		{Name: "no slug", Schedule: farFuture},
		{Name: "no schedule", Slug: "broken"},
		nil,
	}))
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "good", jobs[0].Slug)
}

func TestExecuteJobSuccess(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{probeJob("probe")}))
	var calls atomic.Int32
	s.RegisterHandler("probe", func(ctx context.Context, job *models.ScheduledJob) error {
		calls.Add(1)
		assert.Equal(t, "probe", job.Slug)
		return nil
	})

	s.executeJob("probe", 0)

	assert.Equal(t, int32(1), calls.Load())
	job := s.Jobs()[0]
	assert.Equal(t, "success", job.LastStatus)
	require.NotNil(t, job.LastRunAt)
	assert.Nil(t, job.ErrorMessage)
}

func TestExecuteJobFailure(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{probeJob("probe")}))
	s.RegisterHandler("probe", func(context.Context, *models.ScheduledJob) error {
		return errors.New("mailbox unreachable")
	})

	s.executeJob("probe", 0)

	job := s.Jobs()[0]
	assert.Equal(t, "failed", job.LastStatus)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "mailbox unreachable")
}

func TestExecuteJobRecoversPanic(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{probeJob("probe")}))
	s.RegisterHandler("probe", func(context.Context, *models.ScheduledJob) error {
		panic("boom")
	})

	s.executeJob("probe", 0)

	job := s.Jobs()[0]
	assert.Equal(t, "failed", job.LastStatus)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "panic")
}

func TestExecuteJobMissingHandler(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{probeJob("orphan")}))

	s.executeJob("orphan", 0)

	job := s.Jobs()[0]
	assert.Equal(t, "failed", job.LastStatus)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "not registered")
}

func TestExecuteJobAppliesTimeout(t *testing.T) {
	def := probeJob("probe")
	def.TimeoutSeconds = 60
	s := NewService(WithJobs([]*models.ScheduledJob{def}))

	var hadDeadline bool
	s.RegisterHandler("probe", func(ctx context.Context, _ *models.ScheduledJob) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	})

	s.executeJob("probe", 0)
	assert.True(t, hadDeadline)
}

func TestRegisterHandlerReplaceAndRemove(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{probeJob("probe")}))
	var which string
	s.RegisterHandler("probe", func(context.Context, *models.ScheduledJob) error {
		which = "first"
		return nil
	})
	s.RegisterHandler("probe", func(context.Context, *models.ScheduledJob) error {
		which = "second"
		return nil
	})

	s.executeJob("probe", 0)
	assert.Equal(t, "second", which)

	s.RegisterHandler("probe", nil)
	s.executeJob("probe", 0)
	assert.Equal(t, "failed", s.Jobs()[0].LastStatus)
}

func TestRunExecutesStartupJobs(t *testing.T) {
	def := probeJob("startup-probe")
	def.RunOnStartup = true
	s := NewService(WithJobs([]*models.ScheduledJob{def}))

	ran := make(chan struct{}, 1)
	s.RegisterHandler("startup-probe", func(context.Context, *models.ScheduledJob) error {
		ran <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("startup job never ran")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type fakeSyncer struct {
	result mailsync.Result
	err    error
}

func (f *fakeSyncer) RunAll(context.Context) (mailsync.Result, error) { return f.result, f.err }

type fakeBackup struct {
	info *backup.Info
	err  error
}

func (f *fakeBackup) Run(context.Context, string) (*backup.Info, error) { return f.info, f.err }

type fakeReminders struct {
	tasks []*models.Task
}

func (f *fakeReminders) DueReminders(context.Context, time.Time) ([]*models.Task, error) {
	return f.tasks, nil
}

type fakeExpirer struct {
	expired int
}

func (f *fakeExpirer) ExpireStale(context.Context) (int, error) { return f.expired, nil }

func TestRegisterBuiltinHandlers(t *testing.T) {
	ctx := context.Background()

	t.Run("nil deps register nothing", func(t *testing.T) {
		s := NewService()
		s.RegisterBuiltinHandlers(Deps{})
		for _, slug := range []string{JobEmailSyncPoll, JobAutoBackup, JobTaskReminderScan, JobQuoteExpiry} {
			assert.Nil(t, s.getHandler(slug), slug)
		}
	})

	t.Run("sync reports contact errors", func(t *testing.T) {
		s := NewService()
		s.RegisterBuiltinHandlers(Deps{Sync: &fakeSyncer{result: mailsync.Result{
			Scanned: 5,
			Errors:  []mailsync.ContactError{{ContactEmail: "buy@hansa-imports.de", Err: errors.New("timeout")}},
		}}})
		err := s.getHandler(JobEmailSyncPoll)(ctx, probeJob(JobEmailSyncPoll))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 contact errors")
	})

	t.Run("clean sync succeeds", func(t *testing.T) {
		s := NewService()
		s.RegisterBuiltinHandlers(Deps{Sync: &fakeSyncer{result: mailsync.Result{Scanned: 5, Saved: 3}}})
		require.NoError(t, s.getHandler(JobEmailSyncPoll)(ctx, probeJob(JobEmailSyncPoll)))
	})

	t.Run("backup passes errors through", func(t *testing.T) {
		s := NewService()
		s.RegisterBuiltinHandlers(Deps{Backup: &fakeBackup{err: fmt.Errorf("disk full")}})
		err := s.getHandler(JobAutoBackup)(ctx, probeJob(JobAutoBackup))
		require.Error(t, err)

		s = NewService()
		s.RegisterBuiltinHandlers(Deps{Backup: &fakeBackup{info: &backup.Info{File: "efm_backup_x.db"}}})
		require.NoError(t, s.getHandler(JobAutoBackup)(ctx, probeJob(JobAutoBackup)))
	})

	t.Run("reminder scan fans out to the channel", func(t *testing.T) {
		s := NewService()
		reminders := s.RegisterBuiltinHandlers(Deps{Tasks: &fakeReminders{tasks: []*models.Task{
			{ID: 1, Title: "Nudge buyer"},
			{ID: 2, Title: "Send sample"},
		}}})
		require.NoError(t, s.getHandler(JobTaskReminderScan)(ctx, probeJob(JobTaskReminderScan)))
		require.Len(t, reminders, 2)
		first := <-reminders
		assert.Equal(t, "Nudge buyer", first.Title)
	})

	t.Run("quote expiry sweep", func(t *testing.T) {
		s := NewService()
		s.RegisterBuiltinHandlers(Deps{Quotes: &fakeExpirer{expired: 2}})
		require.NoError(t, s.getHandler(JobQuoteExpiry)(ctx, probeJob(JobQuoteExpiry)))
	})
}
