// Package scheduler runs the background jobs: periodic mailbox sync,
// automatic backups, quote expiry and task reminder scans. Jobs live in an
// in-memory registry and execute under per-job timeouts with panic
// recovery.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// Built-in job slugs.
const (
	JobEmailSyncPoll    = "email-sync-poll"
	JobAutoBackup       = "auto-backup"
	JobTaskReminderScan = "task-reminder-scan"
	JobQuoteExpiry      = "quote-expiry"
)

// Handler executes a scheduled job.
type Handler func(context.Context, *models.ScheduledJob) error

// Service coordinates scheduled job execution.
type Service struct {
	cron      *cron.Cron
	parser    cron.Parser
	handlers  map[string]Handler
	entries   map[string]cron.EntryID
	jobs      map[string]*models.ScheduledJob
	mu        sync.RWMutex
	handlerMu sync.RWMutex
	rootCtx   context.Context
	logger    *log.Logger
	startOnce sync.Once
	stopOnce  sync.Once
	location  *time.Location
}

// NewService wires a scheduler from the given options.
func NewService(opts ...Option) *Service {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = log.Default()
	}
	location := options.Location
	if location == nil {
		location = time.UTC
	}
	cronEngine := options.Cron
	if cronEngine == nil {
		cronEngine = cron.New(cron.WithLocation(location))
	}
	var zeroParser cron.Parser
	parser := options.Parser
	if parser == zeroParser {
		parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}

	jobs := make(map[string]*models.ScheduledJob)
	defs := options.Jobs
	if len(defs) == 0 {
		defs = DefaultJobs()
	}
	for _, job := range defs {
		if job == nil || job.Slug == "" || job.Schedule == "" {
			continue
		}
		jobs[job.Slug] = job.Clone()
	}

	s := &Service{
		cron:     cronEngine,
		parser:   parser,
		handlers: make(map[string]Handler),
		entries:  make(map[string]cron.EntryID),
		jobs:     jobs,
		logger:   options.Logger,
		location: location,
	}
	return s
}

// DefaultJobs returns the built-in job definitions. Handlers with the same
// names must be registered before Run.
func DefaultJobs() []*models.ScheduledJob {
	return []*models.ScheduledJob{
		{
			Name:           "Mailbox sync poll",
			Slug:           JobEmailSyncPoll,
			Handler:        JobEmailSyncPoll,
			Schedule:       "*/10 * * * *",
			TimeoutSeconds: 300,
		},
		{
			Name:           "Automatic backup",
			Slug:           JobAutoBackup,
			Handler:        JobAutoBackup,
			Schedule:       "30 2 * * *",
			TimeoutSeconds: 120,
		},
		{
			Name:           "Task reminder scan",
			Slug:           JobTaskReminderScan,
			Handler:        JobTaskReminderScan,
			Schedule:       "*/5 * * * *",
			TimeoutSeconds: 60,
			RunOnStartup:   true,
		},
		{
			Name:           "Quote expiry sweep",
			Slug:           JobQuoteExpiry,
			Handler:        JobQuoteExpiry,
			Schedule:       "0 3 * * *",
			TimeoutSeconds: 60,
		},
	}
}

// Run starts the scheduler loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.rootCtx = ctx
		s.scheduleAllJobs()
		s.cron.Start()
		s.runStartupJobs()
	})

	<-ctx.Done()
	s.stopCron()
	return nil
}

// Jobs returns a snapshot of all registered jobs.
func (s *Service) Jobs() []*models.ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	return out
}

// runStartupJobs executes all jobs marked with RunOnStartup=true.
func (s *Service) runStartupJobs() {
	s.mu.RLock()
	var startupJobs []string
	for slug, job := range s.jobs {
		if job != nil && job.RunOnStartup {
			startupJobs = append(startupJobs, slug)
		}
	}
	s.mu.RUnlock()

	for _, slug := range startupJobs {
		s.mu.RLock()
		entryID := s.entries[slug]
		s.mu.RUnlock()
		go s.executeJob(slug, entryID)
	}
}

func (s *Service) scheduleAllJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slug, job := range s.jobs {
		if job == nil {
			continue
		}
		if err := s.addJobLocked(job.Clone()); err != nil {
			s.logger.Printf("scheduler: failed to schedule job %s: %v", slug, err)
		}
	}
}

func (s *Service) stopCron() {
	s.stopOnce.Do(func() {
		ctx := s.cron.Stop()
		if ctx == nil {
			return
		}
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			s.logger.Printf("scheduler: timed out waiting for jobs to finish")
		}
	})
}

func (s *Service) addJobLocked(job *models.ScheduledJob) error {
	schedule, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return err
	}

	slug := job.Slug
	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.executeJob(slug, entryID)
	}))

	s.entries[slug] = entryID
	s.jobs[slug] = job
	return nil
}

func (s *Service) executeJob(slug string, entryID cron.EntryID) {
	job := s.jobSnapshot(slug)
	if job == nil {
		return
	}

	handler := s.getHandler(job.Handler)
	if handler == nil {
		start := s.now()
		s.finalizeRun(job, slug, entryID, start, start, statusFailed,
			fmt.Errorf("handler %s not registered", job.Handler))
		return
	}

	ctx := s.rootCtx
	if ctx == nil {
		ctx = context.Background()
	}

	start := s.now()
	jobCtx := ctx
	var cancel context.CancelFunc
	if job.TimeoutSeconds > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutSeconds)*time.Second)
	}

	var runErr error
	func() {
		defer func() {
			if cancel != nil {
				cancel()
			}
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		runErr = handler(jobCtx, job)
	}()

	finish := s.now()
	status := statusSuccess
	if runErr != nil {
		status = statusFailed
	}

	s.finalizeRun(job, slug, entryID, start, finish, status, runErr)
}

func (s *Service) finalizeRun(job *models.ScheduledJob, slug string, entryID cron.EntryID, start, finish time.Time, status string, runErr error) {
	duration := finish.Sub(start)
	cloned := job.Clone()
	cloned.LastRunAt = &finish
	cloned.LastDurationMS = duration.Milliseconds()
	cloned.LastStatus = status
	if runErr != nil {
		msg := runErr.Error()
		cloned.ErrorMessage = &msg
		s.logger.Printf("scheduler: job %s failed after %s: %v", slug, duration, runErr)
	} else {
		cloned.ErrorMessage = nil
	}

	if entry := s.cron.Entry(entryID); entry.ID != 0 && !entry.Next.IsZero() {
		next := entry.Next.In(s.location)
		cloned.NextRunAt = &next
	} else {
		cloned.NextRunAt = nil
	}

	s.mu.Lock()
	s.jobs[slug] = cloned.Clone()
	s.mu.Unlock()
}

func (s *Service) now() time.Time {
	if s.location == nil {
		return time.Now()
	}
	return time.Now().In(s.location)
}

func (s *Service) jobSnapshot(slug string) *models.ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if job, ok := s.jobs[slug]; ok {
		return job.Clone()
	}
	return nil
}

func (s *Service) getHandler(name string) Handler {
	if name == "" {
		return nil
	}
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.handlers[name]
}

// RegisterHandler attaches or replaces a handler for the given name.
// Passing nil removes the handler.
func (s *Service) RegisterHandler(name string, handler Handler) {
	if name == "" {
		return
	}
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	if handler == nil {
		delete(s.handlers, name)
		return
	}
	s.handlers[name] = handler
}
