// Package tasks manages follow-up tasks: explicit rows in the store plus
// lazily materialised instances of recurring tasks. Recurrence is never
// pre-expanded into the store; list operations project future occurrences
// into a bounded window, and only completing an instance persists the next
// one.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/rickar/cal/v2"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

// DefaultLookAhead bounds how far list operations project recurring tasks.
const DefaultLookAhead = 90 * 24 * time.Hour

// Engine owns task lifecycle, recurrence and reminders.
type Engine struct {
	db        *sql.DB
	tasks     *repository.TaskRepository
	logger    *log.Logger
	now       func() time.Time
	lookAhead time.Duration
	calendar  *cal.BusinessCalendar
}

// Option customizes the engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLookAhead bounds recurrence projection.
func WithLookAhead(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lookAhead = d
		}
	}
}

// WithBusinessCalendar makes due-date advancement skip non-working days
// per the given calendar.
func WithBusinessCalendar(calendar *cal.BusinessCalendar) Option {
	return func(e *Engine) {
		e.calendar = calendar
	}
}

// NewEngine builds a task engine over the shared store.
func NewEngine(db *sql.DB, opts ...Option) *Engine {
	e := &Engine{
		db:        db,
		tasks:     repository.NewTaskRepository(db),
		logger:    log.Default(),
		now:       time.Now,
		lookAhead: DefaultLookAhead,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add creates a task. Defaults: type general, priority medium, status
// pending, no recurrence.
func (e *Engine) Add(ctx context.Context, task *models.Task) (int, error) {
	if task.Title == "" {
		return 0, fmt.Errorf("%w: task title is required", models.ErrValidation)
	}
	if task.TaskType == "" {
		task.TaskType = models.TaskTypeGeneral
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	if task.RecurrencePattern == "" {
		task.RecurrencePattern = models.RecurrenceNone
	}
	if !task.RecurrencePattern.Valid() {
		return 0, fmt.Errorf("%w: unknown recurrence pattern %q", models.ErrValidation, task.RecurrencePattern)
	}
	if task.Recurring() && task.DueDate == nil {
		return 0, fmt.Errorf("%w: recurring tasks need a due date", models.ErrValidation)
	}
	return e.tasks.Create(ctx, task)
}

// Get returns one task.
func (e *Engine) Get(ctx context.Context, id int) (*models.Task, error) {
	return e.tasks.GetByID(ctx, id)
}

// Update rewrites a task's editable fields.
func (e *Engine) Update(ctx context.Context, task *models.Task) error {
	if !task.RecurrencePattern.Valid() && task.RecurrencePattern != "" {
		return fmt.Errorf("%w: unknown recurrence pattern %q", models.ErrValidation, task.RecurrencePattern)
	}
	return e.tasks.Update(ctx, task)
}

// Delete removes a task.
func (e *Engine) Delete(ctx context.Context, id int) error {
	return e.tasks.Delete(ctx, id)
}

// Complete marks a task done. Completing a recurring task persists the
// next instance with the same template fields and an advanced due date;
// the new task's id is returned, zero for one-shot tasks.
func (e *Engine) Complete(ctx context.Context, id int) (int, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin task completion: %w", err)
	}
	defer tx.Rollback()

	tasks := e.tasks.WithTx(tx)
	task, err := tasks.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if task.Status == models.TaskCompleted {
		return 0, nil
	}

	completed := e.now()
	task.Status = models.TaskCompleted
	task.CompletedAt = &completed
	if err := tasks.Update(ctx, task); err != nil {
		return 0, err
	}

	nextID := 0
	if task.Recurring() && task.DueDate != nil {
		next := &models.Task{
			ClientID:           task.ClientID,
			DealID:             task.DealID,
			Title:              task.Title,
			TaskType:           task.TaskType,
			Priority:           task.Priority,
			Status:             models.TaskPending,
			RecurrencePattern:  task.RecurrencePattern,
			RecurrenceInterval: task.RecurrenceInterval,
		}
		due := e.advanceDueDate(*task.DueDate, task.RecurrencePattern, task.RecurrenceInterval)
		next.DueDate = &due
		if task.ReminderDate != nil {
			lead := task.DueDate.Sub(*task.ReminderDate)
			reminder := due.Add(-lead)
			next.ReminderDate = &reminder
		}
		nextID, err = tasks.Create(ctx, next)
		if err != nil {
			return 0, err
		}
		e.logger.Printf("[INFO] recurring task %d completed, next instance %d due %s",
			id, nextID, due.Format(models.UserDateLayout))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit task completion: %w", err)
	}
	return nextID, nil
}

// advanceDueDate moves a due date forward by pattern x interval. With a
// business calendar configured, the result lands on the next working day.
func (e *Engine) advanceDueDate(due time.Time, pattern models.RecurrencePattern, interval int) time.Time {
	if interval <= 0 {
		interval = 1
	}
	var next time.Time
	switch pattern {
	case models.RecurrenceDaily:
		next = due.AddDate(0, 0, interval)
	case models.RecurrenceWeekly:
		next = due.AddDate(0, 0, 7*interval)
	case models.RecurrenceMonthly:
		next = due.AddDate(0, interval, 0)
	default:
		next = due
	}
	if e.calendar != nil {
		for !e.calendar.IsWorkday(next) {
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}

// Upcoming returns open tasks due within the window plus projected
// occurrences of recurring tasks, priority-sorted.
func (e *Engine) Upcoming(ctx context.Context, window time.Duration) ([]*models.Task, error) {
	if window <= 0 || window > e.lookAhead {
		window = e.lookAhead
	}
	now := e.now()
	return e.listWindow(ctx, now, now.Add(window))
}

// DueToday returns open tasks due on the current calendar day.
func (e *Engine) DueToday(ctx context.Context) ([]*models.Task, error) {
	now := e.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return e.listWindow(ctx, start, start.AddDate(0, 0, 1).Add(-time.Second))
}

// Overdue returns open tasks whose due date has passed.
func (e *Engine) Overdue(ctx context.Context) ([]*models.Task, error) {
	pending, err := e.tasks.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var out []*models.Task
	for _, task := range pending {
		if task.DueDate != nil && task.DueDate.Before(now) && !sameDay(*task.DueDate, now) {
			out = append(out, task)
		}
	}
	sortTasks(out)
	return out, nil
}

// DueReminders returns pending tasks whose reminder date has arrived.
// Callers poll this; nothing is pushed.
func (e *Engine) DueReminders(ctx context.Context, now time.Time) ([]*models.Task, error) {
	pending, err := e.tasks.ListByStatus(ctx, models.TaskPending)
	if err != nil {
		return nil, err
	}
	var out []*models.Task
	for _, task := range pending {
		if task.ReminderDate != nil && !task.ReminderDate.After(now) {
			out = append(out, task)
		}
	}
	sortTasks(out)
	return out, nil
}

// ListByClient returns a client's tasks, priority-sorted.
func (e *Engine) ListByClient(ctx context.Context, clientID int) ([]*models.Task, error) {
	out, err := e.tasks.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	sortTasks(out)
	return out, nil
}

// listWindow merges stored open tasks due inside [from, to] with lazy
// projections of recurring tasks.
func (e *Engine) listWindow(ctx context.Context, from, to time.Time) ([]*models.Task, error) {
	pending, err := e.tasks.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.Task
	for _, task := range pending {
		if task.DueDate == nil {
			continue
		}
		if !task.DueDate.Before(from) && !task.DueDate.After(to) {
			out = append(out, task)
		}
		if task.Recurring() {
			out = append(out, e.project(task, from, to)...)
		}
	}
	sortTasks(out)
	return out, nil
}

// project emits virtual instances of a recurring task inside the window.
// Virtual instances carry ID 0 and are never stored.
func (e *Engine) project(task *models.Task, from, to time.Time) []*models.Task {
	horizon := e.now().Add(e.lookAhead)
	if to.After(horizon) {
		to = horizon
	}
	var out []*models.Task
	due := e.advanceDueDate(*task.DueDate, task.RecurrencePattern, task.RecurrenceInterval)
	for !due.After(to) {
		if !due.Before(from) {
			instance := *task
			instance.ID = 0
			instanceDue := due
			instance.DueDate = &instanceDue
			instance.ReminderDate = nil
			out = append(out, &instance)
		}
		due = e.advanceDueDate(due, task.RecurrencePattern, task.RecurrenceInterval)
	}
	return out
}

func sortTasks(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if r1, r2 := tasks[i].Priority.Rank(), tasks[j].Priority.Rank(); r1 != r2 {
			return r1 < r2
		}
		d1, d2 := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case d1 == nil:
			return false
		case d2 == nil:
			return true
		default:
			return d1.Before(*d2)
		}
	})
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
