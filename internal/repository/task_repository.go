package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// TaskRepository persists follow-up tasks.
type TaskRepository struct {
	db DBTX
}

// NewTaskRepository wraps the given connection or transaction.
func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *TaskRepository) WithTx(tx *sql.Tx) *TaskRepository {
	return &TaskRepository{db: tx}
}

const taskColumns = `id, client_id, deal_id, title, task_type, priority, status,
	due_date, reminder_date, recurrence_pattern, recurrence_interval,
	created_at, completed_at`

// Create inserts a task.
func (r *TaskRepository) Create(ctx context.Context, t *models.Task) (int, error) {
	if t.Title == "" {
		return 0, fmt.Errorf("%w: task title is required", models.ErrValidation)
	}
	if t.RecurrencePattern == "" {
		t.RecurrencePattern = models.RecurrenceNone
	}
	if !t.RecurrencePattern.Valid() {
		return 0, fmt.Errorf("%w: unknown recurrence pattern %q", models.ErrValidation, t.RecurrencePattern)
	}
	if t.RecurrenceInterval <= 0 {
		t.RecurrenceInterval = 1
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (
			client_id, deal_id, title, task_type, priority, status, due_date,
			reminder_date, recurrence_pattern, recurrence_interval, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ClientID, t.DealID, t.Title, string(t.TaskType), string(t.Priority),
		string(t.Status),
		encodeDatePtr(t.DueDate),
		encodeDatePtr(t.ReminderDate),
		string(t.RecurrencePattern), t.RecurrenceInterval,
		encodeTimestamp(t.CreatedAt),
		encodeTimestampPtr(t.CompletedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read task id: %w", err)
	}
	t.ID = int(id)
	return t.ID, nil
}

// GetByID fetches one task.
func (r *TaskRepository) GetByID(ctx context.Context, id int) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: task %d", models.ErrNotFound, id)
	}
	return t, err
}

// Update rewrites a task's mutable fields.
func (r *TaskRepository) Update(ctx context.Context, t *models.Task) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET
			client_id = ?, deal_id = ?, title = ?, task_type = ?, priority = ?,
			status = ?, due_date = ?, reminder_date = ?, recurrence_pattern = ?,
			recurrence_interval = ?, completed_at = ?
		WHERE id = ?`,
		t.ClientID, t.DealID, t.Title, string(t.TaskType), string(t.Priority),
		string(t.Status),
		encodeDatePtr(t.DueDate),
		encodeDatePtr(t.ReminderDate),
		string(t.RecurrencePattern), t.RecurrenceInterval,
		encodeTimestampPtr(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// ListByStatus returns tasks in the given status.
func (r *TaskRepository) ListByStatus(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListByClient returns a client's tasks.
func (r *TaskRepository) ListByClient(ctx context.Context, clientID int) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE client_id = ? ORDER BY created_at`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListPending returns pending and in-progress tasks; due-date ordering is
// applied by the task engine because user date columns are not
// lexicographically sortable.
func (r *TaskRepository) ListPending(ctx context.Context) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status IN ('pending', 'in_progress')`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

func scanTaskRow(row *sql.Row) (*models.Task, error) {
	var (
		t           models.Task
		taskType    string
		priority    string
		status      string
		due         *string
		reminder    *string
		recurrence  string
		createdAt   string
		completedAt *string
	)
	err := row.Scan(&t.ID, &t.ClientID, &t.DealID, &t.Title, &taskType,
		&priority, &status, &due, &reminder, &recurrence,
		&t.RecurrenceInterval, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	fillTask(&t, taskType, priority, status, due, reminder, recurrence, createdAt, completedAt)
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*models.Task, error) {
	var out []*models.Task
	for rows.Next() {
		var (
			t           models.Task
			taskType    string
			priority    string
			status      string
			due         *string
			reminder    *string
			recurrence  string
			createdAt   string
			completedAt *string
		)
		if err := rows.Scan(&t.ID, &t.ClientID, &t.DealID, &t.Title, &taskType,
			&priority, &status, &due, &reminder, &recurrence,
			&t.RecurrenceInterval, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		fillTask(&t, taskType, priority, status, due, reminder, recurrence, createdAt, completedAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func fillTask(t *models.Task, taskType, priority, status string,
	due, reminder *string, recurrence, createdAt string, completedAt *string) {
	t.TaskType = models.TaskType(taskType)
	t.Priority = models.TaskPriority(priority)
	t.Status = models.TaskStatus(status)
	t.DueDate = parseDatePtr(due)
	t.ReminderDate = parseDatePtr(reminder)
	t.RecurrencePattern = models.RecurrencePattern(recurrence)
	t.CreatedAt = parseTimestamp(createdAt)
	t.CompletedAt = parseTimestampPtr(completedAt)
}
