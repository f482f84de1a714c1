package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// DealRepository persists pipeline deals and their stage history.
type DealRepository struct {
	db DBTX
}

// NewDealRepository wraps the given connection or transaction.
func NewDealRepository(db DBTX) *DealRepository {
	return &DealRepository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *DealRepository) WithTx(tx *sql.Tx) *DealRepository {
	return &DealRepository{db: tx}
}

const dealColumns = `id, client_id, name, product_name, stage, value, currency,
	probability, expected_close_date, actual_close_date, status, notes,
	created_at, updated_at`

// Create inserts a deal.
func (r *DealRepository) Create(ctx context.Context, d *models.Deal) (int, error) {
	if !d.Stage.Valid() {
		return 0, fmt.Errorf("%w: unknown stage %q", models.ErrValidation, d.Stage)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deals (
			client_id, name, product_name, stage, value, currency, probability,
			expected_close_date, actual_close_date, status, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ClientID, d.Name, d.ProductName, string(d.Stage), d.Value, d.Currency,
		d.Probability,
		encodeDatePtr(d.ExpectedCloseDate),
		encodeDatePtr(d.ActualCloseDate),
		string(d.Status), d.Notes,
		encodeTimestamp(d.CreatedAt),
		encodeTimestamp(d.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create deal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read deal id: %w", err)
	}
	d.ID = int(id)
	return d.ID, nil
}

// GetByID fetches one deal.
func (r *DealRepository) GetByID(ctx context.Context, id int) (*models.Deal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = ?`, id)
	d, err := scanDealRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: deal %d", models.ErrNotFound, id)
	}
	return d, err
}

// Update rewrites a deal's mutable fields.
func (r *DealRepository) Update(ctx context.Context, d *models.Deal) error {
	if !d.Stage.Valid() {
		return fmt.Errorf("%w: unknown stage %q", models.ErrValidation, d.Stage)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE deals SET
			name = ?, product_name = ?, stage = ?, value = ?, currency = ?,
			probability = ?, expected_close_date = ?, actual_close_date = ?,
			status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, d.ProductName, string(d.Stage), d.Value, d.Currency,
		d.Probability,
		encodeDatePtr(d.ExpectedCloseDate),
		encodeDatePtr(d.ActualCloseDate),
		string(d.Status), d.Notes,
		encodeTimestamp(d.UpdatedAt),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update deal: %w", err)
	}
	return nil
}

// ListActive returns deals in active status, most recently updated first.
func (r *DealRepository) ListActive(ctx context.Context) ([]*models.Deal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE status = 'active' ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()
	return collectDeals(rows)
}

// ListByClient returns a client's deals, most recently updated first.
func (r *DealRepository) ListByClient(ctx context.Context, clientID int) ([]*models.Deal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE client_id = ? ORDER BY updated_at DESC`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	defer rows.Close()
	return collectDeals(rows)
}

// Archive moves a deal out of the active pipeline.
func (r *DealRepository) Archive(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE deals SET status = 'archived' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to archive deal: %w", err)
	}
	return nil
}

// AppendStageHistory records one stage transition.
func (r *DealRepository) AppendStageHistory(ctx context.Context, h *models.StageHistory) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO stage_history (deal_id, from_stage, to_stage, changed_at, notes)
		VALUES (?, ?, ?, ?, ?)`,
		h.DealID, string(h.FromStage), string(h.ToStage),
		encodeTimestamp(h.ChangedAt), h.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append stage history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read stage history id: %w", err)
	}
	h.ID = int(id)
	return h.ID, nil
}

// StageHistory returns a deal's transitions in order.
func (r *DealRepository) StageHistory(ctx context.Context, dealID int) ([]*models.StageHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, deal_id, from_stage, to_stage, changed_at, notes
		FROM stage_history
		WHERE deal_id = ?
		ORDER BY changed_at, id`,
		dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage history: %w", err)
	}
	defer rows.Close()

	var out []*models.StageHistory
	for rows.Next() {
		var (
			h         models.StageHistory
			fromStage string
			toStage   string
			changedAt string
		)
		if err := rows.Scan(&h.ID, &h.DealID, &fromStage, &toStage, &changedAt, &h.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan stage history: %w", err)
		}
		h.FromStage = models.DealStage(fromStage)
		h.ToStage = models.DealStage(toStage)
		h.ChangedAt = parseTimestamp(changedAt)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func scanDealRow(row *sql.Row) (*models.Deal, error) {
	var (
		d         models.Deal
		stage     string
		expected  *string
		actual    *string
		status    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&d.ID, &d.ClientID, &d.Name, &d.ProductName, &stage,
		&d.Value, &d.Currency, &d.Probability, &expected, &actual,
		&status, &d.Notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	fillDeal(&d, stage, expected, actual, status, createdAt, updatedAt)
	return &d, nil
}

func collectDeals(rows *sql.Rows) ([]*models.Deal, error) {
	var out []*models.Deal
	for rows.Next() {
		var (
			d         models.Deal
			stage     string
			expected  *string
			actual    *string
			status    string
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&d.ID, &d.ClientID, &d.Name, &d.ProductName, &stage,
			&d.Value, &d.Currency, &d.Probability, &expected, &actual,
			&status, &d.Notes, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		fillDeal(&d, stage, expected, actual, status, createdAt, updatedAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

func fillDeal(d *models.Deal, stage string, expected, actual *string,
	status, createdAt, updatedAt string) {
	d.Stage = models.DealStage(stage)
	d.ExpectedCloseDate = parseDatePtr(expected)
	d.ActualCloseDate = parseDatePtr(actual)
	d.Status = models.DealStatus(status)
	d.CreatedAt = parseTimestamp(createdAt)
	d.UpdatedAt = parseTimestamp(updatedAt)
}
