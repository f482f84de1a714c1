package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// ScoreHistoryRepository persists the append-only score trajectory.
// Rows are never updated or deleted individually; they fall with their
// client via cascade.
type ScoreHistoryRepository struct {
	db DBTX
}

// NewScoreHistoryRepository wraps the given connection or transaction.
func NewScoreHistoryRepository(db DBTX) *ScoreHistoryRepository {
	return &ScoreHistoryRepository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *ScoreHistoryRepository) WithTx(tx *sql.Tx) *ScoreHistoryRepository {
	return &ScoreHistoryRepository{db: tx}
}

// Append writes one history row.
func (r *ScoreHistoryRepository) Append(ctx context.Context, h *models.ScoreHistory) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO score_history (
			client_id, timestamp, score, classification, change_reason, message_id
		) VALUES (?, ?, ?, ?, ?, ?)`,
		h.ClientID,
		encodeTimestamp(h.Timestamp),
		h.Score,
		string(h.Classification),
		h.ChangeReason,
		h.MessageID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append score history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read score history id: %w", err)
	}
	h.ID = int(id)
	return h.ID, nil
}

// ListByClient returns a client's history rows in timestamp order.
func (r *ScoreHistoryRepository) ListByClient(ctx context.Context, clientID int) ([]*models.ScoreHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, timestamp, score, classification, change_reason, message_id
		FROM score_history
		WHERE client_id = ?
		ORDER BY timestamp, id`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list score history: %w", err)
	}
	defer rows.Close()

	var out []*models.ScoreHistory
	for rows.Next() {
		var (
			h              models.ScoreHistory
			timestamp      string
			classification string
		)
		if err := rows.Scan(&h.ID, &h.ClientID, &timestamp, &h.Score,
			&classification, &h.ChangeReason, &h.MessageID); err != nil {
			return nil, fmt.Errorf("failed to scan score history: %w", err)
		}
		h.Timestamp = parseTimestamp(timestamp)
		h.Classification = models.Classification(classification)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// Latest returns the most recent history row for a client, or ErrNotFound.
func (r *ScoreHistoryRepository) Latest(ctx context.Context, clientID int) (*models.ScoreHistory, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, timestamp, score, classification, change_reason, message_id
		FROM score_history
		WHERE client_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`,
		clientID)

	var (
		h              models.ScoreHistory
		timestamp      string
		classification string
	)
	err := row.Scan(&h.ID, &h.ClientID, &timestamp, &h.Score,
		&classification, &h.ChangeReason, &h.MessageID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: score history for client %d", models.ErrNotFound, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest score history: %w", err)
	}
	h.Timestamp = parseTimestamp(timestamp)
	h.Classification = models.Classification(classification)
	return &h, nil
}
