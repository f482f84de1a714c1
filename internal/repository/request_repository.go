package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// RequestRepository persists extracted business requests.
type RequestRepository struct {
	db DBTX
}

// NewRequestRepository wraps the given connection or transaction.
func NewRequestRepository(db DBTX) *RequestRepository {
	return &RequestRepository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *RequestRepository) WithTx(tx *sql.Tx) *RequestRepository {
	return &RequestRepository{db: tx}
}

const requestColumns = `id, client_id, source_message_id, request_type,
	status, reply_status, extracted_text, created_at`

// Create inserts a request row.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) (int, error) {
	if !req.RequestType.Valid() {
		return 0, fmt.Errorf("%w: unknown request type %q", models.ErrValidation, req.RequestType)
	}
	if req.Status == "" {
		req.Status = models.RequestOpen
	}
	if req.ReplyStatus == "" {
		req.ReplyStatus = models.ReplyPending
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO requests (
			client_id, source_message_id, request_type, status, reply_status,
			extracted_text, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ClientID,
		req.SourceMessageID,
		string(req.RequestType),
		string(req.Status),
		string(req.ReplyStatus),
		req.ExtractedText,
		encodeTimestamp(req.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read request id: %w", err)
	}
	req.ID = int(id)
	return req.ID, nil
}

// GetByID fetches one request.
func (r *RequestRepository) GetByID(ctx context.Context, id int) (*models.Request, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	var (
		req         models.Request
		reqType     string
		status      string
		replyStatus string
		createdAt   string
	)
	err := row.Scan(&req.ID, &req.ClientID, &req.SourceMessageID, &reqType,
		&status, &replyStatus, &req.ExtractedText, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	req.RequestType = models.RequestType(reqType)
	req.Status = models.RequestStatus(status)
	req.ReplyStatus = models.ReplyStatus(replyStatus)
	req.CreatedAt = parseTimestamp(createdAt)
	return &req, nil
}

// ListOpenByClient returns a client's open requests, oldest first.
func (r *RequestRepository) ListOpenByClient(ctx context.Context, clientID int) ([]*models.Request, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE client_id = ? AND status = 'open'
		ORDER BY created_at`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open requests: %w", err)
	}
	defer rows.Close()
	return CollectRequests(rows)
}

// Close marks a request closed.
func (r *RequestRepository) Close(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE requests SET status = 'closed' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to close request: %w", err)
	}
	return nil
}

// MarkReplied flips the reply status; called when a matching outbound
// message is recorded.
func (r *RequestRepository) MarkReplied(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE requests SET reply_status = 'replied' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark request replied: %w", err)
	}
	return nil
}

// MarkOpenRepliedForClient implicitly answers every open pending request of
// the client, used when an outbound message of the matching type is sent.
func (r *RequestRepository) MarkOpenRepliedForClient(ctx context.Context, clientID int, reqType models.RequestType) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE requests SET reply_status = 'replied'
		WHERE client_id = ? AND request_type = ? AND status = 'open' AND reply_status = 'pending'`,
		clientID, string(reqType))
	if err != nil {
		return 0, fmt.Errorf("failed to mark requests replied: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to mark requests replied: %w", err)
	}
	return int(affected), nil
}

// CollectRequests drains a result set whose columns match the request
// select list.
func CollectRequests(rows *sql.Rows) ([]*models.Request, error) {
	var out []*models.Request
	for rows.Next() {
		var (
			req         models.Request
			reqType     string
			status      string
			replyStatus string
			createdAt   string
		)
		if err := rows.Scan(&req.ID, &req.ClientID, &req.SourceMessageID, &reqType,
			&status, &replyStatus, &req.ExtractedText, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		req.RequestType = models.RequestType(reqType)
		req.Status = models.RequestStatus(status)
		req.ReplyStatus = models.ReplyStatus(replyStatus)
		req.CreatedAt = parseTimestamp(createdAt)
		out = append(out, &req)
	}
	return out, rows.Err()
}
