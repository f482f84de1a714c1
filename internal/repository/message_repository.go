package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// MessageRepository persists ingested messages.
type MessageRepository struct {
	db DBTX
}

// NewMessageRepository wraps the given connection or transaction.
func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *MessageRepository) WithTx(tx *sql.Tx) *MessageRepository {
	return &MessageRepository{db: tx}
}

const messageColumns = `id, client_id, received_at, sent_at, direction, channel,
	request_type, subject, body, attachments, score_effect, external_message_id, status`

// ErrAlreadyIngested reports that the (client, external id) pair exists.
// Re-ingestion is a successful no-op at the coordinator level.
var ErrAlreadyIngested = errors.New("message already ingested")

// Exists reports whether a message with the external id was already
// ingested for the client.
func (r *MessageRepository) Exists(ctx context.Context, clientID int, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE client_id = ? AND external_message_id = ?`,
		clientID, externalID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return count > 0, nil
}

// Create inserts a message row. A collision on the (client, external id)
// uniqueness index returns ErrAlreadyIngested.
func (r *MessageRepository) Create(ctx context.Context, m *models.Message) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (
			client_id, received_at, sent_at, direction, channel, request_type,
			subject, body, attachments, score_effect, external_message_id, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ClientID,
		encodeTimestamp(m.ReceivedAt),
		encodeTimestampPtr(m.SentAt),
		string(m.Direction),
		string(m.Channel),
		string(m.RequestType),
		m.Subject,
		m.Body,
		encodeStringList(m.Attachments),
		m.ScoreEffect,
		m.ExternalMessageID,
		string(m.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyIngested
		}
		return 0, fmt.Errorf("failed to create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}
	m.ID = int(id)
	return m.ID, nil
}

// GetByID fetches one message.
func (r *MessageRepository) GetByID(ctx context.Context, id int) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessageRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %d", models.ErrNotFound, id)
	}
	return m, err
}

// ListByClient returns a client's messages newest first by sent time;
// rows without a sent time sort last by received time.
func (r *MessageRepository) ListByClient(ctx context.Context, clientID int) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE client_id = ?
		ORDER BY sent_at IS NULL, sent_at DESC, received_at DESC`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return CollectMessages(rows)
}

// CountByClient returns the number of stored messages for a client.
func (r *MessageRepository) CountByClient(ctx context.Context, clientID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE client_id = ?`, clientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// UpdateStatus moves a message between delivery states.
func (r *MessageRepository) UpdateStatus(ctx context.Context, id int, status models.MessageStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

func scanMessageRow(row *sql.Row) (*models.Message, error) {
	var (
		m           models.Message
		receivedAt  string
		sentAt      *string
		direction   string
		channel     string
		requestType string
		attachments *string
		status      string
	)
	err := row.Scan(&m.ID, &m.ClientID, &receivedAt, &sentAt, &direction,
		&channel, &requestType, &m.Subject, &m.Body, &attachments,
		&m.ScoreEffect, &m.ExternalMessageID, &status)
	if err != nil {
		return nil, err
	}
	fillMessage(&m, receivedAt, sentAt, direction, channel, requestType, attachments, status)
	return &m, nil
}

// CollectMessages drains a result set whose columns match the message
// select list.
func CollectMessages(rows *sql.Rows) ([]*models.Message, error) {
	var out []*models.Message
	for rows.Next() {
		var (
			m           models.Message
			receivedAt  string
			sentAt      *string
			direction   string
			channel     string
			requestType string
			attachments *string
			status      string
		)
		if err := rows.Scan(&m.ID, &m.ClientID, &receivedAt, &sentAt, &direction,
			&channel, &requestType, &m.Subject, &m.Body, &attachments,
			&m.ScoreEffect, &m.ExternalMessageID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		fillMessage(&m, receivedAt, sentAt, direction, channel, requestType, attachments, status)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func fillMessage(m *models.Message, receivedAt string, sentAt *string,
	direction, channel, requestType string, attachments *string, status string) {
	m.ReceivedAt = parseTimestamp(receivedAt)
	m.SentAt = parseTimestampPtr(sentAt)
	m.Direction = models.Direction(direction)
	m.Channel = models.Channel(channel)
	m.RequestType = models.RequestType(requestType)
	m.Attachments = parseStringList(attachments)
	m.Status = models.MessageStatus(status)
}
