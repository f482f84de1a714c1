package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// ClientRepository persists clients and the custom sync allow-list.
type ClientRepository struct {
	db DBTX
}

// NewClientRepository wraps the given connection or transaction.
func NewClientRepository(db DBTX) *ClientRepository {
	return &ClientRepository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *ClientRepository) WithTx(tx *sql.Tx) *ClientRepository {
	return &ClientRepository{db: tx}
}

const clientColumns = `id, company_name, country, contact_person, email, phone,
	website, date_added, status, seriousness_score, classification, is_focus`

// Create inserts a new client and returns its id. The email, when present,
// is stored in canonical lowercase form; a duplicate address surfaces as an
// integrity error.
func (r *ClientRepository) Create(ctx context.Context, client *models.Client) (int, error) {
	if err := client.Validate(); err != nil {
		return 0, err
	}
	client.CompanyName = strings.TrimSpace(client.CompanyName)
	if client.Status == "" {
		client.Status = "New"
	}
	if client.Classification == "" {
		client.Classification = models.ClassifyScore(client.SeriousnessScore)
	}
	var email *string
	if canonical := client.CanonicalEmail(); canonical != "" {
		email = &canonical
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (
			company_name, country, contact_person, email, phone, website,
			date_added, status, seriousness_score, classification, is_focus
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		client.CompanyName,
		client.Country,
		client.ContactPerson,
		email,
		client.Phone,
		client.Website,
		encodeTimestamp(client.DateAdded),
		client.Status,
		client.SeriousnessScore,
		string(client.Classification),
		client.IsFocus,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: client email already exists", models.ErrIntegrity)
		}
		return 0, fmt.Errorf("failed to create client: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read client id: %w", err)
	}
	client.ID = int(id)
	return client.ID, nil
}

// GetByID fetches one client.
func (r *ClientRepository) GetByID(ctx context.Context, id int) (*models.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

// GetByEmail fetches the client holding the canonical form of addr.
func (r *ClientRepository) GetByEmail(ctx context.Context, addr string) (*models.Client, error) {
	canonical := models.CanonicalEmail(addr)
	if canonical == "" {
		return nil, fmt.Errorf("%w: empty email", models.ErrValidation)
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE email = ?`, canonical)
	return scanClient(row)
}

// List returns all clients ordered by company name.
func (r *ClientRepository) List(ctx context.Context) ([]*models.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY company_name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()
	return CollectClients(rows)
}

// Update rewrites the mutable profile fields of a client. Score and
// classification stay under the score engine's control.
func (r *ClientRepository) Update(ctx context.Context, client *models.Client) error {
	if err := client.Validate(); err != nil {
		return err
	}
	var email *string
	if canonical := client.CanonicalEmail(); canonical != "" {
		email = &canonical
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE clients SET
			company_name = ?, country = ?, contact_person = ?, email = ?,
			phone = ?, website = ?, status = ?, is_focus = ?
		WHERE id = ?`,
		strings.TrimSpace(client.CompanyName),
		client.Country,
		client.ContactPerson,
		email,
		client.Phone,
		client.Website,
		client.Status,
		client.IsFocus,
		client.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: client email already exists", models.ErrIntegrity)
		}
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

// UpdateScore applies a new score and classification pair. Only the score
// engine calls this, inside its transaction.
func (r *ClientRepository) UpdateScore(ctx context.Context, clientID, score int, classification models.Classification) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clients SET seriousness_score = ?, classification = ? WHERE id = ?`,
		score, string(classification), clientID)
	if err != nil {
		return fmt.Errorf("failed to update client score: %w", err)
	}
	return nil
}

// SetFocus flips the user-set focus pin.
func (r *ClientRepository) SetFocus(ctx context.Context, clientID int, focus bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE clients SET is_focus = ? WHERE id = ?`, focus, clientID)
	if err != nil {
		return fmt.Errorf("failed to set focus flag: %w", err)
	}
	return nil
}

// Delete removes a client. Messages, requests, deals, tasks, quotes and
// score history cascade via foreign keys.
func (r *ClientRepository) Delete(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: client %d", models.ErrNotFound, id)
	}
	return nil
}

// --- custom sync allow-list ---

// CreateCustomSyncClient adds an allow-list entry.
func (r *ClientRepository) CreateCustomSyncClient(ctx context.Context, c *models.CustomSyncClient) (int, error) {
	if strings.TrimSpace(c.CompanyName) == "" {
		return 0, fmt.Errorf("%w: company name is required", models.ErrValidation)
	}
	email := models.CanonicalEmail(c.Email)
	if email == "" {
		return 0, fmt.Errorf("%w: email is required", models.ErrValidation)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO custom_sync_clients (
			company_name, country, contact_person, email, phone, website, date_added
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(c.CompanyName), c.Country, c.ContactPerson,
		email, c.Phone, c.Website, encodeTimestamp(c.DateAdded),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create custom sync client: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read custom sync client id: %w", err)
	}
	c.ID = int(id)
	return c.ID, nil
}

// GetCustomSyncClientByEmail looks up an allow-list entry by address.
func (r *ClientRepository) GetCustomSyncClientByEmail(ctx context.Context, addr string) (*models.CustomSyncClient, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, company_name, country, contact_person, email, phone, website, date_added
		FROM custom_sync_clients WHERE email = ?`,
		models.CanonicalEmail(addr))

	var (
		c         models.CustomSyncClient
		dateAdded string
	)
	err := row.Scan(&c.ID, &c.CompanyName, &c.Country, &c.ContactPerson,
		&c.Email, &c.Phone, &c.Website, &dateAdded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: custom sync client %s", models.ErrNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get custom sync client: %w", err)
	}
	c.DateAdded = parseTimestamp(dateAdded)
	return &c, nil
}

// ListCustomSyncClients returns the whole allow-list.
func (r *ClientRepository) ListCustomSyncClients(ctx context.Context) ([]*models.CustomSyncClient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, company_name, country, contact_person, email, phone, website, date_added
		FROM custom_sync_clients ORDER BY company_name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom sync clients: %w", err)
	}
	defer rows.Close()

	var out []*models.CustomSyncClient
	for rows.Next() {
		var (
			c         models.CustomSyncClient
			dateAdded string
		)
		if err := rows.Scan(&c.ID, &c.CompanyName, &c.Country, &c.ContactPerson,
			&c.Email, &c.Phone, &c.Website, &dateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan custom sync client: %w", err)
		}
		c.DateAdded = parseTimestamp(dateAdded)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteCustomSyncClient removes an allow-list entry.
func (r *ClientRepository) DeleteCustomSyncClient(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM custom_sync_clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete custom sync client: %w", err)
	}
	return nil
}

func scanClient(row *sql.Row) (*models.Client, error) {
	var (
		c              models.Client
		dateAdded      string
		classification string
	)
	err := row.Scan(&c.ID, &c.CompanyName, &c.Country, &c.ContactPerson,
		&c.Email, &c.Phone, &c.Website, &dateAdded, &c.Status,
		&c.SeriousnessScore, &classification, &c.IsFocus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: client", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	c.DateAdded = parseTimestamp(dateAdded)
	c.Classification = models.Classification(classification)
	return &c, nil
}

// CollectClients drains a result set whose columns match the client
// select list.
func CollectClients(rows *sql.Rows) ([]*models.Client, error) {
	var out []*models.Client
	for rows.Next() {
		var (
			c              models.Client
			dateAdded      string
			classification string
		)
		if err := rows.Scan(&c.ID, &c.CompanyName, &c.Country, &c.ContactPerson,
			&c.Email, &c.Phone, &c.Website, &dateAdded, &c.Status,
			&c.SeriousnessScore, &classification, &c.IsFocus); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		c.DateAdded = parseTimestamp(dateAdded)
		c.Classification = models.Classification(classification)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
