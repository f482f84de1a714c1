package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// AccountRepository persists mail provider credential bindings. Secret
// columns are stored verbatim and passed untouched to the connector.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository wraps the given connection or transaction.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, account_name, email, provider_type, access_token,
	host, port, username, password, use_ssl, is_active, created_at`

// Create inserts a mail account.
func (r *AccountRepository) Create(ctx context.Context, a *models.MailAccount) (int, error) {
	if !a.ProviderType.Valid() {
		return 0, fmt.Errorf("%w: unknown provider type %q", models.ErrValidation, a.ProviderType)
	}
	if a.Email == "" {
		return 0, fmt.Errorf("%w: account email is required", models.ErrValidation)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO mail_accounts (
			account_name, email, provider_type, access_token, host, port,
			username, password, use_ssl, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AccountName, models.CanonicalEmail(a.Email), string(a.ProviderType),
		a.AccessToken, a.Host, a.Port, a.Username, a.Password,
		a.UseSSL, a.IsActive, encodeTimestamp(a.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create mail account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read mail account id: %w", err)
	}
	a.ID = int(id)
	return a.ID, nil
}

// GetByID fetches one mail account.
func (r *AccountRepository) GetByID(ctx context.Context, id int) (*models.MailAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM mail_accounts WHERE id = ?`, id)
	a, err := scanAccountRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: mail account %d", models.ErrNotFound, id)
	}
	return a, err
}

// ListActive returns the accounts eligible for sync.
func (r *AccountRepository) ListActive(ctx context.Context) ([]*models.MailAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM mail_accounts WHERE is_active = 1 ORDER BY account_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.MailAccount
	for rows.Next() {
		a, err := scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update rewrites a mail account.
func (r *AccountRepository) Update(ctx context.Context, a *models.MailAccount) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mail_accounts SET
			account_name = ?, email = ?, provider_type = ?, access_token = ?,
			host = ?, port = ?, username = ?, password = ?, use_ssl = ?, is_active = ?
		WHERE id = ?`,
		a.AccountName, models.CanonicalEmail(a.Email), string(a.ProviderType),
		a.AccessToken, a.Host, a.Port, a.Username, a.Password,
		a.UseSSL, a.IsActive, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update mail account: %w", err)
	}
	return nil
}

// Delete removes a mail account.
func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mail_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mail account: %w", err)
	}
	return nil
}

func scanAccountRow(row *sql.Row) (*models.MailAccount, error) {
	var (
		a            models.MailAccount
		providerType string
		createdAt    string
	)
	err := row.Scan(&a.ID, &a.AccountName, &a.Email, &providerType,
		&a.AccessToken, &a.Host, &a.Port, &a.Username, &a.Password,
		&a.UseSSL, &a.IsActive, &createdAt)
	if err != nil {
		return nil, err
	}
	a.ProviderType = models.ProviderType(providerType)
	a.CreatedAt = parseTimestamp(createdAt)
	return &a, nil
}

func scanAccountRows(rows *sql.Rows) (*models.MailAccount, error) {
	var (
		a            models.MailAccount
		providerType string
		createdAt    string
	)
	err := rows.Scan(&a.ID, &a.AccountName, &a.Email, &providerType,
		&a.AccessToken, &a.Host, &a.Port, &a.Username, &a.Password,
		&a.UseSSL, &a.IsActive, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan mail account: %w", err)
	}
	a.ProviderType = models.ProviderType(providerType)
	a.CreatedAt = parseTimestamp(createdAt)
	return &a, nil
}
