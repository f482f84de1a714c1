package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// QuoteRepository persists quotes, their line items and the per-product
// cost side-channel used for profitability.
type QuoteRepository struct {
	db DBTX
}

// NewQuoteRepository wraps the given connection or transaction.
func NewQuoteRepository(db DBTX) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *QuoteRepository) WithTx(tx *sql.Tx) *QuoteRepository {
	return &QuoteRepository{db: tx}
}

const quoteColumns = `id, client_id, quote_number, quote_date, valid_until,
	status, total_amount, currency, discount, tax_rate, notes`

// Create inserts a quote header. Items are written separately by
// ReplaceItems so the engine can recompute the totals first.
func (r *QuoteRepository) Create(ctx context.Context, q *models.Quote) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes (
			client_id, quote_number, quote_date, valid_until, status,
			total_amount, currency, discount, tax_rate, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ClientID, q.QuoteNumber,
		encodeDate(q.QuoteDate),
		encodeDatePtr(q.ValidUntil),
		string(q.Status), q.TotalAmount, q.Currency, q.Discount, q.TaxRate, q.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: quote number %s already exists", models.ErrIntegrity, q.QuoteNumber)
		}
		return 0, fmt.Errorf("failed to create quote: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read quote id: %w", err)
	}
	q.ID = int(id)
	return q.ID, nil
}

// GetByID fetches a quote with its items.
func (r *QuoteRepository) GetByID(ctx context.Context, id int) (*models.Quote, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id)
	q, err := scanQuoteRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: quote %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Items = items
	return q, nil
}

// ListByClient returns a client's quotes newest first, without items.
func (r *QuoteRepository) ListByClient(ctx context.Context, clientID int) ([]*models.Quote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE client_id = ? ORDER BY id DESC`,
		clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()
	return collectQuotes(rows)
}

// Update rewrites a quote header.
func (r *QuoteRepository) Update(ctx context.Context, q *models.Quote) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quotes SET
			quote_date = ?, valid_until = ?, status = ?, total_amount = ?,
			currency = ?, discount = ?, tax_rate = ?, notes = ?
		WHERE id = ?`,
		encodeDate(q.QuoteDate),
		encodeDatePtr(q.ValidUntil),
		string(q.Status), q.TotalAmount, q.Currency, q.Discount, q.TaxRate,
		q.Notes, q.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update quote: %w", err)
	}
	return nil
}

// ReplaceItems swaps the full item list of a quote.
func (r *QuoteRepository) ReplaceItems(ctx context.Context, quoteID int, items []models.QuoteItem) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM quote_items WHERE quote_id = ?`, quoteID); err != nil {
		return fmt.Errorf("failed to clear quote items: %w", err)
	}
	for i := range items {
		item := &items[i]
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO quote_items (
				quote_id, product_id, product_name, quantity, unit_price,
				discount_pct, total_price
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			quoteID, item.ProductID, item.ProductName, item.Quantity,
			item.UnitPrice, item.DiscountPct, item.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert quote item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read quote item id: %w", err)
		}
		item.ID = int(id)
		item.QuoteID = quoteID
	}
	return nil
}

// Delete removes a quote and its items.
func (r *QuoteRepository) Delete(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quote: %w", err)
	}
	return nil
}

// MaxQuoteNumberForYear returns the highest sequential quote number issued
// in a year, for Q-YYYY-NNNN numbering.
func (r *QuoteRepository) MaxQuoteNumberForYear(ctx context.Context, year int) (int, error) {
	prefix := fmt.Sprintf("Q-%04d-", year)
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(CAST(SUBSTR(quote_number, ?) AS INTEGER))
		FROM quotes WHERE quote_number LIKE ?`,
		len(prefix)+1, prefix+"%",
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max quote number: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

// ProductCost returns the cost side-channel value for a product, with a
// found flag because missing cost data is reported, not an error.
func (r *QuoteRepository) ProductCost(ctx context.Context, productID int) (float64, bool, error) {
	var cost float64
	err := r.db.QueryRowContext(ctx,
		`SELECT cost FROM product_costs WHERE product_id = ?`, productID).Scan(&cost)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get product cost: %w", err)
	}
	return cost, true, nil
}

// SetProductCost upserts the cost side-channel for a product.
func (r *QuoteRepository) SetProductCost(ctx context.Context, productID int, name string, cost float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO product_costs (product_id, product_name, cost)
		VALUES (?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET product_name = excluded.product_name, cost = excluded.cost`,
		productID, name, cost)
	if err != nil {
		return fmt.Errorf("failed to set product cost: %w", err)
	}
	return nil
}

func (r *QuoteRepository) listItems(ctx context.Context, quoteID int) ([]models.QuoteItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, quote_id, product_id, product_name, quantity, unit_price,
			discount_pct, total_price
		FROM quote_items WHERE quote_id = ? ORDER BY id`,
		quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quote items: %w", err)
	}
	defer rows.Close()

	var items []models.QuoteItem
	for rows.Next() {
		var item models.QuoteItem
		if err := rows.Scan(&item.ID, &item.QuoteID, &item.ProductID,
			&item.ProductName, &item.Quantity, &item.UnitPrice,
			&item.DiscountPct, &item.TotalPrice); err != nil {
			return nil, fmt.Errorf("failed to scan quote item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanQuoteRow(row *sql.Row) (*models.Quote, error) {
	var (
		q          models.Quote
		quoteDate  string
		validUntil *string
		status     string
	)
	err := row.Scan(&q.ID, &q.ClientID, &q.QuoteNumber, &quoteDate, &validUntil,
		&status, &q.TotalAmount, &q.Currency, &q.Discount, &q.TaxRate, &q.Notes)
	if err != nil {
		return nil, err
	}
	fillQuote(&q, quoteDate, validUntil, status)
	return &q, nil
}

func collectQuotes(rows *sql.Rows) ([]*models.Quote, error) {
	var out []*models.Quote
	for rows.Next() {
		var (
			q          models.Quote
			quoteDate  string
			validUntil *string
			status     string
		)
		if err := rows.Scan(&q.ID, &q.ClientID, &q.QuoteNumber, &quoteDate,
			&validUntil, &status, &q.TotalAmount, &q.Currency, &q.Discount,
			&q.TaxRate, &q.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		fillQuote(&q, quoteDate, validUntil, status)
		out = append(out, &q)
	}
	return out, rows.Err()
}

func fillQuote(q *models.Quote, quoteDate string, validUntil *string, status string) {
	if t, err := models.ParseUserDate(quoteDate); err == nil {
		q.QuoteDate = t
	}
	q.ValidUntil = parseDatePtr(validUntil)
	q.Status = models.QuoteStatus(status)
}
