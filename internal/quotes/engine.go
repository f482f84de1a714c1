// Package quotes manages priced offers. Totals are never trusted from the
// caller: every mutation recomputes line totals and the quote total on the
// server side.
package quotes

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
	"github.com/exportdesk-io/exportdesk-ce/internal/tasks"
)

// StatusAlert is emitted when a quote enters a state the user should see.
type StatusAlert struct {
	QuoteID     int                `json:"quote_id"`
	QuoteNumber string             `json:"quote_number"`
	ClientID    int                `json:"client_id"`
	Status      models.QuoteStatus `json:"status"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// Engine owns quote lifecycle, numbering and profitability.
type Engine struct {
	db     *sql.DB
	quotes *repository.QuoteRepository
	tasks  *tasks.Engine
	alerts chan StatusAlert
	logger *log.Logger
	now    func() time.Time
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

// WithTaskEngine lets status transitions schedule follow-up tasks.
func WithTaskEngine(engine *tasks.Engine) Option {
	return func(e *Engine) {
		e.tasks = engine
	}
}

// NewEngine builds a quote engine over the shared store.
func NewEngine(db *sql.DB, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		quotes: repository.NewQuoteRepository(db),
		alerts: make(chan StatusAlert, 16),
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Alerts exposes the status alert stream for the UI layer.
func (e *Engine) Alerts() <-chan StatusAlert {
	return e.alerts
}

// Create stores a quote with its items. The quote number is assigned
// sequentially per year as Q-YYYY-NNNN; item and quote totals are
// recomputed regardless of caller-supplied values.
func (e *Engine) Create(ctx context.Context, quote *models.Quote) (int, error) {
	if quote.ClientID == 0 {
		return 0, fmt.Errorf("%w: quote requires a client", models.ErrValidation)
	}
	if quote.Status == "" {
		quote.Status = models.QuoteDraft
	}
	if !quote.Status.Valid() {
		return 0, fmt.Errorf("%w: unknown quote status %q", models.ErrValidation, quote.Status)
	}
	if quote.QuoteDate.IsZero() {
		quote.QuoteDate = e.now()
	}
	recompute(quote)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin quote creation: %w", err)
	}
	defer tx.Rollback()

	quotes := e.quotes.WithTx(tx)
	if quote.QuoteNumber == "" {
		year := quote.QuoteDate.Year()
		max, err := quotes.MaxQuoteNumberForYear(ctx, year)
		if err != nil {
			return 0, err
		}
		quote.QuoteNumber = fmt.Sprintf("Q-%d-%04d", year, max+1)
	}

	id, err := quotes.Create(ctx, quote)
	if err != nil {
		return 0, err
	}
	if err := quotes.ReplaceItems(ctx, id, quote.Items); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit quote creation: %w", err)
	}
	quote.ID = id
	e.logger.Printf("[INFO] quote %s created for client %d, total %.2f %s",
		quote.QuoteNumber, quote.ClientID, quote.TotalAmount, quote.Currency)
	return id, nil
}

// Get returns a quote with its items.
func (e *Engine) Get(ctx context.Context, id int) (*models.Quote, error) {
	return e.quotes.GetByID(ctx, id)
}

// ListByClient returns a client's quotes, newest first.
func (e *Engine) ListByClient(ctx context.Context, clientID int) ([]*models.Quote, error) {
	return e.quotes.ListByClient(ctx, clientID)
}

// Update rewrites a quote and its items, recomputing totals. Status
// changes route through the transition side effects.
func (e *Engine) Update(ctx context.Context, quote *models.Quote) error {
	current, err := e.quotes.GetByID(ctx, quote.ID)
	if err != nil {
		return err
	}
	if !quote.Status.Valid() {
		return fmt.Errorf("%w: unknown quote status %q", models.ErrValidation, quote.Status)
	}
	recompute(quote)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin quote update: %w", err)
	}
	defer tx.Rollback()

	quotes := e.quotes.WithTx(tx)
	if err := quotes.Update(ctx, quote); err != nil {
		return err
	}
	if err := quotes.ReplaceItems(ctx, quote.ID, quote.Items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quote update: %w", err)
	}

	if current.Status != quote.Status {
		e.fireTransition(ctx, quote)
	}
	return nil
}

// SetStatus moves a quote to a new status and runs the transition side
// effects when the target is one of sent, accepted, rejected or expired.
func (e *Engine) SetStatus(ctx context.Context, id int, status models.QuoteStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown quote status %q", models.ErrValidation, status)
	}
	quote, err := e.quotes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if quote.Status == status {
		return nil
	}
	quote.Status = status
	if err := e.quotes.Update(ctx, quote); err != nil {
		return err
	}
	e.fireTransition(ctx, quote)
	return nil
}

// ExpireStale marks sent quotes past their validity date as expired and
// returns how many changed.
func (e *Engine) ExpireStale(ctx context.Context) (int, error) {
	// valid_until is a day-first user date, so the comparison happens
	// here rather than in SQL.
	now := e.now()
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, valid_until FROM quotes
		WHERE status = 'sent' AND valid_until IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale quotes: %w", err)
	}
	var ids []int
	for rows.Next() {
		var (
			id    int
			until string
		)
		if err := rows.Scan(&id, &until); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan stale quote: %w", err)
		}
		deadline, err := models.ParseUserDate(until)
		if err != nil {
			continue
		}
		if deadline.AddDate(0, 0, 1).Before(now) {
			ids = append(ids, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if err := e.SetStatus(ctx, id, models.QuoteExpired); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// Profitability computes profit against per-product costs. Items without
// a known cost zero the whole computation and set CostDataMissing.
func (e *Engine) Profitability(ctx context.Context, quoteID int) (*models.Profitability, error) {
	quote, err := e.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	result := &models.Profitability{QuoteID: quoteID}
	for _, item := range quote.Items {
		result.Revenue += item.TotalPrice
	}
	for _, item := range quote.Items {
		if item.ProductID == nil {
			result.CostDataMissing = true
			break
		}
		cost, ok, err := e.quotes.ProductCost(ctx, *item.ProductID)
		if err != nil {
			return nil, err
		}
		if !ok {
			result.CostDataMissing = true
			break
		}
		result.Cost += item.Quantity * cost
	}
	if result.CostDataMissing {
		result.Cost = 0
		return result, nil
	}
	result.Profit = result.Revenue - result.Cost
	if result.Revenue > 0 {
		result.ProfitMargin = result.Profit / result.Revenue
	}
	return result, nil
}

// SetProductCost records the ERP-side cost for a product.
func (e *Engine) SetProductCost(ctx context.Context, productID int, name string, cost float64) error {
	return e.quotes.SetProductCost(ctx, productID, name, cost)
}

// fireTransition emits an alert and, for transitions that warrant a
// follow-up, schedules a task when a task engine is wired.
func (e *Engine) fireTransition(ctx context.Context, quote *models.Quote) {
	switch quote.Status {
	case models.QuoteSent, models.QuoteAccepted, models.QuoteRejected, models.QuoteExpired:
	default:
		return
	}

	alert := StatusAlert{
		QuoteID:     quote.ID,
		QuoteNumber: quote.QuoteNumber,
		ClientID:    quote.ClientID,
		Status:      quote.Status,
		OccurredAt:  e.now(),
	}
	select {
	case e.alerts <- alert:
	default:
		e.logger.Printf("[WARN] quote alert channel full, dropping alert for quote %d", quote.ID)
	}

	if e.tasks == nil {
		return
	}
	var title string
	var offset int
	switch quote.Status {
	case models.QuoteSent:
		title = fmt.Sprintf("Follow up on quote %s", quote.QuoteNumber)
		offset = 3
	case models.QuoteExpired:
		title = fmt.Sprintf("Revisit expired quote %s", quote.QuoteNumber)
		offset = 1
	default:
		return
	}
	due := e.now().AddDate(0, 0, offset)
	if _, err := e.tasks.Add(ctx, &models.Task{
		ClientID: quote.ClientID,
		Title:    title,
		TaskType: models.TaskFollowUp,
		Priority: models.PriorityHigh,
		DueDate:  &due,
	}); err != nil {
		e.logger.Printf("[WARN] failed to schedule follow-up for quote %d: %v", quote.ID, err)
	}
}

// recompute rewrites every line total and the quote total from first
// principles.
func recompute(quote *models.Quote) {
	total := 0.0
	for i := range quote.Items {
		quote.Items[i].TotalPrice = quote.Items[i].LineTotal()
		total += quote.Items[i].TotalPrice
	}
	quote.TotalAmount = total - quote.Discount
}
