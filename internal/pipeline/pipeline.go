// Package pipeline manages sales opportunities through a fixed stage
// machine and derives pipeline reports from the stored deals.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

// Manager owns deal lifecycle and reporting.
type Manager struct {
	db     *sql.DB
	deals  *repository.DealRepository
	logger *log.Logger
	now    func() time.Time
}

// Option customizes the manager.
type Option func(*Manager)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a pipeline manager over the shared store.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		deals:  repository.NewDealRepository(db),
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddDeal creates a deal. Stage defaults to Lead; probability defaults to
// the per-stage table when the caller leaves it at zero for a non-closed-lost
// stage.
func (m *Manager) AddDeal(ctx context.Context, deal *models.Deal) (int, error) {
	if deal.ClientID == 0 {
		return 0, fmt.Errorf("%w: deal requires a client", models.ErrValidation)
	}
	if deal.Name == "" {
		return 0, fmt.Errorf("%w: deal name is required", models.ErrValidation)
	}
	if deal.Stage == "" {
		deal.Stage = models.StageLead
	}
	if !deal.Stage.Valid() {
		return 0, fmt.Errorf("%w: unknown deal stage %q", models.ErrValidation, deal.Stage)
	}
	if deal.Probability == 0 && deal.Stage != models.StageClosedLost {
		deal.Probability = models.DefaultProbability(deal.Stage)
	}
	if deal.Status == "" {
		deal.Status = models.DealActive
	}
	now := m.now()
	deal.CreatedAt = now
	deal.UpdatedAt = now

	id, err := m.deals.Create(ctx, deal)
	if err != nil {
		return 0, err
	}
	m.logger.Printf("[INFO] deal %d (%s) created at stage %s", id, deal.Name, deal.Stage)
	return id, nil
}

// MoveStage advances a deal to a new stage. The probability snaps to the
// stage default unless the caller supplies one; a stage history row is
// appended in the same transaction. Closing a deal stamps the actual close
// date.
func (m *Manager) MoveStage(ctx context.Context, dealID int, stage models.DealStage, probability *float64, notes string) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: unknown deal stage %q", models.ErrValidation, stage)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin stage transition: %w", err)
	}
	defer tx.Rollback()

	deals := m.deals.WithTx(tx)
	deal, err := deals.GetByID(ctx, dealID)
	if err != nil {
		return err
	}
	if deal.Stage == stage {
		return nil
	}

	from := deal.Stage
	deal.Stage = stage
	if probability != nil {
		deal.Probability = *probability
	} else {
		deal.Probability = models.DefaultProbability(stage)
	}
	if stage.Closed() && deal.ActualCloseDate == nil {
		closed := m.now()
		deal.ActualCloseDate = &closed
	}
	deal.UpdatedAt = m.now()
	if err := deals.Update(ctx, deal); err != nil {
		return err
	}
	if _, err := deals.AppendStageHistory(ctx, &models.StageHistory{
		DealID:    dealID,
		FromStage: from,
		ToStage:   stage,
		ChangedAt: m.now(),
		Notes:     notes,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stage transition: %w", err)
	}
	m.logger.Printf("[INFO] deal %d moved %s -> %s", dealID, from, stage)
	return nil
}

// UpdateDeal rewrites a deal's editable fields. A stage change routes
// through MoveStage so history and probability stay consistent.
func (m *Manager) UpdateDeal(ctx context.Context, deal *models.Deal) error {
	current, err := m.deals.GetByID(ctx, deal.ID)
	if err != nil {
		return err
	}
	if deal.Stage != "" && deal.Stage != current.Stage {
		var probability *float64
		if deal.Probability != 0 && deal.Probability != current.Probability {
			probability = &deal.Probability
		}
		if err := m.MoveStage(ctx, deal.ID, deal.Stage, probability, ""); err != nil {
			return err
		}
	}
	refreshed, err := m.deals.GetByID(ctx, deal.ID)
	if err != nil {
		return err
	}
	refreshed.Name = deal.Name
	refreshed.ProductName = deal.ProductName
	refreshed.Value = deal.Value
	refreshed.Currency = deal.Currency
	refreshed.ExpectedCloseDate = deal.ExpectedCloseDate
	refreshed.Notes = deal.Notes
	refreshed.UpdatedAt = m.now()
	return m.deals.Update(ctx, refreshed)
}

// StageHistory returns the transition log for a deal, oldest first.
func (m *Manager) StageHistory(ctx context.Context, dealID int) ([]*models.StageHistory, error) {
	return m.deals.StageHistory(ctx, dealID)
}

// StageTotal aggregates the active deals sitting in one stage.
type StageTotal struct {
	Stage         models.DealStage `json:"stage"`
	Count         int              `json:"count"`
	TotalValue    float64          `json:"total_value"`
	WeightedValue float64          `json:"weighted_value"`
}

// Totals reports count, value and probability-weighted value per stage,
// in pipeline order.
func (m *Manager) Totals(ctx context.Context) ([]StageTotal, error) {
	deals, err := m.deals.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byStage := map[models.DealStage]*StageTotal{}
	for _, stage := range models.PipelineStages {
		byStage[stage] = &StageTotal{Stage: stage}
	}
	for _, deal := range deals {
		total, ok := byStage[deal.Stage]
		if !ok {
			continue
		}
		total.Count++
		total.TotalValue += deal.Value
		total.WeightedValue += deal.WeightedValue()
	}
	out := make([]StageTotal, 0, len(models.PipelineStages))
	for _, stage := range models.PipelineStages {
		out = append(out, *byStage[stage])
	}
	return out, nil
}

// MonthForecast is the expected revenue attributed to one calendar month.
type MonthForecast struct {
	Month    string  `json:"month"` // YYYY-MM
	Closed   float64 `json:"closed"`
	Weighted float64 `json:"weighted"`
	Total    float64 `json:"total"`
}

// Forecast projects revenue over the next months: won deals count full by
// actual close date, open deals count probability-weighted by expected
// close date. Deals without a usable date are left out.
func (m *Manager) Forecast(ctx context.Context, months int) ([]MonthForecast, error) {
	if months <= 0 {
		months = 6
	}
	deals, err := m.deals.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Date(m.now().Year(), m.now().Month(), 1, 0, 0, 0, 0, time.UTC)
	buckets := make(map[string]*MonthForecast, months)
	order := make([]string, 0, months)
	for i := 0; i < months; i++ {
		month := start.AddDate(0, i, 0).Format("2006-01")
		buckets[month] = &MonthForecast{Month: month}
		order = append(order, month)
	}

	for _, deal := range deals {
		switch {
		case deal.Stage == models.StageClosedWon && deal.ActualCloseDate != nil:
			if bucket, ok := buckets[deal.ActualCloseDate.Format("2006-01")]; ok {
				bucket.Closed += deal.Value
			}
		case !deal.Stage.Closed() && deal.ExpectedCloseDate != nil:
			if bucket, ok := buckets[deal.ExpectedCloseDate.Format("2006-01")]; ok {
				bucket.Weighted += deal.WeightedValue()
			}
		}
	}

	out := make([]MonthForecast, 0, months)
	for _, month := range order {
		bucket := buckets[month]
		bucket.Total = bucket.Closed + bucket.Weighted
		out = append(out, *bucket)
	}
	return out, nil
}

// StageConversion is the ratio of deals that reached the next stage.
type StageConversion struct {
	From models.DealStage `json:"from"`
	To   models.DealStage `json:"to"`
	Rate float64          `json:"rate"`
}

// ConversionReport holds funnel ratios over all deals ever created.
type ConversionReport struct {
	Stages            []StageConversion `json:"stages"`
	OverallConversion float64           `json:"overall_conversion"`
	WinRate           float64           `json:"win_rate"`
}

// Conversion computes per-adjacent-stage conversion, overall Lead-to-Won
// conversion, and the win rate among closed deals. A deal counts for every
// stage it ever reached, per its stage history plus its creation stage.
func (m *Manager) Conversion(ctx context.Context) (*ConversionReport, error) {
	reached, err := m.stagesReached(ctx)
	if err != nil {
		return nil, err
	}

	funnel := []models.DealStage{
		models.StageLead, models.StageQualified, models.StageProposal,
		models.StageNegotiation, models.StageClosedWon,
	}
	report := &ConversionReport{}
	for i := 0; i < len(funnel)-1; i++ {
		current, next := reached[funnel[i]], reached[funnel[i+1]]
		rate := 0.0
		if current > 0 {
			rate = float64(next) / float64(current)
		}
		report.Stages = append(report.Stages, StageConversion{
			From: funnel[i], To: funnel[i+1], Rate: rate,
		})
	}
	if leads := reached[models.StageLead]; leads > 0 {
		report.OverallConversion = float64(reached[models.StageClosedWon]) / float64(leads)
	}
	if closed := reached[models.StageClosedWon] + reached[models.StageClosedLost]; closed > 0 {
		report.WinRate = float64(reached[models.StageClosedWon]) / float64(closed)
	}
	return report, nil
}

// stagesReached counts, per stage, the deals that ever passed through it.
func (m *Manager) stagesReached(ctx context.Context) (map[models.DealStage]int, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT d.id, d.stage, group_concat(h.to_stage, char(31))
		FROM deals d
		LEFT JOIN stage_history h ON h.deal_id = d.id
		GROUP BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage history: %w", err)
	}
	defer rows.Close()

	reached := map[models.DealStage]int{}
	for rows.Next() {
		var (
			id       int
			stage    string
			reachedS sql.NullString
		)
		if err := rows.Scan(&id, &stage, &reachedS); err != nil {
			return nil, fmt.Errorf("failed to scan stage history: %w", err)
		}
		set := map[models.DealStage]bool{models.StageLead: true, models.DealStage(stage): true}
		if reachedS.Valid {
			for _, s := range splitRecord(reachedS.String) {
				set[models.DealStage(s)] = true
			}
		}
		for s := range set {
			reached[s]++
		}
	}
	return reached, rows.Err()
}

func splitRecord(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 31 {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
