package quotes

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
	"github.com/exportdesk-io/exportdesk-ce/internal/tasks"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *sql.DB, int) {
	t.Helper()
	db, err := database.OpenAndMigrate(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	email := "buy@goldengrain.ae"
	clientID, err := repository.NewClientRepository(db).Create(context.Background(), &models.Client{
		CompanyName: "Golden Grain Trading",
		Email:       &email,
		DateAdded:   testNow,
	})
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewEngine(db, opts...), db, clientID
}

func drainAlert(t *testing.T, e *Engine) StatusAlert {
	t.Helper()
	select {
	case alert := <-e.Alerts():
		return alert
	default:
		t.Fatal("expected a status alert")
		return StatusAlert{}
	}
}

func requireNoAlert(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case alert := <-e.Alerts():
		t.Fatalf("unexpected alert: %+v", alert)
	default:
	}
}

func TestCreateAssignsNumberAndRecomputesTotals(t *testing.T) {
	e, _, clientID := newTestEngine(t)
	ctx := context.Background()

	quote := &models.Quote{
		ClientID: clientID,
		Currency: "USD",
		Discount: 10,
		Items: []models.QuoteItem{
			// Caller-supplied totals are never trusted.
			{ProductName: "Basmati Rice 5kg", Quantity: 100, UnitPrice: 4, TotalPrice: 9999},
			{ProductName: "Jasmine Rice 5kg", Quantity: 100, UnitPrice: 4, DiscountPct: 10, TotalPrice: 1},
		},
	}
	id, err := e.Create(ctx, quote)
	require.NoError(t, err)

	got, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Q-2025-0001", got.QuoteNumber)
	assert.Equal(t, models.QuoteDraft, got.Status)
	assert.Equal(t, "15/06/2025", got.QuoteDate.Format(models.UserDateLayout))
	require.Len(t, got.Items, 2)
	assert.InDelta(t, 400.0, got.Items[0].TotalPrice, 1e-9)
	assert.InDelta(t, 360.0, got.Items[1].TotalPrice, 1e-9)
	assert.InDelta(t, 750.0, got.TotalAmount, 1e-9)

	second, err := e.Create(ctx, &models.Quote{ClientID: clientID, Currency: "USD"})
	require.NoError(t, err)
	got, err = e.Get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "Q-2025-0002", got.QuoteNumber)
}

func TestCreateValidation(t *testing.T) {
	e, _, clientID := newTestEngine(t)
	ctx := context.Background()

	t.Run("client required", func(t *testing.T) {
		_, err := e.Create(ctx, &models.Quote{Currency: "USD"})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := e.Create(ctx, &models.Quote{ClientID: clientID, Status: "archived"})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestCreateDuplicateNumber(t *testing.T) {
	e, _, clientID := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, &models.Quote{ClientID: clientID, QuoteNumber: "Q-2025-0042"})
	require.NoError(t, err)
	_, err = e.Create(ctx, &models.Quote{ClientID: clientID, QuoteNumber: "Q-2025-0042"})
	assert.ErrorIs(t, err, models.ErrIntegrity)
}

func TestSetStatusSentSchedulesFollowUp(t *testing.T) {
	_, db, clientID := newTestEngine(t)
	taskEngine := tasks.NewEngine(db, tasks.WithClock(func() time.Time { return testNow }))
	e := NewEngine(db,
		WithClock(func() time.Time { return testNow }),
		WithTaskEngine(taskEngine),
	)
	ctx := context.Background()

	id, err := e.Create(ctx, &models.Quote{ClientID: clientID, Currency: "USD"})
	require.NoError(t, err)

	require.NoError(t, e.SetStatus(ctx, id, models.QuoteSent))

	alert := drainAlert(t, e)
	assert.Equal(t, id, alert.QuoteID)
	assert.Equal(t, "Q-2025-0001", alert.QuoteNumber)
	assert.Equal(t, models.QuoteSent, alert.Status)
	assert.Equal(t, testNow, alert.OccurredAt)

	followUps, err := taskEngine.ListByClient(ctx, clientID)
	require.NoError(t, err)
	require.Len(t, followUps, 1)
	assert.Equal(t, "Follow up on quote Q-2025-0001", followUps[0].Title)
	assert.Equal(t, models.TaskFollowUp, followUps[0].TaskType)
	assert.Equal(t, models.PriorityHigh, followUps[0].Priority)
	require.NotNil(t, followUps[0].DueDate)
	assert.Equal(t, "18/06/2025", followUps[0].DueDate.Format(models.UserDateLayout))
}

func TestSetStatusQuietTransitions(t *testing.T) {
	e, _, clientID := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Create(ctx, &models.Quote{ClientID: clientID})
	require.NoError(t, err)

	t.Run("same status is a no-op", func(t *testing.T) {
		require.NoError(t, e.SetStatus(ctx, id, models.QuoteDraft))
		requireNoAlert(t, e)
	})

	t.Run("under review stays silent", func(t *testing.T) {
		require.NoError(t, e.SetStatus(ctx, id, models.QuoteUnderReview))
		requireNoAlert(t, e)
	})

	t.Run("accepted alerts without a follow-up task", func(t *testing.T) {
		require.NoError(t, e.SetStatus(ctx, id, models.QuoteAccepted))
		alert := drainAlert(t, e)
		assert.Equal(t, models.QuoteAccepted, alert.Status)
	})
}

func TestExpireStale(t *testing.T) {
	e, _, clientID := newTestEngine(t)
	ctx := context.Background()

	mk := func(status models.QuoteStatus, validUntil time.Time) int {
		quote := &models.Quote{ClientID: clientID, Status: status, ValidUntil: &validUntil}
		id, err := e.Create(ctx, quote)
		require.NoError(t, err)
		return id
	}
	staleID := mk(models.QuoteSent, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	freshID := mk(models.QuoteSent, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	draftID := mk(models.QuoteDraft, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	expired, err := e.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	for id, want := range map[int]models.QuoteStatus{
		staleID: models.QuoteExpired,
		freshID: models.QuoteSent,
		draftID: models.QuoteDraft,
	} {
		got, err := e.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "quote %d", id)
	}

	alert := drainAlert(t, e)
	assert.Equal(t, staleID, alert.QuoteID)
	assert.Equal(t, models.QuoteExpired, alert.Status)

	// A second sweep finds nothing new.
	expired, err = e.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestProfitability(t *testing.T) {
	e, _, clientID := newTestEngine(t)
	ctx := context.Background()

	rice, tea := 1, 2
	require.NoError(t, e.SetProductCost(ctx, rice, "Basmati Rice 5kg", 2.5))
	require.NoError(t, e.SetProductCost(ctx, tea, "Assam Tea 1kg", 6))

	t.Run("full cost data", func(t *testing.T) {
		id, err := e.Create(ctx, &models.Quote{
			ClientID: clientID,
			Items: []models.QuoteItem{
				{ProductID: &rice, ProductName: "Basmati Rice 5kg", Quantity: 100, UnitPrice: 4},
				{ProductID: &tea, ProductName: "Assam Tea 1kg", Quantity: 50, UnitPrice: 10},
			},
		})
		require.NoError(t, err)

		got, err := e.Profitability(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.CostDataMissing)
		assert.InDelta(t, 900.0, got.Revenue, 1e-9)
		assert.InDelta(t, 550.0, got.Cost, 1e-9)
		assert.InDelta(t, 350.0, got.Profit, 1e-9)
		assert.InDelta(t, 350.0/900.0, got.ProfitMargin, 1e-9)
	})

	t.Run("missing cost zeroes the result", func(t *testing.T) {
		id, err := e.Create(ctx, &models.Quote{
			ClientID: clientID,
			Items: []models.QuoteItem{
				{ProductID: &rice, ProductName: "Basmati Rice 5kg", Quantity: 100, UnitPrice: 4},
				{ProductName: "Hand-packed sampler", Quantity: 10, UnitPrice: 20},
			},
		})
		require.NoError(t, err)

		got, err := e.Profitability(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.CostDataMissing)
		assert.InDelta(t, 600.0, got.Revenue, 1e-9)
		assert.Zero(t, got.Cost)
		assert.Zero(t, got.Profit)
		assert.Zero(t, got.ProfitMargin)
	})

	t.Run("unknown product id", func(t *testing.T) {
		unknown := 99
		id, err := e.Create(ctx, &models.Quote{
			ClientID: clientID,
			Items: []models.QuoteItem{
				{ProductID: &unknown, ProductName: "Mystery", Quantity: 1, UnitPrice: 5},
			},
		})
		require.NoError(t, err)

		got, err := e.Profitability(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.CostDataMissing)
	})
}

func TestUpdateReplacesItemsAndFiresTransition(t *testing.T) {
	e, _, clientID := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Create(ctx, &models.Quote{
		ClientID: clientID,
		Currency: "USD",
		Items: []models.QuoteItem{
			{ProductName: "Basmati Rice 5kg", Quantity: 100, UnitPrice: 4},
		},
	})
	require.NoError(t, err)

	quote, err := e.Get(ctx, id)
	require.NoError(t, err)
	quote.Status = models.QuoteSent
	quote.Items = []models.QuoteItem{
		{ProductName: "Basmati Rice 10kg", Quantity: 60, UnitPrice: 7},
		{ProductName: "Jasmine Rice 5kg", Quantity: 40, UnitPrice: 4.5},
	}
	require.NoError(t, e.Update(ctx, quote))

	got, err := e.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.QuoteSent, got.Status)
	require.Len(t, got.Items, 2)
	assert.InDelta(t, 600.0, got.TotalAmount, 1e-9)

	alert := drainAlert(t, e)
	assert.Equal(t, models.QuoteSent, alert.Status)

	// Updating without a status change stays quiet.
	got.Notes = "revised pricing"
	require.NoError(t, e.Update(ctx, got))
	requireNoAlert(t, e)
}
