package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

func TestClientRepositoryCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	ctx := context.Background()

	email := "  Buyer@ACME.com "
	id, err := repo.Create(ctx, &models.Client{
		CompanyName: "  Acme Exports  ",
		Email:       &email,
		DateAdded:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme Exports", got.CompanyName)
	require.NotNil(t, got.Email)
	assert.Equal(t, "buyer@acme.com", *got.Email, "email stored canonical")
	assert.Equal(t, "New", got.Status)
	assert.Equal(t, models.ClassificationNotSerious, got.Classification)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), got.DateAdded)
}

func TestClientRepositoryDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	ctx := context.Background()

	seedClient(t, db, "First Co", "shared@example.com")

	other := "SHARED@example.com"
	_, err := repo.Create(ctx, &models.Client{
		CompanyName: "Second Co",
		Email:       &other,
		DateAdded:   time.Now().UTC(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrIntegrity))
}

func TestClientRepositoryGetByEmail(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	ctx := context.Background()

	seedClient(t, db, "Hansa Imports", "info@hansa.de")

	got, err := repo.GetByEmail(ctx, " INFO@hansa.de ")
	require.NoError(t, err)
	assert.Equal(t, "Hansa Imports", got.CompanyName)

	_, err = repo.GetByEmail(ctx, "ghost@nowhere.com")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = repo.GetByEmail(ctx, "  ")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestClientRepositoryUpdateScore(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	ctx := context.Background()

	client := seedClient(t, db, "Acme Exports", "buyer@acme.com")

	require.NoError(t, repo.UpdateScore(ctx, client.ID, 65, models.ClassificationSerious))

	got, err := repo.GetByID(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, 65, got.SeriousnessScore)
	assert.Equal(t, models.ClassificationSerious, got.Classification)
}

func TestClientRepositorySetFocus(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	ctx := context.Background()

	client := seedClient(t, db, "Acme Exports", "")
	require.NoError(t, repo.SetFocus(ctx, client.ID, true))

	got, err := repo.GetByID(ctx, client.ID)
	require.NoError(t, err)
	assert.True(t, got.IsFocus)
}

func TestClientRepositoryDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	clients := NewClientRepository(db)
	messages := NewMessageRepository(db)
	ctx := context.Background()

	client := seedClient(t, db, "Acme Exports", "buyer@acme.com")
	_, err := messages.Create(ctx, &models.Message{
		ClientID:   client.ID,
		ReceivedAt: time.Now().UTC(),
		Direction:  models.DirectionInbound,
		Channel:    models.ChannelIMAP,
		Status:     models.MessageReceived,
	})
	require.NoError(t, err)

	require.NoError(t, clients.Delete(ctx, client.ID))

	count, err := messages.CountByClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "messages cascade with the client")

	err = clients.Delete(ctx, client.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCustomSyncClients(t *testing.T) {
	db := newTestDB(t)
	repo := NewClientRepository(db)
	ctx := context.Background()

	t.Run("requires email", func(t *testing.T) {
		_, err := repo.CreateCustomSyncClient(ctx, &models.CustomSyncClient{
			CompanyName: "No Address Ltd",
		})
		assert.True(t, errors.Is(err, models.ErrValidation))
	})

	t.Run("round trip", func(t *testing.T) {
		id, err := repo.CreateCustomSyncClient(ctx, &models.CustomSyncClient{
			CompanyName: "Hansa Imports",
			Email:       " Info@Hansa.DE ",
			DateAdded:   time.Now().UTC(),
		})
		require.NoError(t, err)
		require.NotZero(t, id)

		got, err := repo.GetCustomSyncClientByEmail(ctx, "info@hansa.de")
		require.NoError(t, err)
		assert.Equal(t, "Hansa Imports", got.CompanyName)
		assert.Equal(t, "info@hansa.de", got.Email)

		list, err := repo.ListCustomSyncClients(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, repo.DeleteCustomSyncClient(ctx, id))
		_, err = repo.GetCustomSyncClientByEmail(ctx, "info@hansa.de")
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}
