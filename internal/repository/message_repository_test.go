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

func TestMessageRepositoryDedup(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	client := seedClient(t, db, "Acme Exports", "buyer@acme.com")
	extID := "outlook-msg-001"

	first := &models.Message{
		ClientID:          client.ID,
		ReceivedAt:        time.Now().UTC(),
		Direction:         models.DirectionInbound,
		Channel:           models.ChannelOutlook,
		RequestType:       models.RequestPrice,
		Subject:           "price inquiry",
		ExternalMessageID: &extID,
		Status:            models.MessageReceived,
	}
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	dup := *first
	dup.ID = 0
	_, err = repo.Create(ctx, &dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyIngested))

	exists, err := repo.Exists(ctx, client.ID, extID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, client.ID, "never-seen")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMessageRepositoryDedupScopedPerClient(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	a := seedClient(t, db, "Client A", "a@example.com")
	b := seedClient(t, db, "Client B", "b@example.com")
	extID := "shared-id"

	for _, clientID := range []int{a.ID, b.ID} {
		_, err := repo.Create(ctx, &models.Message{
			ClientID:          clientID,
			ReceivedAt:        time.Now().UTC(),
			Direction:         models.DirectionInbound,
			Channel:           models.ChannelIMAP,
			RequestType:       models.RequestGeneral,
			ExternalMessageID: &extID,
			Status:            models.MessageReceived,
		})
		require.NoError(t, err, "same external id is fine across clients")
	}
}

func TestMessageRepositoryListOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	client := seedClient(t, db, "Acme Exports", "buyer@acme.com")

	older := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	mk := func(subject string, sentAt *time.Time, receivedAt time.Time) {
		_, err := repo.Create(ctx, &models.Message{
			ClientID:    client.ID,
			ReceivedAt:  receivedAt,
			SentAt:      sentAt,
			Direction:   models.DirectionInbound,
			Channel:     models.ChannelIMAP,
			RequestType: models.RequestGeneral,
			Subject:     subject,
			Status:      models.MessageReceived,
		})
		require.NoError(t, err)
	}

	mk("no-sent", nil, newer)
	mk("sent-old", &older, older)
	mk("sent-new", &newer, newer)

	got, err := repo.ListByClient(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "sent-new", got[0].Subject)
	assert.Equal(t, "sent-old", got[1].Subject)
	assert.Equal(t, "no-sent", got[2].Subject, "missing sent time sorts last")
}

func TestMessageRepositoryAttachmentsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	client := seedClient(t, db, "Acme Exports", "buyer@acme.com")
	id, err := repo.Create(ctx, &models.Message{
		ClientID:    client.ID,
		ReceivedAt:  time.Now().UTC(),
		Direction:   models.DirectionInbound,
		Channel:     models.ChannelOutlook,
		RequestType: models.RequestSpec,
		Attachments: []string{"spec.pdf", "pricelist.xlsx"},
		Status:      models.MessageReceived,
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"spec.pdf", "pricelist.xlsx"}, got.Attachments)
}

func TestMessageRepositoryUpdateStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	client := seedClient(t, db, "Acme Exports", "buyer@acme.com")
	id, err := repo.Create(ctx, &models.Message{
		ClientID:    client.ID,
		ReceivedAt:  time.Now().UTC(),
		Direction:   models.DirectionOutbound,
		Channel:     models.ChannelIMAP,
		RequestType: models.RequestGeneral,
		Status:      models.MessagePending,
	})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, id, models.MessageSent))
	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.MessageSent, got.Status)
}
