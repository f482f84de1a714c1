package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenAndMigrate(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedClient(t *testing.T, db *sql.DB, company, email string) *models.Client {
	t.Helper()
	client := &models.Client{
		CompanyName: company,
		DateAdded:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	if email != "" {
		client.Email = &email
	}
	_, err := NewClientRepository(db).Create(context.Background(), client)
	require.NoError(t, err)
	return client
}
