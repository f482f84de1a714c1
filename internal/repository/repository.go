// Package repository provides plain database/sql persistence for the EFM
// entities. Components receive value copies and submit updates through
// explicit operations; the store exclusively owns every row.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside coordinator-owned transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Timestamp columns hold RFC3339 for machine-entered values and
// DD/MM/YYYY for user-entered date columns. Formats are never mixed
// within a column.

func encodeTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func encodeTimestampPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := encodeTimestamp(*t)
	return &s
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// Legacy rows written before the format was pinned down.
	if t, err := models.ParseUserDate(s); err == nil {
		return t
	}
	return time.Time{}
}

func parseTimestampPtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTimestamp(*s)
	return &t
}

func encodeDate(t time.Time) string {
	return models.FormatUserDate(t)
}

func encodeDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := encodeDate(*t)
	return &s
}

func parseDatePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := models.ParseUserDate(*s)
	if err != nil {
		return nil
	}
	return &t
}

func encodeStringList(items []string) *string {
	if len(items) == 0 {
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}

func parseStringList(s *string) []string {
	if s == nil || *s == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(*s), &items); err != nil {
		return nil
	}
	return items
}
