// Package search builds composable AND-predicates over clients, messages
// and requests. Every search accepts a closed option struct; malformed
// date filters are dropped rather than failing the query.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

// ClientFilter narrows a client search. Zero values mean "no filter".
type ClientFilter struct {
	Text           string
	Classification models.Classification
	Status         string
	Country        string
	MinScore       *int
	MaxScore       *int
	FocusOnly      bool
}

// MessageFilter narrows a message search.
type MessageFilter struct {
	Text     string
	ClientID *int
	Channel  models.Channel
	Type     models.RequestType
	DateFrom string // DD/MM/YYYY, inclusive
	DateTo   string // DD/MM/YYYY, inclusive
}

// RequestFilter narrows a request search.
type RequestFilter struct {
	Text        string
	ClientID    *int
	RequestType models.RequestType
	Status      models.RequestStatus
	ReplyStatus models.ReplyStatus
	DateFrom    string
	DateTo      string
}

// Engine runs compound searches against the store.
type Engine struct {
	db *sql.DB
}

// NewEngine wraps the shared store connection.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Clients searches the client table. Text matches company name, contact
// person, email and country, case-insensitively.
func (e *Engine) Clients(ctx context.Context, filter ClientFilter) ([]*models.Client, error) {
	var (
		where []string
		args  []any
	)
	if text := strings.TrimSpace(filter.Text); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		where = append(where, `(lower(company_name) LIKE ? OR lower(coalesce(contact_person, '')) LIKE ?
			OR lower(coalesce(email, '')) LIKE ? OR lower(coalesce(country, '')) LIKE ?)`)
		args = append(args, like, like, like, like)
	}
	if filter.Classification != "" {
		where = append(where, "classification = ?")
		args = append(args, string(filter.Classification))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Country != "" {
		where = append(where, "lower(coalesce(country, '')) = ?")
		args = append(args, strings.ToLower(filter.Country))
	}
	if filter.MinScore != nil {
		where = append(where, "seriousness_score >= ?")
		args = append(args, *filter.MinScore)
	}
	if filter.MaxScore != nil {
		where = append(where, "seriousness_score <= ?")
		args = append(args, *filter.MaxScore)
	}
	if filter.FocusOnly {
		where = append(where, "is_focus = 1")
	}

	query := `SELECT id, company_name, country, contact_person, email, phone,
		website, date_added, status, seriousness_score, classification, is_focus
		FROM clients`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seriousness_score DESC, company_name COLLATE NOCASE"

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search clients: %w", err)
	}
	defer rows.Close()
	return repository.CollectClients(rows)
}

// Messages searches the message table. Text matches subject and body.
func (e *Engine) Messages(ctx context.Context, filter MessageFilter) ([]*models.Message, error) {
	var (
		where []string
		args  []any
	)
	if text := strings.TrimSpace(filter.Text); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		where = append(where, "(lower(subject) LIKE ? OR lower(body) LIKE ?)")
		args = append(args, like, like)
	}
	if filter.ClientID != nil {
		where = append(where, "client_id = ?")
		args = append(args, *filter.ClientID)
	}
	if filter.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, string(filter.Channel))
	}
	if filter.Type != "" {
		where = append(where, "request_type = ?")
		args = append(args, string(filter.Type))
	}
	appendDateRange(&where, &args, "received_at", filter.DateFrom, filter.DateTo)

	query := `SELECT id, client_id, received_at, sent_at, direction, channel,
		request_type, subject, body, attachments, score_effect, external_message_id, status
		FROM messages`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sent_at IS NULL, sent_at DESC, received_at DESC"

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()
	return repository.CollectMessages(rows)
}

// Requests searches the request table. Text matches the extracted text.
func (e *Engine) Requests(ctx context.Context, filter RequestFilter) ([]*models.Request, error) {
	var (
		where []string
		args  []any
	)
	if text := strings.TrimSpace(filter.Text); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		where = append(where, "lower(extracted_text) LIKE ?")
		args = append(args, like)
	}
	if filter.ClientID != nil {
		where = append(where, "client_id = ?")
		args = append(args, *filter.ClientID)
	}
	if filter.RequestType != "" {
		where = append(where, "request_type = ?")
		args = append(args, string(filter.RequestType))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ReplyStatus != "" {
		where = append(where, "reply_status = ?")
		args = append(args, string(filter.ReplyStatus))
	}
	appendDateRange(&where, &args, "created_at", filter.DateFrom, filter.DateTo)

	query := `SELECT id, client_id, source_message_id, request_type, status,
		reply_status, extracted_text, created_at
		FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search requests: %w", err)
	}
	defer rows.Close()
	return repository.CollectRequests(rows)
}

// appendDateRange adds an inclusive RFC3339 range predicate over a
// machine-timestamp column. Unparseable inputs drop the filter silently.
func appendDateRange(where *[]string, args *[]any, column, from, to string) {
	if from != "" {
		if t, err := models.ParseUserDate(from); err == nil {
			*where = append(*where, column+" >= ?")
			*args = append(*args, t.UTC().Format(time.RFC3339))
		}
	}
	if to != "" {
		if t, err := models.ParseUserDate(to); err == nil {
			end := t.Add(24*time.Hour - time.Second)
			*where = append(*where, column+" <= ?")
			*args = append(*args, end.UTC().Format(time.RFC3339))
		}
	}
}
