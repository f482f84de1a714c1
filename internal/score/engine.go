// Package score owns the seriousness score of clients. The engine is the
// only writer of the score, its derived classification band and the
// append-only score history, keeping the three consistent within a single
// transaction.
package score

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/classify"
	"github.com/exportdesk-io/exportdesk-ce/internal/email/inbound/connector"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

const alertBuffer = 64

// Engine applies score deltas and maintains the classification band.
type Engine struct {
	db        *sql.DB
	sentiment *classify.SentimentScorer
	alerts    chan models.ClassificationChange
	logger    *log.Logger
	now       func() time.Time
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

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSentimentScorer injects a shared scorer so its phrase table reloads
// in one place.
func WithSentimentScorer(s *classify.SentimentScorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.sentiment = s
		}
	}
}

// NewEngine wires a score engine around the shared store connection.
func NewEngine(db *sql.DB, opts ...Option) *Engine {
	e := &Engine{
		db:        db,
		sentiment: classify.NewSentimentScorer(),
		alerts:    make(chan models.ClassificationChange, alertBuffer),
		logger:    log.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Alerts exposes classification changes for the UI alert layer. History is
// always recorded before a change is emitted here.
func (e *Engine) Alerts() <-chan models.ClassificationChange {
	return e.alerts
}

// Delta computes the score delta for a classified message: the classifier
// weight plus the bounded sentiment bonus over the body.
func (e *Engine) Delta(msg connector.RawMessage, classified classify.Result) int {
	return classified.Weight + e.sentiment.Bonus(msg.BodyText)
}

// ApplyTx applies a delta inside a caller-owned transaction, updating the
// client row and appending history when the classification band moves.
// The returned change, when non-nil, must be handed to Emit after the
// transaction commits.
func (e *Engine) ApplyTx(ctx context.Context, tx *sql.Tx, clientID, delta int, reason string, messageID *int) (*models.ClassificationChange, error) {
	clients := repository.NewClientRepository(tx)
	history := repository.NewScoreHistoryRepository(tx)

	client, err := clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	oldScore := client.SeriousnessScore
	oldClass := client.Classification
	newScore := oldScore + delta
	newClass := models.ClassifyScore(newScore)

	if err := clients.UpdateScore(ctx, clientID, newScore, newClass); err != nil {
		return nil, err
	}

	if newClass == oldClass {
		return nil, nil
	}

	now := e.now()
	if _, err := history.Append(ctx, &models.ScoreHistory{
		ClientID:       clientID,
		Timestamp:      now,
		Score:          newScore,
		Classification: newClass,
		ChangeReason:   reason,
		MessageID:      messageID,
	}); err != nil {
		return nil, err
	}

	return &models.ClassificationChange{
		ClientID:          clientID,
		CompanyName:       client.CompanyName,
		OldClassification: oldClass,
		NewClassification: newClass,
		OldScore:          oldScore,
		NewScore:          newScore,
		ChangeReason:      reason,
		At:                now,
	}, nil
}

// Apply runs ApplyTx in its own transaction and emits the change.
func (e *Engine) Apply(ctx context.Context, clientID, delta int, reason string, messageID *int) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin score transaction: %w", err)
	}
	change, err := e.ApplyTx(ctx, tx, clientID, delta, reason, messageID)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit score transaction: %w", err)
	}
	e.Emit(change)
	return nil
}

// Emit publishes a committed classification change. The send is
// best-effort: a full alert buffer drops the notification, never the
// history row behind it.
func (e *Engine) Emit(change *models.ClassificationChange) {
	if change == nil {
		return
	}
	select {
	case e.alerts <- *change:
	default:
		e.logger.Printf("score: alert buffer full, dropping notification for client %d", change.ClientID)
	}
}
