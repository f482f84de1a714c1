// Package sync drives the mail ingestion pipeline: provider fetch,
// filtering, request classification, scoring and idempotent message
// storage. Provider calls fan out across a bounded worker pool; every
// store write serialises on the shared connection.
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/classify"
	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/email/inbound/connector"
	"github.com/exportdesk-io/exportdesk-ce/internal/email/inbound/filters"
	"github.com/exportdesk-io/exportdesk-ce/internal/metrics"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
	"github.com/exportdesk-io/exportdesk-ce/internal/score"
)

const (
	// MaxPerSender bounds how many messages one contact pair may yield
	// per pass.
	MaxPerSender = 50

	defaultWorkers = 3
)

// Pair selects one account/contact combination for a sync pass.
type Pair struct {
	Account      *models.MailAccount
	ContactEmail string
}

// ContactError records a provider failure for one contact. Failures never
// abort the batch; they aggregate here.
type ContactError struct {
	ContactEmail string
	AccountEmail string
	Err          error
}

// Result aggregates the counters of one sync pass.
type Result struct {
	Scanned           int
	Saved             int
	SkippedDuplicates int
	SkippedFiltered   int
	ClientsCreated    int
	RequestsCreated   int
	Errors            []ContactError
}

// Coordinator orchestrates the per-contact ingestion pipeline.
type Coordinator struct {
	db         *sql.DB
	factory    connector.Factory
	filter     *filters.MessageFilter
	classifier *classify.Classifier
	scores     *score.Engine
	gate       *database.Gate
	workers    int
	logger     *log.Logger
	now        func() time.Time
}

// Option customizes the coordinator.
type Option func(*Coordinator)

// WithWorkers bounds the provider fetch concurrency.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFilter injects a shared message filter.
func WithFilter(f *filters.MessageFilter) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.filter = f
		}
	}
}

// WithGate makes ingest transactions hold the backup gate so snapshots
// see a quiesced store.
func WithGate(g *database.Gate) Option {
	return func(c *Coordinator) {
		c.gate = g
	}
}

// NewCoordinator wires the ingestion pipeline around the shared store
// connection.
func NewCoordinator(db *sql.DB, factory connector.Factory, scores *score.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		db:         db,
		factory:    factory,
		filter:     filters.NewMessageFilter(filters.DefaultConfig()),
		classifier: classify.NewClassifier(),
		scores:     scores,
		workers:    defaultWorkers,
		logger:     log.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one sync pass over the selected pairs. Provider fetches
// run concurrently up to the worker bound; per-message processing is
// atomic at the message grain, so cancellation never leaves a
// half-written row.
func (c *Coordinator) Run(ctx context.Context, pairs []Pair) Result {
	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
		sem    = make(chan struct{}, c.workers)
	)

	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		pair := pair
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			contactResult := c.syncContact(ctx, pair)

			mu.Lock()
			result.Scanned += contactResult.Scanned
			result.Saved += contactResult.Saved
			result.SkippedDuplicates += contactResult.SkippedDuplicates
			result.SkippedFiltered += contactResult.SkippedFiltered
			result.ClientsCreated += contactResult.ClientsCreated
			result.RequestsCreated += contactResult.RequestsCreated
			result.Errors = append(result.Errors, contactResult.Errors...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return result
}

func (c *Coordinator) syncContact(ctx context.Context, pair Pair) Result {
	var result Result

	if pair.Account == nil || pair.ContactEmail == "" {
		result.Errors = append(result.Errors, ContactError{
			ContactEmail: pair.ContactEmail,
			Err:          fmt.Errorf("%w: sync pair is missing its account or contact", models.ErrConfiguration),
		})
		return result
	}

	fetcher, err := c.factory.FetcherFor(pair.Account)
	if err != nil {
		metrics.SyncErrors.Inc()
		result.Errors = append(result.Errors, ContactError{
			ContactEmail: pair.ContactEmail,
			AccountEmail: pair.Account.Email,
			Err:          err,
		})
		return result
	}

	messages, err := fetcher.Fetch(ctx, pair.Account, connector.FetchOptions{
		SenderFilter: pair.ContactEmail,
		Max:          MaxPerSender,
	})
	if err != nil {
		metrics.SyncErrors.Inc()
		result.Errors = append(result.Errors, ContactError{
			ContactEmail: pair.ContactEmail,
			AccountEmail: pair.Account.Email,
			Err:          err,
		})
		// Partial pages are legal; fall through with what we got.
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return result
		}
		result.Scanned++
		metrics.MessagesScanned.Inc()

		outcome, err := c.ingestMessage(ctx, pair, msg)
		if err != nil {
			c.logger.Printf("sync: %s: %v", pair.ContactEmail, err)
			result.Errors = append(result.Errors, ContactError{
				ContactEmail: pair.ContactEmail,
				AccountEmail: pair.Account.Email,
				Err:          err,
			})
			continue
		}
		result.Saved += outcome.saved
		result.SkippedDuplicates += outcome.skippedDuplicate
		result.SkippedFiltered += outcome.skippedFiltered
		result.ClientsCreated += outcome.clientsCreated
		result.RequestsCreated += outcome.requestsCreated
	}

	return result
}

type ingestOutcome struct {
	saved            int
	skippedDuplicate int
	skippedFiltered  int
	clientsCreated   int
	requestsCreated  int
}

// ingestMessage runs the per-message pipeline in one transaction. Filter
// rejections and duplicate external ids roll the whole transaction back,
// which is what makes re-runs and cancellation safe: a message either
// lands completely (client, message, request, score) or not at all.
func (c *Coordinator) ingestMessage(ctx context.Context, pair Pair, msg connector.RawMessage) (ingestOutcome, error) {
	var outcome ingestOutcome

	peer, direction := c.resolvePeer(pair, msg)
	if peer == "" {
		// The provider returned a message not involving the contact.
		outcome.skippedFiltered++
		return outcome, nil
	}

	if c.gate != nil {
		c.gate.Enter()
		defer c.gate.Leave()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return outcome, fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer tx.Rollback()

	clients := repository.NewClientRepository(tx)
	messagesRepo := repository.NewMessageRepository(tx)
	requests := repository.NewRequestRepository(tx)

	client, created, err := c.resolveClient(ctx, clients, peer, msg)
	if err != nil {
		return outcome, err
	}

	// The self-loop rule only applies to inbound traffic; the account is
	// trivially the sender of its own outbound mail.
	accountEmail := pair.Account.Email
	if direction == models.DirectionOutbound {
		accountEmail = ""
	}
	decision := c.filter.Check(msg, accountEmail)
	if !decision.Accepted {
		outcome.skippedFiltered++
		metrics.MessagesFiltered.WithLabelValues(string(decision.Reason)).Inc()
		return outcome, nil // rollback drops any synthesized client
	}

	externalID := msg.ExternalID
	if externalID != "" {
		exists, err := messagesRepo.Exists(ctx, client.ID, externalID)
		if err != nil {
			return outcome, err
		}
		if exists {
			outcome.skippedDuplicate++
			metrics.MessagesDuplicate.Inc()
			return outcome, nil
		}
	}

	classified := c.classifier.Classify(msg.Subject, msg.BodyText)
	delta := c.scores.Delta(msg, classified)

	channel := models.ChannelIMAP
	if pair.Account.ProviderType == models.ProviderOutlook {
		channel = models.ChannelOutlook
	}

	var extID *string
	if externalID != "" {
		extID = &externalID
	}
	row := &models.Message{
		ClientID:          client.ID,
		ReceivedAt:        c.now(),
		SentAt:            msg.SentAt,
		Direction:         direction,
		Channel:           channel,
		RequestType:       classified.Type,
		Subject:           msg.Subject,
		Body:              msg.BodyText,
		Attachments:       attachmentNames(msg.Attachments),
		ScoreEffect:       delta,
		ExternalMessageID: extID,
		Status:            models.MessageReceived,
	}
	messageID, err := messagesRepo.Create(ctx, row)
	if err == repository.ErrAlreadyIngested {
		outcome.skippedDuplicate++
		metrics.MessagesDuplicate.Inc()
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}

	if classified.Type != models.RequestGeneral {
		switch direction {
		case models.DirectionInbound:
			if _, err := requests.Create(ctx, &models.Request{
				ClientID:        client.ID,
				SourceMessageID: messageID,
				RequestType:     classified.Type,
				Status:          models.RequestOpen,
				ReplyStatus:     models.ReplyPending,
				ExtractedText:   excerpt(msg.BodyText, 500),
				CreatedAt:       c.now(),
			}); err != nil {
				return outcome, err
			}
			outcome.requestsCreated++
		case models.DirectionOutbound:
			// An outbound message of a matching type implicitly answers
			// the client's open requests of that type.
			if _, err := requests.MarkOpenRepliedForClient(ctx, client.ID, classified.Type); err != nil {
				return outcome, err
			}
		}
	}

	change, err := c.scores.ApplyTx(ctx, tx, client.ID, delta,
		fmt.Sprintf("message:%d", messageID), &messageID)
	if err != nil {
		return outcome, err
	}

	if err := tx.Commit(); err != nil {
		return outcome, fmt.Errorf("failed to commit ingest transaction: %w", err)
	}

	c.scores.Emit(change)
	outcome.saved++
	outcome.clientsCreated += created
	metrics.MessagesSaved.Inc()
	if created > 0 {
		metrics.ClientsCreated.Inc()
	}
	if outcome.requestsCreated > 0 {
		metrics.RequestsCreated.Inc()
	}
	return outcome, nil
}

// resolvePeer finds which side of the message is the synced contact and
// derives the message direction from it.
func (c *Coordinator) resolvePeer(pair Pair, msg connector.RawMessage) (string, models.Direction) {
	contact := models.CanonicalEmail(pair.ContactEmail)
	if msg.From.Email == contact {
		return contact, models.DirectionInbound
	}
	for _, to := range msg.To {
		if to.Email == contact {
			return contact, models.DirectionOutbound
		}
	}
	return "", models.DirectionInbound
}

// resolveClient attributes the peer address to an existing client,
// promotes a custom-sync allow-list entry, or synthesizes a minimal
// client. Returns how many clients were created (0 or 1).
func (c *Coordinator) resolveClient(ctx context.Context, clients *repository.ClientRepository, peer string, msg connector.RawMessage) (*models.Client, int, error) {
	client, err := clients.GetByEmail(ctx, peer)
	if err == nil {
		return client, 0, nil
	}

	// Promote from the allow-list when present; the allow-list row
	// survives the promotion.
	if custom, cerr := clients.GetCustomSyncClientByEmail(ctx, peer); cerr == nil {
		promoted := custom.ToClient()
		promoted.DateAdded = c.now()
		if _, perr := clients.Create(ctx, promoted); perr != nil {
			return nil, 0, perr
		}
		return promoted, 1, nil
	}

	name := strings.TrimSpace(msg.From.Name)
	if name == "" || models.CanonicalEmail(msg.From.Email) != peer {
		// Fall back to the local part of the peer address.
		name = peer
		if at := strings.Index(peer, "@"); at > 0 {
			name = peer[:at]
		}
	}
	email := peer
	synthesized := &models.Client{
		CompanyName:    name,
		Email:          &email,
		DateAdded:      c.now(),
		Status:         "New",
		Classification: models.ClassificationNotSerious,
	}
	if _, err := clients.Create(ctx, synthesized); err != nil {
		return nil, 0, err
	}
	return synthesized, 1, nil
}

func attachmentNames(metas []connector.AttachmentMeta) []string {
	if len(metas) == 0 {
		return nil
	}
	names := make([]string, 0, len(metas))
	for _, meta := range metas {
		names = append(names, meta.Filename)
	}
	return names
}

func excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
