// Package connector implements the mail provider contract consumed by the
// sync coordinator. Each fetcher resolves an account's mailbox into parsed
// raw messages; dedup and client attribution stay with the coordinator.
package connector

import (
	"context"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// DefaultFetchTimeout bounds every provider call unless the caller's
// context carries an earlier deadline.
const DefaultFetchTimeout = 30 * time.Second

// Address is a parsed mail address with its optional display name.
type Address struct {
	Name  string
	Email string
}

// AttachmentMeta describes an attachment without carrying its payload.
type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// RawMessage is one provider message after envelope parsing. ExternalID is
// the provider's opaque stable identifier used for ingestion idempotency.
// A message that cannot be attributed to a sender address never leaves the
// connector.
type RawMessage struct {
	ExternalID  string
	From        Address
	To          []Address
	Subject     string
	BodyText    string
	BodyHTML    string
	SentAt      *time.Time
	Attachments []AttachmentMeta
}

// FetchOptions narrows a mailbox fetch.
type FetchOptions struct {
	Folder       string
	Since        *time.Time
	SenderFilter string // peer address; empty fetches the whole folder
	Max          int    // upper bound on returned messages, 0 = fetcher default
}

// Fetcher implementations (IMAP, POP3, Graph) resolve mailboxes for one
// provider type. Results may come back in any order; partial pages are
// legal; timeouts surface as explicit errors.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, account *models.MailAccount, opts FetchOptions) ([]RawMessage, error)
}

// Factory resolves the fetcher implementation for a mail account.
type Factory interface {
	FetcherFor(account *models.MailAccount) (Fetcher, error)
}
