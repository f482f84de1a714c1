// Package filters decides whether a raw message enters the ingestion
// pipeline. Rejection reasons are exhaustive and checked in a fixed order.
package filters

import (
	"strings"
	"sync"

	"github.com/exportdesk-io/exportdesk-ce/internal/email/inbound/connector"
)

// RejectReason enumerates why a message was dropped.
type RejectReason string

const (
	RejectSelfOrigin  RejectReason = "self_origin"
	RejectBulkPattern RejectReason = "bulk_pattern"
	RejectLowSignal   RejectReason = "low_signal"
)

// Decision is the filter verdict. Accepted and Reason are mutually
// exclusive: exactly one of accept or reject(reason) holds for every
// message.
type Decision struct {
	Accepted bool
	Reason   RejectReason
	Matched  string // the pattern that triggered a rejection, for logs
}

// Config holds the tunable pattern sets, all matched as case-insensitive
// substrings.
type Config struct {
	BulkPatterns   []string
	RequestPhrases []string
	MinBodyLength  int
}

// DefaultConfig mirrors the patterns the sync engine ships with.
func DefaultConfig() Config {
	return Config{
		BulkPatterns: []string{
			"unsubscribe",
			"no-reply",
			"noreply",
			"do not reply",
			"newsletter",
			"auto-reply",
			"automatic reply",
			"out of office",
			"mailer-daemon",
			"delivery status notification",
		},
		RequestPhrases: []string{
			"price", "quote", "quotation", "sample", "specification",
			"moq", "minimum order", "lead time", "datasheet", "interested in",
		},
		MinBodyLength: 20,
	}
}

// MessageFilter applies the accept/reject policy. Safe for concurrent use;
// the pattern sets hot-reload through Reload.
type MessageFilter struct {
	mu  sync.RWMutex
	cfg Config
}

// NewMessageFilter builds a filter from the given configuration.
func NewMessageFilter(cfg Config) *MessageFilter {
	if cfg.MinBodyLength <= 0 {
		cfg.MinBodyLength = DefaultConfig().MinBodyLength
	}
	return &MessageFilter{cfg: cfg}
}

// Reload swaps the pattern sets.
func (f *MessageFilter) Reload(cfg Config) {
	if cfg.MinBodyLength <= 0 {
		cfg.MinBodyLength = DefaultConfig().MinBodyLength
	}
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
}

// Check decides accept or reject(reason) for a raw message fetched for the
// given account address.
func (f *MessageFilter) Check(msg connector.RawMessage, accountEmail string) Decision {
	f.mu.RLock()
	cfg := f.cfg
	f.mu.RUnlock()

	// 1. Self-loop: the sender is the account itself.
	if msg.From.Email != "" && strings.EqualFold(msg.From.Email, strings.TrimSpace(accountEmail)) {
		return Decision{Reason: RejectSelfOrigin}
	}

	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.BodyText)
	sender := strings.ToLower(msg.From.Email)

	// 2. Bulk/spam pattern match on subject, body or sender address.
	for _, pattern := range cfg.BulkPatterns {
		p := strings.ToLower(pattern)
		if p == "" {
			continue
		}
		if strings.Contains(subject, p) || strings.Contains(body, p) || strings.Contains(sender, p) {
			return Decision{Reason: RejectBulkPattern, Matched: pattern}
		}
	}

	// 3. Bounce/ping: short body, no attachments, no recognised request
	// phrase.
	if len(strings.TrimSpace(msg.BodyText)) < cfg.MinBodyLength && len(msg.Attachments) == 0 {
		if !containsAny(subject+" "+body, cfg.RequestPhrases) {
			return Decision{Reason: RejectLowSignal}
		}
	}

	return Decision{Accepted: true}
}

func containsAny(haystack string, phrases []string) bool {
	for _, phrase := range phrases {
		p := strings.ToLower(phrase)
		if p != "" && strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}
