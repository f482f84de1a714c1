package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/knadh/go-pop3"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

type pop3Connection interface {
	Auth(user, password string) error
	Quit() error
	Uidl(msgID int) ([]pop3.MessageID, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
}

type pop3ConnFactory func(account *models.MailAccount) (pop3Connection, error)

// POP3Fetcher resolves POP3 mailboxes, used for cPanel-style accounts
// where IMAP is not exposed. POP3 has no server-side search, so the
// sender filter and the since bound apply after parsing.
type POP3Fetcher struct {
	dialTimeout time.Duration
	logger      *log.Logger
	newConn     pop3ConnFactory
}

// POP3FetcherOption customizes fetcher behavior.
type POP3FetcherOption func(*POP3Fetcher)

// NewPOP3Fetcher returns a POP3 connector.
func NewPOP3Fetcher(opts ...POP3FetcherOption) *POP3Fetcher {
	f := &POP3Fetcher{
		dialTimeout: 5 * time.Second,
		logger:      log.Default(),
	}
	f.newConn = f.defaultConnFactory
	for _, opt := range opts {
		opt(f)
	}
	if f.newConn == nil {
		f.newConn = f.defaultConnFactory
	}
	return f
}

// WithPOP3Logger overrides the logger used for connector diagnostics.
func WithPOP3Logger(logger *log.Logger) POP3FetcherOption {
	return func(f *POP3Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithPOP3DialTimeout overrides the socket dial timeout.
func WithPOP3DialTimeout(timeout time.Duration) POP3FetcherOption {
	return func(f *POP3Fetcher) {
		if timeout > 0 {
			f.dialTimeout = timeout
		}
	}
}

func withPOP3ConnFactory(factory pop3ConnFactory) POP3FetcherOption {
	return func(f *POP3Fetcher) {
		f.newConn = factory
	}
}

// Name returns the connector identifier.
func (f *POP3Fetcher) Name() string {
	return "pop3"
}

// Fetch drains the mailbox listing and returns parsed messages matching
// the fetch options.
func (f *POP3Fetcher) Fetch(ctx context.Context, account *models.MailAccount, opts FetchOptions) ([]RawMessage, error) {
	if err := validatePOP3Account(account); err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFetchTimeout)
		defer cancel()
	}

	conn, err := f.newConn(account)
	if err != nil {
		return nil, fmt.Errorf("%w: pop3 connect: %v", models.ErrTransient, err)
	}
	defer f.safeQuit(conn)

	if err := conn.Auth(*account.Username, *account.Password); err != nil {
		return nil, fmt.Errorf("%w: pop3 auth failed, check the account credentials: %v", models.ErrPermanent, err)
	}

	metas, err := conn.Uidl(0)
	if err != nil {
		return nil, fmt.Errorf("%w: pop3 uidl: %v", models.ErrTransient, err)
	}
	if len(metas) == 0 {
		return nil, nil
	}

	max := opts.Max
	if max <= 0 {
		max = DefaultMaxPerFetch
	}

	var messages []RawMessage
	// Walk newest first so the bound keeps recent messages.
	for i := len(metas) - 1; i >= 0 && len(messages) < max; i-- {
		if ctx.Err() != nil {
			return messages, ctx.Err()
		}
		meta := metas[i]

		payload, err := conn.RetrRaw(meta.ID)
		if err != nil {
			f.logger.Printf("pop3: retr %d failed: %v", meta.ID, err)
			continue
		}
		uid := meta.UID
		if uid == "" {
			uid = strconv.Itoa(meta.ID)
		}
		msg, perr := parseRFC822(payload.Bytes(), remoteID(account, uid))
		if perr != nil {
			f.logger.Printf("pop3: skipping %s: %v", uid, perr)
			continue
		}
		if opts.SenderFilter != "" && !messageInvolves(msg, opts.SenderFilter) {
			continue
		}
		if opts.Since != nil && msg.SentAt != nil && msg.SentAt.Before(*opts.Since) {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func messageInvolves(msg RawMessage, addr string) bool {
	canonical := models.CanonicalEmail(addr)
	if msg.From.Email == canonical {
		return true
	}
	for _, to := range msg.To {
		if to.Email == canonical {
			return true
		}
	}
	return false
}

func (f *POP3Fetcher) safeQuit(conn pop3Connection) {
	if conn == nil {
		return
	}
	if err := conn.Quit(); err != nil && f.logger != nil {
		f.logger.Printf("pop3 quit error: %v", err)
	}
}

func (f *POP3Fetcher) defaultConnFactory(account *models.MailAccount) (pop3Connection, error) {
	host := ""
	if account.Host != nil {
		host = *account.Host
	}
	if host == "" {
		return nil, fmt.Errorf("%w: pop3 account missing host", models.ErrConfiguration)
	}
	port := 0
	if account.Port != nil {
		port = *account.Port
	}
	if port == 0 {
		if account.UseSSL {
			port = 995
		} else {
			port = 110
		}
	}
	client := pop3.New(pop3.Opt{
		Host:        host,
		Port:        port,
		DialTimeout: f.dialTimeout,
		TLSEnabled:  account.UseSSL,
	})
	return client.NewConn()
}

func validatePOP3Account(account *models.MailAccount) error {
	if account == nil {
		return errors.New("pop3 fetcher requires an account")
	}
	if account.Username == nil || *account.Username == "" {
		return fmt.Errorf("%w: pop3 account missing username", models.ErrConfiguration)
	}
	if account.Password == nil || *account.Password == "" {
		return fmt.Errorf("%w: pop3 account missing password", models.ErrConfiguration)
	}
	return nil
}
