package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// DefaultMaxPerFetch bounds a fetch when the caller supplies no limit.
const DefaultMaxPerFetch = 50

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}

// IMAPFetcher resolves IMAP mailboxes. Fetching is non-destructive: the
// store keeps its own idempotency index, so messages stay on the server.
type IMAPFetcher struct {
	dialTimeout time.Duration
	logger      *log.Logger
	newClient   func(account *models.MailAccount) (imapClient, error)
}

// IMAPFetcherOption customizes fetcher behavior.
type IMAPFetcherOption func(*IMAPFetcher)

// NewIMAPFetcher returns an IMAP connector.
func NewIMAPFetcher(opts ...IMAPFetcherOption) *IMAPFetcher {
	f := &IMAPFetcher{
		dialTimeout: 5 * time.Second,
		logger:      log.Default(),
	}
	f.newClient = f.defaultClientFactory
	for _, opt := range opts {
		opt(f)
	}
	if f.newClient == nil {
		f.newClient = f.defaultClientFactory
	}
	return f
}

// WithIMAPLogger overrides the logger used for connector diagnostics.
func WithIMAPLogger(logger *log.Logger) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		if timeout > 0 {
			f.dialTimeout = timeout
		}
	}
}

func withIMAPClientFactory(factory func(*models.MailAccount) (imapClient, error)) IMAPFetcherOption {
	return func(f *IMAPFetcher) {
		f.newClient = factory
	}
}

// Name returns the connector identifier.
func (f *IMAPFetcher) Name() string {
	return "imap"
}

// Fetch searches the account's folder and returns parsed messages.
func (f *IMAPFetcher) Fetch(ctx context.Context, account *models.MailAccount, opts FetchOptions) ([]RawMessage, error) {
	if err := validateIMAPAccount(account); err != nil {
		return nil, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFetchTimeout)
		defer cancel()
	}

	client, err := f.newClient(account)
	if err != nil {
		return nil, fmt.Errorf("%w: imap connect: %v", models.ErrTransient, err)
	}
	defer f.safeClose(client)

	if err := client.Login(*account.Username, *account.Password).Wait(); err != nil {
		return nil, fmt.Errorf("%w: imap auth failed, check the account credentials: %v", models.ErrPermanent, err)
	}

	mailbox := opts.Folder
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("%w: imap select %s: %v", models.ErrTransient, mailbox, err)
	}

	criteria := &imap.SearchCriteria{}
	if opts.Since != nil {
		criteria.Since = *opts.Since
	}
	if opts.SenderFilter != "" {
		// Match the peer in either direction: inbound mail carries it in
		// From, our own replies in a sent folder carry it in To.
		criteria.Or = [][2]imap.SearchCriteria{{
			{Header: []imap.SearchCriteriaHeaderField{{Key: "From", Value: opts.SenderFilter}}},
			{Header: []imap.SearchCriteriaHeaderField{{Key: "To", Value: opts.SenderFilter}}},
		}}
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: imap search: %v", models.ErrTransient, err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	max := opts.Max
	if max <= 0 {
		max = DefaultMaxPerFetch
	}
	// Newest UIDs last in search results; keep the tail of the window.
	if len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	uidSet := imap.UIDSetNum(uids...)
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	buffers, err := client.Fetch(uidSet, fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("%w: imap fetch: %v", models.ErrTransient, err)
	}

	messages := make([]RawMessage, 0, len(buffers))
	for _, buf := range buffers {
		if ctx.Err() != nil {
			return messages, ctx.Err()
		}
		body := buf.FindBodySection(&imap.FetchItemBodySection{})
		if body == nil {
			continue
		}
		uid := fmt.Sprintf("%d", buf.UID)
		msg, perr := parseRFC822(body, remoteID(account, uid))
		if perr != nil {
			f.logger.Printf("imap: skipping uid %s: %v", uid, perr)
			continue
		}
		messages = append(messages, msg)
	}

	if err := client.Logout().Wait(); err != nil {
		f.logger.Printf("imap logout error: %v", err)
	}

	return messages, nil
}

func (f *IMAPFetcher) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && f.logger != nil {
		f.logger.Printf("imap close error: %v", err)
	}
}

func (f *IMAPFetcher) defaultClientFactory(account *models.MailAccount) (imapClient, error) {
	host := ""
	if account.Host != nil {
		host = *account.Host
	}
	if host == "" {
		return nil, fmt.Errorf("%w: imap account missing host", models.ErrConfiguration)
	}
	port := 0
	if account.Port != nil {
		port = *account.Port
	}
	if port == 0 {
		if account.UseSSL {
			port = 993
		} else {
			port = 143
		}
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: f.dialTimeout}}
	addr := fmt.Sprintf("%s:%d", host, port)
	var client *imapclient.Client
	var err error
	if account.UseSSL {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}

func validateIMAPAccount(account *models.MailAccount) error {
	if account == nil {
		return errors.New("imap fetcher requires an account")
	}
	if account.Username == nil || *account.Username == "" {
		return fmt.Errorf("%w: imap account missing username", models.ErrConfiguration)
	}
	if account.Password == nil || *account.Password == "" {
		return fmt.Errorf("%w: imap account missing password", models.ErrConfiguration)
	}
	return nil
}

func remoteID(account *models.MailAccount, uid string) string {
	return fmt.Sprintf("%s:%s", account.Email, uid)
}
