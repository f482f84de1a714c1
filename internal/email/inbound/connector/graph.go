package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

const defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphFetcher resolves Outlook mailboxes through the Microsoft Graph REST
// API. The bearer token is acquired out of band and passed verbatim.
type GraphFetcher struct {
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// GraphFetcherOption customizes fetcher behavior.
type GraphFetcherOption func(*GraphFetcher)

// NewGraphFetcher returns a Graph connector.
func NewGraphFetcher(opts ...GraphFetcherOption) *GraphFetcher {
	f := &GraphFetcher{
		baseURL: defaultGraphBaseURL,
		client:  &http.Client{Timeout: DefaultFetchTimeout},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithGraphBaseURL points the fetcher at an alternate endpoint, primarily
// for tests.
func WithGraphBaseURL(baseURL string) GraphFetcherOption {
	return func(f *GraphFetcher) {
		if baseURL != "" {
			f.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithGraphHTTPClient overrides the HTTP client.
func WithGraphHTTPClient(client *http.Client) GraphFetcherOption {
	return func(f *GraphFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithGraphLogger overrides the logger used for connector diagnostics.
func WithGraphLogger(logger *log.Logger) GraphFetcherOption {
	return func(f *GraphFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Name returns the connector identifier.
func (f *GraphFetcher) Name() string {
	return "graph"
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ID             string `json:"id"`
	Subject        string `json:"subject"`
	BodyPreview    string `json:"bodyPreview"`
	SentDateTime   string `json:"sentDateTime"`
	HasAttachments bool   `json:"hasAttachments"`
	Body           struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From         *graphRecipient  `json:"from"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphListResponse struct {
	Value []graphMessage `json:"value"`
}

// Fetch lists the folder's messages through Graph and maps them onto the
// provider contract.
func (f *GraphFetcher) Fetch(ctx context.Context, account *models.MailAccount, opts FetchOptions) ([]RawMessage, error) {
	if account == nil || account.AccessToken == nil || *account.AccessToken == "" {
		return nil, fmt.Errorf("%w: outlook account is missing its access token", models.ErrConfiguration)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFetchTimeout)
		defer cancel()
	}

	folder := opts.Folder
	if folder == "" {
		folder = "inbox"
	}
	max := opts.Max
	if max <= 0 {
		max = DefaultMaxPerFetch
	}

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", max))
	params.Set("$orderby", "sentDateTime desc")
	params.Set("$select", "id,subject,body,bodyPreview,sentDateTime,from,toRecipients,hasAttachments")
	var filters []string
	if opts.SenderFilter != "" {
		// The peer is the sender on inbound mail and a recipient on mail
		// we sent, so the filter has to cover both sides.
		filters = append(filters, fmt.Sprintf(
			"(from/emailAddress/address eq '%s' or toRecipients/any(r: r/emailAddress/address eq '%s'))",
			opts.SenderFilter, opts.SenderFilter))
	}
	if opts.Since != nil {
		filters = append(filters, fmt.Sprintf("sentDateTime ge %s", opts.Since.UTC().Format(time.RFC3339)))
	}
	if len(filters) > 0 {
		params.Set("$filter", strings.Join(filters, " and "))
	}

	endpoint := fmt.Sprintf("%s/me/mailFolders/%s/messages?%s", f.baseURL, url.PathEscape(folder), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+*account.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: graph request failed: %v", models.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: graph returned %d, re-authorize the Outlook account", models.ErrPermanent, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: graph rate limited the request", models.ErrTransient)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: graph returned %d", models.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: graph returned %d: %s", models.ErrPermanent, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var listing graphListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("%w: malformed graph response: %v", models.ErrPermanent, err)
	}

	messages := make([]RawMessage, 0, len(listing.Value))
	for _, gm := range listing.Value {
		if gm.From == nil || gm.From.EmailAddress.Address == "" {
			continue
		}
		msg := RawMessage{
			ExternalID: gm.ID,
			Subject:    gm.Subject,
			From: Address{
				Name:  gm.From.EmailAddress.Name,
				Email: models.CanonicalEmail(gm.From.EmailAddress.Address),
			},
		}
		for _, to := range gm.ToRecipients {
			msg.To = append(msg.To, Address{
				Name:  to.EmailAddress.Name,
				Email: models.CanonicalEmail(to.EmailAddress.Address),
			})
		}
		if gm.SentDateTime != "" {
			if sentAt, perr := time.Parse(time.RFC3339, gm.SentDateTime); perr == nil {
				utc := sentAt.UTC()
				msg.SentAt = &utc
			}
		}
		if strings.EqualFold(gm.Body.ContentType, "html") {
			msg.BodyHTML = gm.Body.Content
			msg.BodyText = htmlToText(gm.Body.Content)
		} else {
			msg.BodyText = gm.Body.Content
		}
		if msg.BodyText == "" {
			msg.BodyText = gm.BodyPreview
		}
		if gm.HasAttachments {
			msg.Attachments = append(msg.Attachments, AttachmentMeta{Filename: "attachment"})
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
