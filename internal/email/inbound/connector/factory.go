package connector

import (
	"fmt"
	"sync"

	"github.com/exportdesk-io/exportdesk-ce/internal/models"
)

// FactoryOption customizes a connector factory.
type FactoryOption func(*simpleFactory)

type simpleFactory struct {
	mu       sync.RWMutex
	fetchers map[models.ProviderType]Fetcher
}

// NewFactory builds a connector factory with the provided options.
func NewFactory(opts ...FactoryOption) Factory {
	f := &simpleFactory{fetchers: make(map[models.ProviderType]Fetcher)}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// DefaultFactory returns a factory preloaded with built-in connectors.
// cPanel accounts ride the POP3 connector with an application password.
func DefaultFactory() Factory {
	return NewFactory(
		WithFetcher(NewIMAPFetcher(), models.ProviderIMAP),
		WithFetcher(NewPOP3Fetcher(), models.ProviderCPanel),
		WithFetcher(NewGraphFetcher(), models.ProviderOutlook),
	)
}

// WithFetcher registers a fetcher for the provided provider types.
func WithFetcher(fetcher Fetcher, providers ...models.ProviderType) FactoryOption {
	return func(f *simpleFactory) {
		if f == nil || fetcher == nil {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, p := range providers {
			f.fetchers[p] = fetcher
		}
	}
}

func (f *simpleFactory) FetcherFor(account *models.MailAccount) (Fetcher, error) {
	f.mu.RLock()
	fetcher, ok := f.fetchers[account.ProviderType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no connector registered for provider %s", models.ErrConfiguration, account.ProviderType)
	}
	return fetcher, nil
}
