package sync

import (
	"context"
	"fmt"

	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

// BuildPairs crosses the active mail accounts with the custom sync contact
// list. Every pair is one mailbox/contact fetch in a Run.
func (c *Coordinator) BuildPairs(ctx context.Context) ([]Pair, error) {
	accounts, err := repository.NewAccountRepository(c.db).ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail accounts: %w", err)
	}
	contacts, err := repository.NewClientRepository(c.db).ListCustomSyncClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync contacts: %w", err)
	}

	pairs := make([]Pair, 0, len(accounts)*len(contacts))
	for _, account := range accounts {
		for _, contact := range contacts {
			pairs = append(pairs, Pair{Account: account, ContactEmail: contact.Email})
		}
	}
	return pairs, nil
}

// RunAll builds the pair list from the store and runs a full sync.
func (c *Coordinator) RunAll(ctx context.Context) (Result, error) {
	pairs, err := c.BuildPairs(ctx)
	if err != nil {
		return Result{}, err
	}
	return c.Run(ctx, pairs), nil
}
