package database

import (
	"context"
	"fmt"
	"sync"
)

// Gate lets the backup service quiesce writers before copying the backing
// file. Writers hold the gate in shared mode for the duration of a
// transaction; a backup drains them by acquiring it exclusively, bounded
// by the caller's context deadline.
type Gate struct {
	mu sync.RWMutex
}

// Enter marks the start of a write transaction.
func (g *Gate) Enter() {
	g.mu.RLock()
}

// Leave marks the end of a write transaction.
func (g *Gate) Leave() {
	g.mu.RUnlock()
}

// Quiesce blocks new writers and waits for in-flight ones to finish.
// Returns a release func, or an error when the context expires first.
func (g *Gate) Quiesce(ctx context.Context) (func(), error) {
	acquired := make(chan struct{})
	go func() {
		g.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() { g.mu.Unlock() }, nil
	case <-ctx.Done():
		// The goroutine will eventually take the lock; hand it straight
		// back so pending writers are not stranded.
		go func() {
			<-acquired
			g.mu.Unlock()
		}()
		return nil, fmt.Errorf("failed to quiesce writers: %w", ctx.Err())
	}
}
