package ai

import (
	"fmt"
	"sync"
)

// BudgetChecker checks and records token usage against per-session budgets.
type BudgetChecker interface {
	// Check returns true if the session has budget remaining.
	Check(sessionID string) (bool, error)
	// Record records token usage for a session.
	Record(sessionID string, tokens int) error
	// Usage returns current usage and limit for a session. A zero limit means unlimited.
	Usage(sessionID string) (used int64, budget int64, err error)
}

// InMemoryBudget tracks extraction token usage per session.
type InMemoryBudget struct {
	mu           sync.RWMutex
	defaultLimit int64
	budgets      map[string]int64 // session -> budget limit
	usage        map[string]int64 // session -> tokens used
}

// NewInMemoryBudget creates a budget tracker. defaultLimit applies to every
// session without an explicit budget; 0 means unlimited.
func NewInMemoryBudget(defaultLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		defaultLimit: defaultLimit,
		budgets:      make(map[string]int64),
		usage:        make(map[string]int64),
	}
}

// SetBudget sets the token budget for a session.
func (b *InMemoryBudget) SetBudget(sessionID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[sessionID] = tokens
}

func (b *InMemoryBudget) Check(sessionID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limit(sessionID)
	if limit <= 0 {
		return true, nil
	}
	return b.usage[sessionID] < limit, nil
}

func (b *InMemoryBudget) Record(sessionID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[sessionID] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(sessionID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[sessionID], b.limit(sessionID), nil
}

// Forget drops usage and budget for a finished session.
func (b *InMemoryBudget) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.usage, sessionID)
	delete(b.budgets, sessionID)
}

func (b *InMemoryBudget) limit(sessionID string) int64 {
	if limit, ok := b.budgets[sessionID]; ok {
		return limit
	}
	return b.defaultLimit
}
