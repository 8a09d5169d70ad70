package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type approvalKey struct {
	owner    string
	operator string
}

// Memory is the in-process ledger implementation. Every call validates
// fully before mutating, and holds one mutex for the duration, so each
// operation observes a fully-committed prior state.
type Memory struct {
	mu        sync.Mutex
	tokens    map[int64]*Token
	approvals map[approvalKey]bool
	nextID    int64
	store     Store
}

func NewMemory(store Store) *Memory {
	return &Memory{
		tokens:    make(map[int64]*Token),
		approvals: make(map[approvalKey]bool),
		store:     store,
	}
}

// Restore loads previously persisted tokens, typically at startup. The next
// token id continues after the highest restored id.
func (m *Memory) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	tokens, err := m.store.LoadTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range tokens {
		t := tokens[i]
		m.tokens[t.ID] = &t
		if t.ID >= m.nextID {
			m.nextID = t.ID + 1
		}
	}
	slog.Info("Ledger restored",
		slog.String("type", "sys"),
		slog.Int("tokens", len(tokens)))
	return nil
}

func (m *Memory) OwnerOf(ctx context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return "", ErrTokenNotFound
	}
	return t.Owner, nil
}

func (m *Memory) TokenURI(ctx context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return "", ErrTokenNotFound
	}
	return t.URI, nil
}

func (m *Memory) IsApprovedForAll(ctx context.Context, owner, operator string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.approvals[approvalKey{owner: owner, operator: operator}]
}

func (m *Memory) SetApprovalForAll(ctx context.Context, owner, operator string, approved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if approved {
		m.approvals[approvalKey{owner: owner, operator: operator}] = true
	} else {
		delete(m.approvals, approvalKey{owner: owner, operator: operator})
	}
}

func (m *Memory) Transfer(ctx context.Context, operator, from, to string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	if t.Owner != from {
		return fmt.Errorf("token %d: %w", id, ErrNotApprovedOrOwner)
	}
	if operator != from && !m.approvals[approvalKey{owner: from, operator: operator}] {
		return fmt.Errorf("operator %s: %w", operator, ErrNotApprovedOrOwner)
	}

	t.Owner = to
	if m.store != nil {
		if err := m.store.SaveToken(ctx, *t); err != nil {
			t.Owner = from
			return fmt.Errorf("failed to persist transfer of token %d: %w", id, err)
		}
	}
	return nil
}

func (m *Memory) Mint(ctx context.Context, to, uri string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &Token{ID: m.nextID, Owner: to, URI: uri}
	if m.store != nil {
		if err := m.store.SaveToken(ctx, *t); err != nil {
			return 0, fmt.Errorf("failed to persist minted token: %w", err)
		}
	}
	m.tokens[t.ID] = t
	m.nextID++
	return t.ID, nil
}

func (m *Memory) Burn(ctx context.Context, operator string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	if operator != t.Owner && !m.approvals[approvalKey{owner: t.Owner, operator: operator}] {
		return fmt.Errorf("operator %s: %w", operator, ErrNotApproved)
	}

	if m.store != nil {
		if err := m.store.DeleteToken(ctx, id); err != nil {
			return fmt.Errorf("failed to persist burn of token %d: %w", id, err)
		}
	}
	delete(m.tokens, id)
	return nil
}
