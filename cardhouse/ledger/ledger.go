// Package ledger holds the authoritative token ownership map shared by all
// market engines. Engines never duplicate ownership data; they store token
// ids and resolve owners here (arena+index, one source of truth).
package ledger

import (
	"context"
	"errors"
)

var (
	ErrTokenNotFound      = errors.New("token not found")
	ErrNotApprovedOrOwner = errors.New("caller is neither owner nor approved operator")
	ErrNotApproved        = errors.New("caller is not approved for this token")
)

// Token is a single collectible bound to a metadata URI.
type Token struct {
	ID    int64
	Owner string
	URI   string
}

// Ledger is the ownership collaborator contract consumed by the engines.
// All mutation goes through Transfer/Mint/Burn; nothing writes owners
// directly.
type Ledger interface {
	OwnerOf(ctx context.Context, id int64) (string, error)
	TokenURI(ctx context.Context, id int64) (string, error)
	IsApprovedForAll(ctx context.Context, owner, operator string) bool
	SetApprovalForAll(ctx context.Context, owner, operator string, approved bool)
	// Transfer moves id from `from` to `to`. The operator must be the owner
	// or approved-for-all by the owner.
	Transfer(ctx context.Context, operator, from, to string, id int64) error
	Mint(ctx context.Context, to, uri string) (int64, error)
	Burn(ctx context.Context, operator string, id int64) error
}

// Store persists ledger state. The in-memory ledger writes through after
// each committed mutation; a nil store is valid for tests and embedded use.
type Store interface {
	SaveToken(ctx context.Context, t Token) error
	DeleteToken(ctx context.Context, id int64) error
	LoadTokens(ctx context.Context) ([]Token, error)
}
