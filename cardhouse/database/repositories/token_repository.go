package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/ledger"
	"github.com/uptrace/bun"
)

// TokenRepository persists the ownership ledger's token rows. It satisfies
// ledger.Store.
type TokenRepository interface {
	ledger.Store
	DB() *bun.DB
}

type tokenRepository struct {
	db *bun.DB
}

func NewTokenRepository(db *bun.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) DB() *bun.DB {
	return r.db
}

func (r *tokenRepository) SaveToken(ctx context.Context, t ledger.Token) error {
	model := &models.Token{
		ID:        t.ID,
		Owner:     t.Owner,
		URI:       t.URI,
		UpdatedAt: time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("owner = EXCLUDED.owner").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save token %d: %w", t.ID, err)
	}
	return nil
}

func (r *tokenRepository) DeleteToken(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().
		Model((*models.Token)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete token %d: %w", id, err)
	}
	return nil
}

func (r *tokenRepository) LoadTokens(ctx context.Context) ([]ledger.Token, error) {
	var rows []models.Token
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	tokens := make([]ledger.Token, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, ledger.Token{ID: row.ID, Owner: row.Owner, URI: row.URI})
	}
	return tokens, nil
}
