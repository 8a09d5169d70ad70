package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/cardset"
	"github.com/uptrace/bun"
)

// CardSetRepository persists card sets. It satisfies cardset.Store.
type CardSetRepository interface {
	cardset.Store
	DB() *bun.DB
}

type cardSetRepository struct {
	db *bun.DB
}

func NewCardSetRepository(db *bun.DB) CardSetRepository {
	return &cardSetRepository{db: db}
}

func (r *cardSetRepository) DB() *bun.DB {
	return r.db
}

func (r *cardSetRepository) SaveCardSet(ctx context.Context, s cardset.CardSet) error {
	model := &models.CardSet{
		ID:              s.ID,
		Name:            s.Name,
		CardURIs:        s.CardURIs,
		Probabilities:   s.Probabilities,
		RemainingSupply: s.RemainingSupply,
		Price:           s.Price,
		Burned:          s.Burned,
		UpdatedAt:       time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("remaining_supply = EXCLUDED.remaining_supply").
		Set("burned = EXCLUDED.burned").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save card set %d: %w", s.ID, err)
	}
	return nil
}

func (r *cardSetRepository) LoadCardSets(ctx context.Context) ([]cardset.CardSet, error) {
	var rows []models.CardSet
	if err := r.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load card sets: %w", err)
	}

	sets := make([]cardset.CardSet, 0, len(rows))
	for _, row := range rows {
		sets = append(sets, cardset.CardSet{
			ID:              row.ID,
			Name:            row.Name,
			CardURIs:        row.CardURIs,
			Probabilities:   row.Probabilities,
			RemainingSupply: row.RemainingSupply,
			Price:           row.Price,
			Burned:          row.Burned,
		})
	}
	return sets, nil
}
