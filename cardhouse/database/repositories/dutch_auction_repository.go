package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/dutch"
	"github.com/uptrace/bun"
)

// DutchAuctionRepository persists dutch auctions. It satisfies dutch.Store.
type DutchAuctionRepository interface {
	dutch.Store
	DB() *bun.DB
}

type dutchAuctionRepository struct {
	db *bun.DB
}

func NewDutchAuctionRepository(db *bun.DB) DutchAuctionRepository {
	return &dutchAuctionRepository{db: db}
}

func (r *dutchAuctionRepository) DB() *bun.DB {
	return r.db
}

func (r *dutchAuctionRepository) SaveDutchAuction(ctx context.Context, a dutch.Auction) error {
	model := &models.DutchAuction{
		ID:            a.ID,
		Seller:        a.Seller,
		AssetID:       a.AssetID,
		StartPrice:    a.StartPrice,
		EndPrice:      a.EndPrice,
		StartTime:     a.StartTime,
		Duration:      a.Duration,
		DecayExponent: a.DecayExponent,
		Currency:      a.Currency,
		Active:        a.Active,
		UpdatedAt:     time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save dutch auction %d: %w", a.ID, err)
	}
	return nil
}

func (r *dutchAuctionRepository) LoadDutchAuctions(ctx context.Context) ([]dutch.Auction, error) {
	var rows []models.DutchAuction
	if err := r.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load dutch auctions: %w", err)
	}

	auctions := make([]dutch.Auction, 0, len(rows))
	for _, row := range rows {
		auctions = append(auctions, dutch.Auction{
			ID:            row.ID,
			Seller:        row.Seller,
			AssetID:       row.AssetID,
			StartPrice:    row.StartPrice,
			EndPrice:      row.EndPrice,
			StartTime:     row.StartTime,
			Duration:      row.Duration,
			DecayExponent: row.DecayExponent,
			Currency:      row.Currency,
			Active:        row.Active,
		})
	}
	return auctions, nil
}
