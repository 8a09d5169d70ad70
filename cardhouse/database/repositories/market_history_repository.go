package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	"github.com/uptrace/bun"
)

// MarketHistoryRepository records settled price points and serves
// last-price lookups for the price tracker.
type MarketHistoryRepository interface {
	DB() *bun.DB
	Record(ctx context.Context, h *models.MarketHistory) error
	LastPrice(ctx context.Context, assetID int64) (int64, error)
	History(ctx context.Context, assetID int64, limit int) ([]*models.MarketHistory, error)
}

type marketHistoryRepository struct {
	db *bun.DB
}

func NewMarketHistoryRepository(db *bun.DB) MarketHistoryRepository {
	return &marketHistoryRepository{db: db}
}

func (r *marketHistoryRepository) DB() *bun.DB {
	return r.db
}

func (r *marketHistoryRepository) Record(ctx context.Context, h *models.MarketHistory) error {
	_, err := r.db.NewInsert().Model(h).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record market history: %w", err)
	}
	return nil
}

// LastPrice returns the most recent settled price for the asset, or 0 when
// the asset has never traded.
func (r *marketHistoryRepository) LastPrice(ctx context.Context, assetID int64) (int64, error) {
	var row models.MarketHistory
	err := r.db.NewSelect().
		Model(&row).
		Where("asset_id = ?", assetID).
		Order("timestamp DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get last price: %w", err)
	}
	return row.Price, nil
}

func (r *marketHistoryRepository) History(ctx context.Context, assetID int64, limit int) ([]*models.MarketHistory, error) {
	var rows []*models.MarketHistory
	err := r.db.NewSelect().
		Model(&rows).
		Where("asset_id = ?", assetID).
		Order("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get market history: %w", err)
	}
	return rows, nil
}
