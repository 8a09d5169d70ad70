package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/listing"
	"github.com/uptrace/bun"
)

// ListingRepository persists listings. It satisfies listing.Store.
type ListingRepository interface {
	listing.Store
	DB() *bun.DB
}

type listingRepository struct {
	db *bun.DB
}

func NewListingRepository(db *bun.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) DB() *bun.DB {
	return r.db
}

func (r *listingRepository) SaveListing(ctx context.Context, l listing.Listing) error {
	buyers := make([]string, 0, len(l.ApprovedBuyers))
	for b := range l.ApprovedBuyers {
		buyers = append(buyers, b)
	}

	model := &models.Listing{
		ID:                 l.ID,
		Seller:             l.Seller,
		AssetID:            l.AssetID,
		Quantity:           l.Quantity,
		Currency:           l.Currency,
		PricePerUnit:       l.PricePerUnit,
		StartTime:          l.StartTime,
		EndTime:            l.EndTime,
		Reserved:           l.Reserved,
		ApprovedBuyers:     buyers,
		ApprovedCurrencies: l.ApprovedCurrencies,
		Status:             string(l.Status),
		UpdatedAt:          time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("quantity = EXCLUDED.quantity").
		Set("currency = EXCLUDED.currency").
		Set("price_per_unit = EXCLUDED.price_per_unit").
		Set("start_time = EXCLUDED.start_time").
		Set("end_time = EXCLUDED.end_time").
		Set("reserved = EXCLUDED.reserved").
		Set("approved_buyers = EXCLUDED.approved_buyers").
		Set("approved_currencies = EXCLUDED.approved_currencies").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save listing %d: %w", l.ID, err)
	}
	return nil
}

func (r *listingRepository) LoadListings(ctx context.Context) ([]listing.Listing, error) {
	var rows []models.Listing
	if err := r.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}

	listings := make([]listing.Listing, 0, len(rows))
	for _, row := range rows {
		buyers := make(map[string]bool, len(row.ApprovedBuyers))
		for _, b := range row.ApprovedBuyers {
			buyers[b] = true
		}
		currencies := row.ApprovedCurrencies
		if currencies == nil {
			currencies = make(map[string]int64)
		}
		listings = append(listings, listing.Listing{
			ID:                 row.ID,
			Seller:             row.Seller,
			AssetID:            row.AssetID,
			Quantity:           row.Quantity,
			Currency:           row.Currency,
			PricePerUnit:       row.PricePerUnit,
			StartTime:          row.StartTime,
			EndTime:            row.EndTime,
			Reserved:           row.Reserved,
			ApprovedBuyers:     buyers,
			ApprovedCurrencies: currencies,
			Status:             listing.Status(row.Status),
		})
	}
	return listings, nil
}
