package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/auction"
	"github.com/uptrace/bun"
)

// EnglishAuctionRepository persists english auctions. It satisfies
// auction.Store.
type EnglishAuctionRepository interface {
	auction.Store
	DB() *bun.DB
}

type englishAuctionRepository struct {
	db *bun.DB
}

func NewEnglishAuctionRepository(db *bun.DB) EnglishAuctionRepository {
	return &englishAuctionRepository{db: db}
}

func (r *englishAuctionRepository) DB() *bun.DB {
	return r.db
}

func (r *englishAuctionRepository) SaveAuction(ctx context.Context, a auction.Auction) error {
	model := &models.EnglishAuction{
		ID:              a.ID,
		Seller:          a.Seller,
		AssetID:         a.AssetID,
		Quantity:        a.Quantity,
		Currency:        a.Currency,
		MinBid:          a.MinBid,
		BuyoutBid:       a.BuyoutBid,
		TimeBuffer:      a.TimeBuffer,
		BidBufferBps:    a.BidBufferBps,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          string(a.Status),
		TokensCollected: a.TokensCollected,
		PayoutCollected: a.PayoutCollected,
		UpdatedAt:       time.Now(),
	}
	if a.WinningBid != nil {
		model.WinningBidder = a.WinningBid.Bidder
		model.WinningAmount = a.WinningBid.Amount
	}
	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("end_time = EXCLUDED.end_time").
		Set("status = EXCLUDED.status").
		Set("winning_bidder = EXCLUDED.winning_bidder").
		Set("winning_amount = EXCLUDED.winning_amount").
		Set("tokens_collected = EXCLUDED.tokens_collected").
		Set("payout_collected = EXCLUDED.payout_collected").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save auction %d: %w", a.ID, err)
	}
	return nil
}

func (r *englishAuctionRepository) LoadAuctions(ctx context.Context) ([]auction.Auction, error) {
	var rows []models.EnglishAuction
	if err := r.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load auctions: %w", err)
	}

	auctions := make([]auction.Auction, 0, len(rows))
	for _, row := range rows {
		a := auction.Auction{
			ID:              row.ID,
			Seller:          row.Seller,
			AssetID:         row.AssetID,
			Quantity:        row.Quantity,
			Currency:        row.Currency,
			MinBid:          row.MinBid,
			BuyoutBid:       row.BuyoutBid,
			TimeBuffer:      row.TimeBuffer,
			BidBufferBps:    row.BidBufferBps,
			StartTime:       row.StartTime,
			EndTime:         row.EndTime,
			Status:          auction.Status(row.Status),
			TokensCollected: row.TokensCollected,
			PayoutCollected: row.PayoutCollected,
		}
		if row.WinningBidder != "" {
			a.WinningBid = &auction.Bid{Bidder: row.WinningBidder, Amount: row.WinningAmount}
		}
		auctions = append(auctions, a)
	}
	return auctions, nil
}
