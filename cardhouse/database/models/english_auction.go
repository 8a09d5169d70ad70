package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EnglishAuction struct {
	bun.BaseModel `bun:"table:english_auctions,alias:ea"`

	ID              int64         `bun:"id,pk"`
	Seller          string        `bun:"seller,notnull"`
	AssetID         int64         `bun:"asset_id,notnull"`
	Quantity        int64         `bun:"quantity,notnull"`
	Currency        string        `bun:"currency,notnull"`
	MinBid          int64         `bun:"min_bid,notnull"`
	BuyoutBid       int64         `bun:"buyout_bid,notnull,default:0"`
	TimeBuffer      time.Duration `bun:"time_buffer,notnull"`
	BidBufferBps    int64         `bun:"bid_buffer_bps,notnull"`
	StartTime       time.Time     `bun:"start_time,notnull"`
	EndTime         time.Time     `bun:"end_time,notnull"`
	Status          string        `bun:"status,notnull"`
	WinningBidder   string        `bun:"winning_bidder"`
	WinningAmount   int64         `bun:"winning_amount,notnull,default:0"`
	TokensCollected bool          `bun:"tokens_collected,notnull,default:false"`
	PayoutCollected bool          `bun:"payout_collected,notnull,default:false"`
	CreatedAt       time.Time     `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time     `bun:"updated_at,notnull,default:current_timestamp"`
}
