package models

import (
	"time"

	"github.com/uptrace/bun"
)

type DutchAuction struct {
	bun.BaseModel `bun:"table:dutch_auctions,alias:da"`

	ID            int64         `bun:"id,pk"`
	Seller        string        `bun:"seller,notnull"`
	AssetID       int64         `bun:"asset_id,notnull"`
	StartPrice    int64         `bun:"start_price,notnull"`
	EndPrice      int64         `bun:"end_price,notnull"`
	StartTime     time.Time     `bun:"start_time,notnull"`
	Duration      time.Duration `bun:"duration,notnull"`
	DecayExponent int64         `bun:"decay_exponent,notnull"`
	Currency      string        `bun:"currency,notnull"`
	Active        bool          `bun:"active,notnull,default:true"`
	CreatedAt     time.Time     `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull,default:current_timestamp"`
}
