package models

import (
	"time"

	"github.com/uptrace/bun"
)

// MarketHistory is one settled price point: a mint, listing sale, auction
// hammer or dutch strike.
type MarketHistory struct {
	bun.BaseModel `bun:"table:market_history,alias:mh"`

	ID        int64     `bun:"id,pk,autoincrement"`
	AssetID   int64     `bun:"asset_id,notnull"`
	Kind      string    `bun:"kind,notnull"`
	Price     int64     `bun:"price,notnull"`
	Currency  string    `bun:"currency,notnull"`
	Actor     string    `bun:"actor,notnull"`
	Timestamp time.Time `bun:"timestamp,notnull"`
}
