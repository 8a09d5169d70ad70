package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Listing struct {
	bun.BaseModel `bun:"table:listings,alias:l"`

	ID                 int64            `bun:"id,pk"`
	Seller             string           `bun:"seller,notnull"`
	AssetID            int64            `bun:"asset_id,notnull"`
	Quantity           int64            `bun:"quantity,notnull"`
	Currency           string           `bun:"currency,notnull"`
	PricePerUnit       int64            `bun:"price_per_unit,notnull"`
	StartTime          time.Time        `bun:"start_time,notnull"`
	EndTime            time.Time        `bun:"end_time,notnull"`
	Reserved           bool             `bun:"reserved,notnull,default:false"`
	ApprovedBuyers     []string         `bun:"approved_buyers,type:jsonb"`
	ApprovedCurrencies map[string]int64 `bun:"approved_currencies,type:jsonb"`
	Status             string           `bun:"status,notnull"`
	CreatedAt          time.Time        `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt          time.Time        `bun:"updated_at,notnull,default:current_timestamp"`
}
