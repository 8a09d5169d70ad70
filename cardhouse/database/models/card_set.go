package models

import (
	"time"

	"github.com/uptrace/bun"
)

type CardSet struct {
	bun.BaseModel `bun:"table:card_sets,alias:cs"`

	ID              int64     `bun:"id,pk"`
	Name            string    `bun:"name,notnull"`
	CardURIs        []string  `bun:"card_uris,type:jsonb"`
	Probabilities   []int64   `bun:"probabilities,type:jsonb"`
	RemainingSupply int64     `bun:"remaining_supply,notnull"`
	Price           int64     `bun:"price,notnull"`
	Burned          bool      `bun:"burned,notnull,default:false"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
