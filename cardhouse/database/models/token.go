package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Token struct {
	bun.BaseModel `bun:"table:tokens,alias:t"`

	ID        int64     `bun:"id,pk"`
	Owner     string    `bun:"owner,notnull"`
	URI       string    `bun:"uri,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
