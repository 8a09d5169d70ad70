package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Balance is one (account, currency) row of the funds ledger. Available is
// spendable; Pending is the withdrawable payout/fee/refund balance.
type Balance struct {
	bun.BaseModel `bun:"table:balances,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Account   string    `bun:"account,notnull,unique:account_currency"`
	Currency  string    `bun:"currency,notnull,unique:account_currency"`
	Available int64     `bun:"available,notnull,default:0"`
	Pending   int64     `bun:"pending,notnull,default:0"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
