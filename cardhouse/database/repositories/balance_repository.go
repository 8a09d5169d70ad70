package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/bank"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	"github.com/uptrace/bun"
)

// BalanceRepository persists bank balance rows. It satisfies bank.Store.
type BalanceRepository interface {
	bank.Store
	DB() *bun.DB
}

type balanceRepository struct {
	db *bun.DB
}

func NewBalanceRepository(db *bun.DB) BalanceRepository {
	return &balanceRepository{db: db}
}

func (r *balanceRepository) DB() *bun.DB {
	return r.db
}

func (r *balanceRepository) SaveAccount(ctx context.Context, a bank.Account) error {
	model := &models.Balance{
		Account:   a.Account,
		Currency:  a.Currency,
		Available: a.Available,
		Pending:   a.Pending,
		UpdatedAt: time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (account, currency) DO UPDATE").
		Set("available = EXCLUDED.available").
		Set("pending = EXCLUDED.pending").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save balance for %s/%s: %w", a.Account, a.Currency, err)
	}
	return nil
}

func (r *balanceRepository) LoadAccounts(ctx context.Context) ([]bank.Account, error) {
	var rows []models.Balance
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	accounts := make([]bank.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, bank.Account{
			Account:   row.Account,
			Currency:  row.Currency,
			Available: row.Available,
			Pending:   row.Pending,
		})
	}
	return accounts, nil
}
