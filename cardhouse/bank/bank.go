// Package bank holds custody of funds for the market: spendable balances,
// operator allowances, and pending (withdrawable) payout balances. Fees,
// seller proceeds and queued refunds all land as pending balances and leave
// only through Withdraw.
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NativeCurrency is the market's primary settlement currency.
const NativeCurrency = "flake"

var (
	ErrUnknownAccount        = errors.New("account is not registered")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Account is one (account, currency) balance row.
type Account struct {
	Account   string
	Currency  string
	Available int64
	Pending   int64
}

// Store persists balance rows; write-through after each committed mutation.
// A nil store is valid for tests and embedded use.
type Store interface {
	SaveAccount(ctx context.Context, a Account) error
	LoadAccounts(ctx context.Context) ([]Account, error)
}

type balanceKey struct {
	account  string
	currency string
}

type allowanceKey struct {
	owner    string
	operator string
	currency string
}

type Bank struct {
	mu         sync.Mutex
	registered map[string]bool
	available  map[balanceKey]int64
	pending    map[balanceKey]int64
	allowances map[allowanceKey]int64
	store      Store
}

func New(store Store) *Bank {
	return &Bank{
		registered: make(map[string]bool),
		available:  make(map[balanceKey]int64),
		pending:    make(map[balanceKey]int64),
		allowances: make(map[allowanceKey]int64),
		store:      store,
	}
}

// Restore loads persisted balances at startup. Restored accounts count as
// registered.
func (b *Bank) Restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	accounts, err := b.store.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range accounts {
		b.registered[a.Account] = true
		k := balanceKey{account: a.Account, currency: a.Currency}
		b.available[k] = a.Available
		b.pending[k] = a.Pending
	}
	return nil
}

// Register opens an account. Deposits and refund pushes require a
// registered recipient; pending credits do not.
func (b *Bank) Register(ctx context.Context, account string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered[account] = true
}

func (b *Bank) Registered(account string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registered[account]
}

func (b *Bank) Available(account, currency string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available[balanceKey{account: account, currency: currency}]
}

func (b *Bank) Pending(account, currency string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[balanceKey{account: account, currency: currency}]
}

// Deposit credits spendable funds to a registered account.
func (b *Bank) Deposit(ctx context.Context, account, currency string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registered[account] {
		return fmt.Errorf("deposit to %s: %w", account, ErrUnknownAccount)
	}
	return b.adjust(ctx, account, currency, amount, 0)
}

// Debit pulls spendable funds from the account, e.g. a native payment
// attached to a buy or bid. Funds never leave caller custody on failure.
func (b *Bank) Debit(ctx context.Context, account, currency string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	k := balanceKey{account: account, currency: currency}
	if b.available[k] < amount {
		return fmt.Errorf("%s has %d %s, needs %d: %w",
			account, b.available[k], currency, amount, ErrInsufficientFunds)
	}
	return b.adjust(ctx, account, currency, -amount, 0)
}

// Approve grants an operator a spending allowance on the owner's funds in
// the given currency, replacing any prior allowance.
func (b *Bank) Approve(ctx context.Context, owner, operator, currency string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := allowanceKey{owner: owner, operator: operator, currency: currency}
	if amount <= 0 {
		delete(b.allowances, k)
		return
	}
	b.allowances[k] = amount
}

func (b *Bank) Allowance(owner, operator, currency string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowances[allowanceKey{owner: owner, operator: operator, currency: currency}]
}

// DebitFrom pulls the owner's funds under the operator's allowance, the
// alternate-currency payment path.
func (b *Bank) DebitFrom(ctx context.Context, operator, owner, currency string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	ak := allowanceKey{owner: owner, operator: operator, currency: currency}
	if b.allowances[ak] < amount {
		return fmt.Errorf("operator %s allowance %d, needs %d: %w",
			operator, b.allowances[ak], amount, ErrInsufficientAllowance)
	}
	bk := balanceKey{account: owner, currency: currency}
	if b.available[bk] < amount {
		return fmt.Errorf("%s has %d %s, needs %d: %w",
			owner, b.available[bk], currency, amount, ErrInsufficientFunds)
	}
	if err := b.adjust(ctx, owner, currency, -amount, 0); err != nil {
		return err
	}
	b.allowances[ak] -= amount
	return nil
}

// Push attempts an immediate spendable credit, the happy path for outbid
// refunds. It fails for unregistered recipients; callers queue the amount
// with CreditPending instead of aborting.
func (b *Bank) Push(ctx context.Context, account, currency string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registered[account] {
		return fmt.Errorf("push to %s: %w", account, ErrUnknownAccount)
	}
	return b.adjust(ctx, account, currency, amount, 0)
}

// CreditPending accrues a withdrawable balance: marketplace fees, seller
// proceeds and queued refunds. It never fails on an unknown account; the
// funds wait until the account registers and withdraws.
func (b *Bank) CreditPending(ctx context.Context, account, currency string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adjust(ctx, account, currency, 0, amount)
}

// Withdraw moves the full pending balance into spendable funds and returns
// the amount moved.
func (b *Bank) Withdraw(ctx context.Context, account, currency string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.registered[account] {
		return 0, fmt.Errorf("withdraw by %s: %w", account, ErrUnknownAccount)
	}
	k := balanceKey{account: account, currency: currency}
	amount := b.pending[k]
	if amount == 0 {
		return 0, nil
	}
	if err := b.adjust(ctx, account, currency, amount, -amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// SplitFee divides a settlement total into the marketplace cut and seller
// proceeds. The fee rounds down; the seller gets the remainder.
func SplitFee(total int64, feeBps int64) (fee, proceeds int64) {
	fee = total * feeBps / 10000
	return fee, total - fee
}

// adjust applies balance deltas and writes through. Callers hold b.mu and
// have validated the deltas; a store failure undoes the in-memory change.
func (b *Bank) adjust(ctx context.Context, account, currency string, availableDelta, pendingDelta int64) error {
	k := balanceKey{account: account, currency: currency}
	b.available[k] += availableDelta
	b.pending[k] += pendingDelta
	if b.store != nil {
		a := Account{
			Account:   account,
			Currency:  currency,
			Available: b.available[k],
			Pending:   b.pending[k],
		}
		if err := b.store.SaveAccount(ctx, a); err != nil {
			b.available[k] -= availableDelta
			b.pending[k] -= pendingDelta
			return fmt.Errorf("failed to persist balance for %s: %w", account, err)
		}
	}
	return nil
}
