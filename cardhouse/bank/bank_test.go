package bank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name         string
		total        int64
		feeBps       int64
		wantFee      int64
		wantProceeds int64
	}{
		{name: "even split", total: 10000, feeBps: 250, wantFee: 250, wantProceeds: 9750},
		{name: "fee rounds down", total: 999, feeBps: 250, wantFee: 24, wantProceeds: 975},
		{name: "zero fee", total: 10000, feeBps: 0, wantFee: 0, wantProceeds: 10000},
		{name: "tiny total", total: 3, feeBps: 250, wantFee: 0, wantProceeds: 3},
		{name: "full fee", total: 500, feeBps: 10000, wantFee: 500, wantProceeds: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, proceeds := SplitFee(tt.total, tt.feeBps)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantProceeds, proceeds)
			assert.Equal(t, tt.total, fee+proceeds)
		})
	}
}

func TestDepositRequiresRegistration(t *testing.T) {
	ctx := context.Background()
	b := New(nil)

	err := b.Deposit(ctx, "alice", NativeCurrency, 100)
	require.ErrorIs(t, err, ErrUnknownAccount)

	b.Register(ctx, "alice")
	require.NoError(t, b.Deposit(ctx, "alice", NativeCurrency, 100))
	assert.Equal(t, int64(100), b.Available("alice", NativeCurrency))
}

func TestDebit(t *testing.T) {
	ctx := context.Background()
	b := New(nil)
	b.Register(ctx, "alice")
	require.NoError(t, b.Deposit(ctx, "alice", NativeCurrency, 100))

	err := b.Debit(ctx, "alice", NativeCurrency, 101)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(100), b.Available("alice", NativeCurrency))

	require.NoError(t, b.Debit(ctx, "alice", NativeCurrency, 60))
	assert.Equal(t, int64(40), b.Available("alice", NativeCurrency))

	err = b.Debit(ctx, "alice", NativeCurrency, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAllowances(t *testing.T) {
	ctx := context.Background()
	b := New(nil)
	b.Register(ctx, "alice")
	require.NoError(t, b.Deposit(ctx, "alice", "gem", 500))

	err := b.DebitFrom(ctx, "house", "alice", "gem", 200)
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	b.Approve(ctx, "alice", "house", "gem", 300)
	assert.Equal(t, int64(300), b.Allowance("alice", "house", "gem"))

	require.NoError(t, b.DebitFrom(ctx, "house", "alice", "gem", 200))
	assert.Equal(t, int64(300), b.Available("alice", "gem"))
	assert.Equal(t, int64(100), b.Allowance("alice", "house", "gem"))

	// Allowance exceeds remaining funds; the funds check still holds.
	b.Approve(ctx, "alice", "house", "gem", 400)
	err = b.DebitFrom(ctx, "house", "alice", "gem", 350)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Re-approval replaces, zero revokes.
	b.Approve(ctx, "alice", "house", "gem", 0)
	assert.Zero(t, b.Allowance("alice", "house", "gem"))
}

func TestPushRequiresRegistration(t *testing.T) {
	ctx := context.Background()
	b := New(nil)

	err := b.Push(ctx, "ghost", NativeCurrency, 50)
	require.ErrorIs(t, err, ErrUnknownAccount)

	b.Register(ctx, "bob")
	require.NoError(t, b.Push(ctx, "bob", NativeCurrency, 50))
	assert.Equal(t, int64(50), b.Available("bob", NativeCurrency))
}

func TestCreditPendingAndWithdraw(t *testing.T) {
	ctx := context.Background()
	b := New(nil)

	// Pending credits land even for accounts that never registered.
	require.NoError(t, b.CreditPending(ctx, "ghost", NativeCurrency, 75))
	assert.Equal(t, int64(75), b.Pending("ghost", NativeCurrency))

	// But withdrawal needs a registered account.
	_, err := b.Withdraw(ctx, "ghost", NativeCurrency)
	require.ErrorIs(t, err, ErrUnknownAccount)

	b.Register(ctx, "ghost")
	amount, err := b.Withdraw(ctx, "ghost", NativeCurrency)
	require.NoError(t, err)
	assert.Equal(t, int64(75), amount)
	assert.Zero(t, b.Pending("ghost", NativeCurrency))
	assert.Equal(t, int64(75), b.Available("ghost", NativeCurrency))

	// Withdrawing an empty pending balance is a no-op, not an error.
	amount, err = b.Withdraw(ctx, "ghost", NativeCurrency)
	require.NoError(t, err)
	assert.Zero(t, amount)
}

func TestCurrenciesAreIsolated(t *testing.T) {
	ctx := context.Background()
	b := New(nil)
	b.Register(ctx, "alice")
	require.NoError(t, b.Deposit(ctx, "alice", NativeCurrency, 100))
	require.NoError(t, b.Deposit(ctx, "alice", "gem", 30))

	err := b.Debit(ctx, "alice", "gem", 100)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(100), b.Available("alice", NativeCurrency))
	assert.Equal(t, int64(30), b.Available("alice", "gem"))
}
