package dutch

import (
	"context"
	"testing"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/bank"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/events"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/ledger"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	state  *system.State
	ledger *ledger.Memory
	bank   *bank.Bank
	house  *House
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:  system.NewState("admin"),
		ledger: ledger.NewMemory(nil),
		bank:   bank.New(nil),
		clock:  baseTime,
	}
	f.house = NewHouse(f.state, f.ledger, f.bank, events.NewNotifier(), Config{
		FeeBps:       250,
		FeeAccount:   "fees",
		HouseAccount: "house",
	})
	f.house.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) mintApproved(t *testing.T, seller string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.ledger.Mint(ctx, seller, "uri")
	require.NoError(t, err)
	f.ledger.SetApprovalForAll(ctx, seller, "house", true)
	return id
}

func (f *fixture) fund(t *testing.T, account string, amount int64) {
	t.Helper()
	ctx := context.Background()
	f.bank.Register(ctx, account)
	require.NoError(t, f.bank.Deposit(ctx, account, bank.NativeCurrency, amount))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")

	tests := []struct {
		name       string
		startPrice int64
		endPrice   int64
		duration   time.Duration
		exponent   int64
	}{
		{name: "start equals end", startPrice: 5000, endPrice: 5000, duration: time.Hour, exponent: 1},
		{name: "start below end", startPrice: 4000, endPrice: 5000, duration: time.Hour, exponent: 1},
		{name: "zero end price", startPrice: 5000, endPrice: 0, duration: time.Hour, exponent: 1},
		{name: "zero duration", startPrice: 10000, endPrice: 5000, duration: 0, exponent: 1},
		{name: "zero exponent", startPrice: 10000, endPrice: 5000, duration: time.Hour, exponent: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.house.Create(ctx, "alice", assetID, tt.startPrice, tt.endPrice, tt.duration, tt.exponent, "")
			require.ErrorIs(t, err, ErrInvalidParams)
		})
	}

	_, err := f.house.Create(ctx, "bob", assetID, 10000, 5000, time.Hour, 1, "")
	require.ErrorIs(t, err, ErrNotOwner)

	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 1, "")
	require.NoError(t, err)
	assert.Equal(t, bank.NativeCurrency, a.Currency)
	assert.True(t, a.Active)

	owner, err := f.ledger.OwnerOf(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, "house", owner)
}

func TestPriceDecay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")

	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 1, "")
	require.NoError(t, err)

	price, err := f.house.CurrentPrice(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), price)

	// Linear decay: halfway through, halfway down.
	f.clock = baseTime.Add(30 * time.Minute)
	price, err = f.house.CurrentPrice(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), price)

	// The price floors at EndPrice and stays there.
	f.clock = baseTime.Add(time.Hour)
	price, err = f.house.CurrentPrice(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), price)

	f.clock = baseTime.Add(48 * time.Hour)
	price, err = f.house.CurrentPrice(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), price)
}

func TestPriceDecayExponent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")

	// Exponent 2 decays slowly at first: halfway through, only a quarter
	// of the drop has happened.
	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 2, "")
	require.NoError(t, err)

	f.clock = baseTime.Add(30 * time.Minute)
	price, err := f.house.CurrentPrice(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8750), price)
}

func TestPriceNeverIncreases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")

	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 3, "")
	require.NoError(t, err)

	prev := int64(10001)
	for i := 0; i <= 60; i++ {
		f.clock = baseTime.Add(time.Duration(i) * time.Minute)
		price, err := f.house.CurrentPrice(a.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, price, prev, "minute %d", i)
		prev = price
	}
	assert.Equal(t, int64(5000), prev)
}

func TestBuy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")
	f.fund(t, "bob", 20000)

	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 1, "")
	require.NoError(t, err)

	f.clock = baseTime.Add(30 * time.Minute)
	err = f.house.Buy(ctx, "bob", a.ID, 7499)
	require.ErrorIs(t, err, ErrInsufficientPayment)
	assert.Equal(t, int64(20000), f.bank.Available("bob", bank.NativeCurrency))

	require.NoError(t, f.house.Buy(ctx, "bob", a.ID, 7500))

	owner, err := f.ledger.OwnerOf(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
	assert.Equal(t, int64(12500), f.bank.Available("bob", bank.NativeCurrency))
	assert.Equal(t, int64(187), f.bank.Pending("fees", bank.NativeCurrency))
	assert.Equal(t, int64(7313), f.bank.Pending("alice", bank.NativeCurrency))

	got, err := f.house.Get(a.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	err = f.house.Buy(ctx, "bob", a.ID, 7500)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestBuyOverpaymentKept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")
	f.fund(t, "bob", 20000)

	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 1, "")
	require.NoError(t, err)

	// Paying above the current price charges the full payment; the fee is
	// taken from the amount actually paid.
	f.clock = baseTime.Add(time.Hour)
	require.NoError(t, f.house.Buy(ctx, "bob", a.ID, 8000))
	assert.Equal(t, int64(12000), f.bank.Available("bob", bank.NativeCurrency))
	assert.Equal(t, int64(200), f.bank.Pending("fees", bank.NativeCurrency))
	assert.Equal(t, int64(7800), f.bank.Pending("alice", bank.NativeCurrency))
}

func TestBuyWhilePaused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")
	f.fund(t, "bob", 20000)

	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 1, "")
	require.NoError(t, err)

	require.NoError(t, f.state.SetPaused("admin", true))
	err = f.house.Buy(ctx, "bob", a.ID, 10000)
	require.ErrorIs(t, err, system.ErrPaused)

	require.NoError(t, f.state.SetPaused("admin", false))
	require.NoError(t, f.house.Buy(ctx, "bob", a.ID, 10000))
}

func TestBuyInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")
	f.fund(t, "bob", 500)

	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 1, "")
	require.NoError(t, err)

	err = f.house.Buy(ctx, "bob", a.ID, 10000)
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	assert.Equal(t, int64(500), f.bank.Available("bob", bank.NativeCurrency))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintApproved(t, "alice")

	a, err := f.house.Create(ctx, "alice", assetID, 10000, 5000, time.Hour, 1, "")
	require.NoError(t, err)

	err = f.house.Cancel(ctx, "bob", a.ID)
	require.ErrorIs(t, err, ErrNotSeller)

	require.NoError(t, f.house.Cancel(ctx, "alice", a.ID))
	owner, err := f.ledger.OwnerOf(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	err = f.house.Cancel(ctx, "alice", a.ID)
	require.ErrorIs(t, err, ErrNotActive)

	err = f.house.Cancel(ctx, "alice", 99)
	require.ErrorIs(t, err, ErrNotFound)
}
