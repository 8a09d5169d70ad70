package listing

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
	book   *Book
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
	f.book = NewBook(f.state, f.ledger, f.bank, events.NewNotifier(), Config{
		FeeBps:       250,
		FeeAccount:   "fees",
		HouseAccount: "house",
	})
	f.book.now = func() time.Time { return f.clock }
	return f
}

// mintListed mints a token to the seller and approves the book to move it.
func (f *fixture) mintListed(t *testing.T, seller string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.ledger.Mint(ctx, seller, "uri")
	require.NoError(t, err)
	f.ledger.SetApprovalForAll(ctx, seller, "house", true)
	return id
}

func (f *fixture) fund(t *testing.T, account, currency string, amount int64) {
	t.Helper()
	ctx := context.Background()
	f.bank.Register(ctx, account)
	require.NoError(t, f.bank.Deposit(ctx, account, currency, amount))
}

func (f *fixture) params(assetID int64) Params {
	return Params{
		AssetID:      assetID,
		Quantity:     1,
		PricePerUnit: 10000,
		EndTime:      baseTime.Add(24 * time.Hour),
	}
}

func TestCreateListingValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")

	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{name: "quantity zero", mutate: func(p *Params) { p.Quantity = 0 }, wantErr: ErrInvalidQuantity},
		{name: "quantity two", mutate: func(p *Params) { p.Quantity = 2 }, wantErr: ErrInvalidQuantity},
		{name: "zero price", mutate: func(p *Params) { p.PricePerUnit = 0 }, wantErr: ErrInvalidPrice},
		{name: "negative price", mutate: func(p *Params) { p.PricePerUnit = -5 }, wantErr: ErrInvalidPrice},
		{name: "end before start", mutate: func(p *Params) { p.EndTime = baseTime.Add(-time.Hour) }, wantErr: ErrInvalidWindow},
		{name: "unknown asset", mutate: func(p *Params) { p.AssetID = 99 }, wantErr: ledger.ErrTokenNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.params(assetID)
			tt.mutate(&p)
			_, err := f.book.CreateListing(ctx, "alice", p)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Not the owner.
	_, err := f.book.CreateListing(ctx, "bob", f.params(assetID))
	require.ErrorIs(t, err, ErrNotOwner)

	// Owner without operator approval.
	f.ledger.SetApprovalForAll(ctx, "alice", "house", false)
	_, err = f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.ErrorIs(t, err, ErrNotApproved)
}

func TestCreateListingDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")

	l, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)
	assert.Equal(t, bank.NativeCurrency, l.Currency)
	assert.Equal(t, baseTime, l.StartTime)
	assert.Equal(t, StatusActive, l.Status)
}

func TestRelistOverwritesInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")

	first, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)

	p := f.params(assetID)
	p.PricePerUnit = 20000
	second, err := f.book.CreateListing(ctx, "alice", p)
	require.NoError(t, err)

	// Same record, updated fields, no growth in the book.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.book.Count())

	got, err := f.book.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), got.PricePerUnit)

	// A different asset gets a fresh id.
	other := f.mintListed(t, "alice")
	third, err := f.book.CreateListing(ctx, "alice", f.params(other))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 2, f.book.Count())
}

func TestBuyNative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")
	f.fund(t, "bob", bank.NativeCurrency, 50000)

	l, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)

	// Payment must equal the total exactly; partial payment is rejected
	// before any funds move.
	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 5000)
	require.ErrorIs(t, err, ErrPaymentMismatch)
	assert.Equal(t, int64(50000), f.bank.Available("bob", bank.NativeCurrency))

	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 15000)
	require.ErrorIs(t, err, ErrPaymentMismatch)

	// Stale quoted price is rejected.
	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 9000, 10000)
	require.ErrorIs(t, err, ErrPriceMismatch)

	require.NoError(t, f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000))

	owner, err := f.ledger.OwnerOf(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
	assert.Equal(t, int64(40000), f.bank.Available("bob", bank.NativeCurrency))
	assert.Equal(t, int64(250), f.bank.Pending("fees", bank.NativeCurrency))
	assert.Equal(t, int64(9750), f.bank.Pending("alice", bank.NativeCurrency))

	got, err := f.book.Get(l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSold, got.Status)

	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, ErrNotActive)
}

func TestBuyTimeWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")
	f.fund(t, "bob", bank.NativeCurrency, 10000)

	p := f.params(assetID)
	p.StartTime = baseTime.Add(time.Hour)
	p.EndTime = baseTime.Add(2 * time.Hour)
	l, err := f.book.CreateListing(ctx, "alice", p)
	require.NoError(t, err)

	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, ErrNotStarted)

	f.clock = baseTime.Add(3 * time.Hour)
	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, ErrExpired)

	f.clock = baseTime.Add(90 * time.Minute)
	require.NoError(t, f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000))
}

func TestReservedListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")
	f.fund(t, "bob", bank.NativeCurrency, 10000)
	f.fund(t, "carol", bank.NativeCurrency, 10000)

	p := f.params(assetID)
	p.Reserved = true
	l, err := f.book.CreateListing(ctx, "alice", p)
	require.NoError(t, err)

	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, ErrNotApprovedBuyer)

	err = f.book.ApproveBuyer(ctx, "bob", l.ID, "bob", true)
	require.ErrorIs(t, err, ErrNotCreator)
	require.NoError(t, f.book.ApproveBuyer(ctx, "alice", l.ID, "carol", true))

	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, ErrNotApprovedBuyer)

	// Revocation closes the door again.
	require.NoError(t, f.book.ApproveBuyer(ctx, "alice", l.ID, "carol", false))
	err = f.book.Buy(ctx, "carol", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, ErrNotApprovedBuyer)

	require.NoError(t, f.book.ApproveBuyer(ctx, "alice", l.ID, "carol", true))
	require.NoError(t, f.book.Buy(ctx, "carol", l.ID, 1, "", 10000, 10000))
}

func TestApproveBuyerOnUnreservedListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")

	l, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)

	err = f.book.ApproveBuyer(ctx, "alice", l.ID, "bob", true)
	require.ErrorIs(t, err, ErrNotReserved)
}

func TestBuyAlternateCurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")
	f.fund(t, "bob", "gem", 1000)

	l, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)

	// Unapproved currency is rejected outright.
	err = f.book.Buy(ctx, "bob", l.ID, 1, "gem", 500, 0)
	require.ErrorIs(t, err, ErrCurrencyNotAccepted)

	err = f.book.ApproveCurrency(ctx, "alice", l.ID, "", 500)
	require.ErrorIs(t, err, ErrInvalidCurrency)
	err = f.book.ApproveCurrency(ctx, "alice", l.ID, bank.NativeCurrency, 500)
	require.ErrorIs(t, err, ErrInvalidCurrency)
	err = f.book.ApproveCurrency(ctx, "alice", l.ID, "gem", 0)
	require.ErrorIs(t, err, ErrInvalidPrice)
	require.NoError(t, f.book.ApproveCurrency(ctx, "alice", l.ID, "gem", 500))

	// Alternate payments ride the allowance path, not an attached payment.
	err = f.book.Buy(ctx, "bob", l.ID, 1, "gem", 500, 0)
	require.ErrorIs(t, err, bank.ErrInsufficientAllowance)

	f.bank.Approve(ctx, "bob", "house", "gem", 500)
	require.NoError(t, f.book.Buy(ctx, "bob", l.ID, 1, "gem", 500, 0))

	owner, err := f.ledger.OwnerOf(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
	assert.Equal(t, int64(500), f.bank.Available("bob", "gem"))
	assert.Equal(t, int64(12), f.bank.Pending("fees", "gem"))
	assert.Equal(t, int64(488), f.bank.Pending("alice", "gem"))
	assert.Zero(t, f.bank.Allowance("bob", "house", "gem"))
}

func TestBuyAfterSellerMovedAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")
	f.fund(t, "bob", bank.NativeCurrency, 10000)

	l, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)

	// The asset was never escrowed; the seller can still move it, and the
	// sale-time capability re-check catches that.
	require.NoError(t, f.ledger.Transfer(ctx, "alice", "alice", "carol", assetID))

	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, int64(10000), f.bank.Available("bob", bank.NativeCurrency))
}

func TestCancelListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")
	f.fund(t, "bob", bank.NativeCurrency, 10000)

	l, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)

	err = f.book.CancelListing(ctx, "bob", l.ID)
	require.ErrorIs(t, err, ErrNotCreator)
	err = f.book.CancelListing(ctx, "alice", 99)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.book.CancelListing(ctx, "alice", l.ID))
	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, ErrNotActive)
	err = f.book.CancelListing(ctx, "alice", l.ID)
	require.ErrorIs(t, err, ErrNotActive)

	// Cancelled listings free the (seller, asset) slot for a new record.
	fresh, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)
	assert.NotEqual(t, l.ID, fresh.ID)
}

func TestUpdateListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")

	l, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)

	p := f.params(assetID)
	p.PricePerUnit = 42000
	err = f.book.UpdateListing(ctx, "bob", l.ID, p)
	require.ErrorIs(t, err, ErrNotCreator)

	require.NoError(t, f.book.UpdateListing(ctx, "alice", l.ID, p))
	got, err := f.book.Get(l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42000), got.PricePerUnit)
}

func TestUpdateListingOntoListedAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.mintListed(t, "alice")
	b := f.mintListed(t, "alice")

	la, err := f.book.CreateListing(ctx, "alice", f.params(a))
	require.NoError(t, err)
	lb, err := f.book.CreateListing(ctx, "alice", f.params(b))
	require.NoError(t, err)

	// Retargeting a listing at an asset the seller already has live would
	// put two active listings on one asset.
	err = f.book.UpdateListing(ctx, "alice", la.ID, f.params(b))
	require.ErrorIs(t, err, ErrAlreadyListed)

	got, err := f.book.Get(la.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got.AssetID)
	assert.Len(t, f.book.Active(), 2)

	// Once the other listing is gone, the move goes through and frees the
	// old asset for a fresh record.
	require.NoError(t, f.book.CancelListing(ctx, "alice", lb.ID))
	require.NoError(t, f.book.UpdateListing(ctx, "alice", la.ID, f.params(b)))

	fresh, err := f.book.CreateListing(ctx, "alice", f.params(a))
	require.NoError(t, err)
	assert.NotEqual(t, la.ID, fresh.ID)
	assert.Len(t, f.book.Active(), 2)
}

func TestBuyWhilePaused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assetID := f.mintListed(t, "alice")
	f.fund(t, "bob", bank.NativeCurrency, 10000)

	l, err := f.book.CreateListing(ctx, "alice", f.params(assetID))
	require.NoError(t, err)

	require.NoError(t, f.state.SetPaused("admin", true))
	err = f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000)
	require.ErrorIs(t, err, system.ErrPaused)
	assert.Equal(t, int64(10000), f.bank.Available("bob", bank.NativeCurrency))

	require.NoError(t, f.state.SetPaused("admin", false))
	require.NoError(t, f.book.Buy(ctx, "bob", l.ID, 1, "", 10000, 10000))
}

func TestActiveListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.mintListed(t, "alice")
	b := f.mintListed(t, "alice")

	la, err := f.book.CreateListing(ctx, "alice", f.params(a))
	require.NoError(t, err)
	_, err = f.book.CreateListing(ctx, "alice", f.params(b))
	require.NoError(t, err)
	assert.Len(t, f.book.Active(), 2)

	require.NoError(t, f.book.CancelListing(ctx, "alice", la.ID))
	assert.Len(t, f.book.Active(), 1)
}
