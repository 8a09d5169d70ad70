// Package listing implements the fixed-price listing book. Listings never
// escrow the asset; the book only proves the capability to move it (owner +
// operator approval) at creation and again at sale time.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/bank"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/events"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/ledger"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/system"
)

var (
	ErrNotFound            = errors.New("listing not found")
	ErrNotOwner            = errors.New("seller does not own the asset")
	ErrNotApproved         = errors.New("book is not approved to move the asset")
	ErrInvalidPrice        = errors.New("price per unit must be positive")
	ErrInvalidWindow       = errors.New("end time must be after start time")
	ErrInvalidQuantity     = errors.New("quantity must be 1 for unique tokens")
	ErrNotCreator          = errors.New("caller did not create this listing")
	ErrNotActive           = errors.New("listing is not active")
	ErrNotReserved         = errors.New("listing is not reserved")
	ErrAlreadyListed       = errors.New("seller already has an active listing for this asset")
	ErrInvalidCurrency     = errors.New("currency cannot be empty or the listing's primary currency")
	ErrExpired             = errors.New("listing has expired")
	ErrNotStarted          = errors.New("listing has not started")
	ErrPriceMismatch       = errors.New("expected price does not match the listing price")
	ErrPaymentMismatch     = errors.New("payment does not match the expected total")
	ErrCurrencyNotAccepted = errors.New("currency is not accepted for this listing")
	ErrNotApprovedBuyer    = errors.New("buyer is not approved for this reserved listing")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusSold      Status = "sold"
)

type Listing struct {
	ID                 int64
	Seller             string
	AssetID            int64
	Quantity           int64
	Currency           string
	PricePerUnit       int64
	StartTime          time.Time
	EndTime            time.Time
	Reserved           bool
	ApprovedBuyers     map[string]bool
	ApprovedCurrencies map[string]int64
	Status             Status
}

// Params carries the seller-supplied listing fields. A zero StartTime means
// "now"; an empty Currency means the native currency.
type Params struct {
	AssetID      int64
	Quantity     int64
	Currency     string
	PricePerUnit int64
	StartTime    time.Time
	EndTime      time.Time
	Reserved     bool
}

// Store persists listings; a nil store is valid for tests.
type Store interface {
	SaveListing(ctx context.Context, l Listing) error
	LoadListings(ctx context.Context) ([]Listing, error)
}

type assetKey struct {
	seller  string
	assetID int64
}

type Book struct {
	mu           sync.Mutex
	state        *system.State
	ledger       ledger.Ledger
	bank         *bank.Bank
	notifier     *events.Notifier
	store        Store
	listings     map[int64]*Listing
	liveByAsset  map[assetKey]int64
	nextID       int64
	feeBps       int64
	feeAccount   string
	houseAccount string
	now          func() time.Time
}

type Config struct {
	FeeBps       int64
	FeeAccount   string
	HouseAccount string
	Store        Store
}

func NewBook(state *system.State, lgr ledger.Ledger, bnk *bank.Bank, notifier *events.Notifier, cfg Config) *Book {
	if state == nil || lgr == nil || bnk == nil || notifier == nil {
		panic("listing book dependencies cannot be nil")
	}
	return &Book{
		state:        state,
		ledger:       lgr,
		bank:         bnk,
		notifier:     notifier,
		store:        cfg.Store,
		listings:     make(map[int64]*Listing),
		liveByAsset:  make(map[assetKey]int64),
		feeBps:       cfg.FeeBps,
		feeAccount:   cfg.FeeAccount,
		houseAccount: cfg.HouseAccount,
		now:          time.Now,
	}
}

// Restore reloads persisted listings at startup and rebuilds the live
// (seller, asset) index.
func (b *Book) Restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	listings, err := b.store.LoadListings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load listings: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range listings {
		l := listings[i]
		b.listings[l.ID] = &l
		if l.Status == StatusActive {
			b.liveByAsset[assetKey{seller: l.Seller, assetID: l.AssetID}] = l.ID
		}
		if l.ID >= b.nextID {
			b.nextID = l.ID + 1
		}
	}
	return nil
}

func (b *Book) validateParams(ctx context.Context, seller string, p *Params) error {
	if p.Quantity != 1 {
		return ErrInvalidQuantity
	}
	if p.PricePerUnit <= 0 {
		return ErrInvalidPrice
	}
	if p.Currency == "" {
		p.Currency = bank.NativeCurrency
	}
	if p.StartTime.IsZero() {
		p.StartTime = b.now()
	}
	if !p.EndTime.After(p.StartTime) {
		return ErrInvalidWindow
	}

	owner, err := b.ledger.OwnerOf(ctx, p.AssetID)
	if err != nil {
		return fmt.Errorf("asset %d: %w", p.AssetID, err)
	}
	if owner != seller {
		return fmt.Errorf("asset %d owned by %s: %w", p.AssetID, owner, ErrNotOwner)
	}
	if !b.ledger.IsApprovedForAll(ctx, seller, b.houseAccount) {
		return fmt.Errorf("seller %s: %w", seller, ErrNotApproved)
	}
	return nil
}

// CreateListing lists an asset for sale. If the seller already has an
// active listing for the same asset, that record is overwritten in place —
// same id, updated fields — and the total listing count does not grow.
func (b *Book) CreateListing(ctx context.Context, seller string, p Params) (*Listing, error) {
	if err := b.validateParams(ctx, seller, &p); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := assetKey{seller: seller, assetID: p.AssetID}
	if id, ok := b.liveByAsset[key]; ok {
		existing := b.listings[id]
		updated := *existing
		applyParams(&updated, p)
		if err := b.persist(ctx, &updated); err != nil {
			return nil, err
		}
		*existing = updated
		b.emit(events.ListingUpdated, seller, existing)
		return copyOf(existing), nil
	}

	l := &Listing{
		ID:                 b.nextID,
		Seller:             seller,
		Status:             StatusActive,
		ApprovedBuyers:     make(map[string]bool),
		ApprovedCurrencies: make(map[string]int64),
	}
	applyParams(l, p)
	if err := b.persist(ctx, l); err != nil {
		return nil, err
	}
	b.listings[l.ID] = l
	b.liveByAsset[key] = l.ID
	b.nextID++

	b.emit(events.ListingCreated, seller, l)
	return copyOf(l), nil
}

// UpdateListing rewrites the mutable fields of an active listing.
func (b *Book) UpdateListing(ctx context.Context, caller string, id int64, p Params) error {
	b.mu.Lock()
	l, err := b.activeOwnedLocked(caller, id)
	b.mu.Unlock()
	if err != nil {
		return err
	}

	// Validation reads the ledger; do it outside the book lock like
	// CreateListing does.
	if err := b.validateParams(ctx, caller, &p); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	l, err = b.activeOwnedLocked(caller, id)
	if err != nil {
		return err
	}

	oldKey := assetKey{seller: l.Seller, assetID: l.AssetID}
	newKey := assetKey{seller: l.Seller, assetID: p.AssetID}
	// Moving the listing onto an asset the seller already has live would
	// leave two active records for one (seller, asset); relist that asset
	// instead.
	if newKey != oldKey {
		if otherID, ok := b.liveByAsset[newKey]; ok && otherID != l.ID {
			return fmt.Errorf("asset %d is listing %d: %w", p.AssetID, otherID, ErrAlreadyListed)
		}
	}
	updated := *l
	applyParams(&updated, p)
	if err := b.persist(ctx, &updated); err != nil {
		return err
	}
	*l = updated
	if newKey != oldKey {
		delete(b.liveByAsset, oldKey)
		b.liveByAsset[newKey] = l.ID
	}

	b.emit(events.ListingUpdated, caller, l)
	return nil
}

// CancelListing withdraws an active listing.
func (b *Book) CancelListing(ctx context.Context, caller string, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, err := b.activeOwnedLocked(caller, id)
	if err != nil {
		return err
	}

	updated := *l
	updated.Status = StatusCancelled
	if err := b.persist(ctx, &updated); err != nil {
		return err
	}
	*l = updated
	delete(b.liveByAsset, assetKey{seller: l.Seller, assetID: l.AssetID})

	b.emit(events.ListingCancelled, caller, l)
	return nil
}

// ApproveBuyer adds or removes a buyer on a reserved listing.
func (b *Book) ApproveBuyer(ctx context.Context, caller string, id int64, buyer string, approved bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, err := b.activeOwnedLocked(caller, id)
	if err != nil {
		return err
	}
	if !l.Reserved {
		return fmt.Errorf("listing %d: %w", id, ErrNotReserved)
	}

	if approved {
		l.ApprovedBuyers[buyer] = true
	} else {
		delete(l.ApprovedBuyers, buyer)
	}
	return b.persist(ctx, l)
}

// ApproveCurrency sets an alternate-currency price on the listing.
func (b *Book) ApproveCurrency(ctx context.Context, caller string, id int64, currency string, price int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, err := b.activeOwnedLocked(caller, id)
	if err != nil {
		return err
	}
	if currency == "" || currency == l.Currency {
		return ErrInvalidCurrency
	}
	if price <= 0 {
		return ErrInvalidPrice
	}

	l.ApprovedCurrencies[currency] = price
	return b.persist(ctx, l)
}

// Buy settles an active listing: pulls payment, splits fee from proceeds,
// transfers the asset and consumes the listing, all in one call.
func (b *Book) Buy(ctx context.Context, buyer string, id, quantity int64, currency string, expectedPrice, payment int64) error {
	if err := b.state.RequireActive(); err != nil {
		return err
	}
	if currency == "" {
		currency = bank.NativeCurrency
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.listings[id]
	if !ok {
		return fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	if l.Status != StatusActive {
		return fmt.Errorf("listing %d: %w", id, ErrNotActive)
	}

	now := b.now()
	if now.After(l.EndTime) {
		return fmt.Errorf("listing %d ended %s: %w", id, l.EndTime, ErrExpired)
	}
	if now.Before(l.StartTime) {
		return fmt.Errorf("listing %d starts %s: %w", id, l.StartTime, ErrNotStarted)
	}
	if quantity != l.Quantity {
		return ErrInvalidQuantity
	}
	if l.Reserved && !l.ApprovedBuyers[buyer] {
		return fmt.Errorf("buyer %s: %w", buyer, ErrNotApprovedBuyer)
	}

	unitPrice := l.PricePerUnit
	if currency != l.Currency {
		alt, ok := l.ApprovedCurrencies[currency]
		if !ok {
			return fmt.Errorf("currency %s: %w", currency, ErrCurrencyNotAccepted)
		}
		unitPrice = alt
	}
	if expectedPrice != unitPrice {
		return fmt.Errorf("expected %d, listed at %d: %w", expectedPrice, unitPrice, ErrPriceMismatch)
	}
	total := unitPrice * quantity

	// Capability re-check at sale time; the asset was never escrowed.
	owner, err := b.ledger.OwnerOf(ctx, l.AssetID)
	if err != nil {
		return fmt.Errorf("asset %d: %w", l.AssetID, err)
	}
	if owner != l.Seller {
		return fmt.Errorf("asset %d no longer owned by seller: %w", l.AssetID, ErrNotOwner)
	}
	if !b.ledger.IsApprovedForAll(ctx, l.Seller, b.houseAccount) {
		return fmt.Errorf("seller %s: %w", l.Seller, ErrNotApproved)
	}

	if currency == bank.NativeCurrency {
		if payment != total {
			return fmt.Errorf("sent %d, total is %d: %w", payment, total, ErrPaymentMismatch)
		}
		if err := b.bank.Debit(ctx, buyer, currency, total); err != nil {
			return err
		}
	} else {
		if err := b.bank.DebitFrom(ctx, b.houseAccount, buyer, currency, total); err != nil {
			return err
		}
	}

	if err := b.ledger.Transfer(ctx, b.houseAccount, l.Seller, buyer, l.AssetID); err != nil {
		// Payment already pulled; return it rather than leaving it stranded.
		if refundErr := b.bank.CreditPending(ctx, buyer, currency, total); refundErr != nil {
			slog.Error("Failed to queue buyer refund",
				slog.String("type", "error"),
				slog.String("account", buyer),
				slog.Any("error", refundErr))
		}
		return fmt.Errorf("failed to transfer asset %d: %w", l.AssetID, err)
	}

	fee, proceeds := bank.SplitFee(total, b.feeBps)
	if fee > 0 {
		_ = b.bank.CreditPending(ctx, b.feeAccount, currency, fee)
	}
	_ = b.bank.CreditPending(ctx, l.Seller, currency, proceeds)

	l.Status = StatusSold
	delete(b.liveByAsset, assetKey{seller: l.Seller, assetID: l.AssetID})
	if err := b.persist(ctx, l); err != nil {
		slog.Error("Failed to persist sold listing",
			slog.String("type", "db"),
			slog.Int64("listing_id", l.ID),
			slog.Any("error", err))
	}

	b.notifier.Emit(events.Event{
		Kind:     events.ListingSold,
		Actor:    buyer,
		EntityID: l.ID,
		AssetID:  l.AssetID,
		Amount:   total,
		Currency: currency,
		Status:   string(l.Status),
	})
	return nil
}

// Get returns a copy of the listing record.
func (b *Book) Get(id int64) (Listing, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.listings[id]
	if !ok {
		return Listing{}, fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	return *copyOf(l), nil
}

// Count reports the total number of listing records ever created.
func (b *Book) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listings)
}

// Active returns copies of all active listings.
func (b *Book) Active() []Listing {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Listing, 0, len(b.liveByAsset))
	for _, id := range b.liveByAsset {
		out = append(out, *copyOf(b.listings[id]))
	}
	return out
}

func (b *Book) activeOwnedLocked(caller string, id int64) (*Listing, error) {
	l, ok := b.listings[id]
	if !ok {
		return nil, fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	if l.Seller != caller {
		return nil, fmt.Errorf("listing %d: %w", id, ErrNotCreator)
	}
	if l.Status != StatusActive {
		return nil, fmt.Errorf("listing %d: %w", id, ErrNotActive)
	}
	return l, nil
}

func (b *Book) persist(ctx context.Context, l *Listing) error {
	if b.store == nil {
		return nil
	}
	if err := b.store.SaveListing(ctx, *l); err != nil {
		return fmt.Errorf("failed to persist listing %d: %w", l.ID, err)
	}
	return nil
}

func (b *Book) emit(kind events.Kind, actor string, l *Listing) {
	b.notifier.Emit(events.Event{
		Kind:     kind,
		Actor:    actor,
		EntityID: l.ID,
		AssetID:  l.AssetID,
		Amount:   l.PricePerUnit,
		Currency: l.Currency,
		Status:   string(l.Status),
		EndTime:  l.EndTime,
	})
}

func applyParams(l *Listing, p Params) {
	l.AssetID = p.AssetID
	l.Quantity = p.Quantity
	l.Currency = p.Currency
	l.PricePerUnit = p.PricePerUnit
	l.StartTime = p.StartTime
	l.EndTime = p.EndTime
	l.Reserved = p.Reserved
}

func copyOf(l *Listing) *Listing {
	c := *l
	c.ApprovedBuyers = make(map[string]bool, len(l.ApprovedBuyers))
	for k, v := range l.ApprovedBuyers {
		c.ApprovedBuyers[k] = v
	}
	c.ApprovedCurrencies = make(map[string]int64, len(l.ApprovedCurrencies))
	for k, v := range l.ApprovedCurrencies {
		c.ApprovedCurrencies[k] = v
	}
	return &c
}
