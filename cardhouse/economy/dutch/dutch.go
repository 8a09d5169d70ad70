// Package dutch implements the Dutch (descending) auction house: the price
// decays continuously from start to end price over the auction's duration,
// and a single buy at the current price settles in the same call, no
// escrowed bids involved. The asset itself is escrowed from creation.
//
// Overpayment is kept: the buyer is charged the full payment they attach,
// provided it covers the current price.
package dutch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/bank"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/events"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/ledger"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/system"
)

var (
	ErrNotFound            = errors.New("dutch auction not found")
	ErrInvalidParams       = errors.New("invalid dutch auction parameters")
	ErrNotOwner            = errors.New("seller does not own the asset")
	ErrNotApproved         = errors.New("house is not approved to move the asset")
	ErrNotActive           = errors.New("dutch auction is not active")
	ErrNotSeller           = errors.New("caller is not the auction seller")
	ErrInsufficientPayment = errors.New("payment is below the current price")
)

type Auction struct {
	ID            int64
	Seller        string
	AssetID       int64
	StartPrice    int64
	EndPrice      int64
	StartTime     time.Time
	Duration      time.Duration
	DecayExponent int64
	Currency      string
	Active        bool
}

// Store persists dutch auctions; a nil store is valid for tests.
type Store interface {
	SaveDutchAuction(ctx context.Context, a Auction) error
	LoadDutchAuctions(ctx context.Context) ([]Auction, error)
}

type House struct {
	mu           sync.Mutex
	state        *system.State
	ledger       ledger.Ledger
	bank         *bank.Bank
	notifier     *events.Notifier
	store        Store
	auctions     map[int64]*Auction
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

func NewHouse(state *system.State, lgr ledger.Ledger, bnk *bank.Bank, notifier *events.Notifier, cfg Config) *House {
	if state == nil || lgr == nil || bnk == nil || notifier == nil {
		panic("dutch house dependencies cannot be nil")
	}
	return &House{
		state:        state,
		ledger:       lgr,
		bank:         bnk,
		notifier:     notifier,
		store:        cfg.Store,
		auctions:     make(map[int64]*Auction),
		feeBps:       cfg.FeeBps,
		feeAccount:   cfg.FeeAccount,
		houseAccount: cfg.HouseAccount,
		now:          time.Now,
	}
}

// Restore reloads persisted dutch auctions at startup.
func (h *House) Restore(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	auctions, err := h.store.LoadDutchAuctions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load dutch auctions: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range auctions {
		a := auctions[i]
		h.auctions[a.ID] = &a
		if a.ID >= h.nextID {
			h.nextID = a.ID + 1
		}
	}
	return nil
}

// Create opens a dutch auction and escrows the asset in the same call.
func (h *House) Create(ctx context.Context, seller string, assetID, startPrice, endPrice int64, duration time.Duration, decayExponent int64, currency string) (*Auction, error) {
	if startPrice <= endPrice || endPrice <= 0 {
		return nil, fmt.Errorf("prices %d..%d: %w", startPrice, endPrice, ErrInvalidParams)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("duration %s: %w", duration, ErrInvalidParams)
	}
	if decayExponent < 1 {
		return nil, fmt.Errorf("decay exponent %d: %w", decayExponent, ErrInvalidParams)
	}
	if currency == "" {
		currency = bank.NativeCurrency
	}

	owner, err := h.ledger.OwnerOf(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("asset %d: %w", assetID, err)
	}
	if owner != seller {
		return nil, fmt.Errorf("asset %d owned by %s: %w", assetID, owner, ErrNotOwner)
	}
	if !h.ledger.IsApprovedForAll(ctx, seller, h.houseAccount) {
		return nil, fmt.Errorf("seller %s: %w", seller, ErrNotApproved)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ledger.Transfer(ctx, h.houseAccount, seller, h.houseAccount, assetID); err != nil {
		return nil, fmt.Errorf("failed to escrow asset %d: %w", assetID, err)
	}

	a := &Auction{
		ID:            h.nextID,
		Seller:        seller,
		AssetID:       assetID,
		StartPrice:    startPrice,
		EndPrice:      endPrice,
		StartTime:     h.now(),
		Duration:      duration,
		DecayExponent: decayExponent,
		Currency:      currency,
		Active:        true,
	}
	if err := h.persist(ctx, a); err != nil {
		if backErr := h.ledger.Transfer(ctx, h.houseAccount, h.houseAccount, seller, assetID); backErr != nil {
			slog.Error("Failed to return escrowed asset",
				slog.String("type", "error"),
				slog.Int64("asset_id", assetID),
				slog.Any("error", backErr))
		}
		return nil, err
	}
	h.auctions[a.ID] = a
	h.nextID++

	h.notifier.Emit(events.Event{
		Kind:     events.DutchCreated,
		Actor:    seller,
		EntityID: a.ID,
		AssetID:  a.AssetID,
		Amount:   a.StartPrice,
		Currency: a.Currency,
		Status:   "active",
	})
	return h.copyLocked(a), nil
}

// priceAt is the decay curve: start - (start-end)*(t/duration)^exponent,
// truncated to integer units, clamped to [endPrice, startPrice]. Pure
// function of the record and elapsed time.
func priceAt(a *Auction, now time.Time) int64 {
	elapsed := now.Sub(a.StartTime)
	if elapsed <= 0 {
		return a.StartPrice
	}
	if elapsed >= a.Duration {
		return a.EndPrice
	}
	ratio := float64(elapsed) / float64(a.Duration)
	drop := float64(a.StartPrice-a.EndPrice) * math.Pow(ratio, float64(a.DecayExponent))
	return a.StartPrice - int64(drop)
}

// CurrentPrice returns the decayed price at this moment. The price never
// drops below EndPrice; an expired auction simply sits at EndPrice until
// bought or cancelled.
func (h *House) CurrentPrice(id int64) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return 0, fmt.Errorf("dutch auction %d: %w", id, ErrNotFound)
	}
	return priceAt(a, h.now()), nil
}

// Buy settles the auction at the current price in one call: payment pulled,
// fee split, asset transferred, record deactivated. No partial fills.
func (h *House) Buy(ctx context.Context, buyer string, id int64, payment int64) error {
	if err := h.state.RequireActive(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[id]
	if !ok {
		return fmt.Errorf("dutch auction %d: %w", id, ErrNotFound)
	}
	if !a.Active {
		return fmt.Errorf("dutch auction %d: %w", id, ErrNotActive)
	}

	price := priceAt(a, h.now())
	if payment < price {
		return fmt.Errorf("sent %d, current price is %d: %w", payment, price, ErrInsufficientPayment)
	}

	if err := h.bank.Debit(ctx, buyer, a.Currency, payment); err != nil {
		return err
	}
	if err := h.ledger.Transfer(ctx, h.houseAccount, h.houseAccount, buyer, a.AssetID); err != nil {
		if refundErr := h.bank.CreditPending(ctx, buyer, a.Currency, payment); refundErr != nil {
			slog.Error("Failed to queue buyer refund",
				slog.String("type", "error"),
				slog.String("account", buyer),
				slog.Any("error", refundErr))
		}
		return fmt.Errorf("failed to transfer asset %d: %w", a.AssetID, err)
	}

	fee, proceeds := bank.SplitFee(payment, h.feeBps)
	if fee > 0 {
		_ = h.bank.CreditPending(ctx, h.feeAccount, a.Currency, fee)
	}
	_ = h.bank.CreditPending(ctx, a.Seller, a.Currency, proceeds)

	a.Active = false
	if err := h.persist(ctx, a); err != nil {
		slog.Error("Failed to persist dutch sale",
			slog.String("type", "db"),
			slog.Int64("auction_id", a.ID),
			slog.Any("error", err))
	}

	h.notifier.Emit(events.Event{
		Kind:     events.DutchSold,
		Actor:    buyer,
		EntityID: a.ID,
		AssetID:  a.AssetID,
		Amount:   payment,
		Currency: a.Currency,
		Status:   "sold",
	})
	return nil
}

// Cancel deactivates an unsold auction and returns the escrowed asset to
// the seller.
func (h *House) Cancel(ctx context.Context, caller string, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[id]
	if !ok {
		return fmt.Errorf("dutch auction %d: %w", id, ErrNotFound)
	}
	if caller != a.Seller {
		return fmt.Errorf("dutch auction %d: %w", id, ErrNotSeller)
	}
	if !a.Active {
		return fmt.Errorf("dutch auction %d: %w", id, ErrNotActive)
	}

	if err := h.ledger.Transfer(ctx, h.houseAccount, h.houseAccount, a.Seller, a.AssetID); err != nil {
		return fmt.Errorf("failed to return asset %d: %w", a.AssetID, err)
	}
	a.Active = false
	if err := h.persist(ctx, a); err != nil {
		slog.Error("Failed to persist dutch cancellation",
			slog.String("type", "db"),
			slog.Int64("auction_id", a.ID),
			slog.Any("error", err))
	}

	h.notifier.Emit(events.Event{
		Kind:     events.DutchCancelled,
		Actor:    caller,
		EntityID: a.ID,
		AssetID:  a.AssetID,
		Status:   "cancelled",
	})
	return nil
}

// Get returns a copy of the auction record.
func (h *House) Get(id int64) (Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return Auction{}, fmt.Errorf("dutch auction %d: %w", id, ErrNotFound)
	}
	return *h.copyLocked(a), nil
}

func (h *House) copyLocked(a *Auction) *Auction {
	c := *a
	return &c
}

func (h *House) persist(ctx context.Context, a *Auction) error {
	if h.store == nil {
		return nil
	}
	if err := h.store.SaveDutchAuction(ctx, *a); err != nil {
		return fmt.Errorf("failed to persist dutch auction %d: %w", a.ID, err)
	}
	return nil
}
