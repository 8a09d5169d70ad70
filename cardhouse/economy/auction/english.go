// Package auction implements the English (ascending) auction house. Unlike
// listings, an auction takes custody of the asset the moment it is created
// and holds bid funds in escrow until settlement.
package auction

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
	ErrNotFound         = errors.New("auction not found")
	ErrInvalidParams    = errors.New("invalid auction parameters")
	ErrInvalidQuantity  = errors.New("quantity must be 1 for unique tokens")
	ErrNotOwner         = errors.New("seller does not own the asset")
	ErrNotApproved      = errors.New("house is not approved to move the asset")
	ErrNotActive        = errors.New("auction is not open for bidding")
	ErrExpired          = errors.New("auction has ended")
	ErrSellerBid        = errors.New("seller cannot bid on their own auction")
	ErrBidTooLow        = errors.New("bid is below the required minimum")
	ErrNotEnded         = errors.New("auction has not ended")
	ErrNotWinner        = errors.New("caller is not the winning bidder")
	ErrNotSeller        = errors.New("caller is not the auction seller")
	ErrAlreadyCollected = errors.New("already collected")
	ErrHasBids          = errors.New("auction already has a bid")
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Bid struct {
	Bidder string
	Amount int64
}

type Auction struct {
	ID              int64
	Seller          string
	AssetID         int64
	Quantity        int64
	Currency        string
	MinBid          int64
	BuyoutBid       int64
	TimeBuffer      time.Duration
	BidBufferBps    int64
	StartTime       time.Time
	EndTime         time.Time
	Status          Status
	WinningBid      *Bid
	TokensCollected bool
	PayoutCollected bool
}

// Params carries the seller-supplied auction fields. Zero TimeBuffer and
// BidBufferBps fall back to the house defaults; zero StartTime means now;
// empty Currency means the native currency; zero BuyoutBid disables buyout.
type Params struct {
	AssetID      int64
	Quantity     int64
	Currency     string
	MinBid       int64
	BuyoutBid    int64
	TimeBuffer   time.Duration
	BidBufferBps int64
	StartTime    time.Time
	EndTime      time.Time
}

// Store persists auctions; a nil store is valid for tests.
type Store interface {
	SaveAuction(ctx context.Context, a Auction) error
	LoadAuctions(ctx context.Context) ([]Auction, error)
}

type House struct {
	mu            sync.Mutex
	state         *system.State
	ledger        ledger.Ledger
	bank          *bank.Bank
	notifier      *events.Notifier
	store         Store
	auctions      map[int64]*Auction
	nextID        int64
	feeBps        int64
	feeAccount    string
	houseAccount  string
	defTimeBuffer time.Duration
	defBufferBps  int64
	now           func() time.Time
}

type Config struct {
	FeeBps            int64
	FeeAccount        string
	HouseAccount      string
	DefaultTimeBuffer time.Duration
	DefaultBufferBps  int64
	Store             Store
}

func NewHouse(state *system.State, lgr ledger.Ledger, bnk *bank.Bank, notifier *events.Notifier, cfg Config) *House {
	if state == nil || lgr == nil || bnk == nil || notifier == nil {
		panic("auction house dependencies cannot be nil")
	}
	return &House{
		state:         state,
		ledger:        lgr,
		bank:          bnk,
		notifier:      notifier,
		store:         cfg.Store,
		auctions:      make(map[int64]*Auction),
		feeBps:        cfg.FeeBps,
		feeAccount:    cfg.FeeAccount,
		houseAccount:  cfg.HouseAccount,
		defTimeBuffer: cfg.DefaultTimeBuffer,
		defBufferBps:  cfg.DefaultBufferBps,
		now:           time.Now,
	}
}

// Restore reloads persisted auctions at startup; the id counter continues
// after the highest restored id.
func (h *House) Restore(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	auctions, err := h.store.LoadAuctions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load auctions: %w", err)
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

// CreateAuction opens an auction and escrows the asset into the house in
// the same call.
func (h *House) CreateAuction(ctx context.Context, seller string, p Params) (*Auction, error) {
	if p.Quantity != 1 {
		return nil, ErrInvalidQuantity
	}
	if p.MinBid <= 0 {
		return nil, fmt.Errorf("min bid %d: %w", p.MinBid, ErrInvalidParams)
	}
	if p.BuyoutBid != 0 && p.BuyoutBid <= p.MinBid {
		return nil, fmt.Errorf("buyout %d must exceed min bid %d: %w", p.BuyoutBid, p.MinBid, ErrInvalidParams)
	}
	if p.Currency == "" {
		p.Currency = bank.NativeCurrency
	}
	if p.StartTime.IsZero() {
		p.StartTime = h.now()
	}
	if !p.EndTime.After(p.StartTime) {
		return nil, fmt.Errorf("window %s..%s: %w", p.StartTime, p.EndTime, ErrInvalidParams)
	}
	if p.TimeBuffer <= 0 {
		p.TimeBuffer = h.defTimeBuffer
	}
	if p.BidBufferBps <= 0 {
		p.BidBufferBps = h.defBufferBps
	}

	owner, err := h.ledger.OwnerOf(ctx, p.AssetID)
	if err != nil {
		return nil, fmt.Errorf("asset %d: %w", p.AssetID, err)
	}
	if owner != seller {
		return nil, fmt.Errorf("asset %d owned by %s: %w", p.AssetID, owner, ErrNotOwner)
	}
	if !h.ledger.IsApprovedForAll(ctx, seller, h.houseAccount) {
		return nil, fmt.Errorf("seller %s: %w", seller, ErrNotApproved)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Escrow at creation; this is what separates auctions from listings.
	if err := h.ledger.Transfer(ctx, h.houseAccount, seller, h.houseAccount, p.AssetID); err != nil {
		return nil, fmt.Errorf("failed to escrow asset %d: %w", p.AssetID, err)
	}

	a := &Auction{
		ID:           h.nextID,
		Seller:       seller,
		AssetID:      p.AssetID,
		Quantity:     p.Quantity,
		Currency:     p.Currency,
		MinBid:       p.MinBid,
		BuyoutBid:    p.BuyoutBid,
		TimeBuffer:   p.TimeBuffer,
		BidBufferBps: p.BidBufferBps,
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
		Status:       StatusCreated,
	}
	if err := h.persist(ctx, a); err != nil {
		if backErr := h.ledger.Transfer(ctx, h.houseAccount, h.houseAccount, seller, p.AssetID); backErr != nil {
			slog.Error("Failed to return escrowed asset",
				slog.String("type", "error"),
				slog.Int64("asset_id", p.AssetID),
				slog.Any("error", backErr))
		}
		return nil, err
	}
	h.auctions[a.ID] = a
	h.nextID++

	h.notifier.Emit(events.Event{
		Kind:     events.AuctionCreated,
		Actor:    seller,
		EntityID: a.ID,
		AssetID:  a.AssetID,
		Amount:   a.MinBid,
		Currency: a.Currency,
		Status:   string(a.Status),
		EndTime:  a.EndTime,
	})
	return h.copyLocked(a), nil
}

// clearsMinimum reports whether amount is an acceptable next bid: at least
// the floor before any bid, strictly above the previous bid raised by the
// bid buffer afterwards. The buffer comparison is cross-multiplied so small
// previous bids cannot truncate the required increment to zero.
func clearsMinimum(a *Auction, amount int64) bool {
	if a.WinningBid == nil {
		return amount >= a.MinBid
	}
	prev := a.WinningBid.Amount
	return amount > prev && amount*10000 >= prev*(10000+a.BidBufferBps)
}

// Bid escrows a new high bid. The previous bidder is refunded in full
// before the new bid is finalized; a failed refund push is queued as a
// withdrawable balance instead of blocking the auction. A bid at or above
// the buyout price settles the auction in the same call.
func (h *House) Bid(ctx context.Context, bidder string, id int64, amount int64) error {
	if err := h.state.RequireActive(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[id]
	if !ok {
		return fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	if a.Status != StatusCreated {
		return fmt.Errorf("auction %d: %w", id, ErrNotActive)
	}
	now := h.now()
	if now.After(a.EndTime) {
		return fmt.Errorf("auction %d ended %s: %w", id, a.EndTime, ErrExpired)
	}
	if bidder == a.Seller {
		return ErrSellerBid
	}
	if !clearsMinimum(a, amount) {
		return fmt.Errorf("bid %d: %w", amount, ErrBidTooLow)
	}

	if err := h.bank.Debit(ctx, bidder, a.Currency, amount); err != nil {
		return err
	}

	// Refund-or-queue for the outbid party happens before the new bid
	// becomes the winning one.
	if prev := a.WinningBid; prev != nil {
		if err := h.bank.Push(ctx, prev.Bidder, a.Currency, prev.Amount); err != nil {
			slog.Warn("Refund push failed, queueing as withdrawable",
				slog.String("type", "market"),
				slog.Int64("auction_id", a.ID),
				slog.String("bidder", prev.Bidder),
				slog.Int64("amount", prev.Amount),
				slog.Any("error", err))
			_ = h.bank.CreditPending(ctx, prev.Bidder, a.Currency, prev.Amount)
			h.notifier.Emit(events.Event{
				Kind:     events.RefundQueued,
				Actor:    prev.Bidder,
				EntityID: a.ID,
				Amount:   prev.Amount,
				Currency: a.Currency,
				Status:   string(a.Status),
			})
		}
	}

	a.WinningBid = &Bid{Bidder: bidder, Amount: amount}

	if a.BuyoutBid > 0 && amount >= a.BuyoutBid {
		a.EndTime = now
		h.settleLocked(ctx, a)
	} else if now.Add(a.TimeBuffer).After(a.EndTime) {
		// Anti-snipe: only ever extends, never shortens.
		a.EndTime = now.Add(a.TimeBuffer)
		h.notifier.Emit(events.Event{
			Kind:     events.AuctionExtended,
			Actor:    bidder,
			EntityID: a.ID,
			Status:   string(a.Status),
			EndTime:  a.EndTime,
		})
	}

	if err := h.persist(ctx, a); err != nil {
		slog.Error("Failed to persist auction bid",
			slog.String("type", "db"),
			slog.Int64("auction_id", a.ID),
			slog.Any("error", err))
	}

	h.notifier.Emit(events.Event{
		Kind:     events.AuctionBid,
		Actor:    bidder,
		EntityID: a.ID,
		AssetID:  a.AssetID,
		Amount:   amount,
		Currency: a.Currency,
		Status:   string(a.Status),
		EndTime:  a.EndTime,
	})
	return nil
}

// settleLocked completes a won auction: asset to the winner, proceeds minus
// fee to the seller. Used by buyout; timed-out auctions settle lazily
// through the collect calls or the sweep.
func (h *House) settleLocked(ctx context.Context, a *Auction) {
	a.Status = StatusCompleted

	win := a.WinningBid
	if err := h.ledger.Transfer(ctx, h.houseAccount, h.houseAccount, win.Bidder, a.AssetID); err != nil {
		slog.Error("Failed to transfer auction asset to winner",
			slog.String("type", "error"),
			slog.Int64("auction_id", a.ID),
			slog.Any("error", err))
	} else {
		a.TokensCollected = true
	}

	h.payoutLocked(ctx, a)

	h.notifier.Emit(events.Event{
		Kind:     events.AuctionCompleted,
		Actor:    win.Bidder,
		EntityID: a.ID,
		AssetID:  a.AssetID,
		Amount:   win.Amount,
		Currency: a.Currency,
		Status:   string(a.Status),
		EndTime:  a.EndTime,
	})
}

func (h *House) payoutLocked(ctx context.Context, a *Auction) {
	fee, proceeds := bank.SplitFee(a.WinningBid.Amount, h.feeBps)
	if fee > 0 {
		_ = h.bank.CreditPending(ctx, h.feeAccount, a.Currency, fee)
	}
	_ = h.bank.CreditPending(ctx, a.Seller, a.Currency, proceeds)
	a.PayoutCollected = true
}

// CollectTokens hands the escrowed asset to the winning bidder once the
// auction has ended. Safe against double collection.
func (h *House) CollectTokens(ctx context.Context, caller string, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[id]
	if !ok {
		return fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	if a.Status == StatusCancelled {
		return fmt.Errorf("auction %d: %w", id, ErrNotActive)
	}
	if a.Status == StatusCreated {
		if !h.now().After(a.EndTime) {
			return fmt.Errorf("auction %d ends %s: %w", id, a.EndTime, ErrNotEnded)
		}
		if a.WinningBid == nil {
			return fmt.Errorf("auction %d has no winner: %w", id, ErrNotEnded)
		}
		a.Status = StatusCompleted
	}
	if a.WinningBid == nil || caller != a.WinningBid.Bidder {
		return fmt.Errorf("auction %d: %w", id, ErrNotWinner)
	}
	if a.TokensCollected {
		return fmt.Errorf("auction %d tokens: %w", id, ErrAlreadyCollected)
	}

	if err := h.ledger.Transfer(ctx, h.houseAccount, h.houseAccount, caller, a.AssetID); err != nil {
		return fmt.Errorf("failed to transfer asset %d: %w", a.AssetID, err)
	}
	a.TokensCollected = true
	if err := h.persist(ctx, a); err != nil {
		slog.Error("Failed to persist token collection",
			slog.String("type", "db"),
			slog.Int64("auction_id", a.ID),
			slog.Any("error", err))
	}

	h.notifier.Emit(events.Event{
		Kind:     events.TokensCollected,
		Actor:    caller,
		EntityID: a.ID,
		AssetID:  a.AssetID,
		Status:   string(a.Status),
	})
	return nil
}

// CollectPayout credits the seller with the hammer price minus the
// marketplace fee once the auction has ended with a winner.
func (h *House) CollectPayout(ctx context.Context, caller string, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[id]
	if !ok {
		return fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	if caller != a.Seller {
		return fmt.Errorf("auction %d: %w", id, ErrNotSeller)
	}
	if a.Status == StatusCancelled {
		return fmt.Errorf("auction %d: %w", id, ErrNotActive)
	}
	if a.Status == StatusCreated {
		if !h.now().After(a.EndTime) {
			return fmt.Errorf("auction %d ends %s: %w", id, a.EndTime, ErrNotEnded)
		}
		if a.WinningBid == nil {
			return fmt.Errorf("auction %d has no winner: %w", id, ErrNotEnded)
		}
		a.Status = StatusCompleted
	}
	if a.WinningBid == nil {
		return fmt.Errorf("auction %d has no winner: %w", id, ErrNotEnded)
	}
	if a.PayoutCollected {
		return fmt.Errorf("auction %d payout: %w", id, ErrAlreadyCollected)
	}

	h.payoutLocked(ctx, a)
	if err := h.persist(ctx, a); err != nil {
		slog.Error("Failed to persist payout collection",
			slog.String("type", "db"),
			slog.Int64("auction_id", a.ID),
			slog.Any("error", err))
	}

	h.notifier.Emit(events.Event{
		Kind:     events.PayoutCollected,
		Actor:    caller,
		EntityID: a.ID,
		Amount:   a.WinningBid.Amount,
		Currency: a.Currency,
		Status:   string(a.Status),
	})
	return nil
}

// Cancel withdraws an auction that has not received any bid and returns
// the escrowed asset to the seller.
func (h *House) Cancel(ctx context.Context, caller string, id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, ok := h.auctions[id]
	if !ok {
		return fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	if caller != a.Seller {
		return fmt.Errorf("auction %d: %w", id, ErrNotSeller)
	}
	if a.Status != StatusCreated {
		return fmt.Errorf("auction %d: %w", id, ErrNotActive)
	}
	if a.WinningBid != nil {
		return fmt.Errorf("auction %d: %w", id, ErrHasBids)
	}

	if err := h.ledger.Transfer(ctx, h.houseAccount, h.houseAccount, a.Seller, a.AssetID); err != nil {
		return fmt.Errorf("failed to return asset %d: %w", a.AssetID, err)
	}
	a.Status = StatusCancelled
	if err := h.persist(ctx, a); err != nil {
		slog.Error("Failed to persist auction cancellation",
			slog.String("type", "db"),
			slog.Int64("auction_id", a.ID),
			slog.Any("error", err))
	}

	h.notifier.Emit(events.Event{
		Kind:     events.AuctionCancelled,
		Actor:    caller,
		EntityID: a.ID,
		AssetID:  a.AssetID,
		Status:   string(a.Status),
	})
	return nil
}

// SweepExpired flips expired won auctions to Completed so collectors see a
// settled record. Collection itself stays pull-based.
func (h *House) SweepExpired(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for _, a := range h.auctions {
		if a.Status != StatusCreated || !now.After(a.EndTime) || a.WinningBid == nil {
			continue
		}
		a.Status = StatusCompleted
		if err := h.persist(ctx, a); err != nil {
			slog.Error("Failed to persist expired auction",
				slog.String("type", "db"),
				slog.Int64("auction_id", a.ID),
				slog.Any("error", err))
			continue
		}
		h.notifier.Emit(events.Event{
			Kind:     events.AuctionCompleted,
			Actor:    a.WinningBid.Bidder,
			EntityID: a.ID,
			AssetID:  a.AssetID,
			Amount:   a.WinningBid.Amount,
			Currency: a.Currency,
			Status:   string(a.Status),
			EndTime:  a.EndTime,
		})
	}
}

// StartSweeper runs SweepExpired on a ticker until the context is done.
func (h *House) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.SweepExpired(ctx)
			}
		}
	}()
}

// Get returns a copy of the auction record.
func (h *House) Get(id int64) (Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.auctions[id]
	if !ok {
		return Auction{}, fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	return *h.copyLocked(a), nil
}

func (h *House) copyLocked(a *Auction) *Auction {
	c := *a
	if a.WinningBid != nil {
		win := *a.WinningBid
		c.WinningBid = &win
	}
	return &c
}

func (h *House) persist(ctx context.Context, a *Auction) error {
	if h.store == nil {
		return nil
	}
	if err := h.store.SaveAuction(ctx, *a); err != nil {
		return fmt.Errorf("failed to persist auction %d: %w", a.ID, err)
	}
	return nil
}
