// Package events fans out settlement notifications. Every state transition
// in the market emits one event carrying enough fields to reconstruct the
// new record state without a follow-up read.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type Kind string

const (
	CardSetCreated Kind = "cardset_created"
	CardSetBurned  Kind = "cardset_burned"
	TokenMinted    Kind = "token_minted"

	ListingCreated   Kind = "listing_created"
	ListingUpdated   Kind = "listing_updated"
	ListingCancelled Kind = "listing_cancelled"
	ListingSold      Kind = "listing_sold"

	AuctionCreated   Kind = "auction_created"
	AuctionBid       Kind = "auction_bid"
	AuctionExtended  Kind = "auction_extended"
	AuctionCompleted Kind = "auction_completed"
	AuctionCancelled Kind = "auction_cancelled"
	RefundQueued     Kind = "refund_queued"
	TokensCollected  Kind = "tokens_collected"
	PayoutCollected  Kind = "payout_collected"

	DutchCreated   Kind = "dutch_created"
	DutchSold      Kind = "dutch_sold"
	DutchCancelled Kind = "dutch_cancelled"
)

type Event struct {
	ID       snowflake.ID
	Kind     Kind
	Time     time.Time
	Actor    string
	EntityID int64
	AssetID  int64
	Amount   int64
	Currency string
	Status   string
	EndTime  time.Time
}

// Notifier logs every event and fans it out to subscribers. Subscribers run
// on the emitting goroutine; slow consumers should hand off internally.
type Notifier struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Subscribe(fn func(Event)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *Notifier) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.ID = snowflake.New(e.Time)

	slog.Info("Market event",
		slog.String("type", "market"),
		slog.String("kind", string(e.Kind)),
		slog.String("actor", e.Actor),
		slog.Int64("entity_id", e.EntityID),
		slog.Int64("asset_id", e.AssetID),
		slog.Int64("amount", e.Amount),
		slog.String("currency", e.Currency),
		slog.String("status", e.Status))

	n.mu.RLock()
	subs := n.subs
	n.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}
