package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/repositories"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/events"
	lru "github.com/hashicorp/golang-lru"
)

const (
	priceCacheSize   = 10000
	priceCacheExpiry = 15 * time.Minute
)

// cachedPrice is one cache entry with its write time.
type cachedPrice struct {
	price     int64
	timestamp time.Time
}

// PriceTracker records every settled sale into market history and serves
// last-price lookups through an LRU cache. It feeds off the event stream:
// call Attach once during wiring.
type PriceTracker struct {
	repo  repositories.MarketHistoryRepository
	cache *lru.Cache
}

func NewPriceTracker(repo repositories.MarketHistoryRepository) *PriceTracker {
	cache, _ := lru.New(priceCacheSize)
	return &PriceTracker{
		repo:  repo,
		cache: cache,
	}
}

// Attach subscribes the tracker to settlement events. Only events that move
// money against an asset become history rows.
func (pt *PriceTracker) Attach(n *events.Notifier) {
	n.Subscribe(func(e events.Event) {
		switch e.Kind {
		case events.TokenMinted, events.ListingSold, events.AuctionCompleted, events.DutchSold:
		default:
			return
		}
		if e.Amount <= 0 {
			return
		}
		pt.record(context.Background(), e)
	})
}

func (pt *PriceTracker) record(ctx context.Context, e events.Event) {
	pt.cache.Add(e.AssetID, cachedPrice{price: e.Amount, timestamp: e.Time})

	if pt.repo == nil {
		return
	}
	err := pt.repo.Record(ctx, &models.MarketHistory{
		AssetID:   e.AssetID,
		Kind:      string(e.Kind),
		Price:     e.Amount,
		Currency:  e.Currency,
		Actor:     e.Actor,
		Timestamp: e.Time,
	})
	if err != nil {
		slog.Error("Failed to record price point",
			slog.String("type", "db"),
			slog.Int64("asset_id", e.AssetID),
			slog.String("error", err.Error()))
	}
}

// LastPrice returns the most recent settled price for the asset, or 0 when
// it has never traded. Cache hits skip the database entirely.
func (pt *PriceTracker) LastPrice(ctx context.Context, assetID int64) (int64, error) {
	if v, ok := pt.cache.Get(assetID); ok {
		cached := v.(cachedPrice)
		if time.Since(cached.timestamp) < priceCacheExpiry {
			return cached.price, nil
		}
		pt.cache.Remove(assetID)
	}

	if pt.repo == nil {
		return 0, nil
	}
	price, err := pt.repo.LastPrice(ctx, assetID)
	if err != nil {
		return 0, err
	}
	if price > 0 {
		pt.cache.Add(assetID, cachedPrice{price: price, timestamp: time.Now()})
	}
	return price, nil
}

// History returns the most recent price points for the asset, newest first.
func (pt *PriceTracker) History(ctx context.Context, assetID int64, limit int) ([]*models.MarketHistory, error) {
	if pt.repo == nil {
		return nil, nil
	}
	return pt.repo.History(ctx, assetID, limit)
}
