package cardhouse

import (
	"context"
	"log/slog"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/bank"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/database"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/repositories"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/auction"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/cardset"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/dutch"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/listing"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/events"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/ledger"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/logger"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/services"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/system"
	"golang.org/x/sync/errgroup"
)

// Market is the wired settlement engine: one shared admin/pause state, one
// ownership ledger, one funds bank, and the four trading engines on top.
type Market struct {
	Cfg      Config
	Version  string
	Commit   string
	DB       *database.DB
	State    *system.State
	Ledger   *ledger.Memory
	Bank     *bank.Bank
	Notifier *events.Notifier

	CardSets *cardset.Registry
	Listings *listing.Book
	Auctions *auction.House
	Dutch    *dutch.House

	Search       *services.MarketSearchService
	PriceTracker *services.PriceTracker
	Assets       *services.AssetService

	TokenRepo   repositories.TokenRepository
	BalanceRepo repositories.BalanceRepository
	HistoryRepo repositories.MarketHistoryRepository
}

// New wires all components. db may be nil for a purely in-memory market
// (used by tools and tests); engines then run without persistence.
func New(cfg Config, version, commit string, db *database.DB) *Market {
	m := &Market{
		Cfg:      cfg,
		Version:  version,
		Commit:   commit,
		DB:       db,
		State:    system.NewState(cfg.Market.Admin),
		Notifier: events.NewNotifier(),
	}

	var (
		tokenStore   ledger.Store
		balanceStore bank.Store
		setStore     cardset.Store
		listingStore listing.Store
		auctionStore auction.Store
		dutchStore   dutch.Store
	)
	if db != nil {
		bunDB := db.BunDB()
		m.TokenRepo = repositories.NewTokenRepository(bunDB)
		m.BalanceRepo = repositories.NewBalanceRepository(bunDB)
		m.HistoryRepo = repositories.NewMarketHistoryRepository(bunDB)
		tokenStore = m.TokenRepo
		balanceStore = m.BalanceRepo
		setStore = repositories.NewCardSetRepository(bunDB)
		listingStore = repositories.NewListingRepository(bunDB)
		auctionStore = repositories.NewEnglishAuctionRepository(bunDB)
		dutchStore = repositories.NewDutchAuctionRepository(bunDB)
	}

	m.Ledger = ledger.NewMemory(tokenStore)
	m.Bank = bank.New(balanceStore)

	var uriChecker cardset.URIChecker
	if cfg.Spaces.Key != "" {
		m.Assets = services.NewAssetService(
			cfg.Spaces.Key,
			cfg.Spaces.Secret,
			cfg.Spaces.Region,
			cfg.Spaces.Bucket,
			cfg.Spaces.CardRoot,
		)
		uriChecker = m.Assets
	}

	m.CardSets = cardset.NewRegistry(m.State, m.Ledger, m.Bank, m.Notifier,
		cardset.NewEntropySource(cfg.Market.SecretSalt),
		cardset.Config{
			FeeBps:     cfg.Market.FeeBps,
			FeeAccount: cfg.Market.FeeAccount,
			Store:      setStore,
			URIChecker: uriChecker,
		})

	m.Listings = listing.NewBook(m.State, m.Ledger, m.Bank, m.Notifier, listing.Config{
		FeeBps:       cfg.Market.FeeBps,
		FeeAccount:   cfg.Market.FeeAccount,
		HouseAccount: cfg.Market.HouseAccount,
		Store:        listingStore,
	})

	m.Auctions = auction.NewHouse(m.State, m.Ledger, m.Bank, m.Notifier, auction.Config{
		FeeBps:            cfg.Market.FeeBps,
		FeeAccount:        cfg.Market.FeeAccount,
		HouseAccount:      cfg.Market.HouseAccount,
		DefaultTimeBuffer: cfg.Market.DefaultTimeBuffer,
		DefaultBufferBps:  cfg.Market.DefaultBufferBps,
		Store:             auctionStore,
	})

	m.Dutch = dutch.NewHouse(m.State, m.Ledger, m.Bank, m.Notifier, dutch.Config{
		FeeBps:       cfg.Market.FeeBps,
		FeeAccount:   cfg.Market.FeeAccount,
		HouseAccount: cfg.Market.HouseAccount,
		Store:        dutchStore,
	})

	m.Search = services.NewMarketSearchService(m.CardSets, m.Listings)
	m.PriceTracker = services.NewPriceTracker(m.HistoryRepo)
	m.PriceTracker.Attach(m.Notifier)

	// House and fee accounts must exist before the first settlement.
	m.Bank.Register(context.Background(), cfg.Market.HouseAccount)
	m.Bank.Register(context.Background(), cfg.Market.FeeAccount)

	return m
}

// Recover reloads all persisted state into the engines. Call once at
// startup, after schema initialization and before serving.
func (m *Market) Recover(ctx context.Context) error {
	if m.DB == nil {
		return nil
	}
	start := time.Now()

	// Ledger and bank first; the engines re-check ownership and funds
	// against them when restoring open positions.
	if err := m.Ledger.Restore(ctx); err != nil {
		return err
	}
	if err := m.Bank.Restore(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.CardSets.Restore(gctx) })
	g.Go(func() error { return m.Listings.Restore(gctx) })
	g.Go(func() error { return m.Auctions.Restore(gctx) })
	g.Go(func() error { return m.Dutch.Restore(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	logger.LogSystem("Market state recovered",
		slog.Duration("took", time.Since(start)))
	return nil
}

// StartSweepers launches the expiry sweep loops. They stop when ctx is
// cancelled.
func (m *Market) StartSweepers(ctx context.Context) {
	interval := m.Cfg.Market.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	m.Auctions.StartSweeper(ctx, interval)
}

func (m *Market) Close() {
	if m.DB != nil {
		if err := m.DB.Close(); err != nil {
			logger.LogError("Failed to close database", err)
		}
	}
}
