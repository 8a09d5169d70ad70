package services

import (
	"context"
	"testing"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/bank"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/cardset"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/listing"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/events"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/ledger"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSeed struct{}

func (stubSeed) Seed(ctx context.Context) uint64 { return 0 }

func newSearchFixture(t *testing.T) (*MarketSearchService, *cardset.Registry, *listing.Book, *ledger.Memory) {
	t.Helper()
	state := system.NewState("admin")
	lgr := ledger.NewMemory(nil)
	bnk := bank.New(nil)
	notifier := events.NewNotifier()
	registry := cardset.NewRegistry(state, lgr, bnk, notifier, stubSeed{}, cardset.Config{
		FeeBps:     250,
		FeeAccount: "fees",
	})
	book := listing.NewBook(state, lgr, bnk, notifier, listing.Config{
		FeeBps:       250,
		FeeAccount:   "fees",
		HouseAccount: "house",
	})
	return NewMarketSearchService(registry, book), registry, book, lgr
}

func createSet(t *testing.T, registry *cardset.Registry, name string) cardset.CardSet {
	t.Helper()
	set, err := registry.CreateCardSet(context.Background(), "admin", name, []string{"a"}, []int64{10000}, 10, 100)
	require.NoError(t, err)
	return *set
}

func TestSearchCardSets(t *testing.T) {
	svc, registry, _, _ := newSearchFixture(t)
	createSet(t, registry, "Dragon Hoard")
	createSet(t, registry, "Shadow_Realm")
	burned := createSet(t, registry, "Dragon Relics")
	require.NoError(t, registry.BurnCardSet(context.Background(), "admin", burned.ID))

	// Empty query lists everything still live.
	all := svc.SearchCardSets("")
	assert.Len(t, all, 2)

	results := svc.SearchCardSets("dragon")
	require.Len(t, results, 1)
	assert.Equal(t, "Dragon Hoard", results[0].Name)

	// Separators in stored names do not block matching.
	results = svc.SearchCardSets("shadow realm")
	require.Len(t, results, 1)
	assert.Equal(t, "Shadow_Realm", results[0].Name)

	assert.Empty(t, svc.SearchCardSets("xyzzy"))
}

func TestSearchSingleCardSet(t *testing.T) {
	svc, registry, _, _ := newSearchFixture(t)
	createSet(t, registry, "Dragon Hoard")

	set, ok := svc.SearchSingleCardSet("dragon")
	require.True(t, ok)
	assert.Equal(t, "Dragon Hoard", set.Name)

	_, ok = svc.SearchSingleCardSet("xyzzy")
	assert.False(t, ok)
}

func TestActiveListingsForAsset(t *testing.T) {
	ctx := context.Background()
	svc, _, book, lgr := newSearchFixture(t)

	assetID, err := lgr.Mint(ctx, "alice", "uri")
	require.NoError(t, err)
	lgr.SetApprovalForAll(ctx, "alice", "house", true)

	assert.Empty(t, svc.ActiveListingsForAsset(assetID))

	l, err := book.CreateListing(ctx, "alice", listing.Params{
		AssetID:      assetID,
		Quantity:     1,
		PricePerUnit: 100,
		EndTime:      time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	got := svc.ActiveListingsForAsset(assetID)
	require.Len(t, got, 1)
	assert.Equal(t, l.ID, got[0].ID)

	require.NoError(t, book.CancelListing(ctx, "alice", l.ID))
	assert.Empty(t, svc.ActiveListingsForAsset(assetID))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "dragon hoard", normalizeName("Dragon_Hoard"))
	assert.Equal(t, "dragon hoard", normalizeName("  DRAGON--hoard  "))
	assert.Equal(t, "a b c", normalizeName("a_b-c"))
}
