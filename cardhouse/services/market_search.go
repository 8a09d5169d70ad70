package services

import (
	"strings"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/cardset"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/economy/listing"
	"github.com/sahilm/fuzzy"
)

// CardSetItems implements fuzzy.Source for card set searching.
type CardSetItems []CardSetItem

type CardSetItem struct {
	Set  cardset.CardSet
	Name string
}

func (items CardSetItems) Len() int {
	return len(items)
}

func (items CardSetItems) String(i int) string {
	return items[i].Name
}

// MarketSearchService provides fuzzy lookup over card sets and a cheap
// listing filter by asset. Reads go through the engines, so results always
// reflect the live in-memory state.
type MarketSearchService struct {
	registry *cardset.Registry
	book     *listing.Book
}

func NewMarketSearchService(registry *cardset.Registry, book *listing.Book) *MarketSearchService {
	return &MarketSearchService{
		registry: registry,
		book:     book,
	}
}

// SearchCardSets returns card sets whose names fuzzy-match the query,
// best match first. Burned sets are excluded.
func (s *MarketSearchService) SearchCardSets(query string) []cardset.CardSet {
	sets := s.registry.All()
	if len(sets) == 0 {
		return nil
	}

	live := make([]cardset.CardSet, 0, len(sets))
	for _, set := range sets {
		if !set.Burned {
			live = append(live, set)
		}
	}

	if query == "" {
		return live
	}

	items := make(CardSetItems, len(live))
	for i, set := range live {
		items[i] = CardSetItem{
			Set:  set,
			Name: normalizeName(set.Name),
		}
	}

	matches := fuzzy.FindFrom(normalizeName(query), items)
	results := make([]cardset.CardSet, len(matches))
	for i, match := range matches {
		results[i] = items[match.Index].Set
	}
	return results
}

// SearchSingleCardSet returns the best matching live card set, or false when
// nothing matches.
func (s *MarketSearchService) SearchSingleCardSet(query string) (cardset.CardSet, bool) {
	results := s.SearchCardSets(query)
	if len(results) == 0 {
		return cardset.CardSet{}, false
	}
	return results[0], true
}

// ActiveListingsForAsset returns the active listings offering the given
// token.
func (s *MarketSearchService) ActiveListingsForAsset(assetID int64) []listing.Listing {
	var out []listing.Listing
	for _, l := range s.book.Active() {
		if l.AssetID == assetID {
			out = append(out, l)
		}
	}
	return out
}

// normalizeName lowercases and collapses separators so queries match names
// regardless of formatting.
func normalizeName(name string) string {
	normalized := strings.ReplaceAll(name, "_", " ")
	normalized = strings.ReplaceAll(normalized, "-", " ")
	normalized = strings.ToLower(normalized)
	return strings.Join(strings.Fields(normalized), " ")
}
