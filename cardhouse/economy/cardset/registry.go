// Package cardset implements the mintable card-set registry: admin-curated
// packs of card URIs with basis-point rarity weights, minted against the
// shared ownership ledger through a weighted random draw.
package cardset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/bank"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/events"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/ledger"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/system"
)

const probabilityTotal = 10000

var (
	ErrInvalidProbabilities = errors.New("probabilities must sum to 10000 basis points")
	ErrLengthMismatch       = errors.New("card URIs and probabilities must have equal length")
	ErrNotFound             = errors.New("card set not found")
	ErrInvalidSupply        = errors.New("supply cannot be negative")
	ErrSoldOut              = errors.New("card set is sold out")
	ErrWrongPayment         = errors.New("payment does not match card set price")
)

// CardSet is one mintable pack.
type CardSet struct {
	ID              int64
	Name            string
	CardURIs        []string
	Probabilities   []int64
	RemainingSupply int64
	Price           int64
	Burned          bool
}

// Store persists card sets; a nil store is valid for tests.
type Store interface {
	SaveCardSet(ctx context.Context, s CardSet) error
	LoadCardSets(ctx context.Context) ([]CardSet, error)
}

// URIChecker verifies that a card URI points at a stored asset before a set
// is created. Optional; hosting itself lives outside the engine.
type URIChecker interface {
	CheckCardURI(ctx context.Context, uri string) error
}

type Registry struct {
	mu         sync.Mutex
	state      *system.State
	ledger     ledger.Ledger
	bank       *bank.Bank
	notifier   *events.Notifier
	store      Store
	seed       SeedSource
	uriCheck   URIChecker
	sets       map[int64]*CardSet
	nextID     int64
	feeBps     int64
	feeAccount string
}

type Config struct {
	FeeBps     int64
	FeeAccount string
	Store      Store
	URIChecker URIChecker
}

func NewRegistry(state *system.State, lgr ledger.Ledger, bnk *bank.Bank, notifier *events.Notifier, seed SeedSource, cfg Config) *Registry {
	if state == nil || lgr == nil || bnk == nil || notifier == nil || seed == nil {
		panic("cardset registry dependencies cannot be nil")
	}
	return &Registry{
		state:      state,
		ledger:     lgr,
		bank:       bnk,
		notifier:   notifier,
		store:      cfg.Store,
		seed:       seed,
		uriCheck:   cfg.URIChecker,
		sets:       make(map[int64]*CardSet),
		feeBps:     cfg.FeeBps,
		feeAccount: cfg.FeeAccount,
	}
}

// Restore reloads persisted sets at startup; the id counter continues after
// the highest restored id.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	sets, err := r.store.LoadCardSets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load card sets: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range sets {
		s := sets[i]
		r.sets[s.ID] = &s
		if s.ID >= r.nextID {
			r.nextID = s.ID + 1
		}
	}
	return nil
}

// CreateCardSet registers a new pack. Admin only.
func (r *Registry) CreateCardSet(ctx context.Context, caller, name string, cardURIs []string, probabilities []int64, supply, price int64) (*CardSet, error) {
	if err := r.state.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if len(cardURIs) != len(probabilities) {
		return nil, fmt.Errorf("%d URIs vs %d probabilities: %w",
			len(cardURIs), len(probabilities), ErrLengthMismatch)
	}
	var sum int64
	for _, p := range probabilities {
		if p < 0 {
			return nil, ErrInvalidProbabilities
		}
		sum += p
	}
	if sum != probabilityTotal {
		return nil, fmt.Errorf("probabilities sum to %d: %w", sum, ErrInvalidProbabilities)
	}
	if supply < 0 {
		return nil, fmt.Errorf("supply %d: %w", supply, ErrInvalidSupply)
	}
	if r.uriCheck != nil {
		for _, uri := range cardURIs {
			if err := r.uriCheck.CheckCardURI(ctx, uri); err != nil {
				return nil, fmt.Errorf("card URI %q: %w", uri, err)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set := &CardSet{
		ID:              r.nextID,
		Name:            name,
		CardURIs:        append([]string(nil), cardURIs...),
		Probabilities:   append([]int64(nil), probabilities...),
		RemainingSupply: supply,
		Price:           price,
	}
	if r.store != nil {
		if err := r.store.SaveCardSet(ctx, *set); err != nil {
			return nil, fmt.Errorf("failed to persist card set: %w", err)
		}
	}
	r.sets[set.ID] = set
	r.nextID++

	r.notifier.Emit(events.Event{
		Kind:     events.CardSetCreated,
		Actor:    caller,
		EntityID: set.ID,
		Amount:   set.Price,
		Currency: bank.NativeCurrency,
		Status:   "available",
	})
	return set, nil
}

// BurnCardSet marks a set unavailable without deleting its record. Admin
// only; burning is independent of remaining supply.
func (r *Registry) BurnCardSet(ctx context.Context, caller string, id int64) error {
	if err := r.state.RequireAdmin(caller); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sets[id]
	if !ok || set.Burned {
		return fmt.Errorf("card set %d: %w", id, ErrNotFound)
	}
	set.Burned = true
	if r.store != nil {
		if err := r.store.SaveCardSet(ctx, *set); err != nil {
			set.Burned = false
			return fmt.Errorf("failed to persist card set burn: %w", err)
		}
	}

	r.notifier.Emit(events.Event{
		Kind:     events.CardSetBurned,
		Actor:    caller,
		EntityID: id,
		Status:   "burned",
	})
	return nil
}

// MintFromCardSet draws one card from the set's weighted pool and mints it
// to the caller. The payment must equal the set price exactly.
func (r *Registry) MintFromCardSet(ctx context.Context, caller string, id int64, payment int64) (int64, error) {
	if err := r.state.RequireActive(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sets[id]
	if !ok || set.Burned {
		return 0, fmt.Errorf("card set %d: %w", id, ErrNotFound)
	}
	if set.RemainingSupply <= 0 {
		return 0, fmt.Errorf("card set %d: %w", id, ErrSoldOut)
	}
	if payment != set.Price {
		return 0, fmt.Errorf("sent %d, price is %d: %w", payment, set.Price, ErrWrongPayment)
	}

	if err := r.bank.Debit(ctx, caller, bank.NativeCurrency, payment); err != nil {
		return 0, err
	}

	seed := r.seed.Seed(ctx)
	roll := int64(seed % probabilityTotal)
	idx := pickIndex(set.Probabilities, roll)

	tokenID, err := r.ledger.Mint(ctx, caller, set.CardURIs[idx])
	if err != nil {
		if pushErr := r.bank.Push(ctx, caller, bank.NativeCurrency, payment); pushErr != nil {
			slog.Error("Failed to return mint payment",
				slog.String("type", "error"),
				slog.String("account", caller),
				slog.Any("error", pushErr))
		}
		return 0, fmt.Errorf("failed to mint card: %w", err)
	}

	set.RemainingSupply--
	if r.store != nil {
		if err := r.store.SaveCardSet(ctx, *set); err != nil {
			slog.Error("Failed to persist card set supply",
				slog.String("type", "db"),
				slog.Int64("set_id", set.ID),
				slog.Any("error", err))
		}
	}

	fee, proceeds := bank.SplitFee(payment, r.feeBps)
	if fee > 0 {
		_ = r.bank.CreditPending(ctx, r.feeAccount, bank.NativeCurrency, fee)
	}
	if proceeds > 0 {
		_ = r.bank.CreditPending(ctx, r.state.Admin(), bank.NativeCurrency, proceeds)
	}

	r.notifier.Emit(events.Event{
		Kind:     events.TokenMinted,
		Actor:    caller,
		EntityID: set.ID,
		AssetID:  tokenID,
		Amount:   payment,
		Currency: bank.NativeCurrency,
		Status:   fmt.Sprintf("remaining:%d", set.RemainingSupply),
	})
	return tokenID, nil
}

// UpdateSecretSalt rotates the seed source's secret salt. Admin only; a
// no-op error if the configured source has no salt (e.g. a VRF-backed one).
func (r *Registry) UpdateSecretSalt(caller, salt string) error {
	if err := r.state.RequireAdmin(caller); err != nil {
		return err
	}
	rot, ok := r.seed.(interface{ Rotate(string) })
	if !ok {
		return errors.New("seed source does not support salt rotation")
	}
	rot.Rotate(salt)
	return nil
}

// Get returns a copy of the set record.
func (r *Registry) Get(id int64) (CardSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[id]
	if !ok {
		return CardSet{}, fmt.Errorf("card set %d: %w", id, ErrNotFound)
	}
	return *set, nil
}

// All returns copies of every set record, burned included.
func (r *Registry) All() []CardSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CardSet, 0, len(r.sets))
	for _, s := range r.sets {
		out = append(out, *s)
	}
	return out
}
