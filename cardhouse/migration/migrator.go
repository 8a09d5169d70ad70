// Package migration imports the legacy Mongo deployment into Postgres.
// One-shot tool: run once against a live Mongo instance, then retire.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse/bank"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/database/models"
	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Migrator struct {
	pgDB      *bun.DB
	mongoDB   *mongo.Database
	batchSize int
	stats     MigrationStats

	// Optional: use pgx CopyFrom for the token table, the largest one.
	useCopy bool
	pool    *pgxpool.Pool

	// Mongo collection names (overrideable)
	collNames map[string]string
}

func NewMigrator(pgDB *bun.DB, client *mongo.Client, dbName string) *Migrator {
	return &Migrator{
		pgDB:      pgDB,
		mongoDB:   client.Database(dbName),
		batchSize: 1000,
		stats: MigrationStats{
			Tables:    make(map[string]*TableStats),
			StartTime: time.Now(),
		},
		collNames: map[string]string{
			"tokens":   "tokens",
			"balances": "balances",
			"cardsets": "cardsets",
			"listings": "listings",
			"auctions": "auctions",
		},
	}
}

// SetBatchSize overrides the default batch size for inserts.
func (m *Migrator) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

// SetUseCopy enables COPY FROM mode using pgx for token import.
func (m *Migrator) SetUseCopy(v bool) { m.useCopy = v }

// UsePool sets the pgx pool for COPY operations.
func (m *Migrator) UsePool(pool *pgxpool.Pool) { m.pool = pool }

// SetCollectionName overrides the Mongo collection name for a given kind.
func (m *Migrator) SetCollectionName(kind, name string) {
	if kind != "" && name != "" {
		m.collNames[kind] = name
	}
}

func (m *Migrator) coll(kind string) *mongo.Collection {
	return m.mongoDB.Collection(m.collNames[kind])
}

func (m *Migrator) table(name string) *TableStats {
	ts, ok := m.stats.Tables[name]
	if !ok {
		ts = &TableStats{}
		m.stats.Tables[name] = ts
	}
	return ts
}

// MigrateAll imports every legacy collection. Order preserves referential
// integrity: tokens before listings and auctions that reference them.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	logProgress("Starting legacy Mongo migration")

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"tokens", m.MigrateTokens},
		{"balances", m.MigrateBalances},
		{"card_sets", m.MigrateCardSets},
		{"listings", m.MigrateListings},
		{"auctions", m.MigrateAuctions},
	}

	for _, s := range steps {
		logProgress(fmt.Sprintf("Starting migration step: %s", s.name))
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("migration failed at step %s: %w", s.name, err)
		}
		logProgress(fmt.Sprintf("Completed migration step: %s", s.name))
	}

	m.stats.EndTime = time.Now()
	m.logFinalStats()
	return nil
}

func (m *Migrator) MigrateTokens(ctx context.Context) error {
	cur, err := m.coll("tokens").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query tokens: %w", err)
	}
	defer cur.Close(ctx)

	ts := m.table("tokens")
	var batch []*models.Token
	now := time.Now()
	for cur.Next(ctx) {
		var mt MongoToken
		if err := cur.Decode(&mt); err != nil {
			ts.Skipped++
			continue
		}
		ts.Read++
		if mt.Owner == "" {
			ts.Skipped++
			continue
		}
		batch = append(batch, &models.Token{
			ID:        mt.TokenID,
			Owner:     mt.Owner,
			URI:       mt.URI,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if len(batch) >= m.batchSize {
			if err := m.insertTokens(ctx, batch); err != nil {
				return err
			}
			ts.Imported += len(batch)
			batch = batch[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		if err := m.insertTokens(ctx, batch); err != nil {
			return err
		}
		ts.Imported += len(batch)
	}
	return nil
}

func (m *Migrator) insertTokens(ctx context.Context, batch []*models.Token) error {
	if m.useCopy && m.pool != nil {
		if err := m.copyInsertTokens(ctx, batch); err == nil {
			return nil
		} else {
			slog.Warn("Tokens COPY path failed; falling back to upsert", "error", err)
		}
	}
	_, err := m.pgDB.NewInsert().
		Model(&batch).
		On("CONFLICT (id) DO UPDATE").
		Set("owner = EXCLUDED.owner").
		Set("uri = EXCLUDED.uri").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert token batch: %w", err)
	}
	return nil
}

// copyInsertTokens bulk-loads tokens with pgx CopyFrom. Requires an empty
// tokens table; COPY cannot upsert.
func (m *Migrator) copyInsertTokens(ctx context.Context, batch []*models.Token) error {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	rows := make([][]interface{}, len(batch))
	for i, t := range batch {
		rows[i] = []interface{}{t.ID, t.Owner, t.URI, t.CreatedAt, t.UpdatedAt}
	}
	_, err = conn.CopyFrom(ctx,
		pgx.Identifier{"tokens"},
		[]string{"id", "owner", "uri", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy tokens failed: %w", err)
	}
	return nil
}

func (m *Migrator) MigrateBalances(ctx context.Context) error {
	cur, err := m.coll("balances").Find(ctx, bson.D{})
	if err != nil {
		logProgress("balances collection not found; skipping")
		return nil
	}
	defer cur.Close(ctx)

	ts := m.table("balances")
	var batch []*models.Balance
	now := time.Now()
	for cur.Next(ctx) {
		var mb MongoBalance
		if err := cur.Decode(&mb); err != nil {
			ts.Skipped++
			continue
		}
		ts.Read++
		if mb.Account == "" {
			ts.Skipped++
			continue
		}
		currency := mb.Currency
		if currency == "" {
			currency = bank.NativeCurrency
		}
		batch = append(batch, &models.Balance{
			Account:   mb.Account,
			Currency:  currency,
			Available: mb.Available,
			Pending:   mb.Pending,
			UpdatedAt: now,
		})
		if len(batch) >= m.batchSize {
			if err := m.insertBalances(ctx, batch); err != nil {
				return err
			}
			ts.Imported += len(batch)
			batch = batch[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		if err := m.insertBalances(ctx, batch); err != nil {
			return err
		}
		ts.Imported += len(batch)
	}
	return nil
}

func (m *Migrator) insertBalances(ctx context.Context, batch []*models.Balance) error {
	_, err := m.pgDB.NewInsert().
		Model(&batch).
		On("CONFLICT (account, currency) DO UPDATE").
		Set("available = EXCLUDED.available").
		Set("pending = EXCLUDED.pending").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert balance batch: %w", err)
	}
	return nil
}

func (m *Migrator) MigrateCardSets(ctx context.Context) error {
	cur, err := m.coll("cardsets").Find(ctx, bson.D{})
	if err != nil {
		logProgress("cardsets collection not found; skipping")
		return nil
	}
	defer cur.Close(ctx)

	ts := m.table("card_sets")
	now := time.Now()
	for cur.Next(ctx) {
		var ms MongoCardSet
		if err := cur.Decode(&ms); err != nil {
			ts.Skipped++
			continue
		}
		ts.Read++
		if len(ms.CardURIs) != len(ms.Probabilities) {
			ts.Skipped++
			logProgress(fmt.Sprintf("Card set %d has mismatched URI/probability lengths, skipping", ms.SetID))
			continue
		}
		model := &models.CardSet{
			ID:              ms.SetID,
			Name:            ms.Name,
			CardURIs:        ms.CardURIs,
			Probabilities:   ms.Probabilities,
			RemainingSupply: ms.RemainingSupply,
			Price:           ms.Price,
			Burned:          ms.Burned,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		_, err := m.pgDB.NewInsert().
			Model(model).
			On("CONFLICT (id) DO UPDATE").
			Set("remaining_supply = EXCLUDED.remaining_supply").
			Set("burned = EXCLUDED.burned").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert card set %d: %w", ms.SetID, err)
		}
		ts.Imported++
	}
	return cur.Err()
}

func (m *Migrator) MigrateListings(ctx context.Context) error {
	cur, err := m.coll("listings").Find(ctx, bson.D{})
	if err != nil {
		logProgress("listings collection not found; skipping")
		return nil
	}
	defer cur.Close(ctx)

	ts := m.table("listings")
	var batch []*models.Listing
	now := time.Now()
	for cur.Next(ctx) {
		var ml MongoListing
		if err := cur.Decode(&ml); err != nil {
			ts.Skipped++
			continue
		}
		ts.Read++
		currency := ml.Currency
		if currency == "" {
			currency = bank.NativeCurrency
		}
		buyers := ml.Buyers
		if buyers == nil {
			buyers = []string{}
		}
		batch = append(batch, &models.Listing{
			ID:                 ml.ListingID,
			Seller:             ml.Seller,
			AssetID:            ml.AssetID,
			Quantity:           ml.Quantity,
			Currency:           currency,
			PricePerUnit:       ml.PricePerUnit,
			StartTime:          ml.StartTime,
			EndTime:            ml.EndTime,
			Reserved:           ml.Reserved,
			ApprovedBuyers:     buyers,
			ApprovedCurrencies: map[string]int64{},
			Status:             ml.Status,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if len(batch) >= m.batchSize {
			if err := m.insertListings(ctx, batch); err != nil {
				return err
			}
			ts.Imported += len(batch)
			batch = batch[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		if err := m.insertListings(ctx, batch); err != nil {
			return err
		}
		ts.Imported += len(batch)
	}
	return nil
}

func (m *Migrator) insertListings(ctx context.Context, batch []*models.Listing) error {
	_, err := m.pgDB.NewInsert().
		Model(&batch).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert listing batch: %w", err)
	}
	return nil
}

func (m *Migrator) MigrateAuctions(ctx context.Context) error {
	cur, err := m.coll("auctions").Find(ctx, bson.D{})
	if err != nil {
		logProgress("auctions collection not found; skipping")
		return nil
	}
	defer cur.Close(ctx)

	ts := m.table("auctions")
	now := time.Now()
	for cur.Next(ctx) {
		var ma MongoAuction
		if err := cur.Decode(&ma); err != nil {
			ts.Skipped++
			continue
		}
		ts.Read++
		currency := ma.Currency
		if currency == "" {
			currency = bank.NativeCurrency
		}
		model := &models.EnglishAuction{
			ID:            ma.AuctionID,
			Seller:        ma.Seller,
			AssetID:       ma.AssetID,
			Quantity:      1,
			Currency:      currency,
			MinBid:        ma.MinBid,
			BuyoutBid:     ma.BuyoutBid,
			StartTime:     ma.StartTime,
			EndTime:       ma.EndTime,
			Status:        ma.Status,
			WinningBidder: ma.WinningBidder,
			WinningAmount: ma.WinningAmount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err := m.pgDB.NewInsert().
			Model(model).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("winning_bidder = EXCLUDED.winning_bidder").
			Set("winning_amount = EXCLUDED.winning_amount").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert auction %d: %w", ma.AuctionID, err)
		}
		ts.Imported++
	}
	return cur.Err()
}

func (m *Migrator) logFinalStats() {
	took := m.stats.EndTime.Sub(m.stats.StartTime)
	for name, ts := range m.stats.Tables {
		logProgress(fmt.Sprintf("%s: read=%d imported=%d skipped=%d", name, ts.Read, ts.Imported, ts.Skipped))
	}
	logProgress(fmt.Sprintf("Migration completed in %s", took.Round(time.Millisecond)))
}

func logProgress(message string) {
	slog.Info(message, slog.String("type", "sys"))
}
