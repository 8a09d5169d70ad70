package migration

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Legacy document shapes from the original Mongo deployment. Field names
// follow the old schema exactly; do not rename without checking a dump.

type MongoToken struct {
	ID      primitive.ObjectID `bson:"_id"`
	TokenID int64              `bson:"token_id"`
	Owner   string             `bson:"owner"`
	URI     string             `bson:"uri"`
}

type MongoBalance struct {
	ID        primitive.ObjectID `bson:"_id"`
	Account   string             `bson:"account"`
	Currency  string             `bson:"currency"`
	Available int64              `bson:"available"`
	Pending   int64              `bson:"pending"`
}

type MongoCardSet struct {
	ID              primitive.ObjectID `bson:"_id"`
	SetID           int64              `bson:"set_id"`
	Name            string             `bson:"name"`
	CardURIs        []string           `bson:"card_uris"`
	Probabilities   []int64            `bson:"probabilities"`
	RemainingSupply int64              `bson:"remaining_supply"`
	Price           int64              `bson:"price"`
	Burned          bool               `bson:"burned"`
}

type MongoListing struct {
	ID           primitive.ObjectID `bson:"_id"`
	ListingID    int64              `bson:"listing_id"`
	Seller       string             `bson:"seller"`
	AssetID      int64              `bson:"asset_id"`
	Quantity     int64              `bson:"quantity"`
	Currency     string             `bson:"currency"`
	PricePerUnit int64              `bson:"price_per_unit"`
	StartTime    time.Time          `bson:"start_time"`
	EndTime      time.Time          `bson:"end_time"`
	Reserved     bool               `bson:"reserved"`
	Buyers       []string           `bson:"buyers"`
	Status       string             `bson:"status"`
}

type MongoAuction struct {
	ID            primitive.ObjectID `bson:"_id"`
	AuctionID     int64              `bson:"auction_id"`
	Seller        string             `bson:"seller"`
	AssetID       int64              `bson:"asset_id"`
	Currency      string             `bson:"currency"`
	MinBid        int64              `bson:"min_bid"`
	BuyoutBid     int64              `bson:"buyout_bid"`
	StartTime     time.Time          `bson:"start_time"`
	EndTime       time.Time          `bson:"end_time"`
	WinningBidder string             `bson:"winning_bidder"`
	WinningAmount int64              `bson:"winning_amount"`
	Status        string             `bson:"status"`
}

// TableStats tracks per-table import counts for the final report.
type TableStats struct {
	Read     int
	Imported int
	Skipped  int
}

type MigrationStats struct {
	Tables    map[string]*TableStats
	StartTime time.Time
	EndTime   time.Time
}
