package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ellavondegurechaff/cardhouse/cardhouse"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/database"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/logger"
	"github.com/ellavondegurechaff/cardhouse/cardhouse/migration"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting CardHouse market",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldMigrate := flag.Bool("migrate", false, "Import legacy Mongo data before serving")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := cardhouse.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dbConfig := database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	}

	db, err := database.New(ctx, dbConfig)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	slog.Info("Initializing database schema...")
	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	if *shouldMigrate || cfg.Migration.Enabled {
		if err := runMigration(ctx, cfg, db); err != nil {
			slog.Error("Legacy migration failed", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	m := cardhouse.New(*cfg, version, commit, db)
	defer m.Close()

	if err := m.Recover(ctx); err != nil {
		logger.LogError("Failed to recover market state", err)
		os.Exit(-1)
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	m.StartSweepers(sweepCtx)

	logger.LogSystem("Market is now running. Press CTRL-C to exit.",
		slog.String("admin", cfg.Market.Admin))
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-s
	logger.LogSystem("Shutting down")
}

func runMigration(ctx context.Context, cfg *cardhouse.Config, db *database.DB) error {
	slog.Info("Connecting to legacy Mongo...",
		slog.String("type", "sys"),
		slog.String("db", cfg.Migration.MongoDB))

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Migration.MongoURI))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			slog.Warn("Failed to disconnect Mongo", slog.Any("error", err))
		}
	}()

	migrator := migration.NewMigrator(db.BunDB(), client, cfg.Migration.MongoDB)
	migrator.UsePool(db.GetPool())
	migrator.SetUseCopy(true)
	return migrator.MigrateAll(ctx)
}
