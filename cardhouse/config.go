package cardhouse

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig    `toml:"log"`
	Market MarketConfig `toml:"market"`
	DB     DBConfig     `toml:"db"`
	Spaces struct {
		Key      string `toml:"key"`
		Secret   string `toml:"secret"`
		Region   string `toml:"region"`
		Bucket   string `toml:"bucket"`
		CardRoot string `toml:"cardroot"`
	} `toml:"spaces"`
	Migration MigrationConfig `toml:"migration"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type MarketConfig struct {
	Admin             string        `toml:"admin"`
	HouseAccount      string        `toml:"house_account"`
	FeeAccount        string        `toml:"fee_account"`
	FeeBps            int64         `toml:"fee_bps"`
	SecretSalt        string        `toml:"secret_salt"`
	DefaultTimeBuffer time.Duration `toml:"default_time_buffer"`
	DefaultBufferBps  int64         `toml:"default_buffer_bps"`
	SweepInterval     time.Duration `toml:"sweep_interval"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

type MigrationConfig struct {
	Enabled  bool   `toml:"enabled"`
	MongoURI string `toml:"mongo_uri"`
	MongoDB  string `toml:"mongo_db"`
}
