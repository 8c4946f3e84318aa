package internal

import (
	"fmt"
	"match-lab/domain"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
)

const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	StorageDriver   string `env:"STORAGE_DRIVER,default=badger"`
	BadgerFilepath  string `env:"BADGER_FILEPATH,default=./data/badger"`
	DatabaseDSN     string `env:"DATABASE_DSN"`
	StoreMaxRetries int    `env:"STORE_MAX_RETRIES,default=10"`
	LedgerPolicy    string `env:"LEDGER_POLICY,default=overwrite"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	TMDBApiKey       string        `env:"TMDB_API_KEY"`
	TMDBBaseURL      string        `env:"TMDB_BASE_URL,default=https://api.themoviedb.org/3"`
	CatalogTimeout   time.Duration `env:"CATALOG_TIMEOUT,default=3s"`
	CatalogCacheSize int64         `env:"CATALOG_CACHE_SIZE,default=10000"`

	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL,default=5s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	RoomIdleTimeout      time.Duration `env:"ROOM_IDLE_TIMEOUT,default=2h"`
	RoomJanitorSpec      string        `env:"ROOM_JANITOR_SPEC,default=@every 1m"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=15s"`

	RedisAddr      string `env:"REDIS_ADDR"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`
	PublicURL      string `env:"PUBLIC_URL"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
}

// Validate rejects settings that would only fail once the server is running.
func (c Config) Validate() error {
	if !lo.Contains([]string{DriverBadger, DriverPostgres, DriverSQLite}, c.StorageDriver) {
		return fmt.Errorf("STORAGE_DRIVER must be one of badger, postgres, sqlite, got %q", c.StorageDriver)
	}
	if c.StorageDriver != DriverBadger && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required with STORAGE_DRIVER=%s", c.StorageDriver)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.RoomJanitorSpec); err != nil {
		return fmt.Errorf("ROOM_JANITOR_SPEC %q: %w", c.RoomJanitorSpec, err)
	}
	if c.StoreMaxRetries < 0 {
		return fmt.Errorf("STORE_MAX_RETRIES must not be negative, got %d", c.StoreMaxRetries)
	}
	if c.BufferSize <= 0 || c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("BUFFER_SIZE and CONNECTION_BUFFER_SIZE must be positive")
	}
	return nil
}

func (c Config) Policy() (domain.LedgerPolicy, error) {
	return domain.ParseLedgerPolicy(c.LedgerPolicy)
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return lo.FilterMap(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) (string, bool) {
		o = strings.TrimSpace(o)
		return o, o != ""
	})
}
