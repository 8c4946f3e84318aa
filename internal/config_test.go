package internal

import (
	"os"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("AUTH_SECRET", "s3cr3t")

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	req.NoError(err)
	req.NoError(cfg.Validate())

	req.Equal(8080, cfg.Port)
	req.Equal(DriverBadger, cfg.StorageDriver)
	req.Equal(24*time.Hour, cfg.AuthTokenDuration)
	req.Equal("@every 1m", cfg.RoomJanitorSpec)
	req.Equal([]string{"*"}, cfg.Origins())
}

func TestConfig_Missing_Secret(t *testing.T) {
	req := require.New(t)
	t.Setenv("AUTH_SECRET", "")
	req.NoError(os.Unsetenv("AUTH_SECRET"))

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	req.Error(err)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		StorageDriver:        DriverBadger,
		LedgerPolicy:         "overwrite",
		RoomJanitorSpec:      "@every 1m",
		BufferSize:           8,
		ConnectionBufferSize: 8,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.StorageDriver = "mongo" }, wantErr: true},
		{name: "sql without dsn", mutate: func(c *Config) { c.StorageDriver = DriverPostgres }, wantErr: true},
		{name: "sql with dsn", mutate: func(c *Config) { c.StorageDriver = DriverSQLite; c.DatabaseDSN = "file::memory:" }},
		{name: "unknown policy", mutate: func(c *Config) { c.LedgerPolicy = "last_wins" }, wantErr: true},
		{name: "bad cron spec", mutate: func(c *Config) { c.RoomJanitorSpec = "every minute" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.StoreMaxRetries = -1 }, wantErr: true},
		{name: "empty buffer", mutate: func(c *Config) { c.BufferSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_Origins(t *testing.T) {
	cfg := Config{AllowedOrigins: " https://a.example , ,https://b.example"}
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
}
