package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{ConnString: "postgres://gov:gov@db:5432/governor"}
		cfg.ApplyDefaults()
		require.NoError(t, cfg.Validate())
		require.Equal(t, int32(10), cfg.MaxConns)
		require.Equal(t, int32(2), cfg.MinConns)
		require.Equal(t, 10*time.Second, cfg.QueryTimeout)
		require.Equal(t, "governor", cfg.ApplicationName)
	})

	t.Run("pool settings", func(t *testing.T) {
		cfg := &Config{
			ConnString:   "postgres://gov:gov@db:5432/governor",
			MaxConns:     4,
			QueryTimeout: 1500 * time.Millisecond,
		}
		cfg.ApplyDefaults()

		pc, err := cfg.poolConfig()
		require.NoError(t, err)
		require.Equal(t, int32(4), pc.MaxConns)
		require.Equal(t, time.Hour, pc.MaxConnLifetime)
		require.Equal(t, "1500", pc.ConnConfig.RuntimeParams["statement_timeout"])
		require.Equal(t, "governor", pc.ConnConfig.RuntimeParams["application_name"])
		require.Equal(t, "governor", pc.ConnConfig.Database)
	})

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing connection string", cfg: Config{}},
		{name: "min above max", cfg: Config{ConnString: "postgres://db/governor", MaxConns: 2, MinConns: 3}},
		{name: "negative timeout", cfg: Config{ConnString: "postgres://db/governor", QueryTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("open refuses an invalid config", func(t *testing.T) {
		_, err := Open(context.Background(), &Config{})
		require.ErrorContains(t, err, "connection string is required")
	})
}
