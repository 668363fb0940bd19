package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql://localhost/dentalflow_test")
	t.Setenv("DISPLAY_TIMEZONE", "America/Guatemala")
	t.Setenv("BOARD_REFRESH_INTERVAL", "15s")
	t.Setenv("PUBLIC_RATE_BURST", "9")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.dentalflow.app, http://localhost:5173 ,")

	cfg, err := Load()
	require.NoError(t, err)
	defer SetConfig(nil)

	assert.Equal(t, "test", cfg.GoEnv)
	assert.True(t, cfg.IsTest())
	assert.Equal(t, 15*time.Second, cfg.BoardRefreshInterval)
	assert.Equal(t, 9, cfg.PublicRateBurst)
	assert.Equal(t, []string{"https://app.dentalflow.app", "http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.Same(t, cfg, GetConfig())
}

func TestLoad_FallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgresql://localhost/dentalflow_test")
	t.Setenv("BOARD_REFRESH_INTERVAL", "soon")
	t.Setenv("PUBLIC_RATE_LIMIT", "fast")

	cfg, err := Load()
	require.NoError(t, err)
	defer SetConfig(nil)

	assert.Equal(t, 60*time.Second, cfg.BoardRefreshInterval)
	assert.Equal(t, 0.2, cfg.PublicRateLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "Valid configuration",
			cfg:  Config{DatabaseURL: "postgres://x", DisplayTimezone: "America/Guatemala", BoardRefreshInterval: time.Minute},
		},
		{
			name:    "Missing database URL",
			cfg:     Config{DisplayTimezone: "UTC", BoardRefreshInterval: time.Minute},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "Unknown timezone",
			cfg:     Config{DatabaseURL: "postgres://x", DisplayTimezone: "Mars/Olympus", BoardRefreshInterval: time.Minute},
			wantErr: "DISPLAY_TIMEZONE",
		},
		{
			name:    "Zero refresh interval",
			cfg:     Config{DatabaseURL: "postgres://x", DisplayTimezone: "UTC"},
			wantErr: "BOARD_REFRESH_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{DisplayTimezone: "America/Guatemala"}
	assert.Equal(t, "America/Guatemala", cfg.Location().String())

	cfg.DisplayTimezone = "nowhere"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestSetupLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	SetupLogger(&Config{LogLevel: "debug", GoEnv: "test"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetupLogger(&Config{LogLevel: "bogus", GoEnv: "test"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
