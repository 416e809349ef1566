package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/susa-must-flow/internal/common"
)

func TestConfigValidation(t *testing.T) {
	oauth := func(c Config) Config {
		c.ClientID, c.ClientSecret, c.RefreshToken = "client", "secret", "refresh"
		return c
	}

	tests := []struct {
		wantErr error
		name    string
		config  Config
	}{
		{name: "oauth credentials", config: oauth(Config{BatchSize: 100})},
		{name: "service account", config: Config{ServiceAccountPath: "/keys/sa.json", BatchSize: 100}},
		{
			name:    "refresh token without secret",
			config:  Config{ClientID: "client", RefreshToken: "refresh", BatchSize: 100},
			wantErr: common.ErrMissingConfig,
		},
		{
			name:    "both methods",
			config:  oauth(Config{ServiceAccountPath: "/keys/sa.json", BatchSize: 100}),
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "zero batch size",
			config:  Config{ServiceAccountPath: "/keys/sa.json"},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:    "negative retry delay",
			config:  Config{ServiceAccountPath: "/keys/sa.json", BatchSize: 100, RetryDelay: -time.Second},
			wantErr: common.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultSpreadsheetName, cfg.SpreadsheetName)
	assert.Equal(t, "Europe/Berlin", cfg.TimeZone)
	assert.True(t, cfg.EnableFormatting)

	opts := cfg.retryOptions()
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.Equal(t, time.Second, opts.InitialDelay)
}

func TestSpreadsheetURL(t *testing.T) {
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc123", SpreadsheetURL("abc123"))
}
