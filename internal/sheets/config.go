// Package sheets exports analysis results to Google Sheets.
package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

// DefaultSpreadsheetName is used when a new spreadsheet has to be created.
const DefaultSpreadsheetName = "SUSA KPI Report"

// Config selects the spreadsheet and how to authenticate against it: either
// a service account key or an OAuth2 client plus refresh token.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	SpreadsheetID      string
	SpreadsheetName    string
	TimeZone           string
	BatchSize          int
	RetryAttempts      int
	RetryDelay         time.Duration
	EnableFormatting   bool
}

// DefaultConfig returns the settings used for keys left unset.
func DefaultConfig() Config {
	return Config{
		EnableFormatting: true,
		SpreadsheetName:  DefaultSpreadsheetName,
		TimeZone:         "Europe/Berlin",
		BatchSize:        500,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// Validate requires exactly one authentication method.
func (c *Config) Validate() error {
	oauth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	serviceAccount := c.ServiceAccountPath != ""

	switch {
	case !oauth && !serviceAccount:
		return fmt.Errorf("%w: sheets needs sheets.service_account_path or sheets.client_id, client_secret and refresh_token", common.ErrMissingConfig)
	case oauth && serviceAccount:
		return fmt.Errorf("%w: sheets has both a service account and OAuth2 credentials, keep one", common.ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: sheets.batch_size must be positive", common.ErrInvalidConfig)
	case c.RetryAttempts < 0 || c.RetryDelay < 0:
		return fmt.Errorf("%w: sheets retry settings cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) retryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  c.RetryAttempts,
		InitialDelay: c.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// SpreadsheetURL is the browser link of a spreadsheet.
func SpreadsheetURL(id string) string {
	return "https://docs.google.com/spreadsheets/d/" + id
}
