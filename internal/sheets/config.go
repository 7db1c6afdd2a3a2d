// Package sheets writes analytics reports to Google Sheets.
package sheets

import (
	"fmt"
	"time"

	"github.com/Veraticus/tally/internal/googleauth"
)

// DefaultSpreadsheetName is used when a new spreadsheet is created.
const DefaultSpreadsheetName = "Tally Report"

// Config holds the configuration for the Google Sheets writer.
type Config struct {
	Credentials      googleauth.Credentials
	SpreadsheetID    string
	SpreadsheetName  string
	TimeZone         string
	BatchSize        int
	RetryAttempts    int
	RetryDelay       time.Duration
	EnableFormatting bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SpreadsheetName:  DefaultSpreadsheetName,
		EnableFormatting: true,
		TimeZone:         "UTC",
		BatchSize:        1000,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
	}
}

// Validate checks the writer settings. Credentials are checked separately by
// NewWriter, since a writer can also wrap an existing service.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.SpreadsheetID == "" && c.SpreadsheetName == "" {
		return fmt.Errorf("spreadsheet id or name is required")
	}
	return nil
}
