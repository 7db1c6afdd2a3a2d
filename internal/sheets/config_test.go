package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		errMsg  string
		config  Config
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			config: DefaultConfig(),
		},
		{
			name: "zero retry delay is valid",
			config: Config{
				SpreadsheetID: "sheet-1",
				BatchSize:     100,
				RetryAttempts: 0, // No retries
				RetryDelay:    0, // No delay
			},
			wantErr: false,
		},
		{
			name: "invalid batch size",
			config: Config{
				SpreadsheetName: "Report",
				BatchSize:       0,
				RetryAttempts:   3,
				RetryDelay:      time.Second,
			},
			wantErr: true,
			errMsg:  "batch size must be positive",
		},
		{
			name: "negative retry attempts",
			config: Config{
				SpreadsheetName: "Report",
				BatchSize:       100,
				RetryAttempts:   -1,
				RetryDelay:      time.Second,
			},
			wantErr: true,
			errMsg:  "retry attempts cannot be negative",
		},
		{
			name: "negative retry delay",
			config: Config{
				SpreadsheetName: "Report",
				BatchSize:       100,
				RetryAttempts:   3,
				RetryDelay:      -1 * time.Second,
			},
			wantErr: true,
			errMsg:  "retry delay cannot be negative",
		},
		{
			name: "no spreadsheet",
			config: Config{
				BatchSize:     100,
				RetryAttempts: 3,
			},
			wantErr: true,
			errMsg:  "spreadsheet id or name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
