//go:build integration
// +build integration

package sheets

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/Veraticus/tally/internal/analytics"
	"github.com/Veraticus/tally/internal/googleauth"
	"github.com/Veraticus/tally/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestWriter_Integration_ServiceAccount(t *testing.T) {
	serviceAccountPath := os.Getenv("TALLY_GOOGLE_SERVICE_ACCOUNT_PATH")
	if serviceAccountPath == "" {
		t.Skip("Service account path not available")
	}
	if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
		t.Skipf("Service account file does not exist: %s", serviceAccountPath)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	config := DefaultConfig()
	config.Credentials = googleauth.Credentials{ServiceAccountPath: serviceAccountPath}
	config.SpreadsheetID = os.Getenv("TALLY_SHEETS_TEST_SPREADSHEET_ID")
	config.SpreadsheetName = "Tally Report - Integration"

	writer, err := NewWriter(ctx, config, logger)
	require.NoError(t, err)

	report := analytics.BuildReport("integration", testutil.SampleRecordSet(),
		analytics.NewCalculator(analytics.DefaultTolerance), 30)
	id, err := writer.Write(ctx, &report)
	require.NoError(t, err)
	require.NotEmpty(t, id)
}
