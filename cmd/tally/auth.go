package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/googleauth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
		Long:  `Authenticate with external services like Google Analytics and Google Sheets.`,
	}

	cmd.AddCommand(authGoogleCmd())

	return cmd
}

func authGoogleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "google",
		Short: "Authorize GA4 and Google Sheets access",
		Long: `Authorize tally to read Google Analytics 4 and write Google Sheets using OAuth2.

This command will:
1. Open your browser to authenticate with Google
2. Save the token next to your config
3. Update your config file with the refresh token

Service-account users can skip this and set google.service_account_path instead.`,
		RunE: runAuthGoogle,
	}

	cmd.Flags().String("client-id", "", "OAuth2 Client ID (overrides config)")
	cmd.Flags().String("client-secret", "", "OAuth2 Client Secret (overrides config)")
	cmd.Flags().String("addr", "localhost:8085", "local address for the OAuth callback")

	return cmd
}

func runAuthGoogle(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	creds := cfg.Google

	// Override with flags if provided
	if flagID, _ := cmd.Flags().GetString("client-id"); flagID != "" {
		creds.ClientID = flagID
	}
	if flagSecret, _ := cmd.Flags().GetString("client-secret"); flagSecret != "" {
		creds.ClientSecret = flagSecret
	}
	addr, _ := cmd.Flags().GetString("addr")

	tokenFile, err := tokenPath()
	if err != nil {
		return err
	}
	slog.Info("Starting Google authentication", "token_file", tokenFile)

	token, err := googleauth.Consent(ctx, creds, googleauth.ConsentOptions{
		Open: func(url string) error {
			fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("Opening "+url))
			return openBrowser(url)
		},
		Addr:      addr,
		TokenFile: tokenFile,
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	// Update config file with refresh token
	viper.Set("google.client_id", creds.ClientID)
	viper.Set("google.client_secret", creds.ClientSecret)
	viper.Set("google.refresh_token", token.RefreshToken)

	out := cmd.OutOrStdout()
	if err := saveConfig(); err != nil {
		slog.Warn("Failed to update config file with refresh token", "error", err)
		fmt.Fprintln(out, cli.FormatWarning("Could not save the refresh token; add this to your config.yaml:"))
		fmt.Fprintf(out, "google:\n  refresh_token: %q\n", token.RefreshToken)
		return nil
	}

	fmt.Fprintln(out, cli.FormatSuccess("Authentication successful!"))
	fmt.Fprintln(out, cli.FormatInfo("Run 'tally sync ga4' or 'tally export <id> --format sheets'."))
	return nil
}

func configDir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "tally"), nil
}

func tokenPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "google-token.json"), nil
}

func saveConfig() error {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		configFile = filepath.Join(dir, "config.yaml")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configFile), 0750); err != nil {
		return err
	}

	return viper.WriteConfigAs(configFile)
}

// openBrowser tries to open the URL in the default browser.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url).Start() //nolint:gosec,forbidigo
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start() //nolint:gosec,forbidigo
	case "darwin":
		return exec.Command("open", url).Start() //nolint:gosec,forbidigo
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
