// Package googleauth builds OAuth2 token sources for the Google APIs tally
// talks to: GA4 reporting and Sheets export.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/sheets/v4"
)

// Scopes requested by tally. Reports only need read access to Analytics.
var (
	ScopeAnalyticsReadonly = analyticsdata.AnalyticsReadonlyScope
	ScopeSpreadsheets      = sheets.SpreadsheetsScope
	DefaultScopes          = []string{ScopeAnalyticsReadonly, ScopeSpreadsheets}
)

// ErrNoCredentials means neither a service account nor a refresh token is configured.
var ErrNoCredentials = errors.New("no google credentials configured")

// Credentials selects one of two auth methods: a service account key file or
// an OAuth2 client with a stored refresh token.
type Credentials struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
}

// HasOAuth reports whether the OAuth2 client and refresh token are all set.
func (c Credentials) HasOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// Validate checks that exactly one auth method is configured.
func (c Credentials) Validate() error {
	hasOAuth := c.HasOAuth()
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return ErrNoCredentials
	}
	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("multiple authentication methods configured; use either OAuth2 or service account")
	}
	return nil
}

// TokenSource returns a token source for scopes.
func (c Credentials) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	if c.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(c.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		return jwtConfig.TokenSource(ctx), nil
	}

	token := &oauth2.Token{
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
	}
	return c.OAuthConfig("", scopes...).TokenSource(ctx, token), nil
}

// HTTPClient returns an authenticated client for scopes.
func (c Credentials) HTTPClient(ctx context.Context, scopes ...string) (*http.Client, error) {
	ts, err := c.TokenSource(ctx, scopes...)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// OAuthConfig returns the OAuth2 client configuration.
func (c Credentials) OAuthConfig(redirectURL string, scopes ...string) *oauth2.Config {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
}
