package googleauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// ConsentTimeout bounds how long the interactive flow waits for the browser.
const ConsentTimeout = 5 * time.Minute

// ConsentOptions configures the interactive consent flow.
type ConsentOptions struct {
	// Open is called with the consent URL; when nil the URL is only logged.
	Open      func(url string) error
	Logger    *slog.Logger
	Addr      string // callback listener, default "localhost:8085"
	TokenFile string // where to save the token, optional
	Scopes    []string
}

// Consent runs the installed-app OAuth2 flow: it serves a one-shot callback
// on a local port, waits for the authorization code and exchanges it for a
// token carrying a refresh token.
func Consent(ctx context.Context, creds Credentials, opts ConsentOptions) (*oauth2.Token, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("client id and secret are required for consent: %w", ErrNoCredentials)
	}
	if opts.Addr == "" {
		opts.Addr = "localhost:8085"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	oauthConfig := creds.OAuthConfig("http://"+listener.Addr().String()+"/callback", opts.Scopes...)

	state, err := randomState()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			sendErr(errorChan, errors.New("oauth state mismatch"))
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "no authorization code received", http.StatusBadRequest)
			sendErr(errorChan, fmt.Errorf("no authorization code received: %s", q.Get("error")))
			return
		}
		_, _ = fmt.Fprint(w, "Authentication successful. You can close this window.")
		select {
		case codeChan <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			sendErr(errorChan, fmt.Errorf("callback server failed: %w", serveErr))
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	opts.Logger.Info("Google authentication required", "url", authURL)
	if opts.Open != nil {
		if openErr := opts.Open(authURL); openErr != nil {
			opts.Logger.Warn("failed to open browser", "error", openErr)
		}
	}

	var code string
	select {
	case code = <-codeChan:
	case err := <-errorChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(ConsentTimeout):
		return nil, fmt.Errorf("authentication timeout: no response within %s", ConsentTimeout)
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if opts.TokenFile != "" {
		if err := SaveToken(opts.TokenFile, token); err != nil {
			opts.Logger.Warn("failed to save token", "file", opts.TokenFile, "error", err)
		}
	}
	return token, nil
}

// LoadToken reads a token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

// SaveToken writes token as JSON with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
