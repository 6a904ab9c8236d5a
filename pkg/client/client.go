// Package client provides OAuth2 client setup for the Google APIs the Gmail
// reader and Sheets writer call.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultTokenFile is where the OAuth token is cached.
	DefaultTokenFile = "data/token.json"
	// DefaultCallbackPort is the port for the local OAuth callback server.
	DefaultCallbackPort = 8085

	callbackPath  = "/callback"
	serverTimeout = 5 * time.Minute
)

// ErrNoToken is returned when no token is cached and the browser flow is disabled.
var ErrNoToken = errors.New("no oauth token cached")

// Config controls where credentials live and how a missing token is obtained.
type Config struct {
	// SecretFile is the Google OAuth client secret JSON.
	SecretFile string
	// TokenFile defaults to DefaultTokenFile.
	TokenFile string
	// CallbackPort defaults to DefaultCallbackPort.
	CallbackPort int
	// Interactive runs the browser consent flow when no token is cached.
	Interactive bool
	// Prompt receives the consent URL instructions. Defaults to os.Stdout.
	Prompt io.Writer
}

func (c *Config) setDefaults() {
	if c.TokenFile == "" {
		c.TokenFile = DefaultTokenFile
	}
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if c.Prompt == nil {
		c.Prompt = os.Stdout
	}
}

// New creates an HTTP client authorized for scopes with the credentials in
// cfg.SecretFile.
func New(ctx context.Context, cfg Config, scopes ...string) (*http.Client, error) {
	b, err := os.ReadFile(cfg.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}
	return NewFromJSON(ctx, b, cfg, scopes...)
}

// NewFromJSON is New with the client secret already in memory.
func NewFromJSON(ctx context.Context, secretJSON []byte, cfg Config, scopes ...string) (*http.Client, error) {
	cfg.setDefaults()

	oauthCfg, err := google.ConfigFromJSON(secretJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}

	tok, err := LoadToken(cfg.TokenFile)
	if err != nil {
		if !cfg.Interactive {
			return nil, fmt.Errorf("%w at %s (run `spendsense setup`)", ErrNoToken, cfg.TokenFile)
		}
		slog.Info("no existing token found, initiating OAuth flow")
		tok, err = tokenFromWeb(ctx, oauthCfg, cfg)
		if err != nil {
			return nil, err
		}
		if err := saveToken(cfg.TokenFile, tok); err != nil {
			slog.Error("failed to save token", "error", err)
		}
	}

	src := &savingSource{
		base: oauthCfg.TokenSource(context.WithoutCancel(ctx), tok),
		path: cfg.TokenFile,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(context.WithoutCancel(ctx), oauth2.ReuseTokenSource(tok, src)), nil
}

// savingSource writes refreshed tokens back to the cache file.
type savingSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			slog.Warn("failed to save refreshed token", "error", err)
		}
	}
	return tok, nil
}

func tokenFromWeb(ctx context.Context, oauthCfg *oauth2.Config, cfg Config) (*oauth2.Token, error) {
	oauthCfg.RedirectURL = fmt.Sprintf("http://localhost:%d%s", cfg.CallbackPort, callbackPath)

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server, err := startCallbackServer(ctx, cfg.CallbackPort, state, codeChan, errChan)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(cfg.Prompt, "\nOpening browser for Google authentication...\n")
	fmt.Fprintf(cfg.Prompt, "If the browser doesn't open automatically, visit this URL:\n%s\n\n", authURL)

	if err := openBrowser(ctx, authURL); err != nil {
		slog.Warn("failed to open browser automatically", "error", err)
	}

	select {
	case code := <-codeChan:
		tok, err := oauthCfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
		fmt.Fprintln(cfg.Prompt, "Authentication successful!")
		return tok, nil
	case err := <-errChan:
		return nil, fmt.Errorf("oauth callback error: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(serverTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", serverTimeout)
	}
}

// callbackHandler receives the authorization redirect. Exactly one of
// codeChan and errChan receives a value per request.
func callbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.Handler {
	report := func(err error) {
		select {
		case errChan <- err:
		default:
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			report(errors.New("invalid state parameter"))
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			report(fmt.Errorf("%s: %s", errMsg, q.Get("error_description")))
			http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			report(errors.New("no authorization code received"))
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<!DOCTYPE html>
<html><head><title>spendsense</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>Authentication successful</h1>
<p>You can close this window and return to the terminal.</p>
</body></html>`)

		select {
		case codeChan <- code:
		default:
		}
	})
}

func startCallbackServer(ctx context.Context, port int, state string, codeChan chan<- string, errChan chan<- error) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle(callbackPath, callbackHandler(state, codeChan, errChan))

	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", port, err)
	}

	go func() {
		slog.Debug("starting OAuth callback server", "port", port)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("callback server error", "error", err)
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	return server, nil
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// LoadToken reads the cached token at path.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return tok, nil
}

// HasToken reports whether a token is cached at path.
func HasToken(path string) bool {
	_, err := LoadToken(path)
	return err == nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}
