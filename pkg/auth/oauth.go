package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/taskslot/pkg/config"
	"github.com/harrisonrobin/taskslot/pkg/logging"
)

const (
	// ClientSecretsFile is the OAuth client downloaded from the Google Cloud console.
	ClientSecretsFile = "credentials.json"

	// TokenFile holds the access and refresh token obtained by the consent flow.
	TokenFile = "token.json"

	// LocalhostAuthPort is where the loopback server waits for the OAuth redirect.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// ErrNoToken is returned when no token is stored and the browser flow is not allowed.
var ErrNoToken = errors.New("no OAuth token found, run `taskslot auth` first")

// CalendarScopes are the scopes the scheduler needs: event writes and calendar list reads.
var CalendarScopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// GetConfig creates an oauth2.Config from the client secrets file in dir.
func GetConfig(dir string, scopes []string, log *zap.Logger) (*oauth2.Config, error) {
	log = logging.OrNop(log)
	clientSecretsFile := filepath.Join(dir, ClientSecretsFile)
	b, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", clientSecretsFile, err)
	}

	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	cfg.RedirectURL = loopbackRedirect(cfg.RedirectURL, log)
	return cfg, nil
}

// loopbackRedirect forces localhost and out-of-band redirect URIs onto
// LocalhostAuthPort, where getTokenFromWeb listens.
func loopbackRedirect(redirect string, log *zap.Logger) string {
	if redirect == "urn:ietf:wg:oauth:2.0:oob" {
		forced := fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
		log.Info("overriding out-of-band redirect URL", zap.String("redirect_url", forced))
		return forced
	}
	parsed, err := url.Parse(redirect)
	if err != nil {
		log.Warn("could not parse redirect URL, using it as is", zap.String("redirect_url", redirect), zap.Error(err))
		return redirect
	}
	if parsed.Hostname() != "localhost" && parsed.Hostname() != "127.0.0.1" {
		log.Warn("redirect URL is not a localhost callback", zap.String("redirect_url", redirect))
		return redirect
	}
	if parsed.Port() != LocalhostAuthPort {
		if parsed.Port() != "" {
			log.Warn("credentials.json redirect port differs, forcing local port",
				zap.String("configured", parsed.Port()), zap.String("port", LocalhostAuthPort))
		}
		parsed.Host = net.JoinHostPort(parsed.Hostname(), LocalhostAuthPort)
	}
	return parsed.String()
}

// GetClient returns an *http.Client that refreshes the stored token as needed.
// Without a stored token it runs the browser consent flow when interactive is
// true and fails with ErrNoToken otherwise.
func GetClient(ctx context.Context, scopes []string, interactive bool, log *zap.Logger) (*http.Client, error) {
	dir, err := config.GetXdgHome()
	if err != nil {
		return nil, err
	}
	return clientFromDir(ctx, dir, scopes, interactive, log)
}

func clientFromDir(ctx context.Context, dir string, scopes []string, interactive bool, log *zap.Logger) (*http.Client, error) {
	log = logging.OrNop(log)
	tokenFile := filepath.Join(dir, TokenFile)
	tok, tokErr := tokenFromFile(tokenFile)
	if tokErr != nil && !interactive {
		if errors.Is(tokErr, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, tokErr
	}

	cfg, err := GetConfig(dir, scopes, log)
	if err != nil {
		return nil, err
	}

	if tokErr != nil {
		log.Info("no usable token, starting web authorization flow", zap.String("token_file", tokenFile))
		tok, err = getTokenFromWeb(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveToken(tokenFile, tok); err != nil {
			return nil, err
		}
	}

	src := &savingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenFile,
		last: tok,
		log:  log,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Authorize always runs the consent flow and stores the new token.
func Authorize(ctx context.Context, scopes []string, log *zap.Logger) error {
	dir, err := config.GetXdgHome()
	if err != nil {
		return err
	}
	cfg, err := GetConfig(dir, scopes, log)
	if err != nil {
		return err
	}
	tok, err := getTokenFromWeb(ctx, cfg, logging.OrNop(log))
	if err != nil {
		return fmt.Errorf("failed to get token from web: %w", err)
	}
	return saveToken(filepath.Join(dir, TokenFile), tok)
}

// savingTokenSource persists refreshed tokens so the next process starts
// with a valid access token.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string
	last *oauth2.Token
	log  *zap.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.log.Warn("could not save refreshed token", zap.Error(err))
		} else {
			s.log.Debug("saved refreshed token", zap.String("token_file", s.path))
		}
		s.last = tok
	}
	return tok, nil
}

// getTokenFromWeb runs the authorization code flow through a loopback server.
func getTokenFromWeb(ctx context.Context, cfg *oauth2.Config, log *zap.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}

	state := uuid.NewString()
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "State mismatch", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprint(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Please open the following URL in your browser to authorize taskslot:\n%s\n", authURL)
	log.Info("waiting for authorization code", zap.String("redirect_url", cfg.RedirectURL))

	timer := time.NewTimer(authTimeout)
	defer timer.Stop()

	select {
	case code := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(exCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errors.New("authorization timed out, please try again")
	}
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

// saveToken writes the token owner-readable only.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("unable to encode OAuth token: %w", err)
	}
	return nil
}

// GetCalendarService creates an authenticated Google Calendar service.
func GetCalendarService(ctx context.Context, interactive bool, log *zap.Logger) (*calendar.Service, error) {
	client, err := GetClient(ctx, CalendarScopes, interactive, log)
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client for Calendar API: %w", err)
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Google Calendar service: %w", err)
	}
	return srv, nil
}
