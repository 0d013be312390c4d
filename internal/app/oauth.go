package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/semmidev/dumpvault/internal/domain"
)

// DriveAuthorizer runs the one-off OAuth consent flow for a gdrive target
// and stores the resulting token where the target reads it.
type DriveAuthorizer struct {
	config    *oauth2.Config
	tokenPath string
	state     string
	logger    domain.Logger
	server    *http.Server
	tokens    chan *oauth2.Token
}

func NewDriveAuthorizer(logger domain.Logger, clientSecretPath, tokenPath, redirectURL string) (*DriveAuthorizer, error) {
	if clientSecretPath == "" {
		return nil, errors.New("client secret path cannot be empty")
	}
	if tokenPath == "" {
		return nil, errors.New("token path cannot be empty")
	}

	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}

	return &DriveAuthorizer{
		config:    cfg,
		tokenPath: tokenPath,
		state:     uuid.NewString(),
		logger:    logger,
		tokens:    make(chan *oauth2.Token, 1),
	}, nil
}

// AuthURL is the consent page the operator opens in a browser.
func (a *DriveAuthorizer) AuthURL() string {
	return a.config.AuthCodeURL(a.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Start serves the redirect and callback endpoints on addr.
func (a *DriveAuthorizer) Start(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, a.AuthURL(), http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != a.state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := a.config.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}
		if token.RefreshToken == "" {
			fmt.Fprintln(w, "⚠️ No refresh token returned. Revoke app access & re-authorize.")
			return
		}

		if err := a.saveToken(token); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		fmt.Fprintf(w, "✅ Token saved to %s. You can close this window.", a.tokenPath)
		select {
		case a.tokens <- token:
		default:
		}
	})

	a.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Infof("Google Drive OAuth server listening on %s", addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf("OAuth server error: %v", err)
		}
	}()
}

// Wait blocks until a token has been saved or ctx is done.
func (a *DriveAuthorizer) Wait(ctx context.Context) error {
	select {
	case <-a.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *DriveAuthorizer) saveToken(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	b, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(a.tokenPath, b, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	a.logger.Infof("Google Drive token written to %s", a.tokenPath)
	return nil
}

func (a *DriveAuthorizer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}
	return nil
}
