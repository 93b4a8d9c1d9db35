package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/mstodo/mstodo/internal/auth"
	"github.com/mstodo/mstodo/internal/config"
	"github.com/mstodo/mstodo/internal/logging"
)

const authCallbackPath = "/callback"

func newAuthCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in to Microsoft and store tokens",
		Long: `Perform an interactive OAuth2 sign-in against the Microsoft identity
platform. A temporary local HTTP listener receives the authorization code;
the resulting tokens are written to the credential file and picked up by the
MCP server automatically.

Requires MSTODO_CLIENT_ID and MSTODO_CLIENT_SECRET (an Azure app
registration with Tasks.ReadWrite delegated permission and a
http://localhost redirect URI).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runAuth(cmd.Context(), settings, listenAddr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "localhost:8765", "Local address for the OAuth redirect listener")

	return cmd
}

func runAuth(ctx context.Context, settings *config.Settings, listenAddr string) error {
	logger := logging.Setup(settings.LogFormat, settings.Debug)

	if settings.ClientID == "" || settings.ClientSecret == "" {
		return fmt.Errorf("MSTODO_CLIENT_ID and MSTODO_CLIENT_SECRET must be set for interactive sign-in")
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to start redirect listener on %s: %w", listenAddr, err)
	}
	defer func() { _ = listener.Close() }()

	oauthConfig := &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		Endpoint:     microsoft.AzureADEndpoint(settings.TenantID),
		RedirectURL:  fmt.Sprintf("http://%s%s", listener.Addr().String(), authCallbackPath),
		Scopes:       strings.Fields(auth.Scopes),
	}

	state, err := randomState()
	if err != nil {
		return err
	}

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(authCallbackPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callback{err: fmt.Errorf("state mismatch in OAuth callback")}
			return
		}
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			desc := r.URL.Query().Get("error_description")
			http.Error(w, "authorization failed", http.StatusBadRequest)
			results <- callback{err: fmt.Errorf("authorization failed: %s: %s", errParam, desc)}
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			results <- callback{err: fmt.Errorf("callback received no authorization code")}
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
		results <- callback{code: code}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(listener) }()
	defer func() { _ = srv.Close() }()

	authURL := oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Println("Open this URL in your browser to sign in:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Println("Waiting for the sign-in to complete...")

	var code string
	select {
	case result := <-results:
		if result.err != nil {
			return result.err
		}
		code = result.code
	case <-ctx.Done():
		return ctx.Err()
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	store, err := openStore(settings)
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	rec := &auth.Record{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.Add(-auth.ExpiryMargin).UnixMilli(),
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		TenantID:     settings.TenantID,
	}
	if err := store.Save(rec); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	logger.Info("sign-in complete",
		logging.Operation("auth"),
		logging.Status(logging.StatusSuccess))
	fmt.Printf("Tokens stored at %s\n", store.Path())
	return nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
