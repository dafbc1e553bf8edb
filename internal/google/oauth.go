package google

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// consentTimeout bounds how long the loopback server waits for the
// user to complete the browser flow.
const consentTimeout = 5 * time.Minute

// LoadConsentConfig reads the operator-supplied OAuth client descriptor
// (client_secret.json) and returns a config requesting read-only Gmail
// access.
func LoadConsentConfig(clientSecretFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret file: %w", err)
	}

	conf, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret file: %w", err)
	}

	return conf, nil
}

// Authorize runs the browser-based consent flow. It starts a loopback
// HTTP server on a random port, directs the user to the consent URL via
// promptFn, and blocks until the flow completes, fails, or ctx is done.
// On approval it returns the exchanged token; a denied or failed flow
// returns an error and no token.
func Authorize(ctx context.Context, conf *oauth2.Config, promptFn func(authURL string)) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start local callback server: %w", err)
	}

	// Random port, so the redirect URL is only known now.
	redirectConf := *conf
	redirectConf.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr().String())

	state := uuid.NewString()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/", CallbackHandler(state, codeCh, errCh))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := redirectConf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	promptFn(authURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(consentTimeout):
		return nil, fmt.Errorf("consent flow timed out after %s", consentTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tok, err := redirectConf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	return tok, nil
}

// CallbackHandler handles the OAuth redirect. On success it delivers
// the authorization code to codeCh; on denial or state mismatch it
// delivers an error to errCh. Both channels must be buffered.
func CallbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if errCode := q.Get("error"); errCode != "" {
			http.Error(w, "Authorization denied. You can close this window.", http.StatusForbidden)
			errCh <- fmt.Errorf("consent denied: %s", errCode)
			return
		}

		if q.Get("state") != state {
			http.Error(w, "Invalid state parameter.", http.StatusBadRequest)
			errCh <- fmt.Errorf("state mismatch in OAuth callback")
			return
		}

		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
			errCh <- fmt.Errorf("missing authorization code in OAuth callback")
			return
		}

		fmt.Fprintln(w, "Authorization successful! You can close this window.")
		codeCh <- code
	})
}
