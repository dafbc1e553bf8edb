package google

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
)

// ServiceAccountClient returns an HTTP client authenticated as the
// service account described by the given key file, with the requested
// scopes. Used for all Drive access to the token handoff folder.
func ServiceAccountClient(ctx context.Context, keyFile string, scopes ...string) (*http.Client, error) {
	b, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}

	conf, err := google.JWTConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}

	return conf.Client(ctx), nil
}
