package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// tokenFilePrefix and tokenFileSuffix form the per-user artifact
	// naming convention: user_token_<identifier>.json.
	tokenFilePrefix = "user_token_"
	tokenFileSuffix = ".json"
)

// AuthorizedUserFile is the on-disk credential artifact for one user.
// The shape follows Google's "authorized user" JSON so the same file is
// readable by any vendor SDK.
type AuthorizedUserFile struct {
	Type         string    `json:"type"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	RefreshToken string    `json:"refresh_token"`
	AccessToken  string    `json:"token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// SanitizeUserID maps a Gmail address to a filename-safe identifier by
// replacing "@" and "." with underscores, matching the artifact naming
// convention.
func SanitizeUserID(email string) string {
	r := strings.NewReplacer("@", "_", ".", "_")
	return r.Replace(email)
}

// TokenFileName returns the artifact filename for a user identifier.
func TokenFileName(userID string) string {
	return tokenFilePrefix + userID + tokenFileSuffix
}

// UserFromTokenFile extracts the user identifier from an artifact
// filename. Returns false if the name does not follow the convention.
func UserFromTokenFile(name string) (string, bool) {
	if !strings.HasPrefix(name, tokenFilePrefix) || !strings.HasSuffix(name, tokenFileSuffix) {
		return "", false
	}
	user := strings.TrimSuffix(strings.TrimPrefix(name, tokenFilePrefix), tokenFileSuffix)
	if user == "" {
		return "", false
	}
	return user, true
}

// WriteTokenFile writes the credential artifact for a completed consent
// flow. The client ID and secret are embedded so the service side can
// refresh the access token without access to the original
// client_secret.json.
func WriteTokenFile(path string, conf *oauth2.Config, tok *oauth2.Token) error {
	if tok.RefreshToken == "" {
		return fmt.Errorf("token has no refresh token; re-run consent with offline access")
	}

	artifact := AuthorizedUserFile{
		Type:         "authorized_user",
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		RefreshToken: tok.RefreshToken,
		AccessToken:  tok.AccessToken,
		Expiry:       tok.Expiry,
		Scopes:       conf.Scopes,
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token artifact: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token artifact: %w", err)
	}

	return nil
}

// ReadTokenFile parses a credential artifact from disk.
func ReadTokenFile(path string) (*AuthorizedUserFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token artifact: %w", err)
	}

	var artifact AuthorizedUserFile
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse token artifact: %w", err)
	}

	if artifact.RefreshToken == "" {
		return nil, fmt.Errorf("token artifact has no refresh token")
	}

	return &artifact, nil
}

// TokenSource builds an auto-refreshing oauth2.TokenSource from the
// artifact. Refresh negotiation is fully delegated to the oauth2
// library.
func (a *AuthorizedUserFile) TokenSource(ctx context.Context) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       a.Scopes,
	}

	tok := &oauth2.Token{
		AccessToken:  a.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: a.RefreshToken,
		Expiry:       a.Expiry,
	}
	if tok.Expiry.IsZero() {
		// Force an immediate refresh when no expiry was recorded.
		tok.Expiry = time.Unix(1, 0)
	}

	return conf.TokenSource(ctx, tok)
}
