// Package oauth2 implements the OAuth2 authorization flow engine and the
// bearer token credential shared by OAuth2 services.
package oauth2

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/misc"
)

// Token stores OAuth2 credentials for one service.
type Token struct {
	// AccessToken is the bearer token sent with every request.
	AccessToken string `json:"access_token"`
	// RefreshToken is used to obtain new access tokens when the provider issues one.
	RefreshToken string `json:"refresh_token,omitempty"`
	// ClientID and ClientSecret are kept so a refresh can run without prompting.
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Redacted implements auth.Credentials.
func (t *Token) Redacted() string {
	if t == nil {
		return "<nil>"
	}
	if t.RefreshToken != "" {
		return fmt.Sprintf("oauth2{access=%s refresh=%s}", auth.HideSecret(t.AccessToken), auth.HideSecret(t.RefreshToken))
	}
	return fmt.Sprintf("oauth2{access=%s}", auth.HideSecret(t.AccessToken))
}

// String keeps tokens out of formatted log lines.
func (t *Token) String() string {
	return t.Redacted()
}

// ParseToken decodes the storage form produced by FormatToken. A bare string
// is an access token on its own, which is also what --token accepts.
func ParseToken(s string) (*Token, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("oauth2: empty token")
	}
	if !strings.HasPrefix(s, "{") {
		return &Token{AccessToken: s}, nil
	}
	var token Token
	if err := json.Unmarshal([]byte(s), &token); err != nil {
		return nil, fmt.Errorf("oauth2: invalid stored token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("oauth2: stored token has no access_token")
	}
	return &token, nil
}

// FormatToken encodes t for storage.
func FormatToken(t *Token) (string, error) {
	if t == nil || t.AccessToken == "" {
		return "", fmt.Errorf("oauth2: token is empty")
	}
	if t.RefreshToken == "" && t.ClientID == "" && t.ClientSecret == "" && !strings.HasPrefix(t.AccessToken, "{") {
		return t.AccessToken, nil
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("oauth2: encode token: %w", err)
	}
	return string(raw), nil
}

// Codec provides the credential codec methods of auth.Authenticator for Token based services.
type Codec struct{}

func (Codec) ParseCredentials(s string) (auth.Credentials, error) {
	return ParseToken(s)
}

func (Codec) FormatCredentials(c auth.Credentials) (string, error) {
	token, err := AsToken(c)
	if err != nil {
		return "", err
	}
	return FormatToken(token)
}

// AsToken asserts c is an OAuth2 token.
func AsToken(c auth.Credentials) (*Token, error) {
	token, ok := c.(*Token)
	if !ok || token == nil {
		return nil, fmt.Errorf("oauth2: expected *oauth2.Token credentials, got %T", c)
	}
	return token, nil
}

// Bearer returns a copy of req carrying the access token in the Authorization header.
func Bearer(req *http.Request, c auth.Credentials) (*http.Request, error) {
	token, err := AsToken(c)
	if err != nil {
		return nil, err
	}
	signed, err := misc.CloneRequest(req)
	if err != nil {
		return nil, err
	}
	signed.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return signed, nil
}
