package oauth1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yschimke/oksocial/internal/auth"
)

// Token holds the consumer and access token pairs needed to sign requests.
type Token struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	Token          string `json:"token"`
	Secret         string `json:"secret"`
}

// Redacted implements auth.Credentials.
func (t *Token) Redacted() string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("oauth1{consumer=%s token=%s}", auth.HideSecret(t.ConsumerKey), auth.HideSecret(t.Token))
}

// String keeps secrets out of formatted log lines.
func (t *Token) String() string {
	return t.Redacted()
}

// Signer returns a signer for requests made with t.
func (t *Token) Signer() *Signer {
	return &Signer{
		ConsumerKey:    t.ConsumerKey,
		ConsumerSecret: t.ConsumerSecret,
		Token:          t.Token,
		TokenSecret:    t.Secret,
	}
}

// ParseToken decodes the JSON storage form. The legacy comma separated
// "token,secret,consumerKey,consumerSecret" form is also accepted.
func ParseToken(s string) (*Token, error) {
	s = strings.TrimSpace(s)
	var token Token
	if strings.HasPrefix(s, "{") {
		if err := json.Unmarshal([]byte(s), &token); err != nil {
			return nil, fmt.Errorf("oauth1: invalid stored token: %w", err)
		}
	} else {
		parts := strings.Split(s, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("oauth1: expected token,secret,consumerKey,consumerSecret")
		}
		token = Token{Token: parts[0], Secret: parts[1], ConsumerKey: parts[2], ConsumerSecret: parts[3]}
	}
	if token.ConsumerKey == "" || token.Token == "" {
		return nil, fmt.Errorf("oauth1: stored token is incomplete")
	}
	return &token, nil
}

// FormatToken encodes t for storage.
func FormatToken(t *Token) (string, error) {
	if t == nil || t.ConsumerKey == "" || t.Token == "" {
		return "", fmt.Errorf("oauth1: token is incomplete")
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("oauth1: encode token: %w", err)
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

// AsToken asserts c is an OAuth1 token.
func AsToken(c auth.Credentials) (*Token, error) {
	token, ok := c.(*Token)
	if !ok || token == nil {
		return nil, fmt.Errorf("oauth1: expected *oauth1.Token credentials, got %T", c)
	}
	return token, nil
}

// Sign returns a signed copy of req using c.
func Sign(req *http.Request, c auth.Credentials) (*http.Request, error) {
	token, err := AsToken(c)
	if err != nil {
		return nil, err
	}
	return token.Signer().Sign(req)
}
