package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// APIKey is a static key credential.
type APIKey string

// Redacted masks all but the edges of the key.
func (k APIKey) Redacted() string {
	return HideSecret(string(k))
}

// String keeps keys out of formatted log lines.
func (k APIKey) String() string {
	return k.Redacted()
}

// HideSecret obscures a secret value while keeping enough of it to tell values apart.
func HideSecret(secret string) string {
	if len(secret) > 8 {
		return secret[:4] + "..." + secret[len(secret)-4:]
	} else if len(secret) > 4 {
		return secret[:2] + "..." + secret[len(secret)-2:]
	} else if len(secret) > 2 {
		return secret[:1] + "..." + secret[len(secret)-1:]
	}
	return strings.Repeat("*", len(secret))
}

// QueryJSON executes an already signed request and returns the JSON body.
// 401 and 403 map to ErrCredentialsInvalid, transport failures to ErrValidationTransport.
func QueryJSON(ctx context.Context, client HTTPClient, req *http.Request) (gjson.Result, error) {
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, NewAuthenticationError(ErrValidationTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, NewAuthenticationError(ErrValidationTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return gjson.Result{}, NewAuthenticationError(ErrCredentialsInvalid, fmt.Errorf("%s returned status %d", req.URL.Host, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return gjson.Result{}, fmt.Errorf("validate: %s returned status %d: %s", req.URL.Host, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("validate: %s returned invalid JSON", req.URL.Host)
	}
	return gjson.ParseBytes(body), nil
}

// ValidateWith signs req with a and queries it, returning the string at path as the principal.
func ValidateWith(ctx context.Context, client HTTPClient, a Authenticator, creds Credentials, req *http.Request, path string) (*ValidatedCredentials, error) {
	signed, err := a.Intercept(req, creds)
	if err != nil {
		return nil, err
	}
	result, err := QueryJSON(ctx, client, signed)
	if err != nil {
		return nil, err
	}
	username := result.Get(path).String()
	if username == "" {
		return nil, fmt.Errorf("validate: %s response missing %q", a.ServiceDefinition().ShortName, path)
	}
	return &ValidatedCredentials{Username: username}, nil
}
