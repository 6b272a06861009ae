// Package streamdata signs requests to Streamdata.io proxies with an app token.
package streamdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/misc"
)

// TokenParameter carries the app token on every request.
const TokenParameter = "X-Sd-Token"

var _ auth.Authenticator = (*Authenticator)(nil)

type Authenticator struct {
	auth.APIKeyCodec
}

func New() *Authenticator {
	return &Authenticator{}
}

func (a *Authenticator) ServiceDefinition() auth.ServiceDefinition {
	return auth.ServiceDefinition{
		APIHost:      "streamdata.motwin.net",
		ServiceName:  "Streamdata",
		ShortName:    "streamdata",
		APIDocs:      "https://streamdata.io/developers/docs/",
		AccountsLink: "https://portal.streamdata.io/#/home",
	}
}

func (a *Authenticator) Hosts() []string {
	return []string{"streamdata.motwin.net", "stockmarket.streamdata.io"}
}

func (a *Authenticator) Intercept(req *http.Request, creds auth.Credentials) (*http.Request, error) {
	key, ok := creds.(auth.APIKey)
	if !ok {
		return nil, fmt.Errorf("streamdata: expected api key credentials, got %T", creds)
	}
	signed, err := misc.CloneRequest(req)
	if err != nil {
		return nil, err
	}
	query := signed.URL.Query()
	query.Set(TokenParameter, string(key))
	signed.URL.RawQuery = query.Encode()
	return signed, nil
}

func (a *Authenticator) Authorize(_ context.Context, env *auth.Env, _ []string) (auth.Credentials, error) {
	if env.Secrets == nil {
		return nil, fmt.Errorf("streamdata: no secret prompter configured")
	}
	key, err := env.Secrets.PromptScalar("Streamdata App Token", "streamdata.appKey", "", false)
	if err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed, fmt.Errorf("streamdata app token is required"))
	}
	return auth.APIKey(key), nil
}

// Validate performs no request; Streamdata has no identity endpoint, so the
// principal is the redacted key itself.
func (a *Authenticator) Validate(_ context.Context, _ auth.HTTPClient, creds auth.Credentials) (*auth.ValidatedCredentials, error) {
	key, ok := creds.(auth.APIKey)
	if !ok || key == "" {
		return nil, auth.NewAuthenticationError(auth.ErrCredentialsInvalid, fmt.Errorf("streamdata: missing app token"))
	}
	return &auth.ValidatedCredentials{Username: key.Redacted()}, nil
}
