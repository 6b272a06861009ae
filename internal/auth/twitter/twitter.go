// Package twitter signs Twitter API requests with OAuth1 user tokens.
package twitter

import (
	"context"
	"net/http"
	"strings"

	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/oauth1"
)

const defaultAPIBase = "https://api.twitter.com"

var _ auth.Authenticator = (*Authenticator)(nil)

type Authenticator struct {
	oauth1.Codec

	// APIBase hosts both the OAuth endpoints and the REST API.
	APIBase string
}

func New() *Authenticator {
	return &Authenticator{APIBase: defaultAPIBase}
}

func (a *Authenticator) ServiceDefinition() auth.ServiceDefinition {
	return auth.ServiceDefinition{
		APIHost:      "api.twitter.com",
		ServiceName:  "Twitter API",
		ShortName:    "twitter",
		APIDocs:      "https://developer.twitter.com/en/docs",
		AccountsLink: "https://apps.twitter.com/",
	}
}

func (a *Authenticator) Hosts() []string {
	return []string{"api.twitter.com", "upload.twitter.com", "stream.twitter.com"}
}

func (a *Authenticator) Intercept(req *http.Request, creds auth.Credentials) (*http.Request, error) {
	return oauth1.Sign(req, creds)
}

// Authorize runs the callback based three-legged flow for the prompted consumer key.
func (a *Authenticator) Authorize(ctx context.Context, env *auth.Env, _ []string) (auth.Credentials, error) {
	consumerKey, consumerSecret, err := auth.PromptClient(env.Secrets, "Twitter Consumer", "twitter")
	if err != nil {
		return nil, err
	}
	base := a.apiBase()
	flow := &oauth1.Flow{
		RequestTokenURL: base + "/oauth/request_token",
		AuthorizeURL:    base + "/oauth/authorize",
		AccessTokenURL:  base + "/oauth/access_token",
	}
	return flow.Login(ctx, env, consumerKey, consumerSecret)
}

func (a *Authenticator) Validate(ctx context.Context, client auth.HTTPClient, creds auth.Credentials) (*auth.ValidatedCredentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase()+"/1.1/account/verify_credentials.json", nil)
	if err != nil {
		return nil, err
	}
	return auth.ValidateWith(ctx, client, a, creds, req, "screen_name")
}

func (a *Authenticator) apiBase() string {
	if a.APIBase == "" {
		return defaultAPIBase
	}
	return strings.TrimRight(a.APIBase, "/")
}
