// Package dropbox authenticates requests to the Dropbox HTTP API.
// See https://developer.dropbox.com/docs/authentication.
package dropbox

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/oauth2"
	xoauth2 "golang.org/x/oauth2"
)

const defaultAPIBase = "https://api.dropboxapi.com"

// Endpoint is Dropbox's OAuth2 endpoint.
var Endpoint = xoauth2.Endpoint{
	AuthURL:   "https://www.dropbox.com/oauth2/authorize",
	TokenURL:  "https://api.dropboxapi.com/oauth2/token",
	AuthStyle: xoauth2.AuthStyleInParams,
}

var (
	_ auth.Authenticator = (*Authenticator)(nil)
	_ auth.Renewer       = (*Authenticator)(nil)
)

// Authenticator signs Dropbox API requests with a bearer token.
type Authenticator struct {
	oauth2.Codec

	// APIBase and Endpoint are overridable for tests.
	APIBase  string
	Endpoint xoauth2.Endpoint
}

// New returns a Dropbox authenticator with production endpoints.
func New() *Authenticator {
	return &Authenticator{APIBase: defaultAPIBase, Endpoint: Endpoint}
}

func (a *Authenticator) ServiceDefinition() auth.ServiceDefinition {
	return auth.ServiceDefinition{
		APIHost:      "api.dropboxapi.com",
		ServiceName:  "Dropbox API",
		ShortName:    "dropbox",
		APIDocs:      "https://www.dropbox.com/developers/documentation/http/documentation",
		AccountsLink: "https://www.dropbox.com/developers/apps",
	}
}

func (a *Authenticator) Hosts() []string {
	return []string{"api.dropboxapi.com", "content.dropboxapi.com"}
}

// Intercept adds the bearer token. Dropbox RPC endpoints only accept POST, so a
// GET is coerced to a POST with an empty JSON object body.
func (a *Authenticator) Intercept(req *http.Request, creds auth.Credentials) (*http.Request, error) {
	signed, err := oauth2.Bearer(req, creds)
	if err != nil {
		return nil, err
	}
	if signed.Method == http.MethodGet {
		signed.Method = http.MethodPost
		signed.Body = io.NopCloser(strings.NewReader("{}"))
		signed.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("{}")), nil
		}
		signed.ContentLength = 2
		signed.Header.Set("Content-Type", "application/json")
	}
	return signed, nil
}

func (a *Authenticator) Authorize(ctx context.Context, env *auth.Env, _ []string) (auth.Credentials, error) {
	clientID, clientSecret, err := auth.PromptClient(env.Secrets, "Dropbox", "dropbox")
	if err != nil {
		return nil, err
	}

	flow := &oauth2.Flow{
		Config: xoauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     a.endpoint(),
		},
		AuthParams: map[string]string{"token_access_type": "offline"},
	}
	token, err := flow.Login(ctx, env)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken != "" {
		token.ClientID = clientID
		token.ClientSecret = clientSecret
	}
	return token, nil
}

func (a *Authenticator) Validate(ctx context.Context, client auth.HTTPClient, creds auth.Credentials) (*auth.ValidatedCredentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBase()+"/2/users/get_current_account", strings.NewReader("null"))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return auth.ValidateWith(ctx, client, a, creds, req, "email")
}

func (a *Authenticator) CanRenew(creds auth.Credentials) bool {
	token, err := oauth2.AsToken(creds)
	return err == nil && token.RefreshToken != "" && token.ClientID != ""
}

func (a *Authenticator) Renew(ctx context.Context, client auth.HTTPClient, creds auth.Credentials) (auth.Credentials, error) {
	token, err := oauth2.AsToken(creds)
	if err != nil {
		return nil, err
	}
	return oauth2.Refresh(ctx, client, a.endpoint(), token)
}

func (a *Authenticator) apiBase() string {
	if a.APIBase == "" {
		return defaultAPIBase
	}
	return strings.TrimRight(a.APIBase, "/")
}

func (a *Authenticator) endpoint() xoauth2.Endpoint {
	if a.Endpoint.TokenURL == "" {
		return Endpoint
	}
	return a.Endpoint
}
