// Package foursquare authenticates requests to the Foursquare v2 API.
package foursquare

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/oauth2"
	"github.com/yschimke/oksocial/internal/misc"
	xoauth2 "golang.org/x/oauth2"
)

const (
	defaultAPIBase = "https://api.foursquare.com"
	// APIVersion is sent as the v parameter; Foursquare versions responses by date.
	APIVersion = "20160603"
)

// Endpoint is Foursquare's OAuth2 endpoint. The token exchange expects
// credentials as query or form parameters.
var Endpoint = xoauth2.Endpoint{
	AuthURL:   "https://foursquare.com/oauth2/authenticate",
	TokenURL:  "https://foursquare.com/oauth2/access_token",
	AuthStyle: xoauth2.AuthStyleInParams,
}

var _ auth.Authenticator = (*Authenticator)(nil)

type Authenticator struct {
	oauth2.Codec

	APIBase  string
	Endpoint xoauth2.Endpoint
}

func New() *Authenticator {
	return &Authenticator{APIBase: defaultAPIBase, Endpoint: Endpoint}
}

func (a *Authenticator) ServiceDefinition() auth.ServiceDefinition {
	return auth.ServiceDefinition{
		APIHost:      "api.foursquare.com",
		ServiceName:  "FourSquare API",
		ShortName:    "foursquare",
		APIDocs:      "https://developer.foursquare.com/docs/",
		AccountsLink: "https://foursquare.com/developers/apps",
	}
}

func (a *Authenticator) Hosts() []string {
	return []string{"api.foursquare.com"}
}

// Intercept sends the token as the oauth_token query parameter.
func (a *Authenticator) Intercept(req *http.Request, creds auth.Credentials) (*http.Request, error) {
	token, err := oauth2.AsToken(creds)
	if err != nil {
		return nil, err
	}
	signed, err := misc.CloneRequest(req)
	if err != nil {
		return nil, err
	}
	query := signed.URL.Query()
	query.Set("oauth_token", token.AccessToken)
	if query.Get("v") == "" {
		query.Set("v", APIVersion)
	}
	signed.URL.RawQuery = query.Encode()
	return signed, nil
}

func (a *Authenticator) Authorize(ctx context.Context, env *auth.Env, _ []string) (auth.Credentials, error) {
	clientID, clientSecret, err := auth.PromptClient(env.Secrets, "FourSquare Application", "foursquare")
	if err != nil {
		return nil, err
	}
	flow := &oauth2.Flow{
		Config: xoauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     a.endpoint(),
		},
	}
	return flow.Login(ctx, env)
}

func (a *Authenticator) Validate(ctx context.Context, client auth.HTTPClient, creds auth.Credentials) (*auth.ValidatedCredentials, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase()+"/v2/users/self", nil)
	if err != nil {
		return nil, err
	}
	return auth.ValidateWith(ctx, client, a, creds, req, "response.user.firstName")
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
