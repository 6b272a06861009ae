// Package squareup authenticates requests to the Square Connect API.
package squareup

import (
	"context"
	"net/http"
	"strings"

	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/oauth2"
	"github.com/yschimke/oksocial/internal/misc"
	xoauth2 "golang.org/x/oauth2"
)

const defaultAPIBase = "https://connect.squareup.com"

// Endpoint is Square's OAuth2 endpoint.
var Endpoint = xoauth2.Endpoint{
	AuthURL:   "https://connect.squareup.com/oauth2/authorize",
	TokenURL:  "https://connect.squareup.com/oauth2/token",
	AuthStyle: xoauth2.AuthStyleInParams,
}

// DefaultScopes are offered when no scopes were stored or passed as arguments.
var DefaultScopes = []string{
	"MERCHANT_PROFILE_READ",
	"PAYMENTS_READ",
	"SETTLEMENTS_READ",
	"BANK_ACCOUNTS_READ",
}

var (
	_ auth.Authenticator = (*Authenticator)(nil)
	_ auth.Renewer       = (*Authenticator)(nil)
)

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
		APIHost:      "connect.squareup.com",
		ServiceName:  "SquareUp API",
		ShortName:    "squareup",
		APIDocs:      "https://docs.connect.squareup.com/api/connect/v2/",
		AccountsLink: "https://connect.squareup.com/apps",
	}
}

func (a *Authenticator) Hosts() []string {
	return []string{"connect.squareup.com"}
}

// Intercept adds the bearer token and asks for JSON unless the caller chose a type.
func (a *Authenticator) Intercept(req *http.Request, creds auth.Credentials) (*http.Request, error) {
	signed, err := oauth2.Bearer(req, creds)
	if err != nil {
		return nil, err
	}
	misc.EnsureHeader(signed.Header, "Accept", "application/json")
	return signed, nil
}

// Authorize runs the code flow. Non-empty args replace the prompted scopes.
func (a *Authenticator) Authorize(ctx context.Context, env *auth.Env, args []string) (auth.Credentials, error) {
	if env.Output != nil {
		env.Output.Info("Authorising SquareUp API")
	}
	clientID, clientSecret, err := auth.PromptClient(env.Secrets, "SquareUp Application", "squareup")
	if err != nil {
		return nil, err
	}
	scopes := args
	if len(scopes) == 0 {
		scopes, err = env.Secrets.PromptList("Scopes", "squareup.scopes", DefaultScopes)
		if err != nil {
			return nil, err
		}
	}

	flow := &oauth2.Flow{
		Config: xoauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     a.endpoint(),
			Scopes:       scopes,
		},
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
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase()+"/v1/me", nil)
	if err != nil {
		return nil, err
	}
	return auth.ValidateWith(ctx, client, a, creds, req, "name")
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
