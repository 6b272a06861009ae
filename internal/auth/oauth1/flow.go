package oauth1

import (
	"context"
	"fmt"
	"net/http"

	dgoauth1 "github.com/dghubble/oauth1"
	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/callback"
)

// Flow drives the three-legged OAuth1 dance for one provider.
type Flow struct {
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
	// CallbackPath overrides callback.DefaultPath.
	CallbackPath string

	// Noncer is passed to the token exchange signer.
	Noncer dgoauth1.Noncer
}

// Login obtains a request token, sends the user to the provider, captures the
// verifier and exchanges it for an access token. Request tokens never escape.
func (f *Flow) Login(ctx context.Context, env *auth.Env, consumerKey, consumerSecret string) (*Token, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if env == nil || env.Output == nil || env.Client == nil {
		return nil, fmt.Errorf("oauth1: client and output collaborators are required")
	}

	server, err := callback.Open(ctx, callback.Options{Path: f.CallbackPath})
	if err != nil {
		return nil, err
	}
	defer func() {
		if errClose := server.Close(); errClose != nil {
			log.Warnf("oauth1 callback server close error: %v", errClose)
		}
	}()

	config := NewConfig(consumerKey, consumerSecret, f.Noncer)
	config.CallbackURL = server.RedirectURI()
	config.Endpoint = dgoauth1.Endpoint{
		RequestTokenURL: f.RequestTokenURL,
		AuthorizeURL:    f.AuthorizeURL,
		AccessTokenURL:  f.AccessTokenURL,
	}
	config.HTTPClient = &http.Client{Transport: &contextTransport{ctx: ctx, client: env.Client}}

	requestToken, requestSecret, err := config.RequestToken()
	if err != nil {
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed, fmt.Errorf("request token: %w", err))
	}

	authURL, err := config.AuthorizationURL(requestToken)
	if err != nil {
		return nil, fmt.Errorf("oauth1: invalid authorize url: %w", err)
	}
	if errOpen := env.Output.OpenLink(ctx, authURL.String()); errOpen != nil {
		log.Warnf("Failed to open authorization link: %v", errOpen)
	}
	env.Output.Info("Waiting for authorization callback...")

	result, err := server.WaitForResult(ctx, env.Timeout())
	if err != nil {
		return nil, err
	}
	if result.Failed() {
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed,
			auth.NewOAuthError(result.Error, result.ErrorDescription, http.StatusBadRequest))
	}
	if result.OAuthVerifier == "" {
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed, fmt.Errorf("callback missing oauth_verifier"))
	}
	if result.OAuthToken != "" && result.OAuthToken != requestToken {
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed, fmt.Errorf("callback oauth_token does not match request token"))
	}

	accessToken, accessSecret, err := config.AccessToken(requestToken, requestSecret, result.OAuthVerifier)
	if err != nil {
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed, fmt.Errorf("access token: %w", err))
	}

	return &Token{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Token:          accessToken,
		Secret:         accessSecret,
	}, nil
}

// contextTransport sends the library's token requests through the
// configured client, bound to the login's context.
type contextTransport struct {
	ctx    context.Context
	client auth.HTTPClient
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req.WithContext(t.ctx))
}
