package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/callback"
	"github.com/yschimke/oksocial/internal/misc"
	xoauth2 "golang.org/x/oauth2"
)

// ResponseTypeToken selects the implicit flow where the token arrives in the redirect.
const ResponseTypeToken = "token"

// Flow drives one OAuth2 authorization. It holds no state between logins.
type Flow struct {
	// Config carries the client id/secret, endpoints and scopes. RedirectURL is
	// overwritten with the local listener's URI.
	Config xoauth2.Config
	// ResponseType is "code" when empty; ResponseTypeToken selects the implicit flow.
	ResponseType string
	// AuthParams are extra authorization URL parameters.
	AuthParams map[string]string
	// CallbackPath overrides callback.DefaultPath.
	CallbackPath string
}

func (f *Flow) implicit() bool {
	return f.ResponseType == ResponseTypeToken
}

// Login opens the local listener, sends the user to the provider and waits for
// the redirect. Code flows then exchange the code at the token endpoint.
func (f *Flow) Login(ctx context.Context, env *auth.Env) (*Token, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if env == nil || env.Output == nil {
		return nil, fmt.Errorf("oauth2: output collaborator is required")
	}

	server, err := callback.Open(ctx, callback.Options{Path: f.CallbackPath, RelayFragment: f.implicit()})
	if err != nil {
		return nil, err
	}
	defer func() {
		if errClose := server.Close(); errClose != nil {
			log.Warnf("oauth2 callback server close error: %v", errClose)
		}
	}()

	cfg := f.Config
	cfg.RedirectURL = server.RedirectURI()

	state, err := misc.GenerateRandomState()
	if err != nil {
		return nil, fmt.Errorf("oauth2 state generation failed: %w", err)
	}

	opts := make([]xoauth2.AuthCodeOption, 0, len(f.AuthParams)+1)
	if f.implicit() {
		opts = append(opts, xoauth2.SetAuthURLParam("response_type", ResponseTypeToken))
	}
	for key, value := range f.AuthParams {
		opts = append(opts, xoauth2.SetAuthURLParam(key, value))
	}
	authURL := cfg.AuthCodeURL(state, opts...)

	if errOpen := env.Output.OpenLink(ctx, authURL); errOpen != nil {
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
	if result.State == "" {
		log.Debug("OAuth callback carried no state parameter")
	} else if result.State != state {
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed, fmt.Errorf("state mismatch"))
	}

	if f.implicit() {
		if result.AccessToken == "" {
			return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed, fmt.Errorf("callback missing access_token"))
		}
		return &Token{AccessToken: result.AccessToken}, nil
	}
	if result.Code == "" {
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationFailed, fmt.Errorf("callback missing code"))
	}

	log.Debug("Authorization code received; exchanging for tokens")
	tok, err := cfg.Exchange(withClient(ctx, env.Client), result.Code)
	if err != nil {
		return nil, exchangeError(err)
	}
	return &Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// Refresh exchanges the refresh token held by token for a new access token.
func Refresh(ctx context.Context, client auth.HTTPClient, endpoint xoauth2.Endpoint, token *Token) (*Token, error) {
	if token == nil || token.RefreshToken == "" {
		return nil, fmt.Errorf("oauth2: no refresh token")
	}
	cfg := xoauth2.Config{
		ClientID:     token.ClientID,
		ClientSecret: token.ClientSecret,
		Endpoint:     endpoint,
	}
	source := cfg.TokenSource(withClient(ctx, client), &xoauth2.Token{RefreshToken: token.RefreshToken})
	tok, err := source.Token()
	if err != nil {
		return nil, exchangeError(err)
	}
	refreshed := *token
	refreshed.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	return &refreshed, nil
}

func exchangeError(err error) error {
	var retrieveErr *xoauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		code := retrieveErr.ErrorCode
		if code == "" {
			code = fmt.Sprintf("http_%d", status)
		}
		return auth.NewAuthenticationError(auth.ErrAuthorizationFailed,
			auth.NewOAuthError(code, retrieveErr.ErrorDescription, status))
	}
	return auth.NewAuthenticationError(auth.ErrAuthorizationFailed, err)
}

// withClient routes x/oauth2 token requests through client.
func withClient(ctx context.Context, client auth.HTTPClient) context.Context {
	if client == nil {
		return ctx
	}
	if httpClient, ok := client.(*http.Client); ok {
		return context.WithValue(ctx, xoauth2.HTTPClient, httpClient)
	}
	return context.WithValue(ctx, xoauth2.HTTPClient, &http.Client{Transport: doerTransport{client}})
}

type doerTransport struct {
	client auth.HTTPClient
}

func (t doerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}
