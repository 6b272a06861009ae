package dropbox

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/authtest"
	"github.com/yschimke/oksocial/internal/auth/oauth2"
	xoauth2 "golang.org/x/oauth2"
)

func TestInterceptCoercesGetToPost(t *testing.T) {
	t.Parallel()

	a := New()
	req, err := http.NewRequest(http.MethodGet, "https://api.dropboxapi.com/2/users/get_space_usage", nil)
	require.NoError(t, err)
	token := &oauth2.Token{AccessToken: "tok"}

	first, err := a.Intercept(req, token)
	require.NoError(t, err)
	second, err := a.Intercept(first, token)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Empty(t, req.Header.Get("Authorization"))

	for _, signed := range []*http.Request{first, second} {
		assert.Equal(t, http.MethodPost, signed.Method)
		assert.Equal(t, "Bearer tok", signed.Header.Get("Authorization"))
		assert.Equal(t, "application/json", signed.Header.Get("Content-Type"))
		body, errBody := io.ReadAll(signed.Body)
		require.NoError(t, errBody)
		assert.Equal(t, "{}", string(body))
	}
}

func TestInterceptRejectsWrongCredentials(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest(http.MethodGet, "https://api.dropboxapi.com/2/x", nil)
	require.NoError(t, err)
	_, err = New().Intercept(req, auth.APIKey("key"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/users/get_current_account", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"someone@example.com"}`))
	}))
	defer server.Close()

	a := &Authenticator{APIBase: server.URL}
	validated, err := a.Validate(context.Background(), server.Client(), &oauth2.Token{AccessToken: "good"})
	require.NoError(t, err)
	assert.Equal(t, "someone@example.com", validated.Username)

	_, err = a.Validate(context.Background(), server.Client(), &oauth2.Token{AccessToken: "bad"})
	assert.True(t, errors.Is(err, auth.ErrCredentialsInvalid))
}

func TestValidateTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	a := &Authenticator{APIBase: base}
	_, err := a.Validate(context.Background(), http.DefaultClient, &oauth2.Token{AccessToken: "tok"})
	assert.True(t, errors.Is(err, auth.ErrValidationTransport))
}

func TestAuthorizeKeepsClientForRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/authorize", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "offline", r.URL.Query().Get("token_access_type"))
		http.Redirect(w, r, r.URL.Query().Get("redirect_uri")+"?code=c1&state="+r.URL.Query().Get("state"), http.StatusFound)
	})
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a1","refresh_token":"r1","token_type":"bearer"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	a := &Authenticator{
		APIBase: server.URL,
		Endpoint: xoauth2.Endpoint{
			AuthURL:   server.URL + "/oauth2/authorize",
			TokenURL:  server.URL + "/oauth2/token",
			AuthStyle: xoauth2.AuthStyleInParams,
		},
	}
	env := &auth.Env{
		Client:          server.Client(),
		Output:          &authtest.Browser{},
		Secrets:         &authtest.Secrets{Values: map[string]string{"dropbox.clientId": "id", "dropbox.clientSecret": "secret"}},
		CallbackTimeout: 5 * time.Second,
	}

	creds, err := a.Authorize(context.Background(), env, nil)
	require.NoError(t, err)
	assert.Equal(t, &oauth2.Token{AccessToken: "a1", RefreshToken: "r1", ClientID: "id", ClientSecret: "secret"}, creds)
	assert.True(t, a.CanRenew(creds))
}
