package oauth1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/authtest"
)

// verifySignature recomputes the signature the way a provider would.
func verifySignature(t *testing.T, r *http.Request, consumerSecret, tokenSecret string) map[string]string {
	t.Helper()
	u, err := url.Parse(fmt.Sprintf("http://%s%s", r.Host, r.URL.RequestURI()))
	require.NoError(t, err)
	return providerSignature(t, r.Method, u, r.Header.Get("Authorization"), nil, consumerSecret, tokenSecret)
}

func newOAuth1Provider(t *testing.T, denied bool) *httptest.Server {
	t.Helper()
	var (
		mu          sync.Mutex
		callbackURL string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		params := verifySignature(t, r, "consumer-secret", "")
		assert.Equal(t, "consumer-key", params["oauth_consumer_key"])
		assert.Empty(t, params["oauth_token"])
		mu.Lock()
		callbackURL = params["oauth_callback"]
		mu.Unlock()
		_, _ = fmt.Fprint(w, "oauth_token=request-token&oauth_token_secret=request-secret&oauth_callback_confirmed=true")
	})
	mux.HandleFunc("/oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "request-token", r.URL.Query().Get("oauth_token"))
		mu.Lock()
		callbackURL := callbackURL
		mu.Unlock()
		if denied {
			http.Redirect(w, r, callbackURL+"?denied=request-token", http.StatusFound)
			return
		}
		http.Redirect(w, r, callbackURL+"?oauth_token=request-token&oauth_verifier=verifier-1", http.StatusFound)
	})
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		params := verifySignature(t, r, "consumer-secret", "request-secret")
		assert.Equal(t, "request-token", params["oauth_token"])
		assert.Equal(t, "verifier-1", params["oauth_verifier"])
		_, _ = fmt.Fprint(w, "oauth_token=access-token&oauth_token_secret=access-secret&screen_name=someone")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testFlow(server *httptest.Server) *Flow {
	return &Flow{
		RequestTokenURL: server.URL + "/oauth/request_token",
		AuthorizeURL:    server.URL + "/oauth/authorize",
		AccessTokenURL:  server.URL + "/oauth/access_token",
		Noncer:          NonceFunc(func() string { return "fixed-nonce" }),
	}
}

func TestOAuth1Login(t *testing.T) {
	server := newOAuth1Provider(t, false)
	browser := &authtest.Browser{}
	env := &auth.Env{Client: server.Client(), Output: browser, CallbackTimeout: 5 * time.Second}

	token, err := testFlow(server).Login(context.Background(), env, "consumer-key", "consumer-secret")
	require.NoError(t, err)
	assert.Equal(t, &Token{
		ConsumerKey:    "consumer-key",
		ConsumerSecret: "consumer-secret",
		Token:          "access-token",
		Secret:         "access-secret",
	}, token)
	browser.Wait()
}

func TestOAuth1LoginDenied(t *testing.T) {
	server := newOAuth1Provider(t, true)
	env := &auth.Env{Client: server.Client(), Output: &authtest.Browser{}, CallbackTimeout: 5 * time.Second}

	_, err := testFlow(server).Login(context.Background(), env, "consumer-key", "consumer-secret")
	assert.True(t, errors.Is(err, auth.ErrAuthorizationFailed))
}

func TestOAuth1LoginRequestTokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad consumer", http.StatusUnauthorized)
	}))
	defer server.Close()
	browser := &authtest.Browser{}
	env := &auth.Env{Client: server.Client(), Output: browser, CallbackTimeout: 5 * time.Second}

	_, err := testFlow(server).Login(context.Background(), env, "consumer-key", "consumer-secret")
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrAuthorizationFailed))
	assert.Contains(t, err.Error(), "bad consumer")
	assert.Empty(t, browser.Links())
}

func TestOAuth1LoginRequiresConfirmedCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "oauth_token=request-token&oauth_token_secret=request-secret")
	}))
	defer server.Close()
	browser := &authtest.Browser{}
	env := &auth.Env{Client: server.Client(), Output: browser, CallbackTimeout: 5 * time.Second}

	_, err := testFlow(server).Login(context.Background(), env, "consumer-key", "consumer-secret")
	assert.True(t, errors.Is(err, auth.ErrAuthorizationFailed))
	assert.Contains(t, err.Error(), "oauth_callback_confirmed")
	assert.Empty(t, browser.Links())
}

func TestOAuth1LoginHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)
	env := &auth.Env{Client: server.Client(), Output: &authtest.Browser{}, CallbackTimeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := testFlow(server).Login(ctx, env, "consumer-key", "consumer-secret")
	assert.True(t, errors.Is(err, auth.ErrAuthorizationFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOAuth1LoginTimesOut(t *testing.T) {
	server := newOAuth1Provider(t, false)
	env := &auth.Env{Client: server.Client(), Output: &authtest.Browser{Disabled: true}, CallbackTimeout: 100 * time.Millisecond}

	_, err := testFlow(server).Login(context.Background(), env, "consumer-key", "consumer-secret")
	assert.True(t, errors.Is(err, auth.ErrAuthorizationTimedOut))
}
