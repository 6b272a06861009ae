package auth

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/authtest"
	"github.com/yschimke/oksocial/internal/auth/dropbox"
	xoauth2 "golang.org/x/oauth2"
)

func newTestManager(t *testing.T, store Store, authenticators ...auth.Authenticator) (*Manager, *authtest.Browser) {
	t.Helper()
	registry, err := NewRegistry(authenticators...)
	require.NoError(t, err)
	browser := &authtest.Browser{}
	env := &auth.Env{Client: http.DefaultClient, Output: browser, Secrets: &authtest.Secrets{}, CallbackTimeout: 5 * time.Second}
	return NewManager(registry, store, env), browser
}

func TestAuthorizeEndToEndStoresToken(t *testing.T) {
	redirects := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		redirect := r.URL.Query().Get("redirect_uri")
		redirects <- redirect
		http.Redirect(w, r, redirect+"?code=abc123", http.StatusFound)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-xyz"}`))
	})
	provider := httptest.NewServer(mux)
	defer provider.Close()

	service := &dropbox.Authenticator{Endpoint: xoauth2.Endpoint{
		AuthURL:   provider.URL + "/authorize",
		TokenURL:  provider.URL + "/token",
		AuthStyle: xoauth2.AuthStyleInParams,
	}}
	store := NewFileTokenStore(t.TempDir())
	manager, browser := newTestManager(t, store, service)
	manager.env.Secrets = &authtest.Secrets{Values: map[string]string{"dropbox.clientId": "id", "dropbox.clientSecret": "secret"}}

	_, err := manager.Authorize(context.Background(), "dropbox", "", nil)
	require.NoError(t, err)
	browser.Wait()

	raw, ok, err := store.Read(context.Background(), "dropbox")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-xyz", raw)

	u, err := url.Parse(<-redirects)
	require.NoError(t, err)
	_, err = net.DialTimeout("tcp", "127.0.0.1:"+u.Port(), time.Second)
	assert.Error(t, err, "callback listener must be closed")
}

func TestAuthorizeWithExistingToken(t *testing.T) {
	t.Parallel()

	service := &fakeAuthenticator{name: "fake", hosts: []string{"api.fake.test"}, authorize: staticKey("never")}
	store := newMemoryStore(nil)
	manager, _ := newTestManager(t, store, service)

	creds, err := manager.Authorize(context.Background(), "", " supplied ", []string{"https://api.fake.test/v1/me"})
	require.NoError(t, err)
	assert.Equal(t, auth.APIKey("supplied"), creds)
	assert.Equal(t, 0, service.authorizeCalls())
	assert.Equal(t, "supplied", store.values["fake"])
}

func TestAuthorizeUnknownService(t *testing.T) {
	t.Parallel()

	manager, browser := newTestManager(t, newMemoryStore(nil))
	_, err := manager.Authorize(context.Background(), "nope", "", nil)
	var unknown *UnknownServiceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Hint)
	assert.Len(t, browser.Errors(), 1)
}

func TestAuthorizeFailureWritesNothing(t *testing.T) {
	t.Parallel()

	failure := auth.NewAuthenticationError(auth.ErrAuthorizationFailed, errors.New("access_denied"))
	service := &fakeAuthenticator{name: "fake", hosts: []string{"api.fake.test"}, authorize: func(context.Context) (auth.Credentials, error) {
		return nil, failure
	}}
	store := newMemoryStore(nil)
	manager, browser := newTestManager(t, store, service)

	_, err := manager.Authorize(context.Background(), "fake", "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrAuthorizationFailed))
	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, "authorize", stage.Stage)
	assert.Equal(t, 0, store.writes)
	assert.Len(t, browser.Errors(), 1)
}

func TestConcurrentAuthorizeFailsFast(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	service := &fakeAuthenticator{name: "fake", hosts: []string{"api.fake.test"}, authorize: func(ctx context.Context) (auth.Credentials, error) {
		close(started)
		<-release
		return auth.APIKey("first"), nil
	}}
	store := newMemoryStore(nil)
	manager, _ := newTestManager(t, store, service)

	done := make(chan error, 1)
	go func() {
		_, err := manager.Authorize(context.Background(), "fake", "", nil)
		done <- err
	}()
	<-started

	_, err := manager.Authorize(context.Background(), "fake", "", nil)
	assert.True(t, errors.Is(err, auth.ErrFlowAlreadyInProgress))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "first", store.values["fake"])

	service.authorize = staticKey("second")
	_, err = manager.Authorize(context.Background(), "fake", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", store.values["fake"])
}

func TestRenewNeverLeavesStoreEmpty(t *testing.T) {
	t.Parallel()

	inFlow := make(chan struct{})
	finish := make(chan error)
	service := &fakeAuthenticator{name: "fake", hosts: []string{"api.fake.test"}, authorize: func(context.Context) (auth.Credentials, error) {
		inFlow <- struct{}{}
		if err := <-finish; err != nil {
			return nil, err
		}
		return auth.APIKey("new"), nil
	}}
	store := newMemoryStore(map[string]string{"fake": "old"})
	manager, _ := newTestManager(t, store, service)

	run := func() <-chan error {
		done := make(chan error, 1)
		go func() {
			_, err := manager.Renew(context.Background(), "fake")
			done <- err
		}()
		return done
	}

	done := run()
	<-inFlow
	value, ok, _ := store.Read(context.Background(), "fake")
	assert.True(t, ok)
	assert.Equal(t, "old", value)
	finish <- auth.NewAuthenticationError(auth.ErrAuthorizationTimedOut, nil)
	assert.True(t, errors.Is(<-done, auth.ErrAuthorizationTimedOut))
	assert.Equal(t, "old", store.values["fake"])

	done = run()
	<-inFlow
	finish <- nil
	require.NoError(t, <-done)
	assert.Equal(t, "new", store.values["fake"])
}

func TestRenewUsesRefreshWhenSupported(t *testing.T) {
	t.Parallel()

	base := &fakeAuthenticator{name: "fake", hosts: []string{"api.fake.test"}, authorize: staticKey("interactive")}
	base.renew = func(creds auth.Credentials) (auth.Credentials, error) {
		return auth.APIKey(string(creds.(auth.APIKey)) + "-renewed"), nil
	}
	store := newMemoryStore(map[string]string{"fake": "refreshable"})
	manager, _ := newTestManager(t, store, renewingAuthenticator{base})

	creds, err := manager.Renew(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, auth.APIKey("refreshable-renewed"), creds)
	assert.Equal(t, 0, base.authorizeCalls())

	store.values["fake"] = "plain"
	creds, err = manager.Renew(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, auth.APIKey("interactive"), creds)
	assert.Equal(t, 1, base.authorizeCalls())
}

func TestShowCredentials(t *testing.T) {
	t.Parallel()

	services := []auth.Authenticator{
		&fakeAuthenticator{name: "alpha", hosts: []string{"alpha.test"}},
		&fakeAuthenticator{name: "beta", hosts: []string{"beta.test"}},
		&fakeAuthenticator{name: "gamma", hosts: []string{"gamma.test"}},
	}
	store := newMemoryStore(map[string]string{"alpha": "good-alpha-key", "beta": "bad-beta-key", "orphan": "x"})
	manager, browser := newTestManager(t, store, services...)

	reports, err := manager.ShowCredentials(context.Background(), nil, false)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "alpha", reports[0].Service)
	assert.Equal(t, "user-alpha", reports[0].Principal)
	assert.NotContains(t, reports[0].Credentials, "alpha-k")
	assert.Equal(t, "beta", reports[1].Service)
	assert.True(t, errors.Is(reports[1].Err, auth.ErrCredentialsInvalid))

	lines := browser.Infos()
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "alpha\tuser-alpha\t"))
	assert.Equal(t, 3, strings.Count(lines[1], "\t")+1)

	reports, err = manager.ShowCredentials(context.Background(), []string{"gamma", "alpha"}, true)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.True(t, errors.Is(reports[0].Err, ErrNoCredentials))
	assert.Equal(t, "good-alpha-key", reports[1].Credentials)

	assert.Empty(t, browser.Errors())
}

func TestShowCredentialsReportsUnknownService(t *testing.T) {
	t.Parallel()

	manager, browser := newTestManager(t, newMemoryStore(nil), &fakeAuthenticator{name: "alpha", hosts: []string{"alpha.test"}})
	_, err := manager.ShowCredentials(context.Background(), []string{"alpha", "unknown"}, false)
	var unknown *UnknownServiceError
	require.ErrorAs(t, err, &unknown)

	errs := browser.Errors()
	require.Len(t, errs, 1)
	assert.True(t, strings.HasPrefix(errs[0], "show-credentials failed: "), errs[0])
	assert.Contains(t, errs[0], "unknown")
	assert.Empty(t, browser.Infos())
}

func TestTransportSignsKnownHosts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("X-Key")))
	}))
	defer server.Close()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	service := &fakeAuthenticator{name: "fake", hosts: []string{u.Hostname()}}
	store := newMemoryStore(map[string]string{"fake": "secret-key"})
	manager, _ := newTestManager(t, store, service)
	client := &http.Client{Transport: manager.Transport(server.Client().Transport)}

	body := get(t, client, server.URL+"/anything")
	assert.Equal(t, "secret-key", body)

	require.NoError(t, store.Remove(context.Background(), "fake"))
	assert.Empty(t, get(t, client, server.URL+"/anything"))

	other, err := NewRegistry()
	require.NoError(t, err)
	unsigned := &http.Client{Transport: NewManager(other, store, nil).Transport(nil)}
	assert.Empty(t, get(t, unsigned, server.URL+"/anything"))
}

func get(t *testing.T, client *http.Client, target string) string {
	t.Helper()
	resp, err := client.Get(target)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
