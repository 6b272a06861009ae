package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/auth/authtest"
	"github.com/yschimke/oksocial/internal/buildinfo"
	"github.com/yschimke/oksocial/internal/config"
	"github.com/yschimke/oksocial/internal/misc"
	sdkAuth "github.com/yschimke/oksocial/sdk/auth"
)

// localService signs requests to one test server host with an X-Key header.
type localService struct {
	auth.APIKeyCodec
	host string
}

func (s *localService) ServiceDefinition() auth.ServiceDefinition {
	return auth.ServiceDefinition{APIHost: s.host, ServiceName: "Local", ShortName: "local"}
}

func (s *localService) Hosts() []string { return []string{s.host} }

func (s *localService) Intercept(req *http.Request, creds auth.Credentials) (*http.Request, error) {
	signed, err := misc.CloneRequest(req)
	if err != nil {
		return nil, err
	}
	signed.Header.Set("X-Key", string(creds.(auth.APIKey)))
	return signed, nil
}

func (s *localService) Authorize(context.Context, *auth.Env, []string) (auth.Credentials, error) {
	return nil, errors.New("not interactive")
}

func (s *localService) Validate(context.Context, auth.HTTPClient, auth.Credentials) (*auth.ValidatedCredentials, error) {
	return &auth.ValidatedCredentials{Username: "local"}, nil
}

func newLocalApp(t *testing.T, server *httptest.Server, token string) (*App, *bytes.Buffer) {
	t.Helper()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	registry, err := sdkAuth.NewRegistry(&localService{host: u.Hostname()})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	env := &auth.Env{Client: server.Client(), Output: &authtest.Browser{Disabled: true}}
	return &App{
		Manager: sdkAuth.NewManager(registry, &sdkAuth.FixedTokenStore{Token: token}, env),
		Client:  server.Client(),
		Stdout:  out,
	}, out
}

func TestNewRequest(t *testing.T) {
	ctx := context.Background()

	req, err := NewRequest(ctx, "https://api.twitter.com/1.1/account/verify_credentials.json", Options{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, buildinfo.UserAgent(), req.Header.Get("User-Agent"))

	req, err = NewRequest(ctx, "https://api.twitter.com/1.1/statuses/update.json", Options{
		Data:    "status=hi",
		Headers: []string{"Accept: application/json", "X-Trace:  abc "},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "abc", req.Header.Get("X-Trace"))

	req, err = NewRequest(ctx, "https://api.dropboxapi.com/2/files/list_folder", Options{
		Method:  "put",
		Data:    `{"path":""}`,
		Headers: []string{"Content-Type: application/json"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	_, err = NewRequest(ctx, "https://example.com", Options{Headers: []string{"no-colon"}})
	assert.ErrorContains(t, err, "invalid header")

	_, err = NewRequest(ctx, "ftp://example.com/file", Options{})
	assert.ErrorContains(t, err, "unsupported URL")
}

func TestParseObjectEndpoint(t *testing.T) {
	tests := []struct {
		raw     string
		host    string
		ssl     bool
		wantErr bool
	}{
		{raw: "minio.local:9000", host: "minio.local:9000", ssl: true},
		{raw: "http://minio.local:9000/", host: "minio.local:9000", ssl: false},
		{raw: "https://s3.example.com/base/", host: "s3.example.com/base", ssl: true},
		{raw: "ftp://s3.example.com", wantErr: true},
		{raw: "https://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, ssl, err := ParseObjectEndpoint(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.ssl, ssl)
		})
	}
}

func TestExecuteSignsKnownHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("X-Key"))
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		_, _ = fmt.Fprintf(w, "echo:%s", body)
	}))
	defer server.Close()

	app, out := newLocalApp(t, server, "key-1")
	err := app.Run(context.Background(), Options{Args: []string{server.URL + "/v1/me"}, Data: "a=b"})
	require.NoError(t, err)
	assert.Equal(t, "echo:a=b", out.String())
}

func TestExecuteReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	app, out := newLocalApp(t, server, "key-1")
	err := app.Execute(context.Background(), Options{Args: []string{server.URL}})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Contains(t, out.String(), "nope")
}

func TestRunValidatesOptions(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	app, _ := newLocalApp(t, server, "k")

	assert.ErrorContains(t, app.Run(context.Background(), Options{}), "no URL given")
	assert.ErrorContains(t, app.Run(context.Background(), Options{Renew: true}), "requires a service name")
	assert.ErrorContains(t, app.Run(context.Background(), Options{Authorize: true, Renew: true}), "mutually exclusive")
}

func TestPrintServiceNames(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)
	out := &bytes.Buffer{}
	app := &App{Manager: sdkAuth.NewManager(registry, nil, nil), Stdout: out}

	require.NoError(t, app.Run(context.Background(), Options{ServiceNames: true}))
	assert.Equal(t, "dropbox\nfoursquare\nsquareup\nstreamdata\ntwitter\n", out.String())
}

func TestOpenStoreFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "auth")
	cfg := config.Default()
	cfg.AuthDir = dir

	s, closer, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closer()

	fileStore, ok := s.(*sdkAuth.FileTokenStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, sdkAuth.CredentialsFileName), fileStore.Path())
	assert.Same(t, s, sdkAuth.GetTokenStore())

	require.NoError(t, s.Write(context.Background(), "dropbox", "tok"))
	value, found, err := s.Read(context.Background(), "dropbox")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "tok", value)
}

func TestOpenStoreGit(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.AuthDir = dir
	cfg.Store.Type = config.StoreTypeGit

	s, closer, err := OpenStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closer()
	assert.DirExists(t, filepath.Join(dir, "gitstore", ".git"))
	require.NoError(t, s.Write(context.Background(), "twitter", `{"token":"t"}`))
}
