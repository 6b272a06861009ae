package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/misc"
)

// fakeAuthenticator issues API keys from a scripted authorize function.
type fakeAuthenticator struct {
	auth.APIKeyCodec

	name      string
	hosts     []string
	authorize func(ctx context.Context) (auth.Credentials, error)
	renew     func(creds auth.Credentials) (auth.Credentials, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeAuthenticator) ServiceDefinition() auth.ServiceDefinition {
	return auth.ServiceDefinition{APIHost: f.hosts[0], ServiceName: strings.ToUpper(f.name), ShortName: f.name}
}

func (f *fakeAuthenticator) Hosts() []string { return f.hosts }

func (f *fakeAuthenticator) Intercept(req *http.Request, creds auth.Credentials) (*http.Request, error) {
	key, ok := creds.(auth.APIKey)
	if !ok {
		return nil, fmt.Errorf("unexpected credentials %T", creds)
	}
	signed, err := misc.CloneRequest(req)
	if err != nil {
		return nil, err
	}
	signed.Header.Set("X-Key", string(key))
	return signed, nil
}

func (f *fakeAuthenticator) Authorize(ctx context.Context, _ *auth.Env, _ []string) (auth.Credentials, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.authorize(ctx)
}

func (f *fakeAuthenticator) Validate(_ context.Context, _ auth.HTTPClient, creds auth.Credentials) (*auth.ValidatedCredentials, error) {
	key := creds.(auth.APIKey)
	if strings.HasPrefix(string(key), "bad") {
		return nil, auth.NewAuthenticationError(auth.ErrCredentialsInvalid, nil)
	}
	return &auth.ValidatedCredentials{Username: "user-" + f.name}, nil
}

func (f *fakeAuthenticator) authorizeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// renewingAuthenticator adds refresh support to fakeAuthenticator.
type renewingAuthenticator struct {
	*fakeAuthenticator
}

func (r renewingAuthenticator) CanRenew(creds auth.Credentials) bool {
	key, ok := creds.(auth.APIKey)
	return ok && strings.HasPrefix(string(key), "refreshable")
}

func (r renewingAuthenticator) Renew(_ context.Context, _ auth.HTTPClient, creds auth.Credentials) (auth.Credentials, error) {
	return r.renew(creds)
}

func staticKey(key string) func(context.Context) (auth.Credentials, error) {
	return func(context.Context) (auth.Credentials, error) {
		return auth.APIKey(key), nil
	}
}

// memoryStore is a Store backed by a map.
type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

func newMemoryStore(values map[string]string) *memoryStore {
	if values == nil {
		values = map[string]string{}
	}
	return &memoryStore{values: values}
}

func (s *memoryStore) Read(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *memoryStore) Write(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.writes++
	return nil
}

func (s *memoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *memoryStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	return keys, nil
}
