package auth

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/yschimke/oksocial/internal/auth"
)

// Registry indexes authenticators by short name and API host. It is built once
// and read-only afterwards.
type Registry struct {
	ordered []auth.Authenticator
	byName  map[string]auth.Authenticator
	byHost  map[string]auth.Authenticator
}

// NewRegistry indexes authenticators. Two authenticators claiming the same
// short name or host is a configuration error.
func NewRegistry(authenticators ...auth.Authenticator) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]auth.Authenticator, len(authenticators)),
		byHost: make(map[string]auth.Authenticator),
	}
	for _, a := range authenticators {
		if a == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(a.ServiceDefinition().ShortName))
		if name == "" {
			return nil, fmt.Errorf("auth registry: %T has no short name", a)
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("auth registry: duplicate service name %q", name)
		}
		r.byName[name] = a
		for _, host := range a.Hosts() {
			host = normalizeHost(host)
			if host == "" {
				continue
			}
			if owner, exists := r.byHost[host]; exists && owner != a {
				return nil, fmt.Errorf("auth registry: host %q claimed by %s and %s",
					host, owner.ServiceDefinition().ShortName, name)
			}
			r.byHost[host] = a
		}
		r.ordered = append(r.ordered, a)
	}
	return r, nil
}

// ByName returns the authenticator with the given short name.
func (r *Registry) ByName(name string) (auth.Authenticator, bool) {
	a, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// ByHost returns the authenticator owning host. Matching is exact after
// lowercasing and stripping any port.
func (r *Registry) ByHost(host string) (auth.Authenticator, bool) {
	a, ok := r.byHost[normalizeHost(host)]
	return a, ok
}

// Find resolves hint as a short name, then as a URL or bare host.
func (r *Registry) Find(hint string) (auth.Authenticator, bool) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return nil, false
	}
	if a, ok := r.ByName(hint); ok {
		return a, true
	}
	if strings.Contains(hint, "://") {
		if u, err := url.Parse(hint); err == nil && u.Host != "" {
			return r.ByHost(u.Host)
		}
		return nil, false
	}
	host, _, _ := strings.Cut(hint, "/")
	return r.ByHost(host)
}

// Names returns the sorted short names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the authenticators in registration order.
func (r *Registry) All() []auth.Authenticator {
	return append([]auth.Authenticator(nil), r.ordered...)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}
