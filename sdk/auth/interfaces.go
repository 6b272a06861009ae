// Package auth wires service authenticators to credential storage: it resolves
// which authenticator owns a request, runs and persists authorizations, and
// signs outgoing requests with stored credentials.
package auth

import (
	"context"

	"github.com/yschimke/oksocial/internal/auth"
)

// Store persists serialized credentials keyed by service short name.
// Implementations must make Write atomic with respect to Read.
type Store interface {
	// Read returns the stored value and whether one exists.
	Read(ctx context.Context, key string) (string, bool, error)
	// Write replaces the value for key.
	Write(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// List returns the stored keys in ascending order.
	List(ctx context.Context) ([]string, error)
}

// ReadDefaultCredentials reads the credentials stored for def.
func ReadDefaultCredentials(ctx context.Context, s Store, def auth.ServiceDefinition) (string, bool, error) {
	if s == nil {
		return "", false, nil
	}
	return s.Read(ctx, def.ShortName)
}

// storeKind names a store in log lines.
func storeKind(s Store) string {
	if named, ok := s.(interface{ Kind() string }); ok {
		return named.Kind()
	}
	return "credential"
}
