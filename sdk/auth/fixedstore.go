package auth

import "context"

// FixedTokenStore answers every read with one externally supplied token and
// never persists anything. It backs --token without --authorize.
type FixedTokenStore struct {
	Token string
}

func (s *FixedTokenStore) Kind() string { return "fixed" }

func (s *FixedTokenStore) Read(context.Context, string) (string, bool, error) {
	if s.Token == "" {
		return "", false, nil
	}
	return s.Token, true, nil
}

func (s *FixedTokenStore) Write(context.Context, string, string) error { return nil }

func (s *FixedTokenStore) Remove(context.Context, string) error { return nil }

func (s *FixedTokenStore) List(context.Context) ([]string, error) { return nil, nil }
