package auth

import (
	"fmt"
	"strings"
)

// PromptClient asks for a client id and secret stored under "<key>.clientId"
// and "<key>.clientSecret".
func PromptClient(p Prompter, service, key string) (string, string, error) {
	if p == nil {
		return "", "", fmt.Errorf("%s: no secret prompter configured", key)
	}
	clientID, err := p.PromptScalar(service+" Client Id", key+".clientId", "", false)
	if err != nil {
		return "", "", err
	}
	clientSecret, err := p.PromptScalar(service+" Client Secret", key+".clientSecret", "", true)
	if err != nil {
		return "", "", err
	}
	clientID, clientSecret = strings.TrimSpace(clientID), strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		return "", "", NewAuthenticationError(ErrAuthorizationFailed, fmt.Errorf("%s client id and secret are required", service))
	}
	return clientID, clientSecret, nil
}

// APIKeyCodec provides the credential codec methods for APIKey based services.
type APIKeyCodec struct{}

func (APIKeyCodec) ParseCredentials(s string) (Credentials, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("api key is empty")
	}
	return APIKey(s), nil
}

func (APIKeyCodec) FormatCredentials(c Credentials) (string, error) {
	key, ok := c.(APIKey)
	if !ok {
		return "", fmt.Errorf("expected api key credentials, got %T", c)
	}
	if key == "" {
		return "", fmt.Errorf("api key is empty")
	}
	return string(key), nil
}
