// Package oauth1 signs requests with OAuth1 user tokens and runs the
// three-legged authorization flow, both on github.com/dghubble/oauth1.
package oauth1

import (
	"context"
	"fmt"
	"net/http"

	dgoauth1 "github.com/dghubble/oauth1"
	"github.com/yschimke/oksocial/internal/misc"
)

// NonceFunc adapts a function to the library's Noncer.
type NonceFunc func() string

// Nonce implements dgoauth1.Noncer.
func (f NonceFunc) Nonce() string {
	return f()
}

// defaultNoncer yields alphanumeric nonces; some providers mishandle the
// '+', '/' and '=' of the library's base64 default.
var defaultNoncer dgoauth1.Noncer = NonceFunc(misc.GenerateNonce)

// NewConfig returns an HMAC-SHA1 consumer configuration. A nil noncer selects
// the alphanumeric default.
func NewConfig(consumerKey, consumerSecret string, noncer dgoauth1.Noncer) *dgoauth1.Config {
	if noncer == nil {
		noncer = defaultNoncer
	}
	return &dgoauth1.Config{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Signer:         &dgoauth1.HMACSigner{ConsumerSecret: consumerSecret},
		Noncer:         noncer,
	}
}

// Signer signs requests with a consumer key/secret and an access token.
type Signer struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string

	// Noncer is replaceable for deterministic nonces.
	Noncer dgoauth1.Noncer
}

// Sign returns a copy of req with an OAuth Authorization header. Query
// parameters and form bodies are covered by the signature. req is not modified.
func (s *Signer) Sign(req *http.Request) (*http.Request, error) {
	clone, err := misc.CloneRequest(req)
	if err != nil {
		return nil, fmt.Errorf("oauth1: %w", err)
	}
	capture := &captureTransport{}
	ctx := context.WithValue(req.Context(), dgoauth1.HTTPClient, &http.Client{Transport: capture})
	client := NewConfig(s.ConsumerKey, s.ConsumerSecret, s.Noncer).Client(ctx, dgoauth1.NewToken(s.Token, s.TokenSecret))
	if _, err = client.Transport.RoundTrip(clone); err != nil {
		return nil, fmt.Errorf("oauth1: sign request: %w", err)
	}
	return capture.signed, nil
}

// captureTransport stands in for the network below the library's signing
// transport and keeps the signed request instead of sending it.
type captureTransport struct {
	signed *http.Request
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.signed = req
	return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: req}, nil
}
