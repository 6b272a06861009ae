package auth

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Transport signs outgoing requests with the stored credentials of the
// service owning the request host. Requests for unknown hosts, or for
// services without stored credentials, pass through unsigned.
type Transport struct {
	Base    http.RoundTripper
	Manager *Manager
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Manager == nil || t.Manager.registry == nil {
		return base.RoundTrip(req)
	}
	a, ok := t.Manager.registry.ByHost(req.URL.Host)
	if !ok {
		return base.RoundTrip(req)
	}
	creds, err := t.Manager.readCredentials(req.Context(), a)
	if err != nil {
		if !errors.Is(err, ErrNoCredentials) {
			return nil, err
		}
		log.WithField("service", a.ServiceDefinition().ShortName).Debug("no stored credentials, sending unsigned")
		return base.RoundTrip(req)
	}
	signed, err := a.Intercept(req, creds)
	if err != nil {
		return nil, err
	}
	return base.RoundTrip(signed)
}
