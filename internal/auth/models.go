// Package auth provides the shared authentication types for API services.
// It defines the Authenticator contract implemented by every service, the
// credential value types, and the collaborator interfaces (HTTP client, output,
// secret prompting) that authorization flows depend on.
package auth

import (
	"context"
	"net/http"
	"time"
)

// DefaultCallbackTimeout bounds how long an interactive flow waits for the browser redirect.
const DefaultCallbackTimeout = 5 * time.Minute

// ServiceDefinition is the static identity of one API provider.
type ServiceDefinition struct {
	// APIHost is the primary host of the service API.
	APIHost string
	// ServiceName is the human readable name, e.g. "Dropbox API".
	ServiceName string
	// ShortName is the CLI alias and the credential store key.
	ShortName string
	// APIDocs links to the API documentation.
	APIDocs string
	// AccountsLink links to the console where client applications are registered.
	AccountsLink string
}

// Credentials is an opaque, service specific credential value.
// Implementations must not expose secrets through Redacted.
type Credentials interface {
	// Redacted returns a representation of the credentials that is safe to log.
	Redacted() string
}

// ValidatedCredentials is the result of a successful "who am I" call.
type ValidatedCredentials struct {
	// Username is the display identifier of the authenticated principal.
	Username string
	// ClientName optionally names the client application the credentials belong to.
	ClientName string
}

// HTTPClient executes HTTP requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Output is the presentation collaborator. Authorization code never writes to a terminal directly.
type Output interface {
	// OpenLink asks the user to visit url, typically by launching a browser.
	OpenLink(ctx context.Context, url string) error
	// Info reports progress to the user.
	Info(text string)
	// ShowError reports a failure with an optional cause.
	ShowError(text string, cause error)
}

// Prompter obtains client ids, secrets and scopes from the user.
type Prompter interface {
	PromptScalar(label, key, defaultValue string, secret bool) (string, error)
	PromptList(label, key string, defaults []string) ([]string, error)
}

// Env bundles the collaborators an interactive authorization needs.
type Env struct {
	Client          HTTPClient
	Output          Output
	Secrets         Prompter
	CallbackTimeout time.Duration
}

// Timeout returns the callback timeout, falling back to DefaultCallbackTimeout.
func (e *Env) Timeout() time.Duration {
	if e == nil || e.CallbackTimeout <= 0 {
		return DefaultCallbackTimeout
	}
	return e.CallbackTimeout
}

// Authenticator signs, authorizes and validates credentials for one service.
type Authenticator interface {
	ServiceDefinition() ServiceDefinition

	// Hosts lists the exact hosts whose requests this authenticator signs.
	Hosts() []string

	// Intercept returns a signed copy of req. It performs no network I/O,
	// never mutates req and is idempotent.
	Intercept(req *http.Request, creds Credentials) (*http.Request, error)

	// Authorize runs the interactive authorization flow.
	Authorize(ctx context.Context, env *Env, args []string) (Credentials, error)

	// Validate performs one authenticated identity call.
	Validate(ctx context.Context, client HTTPClient, creds Credentials) (*ValidatedCredentials, error)

	ParseCredentials(s string) (Credentials, error)
	FormatCredentials(c Credentials) (string, error)
}

// Renewer is implemented by authenticators that can refresh credentials without user interaction.
type Renewer interface {
	CanRenew(creds Credentials) bool
	Renew(ctx context.Context, client HTTPClient, creds Credentials) (Credentials, error)
}
