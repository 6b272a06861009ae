package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/misc"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultValidateTimeout bounds each service's who-am-i request.
	DefaultValidateTimeout = 10 * time.Second
	showCredentialsLimit   = 4
)

// Manager coordinates authenticators with a credential store.
type Manager struct {
	registry *Registry
	store    Store
	env      *auth.Env

	// ValidateTimeout overrides DefaultValidateTimeout when positive.
	ValidateTimeout time.Duration

	flowMu   sync.Mutex
	inFlight map[string]struct{}
}

// NewManager constructs a manager. env supplies the HTTP client, output and
// prompter used by interactive flows and validation.
func NewManager(registry *Registry, store Store, env *auth.Env) *Manager {
	if env == nil {
		env = &auth.Env{}
	}
	return &Manager{
		registry: registry,
		store:    store,
		env:      env,
		inFlight: make(map[string]struct{}),
	}
}

// SetStore updates the store used for persistence.
func (m *Manager) SetStore(store Store) {
	m.store = store
}

func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// FindAuthenticator resolves hint as a service name, then as the host of a URL.
func (m *Manager) FindAuthenticator(hint string) (auth.Authenticator, error) {
	if m.registry == nil {
		return nil, &UnknownServiceError{Hint: hint}
	}
	a, ok := m.registry.Find(hint)
	if !ok {
		return nil, &UnknownServiceError{Hint: hint}
	}
	return a, nil
}

// Authorize obtains credentials for a service and stores them. The service is
// named explicitly or, when name is empty, found from args[0]. A non-empty
// existingToken is parsed and stored instead of running the interactive flow.
// Nothing is written unless the whole flow succeeded.
func (m *Manager) Authorize(ctx context.Context, name, existingToken string, args []string) (auth.Credentials, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a, rest, err := m.resolve(name, args)
	if err != nil {
		m.showError("authorize", err)
		return nil, err
	}
	key := a.ServiceDefinition().ShortName

	release, err := m.acquire(key)
	if err != nil {
		m.showError(key, err)
		return nil, err
	}
	defer release()

	misc.LogCredentialSeparator()
	var creds auth.Credentials
	if strings.TrimSpace(existingToken) != "" {
		creds, err = a.ParseCredentials(existingToken)
		if err != nil {
			return nil, m.fail(key, "parse token", err)
		}
	} else {
		log.WithField("service", key).Debug("starting authorization flow")
		creds, err = a.Authorize(ctx, m.env, rest)
		if err != nil {
			return nil, m.fail(key, "authorize", err)
		}
	}

	if err = m.save(ctx, a, creds); err != nil {
		return nil, err
	}
	m.info(fmt.Sprintf("Authorized %s (%s)", a.ServiceDefinition().ServiceName, key))
	return creds, nil
}

// Renew refreshes a service's credentials, by refresh token when the
// authenticator supports it and otherwise by a new interactive authorization.
// The stored value is only replaced once the new credentials are in hand.
func (m *Manager) Renew(ctx context.Context, name string) (auth.Credentials, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	a, ok := m.lookup(name)
	if !ok {
		err := &UnknownServiceError{Hint: name}
		m.showError("renew", err)
		return nil, err
	}
	key := a.ServiceDefinition().ShortName

	release, err := m.acquire(key)
	if err != nil {
		m.showError(key, err)
		return nil, err
	}
	defer release()

	var creds auth.Credentials
	existing, err := m.readCredentials(ctx, a)
	renewer, canRenew := a.(auth.Renewer)
	switch {
	case err == nil && canRenew && renewer.CanRenew(existing):
		log.WithField("service", key).Debug("renewing with refresh token")
		creds, err = renewer.Renew(ctx, m.env.Client, existing)
		if err != nil {
			return nil, m.fail(key, "renew", err)
		}
	default:
		if err != nil && !errors.Is(err, ErrNoCredentials) {
			log.WithField("service", key).Warnf("ignoring unreadable stored credentials: %v", err)
		}
		creds, err = a.Authorize(ctx, m.env, nil)
		if err != nil {
			return nil, m.fail(key, "authorize", err)
		}
	}

	if err = m.save(ctx, a, creds); err != nil {
		return nil, err
	}
	m.info(fmt.Sprintf("Renewed %s (%s)", a.ServiceDefinition().ServiceName, key))
	return creds, nil
}

// CredentialReport is one line of ShowCredentials output.
type CredentialReport struct {
	Service     string
	Principal   string
	Err         error
	Credentials string
}

// String renders "<name>\t<principal or error>\t<credentials>".
func (r CredentialReport) String() string {
	principal := r.Principal
	if r.Err != nil {
		principal = "-"
		var authErr *auth.AuthenticationError
		if errors.As(r.Err, &authErr) {
			principal = authErr.Message
		} else {
			principal = r.Err.Error()
		}
	}
	return fmt.Sprintf("%s\t%s\t%s", r.Service, principal, r.Credentials)
}

// ShowCredentials validates the named services, or every stored service when
// names is empty, and reports each through the output. Validations run
// concurrently; a failing service does not stop the others.
func (m *Manager) ShowCredentials(ctx context.Context, names []string, showSecrets bool) ([]CredentialReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	targets, err := m.showTargets(ctx, names)
	if err != nil {
		m.showError("show-credentials", err)
		return nil, err
	}

	reports := make([]CredentialReport, len(targets))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(showCredentialsLimit)
	for i, a := range targets {
		i, a := i, a
		group.Go(func() error {
			reports[i] = m.report(groupCtx, a, showSecrets)
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return nil, err
	}
	for _, r := range reports {
		m.info(r.String())
	}
	return reports, nil
}

// Transport returns a RoundTripper that signs requests for known hosts with
// their stored credentials.
func (m *Manager) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Manager: m}
}

// Credentials returns the parsed stored credentials for a.
func (m *Manager) Credentials(ctx context.Context, a auth.Authenticator) (auth.Credentials, error) {
	return m.readCredentials(ctx, a)
}

func (m *Manager) report(ctx context.Context, a auth.Authenticator, showSecrets bool) CredentialReport {
	key := a.ServiceDefinition().ShortName
	r := CredentialReport{Service: key}

	creds, err := m.readCredentials(ctx, a)
	if err != nil {
		r.Err = err
		return r
	}
	if showSecrets {
		r.Credentials, err = a.FormatCredentials(creds)
		if err != nil {
			r.Credentials = creds.Redacted()
		}
	} else {
		r.Credentials = creds.Redacted()
	}

	timeout := m.ValidateTimeout
	if timeout <= 0 {
		timeout = DefaultValidateTimeout
	}
	validateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	validated, err := a.Validate(validateCtx, m.env.Client, creds)
	if err != nil {
		log.WithField("service", key).Debugf("validation failed: %v", err)
		r.Err = err
		return r
	}
	r.Principal = validated.Username
	if validated.ClientName != "" {
		r.Principal = fmt.Sprintf("%s (%s)", validated.Username, validated.ClientName)
	}
	return r
}

func (m *Manager) showTargets(ctx context.Context, names []string) ([]auth.Authenticator, error) {
	if m.registry == nil {
		return nil, nil
	}
	if len(names) > 0 {
		targets := make([]auth.Authenticator, 0, len(names))
		for _, name := range names {
			a, err := m.FindAuthenticator(name)
			if err != nil {
				return nil, err
			}
			targets = append(targets, a)
		}
		return targets, nil
	}
	if m.store == nil {
		return nil, nil
	}
	stored, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	present := make(map[string]bool, len(stored))
	for _, key := range stored {
		present[key] = true
	}
	targets := make([]auth.Authenticator, 0, len(stored))
	for _, name := range m.registry.Names() {
		if !present[name] {
			continue
		}
		a, _ := m.registry.ByName(name)
		targets = append(targets, a)
	}
	return targets, nil
}

func (m *Manager) readCredentials(ctx context.Context, a auth.Authenticator) (auth.Credentials, error) {
	raw, ok, err := ReadDefaultCredentials(ctx, m.store, a.ServiceDefinition())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCredentials
	}
	return a.ParseCredentials(raw)
}

func (m *Manager) save(ctx context.Context, a auth.Authenticator, creds auth.Credentials) error {
	key := a.ServiceDefinition().ShortName
	raw, err := a.FormatCredentials(creds)
	if err != nil {
		return m.fail(key, "format", err)
	}
	if m.store == nil {
		return nil
	}
	misc.LogSavingCredentials(key, storeKind(m.store))
	if err = m.store.Write(ctx, key, raw); err != nil {
		return m.fail(key, "store", err)
	}
	return nil
}

func (m *Manager) resolve(name string, args []string) (auth.Authenticator, []string, error) {
	if strings.TrimSpace(name) != "" {
		a, ok := m.lookup(name)
		if !ok {
			return nil, nil, &UnknownServiceError{Hint: name}
		}
		return a, args, nil
	}
	if len(args) == 0 {
		return nil, nil, &UnknownServiceError{}
	}
	a, err := m.FindAuthenticator(args[0])
	if err != nil {
		return nil, nil, err
	}
	return a, args[1:], nil
}

func (m *Manager) lookup(name string) (auth.Authenticator, bool) {
	if m.registry == nil {
		return nil, false
	}
	return m.registry.ByName(name)
}

// acquire marks key as having a flow in progress. A second concurrent flow for
// the same key fails immediately.
func (m *Manager) acquire(key string) (func(), error) {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()
	if _, busy := m.inFlight[key]; busy {
		return nil, auth.NewAuthenticationError(auth.ErrFlowAlreadyInProgress, fmt.Errorf("service %s", key))
	}
	m.inFlight[key] = struct{}{}
	return func() {
		m.flowMu.Lock()
		delete(m.inFlight, key)
		m.flowMu.Unlock()
	}, nil
}

func (m *Manager) fail(key, stage string, err error) error {
	stageErr := &StageError{Service: key, Stage: stage, Err: err}
	log.WithFields(log.Fields{"service": key, "stage": stage}).Debugf("authorization failed: %v", err)
	m.showError(key, stageErr)
	return stageErr
}

func (m *Manager) info(text string) {
	if m.env.Output != nil {
		m.env.Output.Info(text)
	}
}

func (m *Manager) showError(key string, err error) {
	if m.env.Output != nil {
		m.env.Output.ShowError(fmt.Sprintf("%s failed", key), err)
	}
}
