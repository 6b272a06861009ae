package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/buildinfo"
	"github.com/yschimke/oksocial/internal/config"
	"github.com/yschimke/oksocial/internal/output"
	"github.com/yschimke/oksocial/internal/secrets"
	"github.com/yschimke/oksocial/internal/util"
	sdkAuth "github.com/yschimke/oksocial/sdk/auth"
)

// Options carries the parsed command line.
type Options struct {
	Authorize       bool
	Renew           bool
	Token           string
	ShowCredentials bool
	ShowSecrets     bool
	ServiceNames    bool

	Method  string
	Headers []string
	Data    string

	// Args are service names for the credential operations and URLs otherwise.
	Args []string
}

// App executes one command line invocation.
type App struct {
	Manager *sdkAuth.Manager
	// Client is the base client; requests are signed by wrapping its transport.
	Client *http.Client
	Stdout io.Writer
}

// NewApp builds the application from cfg. A token given without --authorize
// is used for this invocation only and never persisted.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (*App, func(), error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, func() {}, err
	}

	var (
		tokenStore sdkAuth.Store
		closer     = func() {}
	)
	if strings.TrimSpace(opts.Token) != "" && !opts.Authorize {
		tokenStore = &sdkAuth.FixedTokenStore{Token: opts.Token}
		sdkAuth.RegisterTokenStore(tokenStore)
	} else {
		if _, closer, err = OpenStore(ctx, cfg); err != nil {
			return nil, func() {}, err
		}
		tokenStore = sdkAuth.GetTokenStore()
	}

	client := util.NewHTTPClient(cfg)
	client.Transport = &util.LoggingTransport{Base: client.Transport}
	env := &auth.Env{
		Client:          client,
		Output:          output.NewConsole(),
		Secrets:         secrets.NewTerminal(secrets.DefaultPath),
		CallbackTimeout: cfg.CallbackTimeout,
	}

	return &App{
		Manager: sdkAuth.NewManager(registry, tokenStore, env),
		Client:  client,
		Stdout:  os.Stdout,
	}, closer, nil
}

// Run dispatches to the operation selected by opts.
func (a *App) Run(ctx context.Context, opts Options) error {
	switch {
	case opts.ServiceNames:
		return a.PrintServiceNames()
	case opts.Authorize:
		if opts.Renew {
			return errors.New("--authorize and --renew are mutually exclusive")
		}
		_, err := a.Manager.Authorize(ctx, "", opts.Token, opts.Args)
		return err
	case opts.Renew:
		if len(opts.Args) == 0 {
			return errors.New("--renew requires a service name")
		}
		var errs []error
		for _, name := range opts.Args {
			if _, err := a.Manager.Renew(ctx, name); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case opts.ShowCredentials:
		_, err := a.Manager.ShowCredentials(ctx, opts.Args, opts.ShowSecrets)
		return err
	case len(opts.Args) == 0:
		return errors.New("no URL given")
	default:
		return a.Execute(ctx, opts)
	}
}

// PrintServiceNames writes one service short name per line.
func (a *App) PrintServiceNames() error {
	for _, name := range a.Manager.Registry().Names() {
		if _, err := fmt.Fprintln(a.Stdout, name); err != nil {
			return err
		}
	}
	return nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Status)
}

// Execute requests every URL in opts.Args through the signing transport and
// copies each response body to Stdout.
func (a *App) Execute(ctx context.Context, opts Options) error {
	client := &http.Client{
		Transport:     a.Manager.Transport(a.Client.Transport),
		Timeout:       a.Client.Timeout,
		CheckRedirect: a.Client.CheckRedirect,
	}

	var errs []error
	for _, target := range opts.Args {
		if err := a.executeOne(ctx, client, target, opts); err != nil {
			log.WithField("host", hostOf(target)).Debugf("request failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) executeOne(ctx context.Context, client *http.Client, target string, opts Options) error {
	req, err := NewRequest(ctx, target, opts)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("response body close error: %v", errClose)
		}
	}()
	if _, err = io.Copy(a.Stdout, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: target, Status: resp.Status, Code: resp.StatusCode}
	}
	return nil
}

// NewRequest builds the request for target. The method defaults to POST when
// a body is given and GET otherwise; headers are "Name: value".
func NewRequest(ctx context.Context, target string, opts Options) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
		if opts.Data != "" {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if opts.Data != "" {
		body = strings.NewReader(opts.Data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL %q", target)
	}
	for _, header := range opts.Headers {
		name, value, ok := strings.Cut(header, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", header)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", buildinfo.UserAgent())
	}
	if opts.Data != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

func hostOf(target string) string {
	rest := target
	if _, after, ok := strings.Cut(target, "://"); ok {
		rest = after
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}
