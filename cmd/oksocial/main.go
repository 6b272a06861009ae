// Package main provides the oksocial command: authorize API services once,
// then make authenticated requests to them by URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/buildinfo"
	"github.com/yschimke/oksocial/internal/cmd"
	"github.com/yschimke/oksocial/internal/config"
	"github.com/yschimke/oksocial/internal/logging"
	"github.com/yschimke/oksocial/internal/util"
	sdkAuth "github.com/yschimke/oksocial/sdk/auth"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// headerFlags collects repeated -H values.
type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(value string) error {
	*h = append(*h, value)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		opts        cmd.Options
		headers     headerFlags
		configPath  string
		debug       bool
		showVersion bool
	)

	flag.BoolVar(&opts.Authorize, "authorize", false, "Authorize a service: --authorize <service> [scopes...]")
	flag.BoolVar(&opts.Renew, "renew", false, "Renew stored credentials for the named services")
	flag.StringVar(&opts.Token, "token", "", "Use this token instead of stored credentials; with --authorize, store it")
	flag.BoolVar(&opts.ShowCredentials, "show-credentials", false, "Validate and list stored credentials")
	flag.BoolVar(&opts.ShowSecrets, "show-secrets", false, "With --show-credentials, print credentials in clear")
	flag.BoolVar(&opts.ServiceNames, "service-names", false, "List supported service names")
	flag.StringVar(&configPath, "config", config.DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&opts.Method, "X", "", "HTTP method")
	flag.Var(&headers, "H", "Request header \"Name: value\" (repeatable)")
	flag.StringVar(&opts.Data, "d", "", "Request body")

	flag.CommandLine.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "Usage: %s [flags] <url>...\n       %s --authorize <service>\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.String())
		return 0
	}
	opts.Headers = headers
	opts.Args = flag.Args()

	if wd, errWd := os.Getwd(); errWd == nil {
		config.LoadDotEnv(wd)
	} else {
		log.Warnf("failed to get working directory: %v", errWd)
	}

	cfg, err := config.LoadConfigOptional(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return 2
	}
	if debug {
		cfg.Debug = true
	}
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return 2
	}
	defer logging.Close()
	util.SetLogLevel(cfg)
	log.Debug(buildinfo.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, closeStore, err := cmd.NewApp(ctx, cfg, opts)
	if err != nil {
		log.Errorf("failed to initialise: %v", err)
		return 2
	}
	defer closeStore()

	if err = app.Run(ctx, opts); err != nil {
		return exitCode(err)
	}
	return 0
}

// exitCode maps failures to a process status. Manager operations have already
// reported their errors through the console.
func exitCode(err error) int {
	var statusErr *cmd.StatusError
	var authErr *auth.AuthenticationError
	switch {
	case errors.As(err, &statusErr):
		log.Debugf("request failed: %v", err)
		return 1
	case errors.Is(err, context.Canceled):
		return 130
	case errors.As(err, &authErr):
		return 1
	default:
		if !isReported(err) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
}

func isReported(err error) bool {
	var stageErr *sdkAuth.StageError
	var unknownErr *sdkAuth.UnknownServiceError
	return errors.As(err, &stageErr) || errors.As(err, &unknownErr)
}
