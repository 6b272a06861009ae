// Package callback implements the single-use local HTTP listener that captures
// one OAuth redirect. The listener binds an ephemeral port chosen by the OS,
// accepts exactly one matching callback and releases its port on every exit path.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/auth"
)

// DefaultPath is the redirect path registered with providers.
const DefaultPath = "/callback"

// State is the lifecycle position of a Server.
type State int32

const (
	StateListening State = iota + 1
	StateCaptured
	StateTimedOut
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateCaptured:
		return "captured"
	case StateTimedOut:
		return "timed_out"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Options configures Open.
type Options struct {
	// Path is the redirect path, DefaultPath when empty.
	Path string
	// Host is the interface to bind, 127.0.0.1 when empty.
	Host string
	// RelayFragment serves a page that forwards URL fragments as a query string.
	// Browsers never send fragments to servers, so implicit-flow tokens only arrive
	// when the page's script runs.
	RelayFragment bool
}

// Result contains the parameters extracted from the captured callback.
type Result struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	AccessToken      string
	OAuthToken       string
	OAuthVerifier    string
}

// Failed reports whether the provider returned an error parameter.
func (r *Result) Failed() bool {
	return r != nil && r.Error != ""
}

func (r *Result) empty() bool {
	return r.Code == "" && r.Error == "" && r.AccessToken == "" && r.OAuthVerifier == ""
}

// Server is one authorization session: a bound port, an expected path and a
// single-assignment result slot.
type Server struct {
	server   *http.Server
	listener net.Listener
	path     string
	port     int
	relay    bool

	state    atomic.Int32
	claimed  atomic.Bool
	result   *Result
	captured chan struct{}
	errCh    chan error

	closeOnce sync.Once
	closeErr  error
}

// Open binds an ephemeral local port and starts serving callbacks.
// It fails with auth.ErrPortBind when no port can be bound.
func Open(ctx context.Context, opts Options) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, auth.NewAuthenticationError(auth.ErrPortBind, err)
	}

	s := &Server{
		listener: listener,
		path:     path,
		port:     listener.Addr().(*net.TCPAddr).Port,
		relay:    opts.RelayFragment,
		captured: make(chan struct{}),
		errCh:    make(chan error, 1),
	}
	s.server = &http.Server{
		Handler:      http.HandlerFunc(s.handle),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.state.Store(int32(StateListening))

	go func() {
		if errServe := s.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			s.errCh <- fmt.Errorf("callback server failed: %w", errServe)
		}
	}()

	log.Debugf("OAuth callback listener started on port %d", s.port)
	return s, nil
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// RedirectURI returns the URI providers must redirect to.
func (s *Server) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// WaitForResult blocks until a callback is captured, the timeout elapses or ctx is done.
// Timeouts resolve with auth.ErrAuthorizationTimedOut. Every failure path closes the listener.
func (s *Server) WaitForResult(ctx context.Context, timeout time.Duration) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.captured:
		return s.result, nil
	case err := <-s.errCh:
		_ = s.Close()
		return nil, err
	case <-timer.C:
		// Claiming the slot here turns away later callbacks. A callback that
		// claimed it first is already being written and still wins.
		if !s.claimed.CompareAndSwap(false, true) {
			select {
			case <-s.captured:
				return s.result, nil
			case <-ctx.Done():
				_ = s.Close()
				return nil, ctx.Err()
			}
		}
		s.state.CompareAndSwap(int32(StateListening), int32(StateTimedOut))
		_ = s.Close()
		return nil, auth.NewAuthenticationError(auth.ErrAuthorizationTimedOut, fmt.Errorf("no callback within %s", timeout))
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
}

// Close shuts the server down and releases the port. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("OAuth callback listener shutdown error: %v", err)
			s.closeErr = s.server.Close()
		}
		s.state.Store(int32(StateClosed))
		log.Debugf("OAuth callback listener on port %d closed", s.port)
	})
	return s.closeErr
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := parseResult(r.URL.Query())
	if result.empty() {
		if s.relay {
			writePage(w, http.StatusOK, fragmentRelayHTML)
			return
		}
		http.Error(w, "No authorization parameters received", http.StatusBadRequest)
		return
	}

	if !s.claimed.CompareAndSwap(false, true) {
		log.Warn("OAuth callback received after capture; rejecting")
		http.Error(w, "Authorization already captured", http.StatusConflict)
		return
	}

	if result.Failed() {
		log.Errorf("OAuth error received: %s", result.Error)
		writePage(w, http.StatusOK, strings.Replace(failureHTML, "{{ERROR}}", html.EscapeString(result.Error), 1))
	} else {
		writePage(w, http.StatusOK, successHTML)
	}

	s.result = result
	s.state.CompareAndSwap(int32(StateListening), int32(StateCaptured))
	close(s.captured)
}

func parseResult(query url.Values) *Result {
	get := func(key string) string {
		return strings.TrimSpace(query.Get(key))
	}
	result := &Result{
		Code:             get("code"),
		State:            get("state"),
		Error:            get("error"),
		ErrorDescription: get("error_description"),
		AccessToken:      get("access_token"),
		OAuthToken:       get("oauth_token"),
		OAuthVerifier:    get("oauth_verifier"),
	}
	if result.Error == "" && get("denied") != "" {
		result.Error = "access_denied"
	}
	return result
}

func writePage(w http.ResponseWriter, status int, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(page)); err != nil {
		log.Errorf("Failed to write callback page: %v", err)
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
