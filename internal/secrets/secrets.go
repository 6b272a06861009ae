// Package secrets prompts for client ids, client secrets and scopes on the
// terminal and remembers the answers between runs.
package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/util"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the file answers are remembered in.
const DefaultPath = "~/.oksocial-secrets.yaml"

// EnvPrefix prefixes environment overrides: "dropbox.clientId" is read from OKSOCIAL_DROPBOX_CLIENTID.
const EnvPrefix = "OKSOCIAL_"

var _ auth.Prompter = (*Terminal)(nil)

// Terminal implements auth.Prompter on a terminal. Secrets are read without echo
// when the input is a TTY. Answers are stored in a YAML file keyed by prompt key.
type Terminal struct {
	// Path is the YAML answers file; empty disables persistence.
	Path string
	In   io.Reader
	Out  io.Writer
	// Getenv replaces os.Getenv in tests.
	Getenv func(key string) string

	mu      sync.Mutex
	reader  *bufio.Reader
	values  map[string]any
	loaded  bool
	readPwd func() ([]byte, error)
}

// NewTerminal returns a prompter reading stdin, writing prompts to stderr and
// remembering answers at path.
func NewTerminal(path string) *Terminal {
	t := &Terminal{Path: path, In: os.Stdin, Out: os.Stderr}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		t.readPwd = func() ([]byte, error) { return term.ReadPassword(fd) }
	}
	return t
}

// EnvKey maps a prompt key to its environment override name.
func EnvKey(key string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + strings.ToUpper(replacer.Replace(key))
}

// PromptScalar asks for one value. An environment override wins without
// prompting. Otherwise the remembered answer, or defaultValue, is offered as the
// default and a non-empty answer is remembered.
func (t *Terminal) PromptScalar(label, key, defaultValue string, secret bool) (string, error) {
	if value := strings.TrimSpace(t.getenv(EnvKey(key))); value != "" {
		log.WithField("service", serviceOf(key)).Debugf("using %s from environment", EnvKey(key))
		return value, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.loadLocked(); err != nil {
		return "", err
	}
	if stored, ok := t.values[key].(string); ok && stored != "" {
		defaultValue = stored
	}

	shown := defaultValue
	if secret && shown != "" {
		shown = util.HideAPIKey(shown)
	}
	answer, err := t.askLocked(label, shown, secret)
	if err != nil {
		return "", err
	}
	if answer == "" {
		answer = defaultValue
	}
	if answer != "" && answer != t.values[key] {
		t.values[key] = answer
		if errSave := t.saveLocked(); errSave != nil {
			log.WithError(errSave).Warn("failed to remember prompt answer")
		}
	}
	return answer, nil
}

// PromptList asks for a comma separated list, defaulting to the remembered list or defaults.
func (t *Terminal) PromptList(label, key string, defaults []string) ([]string, error) {
	if value := strings.TrimSpace(t.getenv(EnvKey(key))); value != "" {
		return splitList(value), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.loadLocked(); err != nil {
		return nil, err
	}
	if stored := toStrings(t.values[key]); len(stored) > 0 {
		defaults = stored
	}

	answer, err := t.askLocked(label, strings.Join(defaults, ","), false)
	if err != nil {
		return nil, err
	}
	if answer == "" {
		return defaults, nil
	}
	list := splitList(answer)
	t.values[key] = list
	if errSave := t.saveLocked(); errSave != nil {
		log.WithError(errSave).Warn("failed to remember prompt answer")
	}
	return list, nil
}

func (t *Terminal) askLocked(label, shownDefault string, secret bool) (string, error) {
	out := t.Out
	if out == nil {
		out = io.Discard
	}
	if shownDefault != "" {
		_, _ = fmt.Fprintf(out, "%s [%s]: ", label, shownDefault)
	} else {
		_, _ = fmt.Fprintf(out, "%s: ", label)
	}

	if secret && t.readPwd != nil {
		raw, err := t.readPwd()
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", label, err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	if t.reader == nil {
		in := t.In
		if in == nil {
			in = os.Stdin
		}
		t.reader = bufio.NewReader(in)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) loadLocked() error {
	if t.loaded {
		return nil
	}
	t.values = map[string]any{}
	t.loaded = true

	path, err := t.resolvedPath()
	if err != nil || path == "" {
		return err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets file: %w", err)
	}
	if err = yaml.Unmarshal(data, &t.values); err != nil {
		return fmt.Errorf("parse secrets file %s: %w", path, err)
	}
	if t.values == nil {
		t.values = map[string]any{}
	}
	return nil
}

func (t *Terminal) saveLocked() error {
	path, err := t.resolvedPath()
	if err != nil || path == "" {
		return err
	}
	data, err := yaml.Marshal(t.values)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (t *Terminal) resolvedPath() (string, error) {
	if strings.TrimSpace(t.Path) == "" {
		return "", nil
	}
	return util.ResolveAuthDir(t.Path)
}

func (t *Terminal) getenv(key string) string {
	if t.Getenv != nil {
		return t.Getenv(key)
	}
	return os.Getenv(key)
}

// Keys returns the remembered prompt keys, sorted.
func (t *Terminal) Keys() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.loadLocked(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(t.values))
	for key := range t.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func toStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return splitList(v)
	default:
		return nil
	}
}

func serviceOf(key string) string {
	if i := strings.Index(key, "."); i > 0 {
		return key[:i]
	}
	return key
}
