// Package authtest provides in-memory collaborators for exercising
// authorization flows without a terminal or a browser.
package authtest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Browser is an auth.Output that "visits" opened links with an HTTP client,
// following provider redirects back to the local callback listener.
type Browser struct {
	// Client visits links; http.DefaultClient when nil.
	Client *http.Client
	// Disabled records links without visiting them.
	Disabled bool

	mu     sync.Mutex
	links  []string
	infos  []string
	errors []string
	wg     sync.WaitGroup
}

// OpenLink records url and visits it asynchronously unless Disabled.
func (b *Browser) OpenLink(_ context.Context, url string) error {
	b.mu.Lock()
	b.links = append(b.links, url)
	b.mu.Unlock()
	if b.Disabled {
		return nil
	}
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		resp, err := client.Get(url)
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return nil
}

// Info records text.
func (b *Browser) Info(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.infos = append(b.infos, text)
}

// ShowError records text and cause.
func (b *Browser) ShowError(text string, cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cause != nil {
		text = fmt.Sprintf("%s: %v", text, cause)
	}
	b.errors = append(b.errors, text)
}

// Wait blocks until every visit started by OpenLink finished.
func (b *Browser) Wait() {
	b.wg.Wait()
}

// Links returns the opened links.
func (b *Browser) Links() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.links...)
}

// Infos returns the recorded info lines.
func (b *Browser) Infos() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.infos...)
}

// Errors returns the recorded error lines.
func (b *Browser) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}

// Secrets is an auth.Prompter answering from a map keyed by storage key.
type Secrets struct {
	Values map[string]string
	Lists  map[string][]string
}

// PromptScalar returns the configured value or the default.
func (s *Secrets) PromptScalar(_ string, key, defaultValue string, _ bool) (string, error) {
	if value, ok := s.Values[key]; ok {
		return value, nil
	}
	if defaultValue == "" {
		return "", fmt.Errorf("no answer for %s", key)
	}
	return defaultValue, nil
}

// PromptList returns the configured list or the defaults.
func (s *Secrets) PromptList(_ string, key string, defaults []string) ([]string, error) {
	if values, ok := s.Lists[key]; ok {
		return values, nil
	}
	if value, ok := s.Values[key]; ok {
		return strings.Split(value, ","), nil
	}
	return defaults, nil
}
