package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// CredentialsFileName is the document FileTokenStore keeps under its directory.
const CredentialsFileName = "credentials.json"

// FileTokenStore keeps every service's credentials in one JSON document.
// Writes go through a temp file and rename so readers never observe a torn file.
type FileTokenStore struct {
	mu      sync.Mutex
	dirLock sync.RWMutex
	baseDir string
}

// NewFileTokenStore creates a store rooted at dir.
func NewFileTokenStore(dir string) *FileTokenStore {
	s := &FileTokenStore{}
	s.SetBaseDir(dir)
	return s
}

// SetBaseDir updates the directory holding the credentials document.
func (s *FileTokenStore) SetBaseDir(dir string) {
	s.dirLock.Lock()
	s.baseDir = strings.TrimSpace(dir)
	s.dirLock.Unlock()
}

// Path returns the credentials document path.
func (s *FileTokenStore) Path() string {
	dir := s.baseDirSnapshot()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, CredentialsFileName)
}

func (s *FileTokenStore) Kind() string { return "file" }

func (s *FileTokenStore) Read(_ context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, fmt.Errorf("auth filestore: key is empty")
	}
	doc, err := s.readDocument()
	if err != nil {
		return "", false, err
	}
	value := gjson.GetBytes(doc, escapeKey(key))
	if !value.Exists() || value.Type != gjson.String {
		return "", false, nil
	}
	return value.String(), true, nil
}

func (s *FileTokenStore) Write(_ context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("auth filestore: key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	updated, err := sjson.SetBytes(doc, escapeKey(key), value)
	if err != nil {
		return fmt.Errorf("auth filestore: update %s failed: %w", key, err)
	}
	return s.writeDocument(updated)
}

func (s *FileTokenStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	if !gjson.GetBytes(doc, escapeKey(key)).Exists() {
		return nil
	}
	updated, err := sjson.DeleteBytes(doc, escapeKey(key))
	if err != nil {
		return fmt.Errorf("auth filestore: delete %s failed: %w", key, err)
	}
	return s.writeDocument(updated)
}

func (s *FileTokenStore) List(_ context.Context) ([]string, error) {
	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	gjson.ParseBytes(doc).ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			keys = append(keys, key.String())
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

func (s *FileTokenStore) readDocument() ([]byte, error) {
	path := s.Path()
	if path == "" {
		return nil, fmt.Errorf("auth filestore: directory not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("auth filestore: read failed: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("auth filestore: %s is not a JSON object", path)
	}
	return data, nil
}

func (s *FileTokenStore) writeDocument(doc []byte) error {
	path := s.Path()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("auth filestore: create dir failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("auth filestore: create temp file failed: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if err = tmp.Chmod(0o600); err != nil {
		cleanup()
		return fmt.Errorf("auth filestore: chmod failed: %w", err)
	}
	if _, err = tmp.Write(doc); err != nil {
		cleanup()
		return fmt.Errorf("auth filestore: write failed: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("auth filestore: sync failed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("auth filestore: close failed: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("auth filestore: rename failed: %w", err)
	}
	return nil
}

func (s *FileTokenStore) baseDirSnapshot() string {
	s.dirLock.RLock()
	defer s.dirLock.RUnlock()
	return s.baseDir
}

// escapeKey turns a service key into a single gjson/sjson path component.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
