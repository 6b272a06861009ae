package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

const objectStoreCredentialsPrefix = "credentials"

// ObjectStoreConfig captures configuration for the object storage-backed token store.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
	UseSSL    bool
	PathStyle bool
}

// ObjectTokenStore keeps one object per service under <prefix>/credentials/<key>
// in an S3-compatible bucket. A single PUT replaces an object, so readers see
// either the old or the new credentials.
type ObjectTokenStore struct {
	client *minio.Client
	cfg    ObjectStoreConfig
}

// NewObjectTokenStore initializes an object storage backed token store.
func NewObjectTokenStore(cfg ObjectStoreConfig) (*ObjectTokenStore, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("object store: access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("object store: secret key is required")
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}
	return &ObjectTokenStore{client: client, cfg: cfg}, nil
}

func (s *ObjectTokenStore) Kind() string { return "object" }

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ObjectTokenStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("object store: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("object store: create bucket: %w", err)
	}
	return nil
}

func (s *ObjectTokenStore) Read(ctx context.Context, key string) (string, bool, error) {
	fullKey := s.objectKey(key)
	object, err := s.client.GetObject(ctx, s.cfg.Bucket, fullKey, minio.GetObjectOptions{})
	if err != nil {
		if isObjectNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("object store: fetch %s: %w", fullKey, err)
	}
	defer func() {
		_ = object.Close()
	}()
	data, err := io.ReadAll(object)
	if err != nil {
		if isObjectNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("object store: read %s: %w", fullKey, err)
	}
	return string(normalizeLineEndingsBytes(data)), true, nil
}

func (s *ObjectTokenStore) Write(ctx context.Context, key, value string) error {
	if normalizeKey(key) == "" {
		return fmt.Errorf("object store: key is empty")
	}
	if value == "" {
		return s.Remove(ctx, key)
	}
	fullKey := s.objectKey(key)
	data := []byte(value)
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, fullKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("object store: put object %s: %w", fullKey, err)
	}
	log.WithField("service", normalizeKey(key)).Debugf("object store: wrote %s", fullKey)
	return nil
}

func (s *ObjectTokenStore) Remove(ctx context.Context, key string) error {
	fullKey := s.objectKey(key)
	err := s.client.RemoveObject(ctx, s.cfg.Bucket, fullKey, minio.RemoveObjectOptions{})
	if err != nil {
		if isObjectNotFound(err) {
			return nil
		}
		return fmt.Errorf("object store: delete object %s: %w", fullKey, err)
	}
	return nil
}

func (s *ObjectTokenStore) List(ctx context.Context) ([]string, error) {
	prefix := s.prefixedKey(objectStoreCredentialsPrefix + "/")
	objectCh := s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	keys := make([]string, 0)
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("object store: list credentials: %w", object.Err)
		}
		key := strings.TrimPrefix(object.Key, prefix)
		if key == "" || strings.Contains(key, "/") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *ObjectTokenStore) objectKey(key string) string {
	return s.prefixedKey(objectStoreCredentialsPrefix + "/" + normalizeKey(key))
}

func (s *ObjectTokenStore) prefixedKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.cfg.Prefix == "" {
		return key
	}
	return strings.TrimLeft(s.cfg.Prefix+"/"+key, "/")
}

func normalizeLineEndingsBytes(data []byte) []byte {
	replaced := bytes.ReplaceAll(data, []byte{'\r', '\n'}, []byte{'\n'})
	return bytes.ReplaceAll(replaced, []byte{'\r'}, []byte{'\n'})
}

func isObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		resp = minio.ToErrorResponse(err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
