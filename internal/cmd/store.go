package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/config"
	"github.com/yschimke/oksocial/internal/store"
	"github.com/yschimke/oksocial/internal/util"
	sdkAuth "github.com/yschimke/oksocial/sdk/auth"
)

// OpenStore opens the credential backend selected by cfg.Store.Type and
// registers it as the process wide token store. The returned func releases
// backend resources.
func OpenStore(ctx context.Context, cfg *config.Config) (sdkAuth.Store, func(), error) {
	noop := func() {}
	authDir, err := util.ResolveAuthDir(cfg.AuthDir)
	if err != nil {
		return nil, noop, err
	}

	var (
		s      sdkAuth.Store
		closer = noop
	)
	switch cfg.Store.Type {
	case config.StoreTypePostgres:
		pg, errOpen := store.NewPostgresStore(ctx, store.PostgresStoreConfig{
			DSN:    cfg.Store.Postgres.DSN,
			Schema: cfg.Store.Postgres.Schema,
			Table:  cfg.Store.Postgres.Table,
		})
		if errOpen != nil {
			return nil, noop, fmt.Errorf("postgres store: %w", errOpen)
		}
		if errSchema := pg.EnsureSchema(ctx); errSchema != nil {
			_ = pg.Close()
			return nil, noop, fmt.Errorf("postgres store: %w", errSchema)
		}
		s = pg
		closer = func() {
			if errClose := pg.Close(); errClose != nil {
				log.Warnf("postgres store close error: %v", errClose)
			}
		}
		log.Infof("postgres-backed token store enabled, table: %s", pg.TableName())

	case config.StoreTypeObject:
		endpoint, useSSL, errEndpoint := ParseObjectEndpoint(cfg.Store.Object.Endpoint)
		if errEndpoint != nil {
			return nil, noop, errEndpoint
		}
		obj, errOpen := store.NewObjectTokenStore(store.ObjectStoreConfig{
			Endpoint:  endpoint,
			Bucket:    cfg.Store.Object.Bucket,
			AccessKey: cfg.Store.Object.AccessKey,
			SecretKey: cfg.Store.Object.SecretKey,
			Region:    cfg.Store.Object.Region,
			Prefix:    cfg.Store.Object.Prefix,
			UseSSL:    useSSL,
			PathStyle: true,
		})
		if errOpen != nil {
			return nil, noop, errOpen
		}
		if errBucket := obj.EnsureBucket(ctx); errBucket != nil {
			return nil, noop, errBucket
		}
		s = obj
		log.Infof("object-backed token store enabled, bucket: %s", cfg.Store.Object.Bucket)

	case config.StoreTypeGit:
		localPath := strings.TrimSpace(cfg.Store.Git.LocalPath)
		if localPath == "" {
			localPath = filepath.Join(authDir, "gitstore")
		} else if localPath, err = util.ResolveAuthDir(localPath); err != nil {
			return nil, noop, err
		}
		gitStore := store.NewGitTokenStore(localPath, cfg.Store.Git.Remote, cfg.Store.Git.Username, cfg.Store.Git.Password)
		if errRepo := gitStore.EnsureRepository(); errRepo != nil {
			return nil, noop, fmt.Errorf("git store: %w", errRepo)
		}
		s = gitStore
		log.Infof("git-backed token store enabled, repository: %s", gitStore.RepoDir())

	default:
		if errMk := os.MkdirAll(authDir, 0o700); errMk != nil {
			return nil, noop, fmt.Errorf("create auth dir: %w", errMk)
		}
		fileStore := sdkAuth.NewFileTokenStore(authDir)
		s = fileStore
		log.Debugf("file token store: %s", fileStore.Path())
	}

	sdkAuth.RegisterTokenStore(s)
	return s, closer, nil
}

// ParseObjectEndpoint accepts "host[:port]" or an http(s) URL and returns the
// host part and whether TLS should be used.
func ParseObjectEndpoint(raw string) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	useSSL := true
	if strings.Contains(endpoint, "://") {
		parsed, errParse := url.Parse(endpoint)
		if errParse != nil {
			return "", false, fmt.Errorf("failed to parse object store endpoint %q: %w", raw, errParse)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
			useSSL = true
		default:
			return "", false, fmt.Errorf("unsupported object store scheme %q (only http and https are allowed)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("object store endpoint %q is missing host information", raw)
		}
		endpoint = parsed.Host
		if parsed.Path != "" && parsed.Path != "/" {
			endpoint = strings.TrimSuffix(parsed.Host+parsed.Path, "/")
		}
	}
	return strings.TrimRight(endpoint, "/"), useSSL, nil
}
