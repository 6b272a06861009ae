package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultCredentialsTable = "oksocial_credentials"

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN    string
	Schema string
	Table  string
}

// PostgresStore persists serialized credentials in one row per service.
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresStoreConfig
}

// NewPostgresStore establishes a connection to PostgreSQL.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	trimmedDSN := strings.TrimSpace(cfg.DSN)
	if trimmedDSN == "" {
		return nil, fmt.Errorf("postgres store: DSN is required")
	}
	cfg.DSN = trimmedDSN
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultCredentialsTable
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}
	return &PostgresStore{db: db, cfg: cfg}, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) Kind() string { return "postgres" }

// EnsureSchema creates the credentials table (and schema when provided).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store: not initialized")
	}
	if schema := strings.TrimSpace(s.cfg.Schema); schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(schema))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			service TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, s.TableName())); err != nil {
		return fmt.Errorf("postgres store: create credentials table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf("SELECT content FROM %s WHERE service = $1", s.TableName())
	var content string
	err := s.db.QueryRowContext(ctx, query, normalizeKey(key)).Scan(&content)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("postgres store: read %s: %w", key, err)
	}
	return normalizeLineEndings(content), true, nil
}

// Write upserts in a single statement so concurrent readers see the old or new row.
func (s *PostgresStore) Write(ctx context.Context, key, value string) error {
	key = normalizeKey(key)
	if key == "" {
		return fmt.Errorf("postgres store: key is empty")
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (service, content, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (service)
		DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
	`, s.TableName())
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres store: upsert %s: %w", key, err)
	}
	log.WithField("service", key).Debug("postgres store: credentials upserted")
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE service = $1", s.TableName())
	if _, err := s.db.ExecContext(ctx, query, normalizeKey(key)); err != nil {
		return fmt.Errorf("postgres store: delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT service FROM %s ORDER BY service", s.TableName())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list credentials: %w", err)
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Warnf("postgres store: close rows: %v", errClose)
		}
	}()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("postgres store: scan row: %w", err)
		}
		keys = append(keys, key)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate rows: %w", err)
	}
	return keys, nil
}

// TableName returns the quoted, schema qualified credentials table.
func (s *PostgresStore) TableName() string {
	return fullTableName(s.cfg.Schema, s.cfg.Table)
}

func fullTableName(schema, name string) string {
	if strings.TrimSpace(name) == "" {
		name = defaultCredentialsTable
	}
	if strings.TrimSpace(schema) == "" {
		return quoteIdentifier(name)
	}
	return quoteIdentifier(schema) + "." + quoteIdentifier(name)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func normalizeLineEndings(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
