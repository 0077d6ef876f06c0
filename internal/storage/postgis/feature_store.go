// Package postgis loads vector features into PostGIS tables.
package postgis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

var validSchemaName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for feature tables.
type Config struct {
	DSN             string
	Schema          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// FeatureStore writes feature sets into one table per resource.
type FeatureStore struct {
	pool   txPool
	schema string
}

// New creates a PostGIS-backed FeatureStore using the provided config.
func New(ctx context.Context, cfg Config) (*FeatureStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgis.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.Schema)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool txPool, schema string) (*FeatureStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if schema == "" {
		schema = "public"
	}
	if !validSchemaName.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name %q", schema)
	}
	return &FeatureStore{pool: pool, schema: schema}, nil
}

// Close releases the underlying pool resources.
func (s *FeatureStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks database connectivity.
func (s *FeatureStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("feature store is not configured")
	}
	return s.pool.Ping(ctx)
}

// ReplaceFeatures drops and recreates table, then inserts every feature in
// a single transaction. A failure leaves the previous table untouched.
func (s *FeatureStore) ReplaceFeatures(ctx context.Context, table string, srid int, features []ingest.Feature) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("feature store is not configured")
	}
	if err := ingest.ValidateTableName(table); err != nil {
		return err
	}
	if srid <= 0 {
		return fmt.Errorf("invalid srid %d", srid)
	}
	ident := pgx.Identifier{s.schema, table}.Sanitize()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ident)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	create := fmt.Sprintf(`
CREATE TABLE %s (
	fid serial PRIMARY KEY,
	geom geometry(Geometry, %d),
	properties jsonb NOT NULL DEFAULT '{}'::jsonb
)`, ident, srid)
	if _, err := tx.Exec(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (geom, properties) VALUES (ST_SetSRID(ST_GeomFromGeoJSON($1), $2), $3)`, ident)
	for i, f := range features {
		props, err := json.Marshal(normalizeProperties(f.Properties))
		if err != nil {
			return fmt.Errorf("marshal properties of feature %d: %w", i, err)
		}
		var geom any
		if len(f.Geometry) > 0 {
			geom = string(f.Geometry)
		}
		if _, err := tx.Exec(ctx, insert, geom, srid, props); err != nil {
			return fmt.Errorf("insert feature %d: %w", i, err)
		}
	}

	index := fmt.Sprintf(`CREATE INDEX ON %s USING GIST (geom)`, ident)
	if _, err := tx.Exec(ctx, index); err != nil {
		return fmt.Errorf("create spatial index: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func normalizeProperties(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
