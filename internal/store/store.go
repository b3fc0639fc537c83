// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL,
    summary JSONB NOT NULL,
    errors JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS endpoints (
    run_id UUID NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
    file TEXT NOT NULL,
    line INTEGER NOT NULL,
    col INTEGER NOT NULL,
    kind TEXT NOT NULL,
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    headers JSONB NOT NULL,
    body JSONB,
    auth JSONB,
    risk TEXT NOT NULL,
    tainted_by TEXT[] NOT NULL
);
CREATE INDEX IF NOT EXISTS endpoints_run_risk_idx ON endpoints (run_id, risk);
`

const insertRunSQL = `
INSERT INTO analysis_runs (id, created_at, summary, errors)
VALUES ($1, $2, $3, $4);
`

const selectEndpointsSQL = `
SELECT file, line, col, kind, method, url, headers, body, auth, risk, tainted_by
FROM endpoints
WHERE run_id = $1 AND ($2 = '' OR risk = $2)
ORDER BY file, line, col;
`

var endpointColumns = []string{"run_id", "file", "line", "col", "kind", "method", "url", "headers", "body", "auth", "risk", "tainted_by"}

// Store persists analysis reports in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a connection pool for cfg and wraps it in a Store. The
// returned cleanup closes the pool.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, func(), error) {
	if cfg.URL == "" {
		return nil, nil, errors.New("database url is not configured")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the tables used by the store if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// PersistReport stores the run summary and its endpoints in a single
// transaction.
func (s *Store) PersistReport(ctx context.Context, runID string, report *schemas.AnalysisReport) error {
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	analysisErrors := report.Errors
	if analysisErrors == nil {
		analysisErrors = []schemas.AnalysisError{}
	}
	errs, err := json.Marshal(analysisErrors)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports ErrTxClosed.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, insertRunSQL, runID, report.Timestamp.UTC(), summary, errs); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(report.APIEndpoints) > 0 {
		if err := s.persistEndpoints(ctx, tx, runID, report.APIEndpoints); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted analysis run",
		zap.String("run_id", runID),
		zap.Int("endpoints", len(report.APIEndpoints)),
	)
	return nil
}

func (s *Store) persistEndpoints(ctx context.Context, tx pgx.Tx, runID string, endpoints []schemas.Endpoint) error {
	rows := make([][]any, len(endpoints))
	for i, ep := range endpoints {
		headers := ep.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		headersJSON, err := json.Marshal(headers)
		if err != nil {
			return fmt.Errorf("failed to encode headers for %s:%d: %w", ep.File, ep.Line, err)
		}
		body, err := nullableJSON(ep.Body)
		if err != nil {
			return fmt.Errorf("failed to encode body for %s:%d: %w", ep.File, ep.Line, err)
		}
		var auth []byte
		if ep.Auth != nil {
			if auth, err = json.Marshal(ep.Auth); err != nil {
				return fmt.Errorf("failed to encode auth for %s:%d: %w", ep.File, ep.Line, err)
			}
		}
		taintedBy := ep.TaintedBy
		if taintedBy == nil {
			taintedBy = []string{}
		}
		rows[i] = []any{
			runID, ep.File, ep.Line, ep.Column, string(ep.Kind),
			ep.Method, ep.URL, headersJSON, body, auth,
			string(ep.Risk), taintedBy,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"endpoints"}, endpointColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy endpoints: %w", err)
	}
	if int(copyCount) != len(endpoints) {
		return fmt.Errorf("mismatch in copied endpoints count: expected %d, got %d", len(endpoints), copyCount)
	}
	return nil
}

func nullableJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// GetEndpoints returns the endpoints stored for runID, optionally limited to
// one risk level. An empty risk returns every endpoint.
func (s *Store) GetEndpoints(ctx context.Context, runID string, risk schemas.RiskLevel) ([]schemas.Endpoint, error) {
	rows, err := s.pool.Query(ctx, selectEndpointsSQL, runID, string(risk))
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := []schemas.Endpoint{}
	for rows.Next() {
		var (
			ep                  schemas.Endpoint
			kind, riskStr       string
			headers, body, auth []byte
		)
		err := rows.Scan(
			&ep.File, &ep.Line, &ep.Column, &kind, &ep.Method, &ep.URL,
			&headers, &body, &auth, &riskStr, &ep.TaintedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint row: %w", err)
		}
		ep.Kind = schemas.CallKind(kind)
		ep.Risk = schemas.RiskLevel(riskStr)

		if err := json.Unmarshal(headers, &ep.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers for %s:%d: %w", ep.File, ep.Line, err)
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &ep.Body); err != nil {
				return nil, fmt.Errorf("failed to decode body for %s:%d: %w", ep.File, ep.Line, err)
			}
		}
		if len(auth) > 0 {
			ep.Auth = &schemas.AuthInfo{}
			if err := json.Unmarshal(auth, ep.Auth); err != nil {
				return nil, fmt.Errorf("failed to decode auth for %s:%d: %w", ep.File, ep.Line, err)
			}
		}
		endpoints = append(endpoints, ep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return endpoints, nil
}
