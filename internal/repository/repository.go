// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/screener/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveStrategy inserts or updates a strategy. A strategy without an id gets a
// fresh one. CreatedAt is kept from the stored row on update and UpdatedAt is
// always refreshed.
func (r *SQLRepository) SaveStrategy(ctx context.Context, tenantID string, s *domain.Strategy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if s == nil {
		return fmt.Errorf("%w: strategy is required", ErrInvalidInput)
	}

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.EnsureIDs()

	conditions, err := json.Marshal(s.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, r.rebind(`SELECT created_at FROM strategies WHERE tenant_id = ? AND id = ?`), tenantID, s.ID).Scan(&createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		createdAt = now
	case err != nil:
		return err
	}

	query := `
		INSERT INTO strategies (id, tenant_id, name, description, conditions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			conditions = excluded.conditions,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, r.rebind(query),
		s.ID, tenantID, s.Name, s.Description, string(conditions), createdAt, now,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.CreatedAt = createdAt
	s.UpdatedAt = now
	return nil
}

// GetStrategy retrieves a strategy by ID with tenant isolation.
func (r *SQLRepository) GetStrategy(ctx context.Context, tenantID string, strategyID string) (*domain.Strategy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, conditions, created_at, updated_at
		FROM strategies
		WHERE tenant_id = ? AND id = ?
	`
	s, err := scanStrategy(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, strategyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListStrategies returns the tenant's strategies, most recently updated first.
func (r *SQLRepository) ListStrategies(ctx context.Context, tenantID string) ([]*domain.Strategy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, conditions, created_at, updated_at
		FROM strategies
		WHERE tenant_id = ?
		ORDER BY updated_at DESC, id
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteStrategy removes a strategy. Runs that reference it are kept.
func (r *SQLRepository) DeleteStrategy(ctx context.Context, tenantID string, strategyID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM strategies WHERE tenant_id = ? AND id = ?`), tenantID, strategyID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (*domain.Strategy, error) {
	var s domain.Strategy
	var description sql.NullString
	var conditions string

	if err := row.Scan(&s.ID, &s.Name, &description, &conditions, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Description = description.String

	if err := json.Unmarshal([]byte(conditions), &s.Conditions); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.ID, err)
	}
	return &s, nil
}

// SaveRun stores a run result with tenant isolation.
func (r *SQLRepository) SaveRun(ctx context.Context, tenantID string, run *domain.Run) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	records, err := json.Marshal(run.Records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	summary, _ := json.Marshal(run.Summary)
	metadata, _ := json.Marshal(run.Metadata)

	var params sql.NullString
	if run.Params != nil {
		b, _ := json.Marshal(run.Params)
		params = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO runs (
			id, tenant_id, strategy_id, market, route, description, params,
			records, total, scanned, pages, summary, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, tenantID, run.StrategyID, run.Market, string(run.Route), run.Description, params,
		string(records), run.Total, run.Scanned, run.Pages, string(summary), run.Timestamp, string(metadata),
	)
	return err
}

// GetRun retrieves a run by ID with tenant isolation.
func (r *SQLRepository) GetRun(ctx context.Context, tenantID string, runID string) (*domain.Run, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, strategy_id, market, route, description, params,
			   records, total, scanned, pages, summary, timestamp, metadata
		FROM runs
		WHERE tenant_id = ? AND id = ?
	`

	var run domain.Run
	var strategyID, params, summary sql.NullString
	var route, records, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, runID).Scan(
		&run.ID, &run.TenantID, &strategyID, &run.Market, &route, &run.Description, &params,
		&records, &run.Total, &run.Scanned, &run.Pages, &summary, &run.Timestamp, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	run.StrategyID = strategyID.String
	run.Route = domain.Route(route)
	if err := json.Unmarshal([]byte(records), &run.Records); err != nil {
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if params.Valid {
		run.Params = &domain.ParameterSet{}
		json.Unmarshal([]byte(params.String), run.Params)
	}
	if summary.Valid {
		json.Unmarshal([]byte(summary.String), &run.Summary)
	}
	json.Unmarshal([]byte(metadata), &run.Metadata)

	return &run, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
