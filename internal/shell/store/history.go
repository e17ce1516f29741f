package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hostbridge/hostbridge/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// History Store
// =============================================================================

// HistoryStore persists completed deployment records in SQLite.
type HistoryStore struct {
	db *sqlx.DB
}

// NewHistoryStore opens the database at dsn and runs migrations.
func NewHistoryStore(dsn string) (*HistoryStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewHistoryStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewHistoryStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewHistoryStore", "", err.Error(), ErrMigrationFailed)
	}

	return &HistoryStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Rows
// =============================================================================

// deploymentRow represents a deployment record row in the database.
type deploymentRow struct {
	ID          string `db:"id"`
	Framework   string `db:"framework"`
	Provider    string `db:"provider"`
	AppName     string `db:"app_name"`
	Status      string `db:"status"`
	Plan        string `db:"plan"`
	StepResults string `db:"step_results"`
	StartedAt   string `db:"started_at"`
	EndedAt     string `db:"ended_at"`
}

func rowToRecord(row *deploymentRow) (*domain.DeploymentRecord, error) {
	var plan domain.DeploymentPlan
	if err := json.Unmarshal([]byte(row.Plan), &plan); err != nil {
		return nil, NewStoreError("GetDeployment", row.ID, "failed to deserialize plan", ErrInvalidData)
	}

	var results []domain.StepResult
	if err := json.Unmarshal([]byte(row.StepResults), &results); err != nil {
		return nil, NewStoreError("GetDeployment", row.ID, "failed to deserialize step results", ErrInvalidData)
	}

	startedAt, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return nil, NewStoreError("GetDeployment", row.ID, "invalid started_at", ErrInvalidData)
	}
	endedAt, err := time.Parse(time.RFC3339Nano, row.EndedAt)
	if err != nil {
		return nil, NewStoreError("GetDeployment", row.ID, "invalid ended_at", ErrInvalidData)
	}

	return &domain.DeploymentRecord{
		ID:          row.ID,
		Framework:   row.Framework,
		Provider:    row.Provider,
		AppName:     row.AppName,
		Plan:        plan,
		Status:      domain.DeploymentStatus(row.Status),
		StepResults: results,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
	}, nil
}

// =============================================================================
// Operations
// =============================================================================

// SaveDeployment persists a completed record. Records are immutable once
// saved; saving an existing ID is an error.
func (s *HistoryStore) SaveDeployment(ctx context.Context, record *domain.DeploymentRecord) error {
	planJSON, err := json.Marshal(record.Plan)
	if err != nil {
		return NewStoreError("SaveDeployment", record.ID, "failed to serialize plan", ErrInvalidData)
	}
	resultsJSON, err := json.Marshal(record.StepResults)
	if err != nil {
		return NewStoreError("SaveDeployment", record.ID, "failed to serialize step results", ErrInvalidData)
	}

	query := `
		INSERT INTO deployments (
			id, framework, provider, app_name, status,
			plan, step_results, started_at, ended_at
		) VALUES (
			:id, :framework, :provider, :app_name, :status,
			:plan, :step_results, :started_at, :ended_at
		)`

	row := map[string]any{
		"id":           record.ID,
		"framework":    record.Framework,
		"provider":     record.Provider,
		"app_name":     record.AppName,
		"status":       string(record.Status),
		"plan":         string(planJSON),
		"step_results": string(resultsJSON),
		"started_at":   record.StartedAt.Format(time.RFC3339Nano),
		"ended_at":     record.EndedAt.Format(time.RFC3339Nano),
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("SaveDeployment", record.ID, "record already exists", ErrDuplicateID)
		}
		return NewStoreError("SaveDeployment", record.ID, err.Error(), err)
	}
	return nil
}

// GetDeployment returns one record by ID.
func (s *HistoryStore) GetDeployment(ctx context.Context, id string) (*domain.DeploymentRecord, error) {
	query := `SELECT * FROM deployments WHERE id = ?`

	var row deploymentRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", id, "deployment not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", id, err.Error(), err)
	}

	return rowToRecord(&row)
}

// ListOptions controls pagination for list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize applies defaults and bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// ListDeployments returns records newest first.
func (s *HistoryStore) ListDeployments(ctx context.Context, opts ListOptions) ([]domain.DeploymentRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM deployments ORDER BY started_at DESC LIMIT ? OFFSET ?`

	var rows []deploymentRow
	if err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListDeployments", "", err.Error(), err)
	}
	return rowsToRecords(rows)
}

// ListDeploymentsByApp returns an application's records newest first.
func (s *HistoryStore) ListDeploymentsByApp(ctx context.Context, appName string, opts ListOptions) ([]domain.DeploymentRecord, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM deployments WHERE app_name = ? ORDER BY started_at DESC LIMIT ? OFFSET ?`

	var rows []deploymentRow
	if err := s.db.SelectContext(ctx, &rows, query, appName, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListDeploymentsByApp", "", err.Error(), err)
	}
	return rowsToRecords(rows)
}

func rowsToRecords(rows []deploymentRow) ([]domain.DeploymentRecord, error) {
	records := make([]domain.DeploymentRecord, 0, len(rows))
	for _, row := range rows {
		record, err := rowToRecord(&row)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}
