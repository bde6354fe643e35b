// Package storage persists Workflow Engine (C6) checkpoints to PostgreSQL
// using a pgx-backed database/sql pool with embedded migrations applied at
// startup.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/codeready-toolchain/agentflow/pkg/model"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig fills in local-development connection-pool sizing.
func DefaultConfig() Config {
	return Config{
		Host: "localhost", Port: 5432, SSLMode: "disable",
		MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour,
	}
}

// Store is a pgx-backed implementation of pkg/workflow.CheckpointStore.
type Store struct {
	db *sql.DB
}

// New opens a connection pool, applies embedded migrations, and returns a
// ready Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if err := migrateUp(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open *sql.DB (test infrastructure, e.g. a
// testcontainers-provisioned instance), applying migrations to it.
func NewFromDB(db *sql.DB, databaseName string) (*Store, error) {
	if err := migrateUp(db, databaseName); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB, databaseName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("storage: migration driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("storage: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, databaseName, driver)
	if err != nil {
		return fmt.Errorf("storage: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("storage: apply migrations: %w", err)
	}
	// Do not call m.Close(): it would close the shared *sql.DB underneath the
	// postgres driver. Only the source side needs releasing.
	return sourceDriver.Close()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// row mirrors the checkpoints table's JSONB columns.
type row struct {
	CompletedTaskIDs []model.TaskID                   `json:"completedTaskIds"`
	PendingTasks     []model.TaskNode                 `json:"pendingTasks"`
	SharedContext    map[model.TaskID]model.AgentResult `json:"sharedContext"`
}

// Save upserts a checkpoint for cp.WorkflowID.
func (s *Store) Save(ctx context.Context, cp model.Checkpoint) error {
	r := row{CompletedTaskIDs: cp.CompletedTaskIDs, PendingTasks: cp.PendingTasks, SharedContext: cp.SharedContext}

	completed, err := json.Marshal(r.CompletedTaskIDs)
	if err != nil {
		return fmt.Errorf("storage: marshal completed: %w", err)
	}
	pending, err := json.Marshal(r.PendingTasks)
	if err != nil {
		return fmt.Errorf("storage: marshal pending: %w", err)
	}
	shared, err := json.Marshal(r.SharedContext)
	if err != nil {
		return fmt.Errorf("storage: marshal shared context: %w", err)
	}

	const q = `
		INSERT INTO checkpoints (workflow_id, completed_task_ids, pending_tasks, shared_context, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (workflow_id) DO UPDATE SET
			completed_task_ids = EXCLUDED.completed_task_ids,
			pending_tasks      = EXCLUDED.pending_tasks,
			shared_context     = EXCLUDED.shared_context,
			version            = EXCLUDED.version,
			updated_at         = now()`
	_, err = s.db.ExecContext(ctx, q, cp.WorkflowID, completed, pending, shared, cp.Version)
	if err != nil {
		return fmt.Errorf("storage: save checkpoint: %w", err)
	}
	return nil
}

// Load reconstructs a Checkpoint for workflowID.
func (s *Store) Load(ctx context.Context, workflowID model.WorkflowID) (model.Checkpoint, error) {
	const q = `SELECT completed_task_ids, pending_tasks, shared_context, version FROM checkpoints WHERE workflow_id = $1`

	var completed, pending, shared []byte
	var version int
	err := s.db.QueryRowContext(ctx, q, workflowID).Scan(&completed, &pending, &shared, &version)
	if err == sql.ErrNoRows {
		return model.Checkpoint{}, fmt.Errorf("storage: no checkpoint for workflow %q: %w", workflowID, err)
	}
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("storage: load checkpoint: %w", err)
	}

	cp := model.Checkpoint{WorkflowID: workflowID, Version: version}
	if err := json.Unmarshal(completed, &cp.CompletedTaskIDs); err != nil {
		return model.Checkpoint{}, fmt.Errorf("storage: unmarshal completed: %w", err)
	}
	if err := json.Unmarshal(pending, &cp.PendingTasks); err != nil {
		return model.Checkpoint{}, fmt.Errorf("storage: unmarshal pending: %w", err)
	}
	if err := json.Unmarshal(shared, &cp.SharedContext); err != nil {
		return model.Checkpoint{}, fmt.Errorf("storage: unmarshal shared context: %w", err)
	}
	return cp, nil
}
