// Package store provides storage backends for Onboard.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/entrylane/onboard/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.PostgresDSN != "")

	dsn := cfg.PostgresDSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// GetSubmission retrieves the submission record for (userID, flow).
func (s *PostgresStore) GetSubmission(userID, flow string) (*models.SubmissionRecord, error) {
	query := `SELECT id, user_id, flow, data, status, updated_at FROM submissions WHERE user_id = $1 AND flow = $2`

	var rec models.SubmissionRecord
	var dataJSON []byte
	err := s.db.QueryRow(query, userID, flow).Scan(&rec.ID, &rec.UserID, &rec.Flow, &dataJSON, &rec.Status, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSubmission not found", "userID", userID, "flow", flow)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSubmission failed", "error", err, "userID", userID, "flow", flow)
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}

	rec.Data = make(models.AnswerMap)
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &rec.Data); err != nil {
			slog.Error("PostgresStore GetSubmission JSON unmarshal failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to decode submission data: %w", err)
		}
	}
	slog.Debug("PostgresStore GetSubmission succeeded", "userID", userID, "flow", flow, "status", rec.Status)
	return &rec, nil
}

// SaveSubmission upserts the full submission record.
func (s *PostgresStore) SaveSubmission(rec models.SubmissionRecord) error {
	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		slog.Error("PostgresStore SaveSubmission JSON marshal failed", "error", err, "userID", rec.UserID)
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO submissions (id, user_id, flow, data, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, flow) DO UPDATE SET data = EXCLUDED.data, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	_, err = s.db.Exec(query, rec.ID, rec.UserID, rec.Flow, dataJSON, rec.Status, rec.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSubmission failed", "error", err, "userID", rec.UserID, "flow", rec.Flow)
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	slog.Debug("PostgresStore SaveSubmission succeeded", "userID", rec.UserID, "flow", rec.Flow, "status", rec.Status)
	return nil
}

// SaveSubmissionData upserts answer data without touching the status column.
func (s *PostgresStore) SaveSubmissionData(userID, flow string, data models.AnswerMap) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		slog.Error("PostgresStore SaveSubmissionData JSON marshal failed", "error", err, "userID", userID)
		return err
	}
	query := `
		INSERT INTO submissions (id, user_id, flow, data, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, flow) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	_, err = s.db.Exec(query, uuid.NewString(), userID, flow, dataJSON, models.SubmissionStatusInProgress, time.Now())
	if err != nil {
		slog.Error("PostgresStore SaveSubmissionData failed", "error", err, "userID", userID, "flow", flow)
		return fmt.Errorf("failed to upsert submission data: %w", err)
	}
	slog.Debug("PostgresStore SaveSubmissionData succeeded", "userID", userID, "flow", flow)
	return nil
}

// GetStageProgress retrieves the stage record for (userID, stageID).
func (s *PostgresStore) GetStageProgress(userID string, stageID int) (*models.StageProgressRecord, error) {
	query := `SELECT id, user_id, stage_id, status, created_at, updated_at FROM stage_progress WHERE user_id = $1 AND stage_id = $2`

	var rec models.StageProgressRecord
	err := s.db.QueryRow(query, userID, stageID).Scan(&rec.ID, &rec.UserID, &rec.StageID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetStageProgress failed", "error", err, "userID", userID, "stageID", stageID)
		return nil, fmt.Errorf("failed to query stage progress: %w", err)
	}
	return &rec, nil
}

// ListStageProgress retrieves all stage records for a user in creation order.
func (s *PostgresStore) ListStageProgress(userID string) ([]models.StageProgressRecord, error) {
	query := `SELECT id, user_id, stage_id, status, created_at, updated_at FROM stage_progress WHERE user_id = $1 ORDER BY created_at, id`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		slog.Error("PostgresStore ListStageProgress query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query stage progress: %w", err)
	}
	defer rows.Close()

	var records []models.StageProgressRecord
	for rows.Next() {
		var rec models.StageProgressRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.StageID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			slog.Error("PostgresStore ListStageProgress scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan stage progress row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListStageProgress rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate stage progress rows: %w", err)
	}
	slog.Debug("PostgresStore ListStageProgress succeeded", "userID", userID, "count", len(records))
	return records, nil
}

// SaveStageProgress upserts a stage record by (userID, stageID).
func (s *PostgresStore) SaveStageProgress(rec models.StageProgressRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO stage_progress (id, user_id, stage_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, stage_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`
	_, err := s.db.Exec(query, rec.ID, rec.UserID, rec.StageID, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveStageProgress failed", "error", err, "userID", rec.UserID, "stageID", rec.StageID)
		return fmt.Errorf("failed to upsert stage progress: %w", err)
	}
	slog.Debug("PostgresStore SaveStageProgress succeeded", "userID", rec.UserID, "stageID", rec.StageID, "status", rec.Status)
	return nil
}

// InsertStageIfAbsent inserts unless a record for (userID, stageID) exists.
// The unique constraint makes concurrent callers race-safe; the loser's
// insert becomes a no-op.
func (s *PostgresStore) InsertStageIfAbsent(rec models.StageProgressRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO stage_progress (id, user_id, stage_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, stage_id) DO NOTHING`
	result, err := s.db.Exec(query, rec.ID, rec.UserID, rec.StageID, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore InsertStageIfAbsent failed", "error", err, "userID", rec.UserID, "stageID", rec.StageID)
		return false, fmt.Errorf("failed to insert stage progress: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("stage insert rows affected check failed: %w", err)
	}
	slog.Debug("PostgresStore InsertStageIfAbsent done", "userID", rec.UserID, "stageID", rec.StageID, "inserted", n > 0)
	return n > 0, nil
}

// GetFlowSections retrieves the stored sections of a flow.
func (s *PostgresStore) GetFlowSections(flow string) ([]models.Section, error) {
	var sectionsJSON []byte
	err := s.db.QueryRow(`SELECT sections FROM flows WHERE name = $1`, flow).Scan(&sectionsJSON)
	if err == sql.ErrNoRows {
		return nil, models.ErrUnknownFlow
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowSections failed", "error", err, "flow", flow)
		return nil, fmt.Errorf("failed to query flow: %w", err)
	}

	var sections []models.Section
	if err := json.Unmarshal(sectionsJSON, &sections); err != nil {
		slog.Error("PostgresStore GetFlowSections JSON unmarshal failed", "error", err, "flow", flow)
		return nil, fmt.Errorf("failed to decode flow sections: %w", err)
	}
	slog.Debug("PostgresStore GetFlowSections succeeded", "flow", flow, "sections", len(sections))
	return sections, nil
}

// SaveFlowSections replaces the stored sections of an existing flow.
func (s *PostgresStore) SaveFlowSections(flow string, sections []models.Section) error {
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		slog.Error("PostgresStore SaveFlowSections JSON marshal failed", "error", err, "flow", flow)
		return err
	}
	result, err := s.db.Exec(`UPDATE flows SET sections = $1 WHERE name = $2`, sectionsJSON, flow)
	if err != nil {
		slog.Error("PostgresStore SaveFlowSections failed", "error", err, "flow", flow)
		return fmt.Errorf("failed to update flow sections: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("flow update rows affected check failed: %w", err)
	}
	if n == 0 {
		return models.ErrUnknownFlow
	}
	slog.Debug("PostgresStore SaveFlowSections succeeded", "flow", flow, "sections", len(sections))
	return nil
}

// ListFlows returns the names of all flows.
func (s *PostgresStore) ListFlows() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM flows ORDER BY name`)
	if err != nil {
		slog.Error("PostgresStore ListFlows query failed", "error", err)
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			slog.Error("PostgresStore ListFlows scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow rows: %w", err)
	}
	return names, nil
}

// CreateFlow creates an empty flow.
func (s *PostgresStore) CreateFlow(name string) error {
	result, err := s.db.Exec(`INSERT INTO flows (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		slog.Error("PostgresStore CreateFlow failed", "error", err, "flow", name)
		return fmt.Errorf("failed to create flow: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("flow create rows affected check failed: %w", err)
	}
	if n == 0 {
		return models.ErrFlowExists
	}
	slog.Debug("PostgresStore CreateFlow succeeded", "flow", name)
	return nil
}

// DeleteFlow removes a flow and its definition.
func (s *PostgresStore) DeleteFlow(name string) error {
	_, err := s.db.Exec(`DELETE FROM flows WHERE name = $1`, name)
	if err != nil {
		slog.Error("PostgresStore DeleteFlow failed", "error", err, "flow", name)
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	slog.Debug("PostgresStore DeleteFlow succeeded", "flow", name)
	return nil
}

// GetProfile retrieves the profile for userID.
func (s *PostgresStore) GetProfile(userID string) (*models.UserProfile, error) {
	query := `SELECT user_id, role, email, name, onboarding_complete, created_at, updated_at FROM user_profiles WHERE user_id = $1`

	var p models.UserProfile
	var role, email, name sql.NullString
	err := s.db.QueryRow(query, userID).Scan(&p.UserID, &role, &email, &name, &p.OnboardingComplete, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	p.Role = role.String
	p.Email = email.String
	p.Name = name.String
	return &p, nil
}

// SaveProfile upserts a profile by userID.
func (s *PostgresStore) SaveProfile(p models.UserProfile) error {
	query := `
		INSERT INTO user_profiles (user_id, role, email, name, onboarding_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, email = EXCLUDED.email, name = EXCLUDED.name,
			onboarding_complete = EXCLUDED.onboarding_complete, updated_at = EXCLUDED.updated_at`
	_, err := s.db.Exec(query, p.UserID, nilIfEmpty(p.Role), nilIfEmpty(p.Email), nilIfEmpty(p.Name), p.OnboardingComplete, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveProfile failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	slog.Debug("PostgresStore SaveProfile succeeded", "userID", p.UserID)
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
