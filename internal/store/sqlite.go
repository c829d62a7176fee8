// Package store provides storage backends for Onboard.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/entrylane/onboard/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.SQLiteDSN != "")

	dsn := cfg.SQLiteDSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetSubmission retrieves the submission record for (userID, flow).
func (s *SQLiteStore) GetSubmission(userID, flow string) (*models.SubmissionRecord, error) {
	query := `SELECT id, user_id, flow, data, status, updated_at FROM submissions WHERE user_id = ? AND flow = ?`

	var rec models.SubmissionRecord
	var dataJSON string
	err := s.db.QueryRow(query, userID, flow).Scan(&rec.ID, &rec.UserID, &rec.Flow, &dataJSON, &rec.Status, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSubmission not found", "userID", userID, "flow", flow)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSubmission failed", "error", err, "userID", userID, "flow", flow)
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}

	rec.Data = make(models.AnswerMap)
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
			slog.Error("SQLiteStore GetSubmission JSON unmarshal failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to decode submission data: %w", err)
		}
	}
	slog.Debug("SQLiteStore GetSubmission succeeded", "userID", userID, "flow", flow, "status", rec.Status)
	return &rec, nil
}

// SaveSubmission upserts the full submission record.
func (s *SQLiteStore) SaveSubmission(rec models.SubmissionRecord) error {
	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		slog.Error("SQLiteStore SaveSubmission JSON marshal failed", "error", err, "userID", rec.UserID)
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO submissions (id, user_id, flow, data, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, flow) DO UPDATE SET data = excluded.data, status = excluded.status, updated_at = excluded.updated_at`
	_, err = s.db.Exec(query, rec.ID, rec.UserID, rec.Flow, string(dataJSON), rec.Status, rec.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSubmission failed", "error", err, "userID", rec.UserID, "flow", rec.Flow)
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	slog.Debug("SQLiteStore SaveSubmission succeeded", "userID", rec.UserID, "flow", rec.Flow, "status", rec.Status)
	return nil
}

// SaveSubmissionData upserts answer data without touching the status column.
func (s *SQLiteStore) SaveSubmissionData(userID, flow string, data models.AnswerMap) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		slog.Error("SQLiteStore SaveSubmissionData JSON marshal failed", "error", err, "userID", userID)
		return err
	}
	query := `
		INSERT INTO submissions (id, user_id, flow, data, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, flow) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	_, err = s.db.Exec(query, uuid.NewString(), userID, flow, string(dataJSON), models.SubmissionStatusInProgress, time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveSubmissionData failed", "error", err, "userID", userID, "flow", flow)
		return fmt.Errorf("failed to upsert submission data: %w", err)
	}
	slog.Debug("SQLiteStore SaveSubmissionData succeeded", "userID", userID, "flow", flow)
	return nil
}

// GetStageProgress retrieves the stage record for (userID, stageID).
func (s *SQLiteStore) GetStageProgress(userID string, stageID int) (*models.StageProgressRecord, error) {
	query := `SELECT id, user_id, stage_id, status, created_at, updated_at FROM stage_progress WHERE user_id = ? AND stage_id = ?`

	var rec models.StageProgressRecord
	err := s.db.QueryRow(query, userID, stageID).Scan(&rec.ID, &rec.UserID, &rec.StageID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetStageProgress failed", "error", err, "userID", userID, "stageID", stageID)
		return nil, fmt.Errorf("failed to query stage progress: %w", err)
	}
	return &rec, nil
}

// ListStageProgress retrieves all stage records for a user in creation order.
func (s *SQLiteStore) ListStageProgress(userID string) ([]models.StageProgressRecord, error) {
	query := `SELECT id, user_id, stage_id, status, created_at, updated_at FROM stage_progress WHERE user_id = ? ORDER BY created_at, id`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		slog.Error("SQLiteStore ListStageProgress query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query stage progress: %w", err)
	}
	defer rows.Close()

	var records []models.StageProgressRecord
	for rows.Next() {
		var rec models.StageProgressRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.StageID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			slog.Error("SQLiteStore ListStageProgress scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan stage progress row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListStageProgress rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate stage progress rows: %w", err)
	}
	slog.Debug("SQLiteStore ListStageProgress succeeded", "userID", userID, "count", len(records))
	return records, nil
}

// SaveStageProgress upserts a stage record by (userID, stageID).
func (s *SQLiteStore) SaveStageProgress(rec models.StageProgressRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO stage_progress (id, user_id, stage_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, stage_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`
	_, err := s.db.Exec(query, rec.ID, rec.UserID, rec.StageID, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveStageProgress failed", "error", err, "userID", rec.UserID, "stageID", rec.StageID)
		return fmt.Errorf("failed to upsert stage progress: %w", err)
	}
	slog.Debug("SQLiteStore SaveStageProgress succeeded", "userID", rec.UserID, "stageID", rec.StageID, "status", rec.Status)
	return nil
}

// InsertStageIfAbsent inserts unless a record for (userID, stageID) exists.
func (s *SQLiteStore) InsertStageIfAbsent(rec models.StageProgressRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO stage_progress (id, user_id, stage_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, stage_id) DO NOTHING`
	result, err := s.db.Exec(query, rec.ID, rec.UserID, rec.StageID, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore InsertStageIfAbsent failed", "error", err, "userID", rec.UserID, "stageID", rec.StageID)
		return false, fmt.Errorf("failed to insert stage progress: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("stage insert rows affected check failed: %w", err)
	}
	slog.Debug("SQLiteStore InsertStageIfAbsent done", "userID", rec.UserID, "stageID", rec.StageID, "inserted", n > 0)
	return n > 0, nil
}

// GetFlowSections retrieves the stored sections of a flow.
func (s *SQLiteStore) GetFlowSections(flow string) ([]models.Section, error) {
	var sectionsJSON string
	err := s.db.QueryRow(`SELECT sections FROM flows WHERE name = ?`, flow).Scan(&sectionsJSON)
	if err == sql.ErrNoRows {
		return nil, models.ErrUnknownFlow
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowSections failed", "error", err, "flow", flow)
		return nil, fmt.Errorf("failed to query flow: %w", err)
	}

	var sections []models.Section
	if err := json.Unmarshal([]byte(sectionsJSON), &sections); err != nil {
		slog.Error("SQLiteStore GetFlowSections JSON unmarshal failed", "error", err, "flow", flow)
		return nil, fmt.Errorf("failed to decode flow sections: %w", err)
	}
	slog.Debug("SQLiteStore GetFlowSections succeeded", "flow", flow, "sections", len(sections))
	return sections, nil
}

// SaveFlowSections replaces the stored sections of an existing flow.
func (s *SQLiteStore) SaveFlowSections(flow string, sections []models.Section) error {
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowSections JSON marshal failed", "error", err, "flow", flow)
		return err
	}
	result, err := s.db.Exec(`UPDATE flows SET sections = ? WHERE name = ?`, string(sectionsJSON), flow)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowSections failed", "error", err, "flow", flow)
		return fmt.Errorf("failed to update flow sections: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("flow update rows affected check failed: %w", err)
	}
	if n == 0 {
		return models.ErrUnknownFlow
	}
	slog.Debug("SQLiteStore SaveFlowSections succeeded", "flow", flow, "sections", len(sections))
	return nil
}

// ListFlows returns the names of all flows.
func (s *SQLiteStore) ListFlows() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM flows ORDER BY name`)
	if err != nil {
		slog.Error("SQLiteStore ListFlows query failed", "error", err)
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			slog.Error("SQLiteStore ListFlows scan failed", "error", err)
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
func (s *SQLiteStore) CreateFlow(name string) error {
	result, err := s.db.Exec(`INSERT INTO flows (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		slog.Error("SQLiteStore CreateFlow failed", "error", err, "flow", name)
		return fmt.Errorf("failed to create flow: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("flow create rows affected check failed: %w", err)
	}
	if n == 0 {
		return models.ErrFlowExists
	}
	slog.Debug("SQLiteStore CreateFlow succeeded", "flow", name)
	return nil
}

// DeleteFlow removes a flow and its definition.
func (s *SQLiteStore) DeleteFlow(name string) error {
	_, err := s.db.Exec(`DELETE FROM flows WHERE name = ?`, name)
	if err != nil {
		slog.Error("SQLiteStore DeleteFlow failed", "error", err, "flow", name)
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	slog.Debug("SQLiteStore DeleteFlow succeeded", "flow", name)
	return nil
}

// GetProfile retrieves the profile for userID.
func (s *SQLiteStore) GetProfile(userID string) (*models.UserProfile, error) {
	query := `SELECT user_id, role, email, name, onboarding_complete, created_at, updated_at FROM user_profiles WHERE user_id = ?`

	var p models.UserProfile
	var role, email, name sql.NullString
	err := s.db.QueryRow(query, userID).Scan(&p.UserID, &role, &email, &name, &p.OnboardingComplete, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	p.Role = role.String
	p.Email = email.String
	p.Name = name.String
	return &p, nil
}

// SaveProfile upserts a profile by userID.
func (s *SQLiteStore) SaveProfile(p models.UserProfile) error {
	query := `
		INSERT INTO user_profiles (user_id, role, email, name, onboarding_complete, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET role = excluded.role, email = excluded.email, name = excluded.name,
			onboarding_complete = excluded.onboarding_complete, updated_at = excluded.updated_at`
	_, err := s.db.Exec(query, p.UserID, nilIfEmpty(p.Role), nilIfEmpty(p.Email), nilIfEmpty(p.Name), p.OnboardingComplete, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	slog.Debug("SQLiteStore SaveProfile succeeded", "userID", p.UserID)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
