// Package history keeps a record of completed action plans.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"agriaid/crop"
)

// Record is one delivered action plan.
type Record struct {
	ID          int64             `json:"id"`
	SessionID   string            `json:"session_id"`
	Crop        string            `json:"crop"`
	DaysPlanted int               `json:"days_planted"`
	Disease     string            `json:"disease"`
	Plan        crop.SolutionInfo `json:"plan"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Recorder stores and lists delivered plans.
type Recorder interface {
	Record(ctx context.Context, r Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Record) error           { return nil }
func (Nop) Recent(context.Context, int) ([]Record, error) { return []Record{}, nil }

const createTable = `
	CREATE TABLE IF NOT EXISTS diagnosis_history (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(64) NOT NULL,
		crop VARCHAR(255) NOT NULL,
		days_planted INT NOT NULL,
		disease VARCHAR(255) NOT NULL,
		plan JSON NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_diagnosis_history_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository { return &Repository{db: db} }

// Migrate creates the history table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create diagnosis_history: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, rec Record) error {
	plan, err := json.Marshal(rec.Plan)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO diagnosis_history (session_id, crop, days_planted, disease, plan) VALUES (?, ?, ?, ?, ?)",
		rec.SessionID, rec.Crop, rec.DaysPlanted, rec.Disease, plan,
	)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// Recent returns the latest plans, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, crop, days_planted, disease, plan, created_at
		FROM diagnosis_history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var plan []byte
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Crop, &rec.DaysPlanted, &rec.Disease, &plan, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(plan, &rec.Plan); err != nil {
			return nil, fmt.Errorf("decode plan %d: %w", rec.ID, err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}
