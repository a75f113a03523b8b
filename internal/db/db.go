// Package db provides optional PostgreSQL persistence for sync cycle
// history. The core never requires it; the orchestrator records cycles when
// a database URL is configured.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/feedsync/internal/types"
)

// History wraps a PostgreSQL connection pool.
type History struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*History, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &History{pool: pool}, nil
}

// Close closes the connection pool.
func (h *History) Close() {
	if h.pool != nil {
		h.pool.Close()
	}
}

// Cycle represents one sync cycle row.
type Cycle struct {
	ID          uuid.UUID  `json:"id"`
	Collections []string   `json:"collections"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateCycle inserts a new running cycle row and returns its id.
func (h *History) CreateCycle(ctx context.Context, collections []string) (uuid.UUID, error) {
	var id uuid.UUID
	err := h.pool.QueryRow(ctx,
		`INSERT INTO sync_cycles (collections, status)
		 VALUES ($1, 'running')
		 RETURNING id`,
		collections,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create cycle: %w", err)
	}
	return id, nil
}

// CompleteCycle marks a cycle as completed or failed.
func (h *History) CompleteCycle(ctx context.Context, cycleID uuid.UUID, status string) error {
	_, err := h.pool.Exec(ctx,
		`UPDATE sync_cycles SET status = $1, completed_at = NOW() WHERE id = $2`,
		status, cycleID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete cycle: %w", err)
	}
	return nil
}

// SaveReport stores the cycle report JSON alongside the cycle row.
func (h *History) SaveReport(ctx context.Context, cycleID uuid.UUID, report types.CycleReport) error {
	jsonBytes, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO cycle_reports (cycle_id, content)
		 VALUES ($1, $2)
		 ON CONFLICT (cycle_id) DO UPDATE SET content = $2, created_at = NOW()`,
		cycleID, jsonBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport retrieves the report JSON for a cycle, or nil when none exists.
func (h *History) GetReport(ctx context.Context, cycleID uuid.UUID) ([]byte, error) {
	var content []byte
	err := h.pool.QueryRow(ctx,
		`SELECT content FROM cycle_reports WHERE cycle_id = $1`,
		cycleID,
	).Scan(&content)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return content, nil
}

// ListCycles retrieves recent cycles, newest first.
func (h *History) ListCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := h.pool.Query(ctx,
		`SELECT id, collections, status, created_at, completed_at
		 FROM sync_cycles ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		if err := rows.Scan(&c.ID, &c.Collections, &c.Status, &c.CreatedAt, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	return cycles, nil
}
