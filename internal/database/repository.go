package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New("attribution run not found")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveRun stores a run and its credits in one transaction
func (r *Repository) SaveRun(ctx context.Context, run *Run) error {
	weights, err := json.Marshal(run.Weights)
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}

	insertRun, err := r.db.stmt(stmtInsertRun)
	if err != nil {
		return err
	}
	insertCredit, err := r.db.stmt(stmtInsertCredit)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, insertRun).ExecContext(ctx,
		run.ID, run.Tenant, run.OpportunityID, run.Method, run.ConversionValue, string(weights),
		run.TouchpointCount, run.DroppedCount, run.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	creditStmt := tx.StmtContext(ctx, insertCredit)
	for _, c := range run.Credits {
		if _, err := creditStmt.ExecContext(ctx, run.ID, c.TouchpointID, c.Channel, c.Type, c.Value, c.Share); err != nil {
			return fmt.Errorf("failed to insert credit %s: %w", c.TouchpointID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// GetRun loads a run with its credits
func (r *Repository) GetRun(ctx context.Context, id string) (*Run, error) {
	stmt, err := r.db.stmt(stmtGetRun)
	if err != nil {
		return nil, err
	}

	run, err := scanRun(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	credits, err := r.db.stmt(stmtGetCredits)
	if err != nil {
		return nil, err
	}
	rows, err := credits.QueryContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	run.Credits = []RunCredit{}
	for rows.Next() {
		var c RunCredit
		if err := rows.Scan(&c.TouchpointID, &c.Channel, &c.Type, &c.Value, &c.Share); err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		run.Credits = append(run.Credits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credits: %w", err)
	}

	return run, nil
}

// ListRuns returns a tenant's runs newest first, without credits
func (r *Repository) ListRuns(ctx context.Context, tenant string, limit, offset int) ([]Run, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	stmt, err := r.db.stmt(stmtListRuns)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, tenant, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// ChannelLeaderboard ranks channels by value credited across a tenant's runs
func (r *Repository) ChannelLeaderboard(ctx context.Context, tenant string, limit int) ([]ChannelStanding, error) {
	limit = clampLimit(limit)

	stmt, err := r.db.stmt(stmtChannelLeaderboard)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	standings := []ChannelStanding{}
	for rows.Next() {
		var s ChannelStanding
		if err := rows.Scan(&s.Channel, &s.TotalValue, &s.Credits, &s.Runs); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		s.Rank = len(standings) + 1
		standings = append(standings, s)
	}

	return standings, rows.Err()
}

// PruneRuns deletes runs created before cutoff; credits cascade
func (r *Repository) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attribution_runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var weights string
	if err := row.Scan(
		&run.ID, &run.Tenant, &run.OpportunityID, &run.Method, &run.ConversionValue, &weights,
		&run.TouchpointCount, &run.DroppedCount, &run.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(weights), &run.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights: %w", err)
	}
	return &run, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
