package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/oneprompteu/oneprompt/internal/apperror"
	"github.com/oneprompteu/oneprompt/internal/model"
	"github.com/oneprompteu/oneprompt/internal/repository"
)

// Compile-time check that *DB implements repository.RunRepository.
var _ repository.RunRepository = (*DB)(nil)

// Create inserts a run record. The xid ID is generated here so records
// sort by creation time.
func (db *DB) Create(ctx context.Context, run *model.Run) error {
	run.ID = xid.New().String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, run_id, ok, error_kind, code_size, output_size, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SessionID,
		run.RunID,
		boolToInt(run.OK),
		run.ErrorKind,
		run.CodeSize,
		run.OutputSize,
		run.Duration.Milliseconds(),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating run record: %w", err)
	}

	return nil
}

// GetByID retrieves a single run record.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Run, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, session_id, run_id, ok, error_kind, code_size, output_size, duration_ms, created_at
		 FROM runs WHERE id = ?`, id)

	run, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("run", id)
		}
		return nil, fmt.Errorf("sqlite: getting run %s: %w", id, err)
	}
	return run, nil
}

// List returns run records, newest first, optionally filtered by session.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	query := `SELECT id, session_id, run_id, ok, error_kind, code_size, output_size, duration_ms, created_at
		 FROM runs`
	args := []any{}
	if opts.SessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, opts.SessionID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(scan func(...any) error) (*model.Run, error) {
	var run model.Run
	var ok int
	var durationMS int64
	err := scan(
		&run.ID,
		&run.SessionID,
		&run.RunID,
		&ok,
		&run.ErrorKind,
		&run.CodeSize,
		&run.OutputSize,
		&durationMS,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.OK = ok != 0
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
