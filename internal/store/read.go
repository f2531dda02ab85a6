package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/framestate/internal/engine"
	"github.com/roach88/framestate/internal/query"
)

// StoredRow is a query row as persisted.
type StoredRow struct {
	query.Row
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

// ReadRuns returns every recorded run ordered by id.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, config_hash, rate, label FROM runs ORDER BY id COLLATE BINARY")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ConfigHash, &r.Rate, &r.Label); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ReadResults returns the rows of a run in commit order. An empty
// queryName returns rows of every query.
func (s *Store) ReadResults(ctx context.Context, runID, queryName string) ([]StoredRow, error) {
	return s.SelectResults(ctx, ResultFilter{RunID: runID, Query: queryName})
}

// ReadFrames returns the input frames of a run in commit order.
func (s *Store) ReadFrames(ctx context.Context, runID string) ([]engine.Frame, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, frame FROM steps WHERE run_id = ? ORDER BY seq ASC", runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var frames []engine.Frame
	for rows.Next() {
		var (
			seq  int64
			data string
		)
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		var f engine.Frame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return nil, fmt.Errorf("decode frame at seq %d: %w", seq, err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// LastSeq returns the highest committed seq of a run, or 0 when the run
// has no steps.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM steps WHERE run_id = ?", runID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}
