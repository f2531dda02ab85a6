package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/framestate/internal/engine"
	"github.com/roach88/framestate/internal/query"
)

// Run is one engine run.
type Run struct {
	ID         string  `json:"id"`
	ConfigHash string  `json:"config_hash"`
	Rate       float64 `json:"rate"`
	Label      string  `json:"label,omitempty"`
}

// BeginRun records a run. Idempotent when the run already exists with the
// same config hash.
func (s *Store) BeginRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return fmt.Errorf("run id required")
	}
	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT config_hash FROM runs WHERE id = ?", r.ID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO runs (id, config_hash, rate, label) VALUES (?, ?, ?, ?)",
			r.ID, r.ConfigHash, r.Rate, r.Label)
		if err != nil {
			return fmt.Errorf("insert run %s: %w", r.ID, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("lookup run %s: %w", r.ID, err)
	case existing != r.ConfigHash:
		return fmt.Errorf("run %s already recorded with config %s", r.ID, existing)
	}
	return nil
}

// WriteStep stores a committed step and its rows in one transaction.
func (s *Store) WriteStep(ctx context.Context, runID string, seq int64, frame engine.Frame, rows []query.Row) error {
	frameJSON, err := canonicalFrame(frame)
	if err != nil {
		return fmt.Errorf("encode frame at step %d: %w", frame.Step, err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO steps (run_id, seq, step, frame) VALUES (?, ?, ?, ?)",
			runID, seq, frame.Step, string(frameJSON)); err != nil {
			return fmt.Errorf("insert step %d: %w", frame.Step, err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO results (run_id, seq, step, query, entity, row_values, row_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare results insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			data, err := rowValues(row)
			if err != nil {
				return err
			}
			hash := hashWithDomain(domainRow, rowKey(row, data))
			if _, err := stmt.ExecContext(ctx,
				runID, seq, row.Step, row.Query, row.Entity, string(data), hash); err != nil {
				return fmt.Errorf("insert row %s/%s: %w", row.Query, row.Entity, err)
			}
		}
		return nil
	})
}

// RecordStep implements engine.Recorder.
func (s *Store) RecordStep(ctx context.Context, runID string, seq int64, frame engine.Frame, rows []query.Row) error {
	return s.WriteStep(ctx, runID, seq, frame, rows)
}

var _ engine.Recorder = (*Store)(nil)

// canonicalFrame round-trips the frame through encoding/json so struct tags
// apply, then re-encodes it canonically.
func canonicalFrame(f engine.Frame) ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return MarshalCanonical(v)
}
