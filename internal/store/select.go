package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ResultFilter selects stored rows. Zero fields match everything except
// RunID, which is required.
type ResultFilter struct {
	RunID    string
	Query    string
	Entity   string
	FromStep int64 // inclusive; 0 means no lower bound
	ToStep   int64 // inclusive; 0 means no upper bound
}

// resultsOrder is the commit order of rows. Every select over results
// ends with it so reads are reproducible.
const resultsOrder = "seq ASC, query COLLATE BINARY ASC, entity COLLATE BINARY ASC"

// compile builds the parameterized SELECT for f. Values are always bound,
// never interpolated.
func (f ResultFilter) compile() (string, []any, error) {
	if f.RunID == "" {
		return "", nil, errors.New("result filter: run id is required")
	}
	if f.FromStep > 0 && f.ToStep > 0 && f.FromStep > f.ToStep {
		return "", nil, fmt.Errorf("result filter: from step %d is after to step %d", f.FromStep, f.ToStep)
	}

	where := []string{"run_id = ?"}
	params := []any{f.RunID}
	if f.Query != "" {
		where = append(where, "query = ?")
		params = append(params, f.Query)
	}
	if f.Entity != "" {
		where = append(where, "entity = ?")
		params = append(params, f.Entity)
	}
	if f.FromStep > 0 {
		where = append(where, "step >= ?")
		params = append(params, f.FromStep)
	}
	if f.ToStep > 0 {
		where = append(where, "step <= ?")
		params = append(params, f.ToStep)
	}

	sql := "SELECT seq, step, query, entity, row_values, row_hash FROM results WHERE " +
		strings.Join(where, " AND ") + " ORDER BY " + resultsOrder
	return sql, params, nil
}

// SelectResults returns the rows matching f in commit order.
func (s *Store) SelectResults(ctx context.Context, f ResultFilter) ([]StoredRow, error) {
	q, params, err := f.compile()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, params...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []StoredRow
	for rows.Next() {
		var (
			r      StoredRow
			values string
		)
		if err := rows.Scan(&r.Seq, &r.Step, &r.Query, &r.Entity, &values, &r.Hash); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
			return nil, fmt.Errorf("decode row %s/%s at seq %d: %w", r.Query, r.Entity, r.Seq, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
