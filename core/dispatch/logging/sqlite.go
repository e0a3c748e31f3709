package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists task records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS optimization_task (
        task_id TEXT PRIMARY KEY,
        site_no TEXT NOT NULL,
        start_ts INTEGER NOT NULL,
        end_ts INTEGER NOT NULL,
        demand REAL,
        capacity_insufficient INTEGER,
        record TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_optimization_task_site ON optimization_task (site_no, start_ts);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record to the database.
func (s *SQLiteStore) Append(ctx context.Context, rec TaskRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO optimization_task (task_id, site_no, start_ts, end_ts, demand, capacity_insufficient, record)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.SiteNo, rec.StartTime.UnixNano(), rec.EndTime.UnixNano(), rec.Demand, rec.CapacityInsufficient, string(b))
	return err
}

// Query returns records matching q ordered by start time.
func (s *SQLiteStore) Query(ctx context.Context, q TaskQuery) ([]TaskRecord, error) {
	var args []any
	query := `SELECT record FROM optimization_task WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND start_ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND start_ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.SiteNo != "" {
		query += ` AND site_no = ?`
		args = append(args, q.SiteNo)
	}
	query += ` ORDER BY start_ts`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []TaskRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r TaskRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		// charger filtering needs the decoded profile
		if !q.Match(r) {
			continue
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Prune deletes the records that ended before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM optimization_task WHERE end_ts < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
