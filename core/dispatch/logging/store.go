// Package logging persists one record per reallocation run, the optimization
// task log. Backends are a plain JSONL file, a size-rotated JSONL file and a
// SQLite database.
package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/sitepower/core/model"
)

// Limits are the allocation parameters in effect for a task.
type Limits struct {
	MaxReduction float64 `json:"max_reduction"`
	MinImpact    float64 `json:"min_impact"`
}

// Trigger values.
const (
	TriggerDemandChange = "demand_change"
	TriggerManual       = "manual"
)

// TaskRecord captures one reallocation run and the profile it produced.
type TaskRecord struct {
	TaskID               string               `json:"task_id"`
	SiteNo               string               `json:"site_no"`
	Trigger              string               `json:"trigger"`
	Demand               float64              `json:"demand"`
	TotalBefore          float64              `json:"total_before"`
	TotalAfter           float64              `json:"total_after"`
	Shortfall            float64              `json:"shortfall"`
	CapacityInsufficient bool                 `json:"capacity_insufficient"`
	DryRun               bool                 `json:"dry_run"`
	Limits               Limits               `json:"limits"`
	Profiles             []model.PowerProfile `json:"profiles"`
	Error                string               `json:"error,omitempty"`
	StartTime            time.Time            `json:"start_time"`
	EndTime              time.Time            `json:"end_time"`
}

// TaskQuery defines filters for retrieving records. Zero fields match all.
type TaskQuery struct {
	Start     time.Time
	End       time.Time
	SiteNo    string
	ChargerSN string
}

// Match reports whether r satisfies the query.
func (q TaskQuery) Match(r TaskRecord) bool {
	if !q.Start.IsZero() && r.StartTime.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.StartTime.After(q.End) {
		return false
	}
	if q.SiteNo != "" && r.SiteNo != q.SiteNo {
		return false
	}
	if q.ChargerSN != "" {
		for _, p := range r.Profiles {
			if p.ChargerSN == q.ChargerSN {
				return true
			}
		}
		return false
	}
	return true
}

// TaskStore persists TaskRecords and supports querying and pruning.
type TaskStore interface {
	Append(ctx context.Context, rec TaskRecord) error
	Query(ctx context.Context, q TaskQuery) ([]TaskRecord, error)
	// Prune removes records that ended before the cutoff and returns how
	// many were dropped.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Config selects and configures the task log backend.
type Config struct {
	// Backend is "jsonl", "rotating" or "sqlite". Empty disables the log.
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		return
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "optimization_tasks.db"
		default:
			c.Path = "optimization_tasks.jsonl"
		}
	}
	if c.Backend == "rotating" && c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 50
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "", "jsonl", "rotating", "sqlite":
	default:
		return fmt.Errorf("unknown task log backend %s", c.Backend)
	}
	if c.Backend != "" && c.Path == "" {
		return fmt.Errorf("task log path is required")
	}
	return nil
}

// New opens the store described by cfg. A nil store and nil error are
// returned when the log is disabled.
func New(cfg Config) (TaskStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "jsonl":
		return NewJSONLStore(cfg.Path)
	case "rotating":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown task log backend %s", cfg.Backend)
	}
}
