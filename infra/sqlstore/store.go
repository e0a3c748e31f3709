// Package sqlstore implements core/store.Store on database/sql. SQLite
// (modernc.org/sqlite) is the default backend; PostgreSQL is reached through
// lib/pq with the same schema.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kilianp07/sitepower/core/model"
	"github.com/kilianp07/sitepower/core/store"
)

// Dialect selects the placeholder style and driver name.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config selects the backend.
type Config struct {
	Driver       Dialect `json:"driver"`
	DSN          string  `json:"dsn"`
	MaxOpenConns int     `json:"max_open_conns"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DialectSQLite
	}
	if c.DSN == "" && c.Driver == DialectSQLite {
		c.DSN = "sitepower.db"
	}
	if c.MaxOpenConns == 0 && c.Driver == DialectSQLite {
		c.MaxOpenConns = 1
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	switch c.Driver {
	case DialectSQLite, DialectPostgres:
	default:
		return fmt.Errorf("store: unknown driver %q", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("store: dsn is required")
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("store: max_open_conns must not be negative")
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS site (
        site_no TEXT PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        total_power_limit DOUBLE PRECISION NOT NULL,
        demand DOUBLE PRECISION NOT NULL,
        active BOOLEAN NOT NULL DEFAULT TRUE
    )`,
	`CREATE TABLE IF NOT EXISTS connector_state (
        site_no TEXT NOT NULL,
        charger_sn TEXT NOT NULL,
        current_power DOUBLE PRECISION NOT NULL DEFAULT 0,
        rated_power DOUBLE PRECISION NOT NULL DEFAULT 0,
        status TEXT NOT NULL,
        updated_at BIGINT NOT NULL DEFAULT 0,
        PRIMARY KEY(site_no, charger_sn)
    )`,
	`CREATE TABLE IF NOT EXISTS alert (
        id TEXT PRIMARY KEY,
        site_no TEXT NOT NULL,
        subject TEXT NOT NULL,
        alert_type TEXT NOT NULL,
        message TEXT NOT NULL,
        severity TEXT NOT NULL,
        status TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        resolved_at BIGINT
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS alert_active_key ON alert(subject, alert_type) WHERE status = 'ACTIVE'`,
	`CREATE INDEX IF NOT EXISTS alert_site_status ON alert(site_no, status)`,
	`CREATE TABLE IF NOT EXISTS prediction (
        session_id TEXT NOT NULL,
        site_no TEXT NOT NULL,
        charger_sn TEXT NOT NULL,
        mac_addr TEXT NOT NULL DEFAULT '',
        soc DOUBLE PRECISION NOT NULL,
        power DOUBLE PRECISION NOT NULL,
        target_soc DOUBLE PRECISION NOT NULL,
        time_to_target DOUBLE PRECISION NOT NULL,
        predicted_power DOUBLE PRECISION NOT NULL,
        created_at BIGINT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS prediction_created ON prediction(created_at)`,
	`CREATE TABLE IF NOT EXISTS vehicle_model (
        session_id TEXT PRIMARY KEY,
        mac_addr TEXT NOT NULL,
        charger_sn TEXT NOT NULL DEFAULT '',
        capacity DOUBLE PRECISION NOT NULL,
        max_voltage DOUBLE PRECISION NOT NULL,
        max_current DOUBLE PRECISION NOT NULL,
        max_power DOUBLE PRECISION NOT NULL,
        model TEXT NOT NULL,
        reported_at BIGINT NOT NULL
    )`,
}

// Store persists sites, alerts and telemetry outcomes.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to the configured database and ensures the schema.
func Open(cfg Config) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	s := newStore(db, cfg.Driver)
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, now: time.Now}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// wrap classifies a driver error against the store sentinels.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		// without extended result codes only the message tells them apart
		return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

const siteQuery = `SELECT s.site_no, s.name, s.total_power_limit, s.demand, s.active,
        COALESCE(SUM(c.current_power), 0)
    FROM site s LEFT JOIN connector_state c ON c.site_no = s.site_no`

const siteGroup = ` GROUP BY s.site_no, s.name, s.total_power_limit, s.demand, s.active`

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(r scanner) (model.Site, error) {
	var site model.Site
	err := r.Scan(&site.SiteNo, &site.Name, &site.TotalPowerLimit, &site.Demand, &site.Active, &site.CurrentPower)
	return site, err
}

// GetSite returns the site with CurrentPower summed over its connectors.
func (s *Store) GetSite(ctx context.Context, siteNo string) (model.Site, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(siteQuery+` WHERE s.site_no = ?`+siteGroup), siteNo)
	site, err := scanSite(row)
	if err != nil {
		return model.Site{}, wrap("get site "+siteNo, err)
	}
	return site, nil
}

func (s *Store) GetActiveSites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(siteQuery+` WHERE s.active = ?`+siteGroup+` ORDER BY s.site_no`), true)
	if err != nil {
		return nil, wrap("active sites", err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, wrap("scan site", err)
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("active sites", err)
	}
	return out, nil
}

// GetConnectorStates returns the connectors of a site ordered by serial.
func (s *Store) GetConnectorStates(ctx context.Context, siteNo string) ([]model.ConnectorState, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT charger_sn, current_power, rated_power, status, updated_at
        FROM connector_state WHERE site_no = ? ORDER BY charger_sn`), siteNo)
	if err != nil {
		return nil, wrap("connector states "+siteNo, err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.ConnectorState
	for rows.Next() {
		cs := model.ConnectorState{SiteNo: siteNo}
		var status string
		var updated int64
		if err := rows.Scan(&cs.ChargerSN, &cs.CurrentPower, &cs.RatedPower, &status, &updated); err != nil {
			return nil, wrap("scan connector", err)
		}
		cs.Status = model.ConnectorStatus(status)
		cs.UpdatedAt = fromMillis(updated)
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("connector states "+siteNo, err)
	}
	if len(out) == 0 {
		if err := s.siteExists(ctx, siteNo); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) siteExists(ctx context.Context, siteNo string) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM site WHERE site_no = ?`), siteNo).Scan(&one)
	return wrap("site "+siteNo, err)
}

// PutSite inserts or replaces a site. Sites are owned by an external system;
// this is used to seed the database.
func (s *Store) PutSite(ctx context.Context, site model.Site) error {
	if err := site.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO site (site_no, name, total_power_limit, demand, active)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(site_no) DO UPDATE SET
            name = excluded.name,
            total_power_limit = excluded.total_power_limit,
            demand = excluded.demand,
            active = excluded.active`),
		site.SiteNo, site.Name, site.TotalPowerLimit, site.Demand, site.Active)
	return wrap("put site "+site.SiteNo, err)
}

// PutConnector inserts or replaces one connector snapshot.
func (s *Store) PutConnector(ctx context.Context, cs model.ConnectorState) error {
	updated := cs.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO connector_state (site_no, charger_sn, current_power, rated_power, status, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(site_no, charger_sn) DO UPDATE SET
            current_power = excluded.current_power,
            rated_power = excluded.rated_power,
            status = excluded.status,
            updated_at = excluded.updated_at`),
		cs.SiteNo, cs.ChargerSN, cs.CurrentPower, cs.RatedPower, string(cs.Status), millis(updated))
	return wrap("put connector "+cs.ChargerSN, err)
}

func (s *Store) UpdateConnectorStatus(ctx context.Context, siteNo, chargerSN string, st model.ConnectorStatus) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE connector_state SET status = ?, updated_at = ?
        WHERE site_no = ? AND charger_sn = ?`), string(st), millis(s.now()), siteNo, chargerSN)
	if err != nil {
		return wrap("update connector "+chargerSN, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update connector "+chargerSN, err)
	}
	if n == 0 {
		return fmt.Errorf("connector %s/%s: %w", siteNo, chargerSN, store.ErrNotFound)
	}
	return nil
}

// ActiveAlerts returns the ACTIVE alerts of a site, oldest first.
func (s *Store) ActiveAlerts(ctx context.Context, siteNo string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, site_no, subject, alert_type, message, severity, status, created_at, resolved_at
        FROM alert WHERE site_no = ? AND status = ? ORDER BY created_at`), siteNo, string(model.AlertActive))
	if err != nil {
		return nil, wrap("active alerts "+siteNo, err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var typ, sev, status string
		var created int64
		var resolved sql.NullInt64
		if err := rows.Scan(&a.ID, &a.SiteNo, &a.Subject, &typ, &a.Message, &sev, &status, &created, &resolved); err != nil {
			return nil, wrap("scan alert", err)
		}
		a.Type = model.AlertType(typ)
		a.Severity = model.Severity(sev)
		a.Status = model.AlertStatus(status)
		a.CreatedAt = fromMillis(created)
		if resolved.Valid {
			t := fromMillis(resolved.Int64)
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("active alerts "+siteNo, err)
	}
	return out, nil
}

// SaveAlert inserts a. A second ACTIVE alert for the same key fails with
// store.ErrConflict.
func (s *Store) SaveAlert(ctx context.Context, a model.Alert) error {
	var resolved sql.NullInt64
	if a.ResolvedAt != nil {
		resolved = sql.NullInt64{Int64: millis(*a.ResolvedAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO alert (id, site_no, subject, alert_type, message, severity, status, created_at, resolved_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.SiteNo, a.Subject, string(a.Type), a.Message, string(a.Severity), string(a.Status), millis(a.CreatedAt), resolved)
	return wrap("save alert "+a.ID, err)
}

func (s *Store) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE alert SET status = ?, resolved_at = ? WHERE id = ?`),
		string(model.AlertResolved), millis(at), id)
	if err != nil {
		return wrap("resolve alert "+id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("resolve alert "+id, err)
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// SavePredictions stores one row per checkpoint of rec in a single
// transaction.
func (s *Store) SavePredictions(ctx context.Context, rec model.PredictionRecord) error {
	if len(rec.Results) == 0 {
		return nil
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin predictions", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO prediction
        (session_id, site_no, charger_sn, mac_addr, soc, power, target_soc, time_to_target, predicted_power, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return wrap("prepare predictions", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range rec.Results {
		if _, err := stmt.ExecContext(ctx, rec.SessionID, rec.SiteNo, rec.ChargerSN, rec.MacAddr, rec.SOC, rec.Power,
			r.TargetSOC, r.TimeToTarget, r.PredictedPower, millis(created)); err != nil {
			return wrap("insert prediction", err)
		}
	}
	return wrap("commit predictions", tx.Commit())
}

// SaveVehicleModel inserts or replaces the recognition of a session.
func (s *Store) SaveVehicleModel(ctx context.Context, vm model.VehicleModel) error {
	reported := vm.ReportedAt
	if reported.IsZero() {
		reported = s.now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO vehicle_model
        (session_id, mac_addr, charger_sn, capacity, max_voltage, max_current, max_power, model, reported_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(session_id) DO UPDATE SET
            mac_addr = excluded.mac_addr,
            charger_sn = excluded.charger_sn,
            capacity = excluded.capacity,
            max_voltage = excluded.max_voltage,
            max_current = excluded.max_current,
            max_power = excluded.max_power,
            model = excluded.model,
            reported_at = excluded.reported_at`),
		vm.SessionID, vm.MacAddr, vm.ChargerSN, vm.Capacity, vm.MaxVoltage, vm.MaxCurrent, vm.MaxPower, vm.Model, millis(reported))
	return wrap("save vehicle model "+vm.SessionID, err)
}

// Cleanup deletes prediction rows and resolved alerts older than the
// retention. Prediction counts are rows, one per checkpoint.
func (s *Store) Cleanup(ctx context.Context, r store.Retention, now time.Time) (store.CleanupResult, error) {
	var res store.CleanupResult
	if r.Predictions > 0 {
		n, err := s.deleteOlder(ctx, `DELETE FROM prediction WHERE created_at < ?`, millis(now.Add(-r.Predictions)))
		if err != nil {
			return res, wrap("purge predictions", err)
		}
		res.Predictions = n
	}
	if r.ResolvedAlerts > 0 {
		n, err := s.deleteOlder(ctx, `DELETE FROM alert WHERE status = ? AND resolved_at < ?`,
			string(model.AlertResolved), millis(now.Add(-r.ResolvedAlerts)))
		if err != nil {
			return res, wrap("purge alerts", err)
		}
		res.ResolvedAlerts = n
	}
	return res, nil
}

func (s *Store) deleteOlder(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
