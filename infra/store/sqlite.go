// Package store provides the SQLite-backed implementation of the engine's
// persistence boundary.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fleetops/dutyroster/core/model"
)

// SQLiteStore persists drivers, blocks, assignments, rules and time off in a
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// New opens or creates the database at path and ensures the schema.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `
    CREATE TABLE IF NOT EXISTS drivers (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        name TEXT NOT NULL,
        active INTEGER NOT NULL DEFAULT 1,
        days_off TEXT NOT NULL DEFAULT '[]'
    );
    CREATE TABLE IF NOT EXISTS duty_blocks (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        service_date TEXT NOT NULL,
        day_of_week INTEGER NOT NULL,
        duty_type TEXT NOT NULL,
        resource_id TEXT NOT NULL,
        start_time INTEGER NOT NULL,
        end_time INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_blocks_tenant_date ON duty_blocks(tenant_id, service_date);
    CREATE TABLE IF NOT EXISTS assignments (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        block_id TEXT NOT NULL,
        driver_id TEXT NOT NULL,
        active INTEGER NOT NULL DEFAULT 1,
        assigned_at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_assignments_block ON assignments(tenant_id, block_id);
    CREATE INDEX IF NOT EXISTS idx_assignments_driver ON assignments(tenant_id, driver_id);
    CREATE TABLE IF NOT EXISTS protected_rules (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        driver_id TEXT NOT NULL,
        allow_days TEXT NOT NULL DEFAULT '[]',
        block_days TEXT NOT NULL DEFAULT '[]',
        allow_duty_types TEXT NOT NULL DEFAULT '[]'
    );
    CREATE TABLE IF NOT EXISTS time_off_requests (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        driver_id TEXT NOT NULL,
        status TEXT NOT NULL,
        start_date TEXT NOT NULL DEFAULT '',
        end_date TEXT NOT NULL DEFAULT '',
        recurring_days TEXT NOT NULL DEFAULT '[]'
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func marshalDays(days []time.Weekday) string {
	if len(days) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(days)
	return string(b)
}

func unmarshalDays(data string) ([]time.Weekday, error) {
	var out []time.Weekday
	if data == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal weekday list: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// BlocksByDateRange returns blocks with a service date inside [from, to].
func (s *SQLiteStore) BlocksByDateRange(ctx context.Context, tenantID, from, to string) ([]model.DutyBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, service_date, day_of_week, duty_type, resource_id, start_time, end_time
        FROM duty_blocks WHERE tenant_id = ? AND service_date >= ? AND service_date <= ?
        ORDER BY service_date, start_time`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.DutyBlock
	for rows.Next() {
		var b model.DutyBlock
		var day int
		var start, end int64
		var dutyType string
		if err := rows.Scan(&b.ID, &b.ServiceDate, &day, &dutyType, &b.ResourceID, &start, &end); err != nil {
			return nil, err
		}
		b.TenantID = tenantID
		b.Day = time.Weekday(day)
		b.DutyType = model.ParseDutyType(dutyType)
		b.StartTime = time.Unix(start, 0).UTC()
		b.EndTime = time.Unix(end, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// ActiveAssignments returns every active assignment for the tenant.
func (s *SQLiteStore) ActiveAssignments(ctx context.Context, tenantID string) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, block_id, driver_id, assigned_at
        FROM assignments WHERE tenant_id = ? AND active = 1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var at int64
		if err := rows.Scan(&a.ID, &a.BlockID, &a.DriverID, &at); err != nil {
			return nil, err
		}
		a.TenantID = tenantID
		a.Active = true
		a.AssignedAt = time.Unix(at, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// AssignmentHistory returns a driver's active assignments joined to their
// blocks for service dates inside [from, to].
func (s *SQLiteStore) AssignmentHistory(ctx context.Context, tenantID, driverID, from, to string) ([]model.AssignedBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT a.id, a.block_id, a.assigned_at,
               b.id, b.service_date, b.day_of_week, b.duty_type, b.resource_id, b.start_time, b.end_time
        FROM assignments a JOIN duty_blocks b ON a.block_id = b.id
        WHERE a.tenant_id = ? AND a.driver_id = ? AND a.active = 1
          AND b.service_date >= ? AND b.service_date <= ?
        ORDER BY b.start_time`, tenantID, driverID, from, to)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.AssignedBlock
	for rows.Next() {
		var ab model.AssignedBlock
		var at, start, end int64
		var day int
		var dutyType string
		if err := rows.Scan(&ab.Assignment.ID, &ab.Assignment.BlockID, &at,
			&ab.Block.ID, &ab.Block.ServiceDate, &day, &dutyType, &ab.Block.ResourceID, &start, &end); err != nil {
			return nil, err
		}
		ab.Assignment.TenantID = tenantID
		ab.Assignment.DriverID = driverID
		ab.Assignment.Active = true
		ab.Assignment.AssignedAt = time.Unix(at, 0).UTC()
		ab.Block.TenantID = tenantID
		ab.Block.Day = time.Weekday(day)
		ab.Block.DutyType = model.ParseDutyType(dutyType)
		ab.Block.StartTime = time.Unix(start, 0).UTC()
		ab.Block.EndTime = time.Unix(end, 0).UTC()
		out = append(out, ab)
	}
	return out, rows.Err()
}

// ActiveDrivers returns the tenant's active roster.
func (s *SQLiteStore) ActiveDrivers(ctx context.Context, tenantID string) ([]model.Driver, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, name, days_off FROM drivers WHERE tenant_id = ? AND active = 1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Driver
	for rows.Next() {
		var d model.Driver
		var daysOff string
		if err := rows.Scan(&d.ID, &d.Name, &daysOff); err != nil {
			return nil, err
		}
		d.Active = true
		if d.DaysOff, err = unmarshalDays(daysOff); err != nil {
			return nil, fmt.Errorf("driver %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ProtectedRules returns every rule for the tenant.
func (s *SQLiteStore) ProtectedRules(ctx context.Context, tenantID string) ([]model.ProtectedRule, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, driver_id, allow_days, block_days, allow_duty_types
        FROM protected_rules WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ProtectedRule
	for rows.Next() {
		var r model.ProtectedRule
		var allowDays, blockDays, allowTypes string
		if err := rows.Scan(&r.ID, &r.DriverID, &allowDays, &blockDays, &allowTypes); err != nil {
			return nil, err
		}
		if r.AllowDays, err = unmarshalDays(allowDays); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if r.BlockDays, err = unmarshalDays(blockDays); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		var types []model.DutyType
		if allowTypes != "" && allowTypes != "[]" {
			if err := json.Unmarshal([]byte(allowTypes), &types); err != nil {
				return nil, fmt.Errorf("rule %s: unmarshal duty types: %w", r.ID, err)
			}
		}
		r.AllowDutyTypes = types
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApprovedTimeOff returns the tenant's approved time-off requests.
func (s *SQLiteStore) ApprovedTimeOff(ctx context.Context, tenantID string) ([]model.TimeOffRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, driver_id, status, start_date, end_date, recurring_days
        FROM time_off_requests WHERE tenant_id = ? AND status = ?`, tenantID, string(model.TimeOffApproved))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.TimeOffRequest
	for rows.Next() {
		var r model.TimeOffRequest
		var status, recurring string
		if err := rows.Scan(&r.ID, &r.DriverID, &status, &r.StartDate, &r.EndDate, &recurring); err != nil {
			return nil, err
		}
		r.Status = model.TimeOffStatus(status)
		if r.RecurringDays, err = unmarshalDays(recurring); err != nil {
			return nil, fmt.Errorf("time off %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertAssignment activates an assignment of driverID to blockID, reusing
// the block's existing row when one exists rather than duplicating it.
func (s *SQLiteStore) UpsertAssignment(ctx context.Context, tenantID, blockID, driverID string) (model.Assignment, error) {
	now := time.Now().UTC()
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM assignments WHERE tenant_id = ? AND block_id = ?`, tenantID, blockID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		_, err = s.db.ExecContext(ctx, `
            INSERT INTO assignments (id, tenant_id, block_id, driver_id, active, assigned_at)
            VALUES (?, ?, ?, ?, 1, ?)`, id, tenantID, blockID, driverID, now.Unix())
	case err == nil:
		_, err = s.db.ExecContext(ctx, `
            UPDATE assignments SET driver_id = ?, active = 1, assigned_at = ? WHERE id = ?`,
			driverID, now.Unix(), id)
	}
	if err != nil {
		return model.Assignment{}, err
	}
	return model.Assignment{
		ID: id, TenantID: tenantID, BlockID: blockID, DriverID: driverID,
		Active: true, AssignedAt: now,
	}, nil
}

// DeactivateAssignment soft-deletes the block's active assignment and
// returns it, or nil when none existed.
func (s *SQLiteStore) DeactivateAssignment(ctx context.Context, tenantID, blockID string) (*model.Assignment, error) {
	var a model.Assignment
	var at int64
	err := s.db.QueryRowContext(ctx, `
        SELECT id, driver_id, assigned_at FROM assignments
        WHERE tenant_id = ? AND block_id = ? AND active = 1`, tenantID, blockID).
		Scan(&a.ID, &a.DriverID, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE assignments SET active = 0 WHERE id = ?`, a.ID); err != nil {
		return nil, err
	}
	a.TenantID = tenantID
	a.BlockID = blockID
	a.Active = false
	a.AssignedAt = time.Unix(at, 0).UTC()
	return &a, nil
}

// InsertDriver provisions a driver row. Used by seeding and tests; the
// engine itself never writes drivers.
func (s *SQLiteStore) InsertDriver(ctx context.Context, tenantID string, d model.Driver) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO drivers (id, tenant_id, name, active, days_off) VALUES (?, ?, ?, ?, ?)`,
		d.ID, tenantID, d.Name, boolInt(d.Active), marshalDays(d.DaysOff))
	return err
}

// InsertBlock provisions a duty block row.
func (s *SQLiteStore) InsertBlock(ctx context.Context, b model.DutyBlock) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO duty_blocks (id, tenant_id, service_date, day_of_week, duty_type, resource_id, start_time, end_time)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.ServiceDate, int(b.Day), string(b.DutyType), b.ResourceID,
		b.StartTime.Unix(), b.EndTime.Unix())
	return err
}

// InsertProtectedRule provisions a rule row.
func (s *SQLiteStore) InsertProtectedRule(ctx context.Context, tenantID string, r model.ProtectedRule) error {
	types := "[]"
	if len(r.AllowDutyTypes) > 0 {
		b, _ := json.Marshal(r.AllowDutyTypes)
		types = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO protected_rules (id, tenant_id, driver_id, allow_days, block_days, allow_duty_types)
        VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, tenantID, r.DriverID, marshalDays(r.AllowDays), marshalDays(r.BlockDays), types)
	return err
}

// InsertTimeOff provisions a time-off request row.
func (s *SQLiteStore) InsertTimeOff(ctx context.Context, tenantID string, r model.TimeOffRequest) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO time_off_requests (id, tenant_id, driver_id, status, start_date, end_date, recurring_days)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, tenantID, r.DriverID, string(r.Status), r.StartDate, r.EndDate, marshalDays(r.RecurringDays))
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
