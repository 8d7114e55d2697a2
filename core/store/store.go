// Package store defines the persistence boundary consumed by the engine.
// The engine never touches untyped rows: every load returns typed records
// constructed at the store boundary.
package store

import (
	"context"

	"github.com/fleetops/dutyroster/core/model"
)

// Store is the relational-store contract. All reads are tenant-scoped; the
// only writes are the assignment upsert and soft delete.
type Store interface {
	// BlocksByDateRange returns duty blocks with a service date inside
	// [from, to] inclusive.
	BlocksByDateRange(ctx context.Context, tenantID, from, to string) ([]model.DutyBlock, error)

	// ActiveAssignments returns every active assignment for the tenant.
	ActiveAssignments(ctx context.Context, tenantID string) ([]model.Assignment, error)

	// AssignmentHistory returns a driver's active assignments joined to
	// their blocks for service dates inside [from, to] inclusive.
	AssignmentHistory(ctx context.Context, tenantID, driverID, from, to string) ([]model.AssignedBlock, error)

	// ActiveDrivers returns the tenant's active roster.
	ActiveDrivers(ctx context.Context, tenantID string) ([]model.Driver, error)

	// ProtectedRules returns every protected rule for the tenant.
	ProtectedRules(ctx context.Context, tenantID string) ([]model.ProtectedRule, error)

	// ApprovedTimeOff returns the tenant's approved time-off requests.
	ApprovedTimeOff(ctx context.Context, tenantID string) ([]model.TimeOffRequest, error)

	// UpsertAssignment activates an assignment of driverID to blockID,
	// reusing an existing row for the block when one exists.
	UpsertAssignment(ctx context.Context, tenantID, blockID, driverID string) (model.Assignment, error)

	// DeactivateAssignment soft-deletes the active assignment for the
	// block and returns it, or nil when the block had none.
	DeactivateAssignment(ctx context.Context, tenantID, blockID string) (*model.Assignment, error)
}
