package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetops/dutyroster/core/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func seedBlock(t *testing.T, s *SQLiteStore, id, date string, dt model.DutyType) model.DutyBlock {
	t.Helper()
	day, err := model.ParseDate(date)
	require.NoError(t, err)
	b := model.DutyBlock{
		ID: id, TenantID: "t1", ServiceDate: date, Day: day.Weekday(),
		DutyType: dt, ResourceID: "Tractor_1",
		StartTime: day.Add(5 * time.Hour), EndTime: day.Add(13 * time.Hour),
	}
	require.NoError(t, s.InsertBlock(context.Background(), b))
	return b
}

func TestBlocksByDateRange(t *testing.T) {
	s := openTestStore(t)
	seedBlock(t, s, "b1", "2025-01-06", model.DutyTypeA)
	seedBlock(t, s, "b2", "2025-01-08", model.DutyTypeB)
	seedBlock(t, s, "b3", "2025-02-01", model.DutyTypeA)

	got, err := s.BlocksByDateRange(context.Background(), "t1", "2025-01-05", "2025-01-11")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b1", got[0].ID)
	require.Equal(t, model.DutyTypeB, got[1].DutyType)
	require.Equal(t, time.Wednesday, got[1].Day)

	none, err := s.BlocksByDateRange(context.Background(), "other", "2025-01-05", "2025-01-11")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestUpsertAssignmentReusesRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBlock(t, s, "b1", "2025-01-06", model.DutyTypeA)

	first, err := s.UpsertAssignment(ctx, "t1", "b1", "d1")
	require.NoError(t, err)
	require.True(t, first.Active)

	// Re-assigning the same block must update the row, not add another.
	second, err := s.UpsertAssignment(ctx, "t1", "b1", "d2")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "d2", second.DriverID)

	active, err := s.ActiveAssignments(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "d2", active[0].DriverID)
}

func TestDeactivateAssignmentSoftDeletes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBlock(t, s, "b1", "2025-01-06", model.DutyTypeA)
	_, err := s.UpsertAssignment(ctx, "t1", "b1", "d1")
	require.NoError(t, err)

	prev, err := s.DeactivateAssignment(ctx, "t1", "b1")
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Equal(t, "d1", prev.DriverID)

	active, err := s.ActiveAssignments(ctx, "t1")
	require.NoError(t, err)
	require.Empty(t, active)

	// No active assignment left: a second deactivate returns nil, nil.
	prev, err = s.DeactivateAssignment(ctx, "t1", "b1")
	require.NoError(t, err)
	require.Nil(t, prev)

	// The row is still there and reactivated by the next upsert.
	again, err := s.UpsertAssignment(ctx, "t1", "b1", "d3")
	require.NoError(t, err)
	require.Equal(t, "d3", again.DriverID)
}

func TestAssignmentHistoryJoinsBlocks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedBlock(t, s, "b1", "2025-01-06", model.DutyTypeA)
	seedBlock(t, s, "b2", "2025-01-08", model.DutyTypeA)
	_, err := s.UpsertAssignment(ctx, "t1", "b1", "d1")
	require.NoError(t, err)
	_, err = s.UpsertAssignment(ctx, "t1", "b2", "d1")
	require.NoError(t, err)

	hist, err := s.AssignmentHistory(ctx, "t1", "d1", "2025-01-06", "2025-01-07")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "b1", hist[0].Block.ID)
	require.False(t, hist[0].Block.StartTime.IsZero())
}

func TestDriversRulesTimeOffRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertDriver(ctx, "t1", model.Driver{
		ID: "d1", Name: "Dana Wells", Active: true, DaysOff: []time.Weekday{time.Sunday},
	}))
	require.NoError(t, s.InsertDriver(ctx, "t1", model.Driver{ID: "d2", Name: "Quinn Park", Active: false}))
	require.NoError(t, s.InsertProtectedRule(ctx, "t1", model.ProtectedRule{
		ID: "r1", DriverID: "d1",
		BlockDays:      []time.Weekday{time.Saturday},
		AllowDutyTypes: []model.DutyType{model.DutyTypeA},
	}))
	require.NoError(t, s.InsertTimeOff(ctx, "t1", model.TimeOffRequest{
		ID: "to1", DriverID: "d1", Status: model.TimeOffApproved,
		RecurringDays: []time.Weekday{time.Friday},
	}))
	require.NoError(t, s.InsertTimeOff(ctx, "t1", model.TimeOffRequest{
		ID: "to2", DriverID: "d1", Status: model.TimeOffDenied,
		StartDate: "2025-01-06", EndDate: "2025-01-07",
	}))

	drivers, err := s.ActiveDrivers(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	require.Equal(t, []time.Weekday{time.Sunday}, drivers[0].DaysOff)

	rules, err := s.ProtectedRules(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Nil(t, rules[0].AllowDays)
	require.Equal(t, []model.DutyType{model.DutyTypeA}, rules[0].AllowDutyTypes)

	off, err := s.ApprovedTimeOff(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, off, 1)
	require.True(t, off[0].Recurring())
}
