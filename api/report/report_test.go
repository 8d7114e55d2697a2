package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetops/dutyroster/core/faults"
	"github.com/fleetops/dutyroster/core/hos"
	"github.com/fleetops/dutyroster/core/model"
	"github.com/fleetops/dutyroster/infra/logger"
	"github.com/fleetops/dutyroster/infra/store"
)

const tenant = "acme"

func seedService(t *testing.T) *Service {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	ctx := context.Background()
	require.NoError(t, s.InsertDriver(ctx, tenant, model.Driver{ID: "d1", Name: "John Smith", Active: true}))

	// Two 8h blocks 4h apart put 12h of duty inside one 24h window,
	// exceeding the short-window limit of 10h.
	day, err := model.ParseDate("2025-01-06")
	require.NoError(t, err)
	blocks := []model.DutyBlock{
		{ID: "b1", TenantID: tenant, ServiceDate: "2025-01-06", Day: day.Weekday(),
			DutyType: model.DutyTypeA, ResourceID: "Tractor_1",
			StartTime: day.Add(5 * time.Hour), EndTime: day.Add(13 * time.Hour)},
		{ID: "b2", TenantID: tenant, ServiceDate: "2025-01-06", Day: day.Weekday(),
			DutyType: model.DutyTypeA, ResourceID: "Tractor_2",
			StartTime: day.Add(17 * time.Hour), EndTime: day.Add(21 * time.Hour)},
	}
	for _, b := range blocks {
		require.NoError(t, s.InsertBlock(ctx, b))
		_, err := s.UpsertAssignment(ctx, tenant, b.ID, "d1")
		require.NoError(t, err)
	}

	eval := hos.NewEvaluator(hos.DefaultLimits(), logger.NopLogger{})
	return NewService(s, eval, nil, logger.NopLogger{})
}

func TestGenerate_FlagsViolation(t *testing.T) {
	svc := seedService(t)
	rep, err := svc.Generate(context.Background(), tenant, "2025-01-05", "2025-01-11")
	require.NoError(t, err)

	require.Len(t, rep.Summaries, 1)
	require.Equal(t, 1, rep.Summaries[0].Violations)

	var monday hos.DayCell
	for _, c := range rep.Cells {
		if c.Date == "2025-01-06" {
			monday = c
		}
	}
	require.Equal(t, hos.StatusViolation, monday.Status)
	require.Equal(t, 12.0, monday.Hours)
}

func TestGenerate_EmptyDaysAreNone(t *testing.T) {
	svc := seedService(t)
	rep, err := svc.Generate(context.Background(), tenant, "2025-01-09", "2025-01-10")
	require.NoError(t, err)
	for _, c := range rep.Cells {
		require.Equal(t, hos.StatusNone, c.Status)
	}
}

func TestGenerate_BadInputs(t *testing.T) {
	svc := seedService(t)

	_, err := svc.Generate(context.Background(), tenant, "not-a-date", "2025-01-11")
	require.Error(t, err)

	_, err = svc.Generate(context.Background(), tenant, "2025-01-01", "2025-03-01")
	require.Error(t, err)
}

// countingStore records how often each load runs so tests can assert that
// invalid ranges never reach the store.
type countingStore struct {
	driverLoads  int
	historyLoads int
}

func (c *countingStore) BlocksByDateRange(context.Context, string, string, string) ([]model.DutyBlock, error) {
	return nil, nil
}

func (c *countingStore) ActiveAssignments(context.Context, string) ([]model.Assignment, error) {
	return nil, nil
}

func (c *countingStore) AssignmentHistory(context.Context, string, string, string, string) ([]model.AssignedBlock, error) {
	c.historyLoads++
	return nil, nil
}

func (c *countingStore) ActiveDrivers(context.Context, string) ([]model.Driver, error) {
	c.driverLoads++
	return []model.Driver{{ID: "d1", Name: "John Smith", Active: true}}, nil
}

func (c *countingStore) ProtectedRules(context.Context, string) ([]model.ProtectedRule, error) {
	return nil, nil
}

func (c *countingStore) ApprovedTimeOff(context.Context, string) ([]model.TimeOffRequest, error) {
	return nil, nil
}

func (c *countingStore) UpsertAssignment(context.Context, string, string, string) (model.Assignment, error) {
	return model.Assignment{}, nil
}

func (c *countingStore) DeactivateAssignment(context.Context, string, string) (*model.Assignment, error) {
	return nil, nil
}

func TestGenerate_InvalidRangeSkipsStore(t *testing.T) {
	cs := &countingStore{}
	eval := hos.NewEvaluator(hos.DefaultLimits(), logger.NopLogger{})
	svc := NewService(cs, eval, nil, logger.NopLogger{})

	_, err := svc.Generate(context.Background(), tenant, "2025-01-01", "2025-06-01")
	require.True(t, faults.Is(err, faults.InvalidRange))
	require.Zero(t, cs.driverLoads)
	require.Zero(t, cs.historyLoads)

	_, err = svc.Generate(context.Background(), tenant, "2025-01-10", "2025-01-05")
	require.True(t, faults.Is(err, faults.InvalidRange))
	require.Zero(t, cs.driverLoads)
	require.Zero(t, cs.historyLoads)

	// A valid range does hit the store.
	_, err = svc.Generate(context.Background(), tenant, "2025-01-05", "2025-01-11")
	require.NoError(t, err)
	require.Equal(t, 1, cs.driverLoads)
	require.Equal(t, 1, cs.historyLoads)
}

func TestHandler(t *testing.T) {
	svc := seedService(t)
	h := NewHandler(svc)

	r := httptest.NewRequest(http.MethodGet, "/api/compliance?tenant=acme&from=2025-01-05&to=2025-01-11", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var rep hos.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rep))
	require.Equal(t, "2025-01-05", rep.From)
	require.NotEmpty(t, rep.Cells)

	// Missing parameters are a 400.
	r = httptest.NewRequest(http.MethodGet, "/api/compliance?tenant=acme", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Oversized ranges are a 400.
	r = httptest.NewRequest(http.MethodGet, "/api/compliance?tenant=acme&from=2025-01-01&to=2025-03-01", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
