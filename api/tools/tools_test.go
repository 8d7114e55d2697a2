package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetops/dutyroster/core/hos"
	"github.com/fleetops/dutyroster/core/model"
	"github.com/fleetops/dutyroster/core/scoring"
	"github.com/fleetops/dutyroster/core/session"
	"github.com/fleetops/dutyroster/infra/logger"
	"github.com/fleetops/dutyroster/infra/store"
)

const (
	testTenant = "acme"
	testWeek   = "2025-01-05" // a Sunday
)

func seedStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	ctx := context.Background()
	require.NoError(t, s.InsertDriver(ctx, testTenant, model.Driver{ID: "d1", Name: "John Smith", Active: true}))
	require.NoError(t, s.InsertDriver(ctx, testTenant, model.Driver{ID: "d2", Name: "Jane Doe", Active: true}))

	for i, date := range []string{"2025-01-06", "2025-01-07", "2025-01-08"} {
		day, err := model.ParseDate(date)
		require.NoError(t, err)
		require.NoError(t, s.InsertBlock(ctx, model.DutyBlock{
			ID: []string{"b1", "b2", "b3"}[i], TenantID: testTenant,
			ServiceDate: date, Day: day.Weekday(),
			DutyType: model.DutyTypeA, ResourceID: "Tractor_1",
			StartTime: day.Add(5 * time.Hour), EndTime: day.Add(13 * time.Hour),
		}))
	}
	return s
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	mgr := session.NewManager(session.Config{
		Store:  seedStore(t),
		Scorer: scoring.LocalAnalyzer{},
		Limits: hos.DefaultLimits(),
		Log:    logger.NopLogger{},
	})
	return New(mgr, logger.NopLogger{})
}

func invoke(t *testing.T, reg *Registry, name string, req Request) Result {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return reg.Invoke(context.Background(), name, raw)
}

func baseReq() Request {
	return Request{TenantID: testTenant, WeekStart: testWeek}
}

func TestInvoke_UnknownTool(t *testing.T) {
	reg := newRegistry(t)
	res := reg.Invoke(context.Background(), "no-such-tool", nil)
	require.False(t, res.Success)
	require.Equal(t, "not_found", res.Error.Kind)
}

func TestInvoke_MissingTenant(t *testing.T) {
	reg := newRegistry(t)
	res := invoke(t, reg, "list-unassigned-blocks", Request{WeekStart: testWeek})
	require.False(t, res.Success)
	require.Equal(t, "parse_failure", res.Error.Kind)
}

func TestListUnassignedBlocks(t *testing.T) {
	reg := newRegistry(t)
	res := invoke(t, reg, "list-unassigned-blocks", baseReq())
	require.True(t, res.Success)

	data := res.Data.(map[string]any)
	require.Equal(t, 3, data["count"])
	views := data["blocks"].([]BlockView)
	require.Equal(t, "b1", views[0].ID)
	require.Equal(t, 8.0, views[0].Hours)
}

func TestListDriverPatterns(t *testing.T) {
	reg := newRegistry(t)
	res := invoke(t, reg, "list-driver-patterns", baseReq())
	require.True(t, res.Success)

	data := res.Data.(map[string]any)
	require.False(t, data["degraded"].(bool))
	require.Len(t, data["patterns"].([]PatternView), 2)
}

func TestAssignThenConflict(t *testing.T) {
	reg := newRegistry(t)
	req := baseReq()
	req.DriverID = "d1"
	req.BlockID = "b1"

	res := invoke(t, reg, "assign", req)
	require.True(t, res.Success)
	ar := res.Data.(session.AssignResult)
	require.Equal(t, "d1", ar.DriverID)
	require.NotEmpty(t, ar.AssignmentID)

	res = invoke(t, reg, "assign", req)
	require.False(t, res.Success)
	require.Equal(t, "state_conflict", res.Error.Kind)
}

func TestAssignByDriverName(t *testing.T) {
	reg := newRegistry(t)
	req := baseReq()
	req.DriverName = "jane"
	req.BlockID = "b2"

	res := invoke(t, reg, "assign", req)
	require.True(t, res.Success)
	require.Equal(t, "d2", res.Data.(session.AssignResult).DriverID)
}

func TestAssignAmbiguousName(t *testing.T) {
	reg := newRegistry(t)
	req := baseReq()
	req.DriverName = "j" // matches John and Jane
	req.BlockID = "b1"

	res := invoke(t, reg, "assign", req)
	require.False(t, res.Success)
	require.Equal(t, "not_found", res.Error.Kind)
}

func TestUnassignRestoresBlock(t *testing.T) {
	reg := newRegistry(t)
	req := baseReq()
	req.DriverID = "d1"
	req.BlockID = "b1"
	require.True(t, invoke(t, reg, "assign", req).Success)

	res := invoke(t, reg, "unassign", Request{TenantID: testTenant, WeekStart: testWeek, BlockID: "b1"})
	require.True(t, res.Success)
	ur := res.Data.(session.UnassignResult)
	require.True(t, ur.WasAssigned)
	require.Equal(t, "d1", ur.PreviousDriver)

	list := invoke(t, reg, "list-unassigned-blocks", baseReq())
	require.Equal(t, 3, list.Data.(map[string]any)["count"])
}

func TestChecksAndScores(t *testing.T) {
	reg := newRegistry(t)
	req := baseReq()
	req.DriverID = "d1"
	req.BlockID = "b1"
	req.Date = "2025-01-06"

	rest := invoke(t, reg, "check-rest", req)
	require.True(t, rest.Success)
	require.True(t, rest.Data.(session.RestResult).Compliant)

	rolling := invoke(t, reg, "check-rolling-hours", req)
	require.True(t, rolling.Success)
	require.True(t, rolling.Data.(session.RollingResult).Compliant)

	rules := invoke(t, reg, "check-protected-rules", req)
	require.True(t, rules.Success)
	require.True(t, rules.Data.(session.RuleResult).Allowed)

	off := invoke(t, reg, "check-time-off", req)
	require.True(t, off.Success)
	require.True(t, off.Data.(session.TimeOffResult).Available)

	own := invoke(t, reg, "get-ownership-score", req)
	require.True(t, own.Success)
	require.GreaterOrEqual(t, own.Data.(ScoreView).Score, 0.0)

	all := invoke(t, reg, "run-all-checks", req)
	require.True(t, all.Success)
	require.True(t, all.Data.(*session.CombinedResult).CanAssign)
}

func TestScoreLookup_UnknownBlock(t *testing.T) {
	reg := newRegistry(t)
	req := baseReq()
	req.DriverID = "d1"
	req.BlockID = "nope"

	res := invoke(t, reg, "get-affinity-score", req)
	require.False(t, res.Success)
	require.Equal(t, "not_found", res.Error.Kind)
}

func TestNames(t *testing.T) {
	reg := newRegistry(t)
	names := reg.Names()
	require.Len(t, names, 11)
	require.Contains(t, names, "assign")
	require.Contains(t, names, "run-all-checks")
}

func TestHTTPHandler(t *testing.T) {
	reg := newRegistry(t)
	h := NewHandler(reg)

	body, _ := json.Marshal(baseReq())
	r := httptest.NewRequest(http.MethodPost, "/api/tools/list-unassigned-blocks", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var res Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	require.True(t, res.Success)

	// Unknown tools map to 404.
	r = httptest.NewRequest(http.MethodPost, "/api/tools/bogus", bytes.NewReader(body))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusNotFound, w.Code)

	// GET is rejected.
	r = httptest.NewRequest(http.MethodGet, "/api/tools/assign", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
