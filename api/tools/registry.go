// Package tools exposes the scheduling operations as a registry of named
// tools. Each tool takes a flat JSON request and returns a uniform result
// envelope, so callers (HTTP, CLI, assistants) share one surface.
package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/fleetops/dutyroster/core/faults"
	"github.com/fleetops/dutyroster/core/model"
	"github.com/fleetops/dutyroster/core/scoring"
	"github.com/fleetops/dutyroster/core/session"
	"github.com/fleetops/dutyroster/infra/logger"
)

// Request is the flat argument envelope shared by every tool. Tools read the
// fields they need and ignore the rest.
type Request struct {
	TenantID   string `json:"tenant_id"`
	WeekStart  string `json:"week_start"`
	DriverID   string `json:"driver_id,omitempty"`
	DriverName string `json:"driver_name,omitempty"`
	BlockID    string `json:"block_id,omitempty"`
	Date       string `json:"date,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ErrorInfo classifies a tool failure for the caller.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the uniform tool response envelope.
type Result struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// BlockView is one unassigned block with the fields a caller ranks on.
type BlockView struct {
	ID          string         `json:"id"`
	ServiceDate string         `json:"service_date"`
	Day         string         `json:"day"`
	DutyType    model.DutyType `json:"duty_type"`
	ResourceID  string         `json:"resource_id"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	Hours       float64        `json:"hours"`
}

// PatternView is one driver's learned pattern plus current load.
type PatternView struct {
	DriverID   string                `json:"driver_id"`
	DriverName string                `json:"driver_name"`
	Pattern    scoring.DriverPattern `json:"pattern"`
	DaysThisWk int                   `json:"days_this_week"`
}

// ScoreView is a single score lookup.
type ScoreView struct {
	DriverID string  `json:"driver_id"`
	BlockID  string  `json:"block_id"`
	Score    float64 `json:"score"`
}

type handler func(ctx context.Context, sess *session.Session, req Request) (any, error)

// Registry resolves tool names to handlers bound to per-week sessions.
type Registry struct {
	mgr      *session.Manager
	log      logger.Logger
	handlers map[string]handler
}

// New builds the registry over a session manager.
func New(mgr *session.Manager, log logger.Logger) *Registry {
	r := &Registry{mgr: mgr, log: log}
	r.handlers = map[string]handler{
		"list-unassigned-blocks": r.listUnassignedBlocks,
		"list-driver-patterns":   r.listDriverPatterns,
		"check-rest":             r.checkRest,
		"check-rolling-hours":    r.checkRollingHours,
		"check-protected-rules":  r.checkProtectedRules,
		"check-time-off":         r.checkTimeOff,
		"get-ownership-score":    r.getOwnershipScore,
		"get-affinity-score":     r.getAffinityScore,
		"run-all-checks":         r.runAllChecks,
		"assign":                 r.assign,
		"unassign":               r.unassign,
	}
	return r
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named tool. Failures are folded into the result envelope;
// Invoke itself never returns an error.
func (r *Registry) Invoke(ctx context.Context, name string, raw json.RawMessage) Result {
	h, ok := r.handlers[name]
	if !ok {
		return fail(faults.New(faults.NotFound, "unknown tool %q", name))
	}
	var req Request
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return fail(faults.Wrap(err, faults.ParseFailure, "decode tool request"))
		}
	}
	if req.TenantID == "" || req.WeekStart == "" {
		return fail(faults.New(faults.ParseFailure, "tenant_id and week_start are required"))
	}

	sess, err := r.mgr.GetOrCreate(ctx, req.TenantID, req.WeekStart)
	if err != nil {
		return fail(err)
	}
	if err := r.resolveDriver(sess, &req); err != nil {
		return fail(err)
	}

	data, err := h(ctx, sess, req)
	if err != nil {
		r.log.Warnf("tool %s failed: %v", name, err)
		return fail(err)
	}
	return Result{Success: true, Data: data}
}

// resolveDriver fills DriverID from DriverName when only the name was given.
func (r *Registry) resolveDriver(sess *session.Session, req *Request) error {
	if req.DriverID != "" || req.DriverName == "" {
		return nil
	}
	d, ok := sess.ResolveDriverName(req.DriverName)
	if !ok {
		return faults.New(faults.NotFound, "no unique driver matches name %q", req.DriverName)
	}
	req.DriverID = d.ID
	return nil
}

func fail(err error) Result {
	kind := faults.KindOf(err)
	if kind == "" {
		kind = faults.UpstreamUnavailable
	}
	return Result{Success: false, Error: &ErrorInfo{Kind: string(kind), Message: err.Error()}}
}

func (r *Registry) listUnassignedBlocks(_ context.Context, sess *session.Session, _ Request) (any, error) {
	blocks := sess.RemainingBlocks()
	views := make([]BlockView, 0, len(blocks))
	for _, b := range blocks {
		views = append(views, BlockView{
			ID:          b.ID,
			ServiceDate: b.ServiceDate,
			Day:         b.Day.String(),
			DutyType:    b.DutyType,
			ResourceID:  b.ResourceID,
			Start:       b.StartTime.UTC().Format("15:04"),
			End:         b.EndTime.UTC().Format("15:04"),
			Hours:       b.Duration().Hours(),
		})
	}
	return map[string]any{"blocks": views, "count": len(views)}, nil
}

func (r *Registry) listDriverPatterns(_ context.Context, sess *session.Session, _ Request) (any, error) {
	drivers := sess.Drivers()
	views := make([]PatternView, 0, len(drivers))
	for _, d := range drivers {
		pv := PatternView{DriverID: d.ID, DriverName: d.Name, DaysThisWk: sess.DayCount(d.ID)}
		if p, ok := sess.Pattern(d.ID); ok {
			pv.Pattern = p
		}
		views = append(views, pv)
	}
	return map[string]any{"patterns": views, "degraded": sess.Degraded()}, nil
}

func (r *Registry) checkRest(_ context.Context, sess *session.Session, req Request) (any, error) {
	return sess.CheckRest(req.DriverID, req.BlockID)
}

func (r *Registry) checkRollingHours(_ context.Context, sess *session.Session, req Request) (any, error) {
	return sess.CheckRollingHours(req.DriverID, req.Date)
}

func (r *Registry) checkProtectedRules(_ context.Context, sess *session.Session, req Request) (any, error) {
	return sess.CheckProtectedRules(req.DriverID, req.BlockID)
}

func (r *Registry) checkTimeOff(_ context.Context, sess *session.Session, req Request) (any, error) {
	return sess.CheckTimeOff(req.DriverID, req.Date)
}

func (r *Registry) getOwnershipScore(_ context.Context, sess *session.Session, req Request) (any, error) {
	b, d, err := scoreArgs(sess, req)
	if err != nil {
		return nil, err
	}
	return ScoreView{DriverID: d, BlockID: b.ID, Score: sess.OwnershipScore(d, b)}, nil
}

func (r *Registry) getAffinityScore(_ context.Context, sess *session.Session, req Request) (any, error) {
	b, d, err := scoreArgs(sess, req)
	if err != nil {
		return nil, err
	}
	return ScoreView{DriverID: d, BlockID: b.ID, Score: sess.AffinityScore(d, b)}, nil
}

func scoreArgs(sess *session.Session, req Request) (model.DutyBlock, string, error) {
	b, ok := sess.Block(req.BlockID)
	if !ok {
		return model.DutyBlock{}, "", faults.New(faults.NotFound, "block %s not found", req.BlockID)
	}
	if _, ok := sess.Driver(req.DriverID); !ok {
		return model.DutyBlock{}, "", faults.New(faults.NotFound, "driver %s not found", req.DriverID)
	}
	return b, req.DriverID, nil
}

func (r *Registry) runAllChecks(ctx context.Context, sess *session.Session, req Request) (any, error) {
	return sess.RunAllChecks(ctx, req.DriverID, req.BlockID)
}

func (r *Registry) assign(ctx context.Context, sess *session.Session, req Request) (any, error) {
	return sess.Assign(ctx, req.DriverID, req.BlockID, req.Reason)
}

func (r *Registry) unassign(ctx context.Context, sess *session.Session, req Request) (any, error) {
	return sess.Unassign(ctx, req.BlockID, req.Reason)
}
