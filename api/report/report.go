// Package report serves batch compliance reports over HTTP.
package report

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	coremetrics "github.com/fleetops/dutyroster/core/metrics"
	"github.com/fleetops/dutyroster/core/faults"
	"github.com/fleetops/dutyroster/core/hos"
	"github.com/fleetops/dutyroster/core/model"
	"github.com/fleetops/dutyroster/core/store"
	"github.com/fleetops/dutyroster/infra/logger"
)

// Service loads duty history and produces compliance reports.
type Service struct {
	store store.Store
	eval  *hos.Evaluator
	sink  coremetrics.Sink
	log   logger.Logger
}

// NewService wires a report service. A nil sink disables metrics.
func NewService(st store.Store, eval *hos.Evaluator, sink coremetrics.Sink, log logger.Logger) *Service {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Service{store: st, eval: eval, sink: sink, log: log}
}

// Generate evaluates every active driver of the tenant over [from, to]. The
// history load is padded by the long rolling window on both sides so duty
// near the range edges still counts toward the windows that reach into it.
func (s *Service) Generate(ctx context.Context, tenantID, from, to string) (*hos.Report, error) {
	start := time.Now()
	// Reject malformed or oversized ranges before the store is touched.
	fromT, days, err := hos.ParseRange(from, to)
	if err != nil {
		return nil, err
	}
	toT := fromT.AddDate(0, 0, days-1)

	drivers, err := s.store.ActiveDrivers(ctx, tenantID)
	if err != nil {
		return nil, faults.Wrap(err, faults.UpstreamUnavailable, "load drivers for tenant %s", tenantID)
	}

	padDays := int(s.eval.Limits.LongWindow.Hours()/24) + 1
	loadFrom := model.DateOf(fromT.AddDate(0, 0, -padDays))
	loadTo := model.DateOf(toT.AddDate(0, 0, padDays))

	inputs := make([]hos.DriverIntervals, len(drivers))
	errs := make([]error, len(drivers))
	var wg sync.WaitGroup
	for i, d := range drivers {
		wg.Add(1)
		go func(i int, d model.Driver) {
			defer wg.Done()
			history, err := s.store.AssignmentHistory(ctx, tenantID, d.ID, loadFrom, loadTo)
			if err != nil {
				errs[i] = err
				return
			}
			intervals := make([]hos.Interval, 0, len(history))
			for _, ab := range history {
				intervals = append(intervals, hos.Interval{
					Start:    ab.Block.StartTime,
					End:      ab.Block.EndTime,
					DutyType: ab.Block.DutyType,
				})
			}
			inputs[i] = hos.DriverIntervals{DriverID: d.ID, DriverName: d.Name, Intervals: intervals}
		}(i, d)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, faults.Wrap(err, faults.UpstreamUnavailable, "load assignment history for tenant %s", tenantID)
		}
	}

	rep, err := s.eval.EvaluateRange(ctx, inputs, from, to)
	if err != nil {
		return nil, err
	}

	var violations, warnings int
	for _, sum := range rep.Summaries {
		violations += sum.Violations
		warnings += sum.Warnings
	}
	if err := s.sink.RecordReport(coremetrics.ReportEvent{
		TenantID:   tenantID,
		Days:       days,
		Drivers:    len(drivers),
		Violations: violations,
		Warnings:   warnings,
		Duration:   time.Since(start),
		Time:       time.Now().UTC(),
	}); err != nil {
		s.log.Warnf("record report metrics: %v", err)
	}
	return rep, nil
}

// NewHandler exposes the service via GET /api/compliance?tenant=&from=&to=.
func NewHandler(svc *Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		tenant, from, to := q.Get("tenant"), q.Get("from"), q.Get("to")
		if tenant == "" || from == "" || to == "" {
			http.Error(w, "tenant, from and to are required", http.StatusBadRequest)
			return
		}
		rep, err := svc.Generate(r.Context(), tenant, from, to)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rep); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func statusFor(err error) int {
	switch faults.KindOf(err) {
	case faults.ParseFailure, faults.InvalidRange:
		return http.StatusBadRequest
	case faults.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
