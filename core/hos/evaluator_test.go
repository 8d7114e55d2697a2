package hos

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fleetops/dutyroster/core/faults"
	"github.com/fleetops/dutyroster/core/model"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(DefaultLimits(), nopLogger{})
}

func day(date string) time.Time {
	d, err := model.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEvaluateDay_NoAssignmentsReportsNone(t *testing.T) {
	e := newTestEvaluator()
	cell := e.EvaluateDay(nil, day("2025-01-01"))
	if cell.Status != StatusNone {
		t.Fatalf("expected none, got %s", cell.Status)
	}
	// An interval far outside the day must not flip the status to safe.
	far := []Interval{{Start: ts("2025-03-01T08:00:00Z"), End: ts("2025-03-01T16:00:00Z"), DutyType: model.DutyTypeA}}
	cell = e.EvaluateDay(far, day("2025-01-01"))
	if cell.Status != StatusNone {
		t.Fatalf("expected none for non-overlapping duty, got %s", cell.Status)
	}
}

func TestEvaluateDay_TypeABoundaries(t *testing.T) {
	e := newTestEvaluator()
	cases := []struct {
		name  string
		hours time.Duration
		want  Status
	}{
		{"under warning", 8 * time.Hour, StatusSafe},
		{"at 90 percent", 9 * time.Hour, StatusWarning},
		{"exactly at limit", 10 * time.Hour, StatusViolation},
		{"over limit", 11 * time.Hour, StatusViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := ts("2025-01-01T05:00:00Z")
			iv := []Interval{{Start: start, End: start.Add(tc.hours), DutyType: model.DutyTypeA}}
			cell := e.EvaluateDay(iv, day("2025-01-01"))
			if cell.Status != tc.want {
				t.Fatalf("%v of duty: got %s, want %s (messages: %v)", tc.hours, cell.Status, tc.want, cell.Messages)
			}
		})
	}
}

func TestEvaluateDay_InteriorPeakAcrossMidnight(t *testing.T) {
	// Two Type A shifts that individually respect the limit but together
	// put 12h inside one 24h window straddling midnight. Evaluating only
	// at day boundaries would miss the peak.
	e := newTestEvaluator()
	iv := []Interval{
		{Start: ts("2025-01-01T16:00:00Z"), End: ts("2025-01-01T23:00:00Z"), DutyType: model.DutyTypeA},
		{Start: ts("2025-01-02T03:00:00Z"), End: ts("2025-01-02T08:00:00Z"), DutyType: model.DutyTypeA},
	}
	cell := e.EvaluateDay(iv, day("2025-01-02"))
	if cell.Status != StatusViolation {
		t.Fatalf("expected violation from interior peak, got %s", cell.Status)
	}
}

func TestEvaluateDay_TypeBLongShiftFlagsBothDays(t *testing.T) {
	// A single 21h Type B shift spanning two calendar days exceeds the 20h
	// limit and must be reported as a violation on both days it overlaps.
	e := newTestEvaluator()
	iv := []Interval{{
		Start:    ts("2025-01-01T18:00:00Z"),
		End:      ts("2025-01-02T15:00:00Z"),
		DutyType: model.DutyTypeB,
	}}
	for _, d := range []string{"2025-01-01", "2025-01-02"} {
		cell := e.EvaluateDay(iv, day(d))
		if cell.Status != StatusViolation {
			t.Fatalf("day %s: expected violation, got %s", d, cell.Status)
		}
	}
}

func TestEvaluateDay_TimeShiftSymmetry(t *testing.T) {
	e := newTestEvaluator()
	base := []Interval{
		{Start: ts("2025-01-01T06:00:00Z"), End: ts("2025-01-01T15:00:00Z"), DutyType: model.DutyTypeA},
		{Start: ts("2025-01-02T02:00:00Z"), End: ts("2025-01-02T09:00:00Z"), DutyType: model.DutyTypeA},
	}
	delta := 17 * 24 * time.Hour
	shifted := make([]Interval, len(base))
	for i, iv := range base {
		shifted[i] = Interval{Start: iv.Start.Add(delta), End: iv.End.Add(delta), DutyType: iv.DutyType}
	}
	for offset := 0; offset < 3; offset++ {
		d := day("2025-01-01").AddDate(0, 0, offset)
		a := e.EvaluateDay(base, d)
		b := e.EvaluateDay(shifted, d.Add(delta))
		if a.Status != b.Status {
			t.Fatalf("day offset %d: %s != %s after shifting", offset, a.Status, b.Status)
		}
	}
}

func TestEvaluateRange_Sorting(t *testing.T) {
	e := newTestEvaluator()
	mk := func(date, start string, hours int) Interval {
		s := ts(date + "T" + start + ":00Z")
		return Interval{Start: s, End: s.Add(time.Duration(hours) * time.Hour), DutyType: model.DutyTypeA}
	}
	drivers := []DriverIntervals{
		{DriverID: "d1", DriverName: "Avery", Intervals: []Interval{mk("2025-01-01", "05:00", 8)}},
		{DriverID: "d2", DriverName: "Blake", Intervals: []Interval{mk("2025-01-01", "05:00", 11)}},
		{DriverID: "d3", DriverName: "Casey", Intervals: []Interval{mk("2025-01-01", "05:00", 9)}},
	}
	rep, err := e.EvaluateRange(context.Background(), drivers, "2025-01-01", "2025-01-03")
	if err != nil {
		t.Fatalf("evaluate range: %v", err)
	}
	if len(rep.Cells) != 9 {
		t.Fatalf("expected 9 cells, got %d", len(rep.Cells))
	}
	got := []string{rep.Summaries[0].DriverID, rep.Summaries[1].DriverID, rep.Summaries[2].DriverID}
	// Blake violates, Casey warns, Avery is clean.
	want := []string{"d2", "d3", "d1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("summary order %v, want %v", got, want)
		}
	}
}

func TestEvaluateRange_Bounds(t *testing.T) {
	e := newTestEvaluator()
	_, err := e.EvaluateRange(context.Background(), nil, "2025-01-01", "2025-03-01")
	if !faults.Is(err, faults.InvalidRange) {
		t.Fatalf("expected InvalidRange, got %v", err)
	}
	_, err = e.EvaluateRange(context.Background(), nil, "01/01/2025", "2025-01-02")
	if !faults.Is(err, faults.ParseFailure) {
		t.Fatalf("expected ParseFailure, got %v", err)
	}
	rep, err := e.EvaluateRange(context.Background(), nil, "2025-01-01", "2025-01-31")
	if err != nil || len(rep.Cells) != 0 {
		t.Fatalf("expected empty report for no drivers, got %v, %v", rep, err)
	}
}

type captureLogger struct {
	nopLogger
	debug []string
}

func (l *captureLogger) Debugf(format string, args ...any) {
	l.debug = append(l.debug, fmt.Sprintf(format, args...))
}

func TestEvaluateRange_LogsSweepSummary(t *testing.T) {
	log := &captureLogger{}
	e := NewEvaluator(DefaultLimits(), log)
	start := ts("2025-01-01T05:00:00Z")
	drivers := []DriverIntervals{
		{DriverID: "d1", DriverName: "Avery", Intervals: []Interval{
			{Start: start, End: start.Add(11 * time.Hour), DutyType: model.DutyTypeA},
		}},
	}
	if _, err := e.EvaluateRange(context.Background(), drivers, "2025-01-01", "2025-01-02"); err != nil {
		t.Fatalf("evaluate range: %v", err)
	}
	if len(log.debug) != 1 {
		t.Fatalf("expected one debug line, got %v", log.debug)
	}
	if !strings.Contains(log.debug[0], "1 drivers over 2 days") {
		t.Fatalf("unexpected summary line %q", log.debug[0])
	}
}
