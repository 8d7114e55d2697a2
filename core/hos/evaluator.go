package hos

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fleetops/dutyroster/core/faults"
	"github.com/fleetops/dutyroster/core/logger"
	"github.com/fleetops/dutyroster/core/model"
)

// Limits holds the per-duty-type rolling windows and hour caps.
type Limits struct {
	ShortWindow time.Duration // Type A window
	LongWindow  time.Duration // Type B window
	ShortLimit  float64       // Type A hour cap
	LongLimit   float64       // Type B hour cap
}

// DefaultLimits returns the regulatory defaults: 10h over a 24h window for
// Type A, 20h over a 48h window for Type B.
func DefaultLimits() Limits {
	return Limits{
		ShortWindow: 24 * time.Hour,
		LongWindow:  48 * time.Hour,
		ShortLimit:  10,
		LongLimit:   20,
	}
}

// warnRatio is the fraction of the limit at which a warning is raised.
const warnRatio = 0.9

// Status is the compliance state of a driver-day.
type Status int

const (
	// StatusNone means no duty overlapped the day; nothing was evaluated.
	StatusNone Status = iota
	StatusSafe
	StatusWarning
	StatusViolation
)

func (s Status) String() string {
	switch s {
	case StatusSafe:
		return "safe"
	case StatusWarning:
		return "warning"
	case StatusViolation:
		return "violation"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler so statuses serialise as
// their names in JSON reports.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a status name back into its value.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "safe":
		*s = StatusSafe
	case "warning":
		*s = StatusWarning
	case "violation":
		*s = StatusViolation
	case "none":
		*s = StatusNone
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}

// DayCell is one evaluated driver-day.
type DayCell struct {
	DriverID        string   `json:"driver_id"`
	DriverName      string   `json:"driver_name"`
	Date            string   `json:"date"`
	Status          Status   `json:"status"`
	Hours           float64  `json:"hours"`
	AssignmentCount int      `json:"assignment_count"`
	Messages        []string `json:"messages,omitempty"`
}

// DriverSummary aggregates one driver's cells over the reported range.
type DriverSummary struct {
	DriverID   string `json:"driver_id"`
	DriverName string `json:"driver_name"`
	Violations int    `json:"violations"`
	Warnings   int    `json:"warnings"`
}

// Report is the batch evaluation output for a date range.
type Report struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Cells     []DayCell       `json:"cells"`
	Summaries []DriverSummary `json:"summaries"`
}

// MaxReportDays bounds the span a single report may cover.
const MaxReportDays = 31

// Evaluator runs the critical-point sweep over duty intervals.
type Evaluator struct {
	Limits Limits
	Log    logger.Logger
}

// NewEvaluator returns an Evaluator with the given limits and logger.
func NewEvaluator(limits Limits, log logger.Logger) *Evaluator {
	return &Evaluator{Limits: limits, Log: log}
}

// EvaluateDay determines the worst compliance status observable on the
// calendar day starting at dayStart (midnight UTC) given every duty interval
// that could affect it. Continuous evaluation is infeasible; the sliding
// windows can only change value at a finite set of critical points, so those
// are enumerated and swept. A day with no overlapping duty reports
// StatusNone.
func (e *Evaluator) EvaluateDay(intervals []Interval, dayStart time.Time) DayCell {
	dayEnd := dayStart.Add(24 * time.Hour)
	cell := DayCell{Date: model.DateOf(dayStart), Status: StatusNone}

	relevant := e.relevantIntervals(intervals, dayStart, dayEnd)
	var overlapping int
	for _, iv := range relevant {
		if iv.Start.Before(dayEnd) && iv.End.After(dayStart) {
			overlapping++
		}
	}
	cell.AssignmentCount = overlapping
	cell.Hours = HoursInWindow(relevant, dayStart, dayEnd)
	if overlapping == 0 {
		return cell
	}

	dutyType := e.dayDutyType(relevant, dayStart, dayEnd)
	points := e.criticalPoints(relevant, dayStart, dayEnd)

	cell.Status = StatusSafe
	for _, p := range points {
		hoursShort := HoursInWindow(relevant, p.Add(-e.Limits.ShortWindow), p)
		hoursLong := HoursInWindow(relevant, p.Add(-e.Limits.LongWindow), p)

		hours, limit, window := hoursShort, e.Limits.ShortLimit, e.Limits.ShortWindow
		if dutyType == model.DutyTypeB {
			hours, limit, window = hoursLong, e.Limits.LongLimit, e.Limits.LongWindow
		}

		switch {
		case hours >= limit:
			if cell.Status != StatusViolation {
				cell.Messages = nil
			}
			cell.Status = StatusViolation
			cell.Messages = append(cell.Messages, fmt.Sprintf(
				"%.1fh of duty in the %s ending %s exceeds the %.0fh limit",
				hours, window, p.UTC().Format(time.RFC3339), limit))
		case hours >= warnRatio*limit:
			if cell.Status == StatusViolation {
				continue
			}
			cell.Status = StatusWarning
			cell.Messages = append(cell.Messages, fmt.Sprintf(
				"%.1fh of duty in the %s ending %s is above %.0f%% of the %.0fh limit",
				hours, window, p.UTC().Format(time.RFC3339), warnRatio*100, limit))
		}
	}
	return cell
}

// relevantIntervals keeps intervals close enough to the day to influence a
// long window that still overlaps it.
func (e *Evaluator) relevantIntervals(intervals []Interval, dayStart, dayEnd time.Time) []Interval {
	lo := dayStart.Add(-e.Limits.LongWindow)
	hi := dayEnd.Add(e.Limits.LongWindow)
	var out []Interval
	for _, iv := range intervals {
		if iv.End.Before(lo) || iv.Start.After(hi) {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// dayDutyType picks the duty type of the most recent interval touching the
// day, falling back to the most recent interval overall.
func (e *Evaluator) dayDutyType(intervals []Interval, dayStart, dayEnd time.Time) model.DutyType {
	dutyType := model.DutyTypeA
	var latest time.Time
	var latestAny time.Time
	dutyTypeAny := model.DutyTypeA
	for _, iv := range intervals {
		if iv.Start.After(latestAny) {
			latestAny = iv.Start
			dutyTypeAny = iv.DutyType
		}
		if iv.Start.Before(dayEnd) && iv.End.After(dayStart) && iv.Start.After(latest) {
			latest = iv.Start
			dutyType = iv.DutyType
		}
	}
	if latest.IsZero() {
		return dutyTypeAny
	}
	return dutyType
}

// criticalPoints enumerates every instant where a sliding window's value can
// change: each interval boundary, each boundary offset by the window
// lengths, and the day's own bounds. Points whose long window cannot overlap
// the day are discarded.
func (e *Evaluator) criticalPoints(intervals []Interval, dayStart, dayEnd time.Time) []time.Time {
	seen := make(map[int64]time.Time)
	add := func(t time.Time) {
		if t.Before(dayStart) || t.Add(-e.Limits.LongWindow).After(dayEnd) {
			return
		}
		seen[t.UnixNano()] = t
	}
	for _, iv := range intervals {
		for _, b := range []time.Time{iv.Start, iv.End} {
			add(b)
			add(b.Add(e.Limits.ShortWindow))
			add(b.Add(-e.Limits.ShortWindow))
			add(b.Add(e.Limits.LongWindow))
			add(b.Add(-e.Limits.LongWindow))
		}
	}
	add(dayStart)
	add(dayEnd)

	points := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		points = append(points, t)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })
	return points
}

// DriverIntervals names one driver's duty intervals for batch evaluation.
type DriverIntervals struct {
	DriverID   string
	DriverName string
	Intervals  []Interval
}

// ParseRange validates a [from, to] report range: both dates must parse,
// to must not precede from and the span must fit MaxReportDays. It returns
// the parsed start and the inclusive day count so callers can reject bad
// ranges before doing any work.
func ParseRange(from, to string) (time.Time, int, error) {
	start, err := model.ParseDate(from)
	if err != nil {
		return time.Time{}, 0, faults.Wrap(err, faults.ParseFailure, "invalid from date %q, expected YYYY-MM-DD", from)
	}
	end, err := model.ParseDate(to)
	if err != nil {
		return time.Time{}, 0, faults.Wrap(err, faults.ParseFailure, "invalid to date %q, expected YYYY-MM-DD", to)
	}
	if end.Before(start) {
		return time.Time{}, 0, faults.New(faults.InvalidRange, "to date %s precedes from date %s", to, from)
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days > MaxReportDays {
		return time.Time{}, 0, faults.New(faults.InvalidRange, "range spans %d days, maximum is %d", days, MaxReportDays)
	}
	return start, days, nil
}

// EvaluateRange produces the per-driver-per-day report for [from, to]
// inclusive. The range is bounded to MaxReportDays; evaluation is
// independent per driver and runs in parallel.
func (e *Evaluator) EvaluateRange(ctx context.Context, drivers []DriverIntervals, from, to string) (*Report, error) {
	start, days, err := ParseRange(from, to)
	if err != nil {
		return nil, err
	}

	cellsPerDriver := make([][]DayCell, len(drivers))
	var wg sync.WaitGroup
	for i := range drivers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := drivers[i]
			cells := make([]DayCell, 0, days)
			for day := 0; day < days; day++ {
				if ctx.Err() != nil {
					return
				}
				c := e.EvaluateDay(d.Intervals, start.AddDate(0, 0, day))
				c.DriverID = d.DriverID
				c.DriverName = d.DriverName
				cells = append(cells, c)
			}
			cellsPerDriver[i] = cells
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{From: from, To: to}
	for i, cells := range cellsPerDriver {
		sum := DriverSummary{DriverID: drivers[i].DriverID, DriverName: drivers[i].DriverName}
		for _, c := range cells {
			switch c.Status {
			case StatusViolation:
				sum.Violations++
			case StatusWarning:
				sum.Warnings++
			}
		}
		rep.Cells = append(rep.Cells, cells...)
		rep.Summaries = append(rep.Summaries, sum)
	}
	sort.SliceStable(rep.Summaries, func(i, j int) bool {
		a, b := rep.Summaries[i], rep.Summaries[j]
		if a.Violations != b.Violations {
			return a.Violations > b.Violations
		}
		if a.Warnings != b.Warnings {
			return a.Warnings > b.Warnings
		}
		return a.DriverName < b.DriverName
	})

	var violations, warnings int
	for _, sum := range rep.Summaries {
		violations += sum.Violations
		warnings += sum.Warnings
	}
	e.Log.Debugf("evaluated %d drivers over %d days: %d violations, %d warnings",
		len(drivers), days, violations, warnings)
	return rep, nil
}

// WindowFor returns the rolling window and hour limit for the duty type.
func (l Limits) WindowFor(t model.DutyType) (time.Duration, float64) {
	if t == model.DutyTypeB {
		return l.LongWindow, l.LongLimit
	}
	return l.ShortWindow, l.ShortLimit
}
