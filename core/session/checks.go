package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetops/dutyroster/core/faults"
	"github.com/fleetops/dutyroster/core/hos"
	"github.com/fleetops/dutyroster/core/model"
)

// RestRuleHours is the minimum off-duty gap required between two blocks.
const RestRuleHours = 10

// noNeighborRestHours is reported when no adjacent assignment exists on
// either side of the candidate block.
const noNeighborRestHours = 24

// ownershipWeight and affinityWeight combine the two learned scores into a
// single ranking value.
const (
	ownershipWeight = 0.7
	affinityWeight  = 0.3
)

// RestResult is the outcome of the rest-rule check.
type RestResult struct {
	Compliant bool    `json:"compliant"`
	RestHours float64 `json:"rest_hours"`
	Required  float64 `json:"required"`
	// Neighbor describes the adjacent assignment that bounded the gap,
	// empty when none existed.
	Neighbor string `json:"neighbor,omitempty"`
}

// RollingResult is the outcome of the rolling-hours check.
type RollingResult struct {
	Compliant bool           `json:"compliant"`
	Hours     float64        `json:"hours"`
	Limit     float64        `json:"limit"`
	WindowHrs float64        `json:"window_hours"`
	DutyType  model.DutyType `json:"duty_type"`
}

// RuleResult is the outcome of the protected-rule check. Every violated rule
// contributes a message; Allowed is true only when none did.
type RuleResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

// TimeOffResult is the outcome of the time-off check.
type TimeOffResult struct {
	Available bool   `json:"available"`
	Date      string `json:"date"`
}

// CombinedResult aggregates all hard checks and both score lookups for one
// driver-block pair.
type CombinedResult struct {
	CanAssign     bool          `json:"can_assign"`
	Rest          RestResult    `json:"rest"`
	Rolling       RollingResult `json:"rolling"`
	Rules         RuleResult    `json:"rules"`
	TimeOff       TimeOffResult `json:"time_off"`
	Ownership     float64       `json:"ownership"`
	Affinity      float64       `json:"affinity"`
	CombinedScore float64       `json:"combined_score"`
	FailReasons   []string      `json:"fail_reasons,omitempty"`
}

func (s *Session) lookupPair(driverID, blockID string) (model.Driver, model.DutyBlock, error) {
	d, ok := s.drivers[driverID]
	if !ok {
		return model.Driver{}, model.DutyBlock{}, faults.New(faults.NotFound, "driver %s not found in tenant %s", driverID, s.key.TenantID)
	}
	b, ok := s.blocks[blockID]
	if !ok {
		return model.Driver{}, model.DutyBlock{}, faults.New(faults.NotFound, "block %s not found in week %s", blockID, s.key.WeekStart)
	}
	return d, b, nil
}

// CheckRest finds the minimum gap between the candidate block and the
// driver's nearest assignment on either side. A driver with no adjacent
// assignment is compliant with a conservative full-day rest reported.
func (s *Session) CheckRest(driverID, blockID string) (RestResult, error) {
	_, block, err := s.lookupPair(driverID, blockID)
	if err != nil {
		return RestResult{}, err
	}
	intervals := s.driverIntervals(driverID, blockID)

	res := RestResult{Compliant: true, RestHours: noNeighborRestHours, Required: RestRuleHours}
	found := false
	for _, iv := range intervals {
		var gap float64
		var neighbor string
		switch {
		case !iv.End.After(block.StartTime):
			gap = block.StartTime.Sub(iv.End).Hours()
			neighbor = fmt.Sprintf("previous duty ended %s", iv.End.UTC().Format(time.RFC3339))
		case !iv.Start.Before(block.EndTime):
			gap = iv.Start.Sub(block.EndTime).Hours()
			neighbor = fmt.Sprintf("next duty starts %s", iv.Start.UTC().Format(time.RFC3339))
		default:
			// Overlapping duty leaves no rest at all.
			gap = 0
			neighbor = fmt.Sprintf("overlapping duty %s-%s", iv.Start.UTC().Format(time.RFC3339), iv.End.UTC().Format(time.RFC3339))
		}
		if !found || gap < res.RestHours {
			res.RestHours = gap
			res.Neighbor = neighbor
		}
		found = true
	}
	if found {
		res.Compliant = res.RestHours >= RestRuleHours
	}
	return res, nil
}

// CheckRollingHours sums the driver's duty hours in the duty-type rolling
// window ending at the close of the given date, including blocks committed
// this session at their real duration, and compares against the limit.
func (s *Session) CheckRollingHours(driverID, date string) (RollingResult, error) {
	if _, ok := s.drivers[driverID]; !ok {
		return RollingResult{}, faults.New(faults.NotFound, "driver %s not found in tenant %s", driverID, s.key.TenantID)
	}
	day, err := model.ParseDate(date)
	if err != nil {
		return RollingResult{}, faults.Wrap(err, faults.ParseFailure, "invalid date %q, expected YYYY-MM-DD", date)
	}
	intervals := s.driverIntervals(driverID, "")
	dayEnd := day.Add(24 * time.Hour)

	dutyType := model.DutyTypeA
	var latest time.Time
	for _, iv := range intervals {
		if iv.Start.Before(dayEnd) && iv.Start.After(latest) {
			latest = iv.Start
			dutyType = iv.DutyType
		}
	}
	window, limit := s.cfg.Limits.WindowFor(dutyType)
	hours := hos.HoursInWindow(intervals, dayEnd.Add(-window), dayEnd)
	return RollingResult{
		Compliant: hours < limit,
		Hours:     hours,
		Limit:     limit,
		WindowHrs: window.Hours(),
		DutyType:  dutyType,
	}, nil
}

// CheckProtectedRules evaluates every applicable rule and collects all
// violation messages, not just the first.
func (s *Session) CheckProtectedRules(driverID, blockID string) (RuleResult, error) {
	driver, block, err := s.lookupPair(driverID, blockID)
	if err != nil {
		return RuleResult{}, err
	}
	var violations []string
	for _, off := range driver.DaysOff {
		if off == block.Day {
			violations = append(violations, fmt.Sprintf("%s is a fixed day off for %s", block.Day, driver.Name))
		}
	}
	for _, rule := range s.rules[driverID] {
		for _, d := range rule.BlockDays {
			if d == block.Day {
				violations = append(violations, fmt.Sprintf("rule %s blocks %s", rule.ID, block.Day))
			}
		}
		if len(rule.AllowDays) > 0 && !containsDay(rule.AllowDays, block.Day) {
			violations = append(violations, fmt.Sprintf("rule %s restricts days to %v", rule.ID, rule.AllowDays))
		}
		if len(rule.AllowDutyTypes) > 0 && !containsDutyType(rule.AllowDutyTypes, block.DutyType) {
			violations = append(violations, fmt.Sprintf("rule %s restricts duty types to %v", rule.ID, rule.AllowDutyTypes))
		}
	}
	return RuleResult{Allowed: len(violations) == 0, Violations: violations}, nil
}

// CheckTimeOff reports whether the date is in the driver's pre-computed
// unavailable set.
func (s *Session) CheckTimeOff(driverID, date string) (TimeOffResult, error) {
	if _, ok := s.drivers[driverID]; !ok {
		return TimeOffResult{}, faults.New(faults.NotFound, "driver %s not found in tenant %s", driverID, s.key.TenantID)
	}
	if _, err := model.ParseDate(date); err != nil {
		return TimeOffResult{}, faults.Wrap(err, faults.ParseFailure, "invalid date %q, expected YYYY-MM-DD", date)
	}
	_, off := s.unavailable[driverID][date]
	return TimeOffResult{Available: !off, Date: date}, nil
}

// RunAllChecks runs the four hard checks concurrently for one driver-block
// pair, adds the two score lookups and aggregates the result. CanAssign is
// true only when every hard check passed; FailReasons explain each failure
// so rankings can be justified either way.
func (s *Session) RunAllChecks(ctx context.Context, driverID, blockID string) (*CombinedResult, error) {
	_, block, err := s.lookupPair(driverID, blockID)
	if err != nil {
		return nil, err
	}

	res := &CombinedResult{}
	errs := make([]error, 4)
	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); res.Rest, errs[0] = s.CheckRest(driverID, blockID) }()
	go func() { defer wg.Done(); res.Rolling, errs[1] = s.CheckRollingHours(driverID, block.ServiceDate) }()
	go func() { defer wg.Done(); res.Rules, errs[2] = s.CheckProtectedRules(driverID, blockID) }()
	go func() { defer wg.Done(); res.TimeOff, errs[3] = s.CheckTimeOff(driverID, block.ServiceDate) }()
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}

	res.Ownership = s.OwnershipScore(driverID, block)
	res.Affinity = s.AffinityScore(driverID, block)
	res.CombinedScore = ownershipWeight*res.Ownership + affinityWeight*res.Affinity

	if !res.Rest.Compliant {
		res.FailReasons = append(res.FailReasons, fmt.Sprintf(
			"rest rule: %.1fh rest, %.0fh required", res.Rest.RestHours, res.Rest.Required))
	}
	if !res.Rolling.Compliant {
		res.FailReasons = append(res.FailReasons, fmt.Sprintf(
			"rolling hours: %.1fh in the %.0fh window, limit %.0fh", res.Rolling.Hours, res.Rolling.WindowHrs, res.Rolling.Limit))
	}
	if !res.Rules.Allowed {
		res.FailReasons = append(res.FailReasons, res.Rules.Violations...)
	}
	if !res.TimeOff.Available {
		res.FailReasons = append(res.FailReasons, fmt.Sprintf("approved time off on %s", res.TimeOff.Date))
	}
	res.CanAssign = len(res.FailReasons) == 0
	return res, nil
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

func containsDutyType(types []model.DutyType, t model.DutyType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
