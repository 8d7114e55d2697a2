package model

import (
	"fmt"
	"time"
)

// DutyType is a regulatory duty classification. The two classes carry
// different rolling-window lengths and hour limits.
type DutyType string

const (
	// DutyTypeA is the short-window class ("solo1" on the wire).
	DutyTypeA DutyType = "solo1"
	// DutyTypeB is the long-window class ("solo2" on the wire).
	DutyTypeB DutyType = "solo2"
)

// ParseDutyType normalises a wire value into a DutyType. Unknown values
// default to DutyTypeA, matching how upstream data treats a missing
// contract type.
func ParseDutyType(s string) DutyType {
	if DutyType(s) == DutyTypeB {
		return DutyTypeB
	}
	return DutyTypeA
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate interprets a YYYY-MM-DD string as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// DateOf formats the calendar date of t in UTC.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Driver is a read-only roster snapshot held by a session for its lifetime.
type Driver struct {
	ID      string
	Name    string
	Active  bool
	DaysOff []time.Weekday // fixed weekly days off
}

// DutyBlock is a single schedulable unit. Immutable once created; the
// assignment state lives separately.
type DutyBlock struct {
	ID          string
	TenantID    string
	ServiceDate string // YYYY-MM-DD
	Day         time.Weekday
	DutyType    DutyType
	ResourceID  string // e.g. tractor identifier
	StartTime   time.Time
	EndTime     time.Time
}

// Duration returns the span of the block.
func (b DutyBlock) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// Descriptor returns a short human-readable label for confirmations and
// decision records.
func (b DutyBlock) Descriptor() string {
	return fmt.Sprintf("%s %s %s %s %s-%s",
		b.DutyType, b.ResourceID, b.Day.String()[:3], b.ServiceDate,
		b.StartTime.UTC().Format("15:04"), b.EndTime.UTC().Format("15:04"))
}

// Assignment links a DutyBlock to a Driver. Unassigning flips Active rather
// than deleting the row; at most one active assignment exists per block.
type Assignment struct {
	ID         string
	TenantID   string
	BlockID    string
	DriverID   string
	Active     bool
	AssignedAt time.Time
}

// AssignedBlock pairs an assignment with its block, as loaded for history
// lookbacks where the block's time span matters.
type AssignedBlock struct {
	Assignment Assignment
	Block      DutyBlock
}

// ProtectedRule is a per-driver hard constraint. A nil list means the
// dimension is unrestricted. Multiple rules for one driver are conjunctive:
// a block is disallowed if any rule disallows it.
type ProtectedRule struct {
	ID             string
	DriverID       string
	AllowDays      []time.Weekday
	BlockDays      []time.Weekday
	AllowDutyTypes []DutyType
}

// TimeOffStatus is the approval state of a time-off request. Only approved
// requests are consulted by the engine.
type TimeOffStatus string

const (
	TimeOffPending  TimeOffStatus = "pending"
	TimeOffApproved TimeOffStatus = "approved"
	TimeOffDenied   TimeOffStatus = "denied"
)

// TimeOffRequest is per-driver unavailability: either a concrete date range
// or a recurring weekly pattern.
type TimeOffRequest struct {
	ID            string
	DriverID      string
	Status        TimeOffStatus
	StartDate     string // YYYY-MM-DD, empty for recurring requests
	EndDate       string // YYYY-MM-DD inclusive, empty for recurring requests
	RecurringDays []time.Weekday
}

// Recurring reports whether the request is a weekly pattern rather than a
// concrete date range.
func (r TimeOffRequest) Recurring() bool { return len(r.RecurringDays) > 0 }
