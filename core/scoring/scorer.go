// Package scoring defines the external pattern-scoring boundary. The engine
// never cares whether scores come from a spawned process, a network service
// or the in-process fallback analyzer; it only consumes the bulk interfaces
// defined here and treats every miss as score zero.
package scoring

import (
	"context"
	"fmt"

	"github.com/fleetops/dutyroster/core/model"
)

// Slot identifies a recurring schedulable position.
type Slot struct {
	DutyType   model.DutyType `json:"duty_type"`
	ResourceID string         `json:"resource_id"`
	Date       string         `json:"date"`
}

// Key returns the canonical slot key used to cache scores.
func (s Slot) Key() string {
	return fmt.Sprintf("%s|%s|%s", s.DutyType, s.ResourceID, s.Date)
}

// DriverPattern describes a driver's typical working pattern derived from
// history.
type DriverPattern struct {
	DriverID    string         `json:"driver_id"`
	TypicalDays int            `json:"typical_days"`
	DayList     []string       `json:"day_list"`
	DayCounts   map[string]int `json:"day_counts"`
	Confidence  float64        `json:"confidence"`
}

// SlotScores carries both learned scores for one driver-slot pair, each in
// [0, 1].
type SlotScores struct {
	Ownership float64 `json:"ownership"`
	Affinity  float64 `json:"affinity"`
}

// History is each driver's past assigned blocks, keyed by driver id.
type History map[string][]model.AssignedBlock

// PatternScorer is the scoring service boundary. Both calls are bulk by
// design: one round trip per pair would dominate session build latency.
// Implementations must return empty results, not errors, for empty inputs.
type PatternScorer interface {
	// BulkPatterns returns the typical working pattern per driver.
	BulkPatterns(ctx context.Context, history History) (map[string]DriverPattern, error)

	// BulkAffinity returns ownership and affinity scores per driver per
	// slot key for the full cross product of history keys and slots.
	BulkAffinity(ctx context.Context, history History, slots []Slot) (map[string]map[string]SlotScores, error)
}
