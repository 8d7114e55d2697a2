// Package session implements the scheduling scratchpad: a per-tenant,
// per-week unit of work that loads the scheduling universe once, caches
// externally computed scores, answers constraint checks and executes
// assignment decisions against the store.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fleetops/dutyroster/core/faults"
	"github.com/fleetops/dutyroster/core/hos"
	"github.com/fleetops/dutyroster/core/logger"
	"github.com/fleetops/dutyroster/core/model"
	"github.com/fleetops/dutyroster/core/scoring"
	"github.com/fleetops/dutyroster/core/store"
	"github.com/fleetops/dutyroster/internal/eventbus"
)

// historyLookbackDays is how far before the week assignment history is
// loaded. It must cover at least the rest-rule horizon.
const historyLookbackDays = 7

// Key identifies one session: a tenant and the Sunday its week starts on.
type Key struct {
	TenantID  string
	WeekStart string
}

func (k Key) String() string { return k.TenantID + "/" + k.WeekStart }

// Config carries the collaborators a session needs to build and operate.
type Config struct {
	Store  store.Store
	Scorer scoring.PatternScorer
	Limits hos.Limits
	Log    logger.Logger
	Bus    eventbus.EventBus // optional; decision events are published here
}

// DecisionEvent is published on the bus for every ledger append that changed
// externally observable state.
type DecisionEvent struct {
	TenantID  string
	WeekStart string
	Decision  Decision
}

// Session holds all data needed to make assignment decisions for one week
// without further external reads. Mutating calls are expected to arrive
// sequentially from a single writer; the mutex exists so concurrent readers
// of the mutable maps stay safe.
type Session struct {
	key       Key
	weekDates []string

	cfg Config

	// immutable after build
	blocks      map[string]model.DutyBlock
	drivers     map[string]model.Driver
	rules       map[string][]model.ProtectedRule
	unavailable map[string]map[string]struct{} // driverID -> dates off
	history     map[string][]model.AssignedBlock
	patterns    map[string]scoring.DriverPattern
	scores      map[string]map[string]scoring.SlotScores
	degraded    bool // scorer was unreachable during build

	// mutable in-session state, guarded by mu
	mu          sync.Mutex
	remaining   map[string]struct{} // unassigned block ids
	preAssigned map[string]string   // blockID -> driverID, assigned before the session
	committed   map[string]string   // blockID -> driverID, assigned this session
	dayCounts   map[string]int      // driverID -> blocks assigned this week

	ledger  *Ledger
	builtAt time.Time
}

// Build constructs a fresh session for the key. The independent store loads
// run concurrently; the bulk score fetches follow once drivers and blocks
// are known. Scorer failures degrade to empty caches, any required load
// failure aborts the build.
func Build(ctx context.Context, key Key, cfg Config) (*Session, error) {
	weekStart, err := model.ParseDate(key.WeekStart)
	if err != nil {
		return nil, faults.Wrap(err, faults.ParseFailure, "invalid week start %q, expected YYYY-MM-DD", key.WeekStart)
	}
	weekEnd := weekStart.AddDate(0, 0, 6)
	s := &Session{
		key:         key,
		cfg:         cfg,
		blocks:      make(map[string]model.DutyBlock),
		drivers:     make(map[string]model.Driver),
		rules:       make(map[string][]model.ProtectedRule),
		unavailable: make(map[string]map[string]struct{}),
		history:     make(map[string][]model.AssignedBlock),
		patterns:    make(map[string]scoring.DriverPattern),
		scores:      make(map[string]map[string]scoring.SlotScores),
		remaining:   make(map[string]struct{}),
		preAssigned: make(map[string]string),
		committed:   make(map[string]string),
		dayCounts:   make(map[string]int),
		ledger:      &Ledger{},
		builtAt:     time.Now().UTC(),
	}
	for d := 0; d < 7; d++ {
		s.weekDates = append(s.weekDates, model.DateOf(weekStart.AddDate(0, 0, d)))
	}

	var (
		blocks      []model.DutyBlock
		assignments []model.Assignment
		drivers     []model.Driver
		rules       []model.ProtectedRule
		timeOff     []model.TimeOffRequest
	)
	loads := []struct {
		name string
		fn   func() error
	}{
		{"blocks", func() (err error) {
			blocks, err = cfg.Store.BlocksByDateRange(ctx, key.TenantID, key.WeekStart, model.DateOf(weekEnd))
			return
		}},
		{"assignments", func() (err error) {
			assignments, err = cfg.Store.ActiveAssignments(ctx, key.TenantID)
			return
		}},
		{"drivers", func() (err error) {
			drivers, err = cfg.Store.ActiveDrivers(ctx, key.TenantID)
			return
		}},
		{"protected rules", func() (err error) {
			rules, err = cfg.Store.ProtectedRules(ctx, key.TenantID)
			return
		}},
		{"time off", func() (err error) {
			timeOff, err = cfg.Store.ApprovedTimeOff(ctx, key.TenantID)
			return
		}},
	}
	errs := make([]error, len(loads))
	var wg sync.WaitGroup
	for i, l := range loads {
		wg.Add(1)
		go func(i int, name string, fn func() error) {
			defer wg.Done()
			if err := fn(); err != nil {
				errs[i] = fmt.Errorf("load %s: %w", name, err)
			}
		}(i, l.name, l.fn)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for _, b := range blocks {
		s.blocks[b.ID] = b
	}
	for _, d := range drivers {
		s.drivers[d.ID] = d
	}
	for _, r := range rules {
		s.rules[r.DriverID] = append(s.rules[r.DriverID], r)
	}
	s.expandTimeOff(timeOff, weekStart)

	assignedBlocks := make(map[string]string)
	for _, a := range assignments {
		if a.Active {
			assignedBlocks[a.BlockID] = a.DriverID
		}
	}
	for id := range s.blocks {
		if driverID, ok := assignedBlocks[id]; ok {
			s.preAssigned[id] = driverID
		} else {
			s.remaining[id] = struct{}{}
		}
	}

	if err := s.loadHistory(ctx, weekStart, weekEnd); err != nil {
		return nil, err
	}
	for blockID, driverID := range s.preAssigned {
		if _, ok := s.blocks[blockID]; ok && s.drivers[driverID].ID != "" {
			s.dayCounts[driverID]++
		}
	}

	s.fetchScores(ctx, blocks)
	cfg.Log.Infof("session %s built: %d blocks, %d drivers, %d unassigned",
		key, len(s.blocks), len(s.drivers), len(s.remaining))
	return s, nil
}

// loadHistory fetches each driver's assignment history for the lookback
// window plus the week itself, in parallel across drivers.
func (s *Session) loadHistory(ctx context.Context, weekStart, weekEnd time.Time) error {
	from := model.DateOf(weekStart.AddDate(0, 0, -historyLookbackDays))
	to := model.DateOf(weekEnd)
	var wg sync.WaitGroup
	var mu sync.Mutex
	errs := make([]error, 0)
	for id := range s.drivers {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			past, err := s.cfg.Store.AssignmentHistory(ctx, s.key.TenantID, driverID, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("load history for %s: %w", driverID, err))
				return
			}
			s.history[driverID] = past
		}(id)
	}
	wg.Wait()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// fetchScores runs the two bulk scorer calls. The scorer is best effort: a
// failure leaves the caches empty and every lookup reads as zero.
func (s *Session) fetchScores(ctx context.Context, blocks []model.DutyBlock) {
	if s.cfg.Scorer == nil {
		s.degraded = true
		return
	}
	hist := scoring.History(s.history)
	patterns, err := s.cfg.Scorer.BulkPatterns(ctx, hist)
	if err != nil {
		s.cfg.Log.Warnf("pattern scorer unavailable, continuing without patterns: %v", err)
		s.degraded = true
	} else {
		s.patterns = patterns
	}

	seen := make(map[string]struct{})
	var slots []scoring.Slot
	for _, b := range blocks {
		slot := scoring.Slot{DutyType: b.DutyType, ResourceID: b.ResourceID, Date: b.ServiceDate}
		if _, ok := seen[slot.Key()]; ok {
			continue
		}
		seen[slot.Key()] = struct{}{}
		slots = append(slots, slot)
	}
	scores, err := s.cfg.Scorer.BulkAffinity(ctx, hist, slots)
	if err != nil {
		s.cfg.Log.Warnf("affinity scorer unavailable, continuing without scores: %v", err)
		s.degraded = true
		return
	}
	s.scores = scores
}

// expandTimeOff turns approved requests into concrete per-date
// unavailability sets covering the session's week.
func (s *Session) expandTimeOff(requests []model.TimeOffRequest, weekStart time.Time) {
	for _, r := range requests {
		if r.Status != model.TimeOffApproved {
			continue
		}
		set := s.unavailable[r.DriverID]
		if set == nil {
			set = make(map[string]struct{})
			s.unavailable[r.DriverID] = set
		}
		if r.Recurring() {
			for d, date := range s.weekDates {
				weekday := weekStart.AddDate(0, 0, d).Weekday()
				for _, wd := range r.RecurringDays {
					if weekday == wd {
						set[date] = struct{}{}
					}
				}
			}
			continue
		}
		start, err1 := model.ParseDate(r.StartDate)
		end, err2 := model.ParseDate(r.EndDate)
		if err1 != nil || err2 != nil {
			s.cfg.Log.Warnf("time-off request %s has unparseable dates, skipping", r.ID)
			continue
		}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			set[model.DateOf(d)] = struct{}{}
		}
	}
}

// Key returns the session's identity.
func (s *Session) Key() Key { return s.key }

// Degraded reports whether the scorer was unreachable during the build.
func (s *Session) Degraded() bool { return s.degraded }

// RemainingBlocks returns the unassigned blocks sorted by date then start
// time.
func (s *Session) RemainingBlocks() []model.DutyBlock {
	s.mu.Lock()
	ids := make([]string, 0, len(s.remaining))
	for id := range s.remaining {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	out := make([]model.DutyBlock, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.blocks[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Driver returns the roster snapshot for the id.
func (s *Session) Driver(id string) (model.Driver, bool) {
	d, ok := s.drivers[id]
	return d, ok
}

// Drivers returns the roster sorted by name.
func (s *Session) Drivers() []model.Driver {
	out := make([]model.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Block returns the week block for the id.
func (s *Session) Block(id string) (model.DutyBlock, bool) {
	b, ok := s.blocks[id]
	return b, ok
}

// Pattern returns the cached pattern for the driver, if the scorer provided
// one.
func (s *Session) Pattern(driverID string) (scoring.DriverPattern, bool) {
	p, ok := s.patterns[driverID]
	return p, ok
}

// Patterns returns every cached driver pattern keyed by driver id.
func (s *Session) Patterns() map[string]scoring.DriverPattern {
	out := make(map[string]scoring.DriverPattern, len(s.patterns))
	for k, v := range s.patterns {
		out[k] = v
	}
	return out
}

// OwnershipScore returns the cached ownership score for the driver and the
// block's slot, or zero when the cache has no entry.
func (s *Session) OwnershipScore(driverID string, b model.DutyBlock) float64 {
	return s.slotScores(driverID, b).Ownership
}

// AffinityScore returns the cached affinity score for the driver and the
// block's slot, or zero when the cache has no entry.
func (s *Session) AffinityScore(driverID string, b model.DutyBlock) float64 {
	return s.slotScores(driverID, b).Affinity
}

func (s *Session) slotScores(driverID string, b model.DutyBlock) scoring.SlotScores {
	slot := scoring.Slot{DutyType: b.DutyType, ResourceID: b.ResourceID, Date: b.ServiceDate}
	if byKey, ok := s.scores[driverID]; ok {
		if sc, ok := byKey[slot.Key()]; ok {
			return sc
		}
	}
	return scoring.SlotScores{}
}

// DayCount returns how many week blocks are currently assigned to the
// driver, counting both pre-existing and session-committed assignments.
func (s *Session) DayCount(driverID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dayCounts[driverID]
}

// Ledger exposes the session's decision ledger.
func (s *Session) Ledger() *Ledger { return s.ledger }

// driverIntervals collects the driver's duty intervals from loaded history
// plus blocks committed this session, excluding the given block id.
func (s *Session) driverIntervals(driverID, excludeBlockID string) []hos.Interval {
	var out []hos.Interval
	seen := make(map[string]struct{})
	for _, ab := range s.history[driverID] {
		if ab.Block.ID == excludeBlockID {
			continue
		}
		seen[ab.Block.ID] = struct{}{}
		out = append(out, hos.Interval{Start: ab.Block.StartTime, End: ab.Block.EndTime, DutyType: ab.Block.DutyType})
	}
	s.mu.Lock()
	committed := make([]string, 0, len(s.committed))
	for blockID, dID := range s.committed {
		if dID == driverID {
			committed = append(committed, blockID)
		}
	}
	s.mu.Unlock()
	for _, blockID := range committed {
		if blockID == excludeBlockID {
			continue
		}
		if _, ok := seen[blockID]; ok {
			continue
		}
		b := s.blocks[blockID]
		out = append(out, hos.Interval{Start: b.StartTime, End: b.EndTime, DutyType: b.DutyType})
	}
	return out
}
