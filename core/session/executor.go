package session

import (
	"context"
	"fmt"

	"github.com/fleetops/dutyroster/core/faults"
)

// AssignResult confirms a committed assignment.
type AssignResult struct {
	AssignmentID    string `json:"assignment_id"`
	BlockID         string `json:"block_id"`
	BlockDescriptor string `json:"block_descriptor"`
	DriverID        string `json:"driver_id"`
}

// UnassignResult confirms a reversal.
type UnassignResult struct {
	BlockID         string `json:"block_id"`
	BlockDescriptor string `json:"block_descriptor"`
	PreviousDriver  string `json:"previous_driver,omitempty"`
	WasAssigned     bool   `json:"was_assigned"`
}

// Assign commits one assignment: it validates the block is still unassigned
// and the driver exists, upserts the store row keyed by the block, then
// updates session bookkeeping and appends a ledger entry. A store failure
// leaves the remaining set and counters untouched.
func (s *Session) Assign(ctx context.Context, driverID, blockID, reason string) (AssignResult, error) {
	block, ok := s.blocks[blockID]
	if !ok {
		return AssignResult{}, faults.New(faults.NotFound, "block %s not found in week %s", blockID, s.key.WeekStart)
	}
	driver, ok := s.drivers[driverID]
	if !ok {
		return AssignResult{}, faults.New(faults.NotFound, "driver %s not found in tenant %s", driverID, s.key.TenantID)
	}

	s.mu.Lock()
	_, unassigned := s.remaining[blockID]
	s.mu.Unlock()
	if !unassigned {
		return AssignResult{}, faults.New(faults.StateConflict,
			"block %s is no longer unassigned; refresh the session if it changed outside this planning pass", blockID)
	}

	// Snapshot the checks before committing so the ledger can explain the
	// decision later.
	checks, err := s.RunAllChecks(ctx, driverID, blockID)
	if err != nil {
		return AssignResult{}, err
	}

	asn, err := s.cfg.Store.UpsertAssignment(ctx, s.key.TenantID, blockID, driverID)
	if err != nil {
		s.publish(s.ledger.Append(Decision{
			BlockID:         blockID,
			BlockDescriptor: block.Descriptor(),
			DriverID:        driverID,
			Action:          ActionFailed,
			Reasoning:       fmt.Sprintf("store write failed: %v", err),
			Checks:          checks,
		}))
		return AssignResult{}, fmt.Errorf("upsert assignment for block %s: %w", blockID, err)
	}

	s.mu.Lock()
	delete(s.remaining, blockID)
	s.committed[blockID] = driverID
	s.dayCounts[driverID]++
	s.mu.Unlock()

	reasoning := reason
	if reasoning == "" {
		reasoning = fmt.Sprintf("assigned %s to %s", driver.Name, block.Descriptor())
	}
	s.publish(s.ledger.Append(Decision{
		BlockID:         blockID,
		BlockDescriptor: block.Descriptor(),
		DriverID:        driverID,
		Action:          ActionAssigned,
		Reasoning:       reasoning,
		Checks:          checks,
	}))
	s.cfg.Log.Infof("assigned block %s to driver %s (%s)", blockID, driverID, driver.Name)
	return AssignResult{
		AssignmentID:    asn.ID,
		BlockID:         blockID,
		BlockDescriptor: block.Descriptor(),
		DriverID:        driverID,
	}, nil
}

// Unassign soft-deletes the block's active assignment, restores session
// bookkeeping and appends a ledger entry naming the previous driver. A block
// with no active assignment is a no-op success.
func (s *Session) Unassign(ctx context.Context, blockID, reason string) (UnassignResult, error) {
	block, ok := s.blocks[blockID]
	if !ok {
		return UnassignResult{}, faults.New(faults.NotFound, "block %s not found in week %s", blockID, s.key.WeekStart)
	}

	prev, err := s.cfg.Store.DeactivateAssignment(ctx, s.key.TenantID, blockID)
	if err != nil {
		return UnassignResult{}, fmt.Errorf("deactivate assignment for block %s: %w", blockID, err)
	}

	res := UnassignResult{BlockID: blockID, BlockDescriptor: block.Descriptor()}
	if prev != nil {
		res.PreviousDriver = prev.DriverID
		res.WasAssigned = true
	}

	s.mu.Lock()
	if driverID, ok := s.committed[blockID]; ok {
		delete(s.committed, blockID)
		s.dayCounts[driverID]--
		s.remaining[blockID] = struct{}{}
	} else if _, ok := s.preAssigned[blockID]; ok {
		driverID := s.preAssigned[blockID]
		delete(s.preAssigned, blockID)
		if _, known := s.drivers[driverID]; known {
			s.dayCounts[driverID]--
		}
		s.remaining[blockID] = struct{}{}
	}
	s.mu.Unlock()

	reasoning := reason
	if reasoning == "" {
		if res.WasAssigned {
			reasoning = fmt.Sprintf("unassigned driver %s from %s", res.PreviousDriver, block.Descriptor())
		} else {
			reasoning = fmt.Sprintf("block %s had no active assignment", blockID)
		}
	}
	s.publish(s.ledger.Append(Decision{
		BlockID:         blockID,
		BlockDescriptor: block.Descriptor(),
		DriverID:        res.PreviousDriver,
		Action:          ActionSkipped,
		Reasoning:       reasoning,
	}))
	return res, nil
}

func (s *Session) publish(d Decision) {
	if s.cfg.Bus == nil {
		return
	}
	s.cfg.Bus.Publish(DecisionEvent{TenantID: s.key.TenantID, WeekStart: s.key.WeekStart, Decision: d})
}
