// Package scorer adapts an external scoring process to the PatternScorer
// interface. The process receives one JSON document as its final argument
// and writes one JSON document to stdout, so the session logic never knows
// whether scores come from a local model runner or anything else.
package scorer

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/fleetops/dutyroster/core/faults"
	"github.com/fleetops/dutyroster/core/logger"
	"github.com/fleetops/dutyroster/core/scoring"
)

// Config describes the external scoring command.
type Config struct {
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// SetDefaults fills optional fields.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
}

// Subprocess shells out to the configured command for both bulk calls.
type Subprocess struct {
	cfg Config
	log logger.Logger
}

// New returns a Subprocess scorer.
func New(cfg Config, log logger.Logger) *Subprocess {
	cfg.SetDefaults()
	return &Subprocess{cfg: cfg, log: log}
}

type wireAssignment struct {
	BlockID     string `json:"block_id"`
	ServiceDate string `json:"service_date"`
	Day         int    `json:"day"`
	DutyType    string `json:"duty_type"`
	ResourceID  string `json:"resource_id"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
}

type wireRequest struct {
	Action  string                      `json:"action"`
	History map[string][]wireAssignment `json:"history"`
	Slots   []scoring.Slot              `json:"slots,omitempty"`
}

type patternsResponse struct {
	Patterns map[string]scoring.DriverPattern `json:"patterns"`
}

type affinityResponse struct {
	Scores map[string]map[string]scoring.SlotScores `json:"scores"`
}

func wireHistory(history scoring.History) map[string][]wireAssignment {
	out := make(map[string][]wireAssignment, len(history))
	for driverID, past := range history {
		entries := make([]wireAssignment, 0, len(past))
		for _, ab := range past {
			entries = append(entries, wireAssignment{
				BlockID:     ab.Block.ID,
				ServiceDate: ab.Block.ServiceDate,
				Day:         int(ab.Block.Day),
				DutyType:    string(ab.Block.DutyType),
				ResourceID:  ab.Block.ResourceID,
				Start:       ab.Block.StartTime.Unix(),
				End:         ab.Block.EndTime.Unix(),
			})
		}
		out[driverID] = entries
	}
	return out
}

func (s *Subprocess) run(ctx context.Context, req wireRequest, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return faults.Wrap(err, faults.UpstreamUnavailable, "encode scoring request")
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	args := append(append([]string{}, s.cfg.Args...), string(payload))
	s.log.Debugf("running scoring command %s (%s, %d bytes)", s.cfg.Command, req.Action, len(payload))
	cmd := exec.CommandContext(ctx, s.cfg.Command, args...)
	stdout, err := cmd.Output()
	if err != nil {
		return faults.Wrap(err, faults.UpstreamUnavailable, "scoring command %q failed", s.cfg.Command)
	}
	if err := json.Unmarshal(stdout, out); err != nil {
		return faults.Wrap(err, faults.UpstreamUnavailable, "scoring command %q returned malformed output", s.cfg.Command)
	}
	return nil
}

// BulkPatterns asks the external process for every driver's pattern.
func (s *Subprocess) BulkPatterns(ctx context.Context, history scoring.History) (map[string]scoring.DriverPattern, error) {
	if len(history) == 0 {
		return map[string]scoring.DriverPattern{}, nil
	}
	var resp patternsResponse
	if err := s.run(ctx, wireRequest{Action: "patterns", History: wireHistory(history)}, &resp); err != nil {
		return nil, err
	}
	if resp.Patterns == nil {
		resp.Patterns = map[string]scoring.DriverPattern{}
	}
	for id, p := range resp.Patterns {
		p.DriverID = id
		p.Confidence = clamp01(p.Confidence)
		resp.Patterns[id] = p
	}
	return resp.Patterns, nil
}

// BulkAffinity asks the external process for the driver × slot score matrix.
func (s *Subprocess) BulkAffinity(ctx context.Context, history scoring.History, slots []scoring.Slot) (map[string]map[string]scoring.SlotScores, error) {
	if len(history) == 0 || len(slots) == 0 {
		return map[string]map[string]scoring.SlotScores{}, nil
	}
	var resp affinityResponse
	if err := s.run(ctx, wireRequest{Action: "affinity", History: wireHistory(history), Slots: slots}, &resp); err != nil {
		return nil, err
	}
	if resp.Scores == nil {
		resp.Scores = map[string]map[string]scoring.SlotScores{}
	}
	for _, byKey := range resp.Scores {
		for key, sc := range byKey {
			sc.Ownership = clamp01(sc.Ownership)
			sc.Affinity = clamp01(sc.Affinity)
			byKey[key] = sc
		}
	}
	return resp.Scores, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ scoring.PatternScorer = (*Subprocess)(nil)
