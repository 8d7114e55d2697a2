package scoring

import "context"

// MockScorer returns preconfigured scores for tests.
type MockScorer struct {
	Patterns map[string]DriverPattern
	Scores   map[string]map[string]SlotScores
	Err      error
}

// BulkPatterns returns the configured patterns for the requested drivers.
func (m MockScorer) BulkPatterns(ctx context.Context, history History) (map[string]DriverPattern, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]DriverPattern)
	for id := range history {
		if p, ok := m.Patterns[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// BulkAffinity returns the configured scores for the requested drivers.
func (m MockScorer) BulkAffinity(ctx context.Context, history History, slots []Slot) (map[string]map[string]SlotScores, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]map[string]SlotScores)
	for id := range history {
		if s, ok := m.Scores[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}
