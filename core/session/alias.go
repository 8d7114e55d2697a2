package session

import (
	"strings"

	"github.com/fleetops/dutyroster/core/model"
)

// ResolveDriverName is a best-effort alias lookup by display name. It is a
// UX convenience for callers holding a name instead of an id, not a
// correctness-critical path: matching is case- and whitespace-insensitive
// and falls back to unique prefix or substring matches. Ambiguous names
// resolve to nothing.
func (s *Session) ResolveDriverName(name string) (model.Driver, bool) {
	want := normalizeName(name)
	if want == "" {
		return model.Driver{}, false
	}

	for _, d := range s.drivers {
		if normalizeName(d.Name) == want {
			return d, true
		}
	}

	var match model.Driver
	var hits int
	for _, d := range s.drivers {
		n := normalizeName(d.Name)
		if strings.HasPrefix(n, want) || strings.Contains(n, want) {
			match = d
			hits++
		}
	}
	if hits == 1 {
		return match, true
	}
	return model.Driver{}, false
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
