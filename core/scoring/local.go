package scoring

import (
	"context"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/fleetops/dutyroster/core/model"
)

// minDayTotal is the number of historical assignments a day of week needs
// before it counts as part of a driver's typical pattern.
const minDayTotal = 2

// defaultTypicalDays caps drivers with no usable history.
const defaultTypicalDays = 6

// LocalAnalyzer derives patterns and scores from assignment history without
// an external service. It is the fallback scorer when no scoring command is
// configured and intentionally favours simple frequency statistics over the
// learned model it stands in for.
type LocalAnalyzer struct{}

// BulkPatterns computes each driver's typical day-of-week pattern. A day
// counts when the driver accumulated at least two historical assignments on
// it; confidence reflects how evenly the counted days are worked.
func (LocalAnalyzer) BulkPatterns(ctx context.Context, history History) (map[string]DriverPattern, error) {
	out := make(map[string]DriverPattern, len(history))
	for driverID, past := range history {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		totals := make(map[string]int)
		for _, ab := range past {
			totals[strings.ToLower(ab.Block.Day.String())]++
		}
		counts := make(map[string]int)
		for day, n := range totals {
			if n >= minDayTotal {
				counts[day] = n
			}
		}
		if len(counts) == 0 {
			out[driverID] = DriverPattern{DriverID: driverID, TypicalDays: defaultTypicalDays}
			continue
		}
		days := make([]string, 0, len(counts))
		vals := make([]float64, 0, len(counts))
		for day, n := range counts {
			days = append(days, day)
			vals = append(vals, float64(n))
		}
		sort.Slice(days, func(i, j int) bool {
			if counts[days[i]] != counts[days[j]] {
				return counts[days[i]] > counts[days[j]]
			}
			return days[i] < days[j]
		})
		mean := stat.Mean(vals, nil)
		sd := stat.StdDev(vals, nil)
		if len(vals) == 1 {
			sd = 0
		}
		confidence := 1 - sd/(mean+1)
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		out[driverID] = DriverPattern{
			DriverID:    driverID,
			TypicalDays: len(counts),
			DayList:     days,
			DayCounts:   counts,
			Confidence:  confidence,
		}
	}
	return out, nil
}

// BulkAffinity scores each driver against each slot from raw history
// frequency. Ownership is the driver's share of all historical assignments
// on the slot's duty type, resource and weekday; affinity is how much of the
// driver's own history matches the slot's weekday and duty type.
func (LocalAnalyzer) BulkAffinity(ctx context.Context, history History, slots []Slot) (map[string]map[string]SlotScores, error) {
	if len(history) == 0 || len(slots) == 0 {
		return map[string]map[string]SlotScores{}, nil
	}

	type slotID struct {
		dutyType model.DutyType
		resource string
		weekday  string
	}
	slotTotals := make(map[slotID]int)
	perDriver := make(map[string]map[slotID]int)
	for driverID, past := range history {
		perDriver[driverID] = make(map[slotID]int)
		for _, ab := range past {
			id := slotID{ab.Block.DutyType, ab.Block.ResourceID, ab.Block.Day.String()}
			slotTotals[id]++
			perDriver[driverID][id]++
		}
	}

	out := make(map[string]map[string]SlotScores, len(history))
	for driverID, past := range history {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores := make(map[string]SlotScores, len(slots))
		for _, s := range slots {
			date, err := model.ParseDate(s.Date)
			if err != nil {
				continue
			}
			id := slotID{s.DutyType, s.ResourceID, date.Weekday().String()}
			var own float64
			if total := slotTotals[id]; total > 0 {
				own = float64(perDriver[driverID][id]) / float64(total)
			}
			var matching int
			for _, ab := range past {
				if ab.Block.DutyType == s.DutyType && ab.Block.Day == date.Weekday() {
					matching++
				}
			}
			var aff float64
			if len(past) > 0 {
				aff = float64(matching) / float64(len(past))
			}
			scores[s.Key()] = SlotScores{Ownership: own, Affinity: aff}
		}
		out[driverID] = scores
	}
	return out, nil
}
