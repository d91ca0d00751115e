package lifecycle

import (
	"context"
	"time"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/models"
)

// Overlaps reports whether two half-open windows intersect. Start is
// inclusive, end exclusive: back-to-back calls do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// MarkOverbooked finds the closer's other pre-outcome calls whose window
// overlaps the shown call and transitions each to Overbooked. Best-effort:
// a failed query or a rejected transition is logged and never propagates,
// so the triggering Show always stands.
func (m *Machine) MarkOverbooked(ctx context.Context, shown *models.Call) {
	start := shown.StartTime()
	if start.IsZero() {
		return
	}
	end := shown.EndTime()

	candidates, err := m.calls.ListByCloserStates(ctx, shown.TenantID, shown.CloserID, config.PreOutcomeStates)
	if err != nil {
		m.logger.Warn("Overbook scan failed",
			"tenant_id", shown.TenantID,
			"call_id", shown.ID,
			"error", err)
		return
	}

	for i := range candidates {
		other := &candidates[i]
		if other.ID == shown.ID {
			continue
		}
		otherStart := other.StartTime()
		if otherStart.IsZero() {
			continue
		}
		if !Overlaps(otherStart, other.EndTime(), start, end) {
			continue
		}
		err := m.Transition(ctx, other, models.AttendanceOverbooked,
			models.TriggerDoubleBooked, models.TriggerSourceSystem,
			"overlaps call "+shown.ID, nil)
		if err != nil {
			m.logger.Warn("Overbook transition failed",
				"tenant_id", other.TenantID,
				"call_id", other.ID,
				"error", err)
		}
	}
}
