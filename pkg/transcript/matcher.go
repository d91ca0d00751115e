package transcript

import (
	"context"
	"time"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/models"
)

// defaultMatchWindow bounds how far a recording's start may drift from
// the scheduled slot and still belong to it.
const defaultMatchWindow = 30 * time.Minute

// CallFinder lists a closer's open calls for matching.
type CallFinder interface {
	ListByCloserStates(ctx context.Context, tenantID, closerID string, states []models.AttendanceState) ([]models.Call, error)
}

// matchCall resolves the call a transcript belongs to. Two tiers within
// the closer's pre-outcome calls: first prospect email plus start time
// within the window, then start time alone. Returns nil when nothing
// matches; the caller creates a synthetic call. A non-positive window
// falls back to the default.
func matchCall(ctx context.Context, calls CallFinder, tenantID, closerID string, t *models.CanonicalTranscript, window time.Duration) (*models.Call, error) {
	if window <= 0 {
		window = defaultMatchWindow
	}
	candidates, err := calls.ListByCloserStates(ctx, tenantID, closerID, config.PreOutcomeStates)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ref := t.ScheduledStart
	if ref.IsZero() {
		ref = t.RecordingStart
	}
	email := models.NormalizeEmail(t.ProspectEmail)

	if email != "" && email != models.UnknownProspectEmail {
		if match := closestInWindow(candidates, ref, window, func(c *models.Call) bool {
			return models.NormalizeEmail(c.ProspectEmail) == email
		}); match != nil {
			return match, nil
		}
	}
	return closestInWindow(candidates, ref, window, func(*models.Call) bool { return true }), nil
}

// closestInWindow picks the eligible candidate whose start lies nearest
// the reference time. With no usable reference, the most recently created
// eligible candidate wins.
func closestInWindow(candidates []models.Call, ref time.Time, window time.Duration, eligible func(*models.Call) bool) *models.Call {
	var best *models.Call
	var bestDelta time.Duration

	for i := range candidates {
		c := &candidates[i]
		if !eligible(c) {
			continue
		}
		if ref.IsZero() {
			if best == nil || c.CreatedAt > best.CreatedAt {
				best = c
			}
			continue
		}
		start := c.StartTime()
		if start.IsZero() {
			continue
		}
		delta := ref.Sub(start)
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		if best == nil || delta < bestDelta {
			best = c
			bestDelta = delta
		}
	}
	return best
}

// reprocessable reports whether a call can still accept a transcript:
// any state with an edge to Show, which covers the pre-outcome states
// and a ghosted call being revived.
func reprocessable(s models.AttendanceState) bool {
	return config.AllowedTransition(s, models.AttendanceShow, config.ShowTrigger(s))
}
