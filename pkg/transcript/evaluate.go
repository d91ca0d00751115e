package transcript

import (
	"strings"
	"unicode/utf8"

	"github.com/callscope/callscope/pkg/models"
)

const (
	// defaultMinChars is the shortest transcript that counts as a
	// conversation. Below this the call is a ghost no matter what the
	// text says.
	defaultMinChars = 50

	// defaultMinSpeakers requires both sides to have spoken.
	defaultMinSpeakers = 2
)

// evaluateAttendance decides Show versus Ghosted from transcript material
// alone. Outcome-level nuance (Disqualified, Not Pitched) is the AI's
// job; this only distinguishes "a conversation happened" from "it
// didn't". Non-positive thresholds fall back to the defaults.
func evaluateAttendance(t *models.CanonicalTranscript, minChars, minSpeakers int) models.AttendanceState {
	if minChars <= 0 {
		minChars = defaultMinChars
	}
	if minSpeakers <= 0 {
		minSpeakers = defaultMinSpeakers
	}
	if t == nil {
		return models.AttendanceGhosted
	}
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return models.AttendanceGhosted
	}
	if utf8.RuneCountInString(text) < minChars {
		return models.AttendanceGhosted
	}
	if speakerCount(t) < minSpeakers {
		return models.AttendanceGhosted
	}
	return models.AttendanceShow
}

func speakerCount(t *models.CanonicalTranscript) int {
	if t.SpeakerCount > 0 {
		return t.SpeakerCount
	}
	return len(t.Speakers)
}
