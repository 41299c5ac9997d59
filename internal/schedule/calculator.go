// Package schedule computes follow-up checkpoints for an incident.
//
// The calculator is pure: the caller passes "now", and the sleep policy reads
// the hour from it, so severity and time-of-day banding are testable without
// a wall clock.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"wisefido-followup/internal/models"
)

// Input incident payload relevant to scheduling
type Input struct {
	IncidentType string
	Severity     int
	Remedy       string
	CustomLabel  string
}

// Schedule ordered checkpoints plus a summary line
type Schedule struct {
	Checkpoints []models.Checkpoint
	Description string
}

// Empty true when no follow-up should be scheduled
func (s Schedule) Empty() bool {
	return len(s.Checkpoints) == 0
}

// Compute returns the checkpoints for in, relative to now.
// A blank remedy yields an empty schedule; whether to ask at all is the caller's call.
func Compute(in Input, now time.Time) Schedule {
	if strings.TrimSpace(in.Remedy) == "" {
		return Schedule{}
	}

	b := policyFor(in.IncidentType, now.Hour()).bandFor(clampSeverity(in.Severity))
	subject := b.phrase
	if label := strings.TrimSpace(in.CustomLabel); label != "" {
		subject = fmt.Sprintf("%s (%s)", b.phrase, label)
	}

	checkpoints := make([]models.Checkpoint, 0, len(b.offsets))
	for _, offset := range b.offsets {
		checkpoints = append(checkpoints, models.Checkpoint{
			Timestamp:       now.Add(time.Duration(offset) * time.Minute),
			IntervalMinutes: offset,
			Description:     fmt.Sprintf("%s check on %s", FormatInterval(offset), subject),
		})
	}

	last := b.offsets[len(b.offsets)-1]
	desc := fmt.Sprintf("%d follow-up", len(checkpoints))
	if len(checkpoints) > 1 {
		desc += "s"
	}
	desc += fmt.Sprintf(" over %s for %s", FormatInterval(last), subject)

	return Schedule{Checkpoints: checkpoints, Description: desc}
}

// FormatInterval renders minutes as "30 min", "2 hr", "1 hr 30 min"
func FormatInterval(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%d hr", h)
	}
	return fmt.Sprintf("%d hr %d min", h, m)
}

func clampSeverity(s int) int {
	if s < 1 {
		return 1
	}
	if s > 10 {
		return 10
	}
	return s
}
