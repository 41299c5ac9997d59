package models

import (
	"time"
)

// Incident types understood by the schedule calculator
const (
	IncidentTypeBehavioral  = "behavioral"
	IncidentTypePainMedical = "pain_medical"
	IncidentTypeMood        = "mood"
	IncidentTypeSleep       = "sleep"
	IncidentTypeEating      = "eating"
	IncidentTypeSensory     = "sensory"
	IncidentTypeOther       = "other"
)

// Checkpoint one scheduled check-in. Fixed at creation.
type Checkpoint struct {
	Timestamp       time.Time `json:"timestamp"`
	IntervalMinutes int       `json:"interval_minutes"`
	Description     string    `json:"description"`
}

// Response caregiver answer for one checkpoint
type Response struct {
	Effectiveness   string    `json:"effectiveness"`
	Notes           string    `json:"notes"`
	Timestamp       time.Time `json:"timestamp"`
	ResponseIndex   int       `json:"response_index"`
	IntervalMinutes int       `json:"interval_minutes"`
	RespondedBy     string    `json:"responded_by,omitempty"`
}

// Incident logged event with its follow-up state (incidents table).
// Descriptive payload is owned by the logging flow; the follow-up fields are
// only mutated by the follow-up repository.
type Incident struct {
	ID          string    `json:"id" db:"incident_id"`
	ChildID     string    `json:"child_id" db:"child_id"`
	ChildLabel  string    `json:"child_label" db:"child_label"`
	Type        string    `json:"type" db:"incident_type"`
	Severity    int       `json:"severity" db:"severity"` // 1-10
	Remedy      string    `json:"remedy" db:"remedy"`
	Notes       string    `json:"notes" db:"notes"`
	CustomLabel string    `json:"custom_label,omitempty" db:"custom_label"`
	LoggedBy    string    `json:"logged_by,omitempty" db:"logged_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	FollowUpScheduled bool         `json:"follow_up_scheduled" db:"follow_up_scheduled"`
	FollowUpTimes     []Checkpoint `json:"follow_up_times" db:"follow_up_times"` // JSONB
	NextFollowUpIndex int          `json:"next_follow_up_index" db:"next_follow_up_index"`
	FollowUpResponses []Response   `json:"follow_up_responses" db:"follow_up_responses"` // JSONB
	FollowUpCompleted bool         `json:"follow_up_completed" db:"follow_up_completed"`

	// due pointer, cleared on completion
	NextFollowUpDue         *time.Time `json:"next_follow_up_due,omitempty" db:"next_follow_up_due"`
	NextFollowUpDescription *string    `json:"next_follow_up_description,omitempty" db:"next_follow_up_description"`

	// denormalized copy of the last element of FollowUpResponses
	LastFollowUpResponse  *Response  `json:"last_follow_up_response,omitempty" db:"last_follow_up_response"`
	LastFollowUpTimestamp *time.Time `json:"last_follow_up_timestamp,omitempty" db:"last_follow_up_timestamp"`

	FollowUpCompletedAt *time.Time `json:"follow_up_completed_at,omitempty" db:"follow_up_completed_at"`
	CompletedBy         *string    `json:"completed_by,omitempty" db:"completed_by"`

	Version int64 `json:"version" db:"version"`
}

// HasOpenCheckpoint true while a checkpoint is still awaiting a response
func (i *Incident) HasOpenCheckpoint() bool {
	return i.FollowUpScheduled && !i.FollowUpCompleted && i.NextFollowUpIndex < len(i.FollowUpTimes)
}

// CurrentCheckpoint checkpoint at NextFollowUpIndex, nil when none is open
func (i *Incident) CurrentCheckpoint() *Checkpoint {
	if !i.HasOpenCheckpoint() || i.NextFollowUpIndex < 0 {
		return nil
	}
	return &i.FollowUpTimes[i.NextFollowUpIndex]
}

// Clone deep copy; stores hand out clones so callers never alias stored state
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	c := *i
	if i.FollowUpTimes != nil {
		c.FollowUpTimes = append([]Checkpoint(nil), i.FollowUpTimes...)
	}
	if i.FollowUpResponses != nil {
		c.FollowUpResponses = append([]Response(nil), i.FollowUpResponses...)
	}
	if i.NextFollowUpDue != nil {
		t := *i.NextFollowUpDue
		c.NextFollowUpDue = &t
	}
	if i.NextFollowUpDescription != nil {
		s := *i.NextFollowUpDescription
		c.NextFollowUpDescription = &s
	}
	if i.LastFollowUpResponse != nil {
		r := *i.LastFollowUpResponse
		c.LastFollowUpResponse = &r
	}
	if i.LastFollowUpTimestamp != nil {
		t := *i.LastFollowUpTimestamp
		c.LastFollowUpTimestamp = &t
	}
	if i.FollowUpCompletedAt != nil {
		t := *i.FollowUpCompletedAt
		c.FollowUpCompletedAt = &t
	}
	if i.CompletedBy != nil {
		s := *i.CompletedBy
		c.CompletedBy = &s
	}
	return &c
}
