package models

import "time"

// QuickResponseRecord durable queue entry written by the background capturer
type QuickResponseRecord struct {
	ResponseID        string     `json:"response_id"`
	IncidentID        string     `json:"incident_id"`
	FollowUpIndex     int        `json:"follow_up_index"`
	EffectivenessCode string     `json:"effectiveness_code"`
	CapturedAt        time.Time  `json:"captured_at"`
	Processed         bool       `json:"processed"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
}
