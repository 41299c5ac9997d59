package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-followup/internal/models"
)

// Action one button offered on a notification
type Action struct {
	ID    string `json:"action_id"`
	Label string `json:"label"`
}

// Tag routes a tapped action back to its checkpoint
type Tag struct {
	IncidentID      string `json:"incident_id"`
	CheckpointIndex int    `json:"checkpoint_index"`
}

// Notification follow-up reminder handed to a Surface
type Notification struct {
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Actions []Action  `json:"actions"`
	Tag     Tag       `json:"tag"`
	ChildID string    `json:"child_id"`
	DueAt   time.Time `json:"due_at"`
}

// ActionEvent what a surface reports back when a caregiver taps an action
type ActionEvent struct {
	ActionID   string    `json:"action_id"`
	Tag        Tag       `json:"tag"`
	SelectedAt time.Time `json:"selected_at"`
}

// Surface displays notifications on caregiver devices.
// Available is false when the surface cannot deliver (no permission, broker down, not configured).
type Surface interface {
	Available() bool
	Display(ctx context.Context, n Notification) error
}

// QuickResponseActions the three buttons attached to every reminder
func QuickResponseActions() []Action {
	return []Action{
		{ID: models.QuickCodeEffective, Label: "Fully effective"},
		{ID: models.QuickCodeSomewhat, Label: "Somewhat effective"},
		{ID: models.QuickCodeNotEffective, Label: "Not effective"},
	}
}

// BuildNotification reminder for checkpoint idx of inc
func BuildNotification(inc *models.Incident, childLabel string, idx int) Notification {
	cp := inc.FollowUpTimes[idx]

	title := "Follow-up check"
	if label := strings.TrimSpace(childLabel); label != "" {
		title = fmt.Sprintf("Follow-up check for %s", label)
	}

	body := cp.Description
	if remedy := strings.TrimSpace(inc.Remedy); remedy != "" {
		body = fmt.Sprintf("%s. How effective was %s?", cp.Description, remedy)
	}

	return Notification{
		Title:   title,
		Body:    body,
		Actions: QuickResponseActions(),
		Tag: Tag{
			IncidentID:      inc.ID,
			CheckpointIndex: idx,
		},
		ChildID: inc.ChildID,
		DueAt:   cp.Timestamp,
	}
}
