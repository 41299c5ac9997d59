package pending

import (
	"context"
	"math"
	"sort"
	"time"

	"wisefido-followup/internal/models"

	"go.uber.org/zap"
)

// Item one due or soon-due checkpoint
type Item struct {
	IncidentID       string    `json:"incident_id"`
	ChildID          string    `json:"child_id"`
	ChildLabel       string    `json:"child_label,omitempty"`
	IncidentType     string    `json:"incident_type"`
	Severity         int       `json:"severity"`
	Remedy           string    `json:"remedy"`
	CheckpointIndex  int       `json:"checkpoint_index"`
	TotalCheckpoints int       `json:"total_checkpoints"`
	DueAt            time.Time `json:"due_at"`
	Description      string    `json:"description"`
	// negative when overdue
	MinutesUntilDue int `json:"minutes_until_due"`
}

// Summary badge data for one child
type Summary struct {
	ChildID       string    `json:"child_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	Overdue       []Item    `json:"overdue"`
	Upcoming      []Item    `json:"upcoming"`
	OverdueCount  int       `json:"overdue_count"`
	UpcomingCount int       `json:"upcoming_count"`
	OpenCount     int       `json:"open_count"`
}

// Partition splits open follow-ups by their current checkpoint:
// overdue when due <= now, upcoming when due within lookahead, otherwise left out.
func Partition(incidents []*models.Incident, now time.Time, lookahead time.Duration) (overdue, upcoming []Item) {
	overdue = []Item{}
	upcoming = []Item{}
	for _, inc := range incidents {
		cp := inc.CurrentCheckpoint()
		if cp == nil {
			continue
		}
		item := Item{
			IncidentID:       inc.ID,
			ChildID:          inc.ChildID,
			ChildLabel:       inc.ChildLabel,
			IncidentType:     inc.Type,
			Severity:         inc.Severity,
			Remedy:           inc.Remedy,
			CheckpointIndex:  inc.NextFollowUpIndex,
			TotalCheckpoints: len(inc.FollowUpTimes),
			DueAt:            cp.Timestamp,
			Description:      cp.Description,
			MinutesUntilDue:  int(math.Floor(cp.Timestamp.Sub(now).Minutes())),
		}
		switch until := cp.Timestamp.Sub(now); {
		case until <= 0:
			overdue = append(overdue, item)
		case until <= lookahead:
			upcoming = append(upcoming, item)
		}
	}
	byDue := func(items []Item) {
		sort.SliceStable(items, func(i, j int) bool { return items[i].DueAt.Before(items[j].DueAt) })
	}
	byDue(overdue)
	byDue(upcoming)
	return overdue, upcoming
}

// Reader source of open follow-ups
type Reader interface {
	GetPending(ctx context.Context, childID string) ([]*models.Incident, error)
}

// Service read-only view of what needs attention; the fallback when reminders were missed
type Service struct {
	reader    Reader
	lookahead time.Duration
	logger    *zap.Logger
}

func NewService(reader Reader, lookahead time.Duration, logger *zap.Logger) *Service {
	if lookahead <= 0 {
		lookahead = time.Hour
	}
	return &Service{reader: reader, lookahead: lookahead, logger: logger}
}

// Lookahead upcoming window in use
func (s *Service) Lookahead() time.Duration {
	return s.lookahead
}

func (s *Service) GetSummary(ctx context.Context, childID string, now time.Time) (*Summary, error) {
	incidents, err := s.reader.GetPending(ctx, childID)
	if err != nil {
		return nil, err
	}

	overdue, upcoming := Partition(incidents, now, s.lookahead)
	summary := &Summary{
		ChildID:       childID,
		GeneratedAt:   now,
		Overdue:       overdue,
		Upcoming:      upcoming,
		OverdueCount:  len(overdue),
		UpcomingCount: len(upcoming),
		OpenCount:     len(incidents),
	}

	s.logger.Debug("Pending follow-ups computed",
		zap.String("child_id", childID),
		zap.Int("overdue", summary.OverdueCount),
		zap.Int("upcoming", summary.UpcomingCount),
		zap.Int("open", summary.OpenCount),
	)
	return summary, nil
}
