package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-followup/internal/export"
	"wisefido-followup/internal/models"
	"wisefido-followup/internal/pending"
	"wisefido-followup/internal/quickresponse"
	"wisefido-followup/internal/repository"
	"wisefido-followup/internal/schedule"

	"go.uber.org/zap"
)

// Notifier reminder timers; implemented by notifier.Scheduler
type Notifier interface {
	Available() bool
	ScheduleAll(inc *models.Incident, childLabel string) int
	CancelOne(incidentID string, idx int) bool
	Cancel(incidentID string) int
}

// IncidentInput payload handed over by the incident logging flow
type IncidentInput struct {
	ChildID          string `json:"child_id"`
	ChildLabel       string `json:"child_label"`
	Type             string `json:"type"`
	Severity         int    `json:"severity"`
	Remedy           string `json:"remedy"`
	Notes            string `json:"notes"`
	CustomLabel      string `json:"custom_label"`
	ScheduleFollowUp bool   `json:"schedule_follow_up"`
	LoggedBy         string `json:"-"`
}

// CreateResult stored incident plus how reminders went.
// Reminder problems never fail the create.
type CreateResult struct {
	Incident              *models.Incident `json:"incident"`
	ScheduleDescription   string           `json:"schedule_description,omitempty"`
	NotificationsArmed    int              `json:"notifications_armed"`
	NotificationsDegraded bool             `json:"notifications_degraded"`
}

// StartupReport what Startup did
type StartupReport struct {
	Reconciliation *quickresponse.Report `json:"reconciliation,omitempty"`
	OpenFollowUps  int                   `json:"open_follow_ups"`
	Rearmed        int                   `json:"rearmed"`
}

// FollowUpService glues scheduling, the repository, reminders and the pending view
type FollowUpService struct {
	repo     *repository.FollowUpRepository
	notifier Notifier
	pending  *pending.Service
	clock    func() time.Time
	logger   *zap.Logger
}

func NewFollowUpService(
	repo *repository.FollowUpRepository,
	notifier Notifier,
	pendingSvc *pending.Service,
	clock func() time.Time,
	logger *zap.Logger,
) *FollowUpService {
	if clock == nil {
		clock = time.Now
	}
	return &FollowUpService{
		repo:     repo,
		notifier: notifier,
		pending:  pendingSvc,
		clock:    clock,
		logger:   logger,
	}
}

// LogIncident stores the incident, with a computed schedule when follow-up was asked for
// and a remedy was given, then arms reminders after the write.
func (s *FollowUpService) LogIncident(ctx context.Context, in IncidentInput) (*CreateResult, error) {
	now := s.clock()

	incidentType := strings.TrimSpace(in.Type)
	if incidentType == "" {
		incidentType = models.IncidentTypeOther
	}

	var sched schedule.Schedule
	if in.ScheduleFollowUp {
		sched = schedule.Compute(schedule.Input{
			IncidentType: incidentType,
			Severity:     in.Severity,
			Remedy:       in.Remedy,
			CustomLabel:  in.CustomLabel,
		}, now)
	}

	inc, err := s.repo.Create(ctx, &models.Incident{
		ChildID:     strings.TrimSpace(in.ChildID),
		ChildLabel:  strings.TrimSpace(in.ChildLabel),
		Type:        incidentType,
		Severity:    in.Severity,
		Remedy:      strings.TrimSpace(in.Remedy),
		Notes:       in.Notes,
		CustomLabel: strings.TrimSpace(in.CustomLabel),
		LoggedBy:    in.LoggedBy,
	}, sched.Checkpoints)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{Incident: inc, ScheduleDescription: sched.Description}
	if !inc.FollowUpScheduled {
		return result, nil
	}

	if s.notifier == nil || !s.notifier.Available() {
		result.NotificationsDegraded = true
		s.logger.Info("Notifications unavailable, follow-up relies on pending view",
			zap.String("incident_id", inc.ID),
		)
		return result, nil
	}
	result.NotificationsArmed = s.notifier.ScheduleAll(inc, inc.ChildLabel)
	return result, nil
}

// Get one incident
func (s *FollowUpService) Get(ctx context.Context, incidentID string) (*models.Incident, error) {
	return s.repo.Get(ctx, incidentID)
}

// RecordResponse records an answer and drops reminders that no longer apply
func (s *FollowUpService) RecordResponse(ctx context.Context, incidentID string, in repository.ResponseInput) (*repository.RecordResult, error) {
	res, err := s.repo.RecordResponse(ctx, incidentID, in)
	if err != nil {
		return nil, err
	}
	if s.notifier == nil {
		return res, nil
	}

	if !res.HasMore {
		s.notifier.Cancel(incidentID)
	} else if res.Recorded() {
		s.notifier.CancelOne(incidentID, res.Incident.NextFollowUpIndex-1)
	}
	return res, nil
}

// ForceComplete ends the follow-up and cancels its reminders
func (s *FollowUpService) ForceComplete(ctx context.Context, incidentID, completedBy string) (*models.Incident, error) {
	inc, err := s.repo.ForceComplete(ctx, incidentID, completedBy)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Cancel(incidentID)
	}
	return inc, nil
}

// Pending overdue / upcoming follow-ups of a child at the current time
func (s *FollowUpService) Pending(ctx context.Context, childID string) (*pending.Summary, error) {
	return s.pending.GetSummary(ctx, childID, s.clock())
}

// Export XLSX follow-up history of a child
func (s *FollowUpService) Export(ctx context.Context, childID string) ([]byte, error) {
	if strings.TrimSpace(childID) == "" {
		return nil, fmt.Errorf("%w: child_id is required", repository.ErrInvalidIncident)
	}
	incidents, err := s.repo.History(ctx, childID)
	if err != nil {
		return nil, err
	}
	data, err := export.FollowUpWorkbook(incidents)
	if err != nil {
		return nil, fmt.Errorf("failed to build follow-up export: %w", err)
	}
	return data, nil
}

// Startup drains queued quick responses, then re-arms reminders for every open follow-up.
// Both steps are best effort; the pending view stays correct without them.
func (s *FollowUpService) Startup(ctx context.Context, reconciler *quickresponse.Reconciler) (*StartupReport, error) {
	report := &StartupReport{}

	if reconciler != nil {
		rec, err := reconciler.Run(ctx)
		if err != nil {
			s.logger.Error("Quick response reconciliation failed", zap.Error(err))
		}
		report.Reconciliation = rec
	}

	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return report, err
	}
	report.OpenFollowUps = len(open)

	if s.notifier != nil && s.notifier.Available() {
		for _, inc := range open {
			report.Rearmed += s.notifier.ScheduleAll(inc, inc.ChildLabel)
		}
	}

	s.logger.Info("Follow-up service started",
		zap.Int("open_follow_ups", report.OpenFollowUps),
		zap.Int("rearmed", report.Rearmed),
	)
	return report, nil
}
