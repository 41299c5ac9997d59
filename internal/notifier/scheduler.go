package notifier

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"wisefido-followup/internal/models"

	"go.uber.org/zap"
)

const displayTimeout = 10 * time.Second

// Timer armed reminder; *time.Timer satisfies it
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type armedTimer struct {
	timer Timer
	seq   uint64
}

// Scheduler in-memory reminder timers keyed "incidentID:checkpointIndex".
// Timers are best effort only; pending state is always re-derived from stored checkpoints.
type Scheduler struct {
	mu        sync.Mutex
	timers    map[string]armedTimer
	seq       uint64
	surface   Surface
	afterFunc AfterFunc
	clock     func() time.Time
	logger    *zap.Logger
}

func NewScheduler(surface Surface, clock func() time.Time, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		timers:    map[string]armedTimer{},
		surface:   surface,
		afterFunc: systemAfterFunc,
		clock:     clock,
		logger:    logger,
	}
}

// Available false in degraded mode, when every call is a no-op
func (s *Scheduler) Available() bool {
	return s.surface != nil && s.surface.Available()
}

// ScheduleOne arms the reminder for checkpoint idx, replacing any timer under the same key.
// Returns false when nothing was armed: degraded mode, completed incident, bad index
// or a checkpoint already due.
func (s *Scheduler) ScheduleOne(inc *models.Incident, childLabel string, idx int) bool {
	if !s.Available() {
		return false
	}
	if inc == nil || inc.FollowUpCompleted || idx < 0 || idx >= len(inc.FollowUpTimes) {
		return false
	}

	delay := inc.FollowUpTimes[idx].Timestamp.Sub(s.clock())
	if delay <= 0 {
		return false
	}

	key := timerKey(inc.ID, idx)
	n := BuildNotification(inc, childLabel, idx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[key]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	t := s.afterFunc(delay, func() {
		s.fire(key, seq, n)
	})
	s.timers[key] = armedTimer{timer: t, seq: seq}

	s.logger.Debug("Follow-up reminder armed",
		zap.String("incident_id", inc.ID),
		zap.Int("checkpoint_index", idx),
		zap.Duration("delay", delay),
	)
	return true
}

// ScheduleAll arms every checkpoint from NextFollowUpIndex onward, returns how many were armed
func (s *Scheduler) ScheduleAll(inc *models.Incident, childLabel string) int {
	if inc == nil || inc.FollowUpCompleted {
		return 0
	}
	armed := 0
	for idx := inc.NextFollowUpIndex; idx < len(inc.FollowUpTimes); idx++ {
		if s.ScheduleOne(inc, childLabel, idx) {
			armed++
		}
	}
	return armed
}

// Cancel stops every timer of incidentID. Notifications already displayed are not affected.
func (s *Scheduler) Cancel(incidentID string) int {
	prefix := incidentID + ":"

	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for key, armed := range s.timers {
		if strings.HasPrefix(key, prefix) {
			armed.timer.Stop()
			delete(s.timers, key)
			cancelled++
		}
	}
	if cancelled > 0 {
		s.logger.Debug("Follow-up reminders cancelled",
			zap.String("incident_id", incidentID),
			zap.Int("count", cancelled),
		)
	}
	return cancelled
}

// CancelOne stops the timer of one checkpoint, e.g. once it was answered early
func (s *Scheduler) CancelOne(incidentID string, idx int) bool {
	key := timerKey(incidentID, idx)

	s.mu.Lock()
	defer s.mu.Unlock()

	armed, ok := s.timers[key]
	if !ok {
		return false
	}
	armed.timer.Stop()
	delete(s.timers, key)
	return true
}

// Armed number of timers still waiting to fire
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels everything, used on shutdown
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, key)
	}
}

func (s *Scheduler) fire(key string, seq uint64, n Notification) {
	s.mu.Lock()
	armed, ok := s.timers[key]
	if !ok || armed.seq != seq {
		// cancelled or replaced after the timer started running
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	if !s.Available() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), displayTimeout)
	defer cancel()

	if err := s.surface.Display(ctx, n); err != nil {
		s.logger.Warn("Failed to display follow-up reminder",
			zap.String("incident_id", n.Tag.IncidentID),
			zap.Int("checkpoint_index", n.Tag.CheckpointIndex),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Follow-up reminder displayed",
		zap.String("incident_id", n.Tag.IncidentID),
		zap.Int("checkpoint_index", n.Tag.CheckpointIndex),
	)
}

func timerKey(incidentID string, idx int) string {
	return incidentID + ":" + strconv.Itoa(idx)
}
