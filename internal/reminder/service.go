package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/remindme/internal/apperr"
	"github.com/pathakanu/remindme/internal/model"
	"github.com/sirupsen/logrus"
)

// Store is the persistence the service needs. *store.Store satisfies it.
type Store interface {
	Insert(ctx context.Context, theme, message string, dueAt int64) (int64, error)
	ListAll(ctx context.Context) ([]model.Reminder, error)
	ListPending(ctx context.Context, after int64) ([]model.Reminder, error)
	GetByID(ctx context.Context, id int64) (*model.Reminder, error)
	DeleteByID(ctx context.Context, id int64) error
}

// Scheduler arms and cancels triggers. *scheduler.Scheduler satisfies it.
type Scheduler interface {
	CanSchedule() bool
	Schedule(id int64, theme, message string, dueAt int64) error
	Cancel(id int64)
}

// Service coordinates the reminder lifecycle across store and scheduler.
type Service struct {
	store     Store
	scheduler Scheduler
	logger    logrus.FieldLogger
}

// NewService wires a Service.
func NewService(store Store, scheduler Scheduler, log logrus.FieldLogger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		logger:    log,
	}
}

// Create validates input, persists the reminder and arms its trigger.
func (s *Service) Create(ctx context.Context, theme, message string, dueAt time.Time) (int64, error) {
	if strings.TrimSpace(theme) == "" || strings.TrimSpace(message) == "" || dueAt.IsZero() {
		return 0, apperr.Validation("Please fill in all fields")
	}
	// Checked before insert so a denied capability leaves no row behind.
	if !s.scheduler.CanSchedule() {
		return 0, apperr.PermissionRequired()
	}

	due := dueAt.UnixMilli()
	id, err := s.store.Insert(ctx, theme, message, due)
	if err != nil {
		return 0, err
	}

	if err := s.scheduler.Schedule(id, theme, message, due); err != nil {
		if delErr := s.store.DeleteByID(ctx, id); delErr != nil {
			s.logger.WithError(delErr).WithField("reminder_id", id).Error("reminder: rollback after schedule failure")
		}
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{"reminder_id": id, "due_at": dueAt.Format(time.RFC3339)}).Info("reminder: created")
	return id, nil
}

// List returns all reminders, latest due first.
func (s *Service) List(ctx context.Context) ([]model.Reminder, error) {
	return s.store.ListAll(ctx)
}

// Get returns the reminder or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (*model.Reminder, error) {
	return s.store.GetByID(ctx, id)
}

// Open resolves a deep link. A reminder that no longer exists yields nil, nil.
func (s *Service) Open(ctx context.Context, id int64) (*model.Reminder, error) {
	if id <= 0 {
		return nil, nil
	}
	reminder, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reminder == nil {
		s.logger.WithField("reminder_id", id).Debug("reminder: deep link target gone")
	}
	return reminder, nil
}

// Delete removes the row and then its trigger. A store failure leaves the trigger armed.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.scheduler.Cancel(id)
	s.logger.WithField("reminder_id", id).Info("reminder: deleted")
	return nil
}

// Restore re-arms triggers for every reminder due after now. Triggers live in
// process memory, so this runs at startup.
func (s *Service) Restore(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.store.ListPending(ctx, now.UnixMilli())
	if err != nil {
		return 0, err
	}

	armed := 0
	for _, r := range pending {
		if err := s.scheduler.Schedule(r.ID, r.Theme, r.Message, r.DueAt); err != nil {
			return armed, fmt.Errorf("restore reminder %d: %w", r.ID, err)
		}
		armed++
	}
	s.logger.Infof("reminder: restored %d pending triggers", armed)
	return armed, nil
}
