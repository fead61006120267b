package store

import (
	"context"
	"errors"

	"github.com/pathakanu/remindme/internal/apperr"
	"github.com/pathakanu/remindme/internal/model"
	"gorm.io/gorm"
)

// Store is the durable table of reminders.
type Store struct {
	db *gorm.DB
}

// New wraps an already migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Insert persists a reminder and returns its id. Empty strings are accepted here;
// blank input is rejected by the reminder service.
func (s *Store) Insert(ctx context.Context, theme, message string, dueAt int64) (int64, error) {
	reminder := &model.Reminder{
		Theme:   theme,
		Message: message,
		DueAt:   dueAt,
	}
	if err := s.db.WithContext(ctx).Create(reminder).Error; err != nil {
		return 0, apperr.Storage(err, "insert reminder")
	}
	return reminder.ID, nil
}

// ListAll returns every reminder, latest due first.
func (s *Store) ListAll(ctx context.Context) ([]model.Reminder, error) {
	query := s.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Order("due_at DESC").
		Order("id DESC")
	return s.scan(query, "list reminders")
}

// ListPending returns reminders due strictly after the given epoch milliseconds, soonest first.
func (s *Store) ListPending(ctx context.Context, after int64) ([]model.Reminder, error) {
	query := s.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("due_at > ?", after).
		Order("due_at ASC").
		Order("id ASC")
	return s.scan(query, "list pending reminders")
}

// GetByID returns the reminder or nil when no row has that id.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.Reminder, error) {
	var reminder model.Reminder
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&reminder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err, "get reminder")
	}
	return &reminder, nil
}

// DeleteByID removes the reminder. Deleting a missing id is not an error.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Reminder{}).Error; err != nil {
		return apperr.Storage(err, "delete reminder")
	}
	return nil
}

// scan drains query through a cursor that is closed on every return path.
func (s *Store) scan(query *gorm.DB, op string) (reminders []model.Reminder, err error) {
	rows, err := query.Rows()
	if err != nil {
		return nil, apperr.Storage(err, op)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			reminders, err = nil, apperr.Storage(cerr, op)
		}
	}()

	reminders = make([]model.Reminder, 0)
	for rows.Next() {
		var reminder model.Reminder
		if err := s.db.ScanRows(rows, &reminder); err != nil {
			return nil, apperr.Storage(err, op)
		}
		reminders = append(reminders, reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, op)
	}
	return reminders, nil
}
