package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pathakanu/remindme/internal/apperr"
	"github.com/pathakanu/remindme/internal/logger"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Event is the payload delivered when a trigger fires.
type Event struct {
	ID      int64  `json:"id"`
	Theme   string `json:"theme"`
	Message string `json:"message"`
}

// Handler receives fired events on a cron worker goroutine.
type Handler func(ctx context.Context, ev Event)

// Gate reports whether exact-time triggers may be scheduled.
type Gate interface {
	CanScheduleExact() bool
}

// ExactAlarmGate is a Gate toggled at runtime, standing in for the system setting.
type ExactAlarmGate struct {
	granted atomic.Bool
}

// NewExactAlarmGate returns a gate with the given initial state.
func NewExactAlarmGate(granted bool) *ExactAlarmGate {
	g := &ExactAlarmGate{}
	g.granted.Store(granted)
	return g
}

func (g *ExactAlarmGate) CanScheduleExact() bool { return g.granted.Load() }

// Grant allows scheduling.
func (g *ExactAlarmGate) Grant() { g.granted.Store(true) }

// Revoke blocks scheduling. Already pending triggers are left alone.
func (g *ExactAlarmGate) Revoke() { g.granted.Store(false) }

type pending struct {
	entry cron.EntryID
	at    time.Time
}

// Scheduler binds reminder ids to one-shot cron entries.
type Scheduler struct {
	cron    *cron.Cron
	gate    Gate
	handler Handler
	logger  logrus.FieldLogger
	loc     *time.Location

	mu      sync.Mutex
	entries map[int64]pending
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the wall-clock location the cron loop runs in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger used for scheduling and cron diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.logger = log
		}
	}
}

// New creates a Scheduler. handler is invoked once per fired trigger.
func New(gate Gate, handler Handler, opts ...Option) *Scheduler {
	s := &Scheduler{
		gate:    gate,
		handler: handler,
		logger:  logger.Discard(),
		loc:     time.Local,
		entries: make(map[int64]pending),
	}
	for _, opt := range opts {
		opt(s)
	}

	cronLogger := logger.Cron(s.logger)
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	return s
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for running deliveries to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// CanSchedule reports whether the capability gate currently allows Schedule.
func (s *Scheduler) CanSchedule() bool {
	return s.gate == nil || s.gate.CanScheduleExact()
}

// Schedule arms a one-shot trigger for id at dueAt (epoch milliseconds), replacing
// any trigger already pending for id. A dueAt in the past fires immediately.
func (s *Scheduler) Schedule(id int64, theme, message string, dueAt int64) error {
	if !s.CanSchedule() {
		return apperr.PermissionRequired()
	}

	at := time.UnixMilli(dueAt).In(s.loc)
	ev := Event{ID: id, Theme: theme, Message: message}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[id]; ok {
		s.cron.Remove(prev.entry)
	}

	var entryID cron.EntryID
	job := cron.FuncJob(func() { s.fire(&entryID, ev) })
	entryID = s.cron.Schedule(&once{at: at}, job)
	s.entries[id] = pending{entry: entryID, at: at}

	s.logger.WithFields(logrus.Fields{"reminder_id": id, "due_at": at.Format(time.RFC3339)}).Debug("scheduler: trigger armed")
	return nil
}

// Cancel removes the pending trigger for id. It is a no-op when none is pending.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[id]
	if !ok {
		return
	}
	s.cron.Remove(prev.entry)
	delete(s.entries, id)
	s.logger.WithField("reminder_id", id).Debug("scheduler: trigger cancelled")
}

// Pending returns the instant the trigger for id will fire.
func (s *Scheduler) Pending(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[id]
	return p.at, ok
}

// PendingCount returns the number of armed triggers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fire reads entryID under mu; Schedule assigns it while holding mu.
func (s *Scheduler) fire(entryID *cron.EntryID, ev Event) {
	s.mu.Lock()
	current, ok := s.entries[ev.ID]
	if ok && current.entry != *entryID {
		ok = false
	}
	if !ok {
		// Replaced or cancelled after cron picked the entry up.
		s.mu.Unlock()
		return
	}
	delete(s.entries, ev.ID)
	s.cron.Remove(current.entry)
	s.mu.Unlock()

	s.logger.WithField("reminder_id", ev.ID).Info("scheduler: trigger fired")
	if s.handler != nil {
		s.handler(context.Background(), ev)
	}
}

// once is a cron.Schedule that yields a single activation. cron calls Next from
// its run goroutine only.
type once struct {
	at   time.Time
	used bool
}

func (o *once) Next(now time.Time) time.Time {
	if o.used {
		return time.Time{}
	}
	o.used = true
	if o.at.Before(now) {
		return now
	}
	return o.at
}
