package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pathakanu/remindme/internal/model"
	"github.com/pathakanu/remindme/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// Importance mirrors a delivery category's priority level.
type Importance int

const (
	ImportanceDefault Importance = iota
	ImportanceHigh
)

// Channel is a named delivery category.
type Channel struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Importance  Importance `json:"importance"`
}

// ReminderChannel is the only category alerts are posted on.
var ReminderChannel = Channel{
	ID:          "REMINDER_CHANNEL",
	Name:        "Reminder Channel",
	Description: "Channel for Reminders",
	Importance:  ImportanceHigh,
}

const tapPrefix = "open reminder "

// Alert is what the user sees when a trigger fires.
type Alert struct {
	Key       int64     `json:"key"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	TapTarget string    `json:"tapTarget"`
	Channel   string    `json:"channel"`
	PostedAt  time.Time `json:"postedAt"`
}

// TapTarget builds the deep link that opens the reminder's detail view.
func TapTarget(id int64) string {
	return tapPrefix + strconv.FormatInt(id, 10)
}

// ParseTapTarget extracts the reminder id from a deep link.
func ParseTapTarget(target string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(target), tapPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Resolver looks up reminders. *store.Store satisfies it.
type Resolver interface {
	GetByID(ctx context.Context, id int64) (*model.Reminder, error)
}

// Sender delivers an alert somewhere outside the process tray.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
}

// ChannelRegistrar is implemented by sinks that need the channel before their first alert.
type ChannelRegistrar interface {
	RegisterChannel(ch Channel)
}

// Notifier turns fired triggers into alerts.
type Notifier struct {
	resolver Resolver
	tray     *Tray
	senders  []Sender
	logger   logrus.FieldLogger
	now      func() time.Time

	channelOnce sync.Once
}

// New creates a Notifier. resolver may be nil to render without checking the store.
func New(resolver Resolver, tray *Tray, log logrus.FieldLogger, senders ...Sender) *Notifier {
	if tray == nil {
		tray = NewTray()
	}
	return &Notifier{
		resolver: resolver,
		tray:     tray,
		senders:  senders,
		logger:   log,
		now:      time.Now,
	}
}

// Tray returns the tray alerts are posted to.
func (n *Notifier) Tray() *Tray {
	return n.tray
}

// Handle adapts Deliver to scheduler.Handler.
func (n *Notifier) Handle(ctx context.Context, ev scheduler.Event) {
	if err := n.Deliver(ctx, ev); err != nil {
		n.logger.WithError(err).WithField("reminder_id", ev.ID).Error("notifier: delivery failed")
	}
}

// Deliver renders the alert for a fired trigger. Events whose reminder no longer
// resolves are dropped without error.
func (n *Notifier) Deliver(ctx context.Context, ev scheduler.Event) error {
	log := n.logger.WithField("reminder_id", ev.ID)
	if ev.Theme == "" || ev.Message == "" {
		log.Warn("notifier: dropping event without theme or message")
		return nil
	}

	if n.resolver != nil {
		reminder, err := n.resolver.GetByID(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("resolve reminder %d: %w", ev.ID, err)
		}
		if reminder == nil {
			log.Info("notifier: reminder deleted before trigger fired, skipping alert")
			return nil
		}
	}

	n.ensureChannel()

	alert := Alert{
		Key:       ev.ID,
		Title:     ev.Theme,
		Body:      ev.Message,
		TapTarget: TapTarget(ev.ID),
		Channel:   ReminderChannel.ID,
		PostedAt:  n.now(),
	}
	n.tray.Post(alert)
	log.Infof("notifier: alert posted %q", alert.Title)

	var firstErr error
	for _, sender := range n.senders {
		if err := sender.Send(ctx, alert); err != nil {
			log.WithError(err).Warnf("notifier: sender %T failed", sender)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (n *Notifier) ensureChannel() {
	n.channelOnce.Do(func() {
		n.tray.RegisterChannel(ReminderChannel)
		for _, sender := range n.senders {
			if r, ok := sender.(ChannelRegistrar); ok {
				r.RegisterChannel(ReminderChannel)
			}
		}
	})
}
