package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pathakanu/remindme/internal/database"
	"github.com/pathakanu/remindme/internal/logger"
	"github.com/pathakanu/remindme/internal/notifier"
	myopenai "github.com/pathakanu/remindme/internal/openai"
	"github.com/pathakanu/remindme/internal/reminder"
	"github.com/pathakanu/remindme/internal/scheduler"
	"github.com/pathakanu/remindme/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

var fixedNow = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Store
	sched *scheduler.Scheduler
	gate  *scheduler.ExactAlarmGate
	tray  *notifier.Tray
	deps  Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())
	db, err := database.Open(sqlite.Open(dsn), logger.Discard())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, database.SchemaVersion, logger.Discard()))
	t.Cleanup(func() { _ = database.Close(db) })

	st := store.New(db)
	gate := scheduler.NewExactAlarmGate(true)
	sched := scheduler.New(gate, nil, scheduler.WithLocation(time.UTC))
	tray := notifier.NewTray()

	return &fixture{
		store: st,
		sched: sched,
		gate:  gate,
		tray:  tray,
		deps: Deps{
			Reminders: reminder.NewService(st, sched, logger.Discard()),
			Parser:    myopenai.New(""),
			Gate:      gate,
			Tray:      tray,
			Location:  time.UTC,
			Logger:    logger.Discard(),
		},
	}
}

func (f *fixture) model() Model {
	m := New(f.deps)
	m.now = func() time.Time { return fixedNow }
	return m
}

func (f *fixture) insert(t *testing.T, theme, message string, due time.Time) int64 {
	t.Helper()
	id, err := f.store.Insert(context.Background(), theme, message, due.UnixMilli())
	require.NoError(t, err)
	return id
}

// collect runs cmd and flattens batches into their messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// settle feeds cmd's messages back through Update until nothing is left.
func settle(m Model, cmd tea.Cmd) Model {
	queue := collect(cmd)
	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]
		if msg == nil {
			continue
		}
		if _, ok := msg.(tea.QuitMsg); ok {
			continue
		}
		next, c := m.Update(msg)
		m = next.(Model)
		queue = append(queue, collect(c)...)
	}
	return m
}

func press(m Model, key string) Model {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return settle(next.(Model), cmd)
}

func fill(m Model, theme, message, when string) Model {
	m.inputs[fieldTheme].SetValue(theme)
	m.inputs[fieldMessage].SetValue(message)
	m.inputs[fieldWhen].SetValue(when)
	return m
}

func TestInitLoadsListAndFollowsDeepLink(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "Milk", "Buy milk", time.Date(2026, 10, 20, 18, 0, 0, 0, time.UTC))
	rent := f.insert(t, "Rent", "Pay rent", time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC))
	f.deps.OpenID = rent

	m := f.model()
	m = settle(m, m.Init())

	require.Len(t, m.reminders, 2)
	assert.Equal(t, "Rent", m.reminders[0].Theme)
	assert.Equal(t, modeDetail, m.mode)
	require.NotNil(t, m.detail)
	assert.Equal(t, rent, m.detail.ID)
	assert.Contains(t, m.View(), "01/11/2026 09:00")

	m = press(m, "esc")
	assert.Equal(t, modeList, m.mode)
}

func TestDeepLinkToMissingReminderIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.deps.OpenID = 42

	m := f.model()
	m = settle(m, m.Init())
	assert.Equal(t, modeList, m.mode)
	assert.Nil(t, m.detail)
	assert.Contains(t, m.View(), "No reminders yet")
}

func TestEnterOpensSelectedReminder(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "Rent", "Pay rent", time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC))
	f.insert(t, "Milk", "Buy milk", time.Date(2026, 10, 20, 18, 0, 0, 0, time.UTC))

	m := f.model()
	m = settle(m, m.Init())
	m = press(m, "down")
	m = press(m, "enter")

	require.Equal(t, modeDetail, m.mode)
	assert.Equal(t, "Milk", m.detail.Theme)
}

func TestCreateReminder(t *testing.T) {
	f := newFixture(t)
	m := f.model()
	m = settle(m, m.Init())

	m = press(m, "n")
	require.Equal(t, modeCreate, m.mode)
	m = fill(m, "Meeting", "Stand-up", "18:30")
	m = press(m, "enter")

	assert.Equal(t, modeList, m.mode)
	require.Len(t, m.reminders, 1)
	assert.Equal(t, "Meeting", m.reminders[0].Theme)
	assert.Equal(t, time.Date(2026, 10, 14, 18, 30, 0, 0, time.UTC).UnixMilli(), m.reminders[0].DueAt)
	assert.Equal(t, "Reminder #1 saved", m.statusMsg)

	_, pending := f.sched.Pending(m.reminders[0].ID)
	assert.True(t, pending)
}

func TestCreateValidationKeepsForm(t *testing.T) {
	f := newFixture(t)
	m := f.model()

	m = press(m, "n")
	m = fill(m, "Meeting", "", "18:30")
	m = press(m, "enter")
	assert.Equal(t, modeCreate, m.mode)
	assert.Equal(t, "Please fill in all fields", m.statusMsg)

	m = fill(m, "Meeting", "Stand-up", "someday")
	m = press(m, "enter")
	assert.Equal(t, modeCreate, m.mode)
	assert.Equal(t, "Could not understand the date/time", m.statusMsg)

	m = press(m, "esc")
	assert.Equal(t, modeList, m.mode)

	all, err := f.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPermissionPromptGrantsAndRetries(t *testing.T) {
	f := newFixture(t)
	f.gate.Revoke()
	m := f.model()

	m = press(m, "n")
	m = fill(m, "Meeting", "Stand-up", "18:30")
	m = press(m, "enter")
	require.Equal(t, modePermission, m.mode)
	assert.Contains(t, m.View(), "permission to schedule exact alarms")

	all, err := f.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	m = press(m, "g")
	assert.True(t, f.gate.CanScheduleExact())
	assert.Equal(t, modeList, m.mode)
	require.Len(t, m.reminders, 1)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	id := f.insert(t, "Rent", "Pay rent", time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, f.sched.Schedule(id, "Rent", "Pay rent", time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC).UnixMilli()))

	m := f.model()
	m = settle(m, m.Init())

	m = press(m, "d")
	require.Equal(t, modeConfirmDelete, m.mode)
	m = press(m, "n")
	assert.Equal(t, modeList, m.mode)
	assert.Len(t, m.reminders, 1)

	m = press(m, "d")
	m = press(m, "y")
	assert.Equal(t, modeList, m.mode)
	assert.Empty(t, m.reminders)
	assert.Equal(t, "Deleted reminder #1", m.statusMsg)

	got, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got)
	_, pending := f.sched.Pending(id)
	assert.False(t, pending)
}

func TestAlertBannerOpensReminder(t *testing.T) {
	f := newFixture(t)
	id := f.insert(t, "Rent", "Pay rent", time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC))
	alert := notifier.Alert{Key: id, Title: "Rent", Body: "Pay rent", TapTarget: notifier.TapTarget(id)}
	f.tray.Post(alert)

	alerts := make(chan notifier.Alert, 1)
	alerts <- alert
	close(alerts)
	f.deps.Alerts = alerts

	m := f.model()
	m = settle(m, m.Init())
	require.NotNil(t, m.banner)
	assert.Contains(t, m.View(), "Rent: Pay rent")

	m = press(m, "o")
	assert.Nil(t, m.banner)
	assert.Equal(t, modeDetail, m.mode)
	assert.Equal(t, id, m.detail.ID)
	_, posted := f.tray.Get(id)
	assert.False(t, posted)
}

func TestDismissBanner(t *testing.T) {
	f := newFixture(t)
	alert := notifier.Alert{Key: 3, Title: "Gone", Body: "Already deleted"}
	f.tray.Post(alert)

	m := f.model()
	next, _ := m.Update(alertMsg{alert})
	m = next.(Model)
	require.NotNil(t, m.banner)

	m = press(m, "x")
	assert.Nil(t, m.banner)
	assert.Empty(t, f.tray.Active())
}
