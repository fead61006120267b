package bot

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pathakanu/remindme/internal/database"
	"github.com/pathakanu/remindme/internal/logger"
	myopenai "github.com/pathakanu/remindme/internal/openai"
	"github.com/pathakanu/remindme/internal/reminder"
	"github.com/pathakanu/remindme/internal/scheduler"
	"github.com/pathakanu/remindme/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

type testBot struct {
	*Bot
	store *store.Store
	sched *scheduler.Scheduler
	gate  *scheduler.ExactAlarmGate
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := database.Open(sqlite.Open(dsn), logger.Discard())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, database.SchemaVersion, logger.Discard()))
	t.Cleanup(func() { _ = database.Close(db) })

	st := store.New(db)
	gate := scheduler.NewExactAlarmGate(true)
	// Not started: triggers stay pending for inspection.
	sched := scheduler.New(gate, nil, scheduler.WithLocation(time.UTC))
	svc := reminder.NewService(st, sched, logger.Discard())

	b := New(svc, myopenai.New(""), gate, time.UTC, logger.Discard())
	b.now = func() time.Time { return time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC) }
	return &testBot{Bot: b, store: st, sched: sched, gate: gate}
}

func (tb *testBot) send(t *testing.T, body string) string {
	t.Helper()

	form := url.Values{"From": {"whatsapp:+15550001"}, "Body": {body}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	tb.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

	var twiml struct {
		Message string `xml:"Message"`
	}
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &twiml))
	return twiml.Message
}

func TestCreateConversation(t *testing.T) {
	tb := newTestBot(t)

	reply := tb.send(t, "Meeting: Stand-up with the team")
	assert.Contains(t, reply, "When should I remind you?")

	reply = tb.send(t, "not a time")
	assert.Contains(t, reply, "couldn't read that time")

	reply = tb.send(t, "25/12/2026 09:30")
	assert.Equal(t, "Got it! Reminder #1 \"Meeting\" set for 25/12/2026 09:30.", reply)

	got, err := tb.store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Meeting", got.Theme)
	assert.Equal(t, "Stand-up with the team", got.Message)
	assert.Equal(t, time.Date(2026, time.December, 25, 9, 30, 0, 0, time.UTC).UnixMilli(), got.DueAt)

	_, pending := tb.sched.Pending(1)
	assert.True(t, pending)
}

func TestCancelConversation(t *testing.T) {
	tb := newTestBot(t)

	tb.send(t, "Meeting: Stand-up")
	assert.Equal(t, "Okay, I dropped that reminder.", tb.send(t, "cancel"))

	all, err := tb.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReminderWithoutColonAsksForFormat(t *testing.T) {
	tb := newTestBot(t)

	reply := tb.send(t, "buy milk")
	assert.Contains(t, reply, "theme: message")
	assert.False(t, tb.state.IsAwaitingTime("+15550001"))
}

func TestPermissionRequiredThenGrant(t *testing.T) {
	tb := newTestBot(t)
	tb.gate.Revoke()

	tb.send(t, "Meeting: Stand-up")
	reply := tb.send(t, "18:30")
	assert.Contains(t, reply, "permission to schedule exact alarms")
	assert.Contains(t, reply, "Reply \"grant\"")

	all, err := tb.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Contains(t, tb.send(t, "grant"), "Exact alarms allowed")
	tb.send(t, "Meeting: Stand-up")
	assert.Contains(t, tb.send(t, "18:30"), "set for 14/10/2026 18:30")
}

func TestListShowDelete(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	assert.Contains(t, tb.send(t, "list reminders"), "no reminders yet")

	_, err := tb.store.Insert(ctx, "Rent", "Pay rent", time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC).UnixMilli())
	require.NoError(t, err)
	_, err = tb.store.Insert(ctx, "Milk", "Buy milk", time.Date(2026, 10, 20, 18, 0, 0, 0, time.UTC).UnixMilli())
	require.NoError(t, err)

	list := tb.send(t, "Show my reminders")
	assert.Equal(t, "Here are your reminders:\n#1 Rent - 01/11/2026 09:00\n#2 Milk - 20/10/2026 18:00\n", list)

	assert.Equal(t, "*Milk*\nMessage: Buy milk\nDate: 20/10/2026 18:00", tb.send(t, "show 2"))
	assert.Equal(t, "*Milk*\nMessage: Buy milk\nDate: 20/10/2026 18:00", tb.send(t, "open reminder 2"))

	assert.Equal(t, "Deleted reminder #2.", tb.send(t, "delete #2"))
	assert.Equal(t, "Deleted reminder #2.", tb.send(t, "delete 2"))
	assert.Equal(t, "Reminder #2 no longer exists.", tb.send(t, "show 2"))
}

func TestMissingFields(t *testing.T) {
	tb := newTestBot(t)

	form := url.Values{"From": {"whatsapp:+1"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	tb.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "I need a message to work with")
}

func TestDetermineIntent(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	cases := map[string]struct {
		intent myopenai.Intent
		id     int64
	}{
		"list reminders":     {myopenai.IntentListReminders, 0},
		"show 4":             {myopenai.IntentShowReminder, 4},
		"view reminder #12":  {myopenai.IntentShowReminder, 12},
		"open reminder 9":    {myopenai.IntentShowReminder, 9},
		"remove 3":           {myopenai.IntentDeleteReminder, 3},
		"help":               {myopenai.IntentHelp, 0},
		"grant":              {intentGrant, 0},
		"Dentist: at 3":      {myopenai.IntentAddReminder, 0},
		"anything else here": {myopenai.IntentAddReminder, 0},
	}

	for input, want := range cases {
		intent, id := tb.determineIntent(ctx, input, strings.ToLower(input))
		assert.Equal(t, want.intent, intent, input)
		assert.Equal(t, want.id, id, input)
	}
}

func TestSplitThemeMessage(t *testing.T) {
	theme, message, ok := splitThemeMessage("  Meeting :  Stand-up: 10 min ")
	assert.True(t, ok)
	assert.Equal(t, "Meeting", theme)
	assert.Equal(t, "Stand-up: 10 min", message)

	for _, bad := range []string{"no colon", ": message", "theme:", "  :  "} {
		_, _, ok := splitThemeMessage(bad)
		assert.False(t, ok, bad)
	}
}
