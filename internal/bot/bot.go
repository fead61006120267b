package bot

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pathakanu/remindme/internal/apperr"
	"github.com/pathakanu/remindme/internal/model"
	myopenai "github.com/pathakanu/remindme/internal/openai"
	"github.com/pathakanu/remindme/internal/reminder"
	"github.com/pathakanu/remindme/internal/timefmt"
	"github.com/sirupsen/logrus"
)

// Granter grants the exact-alarm capability. *scheduler.ExactAlarmGate satisfies it.
type Granter interface {
	Grant()
}

// Bot is a WhatsApp front end for the reminder service, driven by Twilio webhooks.
type Bot struct {
	reminders *reminder.Service
	openAI    *myopenai.Client
	gate      Granter
	loc       *time.Location
	state     *conversationStore
	logger    logrus.FieldLogger
	now       func() time.Time
}

// New creates a fully configured Bot instance.
func New(reminders *reminder.Service, openAI *myopenai.Client, gate Granter, loc *time.Location, logger logrus.FieldLogger) *Bot {
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		reminders: reminders,
		openAI:    openAI,
		gate:      gate,
		loc:       loc,
		state:     newConversationStore(),
		logger:    logger,
		now:       time.Now,
	}
}

// Handler returns the HTTP handler for incoming Twilio messages.
func (b *Bot) Handler() http.HandlerFunc {
	return b.handleIncomingMessage
}

// handleIncomingMessage processes Twilio webhook POST requests.
func (b *Bot) handleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		b.logger.WithError(err).Warn("webhook: parse error")
		b.writeTwilioResponse(w, "Sorry, I couldn't understand that request.")
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" || body == "" {
		b.writeTwilioResponse(w, "I need a message to work with. Please try again.")
		return
	}

	userID := sanitizeWhatsAppNumber(from)
	ctx := r.Context()

	if b.state.IsAwaitingTime(userID) {
		if strings.EqualFold(body, "cancel") {
			b.state.PopPending(userID)
			b.writeTwilioResponse(w, "Okay, I dropped that reminder.")
			return
		}
		b.writeTwilioResponse(w, b.handleTimeResponse(ctx, userID, body))
		return
	}

	intent, id := b.determineIntent(ctx, body, strings.ToLower(body))

	switch intent {
	case myopenai.IntentListReminders:
		b.writeTwilioResponse(w, b.listReminders(ctx))
	case myopenai.IntentShowReminder:
		b.writeTwilioResponse(w, b.showReminder(ctx, id))
	case myopenai.IntentDeleteReminder:
		b.writeTwilioResponse(w, b.deleteReminder(ctx, id))
	case myopenai.IntentHelp:
		b.writeTwilioResponse(w, helpResponse())
	case intentGrant:
		if b.gate != nil {
			b.gate.Grant()
		}
		b.writeTwilioResponse(w, "Exact alarms allowed. Send your reminder again.")
	default:
		theme, message, ok := splitThemeMessage(body)
		if !ok {
			b.writeTwilioResponse(w, "Send a reminder as \"theme: message\", e.g. \"Meeting: Stand-up with the team\".")
			return
		}
		b.state.SetPending(userID, theme, message)
		b.writeTwilioResponse(w, b.askForTime())
	}
}

const intentGrant myopenai.Intent = "grant"

func (b *Bot) determineIntent(ctx context.Context, message, lowerMessage string) (myopenai.Intent, int64) {
	if lowerMessage == "grant" || lowerMessage == "allow exact alarms" {
		return intentGrant, 0
	}
	if lowerMessage == "help" {
		return myopenai.IntentHelp, 0
	}
	if isListRequest(lowerMessage) {
		return myopenai.IntentListReminders, 0
	}
	if id, ok := matchID(showRegex, message); ok {
		return myopenai.IntentShowReminder, id
	}
	if id, ok := matchID(deleteRegex, message); ok {
		return myopenai.IntentDeleteReminder, id
	}
	if strings.Contains(message, ":") || !b.openAI.Enabled() {
		return myopenai.IntentAddReminder, 0
	}

	intent, err := b.openAI.ClassifyIntent(ctx, message)
	if err != nil {
		if !errors.Is(err, myopenai.ErrClientNotInitialised) {
			b.logger.WithError(err).Warn("intent classification error")
		}
		return myopenai.IntentAddReminder, 0
	}

	switch intent {
	case myopenai.IntentShowReminder, myopenai.IntentDeleteReminder:
		return intent, extractID(message)
	case myopenai.IntentListReminders, myopenai.IntentHelp, myopenai.IntentAddReminder:
		return intent, 0
	default:
		return myopenai.IntentAddReminder, 0
	}
}

func (b *Bot) handleTimeResponse(ctx context.Context, userID, text string) string {
	due, err := b.openAI.ParseWhen(ctx, text, b.now(), b.loc)
	if err != nil {
		if !errors.Is(err, myopenai.ErrUnparseableTime) {
			b.logger.WithError(err).Warn("bot: parse time")
		}
		return "I couldn't read that time. Try \"25/12/2026 09:30\" or \"18:30\", or say cancel."
	}

	pending, ok := b.state.PopPending(userID)
	if !ok {
		return "I lost track of that reminder. Please send it again."
	}

	id, err := b.reminders.Create(ctx, pending.Theme, pending.Message, due)
	if err != nil {
		return b.describeError(err, "I couldn't save the reminder. Please try again.")
	}
	return fmt.Sprintf("Got it! Reminder #%d \"%s\" set for %s.", id, pending.Theme, timefmt.FormatTime(due, b.loc))
}

// askForTime prompts the user for the due date/time of the pending reminder.
func (b *Bot) askForTime() string {
	return "When should I remind you? Reply with a date and time like 25/12/2026 09:30, or just 18:30."
}

// listReminders returns a human-readable list of reminders.
func (b *Bot) listReminders(ctx context.Context) string {
	reminders, err := b.reminders.List(ctx)
	if err != nil {
		return b.describeError(err, "I couldn't load your reminders right now.")
	}
	if len(reminders) == 0 {
		return "You have no reminders yet. Send me one to get started!"
	}

	var sb strings.Builder
	sb.WriteString("Here are your reminders:\n")
	for _, r := range reminders {
		sb.WriteString(fmt.Sprintf("#%d %s - %s\n", r.ID, r.Theme, timefmt.Format(r.DueAt, b.loc)))
	}
	return sb.String()
}

func (b *Bot) showReminder(ctx context.Context, id int64) string {
	if id <= 0 {
		return "Tell me which reminder to show, e.g. 'show 3'."
	}
	r, err := b.reminders.Open(ctx, id)
	if err != nil {
		return b.describeError(err, "I couldn't load that reminder right now.")
	}
	if r == nil {
		return fmt.Sprintf("Reminder #%d no longer exists.", id)
	}
	return formatDetail(r, b.loc)
}

func (b *Bot) deleteReminder(ctx context.Context, id int64) string {
	if id <= 0 {
		return "Tell me which reminder to delete, e.g. 'delete 3'."
	}
	if err := b.reminders.Delete(ctx, id); err != nil {
		return b.describeError(err, "I couldn't delete that reminder. Please try again.")
	}
	return fmt.Sprintf("Deleted reminder #%d.", id)
}

func (b *Bot) describeError(err error, generic string) string {
	appErr := apperr.Get(err)
	switch {
	case appErr == nil:
		b.logger.WithError(err).Error("bot: unexpected error")
		return generic
	case appErr.Code == apperr.CodePermissionRequired:
		return appErr.Message + " Reply \"grant\" to allow it."
	case appErr.Code == apperr.CodeValidationError:
		return appErr.Message + "."
	default:
		b.logger.WithError(err).Error("bot: request failed")
		return generic
	}
}

func (b *Bot) writeTwilioResponse(w http.ResponseWriter, message string) {
	twiml := struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}{
		Message: message,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := xml.NewEncoder(w).Encode(twiml); err != nil {
		b.logger.WithError(err).Error("twilio response encode")
	}
}

func formatDetail(r *model.Reminder, loc *time.Location) string {
	return fmt.Sprintf("*%s*\nMessage: %s\nDate: %s", r.Theme, r.Message, timefmt.Format(r.DueAt, loc))
}

func isListRequest(body string) bool {
	return strings.Contains(body, "show my reminders") ||
		strings.Contains(body, "list my reminders") ||
		strings.Contains(body, "show reminders") ||
		strings.Contains(body, "list reminders") ||
		body == "list"
}

func sanitizeWhatsAppNumber(from string) string {
	// Twilio prepends whatsapp: to the number.
	return strings.TrimPrefix(from, "whatsapp:")
}

// splitThemeMessage splits "theme: message" on the first colon.
func splitThemeMessage(body string) (string, string, bool) {
	theme, message, found := strings.Cut(body, ":")
	theme, message = strings.TrimSpace(theme), strings.TrimSpace(message)
	if !found || theme == "" || message == "" {
		return "", "", false
	}
	return theme, message, true
}

func helpResponse() string {
	return "You can say things like:\n- \"Meeting: Stand-up\" to add a reminder, then tell me when\n- \"List reminders\" to see everything saved\n- \"Show 3\" to see reminder #3\n- \"Delete 3\" to remove it\n- \"Grant\" to allow exact alarms"
}

var (
	showRegex   = regexp.MustCompile(`(?i)^(?:show|open|view)\s+(?:reminder\s+)?#?(\d+)$`)
	deleteRegex = regexp.MustCompile(`(?i)^(?:delete|remove)\s+(?:reminder\s+)?#?(\d+)$`)
	idRegex     = regexp.MustCompile(`#?(\d+)`)
)

func matchID(re *regexp.Regexp, message string) (int64, bool) {
	matches := re.FindStringSubmatch(strings.TrimSpace(message))
	if len(matches) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func extractID(message string) int64 {
	id, _ := matchID(idRegex, message)
	return id
}

type conversationStore struct {
	mu    sync.RWMutex
	state map[string]pendingReminder
}

type pendingReminder struct {
	Theme   string
	Message string
}

func newConversationStore() *conversationStore {
	return &conversationStore{
		state: make(map[string]pendingReminder),
	}
}

func (c *conversationStore) SetPending(userID, theme, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[userID] = pendingReminder{Theme: theme, Message: message}
}

func (c *conversationStore) PopPending(userID string) (pendingReminder, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.state[userID]
	if !ok {
		return pendingReminder{}, false
	}
	delete(c.state, userID)
	return p, true
}

func (c *conversationStore) IsAwaitingTime(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.state[userID]
	return ok
}
