package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pathakanu/remindme/internal/apperr"
	"github.com/pathakanu/remindme/internal/model"
	"github.com/pathakanu/remindme/internal/notifier"
	myopenai "github.com/pathakanu/remindme/internal/openai"
	"github.com/pathakanu/remindme/internal/reminder"
	"github.com/pathakanu/remindme/internal/timefmt"
	"github.com/sirupsen/logrus"
)

// Gate is the exact-alarm capability as the UI sees it.
type Gate interface {
	CanScheduleExact() bool
	Grant()
}

// Deps groups what the terminal UI needs.
type Deps struct {
	Reminders *reminder.Service
	Parser    *myopenai.Client
	Gate      Gate
	Tray      *notifier.Tray
	Alerts    <-chan notifier.Alert
	Location  *time.Location
	Logger    logrus.FieldLogger
	// OpenID is a deep link consumed once at startup. Zero means none.
	OpenID int64
}

type mode int

const (
	modeList mode = iota
	modeDetail
	modeConfirmDelete
	modeCreate
	modePermission
)

const (
	fieldTheme = iota
	fieldMessage
	fieldWhen
)

// Messages
type (
	remindersMsg struct{ items []model.Reminder }
	openedMsg    struct{ reminder *model.Reminder }
	createdMsg   struct{ id int64 }
	deletedMsg   struct{ id int64 }
	errMsg       struct{ err error }
	alertMsg     struct{ alert notifier.Alert }
	statusMsg    struct {
		message string
		color   string
	}
)

// Model is the bubbletea model for the reminder list and its dialogs.
type Model struct {
	deps Deps
	loc  *time.Location
	now  func() time.Time

	mode      mode
	table     table.Model
	reminders []model.Reminder
	detail    *model.Reminder
	inputs    []textinput.Model
	focus     int
	banner    *notifier.Alert

	statusMsg    string
	statusColor  string
	statusExpiry time.Time
	width        int
	height       int
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			PaddingLeft(1).
			PaddingRight(1)

	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	bulletStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

const (
	colorOK    = "82"
	colorError = "196"
	colorInfo  = "86"
)

// New builds the UI model.
func New(d Deps) Model {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	m := Model{
		deps:        d,
		loc:         loc,
		now:         time.Now,
		statusColor: colorInfo,
	}
	m.setupTable()
	return m
}

func (m *Model) setupTable() {
	m.table = table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 6},
			{Title: "Theme", Width: 24},
			{Title: "Message", Width: 36},
			{Title: "Due", Width: 16},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("86"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	m.table.SetStyles(s)
}

func (m *Model) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.reminders))
	for _, r := range m.reminders {
		rows = append(rows, table.Row{
			fmt.Sprintf("#%d", r.ID),
			r.Theme,
			r.Message,
			timefmt.Format(r.DueAt, m.loc),
		})
	}
	return rows
}

func showStatus(msg, color string) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{message: msg, color: color}
	}
}

// Init loads the list, starts listening for alerts and follows the startup deep link.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadReminders(), m.waitForAlert()}
	if m.deps.OpenID > 0 {
		cmds = append(cmds, m.openReminder(m.deps.OpenID))
	}
	return tea.Batch(cmds...)
}

func (m Model) loadReminders() tea.Cmd {
	return func() tea.Msg {
		items, err := m.deps.Reminders.List(context.Background())
		if err != nil {
			return errMsg{err}
		}
		return remindersMsg{items}
	}
}

func (m Model) openReminder(id int64) tea.Cmd {
	return func() tea.Msg {
		r, err := m.deps.Reminders.Open(context.Background(), id)
		if err != nil {
			return errMsg{err}
		}
		return openedMsg{r}
	}
}

func (m Model) deleteReminder(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := m.deps.Reminders.Delete(context.Background(), id); err != nil {
			return errMsg{err}
		}
		return deletedMsg{id}
	}
}

func (m Model) createReminder(theme, message, when string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var due time.Time
		if strings.TrimSpace(when) != "" {
			parsed, err := m.deps.Parser.ParseWhen(ctx, when, m.now(), m.loc)
			if err != nil {
				if errors.Is(err, myopenai.ErrUnparseableTime) {
					return errMsg{apperr.Validation("Could not understand the date/time")}
				}
				return errMsg{err}
			}
			due = parsed
		}
		id, err := m.deps.Reminders.Create(ctx, theme, message, due)
		if err != nil {
			return errMsg{err}
		}
		return createdMsg{id}
	}
}

func (m Model) waitForAlert() tea.Cmd {
	if m.deps.Alerts == nil {
		return nil
	}
	alerts := m.deps.Alerts
	return func() tea.Msg {
		alert, ok := <-alerts
		if !ok {
			return nil
		}
		return alertMsg{alert}
	}
}

// Update handles messages and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.statusMsg = msg.message
		m.statusColor = msg.color
		m.statusExpiry = m.now().Add(3 * time.Second)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height - 10; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case remindersMsg:
		m.reminders = msg.items
		m.table.SetRows(m.rows())
		return m, nil

	case openedMsg:
		// An id that no longer exists is ignored.
		if msg.reminder == nil {
			return m, nil
		}
		m.detail = msg.reminder
		m.mode = modeDetail
		return m, nil

	case createdMsg:
		m.mode = modeList
		m.inputs = nil
		return m, tea.Batch(m.loadReminders(), showStatus(fmt.Sprintf("Reminder #%d saved", msg.id), colorOK))

	case deletedMsg:
		m.mode = modeList
		m.detail = nil
		if m.deps.Tray != nil {
			m.deps.Tray.Dismiss(msg.id)
		}
		if m.banner != nil && m.banner.Key == msg.id {
			m.banner = nil
		}
		return m, tea.Batch(m.loadReminders(), showStatus(fmt.Sprintf("Deleted reminder #%d", msg.id), colorOK))

	case alertMsg:
		alert := msg.alert
		m.banner = &alert
		return m, m.waitForAlert()

	case errMsg:
		return m.handleError(msg.err)

	case tea.KeyMsg:
		switch m.mode {
		case modeCreate:
			return m.handleCreateKeys(msg)
		case modePermission:
			return m.handlePermissionKeys(msg)
		case modeConfirmDelete:
			return m.handleConfirmKeys(msg)
		case modeDetail:
			return m.handleDetailKeys(msg)
		default:
			return m.handleListKeys(msg)
		}
	}

	return m, nil
}

func (m Model) handleError(err error) (tea.Model, tea.Cmd) {
	appErr := apperr.Get(err)
	switch {
	case appErr != nil && appErr.Code == apperr.CodePermissionRequired:
		m.mode = modePermission
		return m, nil
	case appErr != nil && appErr.Code == apperr.CodeValidationError:
		return m, showStatus(appErr.Message, colorError)
	default:
		m.deps.Logger.WithError(err).Error("tui: operation failed")
		return m, showStatus("Something went wrong, see the log", colorError)
	}
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k", "down", "j":
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case "enter":
		if r, ok := m.selected(); ok {
			return m, m.openReminder(r.ID)
		}
	case "n", "a":
		m.startCreate()
	case "d", "delete":
		if r, ok := m.selected(); ok {
			rem := r
			m.detail = &rem
			m.mode = modeConfirmDelete
		}
	case "o":
		if m.banner != nil {
			id := m.banner.Key
			m.banner = nil
			if m.deps.Tray != nil {
				m.deps.Tray.Open(id)
			}
			return m, m.openReminder(id)
		}
	case "x":
		if m.banner != nil {
			if m.deps.Tray != nil {
				m.deps.Tray.Dismiss(m.banner.Key)
			}
			m.banner = nil
		}
	case "r":
		return m, m.loadReminders()
	}
	return m, nil
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q", "enter":
		m.mode = modeList
		m.detail = nil
	case "d", "delete":
		m.mode = modeConfirmDelete
	}
	return m, nil
}

func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "y", "enter":
		if m.detail == nil {
			m.mode = modeList
			return m, nil
		}
		return m, m.deleteReminder(m.detail.ID)
	case "n", "esc":
		m.mode = modeList
		m.detail = nil
		return m, showStatus("Delete cancelled", colorInfo)
	}
	return m, nil
}

func (m Model) handlePermissionKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "g", "y":
		if m.deps.Gate != nil {
			m.deps.Gate.Grant()
		}
		m.mode = modeCreate
		return m, tea.Batch(showStatus("Exact alarms allowed", colorOK), m.submit())
	case "esc", "n":
		m.mode = modeCreate
		return m, showStatus("Permission not granted", colorError)
	}
	return m, nil
}

func (m Model) handleCreateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = modeList
		m.inputs = nil
		return m, showStatus("Create cancelled", colorInfo)
	case "enter":
		return m, m.submit()
	case "tab", "down":
		m.setFocus((m.focus + 1) % len(m.inputs))
	case "shift+tab", "up":
		m.setFocus((m.focus - 1 + len(m.inputs)) % len(m.inputs))
	default:
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) startCreate() {
	m.mode = modeCreate
	m.inputs = make([]textinput.Model, 3)
	for i := range m.inputs {
		m.inputs[i] = textinput.New()
		m.inputs[i].CharLimit = 256
	}
	m.inputs[fieldTheme].Placeholder = "Meeting"
	m.inputs[fieldMessage].Placeholder = "Stand-up with the team"
	m.inputs[fieldWhen].Placeholder = "25/12/2026 09:30 or 18:30"
	m.setFocus(fieldTheme)
}

func (m *Model) setFocus(i int) {
	m.focus = i
	for j := range m.inputs {
		m.inputs[j].Blur()
	}
	m.inputs[i].Focus()
}

func (m Model) submit() tea.Cmd {
	if len(m.inputs) != 3 {
		return nil
	}
	return m.createReminder(
		m.inputs[fieldTheme].Value(),
		m.inputs[fieldMessage].Value(),
		m.inputs[fieldWhen].Value(),
	)
}

func (m Model) selected() (model.Reminder, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.reminders) {
		return model.Reminder{}, false
	}
	return m.reminders[i], true
}

// View renders the current screen.
func (m Model) View() string {
	header := headerStyle.Render("remindme")

	var content string
	switch m.mode {
	case modeCreate:
		content = m.createView()
	case modePermission:
		content = dialogStyle.Render(warnStyle.Render("Permission required") + "\n\n" + apperr.PermissionDirective)
	case modeDetail:
		content = m.detailView()
	case modeConfirmDelete:
		content = dialogStyle.Render(fmt.Sprintf("Delete reminder \"%s\"?", m.detail.Theme))
	default:
		if len(m.reminders) == 0 {
			content = lipgloss.NewStyle().Padding(1).Render("No reminders yet. Press n to add one.")
		} else {
			content = m.table.View()
		}
	}

	parts := []string{header}
	if m.banner != nil {
		parts = append(parts, bannerStyle.Render(fmt.Sprintf("%s: %s", m.banner.Title, m.banner.Body)))
	}
	parts = append(parts, "", content, "", m.footer())
	return lipgloss.JoinVertical(lipgloss.Top, parts...)
}

func (m Model) detailView() string {
	if m.detail == nil {
		return ""
	}
	body := labelStyle.Render(m.detail.Theme) + "\n\n" +
		m.detail.Message + "\n\n" +
		labelStyle.Render("Date: ") + timefmt.Format(m.detail.DueAt, m.loc)
	return dialogStyle.Render(body)
}

func (m Model) createView() string {
	labels := []string{"Theme:", "Message:", "When:"}
	fields := make([]string, 0, len(m.inputs))
	for i, input := range m.inputs {
		fields = append(fields, labelStyle.Render(labels[i])+"\n"+input.View())
	}
	return lipgloss.JoinVertical(lipgloss.Top, fields...)
}

func (m Model) footer() string {
	var commands []string
	add := func(key, action string) {
		commands = append(commands, keyStyle.Render(key)+": "+actionStyle.Render(action))
	}

	switch m.mode {
	case modeCreate:
		add("tab", "next field")
		add("enter", "save")
		add("esc", "cancel")
	case modePermission:
		add("g", "grant")
		add("esc", "back")
	case modeDetail:
		add("d", "delete")
		add("esc", "back")
	case modeConfirmDelete:
		add("y", "delete")
		add("n", "keep")
	default:
		add("↑↓", "navigate")
		add("enter", "open")
		add("n", "add")
		add("d", "delete")
		if m.banner != nil {
			add("o", "open alert")
			add("x", "dismiss")
		}
		add("q", "quit")
	}

	row := strings.Join(commands, bulletStyle.Render(" • "))
	if m.statusMsg != "" && m.now().Before(m.statusExpiry) {
		row += "\n> " + lipgloss.NewStyle().Foreground(lipgloss.Color(m.statusColor)).Render(m.statusMsg)
	}
	return row
}

// Run starts the program on the terminal's alternate screen.
func Run(d Deps) error {
	p := tea.NewProgram(New(d), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
