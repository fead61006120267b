package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pathakanu/remindme/internal/apperr"
	"github.com/pathakanu/remindme/internal/model"
	"github.com/pathakanu/remindme/internal/notifier"
	myopenai "github.com/pathakanu/remindme/internal/openai"
	"github.com/pathakanu/remindme/internal/pubsub"
	"github.com/pathakanu/remindme/internal/reminder"
	"github.com/pathakanu/remindme/internal/timefmt"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Gate is the runtime-toggled exact-alarm capability.
type Gate interface {
	CanScheduleExact() bool
	Grant()
	Revoke()
}

// Server exposes the reminder service over HTTP.
type Server struct {
	reminders *reminder.Service
	tray      *notifier.Tray
	gate      Gate
	hub       *pubsub.Hub
	parser    *myopenai.Client
	loc       *time.Location
	logger    logrus.FieldLogger
	now       func() time.Time
}

// Deps groups what the Server needs.
type Deps struct {
	Reminders *reminder.Service
	Tray      *notifier.Tray
	Gate      Gate
	Hub       *pubsub.Hub
	Parser    *myopenai.Client
	Location  *time.Location
	Logger    logrus.FieldLogger
}

// NewServer creates a Server.
func NewServer(d Deps) *Server {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		reminders: d.Reminders,
		tray:      d.Tray,
		gate:      d.Gate,
		hub:       d.Hub,
		parser:    d.Parser,
		loc:       loc,
		logger:    d.Logger,
		now:       time.Now,
	}
}

// Router builds the HTTP handler. webhook, when non-nil, is mounted at /twilio/webhook.
func (s *Server) Router(webhook http.Handler, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	reminders := router.PathPrefix("/reminders").Subrouter()
	reminders.HandleFunc("", s.createReminder).Methods(http.MethodPost)
	reminders.HandleFunc("", s.listReminders).Methods(http.MethodGet)
	reminders.HandleFunc("/{id:[0-9]+}", s.getReminder).Methods(http.MethodGet)
	reminders.HandleFunc("/{id:[0-9]+}", s.deleteReminder).Methods(http.MethodDelete)

	alerts := router.PathPrefix("/alerts").Subrouter()
	alerts.HandleFunc("", s.listAlerts).Methods(http.MethodGet)
	alerts.HandleFunc("/{id:[0-9]+}/open", s.openAlert).Methods(http.MethodPost)
	alerts.HandleFunc("/{id:[0-9]+}", s.dismissAlert).Methods(http.MethodDelete)

	router.HandleFunc("/settings/exact-alarms", s.getExactAlarms).Methods(http.MethodGet)
	router.HandleFunc("/settings/exact-alarms", s.putExactAlarms).Methods(http.MethodPut)

	if s.hub != nil {
		router.HandleFunc("/ws", s.streamAlerts).Methods(http.MethodGet)
	}
	if webhook != nil {
		router.Handle("/twilio/webhook", webhook).Methods(http.MethodPost)
	}

	router.Use(LoggingMiddleware(s.logger))

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
	})
	return c.Handler(router)
}

type createReminderRequest struct {
	Theme   string `json:"theme"`
	Message string `json:"message"`
	// DueAt is epoch milliseconds; When is free text and used only if DueAt is absent.
	DueAt *int64 `json:"dueAt,omitempty"`
	When  string `json:"when,omitempty"`
}

type reminderResponse struct {
	model.Reminder
	DueLabel string `json:"dueLabel"`
}

type exactAlarmsBody struct {
	Granted bool `json:"granted"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /reminders
func (s *Server) createReminder(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.BadRequest("Invalid JSON body"))
		return
	}

	var due time.Time
	switch {
	case req.DueAt != nil:
		due = time.UnixMilli(*req.DueAt)
	case req.When != "":
		parsed, err := s.parser.ParseWhen(r.Context(), req.When, s.now(), s.loc)
		if err != nil {
			if errors.Is(err, myopenai.ErrUnparseableTime) {
				s.writeError(w, apperr.Validation("Could not understand the date/time"))
			} else {
				s.writeError(w, err)
			}
			return
		}
		due = parsed
	}

	id, err := s.reminders.Create(r.Context(), req.Theme, req.Message, due)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/reminders/"+strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// GET /reminders
func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.reminders.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]reminderResponse, 0, len(reminders))
	for _, rem := range reminders {
		out = append(out, s.view(rem))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /reminders/{id}
func (s *Server) getReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	rem, err := s.reminders.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rem == nil {
		s.writeError(w, apperr.ErrReminderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.view(*rem))
}

// DELETE /reminders/{id}
func (s *Server) deleteReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.reminders.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.tray.Dismiss(id)
	w.WriteHeader(http.StatusNoContent)
}

// GET /alerts
func (s *Server) listAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tray.Active())
}

// POST /alerts/{id}/open
func (s *Server) openAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.tray.Open(id)

	rem, err := s.reminders.Open(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rem == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, s.view(*rem))
}

// DELETE /alerts/{id}
func (s *Server) dismissAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.tray.Dismiss(id)
	w.WriteHeader(http.StatusNoContent)
}

// GET /settings/exact-alarms
func (s *Server) getExactAlarms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, exactAlarmsBody{Granted: s.gate.CanScheduleExact()})
}

// PUT /settings/exact-alarms
func (s *Server) putExactAlarms(w http.ResponseWriter, r *http.Request) {
	var body exactAlarmsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperr.BadRequest("Invalid JSON body"))
		return
	}
	if body.Granted {
		s.gate.Grant()
	} else {
		s.gate.Revoke()
	}
	s.logger.WithField("granted", body.Granted).Info("api: exact alarm capability changed")
	writeJSON(w, http.StatusOK, exactAlarmsBody{Granted: s.gate.CanScheduleExact()})
}

func (s *Server) view(r model.Reminder) reminderResponse {
	return reminderResponse{Reminder: r, DueLabel: timefmt.Format(r.DueAt, s.loc)}
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, apperr.BadRequest("Invalid reminder ID"))
		return 0, false
	}
	return id, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	appErr := apperr.Get(err)
	if appErr == nil {
		s.logger.WithError(err).Error("api: unexpected error")
		appErr = apperr.ErrInternal
	} else if appErr.StatusCode >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("api: request failed")
	}
	writeJSON(w, appErr.StatusCode, appErr)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
