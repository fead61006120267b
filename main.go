package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathakanu/remindme/internal/api"
	"github.com/pathakanu/remindme/internal/bot"
	"github.com/pathakanu/remindme/internal/config"
	"github.com/pathakanu/remindme/internal/database"
	"github.com/pathakanu/remindme/internal/logger"
	"github.com/pathakanu/remindme/internal/notifier"
	myopenai "github.com/pathakanu/remindme/internal/openai"
	"github.com/pathakanu/remindme/internal/pubsub"
	"github.com/pathakanu/remindme/internal/reminder"
	"github.com/pathakanu/remindme/internal/scheduler"
	"github.com/pathakanu/remindme/internal/store"
	"github.com/pathakanu/remindme/internal/tui"
	"github.com/pathakanu/remindme/internal/twilio"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"gorm.io/gorm"
)

func main() {
	cmd := &cli.Command{
		Name:   "remindme",
		Usage:  "schedule reminders and get alerted when they are due",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and WhatsApp webhook",
				Action: serve,
			},
			{
				Name:  "tui",
				Usage: "manage reminders in the terminal",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "open",
						Usage: "open the detail view of reminder `ID` on start",
					},
					&cli.StringFlag{
						Name:  "log-file",
						Value: "remindme.log",
						Usage: "where to write logs while the UI owns the terminal",
					},
				},
				Action: runTUI,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "remindme:", err)
		os.Exit(1)
	}
}

// app holds the wired core shared by both front ends.
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	db        *gorm.DB
	hub       *pubsub.Hub
	tray      *notifier.Tray
	gate      *scheduler.ExactAlarmGate
	scheduler *scheduler.Scheduler
	reminders *reminder.Service
	openAI    *myopenai.Client
}

func bootstrap(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	db, err := database.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	st := store.New(db)
	hub := pubsub.NewHub(16)
	tray := notifier.NewTray()

	senders := []notifier.Sender{hub}
	if cfg.TwilioEnabled() && cfg.NotifyWhatsAppTo != "" {
		log.WithField("to", cfg.NotifyWhatsAppTo).Info("alerts: WhatsApp delivery enabled")
		senders = append(senders, twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, cfg.NotifyWhatsAppTo, log))
	}
	n := notifier.New(st, tray, log, senders...)

	gate := scheduler.NewExactAlarmGate(cfg.ExactAlarmsGranted)
	sched := scheduler.New(gate, n.Handle,
		scheduler.WithLocation(cfg.LocalTimezone),
		scheduler.WithLogger(log),
	)
	sched.Start()

	reminders := reminder.NewService(st, sched, log)
	if cfg.ExactAlarmsGranted {
		if _, err := reminders.Restore(ctx, time.Now()); err != nil {
			log.WithError(err).Warn("restore pending reminders")
		}
	} else {
		log.Warn("exact alarms not granted: pending reminders were not re-armed")
	}

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		hub:       hub,
		tray:      tray,
		gate:      gate,
		scheduler: sched,
		reminders: reminders,
		openAI:    myopenai.New(cfg.OpenAIAPIKey),
	}, nil
}

func (a *app) close() {
	a.scheduler.Stop()
	if err := database.Close(a.db); err != nil {
		a.log.WithError(err).Warn("database close")
	}
}

func serve(ctx context.Context, _ *cli.Command) error {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	a, err := bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}

	reminderBot := bot.New(a.reminders, a.openAI, a.gate, cfg.LocalTimezone, log)
	srv := api.NewServer(api.Deps{
		Reminders: a.reminders,
		Tray:      a.tray,
		Gate:      a.gate,
		Hub:       a.hub,
		Parser:    a.openAI,
		Location:  cfg.LocalTimezone,
		Logger:    log,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(reminderBot.Handler(), cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(server, a, cfg.ShutdownTimeout)
	return nil
}

func waitForShutdown(server *http.Server, a *app, timeout time.Duration) {
	stopCtx := make(chan os.Signal, 1)
	signal.Notify(stopCtx, syscall.SIGINT, syscall.SIGTERM)
	<-stopCtx
	a.log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		a.log.WithError(err).Warn("server shutdown error")
	}
	a.close()
}

func runTUI(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// The UI owns stdout.
	logFile, err := os.OpenFile(cmd.String("log-file"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	a, err := bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	id, alerts := a.hub.Subscribe()
	defer a.hub.Unsubscribe(id)

	return tui.Run(tui.Deps{
		Reminders: a.reminders,
		Parser:    a.openAI,
		Gate:      a.gate,
		Tray:      a.tray,
		Alerts:    alerts,
		Location:  cfg.LocalTimezone,
		Logger:    log,
		OpenID:    cmd.Int64("open"),
	})
}
