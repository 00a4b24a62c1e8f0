package app

import (
	"context"
	"time"

	"chatcore/internal/repair"
	"chatcore/pkg/config"
	"chatcore/pkg/fanout"
	"chatcore/pkg/logger"
	"chatcore/pkg/notify"
	"chatcore/pkg/presence"
	"chatcore/pkg/store"
	"chatcore/pkg/threads"
	"chatcore/pkg/typing"
	"chatcore/pkg/validation"
	"chatcore/pkg/ws"
)

// App owns the wired components of a running server.
type App struct {
	cfg        config.Config
	dispatcher *fanout.Dispatcher
	tracker    *presence.Tracker
	registry   *typing.Registry
	webhook    *notify.Webhook
	service    *threads.Service
	gateway    *ws.Gateway
	repairer   *repair.Service
}

// New validates the configuration, opens storage and wires every
// component. The store stays open until Run returns.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	validation.SetRules(validation.Rules{
		MaxContentLen:   cfg.Limits.MaxContentLen,
		MaxAttachments:  cfg.Limits.MaxAttachments,
		MaxReactionLen:  cfg.Limits.MaxReactionLen,
		MaxParticipants: cfg.Limits.MaxParticipants,
		AllowedTypes:    cfg.Limits.AllowedTypes,
	})

	if err := store.Open(cfg.Storage.DBPath); err != nil {
		return nil, err
	}

	dispatcher := fanout.NewDispatcher(cfg.Realtime.FanoutBuffer)
	tracker := presence.NewTracker(time.Duration(cfg.Realtime.PresenceTTLSeconds)*time.Second, dispatcher)
	registry := typing.NewRegistry(time.Duration(cfg.Realtime.TypingTTLSeconds)*time.Second, dispatcher)

	webhook := notify.NewWebhook(notify.Config{
		URL:       cfg.Notify.URL,
		Bearer:    cfg.Notify.Bearer,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   time.Duration(cfg.Notify.TimeoutSeconds) * time.Second,
	})

	var notifier threads.Notifier
	if webhook != nil {
		notifier = webhook
	}
	service := threads.NewService(dispatcher, tracker, notifier)
	gateway := ws.NewGateway(service, dispatcher, tracker, registry)

	repairer, err := repair.New(service, cfg.Realtime.RepairCron)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		dispatcher: dispatcher,
		tracker:    tracker,
		registry:   registry,
		webhook:    webhook,
		service:    service,
		gateway:    gateway,
		repairer:   repairer,
	}, nil
}

// Run starts background loops and serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	a.tracker.Start(ctx)
	a.registry.Start(ctx)
	a.repairer.Start(ctx)
	if a.webhook != nil {
		a.webhook.Start(ctx)
	}

	err := a.serveHTTP(ctx)

	a.gateway.CloseAll()
	if cerr := store.Close(); cerr != nil {
		logger.Error("store_close_failed", "error", cerr)
	}
	return err
}
