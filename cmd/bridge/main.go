package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbenaiss/conseiller-chat/api"
	"github.com/mbenaiss/conseiller-chat/apiclient"
	"github.com/mbenaiss/conseiller-chat/chat"
	"github.com/mbenaiss/conseiller-chat/config"
	"github.com/mbenaiss/conseiller-chat/db"
	"github.com/mbenaiss/conseiller-chat/logger"
	"github.com/mbenaiss/conseiller-chat/notify"
	"github.com/mbenaiss/conseiller-chat/realtime"
	"github.com/mbenaiss/conseiller-chat/services"
	"github.com/mbenaiss/conseiller-chat/whatsapp"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log := logger.New("bridge", "info")
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New("bridge", cfg.LogLevel)
	ctx := context.Background()

	store, err := db.NewDB(ctx, cfg.StoreDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize conversation store")
	}
	defer store.Close()

	var profile services.Profile
	if cfg.APIBaseURL != "" {
		profile = apiclient.NewClient(cfg.APIBaseURL, cfg.APIAccessToken)
	}

	transport, err := newTransport(cfg, store, log)
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.Transport).Msg("failed to initialize transport")
	}

	hub := notify.NewHub(log)
	prefs := services.NewPreferences(cfg.SoundNotifications)
	manager := chat.NewManager(transport, prefs, log,
		chat.WithStore(store),
		chat.WithOrdering(chat.Ordering{FlaggedFirst: cfg.FlaggedFirst}),
		chat.WithNotifier(chat.Lazy(func() chat.Notifier {
			return notify.Multi(hub, notify.NewBell(os.Stdout))
		})),
	)

	service := services.NewService(manager, transport, store, profile, prefs, services.Options{
		TransportName: cfg.Transport,
		ConseillerID:  cfg.ConseillerID,
		TrackedJeunes: cfg.TrackedJeunes,
	}, log)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := service.Start(startCtx); err != nil {
		log.Warn().Err(err).Msg("chat session not started, retry with /api/login")
	}
	cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	apiServer := api.NewServer(service, hub, cfg.Port, log)

	go func() {
		<-c
		log.Info().Msg("shutting down...")

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := apiServer.Stop(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		service.SignOut()
		log.Info().Msg("server gracefully stopped")
	}()

	log.Info().Str("port", cfg.Port).Str("transport", cfg.Transport).Msg("conseiller chat bridge starting")
	if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("HTTP server error")
	}
}

func newTransport(cfg config.Config, store db.DB, log zerolog.Logger) (chat.Transport, error) {
	switch cfg.Transport {
	case config.TransportWhatsapp:
		wa, err := whatsapp.NewWhatsapp(cfg.StoreDir, store, log)
		if err != nil {
			return nil, err
		}
		return wa, nil
	default:
		credentials := apiclient.NewClient(cfg.APIBaseURL, cfg.APIAccessToken)
		return realtime.NewClient(cfg.RealtimeURL, credentials, log), nil
	}
}
