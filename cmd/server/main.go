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

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/api"
	"github.com/Cuffsss/studio/internal/auth"
	"github.com/Cuffsss/studio/internal/clock"
	"github.com/Cuffsss/studio/internal/config"
	"github.com/Cuffsss/studio/internal/notify"
	"github.com/Cuffsss/studio/internal/scheduler"
	"github.com/Cuffsss/studio/internal/service"
	"github.com/Cuffsss/studio/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	config.AddFlags(flagSet)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(flagSet)
	if err != nil {
		return err
	}
	logger, err := internal.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("closing storage: %v", err)
		}
	}()

	hub := notify.NewHub(logger.With("component", "hub"))
	defer hub.Close()

	notifiers := notify.Multi{hub, notify.NewLogNotifier(logger.With("component", "notify"))}
	if cfg.SendGridAPIKey != "" {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.SendGridAPIKey, cfg.NotifyFromEmail, store, logger.With("component", "email")))
	}

	policy := service.NewSettingsPolicy(store, cfg.DefaultSettings(), logger)
	realClock := clock.Real()
	sched := scheduler.New(scheduler.Options{
		Clock:    realClock,
		Policy:   policy,
		Notifier: notifiers,
		Recorder: store,
		Logger:   logger.With("component", "scheduler"),
	})
	defer sched.Close()

	tokens := auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL)
	var provider auth.Provider
	if cfg.AuthMode == config.AuthModeRemote {
		provider = auth.NewRemoteAuthProvider(cfg.RemoteAuthURL, logger)
	} else {
		provider = auth.NewLocalAuthProvider(tokens, store, logger)
	}

	app := &api.Deps{
		Log:      logger,
		Cfg:      cfg,
		Storage:  store,
		Sched:    sched,
		Policy:   policy,
		Issuer:   tokens,
		Notifier: hub,
		Time:     realClock,
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(app, provider),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s (storage=%s, auth=%s)", cfg.HTTPAddr, cfg.StorageBackend, cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
