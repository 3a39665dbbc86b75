package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"convexpanel-go/internal/config"
	"convexpanel-go/internal/constants"
	"convexpanel-go/internal/dashboard"
	"convexpanel-go/internal/deploykey"
	"convexpanel-go/internal/envfile"
	"convexpanel-go/internal/events"
	"convexpanel-go/internal/logging"
	"convexpanel-go/internal/middleware"
	tracing "convexpanel-go/internal/monitoring/tracing"
	"convexpanel-go/internal/oauth"
	srv "convexpanel-go/internal/server"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug mode")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(constants.GetFullVersion())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *debug {
		cfg.Debug = true
	}

	if err := cfg.ValidateAndExpandPaths(); err != nil {
		log.WithError(err).Fatal("invalid configuration paths")
	}
	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	traceShutdown, err := tracing.Init(context.Background())
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to shutdown tracing")
			}
		}()
	}

	log.Infof("Starting convexpanel daemon %s (config: %s)", constants.Version, *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage := buildStorage(ctx, cfg)
	defer func() {
		if storage != nil {
			_ = storage.Close()
		}
	}()

	eventHub := events.NewHub()
	if cfg.Debug {
		eventHub.Subscribe(events.TopicDeployKeyChanged, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("deploy key event: %v", evt.Payload)
		})
		eventHub.Subscribe(events.TopicEnvFileChanged, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debugf("env file event: %v", evt.Payload)
		})
	}

	tokenCache := oauth.NewCache(storage)
	if storage != nil {
		if err := tokenCache.Load(ctx); err != nil {
			log.WithError(err).Warn("failed to load cached OAuth token")
		}
	}

	dashClient := dashboard.NewClient(cfg.DashboardURL)
	var refresher *oauth.Refresher
	if cfg.AuthURL != "" && cfg.ClientID != "" {
		refresher = oauth.NewRefresher(cfg.AuthURL, cfg.ClientID)
	} else {
		log.Warn("auth service not fully configured; token refresh will be unavailable")
	}
	resolver := deploykey.NewResolver(deploykey.Options{
		Creator:   dashClient,
		Store:     storage,
		Tokens:    tokenCache,
		Publisher: eventHub,
	})

	if cfg.ProjectDir != "" {
		watcher := envfile.NewWatcher(cfg.EnvFilePath(), eventHub)
		middleware.SafeGo("envfile-watcher", func() { watcher.Start(ctx) })
		log.WithField("path", cfg.EnvFilePath()).Info("watching project env file")
	}

	engine, _ := srv.BuildEngine(cfg, srv.Dependencies{
		Resolver:  resolver,
		Dashboard: dashClient,
		Storage:   storage,
		Tokens:    tokenCache,
		Refresher: refresher,
		Hub:       eventHub,
	})

	addr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.Infof("Panel API listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("panel server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("Shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	log.Info("Server stopped")
}
