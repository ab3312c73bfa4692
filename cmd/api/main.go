package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelth-com/proxyfleet/internal/config"
	"github.com/xelth-com/proxyfleet/internal/database"
	"github.com/xelth-com/proxyfleet/internal/handlers"
	"github.com/xelth-com/proxyfleet/internal/lifecycle"
	"github.com/xelth-com/proxyfleet/internal/metrics"
	"github.com/xelth-com/proxyfleet/internal/models"
	"github.com/xelth-com/proxyfleet/internal/notify"
	"github.com/xelth-com/proxyfleet/internal/probe"
	"github.com/xelth-com/proxyfleet/internal/provider"
	"github.com/xelth-com/proxyfleet/internal/provider/digitalocean"
	"github.com/xelth-com/proxyfleet/internal/provider/hetzner"
	"github.com/xelth-com/proxyfleet/internal/scheduler"
	"github.com/xelth-com/proxyfleet/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Proxy{},
		&models.Client{},
		&models.UserAuth{},
	); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// Provider adapters share one cloud-init payload
	userData := provider.UserData(cfg.Proxy)
	registry := provider.NewRegistry()
	if cfg.Providers.DigitalOcean.Token != "" {
		if err := registry.Register(digitalocean.New(cfg.Providers.DigitalOcean, cfg.ProjectName, userData)); err != nil {
			log.Fatalf("failed to register DigitalOcean: %v", err)
		}
	}
	if cfg.Providers.Hetzner.Token != "" {
		if err := registry.Register(hetzner.New(cfg.Providers.Hetzner, cfg.ProjectName, userData)); err != nil {
			log.Fatalf("failed to register Hetzner: %v", err)
		}
	}

	proxies := store.NewGormProxyStore(db.DB)
	clients := store.NewGormClientStore(db.DB)
	users := store.NewGormUserStore(db.DB)

	m := metrics.New(prometheus.DefaultRegisterer)
	verifier := probe.New(cfg.Proxy)
	notifier := notify.LogNotifier{}

	orch := lifecycle.NewOrchestrator(proxies, registry, verifier, notifier, cfg.Providers, m)
	sweeper := lifecycle.NewSweeper(proxies, orch, notifier)
	reconciler := lifecycle.NewReconciler(proxies, registry, verifier, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(cfg.Scheduler, sweeper, reconciler)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	router := handlers.NewRouter(cfg, proxies, clients, users, orch)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Infof("listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server shutdown: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Errorf("database close: %v", err)
	}
}
