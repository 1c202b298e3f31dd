// Package main is the entry point for the Schedule Keeper server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schedule-keeper/backend/internal/api"
	"github.com/schedule-keeper/backend/internal/calendar"
	"github.com/schedule-keeper/backend/internal/config"
	"github.com/schedule-keeper/backend/internal/homeassistant"
	"github.com/schedule-keeper/backend/internal/schedule"
	"github.com/schedule-keeper/backend/internal/storage"
	"github.com/schedule-keeper/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/data/config.yaml", "Path to the YAML configuration file")
	addr := flag.String("addr", "", "HTTP server address (overrides config)")
	dataDir := flag.String("data", "", "Data directory for the SQLite database (overrides config)")
	staticDir := flag.String("static", "", "Directory for static frontend files (overrides config)")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if cfg == nil {
			log.Fatalf("Failed to load config %q: %v", *configPath, err)
		}
		log.Printf("Warning: Could not write default config %q: %v", *configPath, err)
	}
	cfg.ApplyEnv()
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Listen); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	// Allow overriding version via environment (e.g., injected by container build/runtime)
	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting Schedule Keeper (version: %s)...", version)

	// Initialize database and run migrations
	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	log.Println("Database migrations complete")

	// Restore the schedule and arm its plan timers
	timers := schedule.NewTimers()
	store := storage.NewStore(db)
	sched, err := store.LoadOrSeed(context.Background(), cfg.Seed, cfg.Title, timers)
	if err != nil {
		log.Fatalf("Failed to load schedule: %v", err)
	}
	timers.Start()

	// Initialize WebSocket hub and forward schedule activity to it
	hub := websocket.NewHub(cfg.WSBuffer)
	go hub.Run()
	broadcaster := websocket.NewEventBroadcaster(hub)
	detach := broadcaster.Attach(sched)

	sched.Subscribe(schedule.ObserverFunc(func(n schedule.Notification) error {
		log.Printf("Plan started: %q %s %s-%s", n.Title, n.Day, n.Start, n.End)
		return nil
	}))

	// Forward plan starts to Home Assistant when a token is configured
	var forwarder *homeassistant.Forwarder
	var haSub *schedule.Subscription
	if cfg.HomeAssistant.Enabled() {
		forwarder = homeassistant.NewForwarder(cfg.HomeAssistant, sched.ID())
		haSub = sched.Subscribe(forwarder)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if forwarder.Client().Available(ctx) {
				log.Printf("Forwarding plan starts to Home Assistant at %s", cfg.HomeAssistant.BaseURL)
			} else {
				log.Printf("Warning: Home Assistant at %s is not reachable yet", cfg.HomeAssistant.BaseURL)
			}
		}()
	}

	// Initialize feed sync
	syncService := calendar.NewSyncService(sched)
	feedScheduler := calendar.NewScheduler(syncService, cfg.FeedIntervalMin, func(result *calendar.SyncResult, err error) {
		if err == nil {
			if err := store.Persist(context.Background(), sched); err != nil {
				log.Printf("Warning: Failed to save schedule after feed sync: %v", err)
			}
		}
		broadcaster.BroadcastFeedSynced(result, err)
	})
	feedScheduler.Start(cfg.Feeds)
	for _, f := range cfg.Feeds {
		feedScheduler.TriggerSync(f.URL)
	}

	// Initialize HTTP router with services
	router := api.NewRouterWithServices(api.Services{
		DB:        db,
		Store:     store,
		Schedule:  sched,
		Hub:       hub,
		Sync:      syncService,
		Feeds:     feedScheduler,
		Evaluator: calendar.NewEvaluator(),
		Forwarder: forwarder,
	}, cfg.StaticDir)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop schedulers before the schedule they write to
	feedScheduler.Stop()
	timers.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := store.Persist(ctx, sched); err != nil {
		log.Printf("Warning: Failed to save schedule: %v", err)
	}
	detach()
	if forwarder != nil {
		haSub.Close()
		forwarder.Stop()
	}
	sched.Close()
	hub.Stop()

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	url := "http://" + host + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %s", resp.Status)
	}
	return nil
}
