// Command sdlcloopd runs the SDLC loop controller: the GitHub/daemon
// webhook receiver, the control-plane API, the realtime WebSocket feed,
// and the worker pool that ticks each loop's signal inbox and drains its
// outbox.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sdlcloop/controller/pkg/api"
	"github.com/sdlcloop/controller/pkg/cleanup"
	"github.com/sdlcloop/controller/pkg/config"
	"github.com/sdlcloop/controller/pkg/database"
	"github.com/sdlcloop/controller/pkg/external"
	"github.com/sdlcloop/controller/pkg/gates"
	"github.com/sdlcloop/controller/pkg/queue"
	"github.com/sdlcloop/controller/pkg/realtime"
	"github.com/sdlcloop/controller/pkg/signalinbox"
	"github.com/sdlcloop/controller/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v (continuing with existing environment)", envPath, err)
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting sdlcloopd", "version", version.Full(), "config_dir", *configDir)

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL, migrations applied")

	instanceID := instanceIdentifier()

	connManager := realtime.NewConnectionManager(
		realtime.NewEventServiceAdapter(dbClient.Client),
		10*time.Second,
	)

	listenerConnString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Database, cfg.Database.SSLMode,
	)
	notifyListener := realtime.NewNotifyListener(listenerConnString, connManager)
	if err := notifyListener.Start(ctx); err != nil {
		log.Fatalf("Failed to start NOTIFY listener: %v", err)
	}
	defer notifyListener.Stop(ctx)
	if err := notifyListener.Subscribe(ctx, realtime.GlobalLoopsChannel); err != nil {
		slog.Error("Failed to subscribe to global loops channel", "error", err)
	}

	eventPublisher := realtime.NewEventPublisher(dbClient.DB())

	tickDeps := signalinbox.Deps{
		LeaseQuerier:               dbClient.DB(),
		LeaseTTL:                   cfg.LoopLease.TTL,
		FollowUpQueuer:             external.NoopFollowUpQueuer{},
		AuthoritativeThreadSources: gates.NewAuthoritativeUnresolvedThreadCountSources(cfg.ReviewThreadSources.Authoritative),
	}

	workerPool := queue.NewWorkerPool(
		instanceID,
		dbClient.Client,
		dbClient.DB(),
		cfg,
		tickDeps,
		external.DefaultPublishers(),
		eventPublisher,
	)
	if err := workerPool.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}
	defer workerPool.Stop()

	cleanupService := cleanup.NewService(cfg.Retention, dbClient.Client)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	server := api.NewServer(cfg, dbClient, dbClient.Client, workerPool, connManager, instanceID)

	go func() {
		slog.Info("HTTP server listening", "addr", cfg.System.ListenAddr)
		if err := server.Start(cfg.System.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutdown signal received, draining in-flight requests and loop ticks")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during HTTP server shutdown", "error", err)
	}
}

// instanceIdentifier derives a stable-enough claimant token for this
// process: the pod name under Kubernetes, else hostname-pid for local dev.
func instanceIdentifier() string {
	if pod := os.Getenv("POD_NAME"); pod != "" {
		return pod
	}
	host, err := os.Hostname()
	if err != nil {
		host = "sdlcloopd"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
