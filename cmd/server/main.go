package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/config"
	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/handler"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/middleware"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/scheduler"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	workflowRepo := repository.NewWorkflowRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	actionRepo := repository.NewActionRepository(db)
	delegateRepo := repository.NewDelegateRepository(db)

	// Entity registry: bind entity types to their owning modules
	registry := service.NewEntityRegistry()
	for _, e := range cfg.Entities {
		registry.Register(e.EntityType, service.EntityModule{Module: e.Module, ActionURL: e.ActionURL})
	}

	// Directory client, optionally fronted by a redis read-through cache
	var directory service.DirectoryClient = client.NewDirectoryHTTPClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		directory = client.NewCachedDirectory(directory.(*client.DirectoryHTTPClient), rdb, cfg.Redis.TTL, log.Logger)
		log.Info().Str("redis", cfg.Redis.Addr).Msg("Directory cache enabled")
	}

	// NATS notification publisher (optional)
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		natsClient, err := client.NewNATSClient(cfg.NATS.URL, cfg.Service.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsClient.Close()
		notifier = client.NewNotificationPublisher(natsClient, registry, log.Logger)
		log.Info().Str("nats", cfg.NATS.URL).Msg("Notification publisher enabled")
	}

	// Initialize services
	engine := service.NewEngine(workflowRepo, requestRepo, actionRepo, delegateRepo, directory, registry, notifier, log)
	admin := service.NewAdminService(workflowRepo, delegateRepo, registry, log)

	// Escalation scheduler
	if cfg.Scheduler.Enabled {
		esc, err := scheduler.New(engine, cfg.Scheduler.CronSpec, cfg.Scheduler.ScanTimeout, log)
		if err != nil {
			log.Fatal().Err(err).Str("cron", cfg.Scheduler.CronSpec).Msg("Invalid escalation schedule")
		}
		go esc.Run(ctx)
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(engine, admin, log)
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	// Workflow template routes
	mux.HandleFunc("/api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListTemplates(w, r)
		case http.MethodPost:
			httpHandler.CreateTemplate(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/workflows/get", httpHandler.GetTemplate)
	mux.HandleFunc("/api/v1/workflows/update", httpHandler.UpdateTemplate)
	mux.HandleFunc("/api/v1/workflows/deactivate", httpHandler.DeactivateTemplate)

	// Delegation routes
	mux.HandleFunc("/api/v1/delegates", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			httpHandler.ListDelegates(w, r)
		case http.MethodPost:
			httpHandler.CreateDelegate(w, r)
		case http.MethodDelete:
			httpHandler.DeleteDelegate(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Approval request routes
	mux.HandleFunc("/api/v1/requests", httpHandler.SubmitRequest)
	mux.HandleFunc("/api/v1/requests/get", httpHandler.GetRequest)
	mux.HandleFunc("/api/v1/requests/history", httpHandler.GetHistory)
	mux.HandleFunc("/api/v1/requests/pending", httpHandler.GetPending)
	mux.HandleFunc("/api/v1/requests/action", httpHandler.TakeAction)
	mux.HandleFunc("/api/v1/requests/resubmit", httpHandler.ResubmitRequest)
	mux.HandleFunc("/api/v1/requests/reassign", httpHandler.ReassignRequest)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.Timeout(cfg.Server.WriteTimeout)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel() // stops the escalation scheduler

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
