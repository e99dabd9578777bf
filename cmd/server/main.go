package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/castos/studio/internal/auth"
	"github.com/castos/studio/internal/cache"
	"github.com/castos/studio/internal/client"
	"github.com/castos/studio/internal/config"
	"github.com/castos/studio/internal/handler"
	"github.com/castos/studio/internal/middleware"
	"github.com/castos/studio/internal/server"
	"github.com/castos/studio/internal/service"
	ws "github.com/castos/studio/internal/websocket"
	"github.com/castos/studio/internal/worker"
)

// @title          CastOS Studio API
// @version        1.0
// @description    Gateway for the CastOS casting optimization service.
// @BasePath       /
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	validate := validator.New()
	hub := ws.NewHub()

	// Snapshot cache and report queue: Redis when configured, memory otherwise
	var (
		redisClient *redis.Client
		store       interface {
			cache.SnapshotStore
			cache.JobStore
		}
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Warning: Redis not available: %v", err)
		}
		store = cache.NewRedisStore(redisClient)
	} else {
		log.Println("Info: Redis not configured, keeping snapshots in memory")
		store = cache.NewMemoryStore()
	}

	// R2 report storage (optional - reports get placeholder URLs without it)
	var storage client.ReportStorage
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, reports will not be uploaded")
	}

	// Clerk JWKS verifier (optional - falls back to HMAC tokens)
	var jwksVerifier auth.TokenVerifier
	if cfg.Clerk.Issuer != "" {
		v, err := auth.NewJWKSVerifier(&cfg.Clerk)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			jwksVerifier = v
			defer v.Close()
		}
	}
	verifier := server.NewVerifier(jwksVerifier, cfg.JWT.Secret)

	credentials := middleware.NewCredentialsMiddleware(verifier)
	if cfg.Clerk.GatewayMode {
		log.Println("Info: Gateway mode enabled, reading identity from X-User-* headers")
		credentials = middleware.NewGatewayCredentialsMiddleware()
	}

	// The service token is only used when a caller sends no credential
	castos := client.NewCastOSClient(&cfg.CastOS, client.StaticToken(cfg.CastOS.ServiceToken))

	// Services
	submissionService := service.NewSubmissionService(validate)
	projectService := service.NewProjectService(store)
	if storage != nil {
		projectService.SetReportStorage(storage)
	}
	reportService := service.NewReportService(store, nil)
	reportWorker := worker.NewReportWorker(reportService, storage, hub, cfg.Report.URLExpiry)

	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = asynq.NewClient(redisOpt(cfg))
		defer asynqClient.Close()
		reportService.SetDispatcher(service.NewAsynqDispatcher(asynqClient))
	} else {
		reportService.SetDispatcher(worker.NewInlineDispatcher(reportWorker))
	}

	app := server.New(server.Deps{
		Projects:      handler.NewProjectHandler(castos, submissionService, projectService, reportService),
		Auth:          handler.NewAuthHandler(verifier),
		Sessions:      ws.NewSessions(hub, castos, projectService, service.DetailPolicyFromConfig(&cfg.Tracker), cfg.Poller.Interval),
		Credentials:   credentials,
		RateLimiter:   middleware.NewRateLimiter(redisClient),
		SubmitPerHour: cfg.RateLimit.SubmitPerHour,
		ExportPerHour: cfg.RateLimit.ExportPerHour,
		LogLevel:      cfg.Server.LogLevel,
		Health:        server.HealthReport(castos, redisClient, storage, jwksVerifier, cfg.Clerk.GatewayMode),
	})

	var workerServer *asynq.Server
	if redisClient != nil {
		workerServer = startWorkerServer(cfg, reportWorker)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if workerServer != nil {
			workerServer.Shutdown()
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s (backend %s)", addr, cfg.CastOS.BaseURL)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func startWorkerServer(cfg *config.Config, reportWorker *worker.ReportWorker) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				service.QueueReports: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeReport, reportWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
		return nil
	}
	return srv
}
