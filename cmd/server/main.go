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
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/config"
	"github.com/bananaslides/deckwizard/internal/handler"
	"github.com/bananaslides/deckwizard/internal/middleware"
	"github.com/bananaslides/deckwizard/internal/service"
	"github.com/bananaslides/deckwizard/internal/session"
	"github.com/bananaslides/deckwizard/internal/store"
	"github.com/bananaslides/deckwizard/internal/tracker"
	ws "github.com/bananaslides/deckwizard/internal/websocket"
	"github.com/bananaslides/deckwizard/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Redis client (optional - falls back to local files)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis not available, using local state files: %v", err)
			redisClient.Close()
			redisClient = nil
		}
	}

	// Persistence for sessions and export tasks
	var (
		prefs    store.Prefs
		taskRepo tracker.Repository
	)
	if redisClient != nil {
		prefs = store.NewRedisPrefs(redisClient)
		taskRepo = tracker.NewRedisRepository(redisClient)
	} else {
		filePrefs, err := store.NewFilePrefs(cfg.Session.StateFile)
		if err != nil {
			log.Fatalf("Failed to open session state: %v", err)
		}
		fileRepo, err := tracker.NewFileRepository(cfg.Export.StateFile)
		if err != nil {
			log.Fatalf("Failed to open export state: %v", err)
		}
		prefs = filePrefs
		taskRepo = fileRepo
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	deckClient := client.NewDeckClient(&cfg.Backend)
	if !deckClient.IsConfigured() {
		log.Println("Warning: BACKEND_BASE_URL is empty, every backend call will fail")
	}

	// Initialize R2 client (optional - exports keep backend URLs without it)
	var archiver tracker.Archiver
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			archiver = service.NewExportArchiver(r2Client, cfg.Backend.BaseURL)
		}
	} else {
		log.Println("Info: R2 storage not configured, exports are not archived")
	}

	// Export tracker, polling locally or through the asynq queue
	trackerOpts := tracker.Options{
		PollInterval: cfg.Export.PollInterval,
		PollTimeout:  cfg.Export.PollTimeout,
		Archiver:     archiver,
		Notifier:     hub,
	}
	useAsynq := cfg.Export.Scheduler == config.SchedulerAsynq && redisClient != nil
	if cfg.Export.Scheduler == config.SchedulerAsynq && !useAsynq {
		log.Println("Warning: asynq scheduler needs Redis, polling exports locally")
	}
	if useAsynq {
		asynqClient := asynq.NewClient(redisOpt(cfg))
		trackerOpts.Scheduler = worker.NewAsynqScheduler(asynqClient, cfg.Export.PollTimeout)
	}
	exportTracker := tracker.New(taskRepo, deckClient, trackerOpts)
	defer exportTracker.Close()

	if useAsynq {
		go startWorkerServer(ctx, cfg, exportTracker)
	}
	if n, err := exportTracker.RestoreActiveTasks(ctx); err != nil {
		log.Printf("Warning: export restore incomplete (%d resumed): %v", n, err)
	}

	// Wizard sessions
	sessions := session.NewRegistry(deckClient, prefs, session.Options{
		IdleTTL: cfg.Session.IdleTTL,
		StoreOptions: []store.Option{
			store.WithPolling(cfg.Generation.PollInterval, cfg.Generation.PollTimeout),
		},
		OnSnapshot: func(_ string, snap store.Snapshot) {
			hub.BroadcastProject(snap)
		},
	})
	defer sessions.Close()
	if n, err := sessions.Restore(ctx); err != nil {
		log.Printf("Warning: session restore incomplete (%d resumed): %v", n, err)
	}
	go sessions.Run(ctx)

	// Initialize services
	exportService := service.NewExportService(deckClient, exportTracker, archiver)
	settingsService := service.NewSettingsService(deckClient)

	// Initialize handlers
	handlers := handler.Handlers{
		Wizard:   handler.NewWizardHandler(sessions, validate),
		Project:  handler.NewProjectHandler(sessions, validate),
		Export:   handler.NewExportHandler(exportService, exportTracker, sessions, validate),
		Settings: handler.NewSettingsHandler(settingsService, validate),
	}

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    210 * 1024 * 1024, // reference files go up to 200MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept," + middleware.SessionHeader,
		ExposeHeaders: middleware.SessionHeader,
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"backend":  deckClient.IsConfigured(),
				"redis":    redisClient != nil,
				"r2":       r2Client.IsConfigured(),
				"sessions": sessions.Len(),
			},
		})
	})

	// API routes
	handler.RegisterRoutes(app, handlers, rateLimiter, cfg.RateLimit)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/exports/:projectId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.ExportTopic(c.Params("projectId")))
	}))
	app.Get("/ws/projects/:projectId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.ProjectTopic(c.Params("projectId")))
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		hub.Stop()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
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

func startWorkerServer(ctx context.Context, cfg *config.Config, runner tracker.Runner) {
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
			Concurrency: 10,
			Queues: map[string]int{
				worker.QueueExports: 1,
			},
			LogLevel:        asynqLogLevel,
			ShutdownTimeout: 10 * time.Second,
		},
	)

	pollWorker := worker.NewExportPollWorker(runner)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeExportPoll, pollWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
		return
	}
	<-ctx.Done()
	srv.Shutdown()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
