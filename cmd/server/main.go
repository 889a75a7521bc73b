package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"timeagent/internal/config"
	"timeagent/internal/database"
	"timeagent/internal/handlers"
	"timeagent/internal/jobs"
	"timeagent/internal/logging"
	"timeagent/internal/middleware"
	"timeagent/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Time Agent Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	loc := cfg.Location()
	log.Printf("📋 Configuration loaded (Port: %s, Timezone: %s)", cfg.Port, loc)

	// Initialize the store: SQL when DATABASE_URL is set, in-memory otherwise
	var store services.Store
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.Initialize(); err != nil {
			log.Fatalf("❌ Failed to initialize database: %v", err)
		}
		store = services.NewSQLStore(db, loc)
	} else {
		log.Println("⚠️ DATABASE_URL not set - using in-memory store (data is lost on restart)")
		store = services.NewMemoryStore()
	}

	// Initialize Prometheus metrics
	metrics := services.InitMetrics()
	log.Println("✅ Prometheus metrics initialized")

	// Load category keywords (defaults when no file is configured)
	keywords, err := config.LoadKeywords(cfg.KeywordsFile)
	if err != nil {
		log.Fatalf("❌ Failed to load keywords file: %v", err)
	}
	classifier := services.NewClassifierService(keywords)
	if cfg.KeywordsFile != "" {
		if err := classifier.WatchFile(cfg.KeywordsFile); err != nil {
			log.Printf("⚠️ Keywords file watch disabled: %v", err)
		}
	}

	// Initialize the engine services
	parser := services.NewParserService(loc, services.LLMParserConfig{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	}, metrics)

	matcher := services.NewMatcherService(store)
	reconciler := services.NewReconcilerService(store, cfg.GoalLockWait, metrics)
	goalService := services.NewGoalService(store, reconciler, matcher, loc)
	recordService := services.NewRecordService(store, parser, classifier, matcher, reconciler, metrics, loc)

	// Report cache: Redis when configured, in-process otherwise
	var reportService *services.ReportService
	if redisCache := services.NewRedisReportCache(cfg.RedisURL); redisCache != nil {
		reportService = services.NewReportService(store, redisCache, loc)
	} else {
		reportService = services.NewReportService(store, nil, loc)
	}
	goalService.SetReportInvalidator(reportService)
	recordService.SetReportInvalidator(reportService)

	// Live record feed over WebSocket
	connManager := services.NewConnectionManager(metrics)
	recordService.SetBroadcaster(connManager)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Time Agent v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // free-text entries are small
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("timeagent")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Load rate limiting configuration
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Ingest=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.IngestMax,
		rateLimitConfig.WebSocketMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Global API rate limiter - first line of DDoS defense
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(connManager)
	recordHandler := handlers.NewRecordHandler(recordService)
	goalHandler := handlers.NewGoalHandler(goalService)
	reportHandler := handlers.NewReportHandler(reportService)
	wsHandler := handlers.NewWebSocketHandler(connManager)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")

	api.Post("/time-records", middleware.IngestRateLimiter(rateLimitConfig), recordHandler.Create)
	api.Get("/time-records", recordHandler.List)
	api.Get("/time-records/:id", recordHandler.Get)
	api.Put("/time-records/:id", recordHandler.Update)
	api.Delete("/time-records/:id", recordHandler.Delete)

	api.Post("/goals", goalHandler.Create)
	api.Get("/goals", goalHandler.List)
	api.Get("/goals/:id", goalHandler.Get)
	api.Put("/goals/:id", goalHandler.Update)
	api.Delete("/goals/:id", goalHandler.Delete)

	api.Get("/reports/daily", reportHandler.Daily)
	api.Get("/reports/weekly", reportHandler.Weekly)

	// WebSocket route for the live record feed
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("client_ip", c.IP())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/records", middleware.WebSocketRateLimiter(rateLimitConfig), websocket.New(wsHandler.Handle))

	// Background jobs
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("report_warmup", jobs.NewReportWarmupJob(reportService, loc))
	if err := jobScheduler.Start(); err != nil {
		log.Printf("⚠️  Failed to start job scheduler: %v", err)
	} else {
		log.Println("✅ Background job scheduler started")
	}

	// Start server
	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 WebSocket endpoint: ws://localhost:%s/ws/records", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Println("🕐 Background jobs: report warmup (daily 00:05)")

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		jobScheduler.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
