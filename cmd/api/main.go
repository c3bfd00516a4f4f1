package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/api/handlers"
	"github.com/factcheck-pro/backend/internal/cache/redis"
	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/gemini"
	"github.com/factcheck-pro/backend/internal/imageagent"
	"github.com/factcheck-pro/backend/internal/llm"
	"github.com/factcheck-pro/backend/internal/metrics"
	"github.com/factcheck-pro/backend/internal/middleware/ratelimit"
	"github.com/factcheck-pro/backend/internal/middleware/security"
	"github.com/factcheck-pro/backend/internal/middleware/validation"
	"github.com/factcheck-pro/backend/internal/page"
	"github.com/factcheck-pro/backend/internal/resultlog"
	"github.com/factcheck-pro/backend/internal/search/web"
	"github.com/factcheck-pro/backend/internal/storage/sqlite"
	"github.com/factcheck-pro/backend/pkg/config"
	appLogger "github.com/factcheck-pro/backend/pkg/logger"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Fact Checker Pro API Server")

	metrics.Init()

	opts := factcheck.Options{
		DefaultSearchResults: cfg.Search.DefaultResults,
	}

	if cfg.LLM.APIKey != "" {
		llmClient, err := llm.NewClient(llm.Config{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     seconds(cfg.LLM.TimeoutSec),
			MaxAttempts: cfg.LLM.MaxAttempts,
		})
		if err != nil {
			appLogger.Fatal("Failed to create LLM client", zap.Error(err))
		}
		opts.Verifier = llm.NewVerifier(llmClient)

		if cfg.Page.Enabled {
			opts.Pages = page.NewAnalyzer(llmClient, page.Config{
				Timeout:      seconds(cfg.Page.TimeoutSec),
				MaxChars:     cfg.Page.MaxChars,
				MaxSentences: cfg.Page.MaxSentences,
			})
		}
	} else {
		appLogger.Warn("No LLM API key configured; text, url and page checks are unavailable")
	}

	if cfg.Gemini.APIKey != "" {
		geminiClient := gemini.NewClient(gemini.Config{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			BaseURL:     cfg.Gemini.BaseURL,
			Timeout:     seconds(cfg.Gemini.TimeoutSec),
			MaxAttempts: cfg.Gemini.MaxAttempts,
		})
		opts.Images = imageagent.New(geminiClient, resultlog.New(cfg.ResultLog.Path), seconds(cfg.Gemini.TimeoutSec))
	} else {
		appLogger.Warn("No Gemini API key configured; image checks are unavailable")
	}

	if cfg.Search.Enabled {
		var searchOpts []web.Option
		if cfg.Cache.Enabled {
			redisClient, err := redis.NewClient(cfg.Cache.Host, cfg.Cache.Port, cfg.Cache.Password, cfg.Cache.DB)
			if err != nil {
				appLogger.Warn("Search cache unavailable", zap.Error(err))
			} else {
				defer redisClient.Close()
				searchOpts = append(searchOpts, web.WithCache(redisClient, seconds(cfg.Cache.TTLSec)))
			}
		}
		opts.Searcher = web.NewClient(cfg.Search.SerpAPIKey, cfg.Search.MaxResults, seconds(cfg.Search.TimeoutSec), searchOpts...)
	}

	var history *sqlite.Client
	if cfg.History.Enabled {
		history, err = sqlite.NewClient(cfg.History.SQLitePath)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		defer history.Close()

		if err := history.InitSchema(); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}
		opts.History = history
	}

	service := factcheck.NewService(opts)

	systemHandler := handlers.NewSystemHandler(service)
	factCheckHandler := handlers.NewFactCheckHandler(service)

	app := fiber.New(fiber.Config{
		AppName:      "Fact Checker Pro",
		ReadTimeout:  seconds(cfg.Server.ReadTimeout),
		WriteTimeout: seconds(cfg.Server.WriteTimeout),
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: systemHandler.ErrorHandler,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               appLogger.Named("ratelimit"),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(security.RequestID())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:request_id} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: security.OriginAllowed(cfg.Server.AllowedOrigins),
		AllowHeaders:     "Origin, Content-Type, Accept, X-Client-ID, X-Request-ID",
		AllowMethods:     "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Server.Development,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api")
	api.Get("/health", systemHandler.Health)
	api.Get("/stats", systemHandler.Stats)
	if history != nil {
		api.Get("/history", handlers.NewHistoryHandler(service, history).GetHistory)
	}

	validationConfig := validation.Config{
		MaxTextLength: cfg.Server.MaxTextLength,
		Logger:        appLogger.Named("validation"),
		Reject:        factCheckHandler.Reject,
	}
	checks := api.Group("", rateLimiter.Middleware(), validation.Middleware(validationConfig))
	checks.Post("/fact-check", factCheckHandler.HandleFactCheck)
	checks.Post("/search", factCheckHandler.HandleSearch)

	wsHandler := handlers.NewWebSocketHandler(service, validation.New(validationConfig), rateLimiter)
	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws/fact-check", websocket.New(wsHandler.HandleConnection))

	app.Use(systemHandler.NotFound)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	health := service.Health()
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.Bool("fact_checker", health.AgentsAvailable.FactChecker),
		zap.Bool("page_analyzer", health.AgentsAvailable.PageAnalyzer),
		zap.Bool("image_processor", health.AgentsAvailable.ImageProcessor),
		zap.Bool("web_search", health.AgentsAvailable.WebSearch),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped", zap.Int64("requests_processed", service.RequestsProcessed()))
}
