package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/agent"
	"github.com/duitwise/duitwise-engine/pkg/auth"
	"github.com/duitwise/duitwise-engine/pkg/config"
	"github.com/duitwise/duitwise-engine/pkg/crypto"
	"github.com/duitwise/duitwise-engine/pkg/database"
	"github.com/duitwise/duitwise-engine/pkg/handlers"
	"github.com/duitwise/duitwise-engine/pkg/llm"
	"github.com/duitwise/duitwise-engine/pkg/logging"
	"github.com/duitwise/duitwise-engine/pkg/middleware"
	"github.com/duitwise/duitwise-engine/pkg/ratelimit"
	"github.com/duitwise/duitwise-engine/pkg/repositories"
	"github.com/duitwise/duitwise-engine/pkg/retrievers"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
		zap.Bool("redis_enabled", cfg.Redis.Host != ""))

	ctx := context.Background()

	db, err := database.Connect(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.RunMigrations {
		sqlDB, err := sql.Open("pgx", cfg.Database.URL())
		if err != nil {
			logger.Fatal("Failed to open migration connection", zap.Error(err))
		}
		if err := database.Migrate(sqlDB, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		_ = sqlDB.Close()
	}

	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to create credential encryptor", zap.Error(err))
	}

	// Redis is optional. With it the rate limit window is shared across
	// replicas; without it each replica counts on its own.
	var limiter ratelimit.RateLimiter
	window := time.Duration(cfg.Agent.RateLimitWindow) * time.Second
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.Agent.RateLimitMax, window)
		logger.Info("Using redis rate limiter")
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.Agent.RateLimitMax, window)
		logger.Info("Using in-memory rate limiter")
	}

	conversationRepo := repositories.NewConversationRepository(db.Pool)
	settingsRepo := repositories.NewAISettingsRepository(db.Pool, encryptor)
	categoryRepo := repositories.NewCategoryRepository(db.Pool)

	registry := retrievers.NewRegistry(db, logger)
	analyzer := agent.NewAnalyzer(logger)
	assembler := agent.NewAssembler(registry, logger)
	composer, err := agent.NewComposer()
	if err != nil {
		logger.Fatal("Failed to load prompt templates", zap.Error(err))
	}
	factory := llm.NewClientFactory(logger)

	orchestrator := agent.NewOrchestrator(analyzer, assembler, composer, factory, agent.Defaults{
		Temperature: cfg.Agent.Temperature,
		MaxTokens:   cfg.Agent.MaxTokens,
	}, logger)
	streamer := agent.NewStreamer(cfg.Agent.ChunkSize, time.Duration(cfg.Agent.ChunkDelayMs)*time.Millisecond)

	authMiddleware := auth.NewMiddleware(cfg.Auth.JWTSecret, cfg.Auth.EnableVerification, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	agentHandler := handlers.NewAgentHandler(
		orchestrator, streamer,
		conversationRepo, settingsRepo, categoryRepo,
		limiter, logger)
	agentHandler.RegisterRoutes(mux, authMiddleware)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting duitwise-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
