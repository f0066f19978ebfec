package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talekeeper/npc-agent/internal/config"
	"github.com/talekeeper/npc-agent/internal/engine"
	"github.com/talekeeper/npc-agent/internal/handlers"
	"github.com/talekeeper/npc-agent/internal/knowledge"
	"github.com/talekeeper/npc-agent/internal/logger"
	"github.com/talekeeper/npc-agent/internal/middleware"
	"github.com/talekeeper/npc-agent/internal/quota"
	"github.com/talekeeper/npc-agent/internal/search"
	"github.com/talekeeper/npc-agent/internal/services"
	"github.com/talekeeper/npc-agent/internal/storage"
	"github.com/talekeeper/npc-agent/pkg/tier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting NPC Agent API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"chat_model", cfg.ChatModel)

	if cfg.OpenAIAPIKey == "" {
		log.Error("OpenAI API key is required")
		os.Exit(1)
	}

	tierTable := tier.Default()
	if err := tierTable.Validate(); err != nil {
		log.Error("Invalid tier table", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("Invalid Redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)

	store := storage.NewRedisStorageWithClient(redisClient, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := store.Ping(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	llmService := services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel, log)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := llmService.InitModel(ctx, cfg.ChatModel); err != nil {
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.ChatModel)
		os.Exit(1)
	}

	ttsService := services.NewElevenLabsService(cfg.ElevenLabsAPIKey, log)
	embedder := services.NewEmbeddingService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, log)

	verifier, err := services.NewSupabaseVerifier(cfg.SupabaseURL, cfg.SupabaseServiceKey, log)
	if err != nil {
		log.Error("Failed to initialize identity verifier", "error", err)
		os.Exit(1)
	}

	searchStore := search.NewStore(embedder, log)
	aggregator := knowledge.NewAggregator(store, searchStore, log)
	governor := quota.NewGovernor(quota.NewRedisCounterStore(redisClient), store, tierTable, log)
	turnEngine := engine.NewEngine(store, governor, aggregator, llmService, ttsService, cfg.HistoryLimit, log)

	api := http.NewServeMux()

	turnHandler := handlers.NewTurnHandler(turnEngine, log)
	api.Handle("/v1/turn", turnHandler)

	characterHandler := handlers.NewCharacterHandler(store, log)
	api.Handle("/v1/characters", characterHandler)
	api.Handle("/v1/characters/", characterHandler)

	memoryHandler := handlers.NewMemoryHandler(store, governor, log)
	api.Handle("/v1/memories", memoryHandler)

	loreHandler := handlers.NewLoreHandler(store, searchStore, governor, log)
	api.Handle("/v1/lore", loreHandler)

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(store, log))
	mux.Handle("/v1/", middleware.Authenticate(verifier, log, api))

	handler := middleware.RequestLogger(log, mux)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}
