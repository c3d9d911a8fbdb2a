package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/laralabs/lara/internal/ai"
	"github.com/laralabs/lara/internal/auth"
	"github.com/laralabs/lara/internal/chat"
	"github.com/laralabs/lara/internal/chatlog"
	"github.com/laralabs/lara/internal/config"
	"github.com/laralabs/lara/internal/httpapi"
	"github.com/laralabs/lara/internal/memory"
	"github.com/laralabs/lara/internal/notify"
	"github.com/laralabs/lara/internal/observability"
	"github.com/laralabs/lara/internal/schedule"
	"github.com/laralabs/lara/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	memoryStore, err := memory.NewStore(ctx, cfg.MemoryBackend, cfg.DatabaseURL, cfg.MemoryEmbeddingDim)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer memoryStore.Close()

	turnStore, err := chatlog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("chat log store init failed: %v", err)
	}
	defer turnStore.Close()

	userStore, err := users.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("user store init failed: %v", err)
	}
	defer userStore.Close()

	scheduleStore, err := schedule.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("schedule store init failed: %v", err)
	}
	defer scheduleStore.Close()

	notificationStore, err := notify.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("notification store init failed: %v", err)
	}
	defer notificationStore.Close()

	verifier, err := auth.NewCachedVerifier(
		auth.NewClient(cfg.AuthServiceURL, cfg.AuthRequestTimeout),
		cfg.EntitlementCacheTTL,
	)
	if err != nil {
		log.Fatalf("auth verifier init failed: %v", err)
	}
	defer verifier.Close()

	var provider ai.Provider
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		provider = ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			MaxTokens:      cfg.ChatMaxTokens,
			Temperature:    cfg.ChatTemperature,
			EmbeddingDim:   cfg.MemoryEmbeddingDim,
			RequestTimeout: cfg.AIRequestTimeout,
		})
		log.Printf("ai provider: openai (%s / %s)", cfg.ChatModel, cfg.EmbeddingModel)
	} else {
		provider = ai.NewMockProvider(cfg.MemoryEmbeddingDim)
		log.Printf("ai provider: mock (no OPENAI_API_KEY configured)")
	}

	orchestrator := chat.NewOrchestrator(memoryStore, turnStore, provider, metrics, cfg.AIRequestTimeout)

	dispatcher := schedule.NewDispatcher(
		scheduleStore,
		notificationStore,
		schedule.LogPublisher{},
		schedule.LogMailer{},
		metrics,
	)

	api := httpapi.New(cfg, verifier, orchestrator, userStore, turnStore, scheduleStore, notificationStore)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	dispatcher.Start(runCtx, cfg.DispatchPollInterval)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
