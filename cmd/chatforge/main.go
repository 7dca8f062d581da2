package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chatforge/chatforge/internal/agent"
	"github.com/chatforge/chatforge/internal/config"
	"github.com/chatforge/chatforge/internal/gateway"
	"github.com/chatforge/chatforge/internal/history"
	"github.com/chatforge/chatforge/internal/memory"
	"github.com/chatforge/chatforge/internal/provider"
	"github.com/chatforge/chatforge/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration failed", zap.Error(err))
	}
	logger.Info("starting chatforge", zap.String("port", cfg.Port))

	st, err := store.NewBadgerGateway(cfg.BadgerPath)
	if err != nil {
		logger.Fatal("badger store failed", zap.Error(err))
	}
	defer st.Close()

	audit, err := store.NewSQLiteAuditLog(cfg.AuditDBPath)
	if err != nil {
		logger.Fatal("audit log failed", zap.Error(err))
	}
	defer audit.Close()

	memCfg := memory.DefaultConfig()
	memCfg.RedisAddr = cfg.RedisAddr
	memCfg.RedisPassword = cfg.RedisPassword
	memCfg.RedisDB = cfg.RedisDB
	memCfg.DgraphAlphaURL = cfg.DgraphAlphaURL

	layers, err := memory.NewRedisLayerStore(memCfg)
	if err != nil {
		logger.Fatal("redis layer store failed", zap.Error(err))
	}
	defer layers.Close()

	var codebase memory.CodebaseStore
	if cfg.DgraphAlphaURL != "" {
		codebase, err = memory.NewDgraphCodebaseStore(cfg.DgraphAlphaURL)
		if err != nil {
			logger.Fatal("dgraph codebase store failed", zap.Error(err))
		}
	}

	limiter := provider.NewRateLimiter(cfg.ProviderRPS, cfg.ProviderBurst)
	// Image calls are slow and expensive, so they get their own bucket.
	limiter.RegisterModel(cfg.ImageModel, cfg.ImageRPS, cfg.ImageBurst)
	completer := provider.NewClient(&provider.Config{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
	}, limiter, logger)

	retriever := memory.NewRetriever(layers, codebase, memCfg, logger)
	saver := memory.NewSaver(layers, codebase, logger)
	extractor := memory.NewExtractor(completer)
	summarizer := history.NewSummarizer(completer, cfg.HistoryTurnBudget, cfg.HistoryKeepTurns, logger)

	build := agent.NewBuildAgent(completer, logger)
	router := agent.NewRouter(agent.RouterConfig{
		Chat:       agent.NewChatAgent(completer, logger),
		Plan:       agent.NewPlanMemoryAgent(completer, saver, retriever, agent.SinkProjectBlob, logger),
		Build:      build,
		Thinker:    agent.NewThinkerAgent(completer, logger),
		SuperAgent: agent.NewSuperAgent(completer, logger),
		ProMax:     agent.NewProMaxAgent(completer, logger),
		Autonomous: agent.NewAutonomousAgent(completer, completer, st, saver, cfg.ImageModel, logger),
		Summarizer: summarizer,
		Retriever:  retriever,
		Audit:      audit,
		Logger:     logger,
	})
	executor := agent.NewPlanExecutor(build, st, logger)

	service := gateway.NewService(router, executor, st, extractor, saver, cfg.DispatchTimeout, logger)
	handler := gateway.NewHandler(service, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("addr", server.Addr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
