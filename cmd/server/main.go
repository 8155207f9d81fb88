package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/vokinneberg/ai-query-api/internal/config"
	"github.com/vokinneberg/ai-query-api/internal/llm"
	"github.com/vokinneberg/ai-query-api/internal/logger"
	"github.com/vokinneberg/ai-query-api/internal/metrics"
	"github.com/vokinneberg/ai-query-api/internal/rag"
	"github.com/vokinneberg/ai-query-api/internal/search"
	"github.com/vokinneberg/ai-query-api/internal/telemetry"
	"github.com/vokinneberg/ai-query-api/internal/version"

	httphandler "github.com/vokinneberg/ai-query-api/internal/http"
)

// searchBackend is a search client owning a connection.
type searchBackend interface {
	rag.Searcher
	Close() error
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	tel, err := telemetry.Setup(telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		log.Fatal("Failed to set up telemetry", zap.Error(err))
	}
	tracer := tel.Tracer()

	metrics.Register()

	log.Info("Starting AI query API",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", cfg.Env),
		zap.Bool("telemetry", tel.Enabled()),
	)

	// Startup phase: handles built here are shared read-only by every request.
	startCtx, startSpan := tracer.Start(context.Background(), "app_startup")

	credential := sync.OnceValues(func() (azcore.TokenCredential, error) {
		return azidentity.NewDefaultAzureCredential(nil)
	})

	llmClient, err := buildLLMClient(cfg.OpenAI, credential)
	if err != nil {
		log.Error("Failed to initialize completion client", zap.Error(err))
	}

	var embedder search.Embedder
	if llmClient != nil {
		embedder = llmClient
	}
	backend, err := buildSearchBackend(cfg.Search, embedder, credential)
	if err != nil {
		log.Error("Failed to initialize search client", zap.Error(err), zap.String("driver", cfg.Search.Driver))
	}

	// Nil interfaces, never typed nils, mark a backend as unavailable.
	var searcher rag.Searcher
	if backend != nil {
		searcher = backend
		log.Info("Initialized search client", zap.String("driver", cfg.Search.Driver))
	}
	var completer rag.Completer
	if llmClient != nil {
		completer = llmClient
		log.Info("Initialized completion client", zap.String("model", cfg.OpenAI.Model))
	}

	pipeline, err := rag.NewPipeline(searcher, completer, rag.Options{
		Model:             cfg.OpenAI.Model,
		MaxTokens:         int64(cfg.RAG.MaxTokens),
		ContextFragments:  cfg.RAG.ContextFragments,
		SearchTimeout:     time.Duration(cfg.RAG.SearchTimeoutSec) * time.Second,
		GenerationTimeout: time.Duration(cfg.RAG.GenerationTimeoutSec) * time.Second,
	}, log, tracer)
	if err != nil {
		startSpan.End()
		log.Fatal("Failed to create query pipeline", zap.Error(err))
	}

	availability := pipeline.Health(startCtx)
	startSpan.SetAttributes(
		attribute.Bool("search.available", availability.Search),
		attribute.Bool("generation.available", availability.Generation),
	)
	startSpan.End()
	if availability.Status() != "healthy" {
		log.Warn("Starting in degraded mode",
			zap.Bool("search", availability.Search),
			zap.Bool("generation", availability.Generation),
		)
	}

	handler := httphandler.NewHandlers(pipeline, log)
	r := httphandler.NewRouter(handler, log)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	go func() {
		log.Info("Server running", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSec)*time.Second)
	defer cancel()

	_, stopSpan := tracer.Start(ctx, "app_shutdown")
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if backend != nil {
		if err := backend.Close(); err != nil {
			log.Error("Failed to close search client", zap.Error(err))
		}
	}
	stopSpan.End()

	if err := tel.Shutdown(ctx); err != nil {
		log.Error("Failed to shutdown telemetry", zap.Error(err))
	}

	log.Info("Server exited")
}

// buildLLMClient returns nil without an error when no completion endpoint is configured.
func buildLLMClient(cfg config.OpenAIConfig, credential func() (azcore.TokenCredential, error)) (*llm.Client, error) {
	if cfg.AzureEndpoint == "" && cfg.APIKey == "" {
		return nil, nil
	}

	llmCfg := llm.Config{
		AzureEndpoint:   cfg.AzureEndpoint,
		AzureAPIVersion: cfg.AzureAPIVersion,
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		EmbedModel:      cfg.EmbedModel,
	}
	if cfg.AzureEndpoint != "" && cfg.APIKey == "" {
		cred, err := credential()
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}
		llmCfg.Credential = cred
	}

	return llm.NewClient(llmCfg)
}

// buildSearchBackend returns nil without an error when the selected driver has no endpoint.
func buildSearchBackend(cfg config.SearchConfig, embedder search.Embedder, credential func() (azcore.TokenCredential, error)) (searchBackend, error) {
	switch cfg.Driver {
	case config.SearchDriverQdrant:
		if cfg.QdrantHost == "" {
			return nil, nil
		}
		if embedder == nil {
			return nil, errors.New("qdrant search needs the completion client to embed queries")
		}
		client, err := search.NewQdrantClient(search.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.QdrantCollection,
		}, embedder)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		if cfg.AzureEndpoint == "" {
			return nil, nil
		}
		azCfg := search.AzureConfig{
			Endpoint:   cfg.AzureEndpoint,
			Index:      cfg.AzureIndex,
			APIVersion: cfg.AzureAPIVersion,
			APIKey:     cfg.AzureAPIKey,
		}
		if cfg.AzureAPIKey == "" {
			cred, err := credential()
			if err != nil {
				return nil, fmt.Errorf("failed to create azure credential: %w", err)
			}
			azCfg.Credential = cred
		}
		client, err := search.NewAzureClient(azCfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
