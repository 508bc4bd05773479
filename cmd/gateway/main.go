package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"solmate/internal/adapter/cache"
	"solmate/internal/adapter/gateway"
	"solmate/internal/adapter/llm"
	"solmate/internal/domain"
	"solmate/internal/infra/config"
	"solmate/internal/infra/logger"
	"solmate/internal/infra/tracer"
	"solmate/internal/usecase"
	"solmate/internal/usecase/nlp"
)

func main() {
	configPath := flag.String("config", "solmate.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. LLM providers
	registry, err := initProviders(cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 4. Response cache with periodic sweep
	responseCache := cache.New(cfg.Cache, log)
	var sweeper *cron.Cron
	if cfg.Cache.Enabled && cfg.Cache.SweepInterval > 0 {
		sweeper = cron.New()
		_, err := sweeper.AddFunc(fmt.Sprintf("@every %s", cfg.Cache.SweepInterval), func() {
			responseCache.Sweep()
		})
		if err != nil {
			return fmt.Errorf("cache sweep schedule: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
		log.Info("cache sweep scheduled", "interval", cfg.Cache.SweepInterval)
	}

	// 5. Usecase layer
	metrics := usecase.NewMetrics()
	dispatcher := usecase.NewDispatcher(registry, responseCache, metrics, cfg.LLM, log)
	relay := usecase.NewRelay(registry, metrics, cfg.LLM, log)
	orchestrator := usecase.NewOrchestrator(nlp.NewClassifier(log), usecase.NewPromptBuilder(), dispatcher, relay, log)

	// 6. HTTP gateway
	srv := gateway.NewServer(gateway.HandlerDeps{
		Chat:    orchestrator,
		Metrics: metrics,
		Cache:   responseCache,
		Logger:  log,
	}, cfg.Gateway.Addr)

	// 7. Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("solmate gateway starting",
		"addr", cfg.Gateway.Addr,
		"default_provider", cfg.LLM.DefaultProvider,
		"cache_enabled", cfg.Cache.Enabled,
	)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	log.Info("solmate gateway stopped")
	return nil
}

// initProviders builds every configured backend, wraps it with a circuit
// breaker when enabled, and registers it with its public profile.
func initProviders(cfg *config.Config, log *slog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		provider, err := createProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}

		if cbCfg.Enabled {
			provider = llm.WrapWithBreaker(provider, cbCfg, log)
		}

		profile := domain.ProviderProfile{
			ID:              pc.Name,
			DisplayName:     pc.DisplayName,
			DefaultModel:    pc.Model,
			AvailableModels: pc.AvailableModels,
			Endpoint:        pc.BaseURL,
			RequiresKey:     !pc.KeyOptional,
			HasKey:          pc.APIKey != "",
		}
		if err := registry.Register(provider, profile); err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	if _, err := registry.Get(cfg.LLM.DefaultProvider); err != nil {
		return nil, fmt.Errorf("default provider: %w", err)
	}

	return registry, nil
}

func createProvider(pc config.ProviderConfig, log *slog.Logger) (domain.Generator, error) {
	switch pc.Type {
	case "openai":
		return llm.NewOpenAIProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	case "mistral":
		return llm.NewMistralProvider(pc, log), nil
	case "openai-compat":
		switch pc.Name {
		case "deepseek":
			return llm.NewDeepSeekProvider(pc, log), nil
		case "llama":
			return llm.NewLlamaProvider(pc, log), nil
		default:
			return llm.NewOpenAIProvider(pc, log), nil
		}
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}
