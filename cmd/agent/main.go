package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"smart-query/internal/adapter/db"
	"smart-query/internal/adapter/embedding"
	"smart-query/internal/adapter/gateway"
	pdfingest "smart-query/internal/adapter/ingest"
	"smart-query/internal/adapter/llm"
	"smart-query/internal/adapter/store"
	"smart-query/internal/adapter/tool"
	"smart-query/internal/adapter/vector"
	"smart-query/internal/domain"
	"smart-query/internal/infra/config"
	"smart-query/internal/infra/logger"
	"smart-query/internal/infra/middleware"
	"smart-query/internal/infra/tracer"
	"smart-query/internal/usecase"
	"smart-query/internal/usecase/ingest"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "encrypt":
			if err := runEncrypt(); err != nil {
				fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`smart-query - conversational marketing data agent

USAGE:
    smart-query [COMMAND] [FLAGS]

COMMANDS:
    encrypt VALUE    Encrypt a secret for use in config.yaml (enc: prefix)

    (no command) - Start the API server with existing config

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: SMARTQUERY_* variables override config
    Secrets:     SMARTQUERY_CONFIG_KEY decrypts enc:-prefixed values

ENDPOINTS:
    POST /invoke        Run a turn, return the full transcript
    POST /invoke_last   Run a turn, return only the final assistant message
    POST /stream        Run a turn, stream deltas as server-sent events
    POST /run-rag       Ingest a PDF document into the knowledge base
    GET  /healthz       Liveness probe`)
}

// runEncrypt encrypts a value with SMARTQUERY_CONFIG_KEY for config files.
func runEncrypt() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: smart-query encrypt VALUE")
	}
	passphrase := os.Getenv("SMARTQUERY_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("SMARTQUERY_CONFIG_KEY must be set")
	}
	encrypted, err := config.EncryptValue(os.Args[2], passphrase)
	if err != nil {
		return err
	}
	fmt.Printf("enc:%s\n", encrypted)
	return nil
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SMARTQUERY_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. LLM providers
	registry, err := buildProviders(cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 4. Thread store
	threads, err := store.New(cfg.Store.Path, log)
	if err != nil {
		return fmt.Errorf("thread store: %w", err)
	}
	defer threads.Close()

	// 5. Tools
	tools := tool.NewRegistry(log)

	var analytics *db.Postgres
	if cfg.Database.DSN != "" {
		analytics, err = db.Connect(ctx, cfg.Database.DSN, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer analytics.Close()

		if err := registerAll(tools,
			tool.NewListTablesTool(analytics, log),
			tool.NewTableColumnsTool(analytics, log),
			tool.NewExecuteSQLTool(analytics, log),
		); err != nil {
			return fmt.Errorf("sql tools: %w", err)
		}
	} else {
		log.Warn("database.dsn not set, SQL tools disabled")
	}

	// 6. Embeddings, vector index, knowledge base, ingestion
	var pipeline *ingest.Pipeline
	if cfg.Vector.Host != "" {
		embedder := buildEmbedder(cfg)
		vectors := vector.NewPineconeStore(cfg.Vector.Host, cfg.Vector.APIKey, cfg.Vector.Index)

		if err := registerAll(tools, tool.NewKnowledgeBaseTool(embedder, vectors, log)); err != nil {
			return fmt.Errorf("knowledge tool: %w", err)
		}

		pipeline = ingest.NewPipeline(pdfingest.NewPDFFetcher(log), embedder, vectors, log,
			ingest.WithSplitter(ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)),
			ingest.WithBatchSize(cfg.Ingest.BatchSize),
		)
	} else {
		log.Warn("vector.host not set, knowledge base and ingestion disabled")
	}

	if cfg.Search.Enabled {
		var backend tool.SearchBackend
		switch cfg.Search.Backend {
		case "searxng":
			backend = tool.NewSearXNGBackend(cfg.Search.BaseURL, log)
		default:
			backend = tool.NewTavilyBackend(cfg.Search.BaseURL, cfg.Search.APIKey, log)
		}
		var searchOpts []tool.WebSearchOption
		if cfg.Search.RateLimitPerMin > 0 {
			searchOpts = append(searchOpts, tool.WithSearchRateLimit(cfg.Search.RateLimitPerMin, time.Minute))
		}
		if err := registerAll(tools, tool.NewWebSearchTool(backend, cfg.Search.CacheTTL, log, searchOpts...)); err != nil {
			return fmt.Errorf("search tool: %w", err)
		}
	}

	// 7. Prompt budget guard
	var guard *usecase.PromptGuard
	if counter, err := llm.NewTiktokenCounter(""); err != nil {
		log.Warn("token counter unavailable, prompt budget checks disabled", "error", err)
	} else {
		guard = usecase.NewPromptGuard(usecase.PromptGuardConfig{
			MaxTokens: cfg.Turn.MaxTokens,
		}, counter, log)
	}

	// 8. Turn orchestrator
	locker := usecase.NewThreadLocker()
	orchestrator := usecase.NewOrchestrator(usecase.TurnDeps{
		Providers: registry,
		Tools:     tools,
		Store:     threads,
		Locker:    locker,
		Guard:     guard,
		Logger:    log,
	})

	// 9. HTTP gateway
	deps := gateway.HandlerDeps{
		Runner:   orchestrator,
		Tools:    tools,
		Locker:   locker,
		Auth:     buildAuth(cfg),
		TurnBase: turnBase(cfg),
		Logger:   log,
	}
	if pipeline != nil {
		deps.Ingest = pipeline
	}

	var handler http.Handler = gateway.NewMux(deps)
	if cfg.Server.RateLimit.Enabled {
		limit := middleware.RateLimitWithConfig(ctx, middleware.RateLimitConfig{
			RequestsPerMin: cfg.Server.RateLimit.RequestsPerMin,
			BurstSize:      cfg.Server.RateLimit.BurstSize,
			TrustedProxies: cfg.Server.RateLimit.TrustedProxies,
		})
		handler = limit(handler)
	}
	handler = middleware.SecurityHeaders(handler)

	srv := gateway.NewServer(cfg.Server.Addr, handler, log)

	log.Info("smart-query starting",
		"addr", cfg.Server.Addr,
		"provider", cfg.LLM.DefaultProvider,
		"tools", len(tools.List()),
		"ingest", pipeline != nil,
		"auth", deps.Auth != nil,
	)

	return srv.Start(ctx)
}

// buildProviders constructs the LLM registry from config, wrapping each
// provider in a circuit breaker when enabled.
func buildProviders(cfg *config.Config, log *slog.Logger) (*llm.Registry, error) {
	if len(cfg.LLM.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured; set llm.providers in config.yaml " +
			"or SMARTQUERY_LLM_PROVIDER_<NAME>_API_KEY")
	}

	registry := llm.NewRegistry()
	for _, pc := range cfg.LLM.Providers {
		var provider domain.LLMProvider
		switch pc.Type {
		case "openai", "":
			provider = llm.NewOpenAIProvider(pc, log)
		case "anthropic":
			provider = llm.NewAnthropicProvider(pc, log)
		default:
			return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
		}

		if cfg.LLM.CircuitBreaker.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{
				MaxFailures: cfg.LLM.CircuitBreaker.MaxFailures,
				Timeout:     cfg.LLM.CircuitBreaker.Timeout,
				Interval:    cfg.LLM.CircuitBreaker.Interval,
			}, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	if _, err := registry.Get(cfg.LLM.DefaultProvider); err != nil {
		return nil, fmt.Errorf("default provider %q: %w", cfg.LLM.DefaultProvider, err)
	}
	return registry, nil
}

// buildEmbedder constructs the embedding provider with an LRU query cache.
func buildEmbedder(cfg *config.Config) domain.EmbeddingProvider {
	var opts []embedding.OpenAIOption
	if cfg.Embedding.Model != "" {
		opts = append(opts, embedding.WithOpenAIModel(cfg.Embedding.Model))
	}
	if cfg.Embedding.Dimensions > 0 {
		opts = append(opts, embedding.WithOpenAIDimensions(cfg.Embedding.Dimensions))
	}
	if cfg.Embedding.BaseURL != "" {
		opts = append(opts, embedding.WithOpenAIBaseURL(cfg.Embedding.BaseURL))
	}

	var embedder domain.EmbeddingProvider = embedding.NewOpenAIProvider(cfg.Embedding.APIKey, opts...)
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}
	return embedder
}

// buildAuth constructs the token authenticator, or nil when auth is disabled.
func buildAuth(cfg *config.Config) gateway.Authenticator {
	if cfg.Server.Auth.Type != "static" || len(cfg.Server.Auth.Tokens) == 0 {
		return nil
	}
	entries := make([]struct {
		Token string
		Name  string
	}, len(cfg.Server.Auth.Tokens))
	for i, tc := range cfg.Server.Auth.Tokens {
		entries[i].Token = tc.Token
		entries[i].Name = tc.Name
	}
	return gateway.NewStaticTokenAuth(entries)
}

// turnBase derives the per-turn defaults every request starts from.
func turnBase(cfg *config.Config) usecase.TurnConfig {
	return usecase.TurnConfig{
		ModelRef:       cfg.LLM.DefaultProvider,
		PromptTemplate: cfg.Turn.SystemPrompt,
		WindowSize:     cfg.Turn.WindowSize,
		MaxToolRounds:  cfg.Turn.MaxToolRounds,
		ToolTimeout:    cfg.Turn.ToolTimeout,
		MaxTokens:      cfg.Turn.MaxTokens,
		Temperature:    cfg.Turn.Temperature,
		ToolSettings: domain.ToolSettings{
			DatabaseSchema:   cfg.Database.Schema,
			Namespace:        cfg.Vector.Namespace,
			MaxSearchResults: cfg.Search.MaxResults,
			TopK:             cfg.Vector.TopK,
		},
	}
}

// registerAll registers tools, stopping at the first failure. The registry
// wraps each tool with JSON schema validation.
func registerAll(registry *tool.Registry, tools ...domain.Tool) error {
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
	}
	return nil
}
