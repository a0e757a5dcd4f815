package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource/all"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/audit"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/glossary"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/handlers"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/llm"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/mcp"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/middleware"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ekaya-dbagent stopped", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("datasource_type", cfg.Datasource.Type),
		zap.String("datasource_host", cfg.Datasource.ResolvedHost()),
		zap.String("datasource_database", cfg.Datasource.Database),
		zap.String("datasource_user", cfg.Datasource.EffectiveUser()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("agent_mode", cfg.Agent.Mode),
		zap.Int("agent_max_rows", cfg.Agent.MaxRows))

	g, err := glossary.Load(cfg.Agent.GlossaryPath)
	if err != nil {
		return err
	}

	ds, err := datasource.Open(ctx, &cfg.Datasource, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Warn("Failed to close datasource", zap.String("error", logging.SanitizeError(err)))
		}
	}()

	llmClient, err := llm.NewClientFromConfig(cfg.LLM, logger)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	auditor := audit.NewSecurityAuditor(logger)
	defaultMode := models.Mode(cfg.Agent.Mode)
	renderLimits := models.RenderLimits{
		MaxRows:       cfg.Agent.PromptMaxRows,
		MaxColumns:    cfg.Agent.PromptMaxColumns,
		MaxCellLength: cfg.Agent.PromptMaxCellLength,
	}

	pipeline := services.NewPipeline(services.PipelineDeps{
		Introspector: services.NewSchemaIntrospector(ds, g, services.SchemaIntrospectorOptions{
			IncludeSchemas: cfg.Agent.IncludeSchemaList(),
			ExcludeSchemas: cfg.Agent.ExcludeSchemaList(),
			MaxTables:      cfg.Agent.MaxTables,
			SampleRows:     cfg.Agent.SampleRows,
			SampleTimeout:  cfg.Agent.StatementTimeout,
		}, logger),
		Generator: services.NewQueryGenerator(llmClient, services.QueryGeneratorOptions{
			Temperature:          cfg.LLM.Temperature,
			TopK:                 cfg.Agent.TopK,
			MaxCellLength:        cfg.Agent.PromptMaxCellLength,
			ScreenQuestions:      cfg.Agent.ScreenQuestions,
			CheckTableReferences: cfg.Agent.CheckTableReferences,
			Auditor:              auditor,
		}, logger),
		Executor: services.NewQueryExecutor(ds, auditor, logger),
		Synthesizer: services.NewAnswerSynthesizer(llmClient, services.AnswerSynthesizerOptions{
			Temperature:  cfg.LLM.Temperature,
			RenderLimits: renderLimits,
		}, logger),
		Metrics: m,
	}, services.PipelineOptions{
		DefaultMode: defaultMode,
		Limits: models.Limits{
			MaxRows:          cfg.Agent.MaxRows,
			StatementTimeout: cfg.Agent.StatementTimeout,
		},
		MaxRetries: cfg.Agent.MaxRetries,
	}, logger)

	requestLogger := middleware.RequestLogger(logger.Named("http"))
	wrap := func(route string) func(http.Handler) http.Handler {
		return func(h http.Handler) http.Handler {
			return middleware.Chain(h, middleware.RequestID, requestLogger, middleware.Instrument(m, route))
		}
	}

	mux := http.NewServeMux()
	handlers.NewDBAgentHandler(pipeline, defaultMode, renderLimits, logger).RegisterRoutes(mux, wrap("/db_agent"))
	handlers.NewHealthHandler(cfg, ds, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler(prometheus.DefaultGatherer))

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("ekaya-dbagent", cfg.Version, logger)
		mcp.RegisterAskDatabaseTool(mcpServer, mcp.AskDatabaseDeps{
			Pipeline:    pipeline,
			DefaultMode: defaultMode,
			Logger:      logger,
		})
		handlers.NewMCPHandler(mcpServer, logger.Named("mcp")).RegisterRoutes(mux, wrap("/mcp"))
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-dbagent",
			zap.String("addr", cfg.Addr()),
			zap.String("version", cfg.Version),
			zap.Int("pid", os.Getpid()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return err
	}
	return nil
}
