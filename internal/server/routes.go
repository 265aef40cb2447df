package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/queryline/queryline/internal/composer"
	"github.com/queryline/queryline/internal/config"
	"github.com/queryline/queryline/internal/conversation"
	"github.com/queryline/queryline/internal/database"
	"github.com/queryline/queryline/internal/executor"
	"github.com/queryline/queryline/internal/generator"
	"github.com/queryline/queryline/internal/handler"
	"github.com/queryline/queryline/internal/middleware"
	"github.com/queryline/queryline/internal/pipeline"
	"github.com/queryline/queryline/internal/resolver"
	"github.com/queryline/queryline/internal/schema"
	"github.com/queryline/queryline/internal/validator"
)

func (s *Server) setupRoutes() (http.Handler, error) {
	cfg := s.cfg
	ctx := context.Background()

	// ─── Database backend ───────────────────────────────────────────────────────
	backend, source, err := buildBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.backend = backend

	// ─── Schema knowledge cache ─────────────────────────────────────────────────
	schemas := schema.NewStore(source)
	if _, err := schemas.Rebuild(ctx); err != nil {
		// The server still starts; /health reports the missing cache and a
		// later POST /schema/rebuild can recover.
		log.Warn().Err(err).Msg("initial schema build failed")
	}

	// ─── Pipeline stages ────────────────────────────────────────────────────────
	if cfg.AnthropicAPIKey == "" {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - generation and composition will fail")
	}
	completer := generator.NewAnthropicCompleter(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL)

	patterns, err := generator.LoadPatterns(cfg.Pipeline.PatternFile)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}

	convs := conversation.NewStore(cfg.Pipeline.MaxInteractions)
	res := resolver.New(resolver.Config{
		AmbiguityMargin: cfg.Pipeline.AmbiguityMargin,
		HistoryWindow:   cfg.Pipeline.HistoryWindow,
		Shapes:          cfg.Pipeline.UnambiguousShapes,
	})
	gen := generator.New(completer, patterns, backend.Dialect(), cfg.Pipeline.CompletionRetries)
	val := validator.New(backend)
	exec := executor.New(backend, cfg.Pipeline.PageSize)
	comp := composer.New(completer)

	pipe := pipeline.New(cfg.Pipeline, schemas, convs, res, gen, val, exec, comp)
	s.pipe = pipe

	log.Info().
		Str("backend", backend.Dialect()).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Int("max_workers", cfg.Pipeline.MaxWorkers).
		Int("domain_patterns", len(patterns)).
		Msg("service configuration")

	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("WARNING: auth enabled but no API keys configured - all API requests will be rejected")
	}

	// ─── Handlers ───────────────────────────────────────────────────────────────
	healthH := handler.NewHealthHandler(backend, schemas)
	questionsH := handler.NewQuestionsHandler(pipe)
	conversationsH := handler.NewConversationsHandler(convs, pipe.Status())
	resultsH := handler.NewResultsHandler(exec)
	schemaH := handler.NewSchemaHandler(schemas)

	// ─── Router ─────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)

	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)

	apiMiddleware := []func(http.Handler) http.Handler{
		middleware.RateLimit(cfg.RateLimitPerMinute),
	}
	if cfg.EnableAuth && len(cfg.APIKeys) > 0 {
		apiMiddleware = append(apiMiddleware, middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
	}

	r.Group(func(r chi.Router) {
		for _, m := range apiMiddleware {
			r.Use(m)
		}

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Post("/questions", questionsH.Ask)

			r.Get("/conversations/{id}", conversationsH.Get)
			r.Get("/conversations/{id}/status", conversationsH.Status)

			r.Get("/results/{interaction_id}/pages/{index}", resultsH.Page)

			r.Get("/schema", schemaH.Summary)
			r.Post("/schema/rebuild", schemaH.Rebuild)
		})
	})

	return r, nil
}

// buildBackend constructs the configured database backend and the matching
// schema source: live introspection merged with the business metadata file.
func buildBackend(ctx context.Context, cfg *config.Config) (database.Backend, schema.Source, error) {
	md, err := schema.LoadMetadata(cfg.SchemaMetadataFile)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case "postgres":
		pg, err := database.NewPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres backend: %w", err)
		}
		introspector := schema.NewIntrospector(pg.DB(), "public")
		source := schema.SourceFunc(func(ctx context.Context) (schema.RawSchema, error) {
			raw, err := introspector.Introspect(ctx)
			if err != nil {
				return schema.RawSchema{}, err
			}
			return schema.MergeMetadata(raw, md), nil
		})
		return pg, source, nil

	case "bigquery":
		bq, err := database.NewBigQuery(ctx, cfg.GCPProjectID, cfg.GoogleApplicationCredentials, cfg.BigQueryLocation)
		if err != nil {
			return nil, nil, fmt.Errorf("bigquery backend: %w", err)
		}
		introspector := schema.NewBigQueryIntrospector(bq.Client(), cfg.BigQueryDataset)
		source := schema.SourceFunc(func(ctx context.Context) (schema.RawSchema, error) {
			raw, err := introspector.Introspect(ctx)
			if err != nil {
				return schema.RawSchema{}, err
			}
			return schema.MergeMetadata(raw, md), nil
		})
		return bq, source, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q (want postgres or bigquery)", cfg.Backend)
	}
}
