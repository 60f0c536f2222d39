package api

import (
	"fmt"
	"net/http"

	"github.com/ellenlabs/ellen/internal/api/handler"
	customMiddleware "github.com/ellenlabs/ellen/internal/api/middleware"
	"github.com/ellenlabs/ellen/internal/config"
	"github.com/ellenlabs/ellen/internal/llm"
	"github.com/ellenlabs/ellen/internal/llm/anthropic"
	"github.com/ellenlabs/ellen/internal/llm/deepseek"
	"github.com/ellenlabs/ellen/internal/llm/gemini"
	"github.com/ellenlabs/ellen/internal/llm/ollama"
	"github.com/ellenlabs/ellen/internal/llm/openai"
	"github.com/ellenlabs/ellen/internal/repository/postgres"
	"github.com/ellenlabs/ellen/internal/repository/redis"
	"github.com/ellenlabs/ellen/internal/security"
	"github.com/ellenlabs/ellen/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, db *postgres.DB, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	// Global middleware. No chi timeout: the chat stream must be allowed to
	// run as long as the server's write timeout permits.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Session-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize security components
	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	var encryptor *security.Encryptor
	if cfg.Security.EncryptionKey != "" {
		var err error
		encryptor, err = security.NewEncryptorFromBase64(cfg.Security.EncryptionKey)
		if err != nil {
			log.Error().Err(err).Msg("invalid encryption key, project credentials disabled")
		}
	}

	// Initialize repositories
	sessionRepo := postgres.NewSessionRepository(db.Pool)
	threadRepo := postgres.NewThreadRepository(db.Pool)
	materialRepo := postgres.NewMaterialRepository(db.Pool)
	sourceRepo := postgres.NewSourceRepository(db.Pool)
	projectRepo := postgres.NewProjectRepository(db.Pool)

	// Initialize rate limiter and retrieval cache
	rateLimiter := redis.NewRateLimiter(
		redisClient,
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst,
	)
	retrievalCache := redis.NewRetrievalCache(redisClient, cfg.Retrieval.CacheTTL)

	// Initialize LLM Router with providers
	llmRouter := llm.NewRouter(cfg.LLM.DefaultProvider)
	registerProviders(llmRouter, cfg)

	// Initialize services
	authService := service.NewAuthService(cfg.Auth.ServiceAPIKey, jwtManager)
	projectService := service.NewProjectService(projectRepo, encryptor)
	chatService := service.NewChatService(
		llmRouter,
		sessionRepo,
		threadRepo,
		materialRepo,
		sourceRepo,
		projectRepo,
		retrievalCache,
		encryptor,
		service.Settings{
			MaxMaterials:   cfg.Retrieval.MaxMaterials,
			MaxSources:     cfg.Retrieval.MaxSources,
			HistoryThreads: cfg.Chat.HistoryThreads,
			Suggestions:    cfg.Chat.Suggestions,
			TitleModel:     cfg.LLM.TitleModel,
		},
	)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	sessionHandler := handler.NewSessionHandler(chatService)
	projectHandler := handler.NewProjectHandler(projectService)

	// Auth middleware
	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager)
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(rateLimiter)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(db, redisClient))

		// Auth routes (public)
		r.Post("/auth/token", authHandler.Token)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit)

			// LLM providers
			r.Get("/llm-providers", handler.ListProviders(llmRouter))

			// Cache management
			r.Post("/cache/flush", handler.FlushCache(retrievalCache))

			// Chat streaming
			r.Post("/chat/stream", chatHandler.Stream)

			// Session routes
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Post("/", sessionHandler.Create)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", sessionHandler.Get)
					r.Delete("/", sessionHandler.Delete)
				})
			})

			// Project routes
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.Post("/", projectHandler.Create)

				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", projectHandler.Get)
					r.Patch("/", projectHandler.Update)
					r.Delete("/", projectHandler.Delete)
				})
			})
		})
	})

	return r
}

// registerProviders registers every configured completion provider, plus
// factories so projects can bring their own credentials.
func registerProviders(llmRouter *llm.Router, cfg *config.Config) {
	log.Info().Msgf("Initializing LLM providers. Default: %s", cfg.LLM.DefaultProvider)

	if cfg.LLM.Ollama.Host != "" {
		log.Info().Str("host", cfg.LLM.Ollama.Host).Msg("Registering Ollama provider")
		llmRouter.RegisterProvider(ollama.NewProvider(cfg.LLM.Ollama.Host, cfg.LLM.Ollama.DefaultModel))
	}
	if cfg.LLM.OpenAI.APIKey != "" {
		llmRouter.RegisterProvider(openai.NewProvider(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.Model))
	}
	if cfg.LLM.Anthropic.APIKey != "" {
		llmRouter.RegisterProvider(anthropic.NewProvider(cfg.LLM.Anthropic.APIKey, cfg.LLM.Anthropic.Model))
	}
	if cfg.LLM.DeepSeek.APIKey != "" {
		llmRouter.RegisterProvider(deepseek.NewProvider(cfg.LLM.DeepSeek.APIKey, cfg.LLM.DeepSeek.Model))
	}
	if cfg.LLM.Gemini.APIKey != "" {
		llmRouter.RegisterProvider(gemini.NewProvider(cfg.LLM.Gemini))
	} else {
		log.Warn().Msg("Gemini API Key is empty, skipping registration")
	}

	llmRouter.RegisterFactory("openai", keyFactory(func(key string) llm.Provider {
		return openai.NewProvider(key, cfg.LLM.OpenAI.Model)
	}))
	llmRouter.RegisterFactory("anthropic", keyFactory(func(key string) llm.Provider {
		return anthropic.NewProvider(key, cfg.LLM.Anthropic.Model)
	}))
	llmRouter.RegisterFactory("deepseek", keyFactory(func(key string) llm.Provider {
		return deepseek.NewProvider(key, cfg.LLM.DeepSeek.Model)
	}))
	llmRouter.RegisterFactory("gemini", keyFactory(func(key string) llm.Provider {
		geminiCfg := cfg.LLM.Gemini
		geminiCfg.APIKey = key
		return gemini.NewProvider(geminiCfg)
	}))
}

// keyFactory adapts a per-key constructor to the router's factory shape.
func keyFactory(build func(key string) llm.Provider) llm.ProviderFactory {
	return func(config map[string]any) (llm.Provider, error) {
		key, _ := config["api_key"].(string)
		if key == "" {
			return nil, fmt.Errorf("api_key is required")
		}
		return build(key), nil
	}
}
