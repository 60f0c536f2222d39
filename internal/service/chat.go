package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/llm"
	"github.com/ellenlabs/ellen/internal/repository/redis"
	"github.com/ellenlabs/ellen/internal/security"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultSessionTitle = "New Chat"

// EventSink receives the events of one streamed answer, in emission order.
// stream.Writer satisfies it on the HTTP side.
type EventSink interface {
	Token(delta string) error
	Sources(sources []domain.Source) error
	Materials(materials []domain.Material) error
	Suggestions(suggestions []string) error
	Error(message string) error
}

// RetrievalCache caches retrieval bundles per query.
type RetrievalCache interface {
	Get(ctx context.Context, query string) (*redis.RetrievalBundle, error)
	Set(ctx context.Context, query string, bundle *redis.RetrievalBundle) error
}

// Settings are the chat-behavior knobs lifted from configuration.
type Settings struct {
	MaxMaterials   int
	MaxSources     int
	HistoryThreads int
	Suggestions    bool
	TitleModel     string
}

// ChatService orchestrates one streamed answer: session bookkeeping,
// retrieval, provider routing, and durable persistence of the finished
// thread.
type ChatService struct {
	llmRouter    *llm.Router
	sessionRepo  domain.SessionRepository
	threadRepo   domain.ThreadRepository
	materialRepo domain.MaterialRepository
	sourceRepo   domain.SourceRepository
	projectRepo  domain.ProjectRepository
	cache        RetrievalCache
	encryptor    *security.Encryptor
	settings     Settings
}

// NewChatService creates a new chat service
func NewChatService(
	llmRouter *llm.Router,
	sessionRepo domain.SessionRepository,
	threadRepo domain.ThreadRepository,
	materialRepo domain.MaterialRepository,
	sourceRepo domain.SourceRepository,
	projectRepo domain.ProjectRepository,
	cache RetrievalCache,
	encryptor *security.Encryptor,
	settings Settings,
) *ChatService {
	if settings.MaxMaterials <= 0 {
		settings.MaxMaterials = 5
	}
	if settings.MaxSources <= 0 {
		settings.MaxSources = 5
	}
	if settings.HistoryThreads <= 0 {
		settings.HistoryThreads = 10
	}
	return &ChatService{
		llmRouter:    llmRouter,
		sessionRepo:  sessionRepo,
		threadRepo:   threadRepo,
		materialRepo: materialRepo,
		sourceRepo:   sourceRepo,
		projectRepo:  projectRepo,
		cache:        cache,
		encryptor:    encryptor,
		settings:     settings,
	}
}

// EnsureSession resolves the target session for a chat request, creating one
// when the request carries no session ID. The request is updated in place.
func (s *ChatService) EnsureSession(ctx context.Context, req *domain.ChatRequest) (*domain.Session, error) {
	if req.SessionID != uuid.Nil {
		session, err := s.sessionRepo.Get(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		return session, nil
	}

	now := time.Now()
	session := &domain.Session{
		ID:        uuid.New(),
		ProjectID: req.ProjectID,
		Title:     defaultSessionTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	req.SessionID = session.ID
	return session, nil
}

// StreamAnswer answers one user message, emitting events into sink as they
// are produced. The finished thread is persisted before returning. Upstream
// generation failures are reported as error events, not returned; only a
// broken sink or cancelled context yields an error.
func (s *ChatService) StreamAnswer(ctx context.Context, req domain.ChatRequest, sink EventSink) error {
	sessionID := req.SessionID
	startTime := time.Now()

	// Retrieval is best effort: a degraded answer without context beats no
	// answer at all.
	bundle := s.retrieve(ctx, req.Message)
	if len(bundle.Sources) > 0 {
		if err := sink.Sources(bundle.Sources); err != nil {
			return err
		}
	}
	if len(bundle.Materials) > 0 {
		if err := sink.Materials(bundle.Materials); err != nil {
			return err
		}
	}

	history, err := s.threadRepo.ListBySession(ctx, sessionID, s.settings.HistoryThreads)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to fetch chat history")
		history = nil
	}

	provider, model, err := s.resolveProvider(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve completion provider")
		return sink.Error("no completion provider available")
	}

	llmReq := llm.Request{
		System:   llm.BuildSystemPrompt(bundle.Materials, bundle.Sources),
		History:  flattenHistory(history),
		Question: req.Message,
	}

	var answer strings.Builder
	resp, genErr := provider.StreamChat(ctx, llmReq, model, func(delta string) error {
		answer.WriteString(delta)
		return sink.Token(delta)
	})
	if genErr != nil {
		if ctx.Err() != nil {
			// Client went away; nothing left to tell it.
			return ctx.Err()
		}
		log.Error().Err(genErr).Str("provider", provider.Name()).Msg("completion failed")
		if err := sink.Error("completion failed"); err != nil {
			return err
		}
	} else {
		log.Debug().
			Str("provider", provider.Name()).
			Str("model", resp.Model).
			Int("tokens_used", resp.TokensUsed).
			Int64("llm_latency_ms", resp.LatencyMs).
			Msg("completion finished")
	}

	var suggestions []string
	if s.settings.Suggestions && genErr == nil && answer.Len() > 0 {
		suggestions = s.suggestFollowUps(ctx, provider, req.Message, answer.String())
		if len(suggestions) > 0 {
			if err := sink.Suggestions(suggestions); err != nil {
				return err
			}
		}
	}

	thread := &domain.Thread{
		ID:          uuid.New(),
		User:        domain.Message{Role: domain.RoleUser, Content: req.Message},
		Assistant:   domain.Message{Role: domain.RoleAssistant, Content: answer.String()},
		Sources:     bundle.Sources,
		Materials:   bundle.Materials,
		Suggestions: suggestions,
		CreatedAt:   startTime,
	}
	if err := s.threadRepo.Create(ctx, sessionID, thread); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to persist thread")
	}

	s.touchSession(ctx, sessionID, req)

	return nil
}

// retrieve looks up catalog and article context for a question, via the
// cache when possible.
func (s *ChatService) retrieve(ctx context.Context, question string) redis.RetrievalBundle {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, question); err == nil && cached != nil {
			return *cached
		}
	}

	var bundle redis.RetrievalBundle

	materials, err := s.materialRepo.Search(ctx, question, s.settings.MaxMaterials)
	if err != nil {
		log.Error().Err(err).Msg("material search failed")
	} else {
		bundle.Materials = materials
	}

	sources, err := s.sourceRepo.Search(ctx, question, s.settings.MaxSources)
	if err != nil {
		log.Error().Err(err).Msg("article search failed")
	} else {
		bundle.Sources = sources
	}

	if s.cache != nil && (len(bundle.Materials) > 0 || len(bundle.Sources) > 0) {
		if err := s.cache.Set(ctx, question, &bundle); err != nil {
			log.Warn().Err(err).Msg("failed to cache retrieval bundle")
		}
	}

	return bundle
}

// resolveProvider picks the provider and model for a request. Precedence:
// explicit request, project preferences, configured default.
func (s *ChatService) resolveProvider(ctx context.Context, req domain.ChatRequest) (llm.Provider, string, error) {
	providerName := req.Provider
	model := req.Model
	var providerConfig map[string]any

	if req.ProjectID != nil && s.projectRepo != nil {
		project, err := s.projectRepo.Get(ctx, *req.ProjectID)
		if err != nil {
			log.Warn().Err(err).Str("project_id", req.ProjectID.String()).Msg("failed to load project preferences")
		} else if project.LLM != nil {
			if providerName == "" {
				providerName = project.LLM.Provider
			}
			if model == "" {
				model = project.LLM.Model
			}
			if project.LLM.APIKey != "" && s.encryptor != nil {
				apiKey, err := s.encryptor.DecryptString(project.LLM.APIKey)
				if err != nil {
					log.Error().Err(err).Msg("failed to decrypt project API key")
				} else {
					providerConfig = map[string]any{"api_key": apiKey}
				}
			}
		}
	}

	provider, err := s.llmRouter.GetProviderWithConfig(providerName, providerConfig)
	if err != nil {
		return nil, "", err
	}
	if model == "" {
		model = provider.DefaultModel()
	}
	return provider, model, nil
}

func (s *ChatService) suggestFollowUps(ctx context.Context, provider llm.Provider, question, answer string) []string {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	raw, err := provider.Complete(ctx, llm.SuggestionsPrompt(question, answer), s.settings.TitleModel)
	if err != nil {
		log.Warn().Err(err).Msg("failed to generate follow-up suggestions")
		return nil
	}
	return llm.ParseSuggestions(raw)
}

// touchSession bumps the session's updated_at and upgrades a placeholder
// title, kicking off async title generation on the first exchange.
func (s *ChatService) touchSession(ctx context.Context, sessionID uuid.UUID, req domain.ChatRequest) {
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to load session for update")
		return
	}

	firstExchange := session.Title == defaultSessionTitle
	if firstExchange {
		if len(req.Message) > 30 {
			session.Title = req.Message[:30] + "..."
		} else {
			session.Title = req.Message
		}
	}
	session.UpdatedAt = time.Now()

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to update session")
		return
	}

	if firstExchange {
		go s.generateSessionTitle(context.Background(), sessionID, req)
	}
}

// generateSessionTitle generates and stores a model-written session title.
func (s *ChatService) generateSessionTitle(ctx context.Context, sessionID uuid.UUID, req domain.ChatRequest) {
	provider, _, err := s.resolveProvider(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("failed to get provider for title generation")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	raw, err := provider.Complete(ctx, llm.TitlePrompt(req.Message), s.settings.TitleModel)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate session title")
		return
	}
	title := llm.CleanTitle(raw)
	if title == "" {
		return
	}

	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to get session for title update")
		return
	}
	session.Title = title
	session.UpdatedAt = time.Now()

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		log.Error().Err(err).Msg("failed to update session title")
		return
	}

	log.Info().Str("session_id", sessionID.String()).Str("title", title).Msg("updated session title")
}

// flattenHistory turns stored threads into the alternating message list
// providers expect, oldest first.
func flattenHistory(threads []domain.Thread) []domain.Message {
	var messages []domain.Message
	for _, t := range threads {
		messages = append(messages, t.User)
		if t.Assistant.Content != "" {
			messages = append(messages, t.Assistant)
		}
	}
	return messages
}
