package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ellenlabs/ellen/internal/config"
	"github.com/ellenlabs/ellen/internal/domain"
	"github.com/ellenlabs/ellen/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Provider struct {
	apiKey string
	model  string
}

func NewProvider(cfg config.GeminiConfig) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) AvailableModels() []string {
	return []string{
		"gemini-2.5-flash",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	}
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return "gemini-2.5-flash"
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) newModel(ctx context.Context, name, system string) (*genai.Client, *genai.GenerativeModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(name)
	var temperature float32 = 0.3
	model.Temperature = &temperature
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	return client, model, nil
}

func (p *Provider) StreamChat(ctx context.Context, req llm.Request, model string, onToken llm.TokenFunc) (*llm.Response, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}
	if model == "" {
		model = p.DefaultModel()
	}

	client, generativeModel, err := p.newModel(ctx, model, req.System)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	chat := generativeModel.StartChat()
	for _, m := range req.History {
		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "model"
		}
		chat.History = append(chat.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	start := time.Now()
	iter := chat.SendMessageStream(ctx, genai.Text(req.Question))

	var content strings.Builder
	tokensUsed := 0
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini generation error: %w", err)
		}
		if resp.UsageMetadata != nil {
			tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
		}
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				text, ok := part.(genai.Text)
				if !ok || text == "" {
					continue
				}
				content.WriteString(string(text))
				if err := onToken(string(text)); err != nil {
					return nil, err
				}
			}
		}
	}

	return &llm.Response{
		Content:    content.String(),
		Model:      model,
		TokensUsed: tokensUsed,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func (p *Provider) Complete(ctx context.Context, prompt, model string) (string, error) {
	if !p.IsConfigured() {
		return "", fmt.Errorf("gemini provider is not configured (missing API key)")
	}
	if model == "" {
		model = p.DefaultModel()
	}

	client, generativeModel, err := p.newModel(ctx, model, "")
	if err != nil {
		return "", err
	}
	defer client.Close()

	resp, err := generativeModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}

	var output strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output.WriteString(string(text))
		}
	}
	return output.String(), nil
}
