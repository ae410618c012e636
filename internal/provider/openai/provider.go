package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
)

const defaultTemperature = 0.7

// Provider implements the Adapter interface for the OpenAI chat completions API.
type Provider struct {
	baseURL     string
	temperature float32
	client      *http.Client
}

// New creates a new OpenAI adapter.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	return &Provider{
		baseURL:     baseURL,
		temperature: float32(temperature),
		client:      client,
	}, nil
}

func (p *Provider) ID() models.ProviderID {
	return models.ProviderOpenAI
}

// newClient builds a per-call client since the credential belongs to the caller's settings.
func (p *Provider) newClient(apiKey string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = p.baseURL
	cfg.HTTPClient = p.client
	return goopenai.NewClientWithConfig(cfg)
}

func (p *Provider) Send(ctx context.Context, req provider.Request) (models.Message, error) {
	if req.Credential == "" {
		return models.Message{}, provider.MissingCredential(p.ID())
	}

	chatReq := buildChatRequest(req, p.temperature)

	log.Debug().
		Str("provider", string(p.ID())).
		Str("model", req.Model).
		Int("messages", len(chatReq.Messages)).
		Msg("sending chat completion")

	resp, err := p.newClient(req.Credential).CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.Message{}, toProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return models.Message{}, &provider.ProviderError{Provider: p.ID(), Message: "OpenAI response did not include choices"}
	}

	return models.AssistantMessage(resp.Choices[0].Message.Content), nil
}

func buildChatRequest(req provider.Request, temperature float32) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, msg := range req.History {
		if msg.Role == models.RoleSystem {
			continue
		}
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	return goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: temperature,
	}
}

// ListModels returns chat-capable model ids sorted lexicographically.
func (p *Provider) ListModels(ctx context.Context, credential string) ([]models.ModelDescriptor, error) {
	if credential == "" {
		return nil, provider.MissingCredential(p.ID())
	}

	list, err := p.newClient(credential).ListModels(ctx)
	if err != nil {
		return nil, toProviderError(err)
	}

	out := make([]models.ModelDescriptor, 0, len(list.Models))
	for _, m := range list.Models {
		if !IsChatModel(m.ID) {
			continue
		}
		out = append(out, models.ModelDescriptor{ID: m.ID, DisplayName: m.ID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var chatPrefixes = []string{"gpt", "o1", "o3", "o4", "chatgpt"}

var nonChatMarkers = []string{
	"embedding", "whisper", "tts", "dall-e", "image", "audio",
	"realtime", "transcribe", "moderation", "search",
}

// IsChatModel applies OpenAI's naming convention to keep only chat completion models.
func IsChatModel(id string) bool {
	lower := strings.ToLower(id)
	for _, marker := range nonChatMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, prefix := range chatPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func toProviderError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		perr := provider.NewStatusError(models.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
		perr.Err = err
		return perr
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		perr := provider.NewStatusError(models.ProviderOpenAI, reqErr.HTTPStatusCode, "")
		perr.Err = err
		return perr
	}

	return provider.NewTransportError(models.ProviderOpenAI, fmt.Errorf("openai request failed: %w", err))
}
