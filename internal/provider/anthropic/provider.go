package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
)

const (
	defaultMaxTokens = 1024
	listPageSize     = 100
)

// Provider implements Anthropic Messages API interactions.
type Provider struct {
	baseURL   string
	maxTokens int64
	client    *http.Client
}

// New constructs an Anthropic adapter.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Provider{
		baseURL:   baseURL + "/",
		maxTokens: int64(maxTokens),
		client:    client,
	}, nil
}

func (p *Provider) ID() models.ProviderID {
	return models.ProviderAnthropic
}

func (p *Provider) newClient(apiKey string) sdk.Client {
	return sdk.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(p.client),
		option.WithMaxRetries(0),
	)
}

func (p *Provider) Send(ctx context.Context, req provider.Request) (models.Message, error) {
	if req.Credential == "" {
		return models.Message{}, provider.MissingCredential(p.ID())
	}

	params := buildMessageParams(req, p.maxTokens)

	log.Debug().
		Str("provider", string(p.ID())).
		Str("model", req.Model).
		Int("messages", len(params.Messages)).
		Msg("sending message")

	client := p.newClient(req.Credential)
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return models.Message{}, toProviderError(err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return models.AssistantMessage(block.Text), nil
		}
	}
	return models.Message{}, &provider.ProviderError{Provider: p.ID(), Message: "Anthropic response did not include a text block"}
}

// buildMessageParams keeps only user and assistant turns; the system prompt travels in its
// own top-level field.
func buildMessageParams(req provider.Request, maxTokens int64) sdk.MessageNewParams {
	messages := make([]sdk.MessageParam, 0, len(req.History)+1)
	for _, msg := range req.History {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		}
	}
	messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	return params
}

// ListModels returns the Claude models visible to the credential.
func (p *Provider) ListModels(ctx context.Context, credential string) ([]models.ModelDescriptor, error) {
	if credential == "" {
		return nil, provider.MissingCredential(p.ID())
	}

	client := p.newClient(credential)
	page, err := client.Models.List(ctx, sdk.ModelListParams{Limit: sdk.Int(listPageSize)})
	if err != nil {
		return nil, toProviderError(err)
	}

	out := make([]models.ModelDescriptor, 0, len(page.Data))
	for _, m := range page.Data {
		if !strings.Contains(strings.ToLower(m.ID), "claude") {
			continue
		}
		name := m.DisplayName
		if name == "" {
			name = m.ID
		}
		out = append(out, models.ModelDescriptor{ID: m.ID, DisplayName: name})
	}
	return out, nil
}

func toProviderError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		message := gjson.Get(apiErr.RawJSON(), "error.message").String()
		perr := provider.NewStatusError(models.ProviderAnthropic, apiErr.StatusCode, message)
		perr.Err = err
		return perr
	}
	return provider.NewTransportError(models.ProviderAnthropic, fmt.Errorf("anthropic request failed: %w", err))
}
