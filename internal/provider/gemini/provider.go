package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "prompt-comparator/0.1"
	apiVersion      = "v1beta"
	roleModel       = "model"
	generateMethod  = "generateContent"
	maxErrorBody    = 64 * 1024
)

// Provider implements the Gemini generateContent REST API.
type Provider struct {
	baseURL string
	client  *http.Client
}

// New constructs a Gemini adapter.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		baseURL: baseURL,
		client:  client,
	}, nil
}

func (p *Provider) ID() models.ProviderID {
	return models.ProviderGoogle
}

func (p *Provider) Send(ctx context.Context, req provider.Request) (models.Message, error) {
	if req.Credential == "" {
		return models.Message{}, provider.MissingCredential(p.ID())
	}

	payload := buildGeneratePayload(req)
	endpoint := p.endpoint("models/"+url.PathEscape(req.Model)+":"+generateMethod, req.Credential)

	httpReq, err := p.newRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return models.Message{}, err
	}

	log.Debug().
		Str("provider", string(p.ID())).
		Str("model", req.Model).
		Int("contents", len(payload.Contents)).
		Msg("sending generate content")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return models.Message{}, provider.NewTransportError(p.ID(), fmt.Errorf("gemini request failed: %w", redactKey(err)))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return models.Message{}, parseAPIError(httpResp)
	}

	var resp generateResponse
	if err := decodeJSON(httpResp.Body, &resp); err != nil {
		return models.Message{}, provider.NewTransportError(p.ID(), err)
	}

	text, err := resp.text()
	if err != nil {
		return models.Message{}, &provider.ProviderError{Provider: p.ID(), Message: err.Error()}
	}
	return models.AssistantMessage(text), nil
}

// ListModels returns gemini models that support generateContent, with the
// "models/" resource prefix stripped.
func (p *Provider) ListModels(ctx context.Context, credential string) ([]models.ModelDescriptor, error) {
	if credential == "" {
		return nil, provider.MissingCredential(p.ID())
	}

	httpReq, err := p.newRequest(ctx, http.MethodGet, p.endpoint("models", credential), nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.NewTransportError(p.ID(), fmt.Errorf("gemini list models failed: %w", redactKey(err)))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var list listResponse
	if err := decodeJSON(httpResp.Body, &list); err != nil {
		return nil, provider.NewTransportError(p.ID(), err)
	}

	out := make([]models.ModelDescriptor, 0, len(list.Models))
	for _, m := range list.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		if !isChatModel(id, m.SupportedGenerationMethods) {
			continue
		}
		name := m.DisplayName
		if name == "" {
			name = id
		}
		out = append(out, models.ModelDescriptor{ID: id, DisplayName: name})
	}
	return out, nil
}

func isChatModel(id string, methods []string) bool {
	lower := strings.ToLower(id)
	if !strings.HasPrefix(lower, "gemini") {
		return false
	}
	if strings.Contains(lower, "embedding") || strings.Contains(lower, "image") || strings.Contains(lower, "tts") {
		return false
	}
	for _, m := range methods {
		if m == generateMethod {
			return true
		}
	}
	return false
}

func (p *Provider) endpoint(path, key string) string {
	return p.baseURL + "/" + apiVersion + "/" + path + "?key=" + url.QueryEscape(key)
}

func (p *Provider) newRequest(ctx context.Context, method, endpoint string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", redactKey(err))
	}

	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

type generatePayload struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// buildGeneratePayload replays history with assistant turns renamed to
// "model", then appends the new user turn last.
func buildGeneratePayload(req provider.Request) generatePayload {
	contents := make([]content, 0, len(req.History)+1)
	for _, msg := range req.History {
		var role string
		switch msg.Role {
		case models.RoleUser:
			role = string(models.RoleUser)
		case models.RoleAssistant:
			role = roleModel
		default:
			continue
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: msg.Content}}})
	}
	contents = append(contents, content{Role: string(models.RoleUser), Parts: []part{{Text: req.Prompt}}})

	payload := generatePayload{Contents: contents}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	return payload
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

func (r generateResponse) text() (string, error) {
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("Gemini blocked the prompt: %s", r.PromptFeedback.BlockReason)
		}
		return "", errors.New("Gemini response did not include candidates")
	}

	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

type listResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		perr := provider.NewStatusError(models.ProviderGoogle, resp.StatusCode, "")
		perr.Err = fmt.Errorf("read error body: %w", err)
		return perr
	}

	message := gjson.GetBytes(body, "error.message").String()
	return provider.NewStatusError(models.ProviderGoogle, resp.StatusCode, message)
}

func decodeJSON(reader io.Reader, target any) error {
	if err := json.NewDecoder(reader).Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// redactKey strips the query string from url errors so the API key never reaches logs.
func redactKey(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if u, perr := url.Parse(urlErr.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
		}
	}
	return err
}
