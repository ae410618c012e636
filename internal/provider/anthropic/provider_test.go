package anthropic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	p, err := New(config.ProviderConfig{BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)
	return p, &hits
}

const okResponse = `{"id":"msg_01","type":"message","role":"assistant","model":"claude-haiku-4-5-20251001",
"content":[{"type":"text","text":"Bonjour"}],"stop_reason":"end_turn","stop_sequence":null,
"usage":{"input_tokens":10,"output_tokens":2}}`

func TestSendKeepsSystemPromptOutOfMessages(t *testing.T) {
	var body []byte
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("Anthropic-Version"))

		var err error
		body, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	})

	msg, err := p.Send(context.Background(), provider.Request{
		History: []models.Message{
			{Role: models.RoleSystem, Content: "stray system turn"},
			models.UserMessage("hello"),
			models.AssistantMessage("hi"),
		},
		Prompt:       "say it in French",
		SystemPrompt: "You are a translator.",
		Model:        "claude-haiku-4-5-20251001",
		Credential:   "sk-ant",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AssistantMessage("Bonjour"), msg)

	payload := gjson.ParseBytes(body)
	assert.Equal(t, "claude-haiku-4-5-20251001", payload.Get("model").String())
	assert.EqualValues(t, 1024, payload.Get("max_tokens").Int())
	assert.Equal(t, "You are a translator.", payload.Get("system.0.text").String())

	roles := payload.Get("messages.#.role").Array()
	require.Len(t, roles, 3)
	for _, role := range roles {
		assert.NotEqual(t, "system", role.String())
	}
	assert.Equal(t, "say it in French", payload.Get("messages.2.content.0.text").String())
}

func TestSendOmitsEmptySystemPrompt(t *testing.T) {
	var body []byte
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	})

	_, err := p.Send(context.Background(), provider.Request{Prompt: "hi", Model: "claude-opus-4-6", Credential: "k"})
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(body, "system").Exists())
}

func TestSendWithoutCredentialMakesNoCall(t *testing.T) {
	p, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := p.Send(context.Background(), provider.Request{Prompt: "hi", Model: "claude-opus-4-6"})
	assert.ErrorIs(t, err, provider.ErrCredentialMissing)

	_, err = p.ListModels(context.Background(), "")
	assert.ErrorIs(t, err, provider.ErrCredentialMissing)

	assert.Zero(t, hits.Load())
}

func TestSendSurfacesVendorErrorWithoutRetry(t *testing.T) {
	p, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"Internal server error"}}`))
	})

	_, err := p.Send(context.Background(), provider.Request{Prompt: "hi", Model: "claude-opus-4-6", Credential: "k"})

	var perr *provider.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusInternalServerError, perr.Status)
	assert.Equal(t, "Internal server error", perr.Error())
	assert.EqualValues(t, 1, hits.Load(), "exactly one attempt")
}

func TestListModels(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"type":"model","id":"claude-sonnet-4-5-20250929","display_name":"Claude Sonnet 4.5","created_at":"2025-09-29T00:00:00Z"},
			{"type":"model","id":"claude-haiku-4-5-20251001","display_name":"Claude Haiku 4.5","created_at":"2025-10-01T00:00:00Z"}
		],"has_more":false,"first_id":"claude-sonnet-4-5-20250929","last_id":"claude-haiku-4-5-20251001"}`))
	})

	list, err := p.ListModels(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []models.ModelDescriptor{
		{ID: "claude-sonnet-4-5-20250929", DisplayName: "Claude Sonnet 4.5"},
		{ID: "claude-haiku-4-5-20251001", DisplayName: "Claude Haiku 4.5"},
	}, list)
}
