package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/orchestrator"
	"prompt-comparator/internal/provider"
	"prompt-comparator/internal/settings"
)

type echoAdapter struct {
	id   models.ProviderID
	gate chan struct{}
}

func (a *echoAdapter) ID() models.ProviderID { return a.id }

func (a *echoAdapter) Send(ctx context.Context, req provider.Request) (models.Message, error) {
	if req.Credential == "" {
		return models.Message{}, provider.MissingCredential(a.id)
	}
	if a.gate != nil {
		<-a.gate
	}
	return models.AssistantMessage(string(a.id) + " says " + req.Prompt), nil
}

func (a *echoAdapter) ListModels(ctx context.Context, credential string) ([]models.ModelDescriptor, error) {
	return nil, nil
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Store:  config.StoreConfig{Driver: config.StoreDriverFile, Path: "settings.json"},
		Providers: config.ProvidersConfig{
			OpenAI:    config.ProviderConfig{BaseURL: "https://api.openai.com/v1"},
			Anthropic: config.ProviderConfig{BaseURL: "https://api.anthropic.com"},
			Google:    config.ProviderConfig{BaseURL: "https://generativelanguage.googleapis.com"},
		},
		Sides: config.SidesConfig{
			A: config.SideDefaults{Provider: "openai"},
			B: config.SideDefaults{Provider: "anthropic"},
		},
	}
}

type harness struct {
	srv      *Server
	adapters map[models.ProviderID]*echoAdapter
	store    settings.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	registry := provider.NewRegistry()
	adapters := map[models.ProviderID]*echoAdapter{}
	for _, id := range models.Providers {
		a := &echoAdapter{id: id}
		adapters[id] = a
		require.NoError(t, registry.Register(a))
	}

	store, err := settings.NewFileStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	s := settings.Defaults()
	s.APIKey = "sk-openai-0123456789"
	s.AnthropicKey = "sk-ant-abcdefghijkl"

	cfg := testConfig()
	orch, err := orchestrator.New(orchestrator.Options{
		Registry: registry,
		Catalog:  provider.NewCatalogStore(),
		Store:    store,
		Settings: s,
		Sides:    cfg.Sides,
	})
	require.NoError(t, err)

	srv, err := New(cfg, orch)
	require.NoError(t, err)
	srv.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	return &harness{srv: srv, adapters: adapters, store: store}
}

func (h *harness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36, "uuid request id")
}

func TestSendToBothAndState(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	outcomes := gjson.Get(rec.Body.String(), "outcomes")
	require.Len(t, outcomes.Array(), 2)
	assert.Equal(t, "openai says hello", outcomes.Get("0.reply.content").String())
	assert.Equal(t, "anthropic says hello", outcomes.Get("1.reply.content").String())

	rec = h.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Len(t, state.Sides, 2)
	assert.Equal(t, models.SideA, state.Sides[0].Side)
	assert.Len(t, state.Sides[0].History, 2)
	assert.Equal(t, "Prompt B", state.Sides[1].Config.Label)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"empty text", http.MethodPost, "/api/messages", `{"text":"   "}`, http.StatusBadRequest},
		{"missing body", http.MethodPost, "/api/messages", "", http.StatusBadRequest},
		{"trailing data", http.MethodPost, "/api/messages", `{"text":"a"}{}`, http.StatusBadRequest},
		{"unknown side", http.MethodPost, "/api/sides/c/messages", `{"text":"a"}`, http.StatusBadRequest},
		{"unknown provider", http.MethodPut, "/api/sides/a", `{"provider":"mistral"}`, http.StatusBadRequest},
		{"unknown model", http.MethodPut, "/api/sides/a", `{"model":"claude-opus-4-6"}`, http.StatusBadRequest},
		{"unknown export format", http.MethodGet, "/api/export?format=pdf", "", http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, gjson.Get(rec.Body.String(), "error.message").String())
			assert.Equal(t, "invalid_request_error", gjson.Get(rec.Body.String(), "error.type").String())
		})
	}
}

func TestRejectedSideUpdateKeepsConfig(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPut, "/api/sides/a", `{"provider":"anthropic","model":"no-such-model"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "openai", gjson.Get(rec.Body.String(), "sides.0.config.provider").String())
	assert.Equal(t, "o1-preview", gjson.Get(rec.Body.String(), "sides.0.config.model").String())
}

func TestRequestLogCarriesErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/messages", `{"text":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var line string
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if gjson.Get(l, "message").String() == "request" {
			line = l
		}
	}
	require.NotEmpty(t, line, buf.String())
	assert.Equal(t, int64(http.StatusBadRequest), gjson.Get(line, "status").Int())
	assert.Equal(t, "warn", gjson.Get(line, "level").String())
	assert.Equal(t, "/api/messages", gjson.Get(line, "uri").String())
	assert.Equal(t, "invalid_request_error", gjson.Get(rec.Body.String(), "error.type").String(),
		"error body written once")
}

func TestSendSideMissingCredentialIsTranscriptEntry(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPut, "/api/sides/b", `{"provider":"google"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "google", gjson.Get(rec.Body.String(), "provider").String())

	rec = h.do(t, http.MethodPost, "/api/sides/B/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, gjson.Get(rec.Body.String(), "error").String(), "API key is missing")
	assert.Equal(t,
		"Error: Google Gemini: API key is missing. Please check your API Key and settings.",
		gjson.Get(rec.Body.String(), "reply.content").String())
}

func TestBusySideReturnsConflict(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.adapters[models.ProviderOpenAI].gate = gate

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.do(t, http.MethodPost, "/api/sides/a/messages", `{"text":"slow"}`)
	}()

	require.Eventually(t, func() bool {
		return gjson.Get(h.do(t, http.MethodGet, "/api/state", "").Body.String(), "sides.0.pending").Bool()
	}, time.Second, 5*time.Millisecond)

	rec := h.do(t, http.MethodPost, "/api/sides/a/messages", `{"text":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "side_busy", gjson.Get(rec.Body.String(), "error.code").String())

	close(gate)
	<-done
}

func TestAsyncDispatch(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/messages", `{"text":"later","async":true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	h.srv.orch.Wait()
	rec = h.do(t, http.MethodGet, "/api/state", "")
	assert.Equal(t, "openai says later", gjson.Get(rec.Body.String(), "sides.0.history.1.content").String())
}

func TestClear(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/messages", `{"text":"x"}`).Code)

	rec := h.do(t, http.MethodPost, "/api/clear?side=a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, gjson.Get(rec.Body.String(), "sides.0.history").Array())
	assert.Len(t, gjson.Get(rec.Body.String(), "sides.1.history").Array(), 2)

	rec = h.do(t, http.MethodPost, "/api/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, gjson.Get(rec.Body.String(), "sides.1.history").Array())
}

func TestCatalog(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	providers := gjson.Get(rec.Body.String(), "providers").Array()
	require.Len(t, providers, 3)
	assert.Equal(t, "openai", providers[0].Get("provider").String())

	rec = h.do(t, http.MethodPost, "/api/catalog/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "o1-preview", gjson.Get(rec.Body.String(), "providers.0.models.0.id").String(),
		"empty discovery keeps the static list")
}

func TestSettingsAreMaskedAndMerged(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "****6789", gjson.Get(body, "apiKey").String())
	assert.NotContains(t, body, "sk-openai")

	rec = h.do(t, http.MethodPut, "/api/settings", `{
		"apiKey": "****6789",
		"anthropicKey": "sk-ant-new-key-0000",
		"googleKey": "",
		"systemPromptA": "Be brief.",
		"systemPromptB": "",
		"promptNameA": "Brief",
		"promptNameB": "Prompt B"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Brief", gjson.Get(rec.Body.String(), "promptNameA").String())

	saved, ok, err := h.store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-openai-0123456789", saved.APIKey, "masked value keeps the stored key")
	assert.Equal(t, "sk-ant-new-key-0000", saved.AnthropicKey)
	assert.Equal(t, settings.DefaultSystemPrompt, saved.SystemPromptB)
}

func TestExportDownload(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/messages", `{"text":"hi"}`).Code)

	rec := h.do(t, http.MethodGet, "/api/export?format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename=Prompt_A_vs_Prompt_B_2026-10-19.csv`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\uFEFF"))
	assert.Contains(t, rec.Body.String(), `"hi","openai says hi","anthropic says hi"`)

	rec = h.do(t, http.MethodGet, "/api/export?format=yml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".yaml")
	assert.NotContains(t, rec.Body.String(), "sk-openai")
}
