// Package orchestrator routes user input to the two comparison sides.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"prompt-comparator/internal/config"
	"prompt-comparator/internal/discovery"
	"prompt-comparator/internal/events"
	"prompt-comparator/internal/export"
	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
	"prompt-comparator/internal/session"
	"prompt-comparator/internal/settings"
)

// Options wires an Orchestrator.
type Options struct {
	Registry  *provider.Registry
	Catalog   *provider.CatalogStore
	Discovery *discovery.Service
	Publisher events.Publisher
	Store     settings.Store
	Settings  settings.Settings
	Sides     config.SidesConfig
}

type side struct {
	provider models.ProviderID
	model    string
	session  *session.Session
}

// Orchestrator holds both sides, their provider/model selection and the user settings.
type Orchestrator struct {
	catalog   *provider.CatalogStore
	discovery *discovery.Service
	publisher events.Publisher
	store     settings.Store

	mu       sync.RWMutex
	settings settings.Settings
	sides    map[models.Side]*side

	inflight sync.WaitGroup
}

// New constructs an orchestrator. A configured model missing from the catalog falls back to
// the provider's first model.
func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil || opts.Catalog == nil {
		return nil, errors.New("registry and catalog must not be nil")
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	disc := opts.Discovery
	if disc == nil {
		disc = discovery.New(opts.Registry, opts.Catalog)
	}

	o := &Orchestrator{
		catalog:   opts.Catalog,
		discovery: disc,
		publisher: publisher,
		store:     opts.Store,
		settings:  opts.Settings.WithDefaults(),
		sides:     make(map[models.Side]*side, len(models.Sides)),
	}

	defaults := map[models.Side]config.SideDefaults{models.SideA: opts.Sides.A, models.SideB: opts.Sides.B}
	snap := o.catalog.Snapshot()
	for _, s := range models.Sides {
		d := defaults[s]
		id := models.ProviderID(d.Provider)
		if d.Provider == "" {
			id = models.ProviderOpenAI
		}
		first, err := snap.FirstModel(id)
		if err != nil {
			return nil, fmt.Errorf("side %s: %w", s, err)
		}
		model := d.Model
		if model == "" || !snap.HasModel(id, model) {
			if model != "" {
				log.Warn().Str("side", s.String()).Str("model", model).Msg("configured model not in catalog, using first model")
			}
			model = first
		}
		o.sides[s] = &side{provider: id, model: model, session: session.New(opts.Registry)}
	}
	return o, nil
}

// Outcome reports one side's part of a shared send.
type Outcome struct {
	Side   models.Side
	Result session.Result
	// Err is set when the side refused the send, e.g. session.ErrBusy.
	Err error
}

// SendToBoth sends text to both sides concurrently and waits for both. A slow or failing side
// never delays the other's history update.
func (o *Orchestrator) SendToBoth(ctx context.Context, text string) ([]Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, session.ErrEmptyMessage
	}

	outcomes := make([]Outcome, len(models.Sides))
	var wg sync.WaitGroup
	for i, s := range models.Sides {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Send(ctx, s, text)
			outcomes[i] = Outcome{Side: s, Result: res, Err: err}
		}()
	}
	wg.Wait()
	return outcomes, nil
}

// Dispatch starts SendToBoth in the background. It fails fast when both sides are busy.
func (o *Orchestrator) Dispatch(text string) error {
	if strings.TrimSpace(text) == "" {
		return session.ErrEmptyMessage
	}
	if o.side(models.SideA).session.Pending() && o.side(models.SideB).session.Pending() {
		return session.ErrBusy
	}

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		outcomes, _ := o.SendToBoth(context.Background(), text)
		for _, out := range outcomes {
			if out.Err != nil {
				log.Info().Str("side", out.Side.String()).Err(out.Err).Msg("side skipped dispatched message")
			}
		}
	}()
	return nil
}

// Wait blocks until every dispatched send has finished.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Send sends text to one side using that side's current provider, model, prompt and credential.
func (o *Orchestrator) Send(ctx context.Context, s models.Side, text string) (session.Result, error) {
	sd := o.side(s)
	if sd == nil {
		return session.Result{}, fmt.Errorf("%w: %s", models.ErrUnknownSide, s)
	}

	cfg := o.SideConfig(s)
	credential := o.Settings().Credential(cfg.Provider)

	res, err := sd.session.Send(ctx, session.Turn{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Credential:   credential,
		Text:         text,
	})
	if err != nil {
		return res, err
	}

	logEvent := log.Info()
	if res.Err != nil {
		logEvent = log.Warn().Err(res.Err)
	}
	logEvent.
		Str("side", s.String()).
		Str("provider", string(cfg.Provider)).
		Str("model", cfg.Model).
		Dur("latency", res.Latency).
		Bool("discarded", res.Discarded).
		Msg("turn completed")

	if !res.Discarded {
		o.publisher.Publish(ctx, events.NewTurnEvent(s, cfg, res.Latency, res.Err))
	}
	return res, nil
}

// ClearBoth empties both sessions.
func (o *Orchestrator) ClearBoth() {
	for _, s := range models.Sides {
		o.side(s).session.Clear()
	}
}

// Clear empties one session.
func (o *Orchestrator) Clear(s models.Side) error {
	sd := o.side(s)
	if sd == nil {
		return fmt.Errorf("%w: %s", models.ErrUnknownSide, s)
	}
	sd.session.Clear()
	return nil
}

// SetProvider switches a side's provider and resets its model to the provider's first model.
func (o *Orchestrator) SetProvider(s models.Side, id models.ProviderID) error {
	first, err := o.catalog.Snapshot().FirstModel(id)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	sd, ok := o.sides[s]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownSide, s)
	}
	sd.provider = id
	sd.model = first
	return nil
}

// SetModel selects a model of the side's current provider.
func (o *Orchestrator) SetModel(s models.Side, modelID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	sd, ok := o.sides[s]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownSide, s)
	}
	if !o.catalog.Snapshot().HasModel(sd.provider, modelID) {
		return fmt.Errorf("%w: %s has no model %q", provider.ErrUnknownModel, sd.provider.DisplayName(), modelID)
	}
	sd.model = modelID
	return nil
}

// SetSystemPrompt changes a side's system prompt for subsequent sends.
func (o *Orchestrator) SetSystemPrompt(s models.Side, prompt string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.sides[s]; !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownSide, s)
	}
	o.settings.SetSide(s, prompt, o.settings.Label(s))
	return nil
}

// SetLabel renames a side.
func (o *Orchestrator) SetLabel(s models.Side, label string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.sides[s]; !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownSide, s)
	}
	o.settings.SetSide(s, o.settings.SystemPrompt(s), label)
	return nil
}

// SideUpdate carries the optional fields of ConfigureSide; nil fields are left unchanged.
type SideUpdate struct {
	Provider     *models.ProviderID `json:"provider,omitempty"`
	Model        *string            `json:"model,omitempty"`
	SystemPrompt *string            `json:"systemPrompt,omitempty"`
	Label        *string            `json:"label,omitempty"`
}

// ConfigureSide validates the whole of upd against one catalog snapshot and applies it
// in one step. A model given with a provider must belong to that provider. Settings are
// persisted before anything changes when the prompt or label is part of the update, so a
// rejected update or a failed save leaves the side as it was.
func (o *Orchestrator) ConfigureSide(ctx context.Context, s models.Side, upd SideUpdate) (models.SideConfig, error) {
	snap := o.catalog.Snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()
	sd, ok := o.sides[s]
	if !ok {
		return models.SideConfig{}, fmt.Errorf("%w: %s", models.ErrUnknownSide, s)
	}

	prov, model := sd.provider, sd.model
	if upd.Provider != nil {
		first, err := snap.FirstModel(*upd.Provider)
		if err != nil {
			return models.SideConfig{}, err
		}
		prov, model = *upd.Provider, first
	}
	if upd.Model != nil {
		if !snap.HasModel(prov, *upd.Model) {
			return models.SideConfig{}, fmt.Errorf("%w: %s has no model %q", provider.ErrUnknownModel, prov.DisplayName(), *upd.Model)
		}
		model = *upd.Model
	}

	next := o.settings
	prompt, label := next.SystemPrompt(s), next.Label(s)
	if upd.SystemPrompt != nil {
		prompt = *upd.SystemPrompt
	}
	if upd.Label != nil {
		label = *upd.Label
	}
	next.SetSide(s, prompt, label)
	if upd.SystemPrompt != nil || upd.Label != nil {
		if err := o.persist(ctx, next); err != nil {
			return models.SideConfig{}, err
		}
	}

	sd.provider, sd.model = prov, model
	o.settings = next
	return models.SideConfig{Provider: prov, Model: model, SystemPrompt: prompt, Label: label}, nil
}

// SideConfig returns the current configuration of a side.
func (o *Orchestrator) SideConfig(s models.Side) models.SideConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	sd, ok := o.sides[s]
	if !ok {
		return models.SideConfig{}
	}
	return models.SideConfig{
		Provider:     sd.provider,
		Model:        sd.model,
		SystemPrompt: o.settings.SystemPrompt(s),
		Label:        o.settings.Label(s),
	}
}

// Settings returns a copy of the current settings, credentials included.
func (o *Orchestrator) Settings() settings.Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings
}

// ApplySettings replaces the settings in memory.
func (o *Orchestrator) ApplySettings(s settings.Settings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settings = s.WithDefaults()
}

// SaveSettings writes s to the store and applies it once the write succeeded.
func (o *Orchestrator) SaveSettings(ctx context.Context, s settings.Settings) error {
	next := s.WithDefaults()

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.persist(ctx, next); err != nil {
		return err
	}
	o.settings = next
	return nil
}

// persist is called with o.mu held.
func (o *Orchestrator) persist(ctx context.Context, s settings.Settings) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.Save(ctx, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Catalog returns the current catalog snapshot.
func (o *Orchestrator) Catalog() *provider.Catalog {
	return o.catalog.Snapshot()
}

// RefreshCatalog rediscovers models for every provider with a credential and moves any side
// whose model disappeared to its provider's first model.
func (o *Orchestrator) RefreshCatalog(ctx context.Context) error {
	if err := o.discovery.Refresh(ctx, o.Settings().Credentials()); err != nil {
		return err
	}
	o.reconcile()
	return nil
}

func (o *Orchestrator) reconcile() {
	snap := o.catalog.Snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()
	for s, sd := range o.sides {
		if snap.HasModel(sd.provider, sd.model) {
			continue
		}
		first, err := snap.FirstModel(sd.provider)
		if err != nil {
			continue
		}
		log.Info().
			Str("side", s.String()).
			Str("from", sd.model).
			Str("to", first).
			Msg("selected model no longer listed, switching")
		sd.model = first
	}
}

// SideState is the externally visible state of one side.
type SideState struct {
	Side   models.Side       `json:"side"`
	Config models.SideConfig `json:"config"`
	session.State
}

// State returns both sides in order.
func (o *Orchestrator) State() []SideState {
	out := make([]SideState, 0, len(models.Sides))
	for _, s := range models.Sides {
		out = append(out, SideState{
			Side:   s,
			Config: o.SideConfig(s),
			State:  o.side(s).session.Snapshot(),
		})
	}
	return out
}

// Transcript captures both histories and configurations for export. Credentials are never included.
func (o *Orchestrator) Transcript(now time.Time) export.Transcript {
	build := func(s models.Side) export.SideTranscript {
		cfg := o.SideConfig(s)
		return export.SideTranscript{
			Label:        cfg.Label,
			Provider:     cfg.Provider,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			Messages:     o.side(s).session.History(),
		}
	}
	return export.Transcript{
		Timestamp: now.UTC(),
		A:         build(models.SideA),
		B:         build(models.SideB),
	}
}

// ExportFile is a rendered export ready to be downloaded or written to disk.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Export renders the transcript in format.
func (o *Orchestrator) Export(format export.Format, now time.Time) (ExportFile, error) {
	exporter, err := export.NewExporter(format)
	if err != nil {
		return ExportFile{}, err
	}

	t := o.Transcript(now)
	var buf bytes.Buffer
	if err := exporter.Export(t, &buf); err != nil {
		return ExportFile{}, fmt.Errorf("export %s: %w", format, err)
	}
	return ExportFile{
		Name:        export.FileName(t.A.Label, t.B.Label, now, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

func (o *Orchestrator) side(s models.Side) *side {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sides[s]
}
