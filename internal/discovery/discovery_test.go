package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-comparator/internal/models"
	"prompt-comparator/internal/provider"
)

type fakeAdapter struct {
	id    models.ProviderID
	list  []models.ModelDescriptor
	err   error
	calls atomic.Int32
	wait  *sync.WaitGroup
}

func (f *fakeAdapter) ID() models.ProviderID { return f.id }

func (f *fakeAdapter) Send(context.Context, provider.Request) (models.Message, error) {
	return models.Message{}, errors.New("not used")
}

func (f *fakeAdapter) ListModels(ctx context.Context, credential string) ([]models.ModelDescriptor, error) {
	f.calls.Add(1)
	if f.wait != nil {
		f.wait.Done()
		f.wait.Wait()
	}
	return f.list, f.err
}

func newService(t *testing.T, adapters ...*fakeAdapter) (*Service, *provider.CatalogStore) {
	t.Helper()
	registry := provider.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, registry.Register(a))
	}
	store := provider.NewCatalogStore()
	return New(registry, store), store
}

func TestListModelsWithoutCredential(t *testing.T) {
	a := &fakeAdapter{id: models.ProviderOpenAI}
	svc, _ := newService(t, a)

	list, err := svc.ListModels(context.Background(), models.ProviderOpenAI, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, a.calls.Load())
}

func TestListModelsFallsBackOnFailure(t *testing.T) {
	a := &fakeAdapter{id: models.ProviderAnthropic, err: provider.NewStatusError(models.ProviderAnthropic, 403, "forbidden")}
	svc, _ := newService(t, a)

	list, err := svc.ListModels(context.Background(), models.ProviderAnthropic, "k")
	require.NoError(t, err)
	require.NotEmpty(t, list)
	if diff := cmp.Diff(provider.DefaultModels(models.ProviderAnthropic), list); diff != "" {
		t.Fatalf("fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestListModelsFallsBackOnEmptyResult(t *testing.T) {
	a := &fakeAdapter{id: models.ProviderGoogle, list: []models.ModelDescriptor{}}
	svc, _ := newService(t, a)

	list, err := svc.ListModels(context.Background(), models.ProviderGoogle, "k")
	require.NoError(t, err)
	assert.Equal(t, provider.DefaultModels(models.ProviderGoogle), list)
}

func TestListModelsUnknownProvider(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.ListModels(context.Background(), "mistral", "k")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestRefreshReplacesOnlyCredentialedProviders(t *testing.T) {
	live := []models.ModelDescriptor{{ID: "gpt-5", DisplayName: "gpt-5"}}
	openAI := &fakeAdapter{id: models.ProviderOpenAI, list: live}
	anthropic := &fakeAdapter{id: models.ProviderAnthropic, err: errors.New("boom")}
	google := &fakeAdapter{id: models.ProviderGoogle, list: []models.ModelDescriptor{{ID: "gemini-x", DisplayName: "X"}}}
	svc, store := newService(t, openAI, anthropic, google)

	err := svc.Refresh(context.Background(), map[models.ProviderID]string{
		models.ProviderOpenAI:    "sk",
		models.ProviderAnthropic: "sk-ant",
	})
	require.NoError(t, err)

	snap := store.Snapshot()
	openAIEntry, err := snap.Entry(models.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, live, openAIEntry.Models)

	anthropicEntry, err := snap.Entry(models.ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, provider.DefaultModels(models.ProviderAnthropic), anthropicEntry.Models)

	googleEntry, err := snap.Entry(models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, provider.DefaultModels(models.ProviderGoogle), googleEntry.Models)
	assert.Zero(t, google.calls.Load())
}

func TestRefreshRunsProvidersConcurrently(t *testing.T) {
	// Each listing blocks until all three have started, so a sequential refresh would deadlock.
	var wg sync.WaitGroup
	wg.Add(len(models.Providers))

	var adapters []*fakeAdapter
	for _, id := range models.Providers {
		adapters = append(adapters, &fakeAdapter{
			id:   id,
			list: []models.ModelDescriptor{{ID: string(id) + "-live", DisplayName: "live"}},
			wait: &wg,
		})
	}
	svc, store := newService(t, adapters...)

	creds := map[models.ProviderID]string{}
	for _, id := range models.Providers {
		creds[id] = "k"
	}
	require.NoError(t, svc.Refresh(context.Background(), creds))

	for _, id := range models.Providers {
		first, err := store.Snapshot().FirstModel(id)
		require.NoError(t, err)
		assert.Equal(t, string(id)+"-live", first)
	}
}
