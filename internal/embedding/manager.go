package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Client is the deterministic text->vector contract the embedding manager
// requires. It is satisfied by any github.com/tmc/langchaingo
// embeddings.EmbedderClient implementation (OpenAI, Ollama, etc.), so the
// orchestrator never has to own a model integration of its own.
type Client = embeddings.EmbedderClient

const defaultCacheTTL = 30 * time.Minute

// Manager re-embeds a tool only when its composite text's content hash
// changes, fronts the persistent Store with a local cache, and exposes the
// model name so re-embed decisions can be logged/audited.
type Manager struct {
	client    Client
	store     Store
	cache     *localCache
	modelName string
}

// NewManager builds a Manager. modelName is recorded on every stored
// embedding so a later model swap can be detected and trigger a full re-
// embed.
func NewManager(client Client, store Store, modelName string) *Manager {
	return &Manager{
		client:    client,
		store:     store,
		cache:     newLocalCache(defaultCacheTTL),
		modelName: modelName,
	}
}

// StartCacheSweep runs the cache's expiry sweep on a ticker until ctx is
// canceled.
func (m *Manager) StartCacheSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cache.sweep()
			}
		}
	}()
}

// EnsureEmbedded returns the live embedding for t, (re)embedding only if the
// composite text's hash differs from what's stored.
func (m *Manager) EnsureEmbedded(ctx context.Context, t model.Tool) (model.Embedding, error) {
	text, err := CompositeText(t)
	if err != nil {
		return model.Embedding{}, fmt.Errorf("build composite text: %w", err)
	}
	hash := ContentHash(text)

	existing, err := m.store.Get(ctx, t.ToolID)
	if err != nil {
		return model.Embedding{}, fmt.Errorf("load existing embedding: %w", err)
	}
	if existing != nil && existing.ContentHash == hash && existing.ModelName == m.modelName {
		return *existing, nil
	}

	vector, err := m.embedText(ctx, hash, text)
	if err != nil {
		return model.Embedding{}, err
	}

	e := model.Embedding{
		ToolID:      t.ToolID,
		Vector:      vector,
		ModelName:   m.modelName,
		ContentHash: hash,
	}
	if err := m.store.Put(ctx, e); err != nil {
		return model.Embedding{}, fmt.Errorf("persist embedding: %w", err)
	}
	return e, nil
}

// EmbedQuery embeds free-form query text at selection time. Query-time
// embeddings are never cached across queries.
func (m *Manager) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}
	return vectors[0], nil
}

func (m *Manager) embedText(ctx context.Context, hash, text string) ([]float32, error) {
	if cached, ok := m.cache.get(hash); ok {
		return cached, nil
	}

	vectors, err := m.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed text: empty response")
	}

	m.cache.set(hash, vectors[0])
	return vectors[0], nil
}

// TopK delegates to the backing Store.
func (m *Manager) TopK(ctx context.Context, query []float32, k int) ([]ScoredTool, error) {
	return m.store.TopK(ctx, query, k)
}

// CacheStats exposes hit/miss counters, the "cache hit observable via a test
// hook" requirement.
func (m *Manager) CacheStats() (hits, misses int64) {
	return m.cache.Stats()
}
