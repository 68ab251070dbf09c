package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Store is the persistent backing for embeddings: fetch/put the live
// embedding for a tool, and run a cosine top-k search. Two implementations
// are provided: a Milvus-backed one for production deployments and an in-
// memory flat scan for `memory` mode, init, and tests.
type Store interface {
	Get(ctx context.Context, toolID string) (*model.Embedding, error)
	Put(ctx context.Context, e model.Embedding) error
	Delete(ctx context.Context, toolID string) error
	// TopK returns up to k tool IDs sorted descending by cosine similarity;
	// negative similarities are not filtered out. Thresholding is applied by
	// the caller.
	TopK(ctx context.Context, query []float32, k int) ([]ScoredTool, error)
}

// ScoredTool is one TopK search hit.
type ScoredTool struct {
	ToolID     string
	Similarity float64
}

// ─── In-memory flat-scan store ───

// MemoryStore implements Store as a flat map with a brute-force cosine
// scan. Used for `memory` mode deployments and for every unit test in this
// tree — fine at the tool-catalog sizes this orchestrator indexes.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]model.Embedding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]model.Embedding)}
}

func (m *MemoryStore) Get(_ context.Context, toolID string) (*model.Embedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rows[toolID]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, e model.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[e.ToolID] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, toolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, toolID)
	return nil
}

func (m *MemoryStore) TopK(_ context.Context, query []float32, k int) ([]ScoredTool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make([]ScoredTool, 0, len(m.rows))
	for toolID, e := range m.rows {
		scored = append(scored, ScoredTool{ToolID: toolID, Similarity: CosineSimilarity(query, e.Vector)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].ToolID < scored[j].ToolID
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// CosineSimilarity computes cosine similarity over L2-unnormalized
// vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ─── Milvus-backed store ───

// milvusCollectionSchema names the collection columns used for the
// embedding table's similarity search.
const (
	milvusToolIDField = "tool_id"
	milvusVectorField = "vector"
)

// MilvusStore backs the Embedding table's similarity search with a real
// vector database.
type MilvusStore struct {
	cli        client.Client
	collection string
	dimension  int
}

// NewMilvusStore connects to addr and ensures the collection exists with
// the given vector dimension.
func NewMilvusStore(ctx context.Context, addr, collection string, dimension int) (*MilvusStore, error) {
	cli, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	exists, err := cli.HasCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check milvus collection: %w", err)
	}

	if !exists {
		schema := &entity.Schema{
			CollectionName: collection,
			Fields: []*entity.Field{
				{Name: milvusToolIDField, DataType: entity.FieldTypeVarChar, PrimaryKey: true, TypeParams: map[string]string{"max_length": "64"}},
				{Name: milvusVectorField, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dimension)}},
			},
		}
		if err := cli.CreateCollection(ctx, schema, 1); err != nil {
			return nil, fmt.Errorf("create milvus collection: %w", err)
		}
		idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
		if err != nil {
			return nil, fmt.Errorf("build milvus index: %w", err)
		}
		if err := cli.CreateIndex(ctx, collection, milvusVectorField, idx, false); err != nil {
			return nil, fmt.Errorf("create milvus index: %w", err)
		}
	}

	if err := cli.LoadCollection(ctx, collection, false); err != nil {
		return nil, fmt.Errorf("load milvus collection: %w", err)
	}

	return &MilvusStore{cli: cli, collection: collection, dimension: dimension}, nil
}

func (s *MilvusStore) Get(ctx context.Context, toolID string) (*model.Embedding, error) {
	expr := fmt.Sprintf("%s == \"%s\"", milvusToolIDField, toolID)
	rows, err := s.cli.Query(ctx, s.collection, nil, expr, []string{milvusToolIDField, milvusVectorField})
	if err != nil {
		return nil, fmt.Errorf("query milvus: %w", err)
	}
	if len(rows) == 0 || rows[0].Len() == 0 {
		return nil, nil
	}
	vecCol, ok := rows[0].(*entity.ColumnFloatVector)
	if !ok || vecCol.Len() == 0 {
		return nil, nil
	}
	return &model.Embedding{ToolID: toolID, Vector: vecCol.Data()[0]}, nil
}

func (s *MilvusStore) Put(ctx context.Context, e model.Embedding) error {
	idCol := entity.NewColumnVarChar(milvusToolIDField, []string{e.ToolID})
	vecCol := entity.NewColumnFloatVector(milvusVectorField, s.dimension, [][]float32{e.Vector})
	_, err := s.cli.Upsert(ctx, s.collection, "", idCol, vecCol)
	if err != nil {
		return fmt.Errorf("upsert milvus row: %w", err)
	}
	return nil
}

func (s *MilvusStore) Delete(ctx context.Context, toolID string) error {
	expr := fmt.Sprintf("%s == \"%s\"", milvusToolIDField, toolID)
	return s.cli.Delete(ctx, s.collection, "", expr)
}

func (s *MilvusStore) TopK(ctx context.Context, query []float32, k int) ([]ScoredTool, error) {
	vec := []entity.Vector{entity.FloatVector(query)}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, fmt.Errorf("build milvus search param: %w", err)
	}

	results, err := s.cli.Search(ctx, s.collection, nil, "", []string{milvusToolIDField}, vec, milvusVectorField, entity.COSINE, k, sp)
	if err != nil {
		return nil, fmt.Errorf("search milvus: %w", err)
	}

	var out []ScoredTool
	for _, r := range results {
		idCol, ok := r.Fields.GetColumn(milvusToolIDField).(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		for i := 0; i < r.ResultCount; i++ {
			out = append(out, ScoredTool{ToolID: idCol.Data()[i], Similarity: float64(r.Scores[i])})
		}
	}
	return out, nil
}
