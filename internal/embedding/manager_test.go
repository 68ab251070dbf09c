package embedding

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// fakeClient deterministically maps text to a vector derived from its
// SHA-256, so EmbedderClient's contract ("pure per (model_name, text)") is
// directly testable without a live model.
type fakeClient struct {
	calls int
}

func (f *fakeClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = float32(sum[j])
		}
		out[i] = vec
	}
	return out, nil
}

func newTestManager() (*Manager, *fakeClient) {
	fc := &fakeClient{}
	return NewManager(fc, NewMemoryStore(), "test-model"), fc
}

func testTool() model.Tool {
	return model.Tool{
		ToolID:      "t1",
		ToolName:    "fs.read_file",
		ServiceID:   "fs",
		Description: "read file contents",
		InputSchema: &model.TypedSchema{Kind: model.SchemaObject, Properties: []model.ObjectProperty{
			{Name: "path", Schema: &model.TypedSchema{Kind: model.SchemaPrimitive, Primitive: model.PrimitiveString}},
		}},
	}
}

func TestEnsureEmbeddedCachesOnUnchangedHash(t *testing.T) {
	mgr, fc := newTestManager()
	ctx := context.Background()
	tool := testTool()

	e1, err := mgr.EnsureEmbedded(ctx, tool)
	require.NoError(t, err)
	require.Equal(t, 1, fc.calls)

	e2, err := mgr.EnsureEmbedded(ctx, tool)
	require.NoError(t, err)
	assert.Equal(t, e1.ContentHash, e2.ContentHash)
	assert.Equal(t, 1, fc.calls, "unchanged tool must not trigger re-embedding")
}

func TestEnsureEmbeddedReembedsOnDescriptionChange(t *testing.T) {
	mgr, fc := newTestManager()
	ctx := context.Background()
	tool := testTool()

	_, err := mgr.EnsureEmbedded(ctx, tool)
	require.NoError(t, err)

	tool.Description = "reads a file from the local filesystem"
	_, err = mgr.EnsureEmbedded(ctx, tool)
	require.NoError(t, err)
	assert.Equal(t, 2, fc.calls, "changed composite text must re-embed")
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestMemoryStoreTopKOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, model.Embedding{ToolID: "a", Vector: []float32{1, 0}}))
	require.NoError(t, s.Put(ctx, model.Embedding{ToolID: "b", Vector: []float32{0, 1}}))
	require.NoError(t, s.Put(ctx, model.Embedding{ToolID: "c", Vector: []float32{1, 1}}))

	got, err := s.TopK(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ToolID)
}
