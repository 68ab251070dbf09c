package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestNormalizeObject(t *testing.T) {
	frag := decode(t, `{"type":"object","properties":{"path":{"type":"string"},"recursive":{"type":"boolean"}},"required":["path"]}`)
	got := Normalize(frag)
	require.Equal(t, model.SchemaObject, got.Kind)
	assert.True(t, got.IsRequired("path"))
	assert.False(t, got.IsRequired("recursive"))
	assert.Equal(t, model.SchemaPrimitive, got.Property("path").Kind)
}

func TestNormalizeMissingTypeWithProperties(t *testing.T) {
	frag := decode(t, `{"properties":{"a":{"type":"string"}}}`)
	got := Normalize(frag)
	assert.Equal(t, model.SchemaObject, got.Kind)
}

func TestNormalizeArrayMissingItems(t *testing.T) {
	frag := decode(t, `{"type":"array"}`)
	got := Normalize(frag)
	require.Equal(t, model.SchemaArray, got.Kind)
	assert.Equal(t, model.PrimitiveAny, got.Items.Primitive)
}

func TestNormalizeAnyOfFlattensNestedUnions(t *testing.T) {
	frag := decode(t, `{"anyOf":[{"type":"string"},{"anyOf":[{"type":"integer"},{"type":"boolean"}]}]}`)
	got := Normalize(frag)
	require.Equal(t, model.SchemaUnion, got.Kind)
	assert.Len(t, got.Members, 3)
}

func TestNormalizeEnum(t *testing.T) {
	frag := decode(t, `{"type":"string","enum":["a","b","c"]}`)
	got := Normalize(frag)
	require.Equal(t, model.SchemaEnum, got.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, got.Values)
}

func TestNormalizeUnrecognizedFallsBackToAny(t *testing.T) {
	frag := decode(t, `{"type":"geojson"}`)
	got := Normalize(frag)
	assert.Equal(t, model.PrimitiveAny, got.Primitive)
}

func TestNormalizeDeterministic(t *testing.T) {
	raw := `{"type":"object","properties":{"b":{"type":"integer"},"a":{"type":"string"}}}`
	first := Canonical(Normalize(decode(t, raw)))
	second := Canonical(Normalize(decode(t, raw)))
	assert.Equal(t, first, second)
}
