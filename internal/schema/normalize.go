// Package schema translates arbitrary JSON-Schema fragments into the
// orchestrator's internal typed-schema form (model.TypedSchema).
//
// Rather than stripping and re-serializing JSON-Schema for transport,
// Normalize walks the same shapes into a tagged union so the rest of the
// system never touches raw JSON-Schema again.
package schema

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Normalize converts a JSON-Schema fragment (decoded into map[string]any,
// as produced by encoding/json) into a model.TypedSchema,. It never fails:
// fragments it cannot interpret become primitive("any") and a warning is
// logged, so one malformed tool schema never aborts warmup.
func Normalize(fragment any) *model.TypedSchema {
	switch f := fragment.(type) {
	case map[string]any:
		return normalizeObject(f)
	case nil:
		return model.Any()
	default:
		slog.Warn("schema: fragment is not a JSON object, falling back to any", "type", fragment)
		return model.Any()
	}
}

func normalizeObject(m map[string]any) *model.TypedSchema {
	if members, ok := unionMembers(m); ok {
		return flattenUnion(members)
	}

	if enumVals, ok := m["enum"]; ok {
		if vals, ok := stringifyEnum(enumVals); ok {
			return &model.TypedSchema{Kind: model.SchemaEnum, Values: vals}
		}
	}

	typ, _ := m["type"].(string)

	switch typ {
	case "object":
		return normalizeObjectType(m)
	case "array":
		return normalizeArrayType(m)
	case "string":
		return &model.TypedSchema{Kind: model.SchemaPrimitive, Primitive: model.PrimitiveString}
	case "number":
		return &model.TypedSchema{Kind: model.SchemaPrimitive, Primitive: model.PrimitiveNumber}
	case "integer":
		return &model.TypedSchema{Kind: model.SchemaPrimitive, Primitive: model.PrimitiveInteger}
	case "boolean":
		return &model.TypedSchema{Kind: model.SchemaPrimitive, Primitive: model.PrimitiveBoolean}
	case "":
		// Missing "type" with only "properties" present is treated as
		// object.
		if _, ok := m["properties"]; ok {
			return normalizeObjectType(m)
		}
		if _, ok := m["items"]; ok {
			return normalizeArrayType(m)
		}
		slog.Warn("schema: fragment has no recognizable type, falling back to any")
		return model.Any()
	default:
		slog.Warn("schema: unrecognized JSON-Schema type, falling back to any", "type", typ)
		return model.Any()
	}
}

func unionMembers(m map[string]any) ([]any, bool) {
	if raw, ok := m["anyOf"]; ok {
		if list, ok := raw.([]any); ok {
			return list, true
		}
	}
	if raw, ok := m["oneOf"]; ok {
		if list, ok := raw.([]any); ok {
			return list, true
		}
	}
	return nil, false
}

// flattenUnion normalizes each member and flattens nested unions so a
// union never contains a union member.
func flattenUnion(rawMembers []any) *model.TypedSchema {
	var members []*model.TypedSchema
	for _, raw := range rawMembers {
		ns := Normalize(raw)
		if ns.Kind == model.SchemaUnion {
			members = append(members, ns.Members...)
		} else {
			members = append(members, ns)
		}
	}
	return &model.TypedSchema{Kind: model.SchemaUnion, Members: members}
}

func stringifyEnum(raw any) ([]string, bool) {
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	vals := make([]string, 0, len(list))
	for _, v := range list {
		switch s := v.(type) {
		case string:
			vals = append(vals, s)
		default:
			vals = append(vals, jsonScalarString(v))
		}
	}
	return vals, true
}

func jsonScalarString(v any) string {
	switch t := v.(type) {
	case float64:
		return trimFloat(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func normalizeObjectType(m map[string]any) *model.TypedSchema {
	propsRaw, _ := m["properties"].(map[string]any)

	// encoding/json does not preserve map key order, so we approximate
	// "insertion order" with a stable lexical order. This keeps
	// normalize(normalize(s)) == normalize(s) even though it cannot recover the
	// original author's property order once the fragment has round-tripped
	// through a Go map.
	names := make([]string, 0, len(propsRaw))
	for name := range propsRaw {
		names = append(names, name)
	}
	sort.Strings(names)

	props := make([]model.ObjectProperty, 0, len(names))
	for _, name := range names {
		props = append(props, model.ObjectProperty{
			Name:   name,
			Schema: Normalize(propsRaw[name]),
		})
	}

	required := model.RequiredSet()
	if raw, ok := m["required"].([]any); ok {
		names := make([]string, 0, len(raw))
		for _, r := range raw {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		required = model.RequiredSet(names...)
	}

	return &model.TypedSchema{
		Kind:       model.SchemaObject,
		Properties: props,
		Required:   required,
	}
}

func normalizeArrayType(m map[string]any) *model.TypedSchema {
	items, ok := m["items"]
	if !ok {
		return &model.TypedSchema{Kind: model.SchemaArray, Items: model.Any()}
	}
	return &model.TypedSchema{Kind: model.SchemaArray, Items: Normalize(items)}
}
