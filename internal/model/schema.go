package model

// SchemaKind tags the variant of a TypedSchema.
type SchemaKind string

const (
	SchemaObject    SchemaKind = "object"
	SchemaArray     SchemaKind = "array"
	SchemaPrimitive SchemaKind = "primitive"
	SchemaUnion     SchemaKind = "union"
	SchemaEnum      SchemaKind = "enum"
)

// PrimitiveName is the set of primitive leaf types a TypedSchema can carry,
// plus the "any" escape hatch used when normalization cannot interpret a
// fragment.
type PrimitiveName string

const (
	PrimitiveString  PrimitiveName = "string"
	PrimitiveNumber  PrimitiveName = "number"
	PrimitiveInteger PrimitiveName = "integer"
	PrimitiveBoolean PrimitiveName = "boolean"
	PrimitiveAny     PrimitiveName = "any"
)

// ObjectProperty is one entry of an object TypedSchema's property list.
// Properties are carried as a slice rather than a plain map so insertion
// order survives normalization, ("properties map preserves insertion
// order").
type ObjectProperty struct {
	Name   string
	Schema *TypedSchema
}

// TypedSchema is a tagged union over object/array/primitive/union/enum
// shapes: exactly one of the fields below is meaningful, selected by Kind.
// Consumers should switch on Kind rather than checking fields for nil/zero.
type TypedSchema struct {
	Kind SchemaKind

	// object
	Properties []ObjectProperty
	Required   map[string]struct{}

	// array
	Items *TypedSchema

	// primitive
	Primitive PrimitiveName

	// union
	Members []*TypedSchema

	// enum
	Values []string
}

// RequiredSet builds the Required set from a list of names.
func RequiredSet(names ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// IsRequired reports whether name is in the object schema's required set.
func (t *TypedSchema) IsRequired(name string) bool {
	if t == nil || t.Required == nil {
		return false
	}
	_, ok := t.Required[name]
	return ok
}

// Property returns the named property's schema, or nil if absent.
func (t *TypedSchema) Property(name string) *TypedSchema {
	if t == nil {
		return nil
	}
	for _, p := range t.Properties {
		if p.Name == name {
			return p.Schema
		}
	}
	return nil
}

// Any returns the primitive("any") schema used as the normalizer's
// failure-mode fallback.
func Any() *TypedSchema {
	return &TypedSchema{Kind: SchemaPrimitive, Primitive: PrimitiveAny}
}
