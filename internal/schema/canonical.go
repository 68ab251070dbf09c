package schema

import (
	"sort"
	"strings"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Canonical renders a TypedSchema into a deterministic text form used to
// build the composite embedding text and the content hash. Two
// structurally equal schemas always render identically regardless of map
// iteration order upstream, which is what makes embedding idempotence hold
// for schema changes.
func Canonical(s *model.TypedSchema) string {
	var b strings.Builder
	writeCanonical(&b, s)
	return b.String()
}

func writeCanonical(b *strings.Builder, s *model.TypedSchema) {
	if s == nil {
		b.WriteString("any")
		return
	}
	switch s.Kind {
	case model.SchemaObject:
		b.WriteString("object{")
		names := make([]string, len(s.Properties))
		bySchema := make(map[string]*model.TypedSchema, len(s.Properties))
		for i, p := range s.Properties {
			names[i] = p.Name
			bySchema[p.Name] = p.Schema
		}
		sort.Strings(names)
		for i, n := range names {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(n)
			if s.IsRequired(n) {
				b.WriteString("!")
			}
			b.WriteString(":")
			writeCanonical(b, bySchema[n])
		}
		b.WriteString("}")
	case model.SchemaArray:
		b.WriteString("array<")
		writeCanonical(b, s.Items)
		b.WriteString(">")
	case model.SchemaPrimitive:
		b.WriteString(string(s.Primitive))
	case model.SchemaUnion:
		b.WriteString("union[")
		parts := make([]string, len(s.Members))
		for i, m := range s.Members {
			var mb strings.Builder
			writeCanonical(&mb, m)
			parts[i] = mb.String()
		}
		sort.Strings(parts)
		b.WriteString(strings.Join(parts, "|"))
		b.WriteString("]")
	case model.SchemaEnum:
		vals := append([]string(nil), s.Values...)
		sort.Strings(vals)
		b.WriteString("enum[")
		b.WriteString(strings.Join(vals, "|"))
		b.WriteString("]")
	default:
		b.WriteString("any")
	}
}
