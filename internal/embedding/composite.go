// Package embedding implements a content-hash-keyed cache over a
// text->vector model, re-embedding tools only when their composite text
// changes.
package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/render"
	"github.com/unicitynetwork/unicity-orchestrator/internal/schema"
)

// compositeTemplate is the mugo template used to assemble each tool's
// embedding text. It is a template (rather than a hand-built string) so an
// operator can override the composite shape via configuration through
// internal/render.
const compositeTemplate = `{{ .Name }}
{{ .Description }}
{{ .InputSchemaText }}
{{ .InputTy }}
{{ .OutputTy }}`

type compositeData struct {
	Name            string
	Description     string
	InputSchemaText string
	InputTy         string
	OutputTy        string
}

// CompositeText builds the composite text for a tool: name || "\n" ||
// description || "\n" || canonicalized_input_schema_text || "\n" || input_ty
// || "\n" || output_ty.
func CompositeText(t model.Tool) (string, error) {
	data := compositeData{
		Name:            t.ToolName,
		Description:     t.Description,
		InputSchemaText: schema.Canonical(t.InputSchema),
		InputTy:         t.InputTy,
		OutputTy:        t.OutputTy,
	}

	out, err := render.ExecuteWithFuncs(compositeTemplate, data, nil)
	if err != nil {
		return "", fmt.Errorf("render composite text for %s: %w", t.ToolName, err)
	}
	return string(out), nil
}

// ContentHash is SHA-256 of the composite text, hex-encoded.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
