package model

import "time"

// RegistryKind distinguishes prompt vs resource registry entries.
type RegistryKind string

const (
	RegistryPrompt   RegistryKind = "Prompt"
	RegistryResource RegistryKind = "Resource"
)

// RegistryEntry is one persisted prompt/resource registration, surviving a
// process restart so aliasing stays stable across warmups.
type RegistryEntry struct {
	Kind RegistryKind
	// Key is the conflict key: lowercase prompt name, or resource URI
	// verbatim (URIs are compared byte-for-byte, not case-folded).
	Key       string
	Alias     string // "service:name" form when this entry lost the Key race
	ServiceID string
	Name      string // original-case prompt name or resource URI/template
}

// Manifest is a persisted copy of one load of the mcp.json child-service
// descriptor, kept for admin introspection of what POST /discover last read.
type Manifest struct {
	ManifestID string
	Source     string // file path the manifest was loaded from
	Raw        string // the raw JSON document
	LoadedAt   time.Time
}

// ToolSequenceEdge is a persisted Sequential/suggest_following_tool
// relationship between two tools. Every graph rebuild reads these into
// Sequential edges; nothing in the orchestrator derives or writes them.
type ToolSequenceEdge struct {
	FromToolID string
	ToToolID   string
	Confidence float64
}
