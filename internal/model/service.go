package model

import "log/slog"

// Transport distinguishes the two ways a child service is reached.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// SpawnSpec is the transport descriptor for a stdio child: a process to
// launch, its argument list, and its environment overlay.
type SpawnSpec struct {
	Command string
	Args    []string
	Env     map[string]string
}

// LogValue redacts the environment map: spawn env frequently carries API
// keys and tokens, so it never reaches a log line verbatim.
func (s SpawnSpec) LogValue() slog.Value {
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	return slog.GroupValue(
		slog.String("command", s.Command),
		slog.Any("args", s.Args),
		slog.Any("env_keys", keys),
	)
}

// RemoteSpec is the transport descriptor for an HTTP child.
type RemoteSpec struct {
	URL     string
	Headers map[string]string
}

func (r RemoteSpec) LogValue() slog.Value {
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	return slog.GroupValue(
		slog.String("url", r.URL),
		slog.Any("header_keys", keys),
	)
}

// ServiceState is the supervisor lifecycle state machine of.
type ServiceState string

const (
	ServiceDisabled     ServiceState = "Disabled"
	ServiceStarting     ServiceState = "Starting"
	ServiceReady        ServiceState = "Ready"
	ServiceIndexed      ServiceState = "Indexed"
	ServiceFailed       ServiceState = "Failed"
	ServiceReconnecting ServiceState = "Reconnecting"
)

// Service is a child MCP service entry. Transport is exactly one of Spawn
// (stdio) or Remote (http); exactly one is non-nil, enforced at config load.
type Service struct {
	ServiceID string
	Name      string

	Transport Transport
	Spawn     *SpawnSpec
	Remote    *RemoteSpec

	Disabled bool

	// AutoApprove names tools on this service that never require an
	// Approval elicitation.
	AutoApprove map[string]struct{}
	// DisabledTools names tools on this service hidden from discovery.
	DisabledTools map[string]struct{}
}

func (s Service) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("service_id", s.ServiceID),
		slog.String("name", s.Name),
		slog.String("transport", string(s.Transport)),
		slog.Bool("disabled", s.Disabled),
	}
	if s.Spawn != nil {
		attrs = append(attrs, slog.Any("spawn", s.Spawn))
	}
	if s.Remote != nil {
		attrs = append(attrs, slog.Any("remote", s.Remote))
	}
	return slog.GroupValue(attrs...)
}

// Tool is one tool advertised by a Service, normalized into the internal
// typed-schema form. (ServiceID, ToolName) is unique.
type Tool struct {
	ToolID      string
	ToolName    string
	ServiceID   string
	Description string

	InputSchema  *TypedSchema
	OutputSchema *TypedSchema

	// InputTy/OutputTy are URI-like type tags used for DataFlow edge
	// compatibility checks; empty when the tool declares none.
	InputTy  string
	OutputTy string

	ContentHash string
}
