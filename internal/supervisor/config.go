// Package supervisor parses the mcp.json child-service manifest,
// starts/attaches transports, and runs each service's lifecycle state
// machine.
package supervisor

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// manifestEntry mirrors one entry of the mcp.json "mcpServers" map.
type manifestEntry struct {
	Command       string            `json:"command,omitempty"`
	Args          []string          `json:"args,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	URL           string            `json:"url,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Disabled      bool              `json:"disabled,omitempty"`
	AutoApprove   []string          `json:"autoApprove,omitempty"`
	DisabledTools []string          `json:"disabledTools,omitempty"`
}

type manifest struct {
	MCPServers map[string]manifestEntry `json:"mcpServers"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveConfigPath resolves the manifest path in order: $MCP_CONFIG path,
// $XDG_CONFIG_HOME/mcp/mcp.json, ./mcp.json, or none (caller auto-creates).
func ResolveConfigPath() (string, bool) {
	if p := os.Getenv("MCP_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
		return p, false
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		p := filepath.Join(xdg, "mcp", "mcp.json")
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	if _, err := os.Stat("./mcp.json"); err == nil {
		return "./mcp.json", true
	}
	return "./mcp.json", false
}

// Load reads and parses the manifest at path into []model.Service. If the
// file does not exist, it writes an empty {"mcpServers":{}} manifest and
// returns no services.
func Load(path string) ([]model.Service, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		empty := manifest{MCPServers: map[string]manifestEntry{}}
		b, marshalErr := json.MarshalIndent(empty, "", "  ")
		if marshalErr != nil {
			return nil, marshalErr
		}
		if writeErr := os.WriteFile(path, b, 0o644); writeErr != nil {
			return nil, model.NewError(model.ErrConfigInvalid, "create default mcp.json: %v", writeErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, model.NewError(model.ErrConfigInvalid, "read mcp.json: %v", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, model.NewError(model.ErrConfigInvalid, "parse mcp.json: %v", err)
	}

	names := make([]string, 0, len(m.MCPServers))
	for name := range m.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make([]model.Service, 0, len(names))
	for _, name := range names {
		entry := m.MCPServers[name]
		svc, err := fromEntry(name, entry)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

func fromEntry(name string, e manifestEntry) (model.Service, error) {
	hasCommand := e.Command != ""
	hasURL := e.URL != ""
	if hasCommand == hasURL {
		return model.Service{}, model.NewError(model.ErrConfigInvalid,
			"service %q must declare exactly one of command or url", name)
	}

	svc := model.Service{
		ServiceID:     name,
		Name:          name,
		Disabled:      e.Disabled,
		AutoApprove:   toSet(e.AutoApprove),
		DisabledTools: toSet(e.DisabledTools),
	}

	if hasCommand {
		svc.Transport = model.TransportStdio
		svc.Spawn = &model.SpawnSpec{
			Command: expandEnv(e.Command),
			Args:    expandEnvAll(e.Args),
			Env:     expandEnvMap(e.Env),
		}
	} else {
		svc.Transport = model.TransportHTTP
		svc.Remote = &model.RemoteSpec{
			URL:     expandEnv(e.URL),
			Headers: expandEnvMap(e.Headers),
		}
	}

	return svc, nil
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// missingVarsLogged tracks which ${VAR} names have already produced a
// once-only log line, ("missing variables left as-is and logged once").
var missingVarsLogged = map[string]struct{}{}

// expandEnv replaces every ${VAR} occurrence with os.Getenv(VAR); a VAR
// missing from the process environment is left as-is verbatim.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		logMissingOnce(name)
		return match
	})
}

func expandEnvAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = expandEnv(s)
	}
	return out
}

func expandEnvMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = expandEnv(v)
	}
	return out
}

func logMissingOnce(name string) {
	if _, ok := missingVarsLogged[name]; ok {
		return
	}
	missingVarsLogged[name] = struct{}{}
	slog.Warn("mcp.json: environment variable unset, left as-is", "var", name)
}
