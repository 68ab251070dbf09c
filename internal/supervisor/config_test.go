package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadStdioService(t *testing.T) {
	path := writeManifest(t, `{"mcpServers":{"fs":{"command":"fs-server","args":["--root","/tmp"],"env":{"TOKEN":"abc"}}}}`)

	services, err := Load(path)
	require.NoError(t, err)
	require.Len(t, services, 1)

	svc := services[0]
	assert.Equal(t, "fs", svc.Name)
	assert.Equal(t, model.TransportStdio, svc.Transport)
	require.NotNil(t, svc.Spawn)
	assert.Equal(t, "fs-server", svc.Spawn.Command)
	assert.Equal(t, []string{"--root", "/tmp"}, svc.Spawn.Args)
	assert.Equal(t, "abc", svc.Spawn.Env["TOKEN"])
}

func TestLoadHTTPService(t *testing.T) {
	path := writeManifest(t, `{"mcpServers":{"remote":{"url":"https://example.com/mcp","headers":{"X-Key":"v"}}}}`)

	services, err := Load(path)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, model.TransportHTTP, services[0].Transport)
	require.NotNil(t, services[0].Remote)
	assert.Equal(t, "https://example.com/mcp", services[0].Remote.URL)
}

func TestLoadRejectsBothCommandAndURL(t *testing.T) {
	path := writeManifest(t, `{"mcpServers":{"bad":{"command":"x","url":"https://example.com"}}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, model.ErrConfigInvalid, model.CodeOf(err))
}

func TestLoadRejectsNeitherCommandNorURL(t *testing.T) {
	path := writeManifest(t, `{"mcpServers":{"bad":{}}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, model.ErrConfigInvalid, model.CodeOf(err))
}

func TestLoadAutoCreatesMissingManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.json")

	services, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, services)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mcpServers"`)
}

func TestExpandEnvSubstitutesSetVariable(t *testing.T) {
	t.Setenv("MCP_TEST_VAR", "resolved")
	path := writeManifest(t, `{"mcpServers":{"fs":{"command":"${MCP_TEST_VAR}"}}}`)

	services, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "resolved", services[0].Spawn.Command)
}

func TestExpandEnvLeavesMissingVariableAsIs(t *testing.T) {
	path := writeManifest(t, `{"mcpServers":{"fs":{"command":"${MCP_TOTALLY_UNSET_VAR}"}}}`)

	services, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${MCP_TOTALLY_UNSET_VAR}", services[0].Spawn.Command)
}

func TestLoadDisabledToolsAndAutoApproveSets(t *testing.T) {
	path := writeManifest(t, `{"mcpServers":{"fs":{"command":"fs-server","disabledTools":["danger"],"autoApprove":["read_file"]}}}`)

	services, err := Load(path)
	require.NoError(t, err)
	_, hasDisabled := services[0].DisabledTools["danger"]
	_, hasApprove := services[0].AutoApprove["read_file"]
	assert.True(t, hasDisabled)
	assert.True(t, hasApprove)
}
